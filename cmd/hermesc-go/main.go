// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	hermesplugin "github.com/buke/esbuild-plugin-hermes-go"
	qjscomposer "github.com/buke/esbuild-plugin-hermes-go/engines/quickjs-go"
	"github.com/urfave/cli"
)

// Version of hermesc-go being run
const Version = "v0.1.0"

func newApp(ctx context.Context) *cli.App {
	app := cli.NewApp()
	app.Name = "hermesc-go"
	app.Usage = "compile JavaScript bundles to Hermes bytecode"
	app.Version = Version
	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "log debug output",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "compile",
			Usage: "compile a bundle and compose its source map",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "bundle", Required: true, Usage: "JavaScript bundle to compile"},
				cli.StringFlag{Name: "sourcemap", Usage: "bundler source map (default: <bundle>.map)"},
				cli.StringFlag{Name: "out", Usage: "bytecode output path (default: <bundle>.hbc)"},
				cli.StringFlag{Name: "root", Value: ".", Usage: "project root used to find hermesc"},
				cli.StringFlag{Name: "hermesc", Usage: "explicit hermesc executable"},
				cli.StringFlag{Name: "workspace", Usage: "parent directory of build workspaces"},
				cli.BoolFlag{Name: "optimize, O", Usage: "pass -O to hermesc"},
				cli.BoolFlag{Name: "metro", Usage: "compose source maps with the project's metro-source-map"},
			},
			Action: func(c *cli.Context) error {
				return compile(ctx, c)
			},
		},
		{
			Name:      "inspect",
			Usage:     "report whether files are Hermes bytecode and their version",
			ArgsUsage: "<file>...",
			Action:    inspect,
		},
		{
			Name:  "props",
			Usage: "check the JavaScript engine configured by a project",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "root", Value: ".", Usage: "project root"},
				cli.StringFlag{Name: "app-config", Usage: "app config path (default: <root>/app.json)"},
			},
			Action: props,
		},
	}
	return app
}

func newLogger(c *cli.Context) *slog.Logger {
	level := slog.LevelInfo
	if c.GlobalBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level}))
}

func compile(ctx context.Context, c *cli.Context) error {
	bundle := c.String("bundle")
	mapPath := c.String("sourcemap")
	if mapPath == "" {
		mapPath = bundle + ".map"
	}
	out := c.String("out")
	if out == "" {
		out = strings.TrimSuffix(bundle, filepath.Ext(bundle)) + ".hbc"
	}
	root := c.String("root")

	code, err := os.ReadFile(bundle)
	if err != nil {
		return fmt.Errorf("failed to read bundle: %w", err)
	}
	sourceMap, err := os.ReadFile(mapPath)
	if err != nil {
		return fmt.Errorf("failed to read source map: %w", err)
	}

	var resolver hermesplugin.Resolver = &hermesplugin.NodeModulesResolver{}
	if c.Bool("metro") {
		metro := qjscomposer.NewResolver()
		defer metro.Close()
		resolver = metro
	}
	if hermesc := c.String("hermesc"); hermesc != "" {
		compose, err := resolver.ResolveComposer(root)
		if err != nil {
			return err
		}
		resolver = &hermesplugin.StaticResolver{Executable: hermesc, Composer: compose}
	}

	result, err := hermesplugin.BuildBytecode(ctx, hermesplugin.BuildRequest{
		ProjectRoot: root,
		Code:        code,
		SourceMap:   sourceMap,
		Optimize:    c.Bool("optimize"),
	},
		hermesplugin.WithResolver(resolver),
		hermesplugin.WithWorkspaceDir(c.String("workspace")),
		hermesplugin.WithLogger(newLogger(c)),
	)
	if err != nil {
		return err
	}

	if err := os.WriteFile(out, result.Bytecode, 0644); err != nil {
		return fmt.Errorf("failed to write bytecode: %w", err)
	}
	if err := os.WriteFile(out+".map", result.SourceMap, 0644); err != nil {
		return fmt.Errorf("failed to write source map: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "wrote %s\n", out)
	return nil
}

func inspect(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("inspect needs at least one file")
	}
	for _, file := range c.Args() {
		ok, err := hermesplugin.IsBytecodeBundle(file)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(c.App.Writer, "%s: not a Hermes bytecode bundle\n", file)
			continue
		}
		version, err := hermesplugin.GetBytecodeVersion(file)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s: Hermes bytecode version %d\n", file, version)
	}
	return nil
}

func props(c *cli.Context) error {
	root := c.String("root")
	configPath := c.String("app-config")
	if configPath == "" {
		configPath = filepath.Join(root, "app.json")
	}

	config, err := hermesplugin.LoadAppConfig(configPath)
	if os.IsNotExist(err) {
		config = &hermesplugin.AppConfig{}
	} else if err != nil {
		return err
	}

	if data, err := os.ReadFile(filepath.Join(root, "android", "gradle.properties")); err == nil {
		gradle := hermesplugin.ParseGradleProperties(string(data))
		keys := make([]string, 0, len(gradle))
		for key := range gradle {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(c.App.Writer, "gradle %s=%s\n", key, gradle[key])
		}
	}

	for _, platform := range []hermesplugin.Platform{hermesplugin.PlatformAndroid, hermesplugin.PlatformIOS} {
		enabled := hermesplugin.IsHermesEnabled(config, platform)
		inconsistent, err := hermesplugin.MaybeInconsistentEngine(root, platform, enabled)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("%s: hermes=%t", platform, enabled)
		if inconsistent {
			line += " (native project may disagree)"
		}
		fmt.Fprintln(c.App.Writer, line)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp(ctx).Run(os.Args); err != nil {
		log.Fatalf("run failed: %v", err)
	}
}

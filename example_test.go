// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package hermesplugin_test

import (
	"context"
	"fmt"
	"os"

	hermesplugin "github.com/buke/esbuild-plugin-hermes-go"
	qjscomposer "github.com/buke/esbuild-plugin-hermes-go/engines/quickjs-go"
	"github.com/evanw/esbuild/pkg/api"
)

// Example demonstrates how to compile an esbuild bundle to Hermes bytecode.
// hermesc is resolved from the project's node_modules and source maps are
// composed with the project's metro-source-map package.
func Example() {
	// 1. Create a resolver that runs metro-source-map inside QuickJS.
	resolver := qjscomposer.NewResolver()
	defer resolver.Close()

	// 2. Create the Hermes plugin.
	hermesPlugin := hermesplugin.NewPlugin(
		hermesplugin.WithProjectRoot("example/app"),
		hermesplugin.WithResolver(resolver),
		hermesplugin.WithOptimize(true),
		hermesplugin.WithOnEndProcessor(func(result *api.BuildResult, buildOptions *api.BuildOptions) error {
			fmt.Println("bytecode build finished")
			return nil
		}),
	)

	// 3. Bundle the app with esbuild. Each .js output gets a .hbc and .hbc.map next to it.
	buildResult := api.Build(api.BuildOptions{
		EntryPoints: []string{"example/app/index.js"},
		Bundle:      true,
		Format:      api.FormatIIFE,
		Target:      api.ES2015,
		Outdir:      "example/dist",
		Plugins:     []api.Plugin{hermesPlugin},
		Write:       true,
	})

	// 4. Check for build errors.
	if len(buildResult.Errors) > 0 {
		for _, err := range buildResult.Errors {
			fmt.Printf("Build error: %s\n", err.Text)
		}
	}
}

// ExampleBuildBytecode compiles a bundle that is already on disk.
func ExampleBuildBytecode() {
	code, _ := os.ReadFile("example/dist/index.bundle")
	sourceMap, _ := os.ReadFile("example/dist/index.bundle.map")

	result, err := hermesplugin.BuildBytecode(context.Background(), hermesplugin.BuildRequest{
		ProjectRoot: "example/app",
		Code:        code,
		SourceMap:   sourceMap,
		Optimize:    true,
	})
	if err != nil {
		fmt.Println(err)
		return
	}
	os.WriteFile("example/dist/index.hbc", result.Bytecode, 0644)
	os.WriteFile("example/dist/index.hbc.map", result.SourceMap, 0644)
}

func ExampleBytecodeVersion() {
	header := []byte{0xc6, 0x1f, 0xbc, 0x03, 0xc1, 0x03, 0x19, 0x1f, 0x60, 0x00, 0x00, 0x00}
	version, err := hermesplugin.BytecodeVersion(header)
	fmt.Println(version, err)

	_, err = hermesplugin.BytecodeVersion([]byte("var a = 1;"))
	fmt.Println(err != nil)
	// Output:
	// 96 <nil>
	// true
}

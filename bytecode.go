// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package hermesplugin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"
)

// compilerWaitDelay bounds how long a killed hermesc may keep its output pipes open.
const compilerWaitDelay = 5 * time.Second

// BuildRequest is the input of a bytecode build.
type BuildRequest struct {
	ProjectRoot string // root used to resolve hermesc and the composer
	Code        []byte // JavaScript bundle, UTF-8
	SourceMap   []byte // bundler source map, JSON
	Optimize    bool   // pass -O to hermesc
}

// BuildResult is the output of a successful bytecode build.
type BuildResult struct {
	Bytecode  []byte
	SourceMap []byte // composed source map, JSON
}

// Compiler turns JavaScript bundles into Hermes bytecode.
// It is safe for concurrent use; every build gets its own workspace.
type Compiler struct {
	resolver     Resolver
	workspaceDir string
	cache        *Cache
	logger       *slog.Logger
}

// NewCompiler creates a Compiler configured by the same options as NewPlugin.
func NewCompiler(optsFunc ...OptionFunc) *Compiler {
	opts := newOptions()
	for _, fn := range optsFunc {
		fn(opts)
	}
	return newCompiler(opts)
}

func newCompiler(opts *Options) *Compiler {
	return &Compiler{
		resolver:     opts.resolver,
		workspaceDir: opts.workspaceDir,
		cache:        opts.cache,
		logger:       opts.logger,
	}
}

// BuildBytecode compiles one bundle with a Compiler built from optsFunc.
func BuildBytecode(ctx context.Context, req BuildRequest, optsFunc ...OptionFunc) (*BuildResult, error) {
	return NewCompiler(optsFunc...).Build(ctx, req)
}

// compilerArgs returns the hermesc argument list. The order is fixed so that
// identical requests produce identical invocations.
func compilerArgs(bundlePath, bytecodePath string, optimize bool) []string {
	args := []string{"-emit-binary", "-out", bytecodePath, bundlePath, "-output-source-map"}
	if optimize {
		args = append(args, "-O")
	}
	return args
}

// Build stages req in a private workspace, runs hermesc and returns the bytecode
// together with the composed source map. The workspace is removed before Build returns.
func (c *Compiler) Build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	var key uint64
	if c.cache != nil {
		key = cacheKey(req)
		if result, ok := c.cache.get(key); ok {
			c.logger.Debug("Reusing cached bytecode build", "key", key)
			return result, nil
		}
	}

	hermesc, err := c.resolver.ResolveExecutable(req.ProjectRoot)
	if err != nil {
		return nil, err
	}
	compose, err := c.resolver.ResolveComposer(req.ProjectRoot)
	if err != nil {
		return nil, err
	}

	var result *BuildResult
	err = withWorkspace(ctx, c.workspaceDir, c.logger, func(ctx context.Context, ws *Workspace) error {
		if err := stageBundle(ws, req); err != nil {
			return err
		}
		args := compilerArgs(ws.Path(bundleFileName), ws.Path(bytecodeFileName), req.Optimize)
		if err := c.runCompiler(ctx, hermesc, args); err != nil {
			return err
		}
		out, err := collectOutputs(ctx, ws, req.SourceMap, compose)
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		c.logger.Error("Bytecode build failed", "error", err, "project", req.ProjectRoot)
		return nil, err
	}

	if version, err := BytecodeVersion(result.Bytecode); err == nil {
		c.logger.Debug("Compiled bytecode bundle", "version", version, "size", len(result.Bytecode))
	}
	if c.cache != nil {
		c.cache.put(key, result)
	}
	return result, nil
}

// stageBundle writes the bundle and its source map under their fixed names.
func stageBundle(ws *Workspace, req BuildRequest) error {
	if err := os.WriteFile(ws.Path(bundleFileName), req.Code, 0644); err != nil {
		return fmt.Errorf("failed to stage bundle: %w", err)
	}
	if err := os.WriteFile(ws.Path(bundleMapFileName), req.SourceMap, 0644); err != nil {
		return fmt.Errorf("failed to stage bundle source map: %w", err)
	}
	return nil
}

// runCompiler runs hermesc once. There is no retry: hermesc is deterministic.
func (c *Compiler) runCompiler(ctx context.Context, hermesc string, args []string) error {
	c.logger.Debug("Running hermesc", "command", hermesc, "args", args)

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, hermesc, args...)
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.WaitDelay = compilerWaitDelay
	err := cmd.Run()
	if err == nil {
		return nil
	}

	procErr := &ProcessError{
		Command:  hermesc,
		Args:     args,
		ExitCode: -1,
		Output:   output.String(),
		Err:      err,
	}
	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		procErr.Err = ctx.Err()
	case errors.As(err, &exitErr):
		procErr.ExitCode = exitErr.ExitCode()
	}
	return procErr
}

// collectOutputs reads the bytecode and composes the source map concurrently.
// Both must succeed; the first failure cancels the other.
func collectOutputs(ctx context.Context, ws *Workspace, bundlerMap []byte, compose ComposeFunc) (*BuildResult, error) {
	result := &BuildResult{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := os.ReadFile(ws.Path(bytecodeFileName))
		if err != nil {
			return fmt.Errorf("failed to read bytecode: %w", err)
		}
		result.Bytecode = data
		return nil
	})
	g.Go(func() error {
		data, err := compose(gctx, bundlerMap, ws.Path(bytecodeMapFileName))
		if err != nil {
			return err
		}
		result.SourceMap = data
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

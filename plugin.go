// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package hermesplugin

import (
	"context"

	"github.com/evanw/esbuild/pkg/api"
)

// NewPlugin creates an esbuild plugin that compiles JavaScript outputs to Hermes bytecode.
// It accepts a list of OptionFunc to customize plugin behavior such as:
// - How hermesc and the source map composer are located
// - Compiler flags and workspace location
// - Custom processor chains for various build phases
//
// For every output matching the output filter (default `\.js$`) and its source map,
// the plugin runs hermesc and emits <name>.hbc plus a composed <name>.hbc.map.
//
// Example usage:
//
//	plugin := NewPlugin(
//	  WithProjectRoot("."),
//	  WithOptimize(true),
//	)
//
// Source maps are switched to external if the build does not already produce them.
func NewPlugin(optsFunc ...OptionFunc) api.Plugin {
	// Initialize default options
	opts := newOptions()

	// Apply all provided option functions to configure the plugin
	for _, fn := range optsFunc {
		fn(opts)
	}
	compiler := newCompiler(opts)

	return api.Plugin{
		Name: opts.name, // Plugin name for identification in esbuild logs
		Setup: func(build api.PluginBuild) {
			// Compilations in flight are killed when the build context is disposed
			ctx, cancel := context.WithCancel(context.Background())

			// Step 1: Make esbuild emit external source maps and a metafile
			normalizeEsbuildOptions(build.InitialOptions, opts.logger)

			// Step 2: Register start processor chain - executed before build starts
			build.OnStart(func() (api.OnStartResult, error) {
				for _, processor := range opts.onStartProcessors {
					if err := processor(build.InitialOptions); err != nil {
						opts.logger.Error("Start processor failed", "error", err)
						return api.OnStartResult{}, err
					}
				}
				return api.OnStartResult{}, nil
			})

			// Step 3: Compile outputs to bytecode, then run the end processor chain
			// End processors see the .hbc artifacts in result.OutputFiles when esbuild does not write
			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				// Nothing to compile when esbuild itself failed
				if len(result.Errors) > 0 {
					return api.OnEndResult{}, nil
				}

				if err := compileOutputs(ctx, compiler, opts, result, build.InitialOptions); err != nil {
					opts.logger.Error("Bytecode compilation failed", "error", err)
					return api.OnEndResult{}, err
				}

				for _, processor := range opts.onEndProcessors {
					if err := processor(result, build.InitialOptions); err != nil {
						opts.logger.Error("End processor failed", "error", err)
						return api.OnEndResult{}, err
					}
				}
				return api.OnEndResult{}, nil
			})

			// Step 4: Register dispose processor chain - cleanup after build completion
			build.OnDispose(func() {
				cancel()
				for _, processor := range opts.onDisposeProcessors {
					// Dispose processors don't return errors as cleanup should be best-effort
					processor(build.InitialOptions)
				}
			})
		},
	}
}

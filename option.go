// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package hermesplugin

import (
	"log/slog"
	"regexp"

	"github.com/evanw/esbuild/pkg/api"
)

// OnStartProcessor is a function type for processing logic before the build starts.
// Returns an error if the processing fails, which will abort the build.
type OnStartProcessor func(buildOptions *api.BuildOptions) error

// OnEndProcessor is a function type for processing logic after the build ends.
// Processors run after the bytecode outputs have been produced, so they see the
// .hbc and .hbc.map files in result.OutputFiles when esbuild does not write to disk.
type OnEndProcessor func(result *api.BuildResult, buildOptions *api.BuildOptions) error

// OnDisposeProcessor is a function type for cleanup logic after the build is disposed.
// Dispose processors should not return errors as cleanup should be best-effort.
type OnDisposeProcessor func(buildOptions *api.BuildOptions)

// Options holds all plugin and compiler configuration.
type Options struct {
	name         string         // Plugin name for identification
	projectRoot  string         // Root used to resolve hermesc; defaults to AbsWorkingDir
	optimize     bool           // Pass -O to hermesc
	workspaceDir string         // Parent of per-build workspaces; defaults to os.TempDir()
	outputFilter *regexp.Regexp // Which esbuild outputs are compiled to bytecode
	resolver     Resolver       // Locates hermesc and the source map composer
	cache        *Cache         // Optional build memo for incremental rebuilds

	onStartProcessors   []OnStartProcessor
	onEndProcessors     []OnEndProcessor
	onDisposeProcessors []OnDisposeProcessor

	logger *slog.Logger
}

// OptionFunc is a function type for configuring options using the functional options pattern.
type OptionFunc func(*Options)

// newOptions creates a new options struct with sensible default values.
func newOptions() *Options {
	return &Options{
		name:         "hermes-plugin",
		outputFilter: regexp.MustCompile(`\.js$`),
		resolver:     &NodeModulesResolver{},
		logger:       slog.Default(),
	}
}

// WithName sets a custom plugin name for identification in esbuild logs and error messages.
func WithName(name string) OptionFunc {
	return func(opts *Options) {
		opts.name = name
	}
}

// WithProjectRoot sets the project root used to locate hermesc in node_modules.
func WithProjectRoot(projectRoot string) OptionFunc {
	return func(opts *Options) {
		opts.projectRoot = projectRoot
	}
}

// WithOptimize enables hermesc optimizations (-O).
func WithOptimize(optimize bool) OptionFunc {
	return func(opts *Options) {
		opts.optimize = optimize
	}
}

// WithWorkspaceDir sets the directory under which per-build workspaces are created.
func WithWorkspaceDir(dir string) OptionFunc {
	return func(opts *Options) {
		opts.workspaceDir = dir
	}
}

// WithOutputFilter sets the regular expression selecting which output files are compiled.
// Panics if pattern is not a valid regular expression.
func WithOutputFilter(pattern string) OptionFunc {
	return func(opts *Options) {
		opts.outputFilter = regexp.MustCompile(pattern)
	}
}

// WithResolver replaces the node_modules based lookup of hermesc and the composer.
func WithResolver(resolver Resolver) OptionFunc {
	return func(opts *Options) {
		opts.resolver = resolver
	}
}

// WithHermesc uses a fixed hermesc binary instead of searching node_modules.
func WithHermesc(path string) OptionFunc {
	return func(opts *Options) {
		opts.resolver = &StaticResolver{Executable: path}
	}
}

// WithCache memoizes builds so unchanged bundles are not recompiled on rebuild.
func WithCache(cache *Cache) OptionFunc {
	return func(opts *Options) {
		opts.cache = cache
	}
}

// WithOnStartProcessor adds an OnStartProcessor to the processor chain.
func WithOnStartProcessor(processor OnStartProcessor) OptionFunc {
	return func(opts *Options) {
		opts.onStartProcessors = append(opts.onStartProcessors, processor)
	}
}

// WithOnEndProcessor adds an OnEndProcessor to the processor chain.
func WithOnEndProcessor(processor OnEndProcessor) OptionFunc {
	return func(opts *Options) {
		opts.onEndProcessors = append(opts.onEndProcessors, processor)
	}
}

// WithOnDisposeProcessor adds an OnDisposeProcessor to the processor chain.
func WithOnDisposeProcessor(processor OnDisposeProcessor) OptionFunc {
	return func(opts *Options) {
		opts.onDisposeProcessors = append(opts.onDisposeProcessors, processor)
	}
}

// WithLogger sets a custom logger. Defaults to slog.Default() if not specified.
func WithLogger(logger *slog.Logger) OptionFunc {
	return func(opts *Options) {
		opts.logger = logger
	}
}

// normalizeEsbuildOptions makes sure esbuild emits what the bytecode step consumes:
// an external source map next to every JavaScript output and a metafile listing outputs.
func normalizeEsbuildOptions(initialOptions *api.BuildOptions, logger *slog.Logger) {
	switch initialOptions.Sourcemap {
	case api.SourceMapLinked, api.SourceMapExternal, api.SourceMapInlineAndExternal:
	default:
		logger.Debug("Enabling external source maps for bytecode composition", "sourcemap", initialOptions.Sourcemap)
		initialOptions.Sourcemap = api.SourceMapExternal
	}
	initialOptions.Metafile = true
}

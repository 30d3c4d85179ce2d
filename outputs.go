// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package hermesplugin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// bundleOutput is a JavaScript output of esbuild together with its source map.
type bundleOutput struct {
	path      string
	code      []byte
	sourceMap []byte
}

// bytecodePath maps an output path like dist/main.js to dist/main.hbc.
func bytecodePath(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".hbc"
}

// compileOutputs compiles every selected output of result to bytecode until ctx is done.
// In-memory builds get the artifacts appended to result.OutputFiles; builds that
// write to disk get them written next to their JavaScript outputs.
func compileOutputs(ctx context.Context, compiler *Compiler, opts *Options, result *api.BuildResult, buildOptions *api.BuildOptions) error {
	outputs, err := collectBundleOutputs(opts, result, buildOptions)
	if err != nil {
		return err
	}

	projectRoot := opts.projectRoot
	if projectRoot == "" {
		projectRoot = buildOptions.AbsWorkingDir
	}
	if projectRoot == "" {
		projectRoot = "."
	}

	var artifacts []api.OutputFile
	for _, output := range outputs {
		built, err := compiler.Build(ctx, BuildRequest{
			ProjectRoot: projectRoot,
			Code:        output.code,
			SourceMap:   output.sourceMap,
			Optimize:    opts.optimize,
		})
		if err != nil {
			return fmt.Errorf("failed to compile %s to bytecode: %w", output.path, err)
		}

		hbcPath := bytecodePath(output.path)
		artifacts = append(artifacts,
			api.OutputFile{Path: hbcPath, Contents: built.Bytecode},
			api.OutputFile{Path: hbcPath + ".map", Contents: built.SourceMap},
		)
		opts.logger.Debug("Compiled output to bytecode", "file", output.path, "out", hbcPath)
	}

	if !buildOptions.Write {
		result.OutputFiles = append(result.OutputFiles, artifacts...)
		return nil
	}
	for _, artifact := range artifacts {
		if err := os.MkdirAll(filepath.Dir(artifact.Path), 0755); err != nil {
			return fmt.Errorf("failed to create output dir for %s: %w", artifact.Path, err)
		}
		if err := os.WriteFile(artifact.Path, artifact.Contents, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", artifact.Path, err)
		}
	}
	return nil
}

// collectBundleOutputs pairs selected JavaScript outputs with their source maps,
// taken from result.OutputFiles when present and from disk via the metafile otherwise.
// Outputs without a source map are skipped with a warning.
func collectBundleOutputs(opts *Options, result *api.BuildResult, buildOptions *api.BuildOptions) ([]bundleOutput, error) {
	if len(result.OutputFiles) > 0 {
		files := make(map[string][]byte, len(result.OutputFiles))
		for _, file := range result.OutputFiles {
			files[file.Path] = file.Contents
		}

		var outputs []bundleOutput
		for _, file := range result.OutputFiles {
			if !opts.outputFilter.MatchString(file.Path) {
				continue
			}
			sourceMap, ok := files[file.Path+".map"]
			if !ok {
				opts.logger.Warn("Skipping output without source map", "file", file.Path)
				continue
			}
			outputs = append(outputs, bundleOutput{path: file.Path, code: file.Contents, sourceMap: sourceMap})
		}
		return outputs, nil
	}

	if result.Metafile == "" {
		return nil, nil
	}
	var metafile struct {
		Outputs map[string]json.RawMessage `json:"outputs"`
	}
	if err := json.Unmarshal([]byte(result.Metafile), &metafile); err != nil {
		return nil, &FormatError{Source: "esbuild metafile", Err: err}
	}

	paths := make([]string, 0, len(metafile.Outputs))
	for path := range metafile.Outputs {
		if opts.outputFilter.MatchString(path) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	var outputs []bundleOutput
	for _, path := range paths {
		if !filepath.IsAbs(path) && buildOptions.AbsWorkingDir != "" {
			path = filepath.Join(buildOptions.AbsWorkingDir, path)
		}
		code, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read output %s: %w", path, err)
		}
		sourceMap, err := os.ReadFile(path + ".map")
		if os.IsNotExist(err) {
			opts.logger.Warn("Skipping output without source map", "file", path)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read source map of %s: %w", path, err)
		}
		outputs = append(outputs, bundleOutput{path: path, code: code, sourceMap: sourceMap})
	}
	return outputs, nil
}

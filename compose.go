// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package hermesplugin

import (
	"context"
	"fmt"
	"os"

	"github.com/buke/esbuild-plugin-hermes-go/sourcemap"
)

// ComposeFunc composes the bundler source map with the map hermesc wrote to compilerMapPath.
// It returns the composed map serialized as JSON.
type ComposeFunc func(ctx context.Context, bundlerMap []byte, compilerMapPath string) ([]byte, error)

// ComposeSourceMaps is the built-in ComposeFunc.
// Composition is ordered [bundlerMap, compilerMap]: each bytecode segment is resolved
// through the bundler map back to the original project file.
func ComposeSourceMaps(ctx context.Context, bundlerMap []byte, compilerMapPath string) ([]byte, error) {
	compilerMapData, err := os.ReadFile(compilerMapPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read compiler source map: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bundler, err := sourcemap.Parse(bundlerMap)
	if err != nil {
		return nil, &FormatError{Source: "bundler source map", Err: err}
	}
	compiler, err := sourcemap.Parse(compilerMapData)
	if err != nil {
		return nil, &FormatError{Source: "compiler source map " + compilerMapPath, Err: err}
	}

	composed, err := sourcemap.Compose(bundler, compiler)
	if err != nil {
		return nil, fmt.Errorf("failed to compose source maps: %w", err)
	}
	return composed.Marshal()
}

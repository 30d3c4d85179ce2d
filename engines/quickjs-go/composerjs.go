// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package qjscomposer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	hermesplugin "github.com/buke/esbuild-plugin-hermes-go"
	"github.com/evanw/esbuild/pkg/api"
)

// composerPackage is the npm package whose composeSourceMaps is loaded from the host project.
const composerPackage = "metro-source-map"

// composerEntry wraps the project's composeSourceMaps so the executor can call it as
// hermesComposer.compose(bundlerMap, compilerMapPath) and receive a JSON string.
const composerEntry = `
import { composeSourceMaps } from 'metro-source-map';

globalThis.hermesComposer = {
  compose(bundlerMap, compilerMapPath) {
    if (!composerFs.fileExists(compilerMapPath)) {
      throw new Error('compiler source map not found: ' + compilerMapPath);
    }
    const compilerMap = composerFs.readFile(compilerMapPath);
    if (compilerMap === undefined) {
      throw new Error('cannot read compiler source map ' + compilerMapPath);
    }
    return JSON.stringify(composeSourceMaps([JSON.parse(bundlerMap), JSON.parse(compilerMap)]));
  },
};
`

// findComposerPackage returns the directory containing node_modules/metro-source-map,
// searching projectRoot and its ancestors.
func findComposerPackage(projectRoot string) (string, error) {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return "", err
	}
	for dir := root; ; dir = filepath.Dir(dir) {
		manifest := filepath.Join(dir, "node_modules", composerPackage, "package.json")
		if _, err := os.Stat(manifest); err == nil {
			return dir, nil
		}
		if parent := filepath.Dir(dir); parent == dir {
			break
		}
	}
	return "", &hermesplugin.MissingDependencyError{
		Package: composerPackage,
		What:    "source map composer",
		Root:    projectRoot,
	}
}

// BundleComposerScript bundles the project's metro-source-map into a single IIFE
// that QuickJS can evaluate.
func BundleComposerScript(projectRoot string) (string, error) {
	resolveDir, err := findComposerPackage(projectRoot)
	if err != nil {
		return "", err
	}

	result := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   composerEntry,
			ResolveDir: resolveDir,
			Sourcefile: "hermes-composer.js",
			Loader:     api.LoaderJS,
		},
		Bundle:   true,
		Write:    false,
		Format:   api.FormatIIFE,
		Platform: api.PlatformNode,
		Target:   api.ES2020,
		LogLevel: api.LogLevelSilent,
		Define: map[string]string{
			"process.env.NODE_ENV": `"production"`,
		},
	})
	if len(result.Errors) > 0 {
		msgs := make([]error, len(result.Errors))
		for i, message := range result.Errors {
			msgs[i] = errors.New(message.Text)
		}
		return "", fmt.Errorf("failed to bundle %s: %w", composerPackage, errors.Join(msgs...))
	}
	if len(result.OutputFiles) == 0 {
		return "", fmt.Errorf("failed to bundle %s: no output", composerPackage)
	}
	return strings.TrimSpace(string(result.OutputFiles[0].Contents)), nil
}

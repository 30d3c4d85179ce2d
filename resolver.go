// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package hermesplugin

import (
	"os"
	"path/filepath"
	"runtime"
)

// Resolver locates the environment pieces a bytecode build needs in the host project.
type Resolver interface {
	// ResolveExecutable returns the path of the hermesc binary for the host platform.
	ResolveExecutable(projectRoot string) (string, error)
	// ResolveComposer returns the function used to compose source maps.
	ResolveComposer(projectRoot string) (ComposeFunc, error)
}

// hermescPackages lists where hermesc is published inside node_modules, in lookup order.
var hermescPackages = []struct {
	pkg string
	dir string
}{
	{"hermes-compiler", "hermes-compiler/hermesc"},
	{"react-native", "react-native/sdks/hermesc"},
}

// hermescPlatformPath returns the platform-specific path of hermesc below a hermesc package dir.
func hermescPlatformPath(goos string) (string, error) {
	switch goos {
	case "darwin":
		return filepath.Join("osx-bin", "hermesc"), nil
	case "linux":
		return filepath.Join("linux64-bin", "hermesc"), nil
	case "windows":
		return filepath.Join("win64-bin", "hermesc.exe"), nil
	default:
		return "", ErrUnsupportedPlatform
	}
}

// NodeModulesResolver finds hermesc in the node_modules directories of the project
// and its ancestors. Composer overrides the built-in source map composer when set.
type NodeModulesResolver struct {
	Composer ComposeFunc
	goos     string
}

// ResolveExecutable implements Resolver.
func (r *NodeModulesResolver) ResolveExecutable(projectRoot string) (string, error) {
	goos := r.goos
	if goos == "" {
		goos = runtime.GOOS
	}
	platformPath, err := hermescPlatformPath(goos)
	if err != nil {
		return "", err
	}

	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return "", err
	}
	for dir := root; ; dir = filepath.Dir(dir) {
		for _, candidate := range hermescPackages {
			path := filepath.Join(dir, "node_modules", candidate.dir, platformPath)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}
		if parent := filepath.Dir(dir); parent == dir {
			break
		}
	}
	return "", &MissingDependencyError{Package: hermescPackages[0].pkg, What: "hermesc", Root: projectRoot}
}

// ResolveComposer implements Resolver.
func (r *NodeModulesResolver) ResolveComposer(projectRoot string) (ComposeFunc, error) {
	if r.Composer != nil {
		return r.Composer, nil
	}
	return ComposeSourceMaps, nil
}

// StaticResolver returns fixed values, e.g. a hermesc path given on the command line.
type StaticResolver struct {
	Executable string
	Composer   ComposeFunc
}

// ResolveExecutable implements Resolver.
func (r *StaticResolver) ResolveExecutable(projectRoot string) (string, error) {
	if r.Executable == "" {
		return "", &MissingDependencyError{Package: hermescPackages[0].pkg, What: "hermesc", Root: projectRoot}
	}
	return r.Executable, nil
}

// ResolveComposer implements Resolver.
func (r *StaticResolver) ResolveComposer(projectRoot string) (ComposeFunc, error) {
	if r.Composer != nil {
		return r.Composer, nil
	}
	return ComposeSourceMaps, nil
}

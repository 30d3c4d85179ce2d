// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package qjscomposer

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	hermesplugin "github.com/buke/esbuild-plugin-hermes-go"
	jsexecutor "github.com/buke/js-executor"
	quickjsengine "github.com/buke/js-executor/engines/quickjs-go"
)

// echoComposerScript returns both maps so tests can see what reached the composer.
const echoComposerScript = `
globalThis.hermesComposer = {
  compose(bundlerMap, compilerMapPath) {
    const compilerMap = composerFs.readFile(compilerMapPath);
    if (compilerMap === undefined) {
      throw new Error('cannot read compiler source map ' + compilerMapPath);
    }
    return JSON.stringify({ bundler: JSON.parse(bundlerMap), compiler: JSON.parse(compilerMap) });
  },
};
`

func startExecutor(t *testing.T, factory jsexecutor.JsEngineFactory) *jsexecutor.JsExecutor {
	t.Helper()

	jsExec, err := jsexecutor.NewExecutor(jsexecutor.WithJsEngine(factory))
	if err != nil {
		t.Fatalf("Failed to create JS executor: %v", err)
	}
	if err := jsExec.Start(); err != nil {
		t.Fatalf("Failed to start JS executor: %v", err)
	}
	t.Cleanup(func() { jsExec.Stop() })
	return jsExec
}

func writeCompilerMap(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.hbc.map")
	if err := os.WriteFile(path, []byte(`{"version":3,"sources":["index.bundle"],"names":[],"mappings":"UAEA"}`), 0644); err != nil {
		t.Fatalf("Failed to write compiler map: %v", err)
	}
	return path
}

// TestNewComposerFactory tests engine creation with custom options
func TestNewComposerFactory(t *testing.T) {
	customOptionCalled := false
	customOption := func(engine *quickjsengine.Engine) error {
		customOptionCalled = true
		return nil
	}

	factory := NewComposerFactory(echoComposerScript, customOption)
	if factory == nil {
		t.Fatal("Expected non-nil factory")
	}

	for i := 0; i < 2; i++ {
		engine, err := factory()
		if err != nil {
			t.Fatalf("Failed to create engine %d: %v", i, err)
		}
		if _, ok := engine.(*quickjsengine.Engine); !ok {
			t.Errorf("Expected QuickJS engine, got %T", engine)
		}
		engine.Close()
	}

	if !customOptionCalled {
		t.Error("Expected custom option to be called")
	}
}

// TestNewComposerFactoryInvalidScript tests that script errors surface on engine creation
func TestNewComposerFactoryInvalidScript(t *testing.T) {
	factory := NewComposerFactory("globalThis.hermesComposer = {")
	if _, err := factory(); err == nil {
		t.Error("Expected error for invalid composer script")
	}
}

// TestComposerCompose tests the round trip through the executor
func TestComposerCompose(t *testing.T) {
	jsExec := startExecutor(t, NewComposerFactory(echoComposerScript))
	composer := NewComposer(jsExec)
	compilerMapPath := writeCompilerMap(t)

	t.Run("success", func(t *testing.T) {
		out, err := composer.Compose(context.Background(), []byte(`{"version":3,"sources":["a.js"]}`), compilerMapPath)
		if err != nil {
			t.Fatalf("Compose failed: %v", err)
		}

		var got struct {
			Bundler  map[string]any `json:"bundler"`
			Compiler map[string]any `json:"compiler"`
		}
		if err := json.Unmarshal(out, &got); err != nil {
			t.Fatalf("Composer returned invalid JSON: %v", err)
		}
		if got.Compiler["mappings"] != "UAEA" {
			t.Errorf("Expected compiler map to be read from disk, got %v", got.Compiler)
		}
		if sources, ok := got.Bundler["sources"].([]any); !ok || len(sources) != 1 || sources[0] != "a.js" {
			t.Errorf("Expected bundler map to be passed through, got %v", got.Bundler)
		}
	})

	t.Run("missing_compiler_map", func(t *testing.T) {
		if _, err := composer.Compose(context.Background(), []byte(`{}`), "/nonexistent/index.hbc.map"); err == nil {
			t.Error("Expected error for missing compiler map")
		}
	})

	t.Run("cancelled_context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := composer.Compose(ctx, []byte(`{}`), compilerMapPath); !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	})
}

// TestFindComposerPackage tests the node_modules lookup
func TestFindComposerPackage(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		_, err := findComposerPackage(t.TempDir())
		var missing *hermesplugin.MissingDependencyError
		if !errors.As(err, &missing) {
			t.Fatalf("Expected MissingDependencyError, got %v", err)
		}
		if missing.Package != "metro-source-map" {
			t.Errorf("Expected metro-source-map, got %s", missing.Package)
		}
	})

	t.Run("found_in_ancestor", func(t *testing.T) {
		root := writeFakeMetro(t)
		nested := filepath.Join(root, "apps", "mobile")
		if err := os.MkdirAll(nested, 0755); err != nil {
			t.Fatalf("Failed to create nested dir: %v", err)
		}
		dir, err := findComposerPackage(nested)
		if err != nil {
			t.Fatalf("findComposerPackage failed: %v", err)
		}
		if dir != root {
			t.Errorf("Expected %s, got %s", root, dir)
		}
	})
}

// writeFakeMetro creates a project whose metro-source-map returns the last map unchanged.
func writeFakeMetro(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to resolve temp dir: %v", err)
	}
	pkgDir := filepath.Join(root, "node_modules", "metro-source-map")
	if err := os.MkdirAll(pkgDir, 0755); err != nil {
		t.Fatalf("Failed to create package dir: %v", err)
	}
	files := map[string]string{
		"package.json": `{"name":"metro-source-map","version":"0.0.0-test","main":"index.js"}`,
		"index.js":     `exports.composeSourceMaps = function (maps) { return Object.assign({}, maps[maps.length - 1], { x_composed: maps.length }); };`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(pkgDir, name), []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	return root
}

// TestResolverComposesWithProjectPackage bundles the project's composer and runs it
func TestResolverComposesWithProjectPackage(t *testing.T) {
	root := writeFakeMetro(t)
	resolver := NewResolver()
	defer resolver.Close()

	compose, err := resolver.ResolveComposer(root)
	if err != nil {
		t.Fatalf("ResolveComposer failed: %v", err)
	}

	out, err := compose(context.Background(), []byte(`{"version":3,"sources":["a.js"],"names":[],"mappings":""}`), writeCompilerMap(t))
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("Composed map is not JSON: %v", err)
	}
	if got["x_composed"] != float64(2) || got["mappings"] != "UAEA" {
		t.Errorf("Unexpected composed map: %v", got)
	}

	if _, err := compose(context.Background(), []byte(`{}`), filepath.Join(root, "missing.hbc.map")); err == nil {
		t.Error("Expected error for a compiler map that does not exist")
	}

	// A second lookup reuses the running executor
	if _, err := resolver.ResolveComposer(root); err != nil {
		t.Fatalf("Second ResolveComposer failed: %v", err)
	}
	if len(resolver.executors) != 1 {
		t.Errorf("Expected one executor, got %d", len(resolver.executors))
	}
}

// TestResolverMissingPackage tests the missing dependency error
func TestResolverMissingPackage(t *testing.T) {
	resolver := NewResolver()
	defer resolver.Close()

	_, err := resolver.ResolveComposer(t.TempDir())
	var missing *hermesplugin.MissingDependencyError
	if !errors.As(err, &missing) {
		t.Fatalf("Expected MissingDependencyError, got %v", err)
	}
}

// TestBundleComposerScript tests that the bundled script installs the service
func TestBundleComposerScript(t *testing.T) {
	script, err := BundleComposerScript(writeFakeMetro(t))
	if err != nil {
		t.Fatalf("BundleComposerScript failed: %v", err)
	}
	if len(script) == 0 {
		t.Fatal("Expected non-empty script")
	}

	factory := NewComposerFactory(script)
	engine, err := factory()
	if err != nil {
		t.Fatalf("Bundled script failed to load: %v", err)
	}
	defer engine.Close()

	qjs := engine.(*quickjsengine.Engine)
	result := qjs.Ctx.Eval("typeof hermesComposer.compose")
	defer result.Free()
	if result.String() != "function" {
		t.Errorf("Expected hermesComposer.compose to be a function, got %s", result.String())
	}
}

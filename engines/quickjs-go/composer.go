// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package qjscomposer composes source maps with the metro-source-map package
// installed in the host project, running it inside QuickJS.
package qjscomposer

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	hermesplugin "github.com/buke/esbuild-plugin-hermes-go"
	jsexecutor "github.com/buke/js-executor"
	quickjsengine "github.com/buke/js-executor/engines/quickjs-go"
	quickjs "github.com/buke/quickjs-go"
	"github.com/rs/xid"
)

// composeService is the global function the composer script installs.
const composeService = "hermesComposer.compose"

// NewComposerFactory creates a JsEngineFactory with the file system helpers and script loaded.
// script must install globalThis.hermesComposer.compose; see BundleComposerScript.
// The script is compiled to QuickJS bytecode once per factory.
func NewComposerFactory(script string, options ...quickjsengine.Option) jsexecutor.JsEngineFactory {
	var (
		once     sync.Once
		bytecode []byte
		compErr  error
	)
	loadComposerModule := func(jse *quickjsengine.Engine) error {
		once.Do(func() {
			bytecode, compErr = jse.Ctx.Compile(script, quickjs.EvalFileName("hermes-composer.js"))
		})
		if compErr != nil {
			return compErr
		}
		ret := jse.Ctx.EvalBytecode(bytecode)
		defer ret.Free()
		if ret.IsException() {
			return jse.Ctx.Exception()
		}
		return nil
	}

	options = append(options, loadFsModule, loadComposerModule)
	return quickjsengine.NewFactory(options...)
}

// Composer calls a composer script through a running JsExecutor.
type Composer struct {
	jsExecutor *jsexecutor.JsExecutor
}

// NewComposer wraps a started executor whose engines come from NewComposerFactory.
func NewComposer(jsExecutor *jsexecutor.JsExecutor) *Composer {
	return &Composer{jsExecutor: jsExecutor}
}

// Compose implements hermesplugin.ComposeFunc.
func (c *Composer) Compose(ctx context.Context, bundlerMap []byte, compilerMapPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	jsResponse, err := c.jsExecutor.Execute(&jsexecutor.JsRequest{
		Id:      xid.New().String(),
		Service: composeService,
		Args:    []interface{}{string(bundlerMap), compilerMapPath},
	})
	if err != nil {
		return nil, fmt.Errorf("source map composer failed: %w", err)
	}
	composed, ok := jsResponse.Result.(string)
	if !ok {
		return nil, fmt.Errorf("invalid response from source map composer: %T", jsResponse.Result)
	}
	return []byte(composed), nil
}

// Resolver finds hermesc like hermesplugin.NodeModulesResolver and composes source maps
// with the project's own metro-source-map. Executors are started lazily, one per
// project root, and stopped by Close.
type Resolver struct {
	hermesplugin.NodeModulesResolver

	mu        sync.Mutex
	executors map[string]*jsexecutor.JsExecutor
}

// NewResolver returns a Resolver with no executors started yet.
func NewResolver() *Resolver {
	return &Resolver{executors: make(map[string]*jsexecutor.JsExecutor)}
}

// ResolveComposer implements hermesplugin.Resolver.
// It fails with a MissingDependencyError when metro-source-map is not installed.
func (r *Resolver) ResolveComposer(projectRoot string) (hermesplugin.ComposeFunc, error) {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.executors == nil {
		r.executors = make(map[string]*jsexecutor.JsExecutor)
	}
	if jsExec, ok := r.executors[root]; ok {
		return NewComposer(jsExec).Compose, nil
	}

	script, err := BundleComposerScript(root)
	if err != nil {
		return nil, err
	}
	jsExec, err := jsexecutor.NewExecutor(
		jsexecutor.WithJsEngine(NewComposerFactory(script)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create source map composer: %w", err)
	}
	if err := jsExec.Start(); err != nil {
		return nil, fmt.Errorf("failed to start source map composer: %w", err)
	}
	r.executors[root] = jsExec
	return NewComposer(jsExec).Compose, nil
}

// Close stops every executor started by ResolveComposer.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for root, jsExec := range r.executors {
		jsExec.Stop()
		delete(r.executors, root)
	}
}

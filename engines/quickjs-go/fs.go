// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package qjscomposer

import (
	"os"

	quickjsengine "github.com/buke/js-executor/engines/quickjs-go"
	"github.com/buke/quickjs-go"
)

// fileExistsFunc checks if a file exists at the given path.
func fileExistsFunc(ctx *quickjs.Context, this *quickjs.Value, args []*quickjs.Value) *quickjs.Value {
	if len(args) == 0 {
		return ctx.Bool(false)
	}
	if _, err := os.Stat(args[0].String()); err != nil {
		return ctx.Bool(false)
	}
	return ctx.Bool(true)
}

// readFileFunc reads the content of a file and returns it as a string.
// If the file cannot be read, returns undefined.
func readFileFunc(ctx *quickjs.Context, this *quickjs.Value, args []*quickjs.Value) *quickjs.Value {
	if len(args) == 0 {
		return ctx.Undefined()
	}
	data, err := os.ReadFile(args[0].String())
	if err != nil {
		return ctx.Undefined()
	}
	return ctx.String(string(data))
}

// loadFsModule injects a 'composerFs' object into the JS context.
// The composer reads the hermesc source map through it instead of receiving it as an argument.
func loadFsModule(jse *quickjsengine.Engine) error {
	globalsObj := jse.Ctx.Globals()
	composerFsObj := jse.Ctx.Object()
	composerFsObj.Set("fileExists", jse.Ctx.Function(fileExistsFunc))
	composerFsObj.Set("readFile", jse.Ctx.Function(readFileFunc))
	globalsObj.Set("composerFs", composerFsObj)
	return nil
}

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package hermesplugin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/xid"
)

// Fixed file names inside a build workspace.
const (
	bundleFileName      = "index.bundle"
	bundleMapFileName   = "index.bundle.map"
	bytecodeFileName    = "index.hbc"
	bytecodeMapFileName = "index.hbc.map"
)

// removeAll deletes a released workspace; tests swap it to simulate release failures.
var removeAll = os.RemoveAll

// Workspace is a temporary directory owned by exactly one bytecode build.
type Workspace struct {
	Dir string
}

// acquireWorkspace creates a fresh workspace under baseDir (os.TempDir() when empty).
// The directory name embeds an xid, which carries the pid and a process-wide counter,
// so concurrent builds in one or many processes never share a directory.
func acquireWorkspace(baseDir string) (*Workspace, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	dir := filepath.Join(baseDir, "hermes-build-"+xid.New().String())
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace base dir %s: %w", baseDir, err)
	}
	if err := os.Mkdir(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create workspace %s: %w", dir, err)
	}
	return &Workspace{Dir: dir}, nil
}

// Path returns the absolute path of name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Release recursively removes the workspace.
func (w *Workspace) Release() error {
	if err := removeAll(w.Dir); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", w.Dir, err)
	}
	return nil
}

// withWorkspace runs fn inside a freshly acquired workspace and always releases it,
// whether fn succeeds, fails, panics or ctx is cancelled.
// A release failure after success is logged only; after a failure it is appended
// behind the build error so it never hides it.
func withWorkspace(ctx context.Context, baseDir string, logger *slog.Logger, fn func(ctx context.Context, ws *Workspace) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	ws, err := acquireWorkspace(baseDir)
	if err != nil {
		return err
	}
	logger.Debug("Acquired build workspace", "dir", ws.Dir)

	defer func() {
		releaseErr := ws.Release()
		if releaseErr == nil {
			return
		}
		logger.Warn("Failed to release build workspace", "error", releaseErr, "dir", ws.Dir)
		if err != nil {
			err = multierror.Append(err, releaseErr)
		}
	}()

	return fn(ctx, ws)
}

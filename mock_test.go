// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package hermesplugin

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// StubMode selects what the stub hermesc does after recording its arguments.
type StubMode string

const (
	// StubCopy copies the bundle to the bytecode path and writes a compiler source map.
	StubCopy StubMode = "copy"
	// StubHeader writes a 12 byte bytecode header with version 5 and a compiler source map.
	StubHeader StubMode = "header"
	// StubFail prints a diagnostic and exits with code 3.
	StubFail StubMode = "fail"
	// StubHang blocks until it is killed.
	StubHang StubMode = "hang"
	// StubBadMap copies the bundle but writes a compiler source map that is not JSON.
	StubBadMap StubMode = "badmap"
	// StubNoOutput exits successfully without writing anything.
	StubNoOutput StubMode = "nooutput"
)

// stubCompilerMap maps bytecode offset 10 to bundle line 3, column 0.
const stubCompilerMap = `{"version":3,"sources":["index.bundle"],"names":[],"mappings":"UAEA"}`

// testBundlerMap maps bundle line 3, column 0 to a.js line 1, column 0.
const testBundlerMap = `{"version":3,"sources":["a.js"],"names":[],"mappings":";;AAAA"}`

const stubPrologue = `#!/bin/sh
dir=$(dirname "$0")
printf '%s\n' "$@" > "$dir/args.txt"
out=""
in=""
while [ $# -gt 0 ]; do
  case "$1" in
    -out) out="$2"; shift 2 ;;
    -emit-binary|-output-source-map|-O) shift ;;
    *) in="$1"; shift ;;
  esac
done
dirname "$out" > "$dir/workspace.txt"
`

var stubBodies = map[StubMode]string{
	StubCopy:     `cp "$in" "$out"` + "\nprintf '%s' '" + stubCompilerMap + `' > "$out.map"` + "\n",
	StubHeader:   `printf '\306\037\274\003\301\003\031\037\005\000\000\000' > "$out"` + "\nprintf '%s' '" + stubCompilerMap + `' > "$out.map"` + "\n",
	StubFail:     "echo \"error: unexpected token\" >&2\nexit 3\n",
	StubHang:     "exec sleep 30\n",
	StubBadMap:   `cp "$in" "$out"` + "\nprintf 'not json' > \"$out.map\"\n",
	StubNoOutput: "exit 0\n",
}

// StubHermesc is a fake hermesc written as a POSIX shell script.
type StubHermesc struct {
	Path string
	dir  string
}

// newStubHermesc writes a stub compiler into its own temp dir.
func newStubHermesc(t *testing.T, mode StubMode) *StubHermesc {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub hermesc is a shell script")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "hermesc")
	if err := os.WriteFile(path, []byte(stubPrologue+stubBodies[mode]), 0755); err != nil {
		t.Fatalf("Failed to write stub hermesc: %v", err)
	}
	return &StubHermesc{Path: path, dir: dir}
}

// Args returns the arguments of the last invocation, or nil if it never ran.
func (s *StubHermesc) Args(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(s.dir, "args.txt"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("Failed to read stub args: %v", err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

// Workspace returns the workspace directory of the last invocation.
func (s *StubHermesc) Workspace(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(s.dir, "workspace.txt"))
	if err != nil {
		t.Fatalf("Failed to read stub workspace: %v", err)
	}
	return strings.TrimSpace(string(data))
}

// Reset forgets the last invocation.
func (s *StubHermesc) Reset(t *testing.T) {
	t.Helper()
	for _, name := range []string{"args.txt", "workspace.txt"} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			t.Fatalf("Failed to reset stub: %v", err)
		}
	}
}

func assertNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected %s to be removed, stat error: %v", path, err)
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", dir, err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected %s to be empty, found %d entries", dir, len(entries))
	}
}

func testRequest(optimize bool) BuildRequest {
	return BuildRequest{
		ProjectRoot: ".",
		Code:        []byte("var a = 1;\nvar b = 2;\nconsole.log(a + b);\n"),
		SourceMap:   []byte(testBundlerMap),
		Optimize:    optimize,
	}
}

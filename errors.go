// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package hermesplugin

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidBundle is returned when a file does not start with the Hermes bytecode magic.
var ErrInvalidBundle = errors.New("invalid hermes bytecode bundle")

// ErrUnsupportedPlatform is returned when no hermesc binary is published for the host platform.
var ErrUnsupportedPlatform = errors.New("unsupported host platform for hermesc")

// MissingDependencyError reports a package that must be installed in the host project.
type MissingDependencyError struct {
	Package string // npm package that provides the missing piece
	What    string // what was looked up, e.g. "hermesc" or "source map composer"
	Root    string // project root the lookup started from
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("cannot find %s in %s: install the %q package in your project (npm install --save-dev %s)",
		e.What, e.Root, e.Package, e.Package)
}

// ProcessError reports a hermesc invocation that could not be spawned or exited non-zero.
type ProcessError struct {
	Command  string
	Args     []string
	ExitCode int    // -1 when the process never started or was killed
	Output   string // combined stdout and stderr
	Err      error
}

func (e *ProcessError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s", e.Command, strings.Join(e.Args, " "))
	if e.ExitCode >= 0 {
		fmt.Fprintf(&sb, " exited with code %d", e.ExitCode)
	} else {
		fmt.Fprintf(&sb, " did not complete: %v", e.Err)
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		sb.WriteString("\n")
		sb.WriteString(out)
	}
	return sb.String()
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// FormatError reports malformed input such as a source map that is not valid JSON.
type FormatError struct {
	Source string // which input was malformed
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed %s: %v", e.Source, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package hermesplugin

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Hermes bytecode files start with an 8 byte magic followed by a little-endian uint32 version.
const (
	magicSize  = 8
	headerSize = 12
)

var bytecodeMagic = []byte{0xc6, 0x1f, 0xbc, 0x03, 0xc1, 0x03, 0x19, 0x1f}

// readHeader reads up to headerSize bytes from the start of file.
// A short file is not an error here; callers decide what a short header means.
func readHeader(file string) ([]byte, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, headerSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return buf[:n], nil
}

// HasBytecodeMagic reports whether data starts with the Hermes bytecode magic.
func HasBytecodeMagic(data []byte) bool {
	return len(data) >= magicSize && bytes.Equal(data[:magicSize], bytecodeMagic)
}

// BytecodeVersion decodes the bytecode version from an in-memory header.
func BytecodeVersion(data []byte) (uint32, error) {
	if !HasBytecodeMagic(data) {
		return 0, ErrInvalidBundle
	}
	if len(data) < headerSize {
		return 0, fmt.Errorf("%w: header is %d bytes, want %d", ErrInvalidBundle, len(data), headerSize)
	}
	return binary.LittleEndian.Uint32(data[magicSize:headerSize]), nil
}

// IsBytecodeBundle reports whether file is a Hermes bytecode bundle.
// Files without the magic, including files shorter than it, return false with a nil error.
func IsBytecodeBundle(file string) (bool, error) {
	header, err := readHeader(file)
	if err != nil {
		return false, err
	}
	return HasBytecodeMagic(header), nil
}

// GetBytecodeVersion returns the bytecode version stored in the header of file.
func GetBytecodeVersion(file string) (uint32, error) {
	header, err := readHeader(file)
	if err != nil {
		return 0, err
	}
	version, err := BytecodeVersion(header)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", file, err)
	}
	return version, nil
}

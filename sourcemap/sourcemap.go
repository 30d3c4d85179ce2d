// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package sourcemap reads, queries and composes version 3 source maps.
//
// Public positions follow the usual JavaScript tooling convention:
// lines are 1-based and columns are 0-based. Segment fields are 0-based
// for both, as they are in the encoded mappings.
package sourcemap

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Map is a version 3 source map.
type Map struct {
	Version        int       `json:"version"`
	File           string    `json:"file,omitempty"`
	SourceRoot     string    `json:"sourceRoot,omitempty"`
	Sources        []string  `json:"sources"`
	SourcesContent []*string `json:"sourcesContent,omitempty"`
	Names          []string  `json:"names"`
	Mappings       string    `json:"mappings"`

	segments [][]Segment
}

// Segment is one decoded mapping segment with absolute field values.
type Segment struct {
	GeneratedColumn int
	HasSource       bool
	Source          int
	OriginalLine    int
	OriginalColumn  int
	HasName         bool
	Name            int
}

// Position is an original location resolved through a map.
type Position struct {
	Source string
	Line   int // 1-based
	Column int // 0-based
	Name   string
}

// Parse decodes a JSON source map and validates its mappings.
func Parse(data []byte) (*Map, error) {
	var raw struct {
		Map
		Sections json.RawMessage `json:"sections"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if len(raw.Sections) > 0 {
		return nil, errors.New("indexed source maps are not supported")
	}
	m := raw.Map
	if m.Version != 3 {
		return nil, fmt.Errorf("unsupported source map version %d", m.Version)
	}
	segments, err := DecodeMappings(m.Mappings)
	if err != nil {
		return nil, err
	}
	m.segments = segments
	for line, segs := range segments {
		for _, seg := range segs {
			if seg.HasSource && (seg.Source < 0 || seg.Source >= len(m.Sources)) {
				return nil, fmt.Errorf("mapping on line %d references source %d of %d", line+1, seg.Source, len(m.Sources))
			}
			if seg.HasName && (seg.Name < 0 || seg.Name >= len(m.Names)) {
				return nil, fmt.Errorf("mapping on line %d references name %d of %d", line+1, seg.Name, len(m.Names))
			}
		}
	}
	return &m, nil
}

// Marshal encodes m as JSON.
func (m *Map) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Segments returns the decoded mappings, one slice per generated line.
func (m *Map) Segments() ([][]Segment, error) {
	if m.segments == nil {
		segments, err := DecodeMappings(m.Mappings)
		if err != nil {
			return nil, err
		}
		m.segments = segments
	}
	return m.segments, nil
}

// Lookup returns the original position for a generated line (1-based) and column (0-based).
// The segment with the greatest column not after the requested column wins.
func (m *Map) Lookup(line, column int) (Position, bool) {
	seg, ok := m.lookupSegment(line-1, column)
	if !ok || !seg.HasSource {
		return Position{}, false
	}
	pos := Position{
		Source: m.Sources[seg.Source],
		Line:   seg.OriginalLine + 1,
		Column: seg.OriginalColumn,
	}
	if seg.HasName {
		pos.Name = m.Names[seg.Name]
	}
	return pos, true
}

func (m *Map) lookupSegment(line, column int) (Segment, bool) {
	segments, err := m.Segments()
	if err != nil || line < 0 || line >= len(segments) {
		return Segment{}, false
	}
	segs := segments[line]
	i := sort.Search(len(segs), func(i int) bool { return segs[i].GeneratedColumn > column })
	if i == 0 {
		return Segment{}, false
	}
	return segs[i-1], true
}

// DecodeMappings decodes a VLQ mappings string into absolute segments.
func DecodeMappings(mappings string) ([][]Segment, error) {
	lines := [][]Segment{}
	var current []Segment
	var source, originalLine, originalColumn, name int
	generatedColumn := 0

	pos := 0
	for pos <= len(mappings) {
		if pos == len(mappings) || mappings[pos] == ';' {
			sort.SliceStable(current, func(i, j int) bool {
				return current[i].GeneratedColumn < current[j].GeneratedColumn
			})
			lines = append(lines, current)
			current = nil
			generatedColumn = 0
			pos++
			continue
		}
		if mappings[pos] == ',' {
			pos++
			continue
		}

		var fields [5]int
		n := 0
		for pos < len(mappings) && mappings[pos] != ',' && mappings[pos] != ';' {
			if n == len(fields) {
				return nil, fmt.Errorf("mapping segment at offset %d has more than 5 fields", pos)
			}
			value, next, err := decodeVLQ(mappings, pos)
			if err != nil {
				return nil, fmt.Errorf("mapping at offset %d: %w", pos, err)
			}
			fields[n] = value
			n++
			pos = next
		}

		generatedColumn += fields[0]
		seg := Segment{GeneratedColumn: generatedColumn}
		switch n {
		case 1:
		case 4, 5:
			source += fields[1]
			originalLine += fields[2]
			originalColumn += fields[3]
			seg.HasSource = true
			seg.Source = source
			seg.OriginalLine = originalLine
			seg.OriginalColumn = originalColumn
			if n == 5 {
				name += fields[4]
				seg.HasName = true
				seg.Name = name
			}
		default:
			return nil, fmt.Errorf("mapping segment before offset %d has %d fields", pos, n)
		}
		current = append(current, seg)
	}
	return lines, nil
}

// EncodeMappings encodes absolute segments into a VLQ mappings string.
func EncodeMappings(lines [][]Segment) string {
	var sb strings.Builder
	var source, originalLine, originalColumn, name int
	for i, segs := range lines {
		if i > 0 {
			sb.WriteByte(';')
		}
		generatedColumn := 0
		for j, seg := range segs {
			if j > 0 {
				sb.WriteByte(',')
			}
			encodeVLQ(&sb, seg.GeneratedColumn-generatedColumn)
			generatedColumn = seg.GeneratedColumn
			if !seg.HasSource {
				continue
			}
			encodeVLQ(&sb, seg.Source-source)
			encodeVLQ(&sb, seg.OriginalLine-originalLine)
			encodeVLQ(&sb, seg.OriginalColumn-originalColumn)
			source, originalLine, originalColumn = seg.Source, seg.OriginalLine, seg.OriginalColumn
			if seg.HasName {
				encodeVLQ(&sb, seg.Name-name)
				name = seg.Name
			}
		}
	}
	return sb.String()
}

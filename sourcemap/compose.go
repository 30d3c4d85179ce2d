// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package sourcemap

import (
	"errors"
)

// Compose chains source maps into one.
// maps are ordered from the one closest to the original sources to the one
// closest to the final artifact, e.g. [bundlerMap, compilerMap]. The result
// keeps every segment of the last map; each original reference is resolved
// through the preceding maps, and references they cannot resolve pass through
// unchanged.
func Compose(maps ...*Map) (*Map, error) {
	if len(maps) == 0 {
		return nil, errors.New("no source maps to compose")
	}
	result := maps[len(maps)-1]
	for i := len(maps) - 2; i >= 0; i-- {
		composed, err := composePair(maps[i], result)
		if err != nil {
			return nil, err
		}
		result = composed
	}
	return result, nil
}

// composePair resolves every segment of outer through inner.
func composePair(inner, outer *Map) (*Map, error) {
	if _, err := inner.Segments(); err != nil {
		return nil, err
	}
	outerLines, err := outer.Segments()
	if err != nil {
		return nil, err
	}

	b := newBuilder()
	lines := make([][]Segment, len(outerLines))
	for i, segs := range outerLines {
		out := make([]Segment, 0, len(segs))
		for _, seg := range segs {
			if !seg.HasSource {
				out = append(out, Segment{GeneratedColumn: seg.GeneratedColumn})
				continue
			}

			composed := Segment{GeneratedColumn: seg.GeneratedColumn, HasSource: true}
			if orig, ok := inner.lookupSegment(seg.OriginalLine, seg.OriginalColumn); ok && orig.HasSource {
				composed.Source = b.source(inner, orig.Source)
				composed.OriginalLine = orig.OriginalLine
				composed.OriginalColumn = orig.OriginalColumn
				switch {
				case orig.HasName:
					composed.HasName, composed.Name = true, b.name(inner.Names[orig.Name])
				case seg.HasName:
					composed.HasName, composed.Name = true, b.name(outer.Names[seg.Name])
				}
			} else {
				composed.Source = b.source(outer, seg.Source)
				composed.OriginalLine = seg.OriginalLine
				composed.OriginalColumn = seg.OriginalColumn
				if seg.HasName {
					composed.HasName, composed.Name = true, b.name(outer.Names[seg.Name])
				}
			}
			out = append(out, composed)
		}
		lines[i] = out
	}

	m := &Map{
		Version:  3,
		File:     outer.File,
		Sources:  b.sources,
		Names:    b.names,
		Mappings: EncodeMappings(lines),
		segments: lines,
	}
	if b.hasContent {
		m.SourcesContent = b.contents
	}
	return m, nil
}

// builder deduplicates sources and names of a composed map.
type builder struct {
	sources     []string
	contents    []*string
	hasContent  bool
	sourceIndex map[string]int
	names       []string
	nameIndex   map[string]int
}

func newBuilder() *builder {
	return &builder{
		sources:     []string{},
		names:       []string{},
		sourceIndex: make(map[string]int),
		nameIndex:   make(map[string]int),
	}
}

func (b *builder) source(m *Map, index int) int {
	name := m.Sources[index]
	if m.SourceRoot != "" {
		name = joinSourceRoot(m.SourceRoot, name)
	}
	if i, ok := b.sourceIndex[name]; ok {
		return i
	}
	var content *string
	if index < len(m.SourcesContent) {
		content = m.SourcesContent[index]
	}
	if content != nil {
		b.hasContent = true
	}
	b.sourceIndex[name] = len(b.sources)
	b.sources = append(b.sources, name)
	b.contents = append(b.contents, content)
	return len(b.sources) - 1
}

func (b *builder) name(name string) int {
	if i, ok := b.nameIndex[name]; ok {
		return i
	}
	b.nameIndex[name] = len(b.names)
	b.names = append(b.names, name)
	return len(b.names) - 1
}

func joinSourceRoot(root, source string) string {
	if root[len(root)-1] == '/' {
		return root + source
	}
	return root + "/" + source
}

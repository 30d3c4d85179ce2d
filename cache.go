// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package hermesplugin

import (
	"bytes"
	"sync"

	"github.com/cespare/xxhash"
)

// Cache memoizes bytecode builds by the hash of their request so that
// incremental esbuild rebuilds with unchanged output skip hermesc.
// Results are copied in and out, so callers may modify what they receive.
type Cache struct {
	mu      sync.Mutex
	size    int
	entries map[uint64]*BuildResult
	order   []uint64
}

// NewCache returns a cache holding at most size results; size <= 0 means 16.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = 16
	}
	return &Cache{
		size:    size,
		entries: make(map[uint64]*BuildResult),
	}
}

// cacheKey hashes every BuildRequest field that influences the output.
func cacheKey(req BuildRequest) uint64 {
	h := xxhash.New()
	h.Write([]byte(req.ProjectRoot))
	h.Write([]byte{0})
	h.Write(req.Code)
	h.Write([]byte{0})
	h.Write(req.SourceMap)
	if req.Optimize {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	return h.Sum64()
}

func (c *Cache) get(key uint64) (*BuildResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return result.clone(), true
}

func (c *Cache) put(key uint64, result *BuildResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return
	}
	for len(c.order) >= c.size {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
	c.entries[key] = result.clone()
	c.order = append(c.order, key)
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (r *BuildResult) clone() *BuildResult {
	return &BuildResult{
		Bytecode:  bytes.Clone(r.Bytecode),
		SourceMap: bytes.Clone(r.SourceMap),
	}
}

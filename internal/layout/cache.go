package layout

import (
	"sync"

	"l4idl/internal/idl"
	"l4idl/internal/target"
)

// Key identifies one plan. Target carries the whole size model, so plans
// made under different capacity overrides never share an entry.
type Key struct {
	Digest    string        `msgpack:"digest"`
	Target    target.Target `msgpack:"target"`
	Interface string        `msgpack:"interface"`
	Operation string        `msgpack:"operation"`
	Dir       idl.Direction `msgpack:"dir"`
	Shape     Shape         `msgpack:"shape"`
}

// Cache memoises plans across generation passes. Cached layouts are shared
// and must not be modified.
type Cache interface {
	Get(Key) (*Layout, bool)
	Put(Key, *Layout)
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[Key]*Layout
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[Key]*Layout)}
}

func (c *MemoryCache) Get(k Key) (*Layout, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.entries[k]
	return l, ok
}

func (c *MemoryCache) Put(k Key, l *Layout) {
	c.mu.Lock()
	c.entries[k] = l
	c.mu.Unlock()
}

// Len returns the number of cached plans.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

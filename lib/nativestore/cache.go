package nativestore

import (
	"sync"
)

// ArrayCache holds decoded arrays by key.
//
// The cache owns the slices it is given: the Store never hands them to
// callers, and never modifies them after Put.
type ArrayCache interface {
	// Get returns the array cached for key, if any.
	Get(key string) ([]string, bool)
	// Put replaces the array cached for key.
	Put(key string, items []string)
	// Evict removes key, if present.
	Evict(key string)
	// Flush removes every entry.
	Flush()
	// Len returns the number of entries.
	Len() int
}

// MapCache is an unbounded ArrayCache safe for concurrent use.
type MapCache struct {
	lock    sync.RWMutex
	entries map[string][]string
}

var _ ArrayCache = (*MapCache)(nil)

func NewMapCache() *MapCache {
	return &MapCache{entries: make(map[string][]string)}
}

func (c *MapCache) Get(key string) ([]string, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	items, ok := c.entries[key]
	return items, ok
}

func (c *MapCache) Put(key string, items []string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.entries[key] = items
}

func (c *MapCache) Evict(key string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.entries, key)
}

func (c *MapCache) Flush() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.entries = make(map[string][]string)
}

func (c *MapCache) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.entries)
}

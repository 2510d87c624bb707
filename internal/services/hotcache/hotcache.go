// Package hotcache provides a small bounded TTL cache shared inside one
// process. It collapses duplicate vendor fetches within a request fan-out
// and holds batch-prefetched quotes, without touching disk.
package hotcache

import (
	"sync"
	"time"
)

// DefaultTTL keeps entries just long enough to cover one request fan-out.
const DefaultTTL = 45 * time.Second

// DefaultMaxEntries bounds the cache; a batch prefetch of several hundred
// symbols fits comfortably.
const DefaultMaxEntries = 2048

type entry struct {
	value   interface{}
	written time.Time
}

// Cache is a mutex-guarded TTL map with a hard entry cap.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]entry
	ttl        time.Duration
	maxEntries int
}

// New creates a cache. Non-positive arguments fall back to the defaults.
func New(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		entries:    make(map[string]entry),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// Get returns the cached value when present and fresh. Stale entries are
// evicted on read.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Since(e.written) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores a value. When the cache is full and the key is new, expired
// entries are dropped first; if none have expired the oldest entry goes.
func (c *Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = entry{value: value, written: time.Now()}
}

// evictLocked makes room for one new entry. Caller holds the lock.
func (c *Cache) evictLocked() {
	var oldestKey string
	var oldestAt time.Time
	dropped := false

	for key, e := range c.entries {
		if time.Since(e.written) > c.ttl {
			delete(c.entries, key)
			dropped = true
			continue
		}
		if oldestKey == "" || e.written.Before(oldestAt) {
			oldestKey = key
			oldestAt = e.written
		}
	}
	if !dropped && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Delete removes a key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Flush drops every entry.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len reports the number of stored entries, including any not yet
// evicted stale ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

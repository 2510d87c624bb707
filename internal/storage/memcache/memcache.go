package memcache

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/aestimo/internal/interfaces"
)

// Cache is an in-memory KVCache used by tests and single-shot tools.
// Values are stored as marshaled JSON so Get/Set round-trip exactly like
// the disk implementation.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	data    []byte
	written time.Time
}

// New returns an empty in-memory cache.
func New() *Cache {
	return &Cache{entries: make(map[string]entry)}
}

// Get decodes the stored value into out iff the entry is younger than maxAge.
func (c *Cache) Get(key string, maxAge time.Duration, out interface{}) error {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return interfaces.ErrCacheMiss
	}
	if maxAge > 0 && time.Since(e.written) > maxAge {
		return interfaces.ErrCacheMiss
	}
	if err := json.Unmarshal(e.data, out); err != nil {
		return interfaces.ErrCacheMiss
	}
	return nil
}

// Set stores the marshaled value.
func (c *Cache) Set(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.entries[key] = entry{data: data, written: time.Now()}
	c.mu.Unlock()
	return nil
}

// Delete removes a key. Absent keys are not an error.
func (c *Cache) Delete(key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Keys returns all keys currently stored.
func (c *Cache) Keys() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	return keys, nil
}

// ClearMatching removes every entry whose key contains all substrings.
func (c *Cache) ClearMatching(substrings ...string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		match := true
		for _, sub := range substrings {
			if sub == "" {
				continue
			}
			if !strings.Contains(key, sub) {
				match = false
				break
			}
		}
		if match {
			delete(c.entries, key)
			removed++
		}
	}
	return removed, nil
}

package diskcache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/interfaces"
)

const fileExt = ".json"

// Cache stores one JSON file per key under a directory. Keys are
// URL-encoded into filenames so tickers, dates and underscores survive
// round-trips; freshness is judged from file mtime at read time.
type Cache struct {
	dir    string
	logger arbor.ILogger
}

// New creates the cache directory if needed and returns the cache.
func New(dir string, logger arbor.ILogger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{dir: dir, logger: logger}, nil
}

// path maps a key to its file path.
func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, url.QueryEscape(key)+fileExt)
}

// Get decodes the stored value into out iff the entry is younger than
// maxAge. maxAge <= 0 accepts any age.
func (c *Cache) Get(key string, maxAge time.Duration, out interface{}) error {
	path := c.path(key)

	info, err := os.Stat(path)
	if err != nil {
		return interfaces.ErrCacheMiss
	}
	if maxAge > 0 && time.Since(info.ModTime()) > maxAge {
		return interfaces.ErrCacheMiss
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return interfaces.ErrCacheMiss
	}

	if err := json.Unmarshal(data, out); err != nil {
		// Corrupt entry; drop it so the next write starts clean.
		_ = os.Remove(path)
		c.logger.Warn().Str("key", key).Err(err).Msg("Removed corrupt cache entry")
		return interfaces.ErrCacheMiss
	}

	return nil
}

// Set writes the value atomically via a temp file rename.
func (c *Cache) Set(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, "write-*")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache value: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}

	if err := os.Rename(tmpName, c.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to publish cache file: %w", err)
	}

	return nil
}

// Delete removes a key. Absent keys are not an error.
func (c *Cache) Delete(key string) error {
	err := os.Remove(c.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache file: %w", err)
	}
	return nil
}

// Keys returns all decoded keys currently stored.
func (c *Cache) Keys() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		key, err := url.QueryUnescape(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}

	return keys, nil
}

// ClearMatching removes every entry whose decoded key contains all of the
// given substrings. Returns the number removed.
func (c *Cache) ClearMatching(substrings ...string) (int, error) {
	keys, err := c.Keys()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range keys {
		if !containsAll(key, substrings) {
			continue
		}
		if err := c.Delete(key); err != nil {
			c.logger.Warn().Str("key", key).Err(err).Msg("Failed to clear cache entry")
			continue
		}
		removed++
	}

	if removed > 0 {
		c.logger.Debug().Int("removed", removed).Strs("match", substrings).Msg("Cleared cache entries")
	}

	return removed, nil
}

func containsAll(key string, substrings []string) bool {
	for _, sub := range substrings {
		if sub == "" {
			continue
		}
		if !strings.Contains(key, sub) {
			return false
		}
	}
	return true
}

// emptySentinel marks a cached negative result, so "the vendor had
// nothing" is as cacheable as real data.
var emptySentinel = json.RawMessage(`{"__empty":true}`)

// EmptySentinel returns the negative-result marker value for Set.
func EmptySentinel() json.RawMessage {
	return emptySentinel
}

// IsEmptySentinel reports whether raw JSON is the negative-result marker.
func IsEmptySentinel(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	var probe struct {
		Empty bool `json:"__empty"`
	}
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return false
	}
	return probe.Empty
}

package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/aestimo/internal/models"
)

// ErrCacheMiss is returned when a cache key is absent or older than the
// caller's freshness window.
var ErrCacheMiss = errors.New("cache miss")

// ErrRecordNotFound is returned when a results-store key has no record.
var ErrRecordNotFound = errors.New("record not found")

// KVCache is the content-keyed fragment cache: string key to JSON value
// with freshness decided per read. Implementations: one file per key on
// disk (default), badger-backed, in-memory (tests). Key scanning is part
// of the contract so ticker-prefixed invalidation works on any backend.
type KVCache interface {
	// Get decodes the stored value into out iff the entry is younger than
	// maxAge. Returns ErrCacheMiss on absence or staleness. maxAge <= 0
	// accepts any age.
	Get(key string, maxAge time.Duration, out interface{}) error

	// Set overwrites the value atomically.
	Set(key string, value interface{}) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(key string) error

	// Keys returns all decoded keys currently stored.
	Keys() ([]string, error)

	// ClearMatching removes every entry whose decoded key contains all of
	// the given substrings. Idempotent; returns the number removed.
	ClearMatching(substrings ...string) (int, error)
}

// ResultsStore is the durable index of finalized analysis bundles plus the
// cross-request LLM output cache. Reads return records unconditionally;
// freshness against per-fragment TTLs is the caller's decision.
type ResultsStore interface {
	// GetBundle returns the record for (ticker, date, variant) or
	// ErrRecordNotFound.
	GetBundle(ctx context.Context, ticker, date, variant string) (*models.AnalysisRecord, error)

	// PutBundle upserts a record. The bundle is the unit of atomicity.
	PutBundle(ctx context.Context, record *models.AnalysisRecord) error

	// DeleteVariants removes the records for the bare model and both
	// variant suffixes. Returns the number of records removed.
	DeleteVariants(ctx context.Context, ticker, date, model string) (int, error)

	// GetLLMOutput returns the cached output for a payload hash or
	// ErrRecordNotFound.
	GetLLMOutput(ctx context.Context, hash string) (*models.LLMCacheRecord, error)

	// PutLLMOutput upserts a cached output.
	PutLLMOutput(ctx context.Context, record *models.LLMCacheRecord) error
}

// StorageManager wires the storage tiers and owns their lifecycle.
type StorageManager interface {
	// KVStorage returns the settings/API-key store.
	KVStorage() KeyValueStorage

	// Results returns the durable analysis bundle index.
	Results() ResultsStore

	// Cache returns the content-keyed fragment cache.
	Cache() KVCache

	// LoadVariablesFromFiles seeds the KV store from TOML variable files.
	LoadVariablesFromFiles(ctx context.Context, dir string) error

	// Close releases all storage resources.
	Close() error
}

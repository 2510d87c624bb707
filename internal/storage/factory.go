package storage

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/storage/badger"
	"github.com/ternarybob/aestimo/internal/storage/diskcache"
)

// NewStorageManager wires the storage tiers: badger for durable records
// and settings, the disk file cache for upstream fragments.
func NewStorageManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	cache, err := diskcache.New(config.Storage.Cache.Dir, logger)
	if err != nil {
		return nil, err
	}
	return badger.NewManager(logger, &config.Storage.Badger, cache)
}

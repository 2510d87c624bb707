package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db      *BadgerDB
	kv      interfaces.KeyValueStorage
	results interfaces.ResultsStore
	cache   interfaces.KVCache
	logger  arbor.ILogger
}

// NewManager creates a new Badger storage manager. The fragment cache is
// injected because its backend (disk files) lives outside the database.
func NewManager(logger arbor.ILogger, config *common.BadgerConfig, cache interfaces.KVCache) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:      db,
		kv:      NewKVStorage(db, logger),
		results: NewResultsStore(db, logger),
		cache:   cache,
		logger:  logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// KVStorage returns the KeyValue storage interface
func (m *Manager) KVStorage() interfaces.KeyValueStorage {
	return m.kv
}

// Results returns the analysis results store
func (m *Manager) Results() interfaces.ResultsStore {
	return m.results
}

// Cache returns the fragment cache
func (m *Manager) Cache() interfaces.KVCache {
	return m.cache
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

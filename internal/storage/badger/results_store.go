package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// ResultsStore implements the ResultsStore interface for Badger. It holds
// finalized analysis bundles keyed "<ticker>|<date>|<variant>" plus the
// cross-request LLM output cache keyed by payload hash.
type ResultsStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewResultsStore creates a new ResultsStore instance
func NewResultsStore(db *BadgerDB, logger arbor.ILogger) interfaces.ResultsStore {
	return &ResultsStore{
		db:     db,
		logger: logger,
	}
}

// GetBundle retrieves the record for (ticker, date, variant)
func (s *ResultsStore) GetBundle(ctx context.Context, ticker, date, variant string) (*models.AnalysisRecord, error) {
	key := fmt.Sprintf("%s|%s|%s", ticker, date, variant)

	var record models.AnalysisRecord
	err := s.db.Store().Get(key, &record)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis record: %w", err)
	}

	return &record, nil
}

// PutBundle upserts a record, stamping UpdatedAt
func (s *ResultsStore) PutBundle(ctx context.Context, record *models.AnalysisRecord) error {
	if record.Key == "" {
		record.Key = fmt.Sprintf("%s|%s|%s", record.Ticker, record.BaselineDate, record.ModelVariant)
	}
	record.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(record.Key, record); err != nil {
		return fmt.Errorf("failed to upsert analysis record: %w", err)
	}

	s.logger.Debug().
		Str("key", record.Key).
		Int("bundle_bytes", len(record.Bundle)).
		Msg("Stored analysis record")

	return nil
}

// DeleteVariants removes the records for the bare model name and both
// variant suffixes. An empty date clears every stored date for the ticker.
func (s *ResultsStore) DeleteVariants(ctx context.Context, ticker, date, model string) (int, error) {
	variants := map[string]bool{
		model:                               true,
		model + models.VariantFullSuffix:    true,
		model + models.VariantMetricsSuffix: true,
	}

	var records []models.AnalysisRecord
	err := s.db.Store().Find(&records, badgerhold.Where("Ticker").Eq(ticker))
	if err != nil {
		return 0, fmt.Errorf("failed to find records for ticker: %w", err)
	}

	deleted := 0
	for _, record := range records {
		if !variants[record.ModelVariant] {
			continue
		}
		if date != "" && record.BaselineDate != date {
			continue
		}
		if err := s.db.Store().Delete(record.Key, &models.AnalysisRecord{}); err != nil {
			s.logger.Warn().Str("key", record.Key).Err(err).Msg("Failed to delete analysis record")
			continue
		}
		deleted++
	}

	s.logger.Debug().
		Str("ticker", ticker).
		Str("date", date).
		Str("model", model).
		Int("deleted", deleted).
		Msg("Deleted analysis record variants")

	return deleted, nil
}

// GetLLMOutput retrieves a cached LLM output by payload hash
func (s *ResultsStore) GetLLMOutput(ctx context.Context, hash string) (*models.LLMCacheRecord, error) {
	var record models.LLMCacheRecord
	err := s.db.Store().Get(hash, &record)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get llm cache record: %w", err)
	}

	return &record, nil
}

// PutLLMOutput upserts a cached LLM output
func (s *ResultsStore) PutLLMOutput(ctx context.Context, record *models.LLMCacheRecord) error {
	record.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(record.Hash, record); err != nil {
		return fmt.Errorf("failed to upsert llm cache record: %w", err)
	}

	return nil
}

package batch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/metrics"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/services/fragments"
)

// Executor scores batch rows through the analysis pipeline.
type Executor struct {
	config    *common.Config
	logger    arbor.ILogger
	analyses  interfaces.AnalysisService
	fragments *fragments.Service
	events    interfaces.EventService
	metrics   *metrics.Registry
}

var _ interfaces.BatchExecutor = (*Executor)(nil)

// NewExecutor wires the executor to the analysis service it scores rows on.
func NewExecutor(config *common.Config, logger arbor.ILogger, analyses interfaces.AnalysisService, frags *fragments.Service, events interfaces.EventService, registry *metrics.Registry) *Executor {
	return &Executor{
		config:    config,
		logger:    logger,
		analyses:  analyses,
		fragments: frags,
		events:    events,
		metrics:   registry,
	}
}

// memoEntry shares one orchestration run across duplicate rows. Late
// claimants wait on done and read the first run's outcome.
type memoEntry struct {
	done   chan struct{}
	bundle *models.AnalysisBundle
	err    error
}

// Run scores every row and returns one result per input row, in input
// order. Row failures land in the row's result; only an empty input is an
// error.
func (e *Executor) Run(ctx context.Context, rows []models.BatchRow, mode models.Mode, model string) ([]models.BatchRowResult, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("batch has no rows")
	}

	started := time.Now()
	batchID := common.NewBatchID()
	e.logger.Info().
		Str("batch_id", batchID).
		Int("rows", len(rows)).
		Str("mode", string(mode)).
		Msg("Batch run started")

	e.prefetch(ctx, rows)

	results := make([]models.BatchRowResult, len(rows))
	var (
		memoMu sync.Mutex
		memo   = make(map[string]*memoEntry)
		next   atomic.Int64
	)
	next.Store(-1)

	workers := e.resolveConcurrency(mode)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		common.SafeGo(e.logger, fmt.Sprintf("batch-worker-%d", w), func() {
			defer wg.Done()
			for {
				i := int(next.Add(1))
				if i >= len(rows) || ctx.Err() != nil {
					return
				}
				results[i] = e.runRow(ctx, rows[i], mode, model, &memoMu, memo)
				e.finishRow(ctx, results[i])
			}
		})
	}
	wg.Wait()

	e.logger.Info().
		Str("batch_id", batchID).
		Int("rows", len(rows)).
		Int("workers", workers).
		Str("mode", string(mode)).
		Int64("duration_ms", time.Since(started).Milliseconds()).
		Msg("Batch run completed")
	return results, nil
}

// prefetch warms the hot quote cache for rows scoring at a live baseline.
// Historical rows resolve their price from stored bars instead.
func (e *Executor) prefetch(ctx context.Context, rows []models.BatchRow) {
	now := time.Now()
	groups := make(map[time.Time][]common.Ticker)
	for _, row := range rows {
		baseline, err := common.ParseBaselineDate(row.Date, now)
		if err != nil || common.IsHistoricalDate(baseline, now) {
			continue
		}
		ticker := common.ParseTicker(row.Ticker)
		if !ticker.Valid() {
			continue
		}
		groups[baseline] = append(groups[baseline], ticker)
	}

	for baseline, tickers := range groups {
		primed := e.fragments.PrimeQuotes(ctx, tickers, baseline, e.config.Batch.PrefetchBatch)
		if primed > 0 {
			e.logger.Debug().
				Str("date", baseline.Format(common.BaselineDateFormat)).
				Int("quotes", primed).
				Msg("Batch quotes prefetched")
		}
	}
}

func (e *Executor) runRow(ctx context.Context, row models.BatchRow, mode models.Mode, model string, memoMu *sync.Mutex, memo map[string]*memoEntry) models.BatchRowResult {
	result := models.BatchRowResult{Row: row}

	ticker := common.ParseTicker(row.Ticker)
	if !ticker.Valid() {
		result.Err = "ticker symbol is required"
		return result
	}

	effModel := row.Model
	if effModel == "" {
		effModel = model
	}
	normalized := models.BatchRow{Ticker: ticker.Symbol, Date: strings.TrimSpace(row.Date), Model: effModel}
	key := normalized.MemoKey(mode)

	memoMu.Lock()
	entry, claimed := memo[key]
	if !claimed {
		entry = &memoEntry{done: make(chan struct{})}
		memo[key] = entry
		memoMu.Unlock()

		entry.bundle, entry.err = e.analyses.Analyze(ctx, models.AnalysisRequest{
			Ticker: normalized.Ticker,
			Date:   normalized.Date,
			Model:  effModel,
			Mode:   mode,
		})
		close(entry.done)
	} else {
		memoMu.Unlock()
		select {
		case <-entry.done:
			result.Memo = true
		case <-ctx.Done():
			result.Err = ctx.Err().Error()
			return result
		}
	}

	result.Bundle = entry.bundle
	if entry.err != nil {
		result.Err = entry.err.Error()
	}
	return result
}

func (e *Executor) finishRow(ctx context.Context, result models.BatchRowResult) {
	status := "ok"
	switch {
	case result.Err != "":
		status = "error"
	case result.Memo:
		status = "memoized"
	}
	if e.metrics != nil {
		e.metrics.RecordBatchRow(status)
	}
	if e.events == nil {
		return
	}
	payload := map[string]interface{}{
		"date":   result.Row.Date,
		"status": status,
	}
	if result.Err != "" {
		payload["error"] = result.Err
	}
	event := interfaces.Event{
		Type:    interfaces.EventBatchRowCompleted,
		Ticker:  result.Row.Ticker,
		Payload: payload,
		At:      time.Now().UTC(),
	}
	if err := e.events.Publish(ctx, event); err != nil {
		e.logger.Debug().Err(err).Msg("Batch event publish failed")
	}
}

// resolveConcurrency sizes the worker pool for the run mode.
func (e *Executor) resolveConcurrency(mode models.Mode) int {
	def := e.config.Batch.Concurrency
	if def < 1 {
		def = 1
	}
	switch mode {
	case models.ModeMetricsOnly:
		if def > 2 {
			return 2
		}
		return def
	case models.ModeCachedOnly:
		if half := def / 2; half > 1 {
			return half
		}
		return 1
	default:
		return def
	}
}

// Package selftest runs the canonical health check: one metrics-only
// analysis of a fixed symbol at today's date, verified step by step.
package selftest

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// CanonicalTicker is the symbol every self-test run analyzes.
const CanonicalTicker = "NVDA"

const probeKey = "selftest_probe"

// Check is one pass/fail step of the report.
type Check struct {
	Name       string `json:"name"`
	Passed     bool   `json:"passed"`
	Detail     string `json:"detail,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Report is the full self-test outcome.
type Report struct {
	Ticker    string  `json:"ticker"`
	Date      string  `json:"date"`
	Passed    bool    `json:"passed"`
	Checks    []Check `json:"checks"`
	ElapsedMS int64   `json:"elapsed_ms"`
}

// Service exercises the analysis pipeline in-process. The checks cover
// the same ground as posting to the analyze endpoint without the loopback
// dial.
type Service struct {
	logger   arbor.ILogger
	analyses interfaces.AnalysisService
	storage  interfaces.StorageManager
	model    string
}

// NewService wires the self-test against the pipeline and storage. model
// is the default analysis model, used to locate the stored variant.
func NewService(analyses interfaces.AnalysisService, storage interfaces.StorageManager, model string, logger arbor.ILogger) *Service {
	return &Service{
		logger:   logger,
		analyses: analyses,
		storage:  storage,
		model:    model,
	}
}

// Run executes every check in order. Failures land in the report; the
// error return is reserved for a nil service wiring.
func (s *Service) Run(ctx context.Context) *Report {
	started := time.Now()
	date := common.DateOnly(time.Now().UTC()).Format(common.BaselineDateFormat)

	report := &Report{
		Ticker: CanonicalTicker,
		Date:   date,
		Passed: true,
	}

	s.check(ctx, report, "storage", s.checkStorage)

	var first *models.AnalysisBundle
	s.check(ctx, report, "analyze_metrics_only", func(ctx context.Context) (string, error) {
		var err error
		first, err = s.analyses.Analyze(ctx, models.AnalysisRequest{
			Ticker: CanonicalTicker,
			Date:   date,
			Mode:   models.ModeMetricsOnly,
		})
		return "analysis completed", err
	})

	s.check(ctx, report, "price_meta", func(context.Context) (string, error) {
		return checkPriceMeta(first)
	})
	s.check(ctx, report, "momentum", func(context.Context) (string, error) {
		return checkMomentum(first)
	})
	s.check(ctx, report, "stored_bundle", func(ctx context.Context) (string, error) {
		return s.checkStored(ctx, date)
	})
	s.check(ctx, report, "cache_replay", func(ctx context.Context) (string, error) {
		return s.checkReplay(ctx, date, first)
	})

	report.ElapsedMS = time.Since(started).Milliseconds()
	s.logger.Info().
		Bool("passed", report.Passed).
		Int64("elapsed_ms", report.ElapsedMS).
		Msg("Self-test finished")
	return report
}

type checkFn func(ctx context.Context) (string, error)

func (s *Service) check(ctx context.Context, report *Report, name string, fn checkFn) {
	started := time.Now()
	detail, err := fn(ctx)
	result := Check{
		Name:       name,
		Passed:     err == nil,
		Detail:     detail,
		DurationMS: time.Since(started).Milliseconds(),
	}
	if err != nil {
		result.Detail = err.Error()
		report.Passed = false
		s.logger.Warn().Str("check", name).Err(err).Msg("Self-test check failed")
	}
	report.Checks = append(report.Checks, result)
}

func (s *Service) checkStorage(context.Context) (string, error) {
	cache := s.storage.Cache()
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	if err := cache.Set(probeKey, stamp); err != nil {
		return "", fmt.Errorf("cache write: %w", err)
	}
	var back string
	if err := cache.Get(probeKey, time.Minute, &back); err != nil {
		return "", fmt.Errorf("cache read: %w", err)
	}
	if back != stamp {
		return "", fmt.Errorf("cache round-trip mismatch")
	}
	if err := cache.Delete(probeKey); err != nil {
		return "", fmt.Errorf("cache delete: %w", err)
	}
	return "kv cache round-trip ok", nil
}

func checkPriceMeta(bundle *models.AnalysisBundle) (string, error) {
	if bundle == nil {
		return "", fmt.Errorf("no bundle from analyze step")
	}
	summary := bundle.Fetched.FinnhubSummary
	if summary == nil || summary.PriceMeta == nil {
		return "", fmt.Errorf("price meta missing")
	}
	meta := summary.PriceMeta
	if meta.Value <= 0 {
		return "", fmt.Errorf("price not positive: %.2f", meta.Value)
	}
	if meta.Kind != models.PriceKindRealtime {
		return "", fmt.Errorf("today's run produced %q price kind", meta.Kind)
	}
	return fmt.Sprintf("%.2f via %s", meta.Value, meta.Source), nil
}

func checkMomentum(bundle *models.AnalysisBundle) (string, error) {
	if bundle == nil {
		return "", fmt.Errorf("no bundle from analyze step")
	}
	m := bundle.Momentum
	if m == nil {
		return "", fmt.Errorf("momentum block missing")
	}
	if m.Error != "" {
		return "", fmt.Errorf("momentum error: %s", m.Error)
	}
	if m.Score < 0 || m.Score > 100 {
		return "", fmt.Errorf("momentum score out of range: %.1f", m.Score)
	}
	return fmt.Sprintf("score %.1f (%s)", m.Score, m.TrendTag), nil
}

func (s *Service) checkStored(ctx context.Context, date string) (string, error) {
	ticker := common.ParseTicker(CanonicalTicker)
	variant := models.ResolveVariant(s.model, true)
	record, err := s.storage.Results().GetBundle(ctx, ticker.Symbol, date, variant)
	if err != nil {
		return "", fmt.Errorf("stored bundle %s missing: %w", variant, err)
	}
	if len(record.Bundle) == 0 {
		return "", fmt.Errorf("stored bundle %s is empty", variant)
	}
	return fmt.Sprintf("variant %s stored", record.ModelVariant), nil
}

func (s *Service) checkReplay(ctx context.Context, date string, first *models.AnalysisBundle) (string, error) {
	if first == nil {
		return "", fmt.Errorf("no bundle from analyze step")
	}
	second, err := s.analyses.Analyze(ctx, models.AnalysisRequest{
		Ticker: CanonicalTicker,
		Date:   date,
		Mode:   models.ModeMetricsOnly,
	})
	if err != nil {
		return "", fmt.Errorf("replay analyze: %w", err)
	}
	if !second.GeneratedAt.Equal(first.GeneratedAt) {
		return "", fmt.Errorf("replay rebuilt the bundle instead of serving the stored one")
	}
	return "stored bundle replayed", nil
}

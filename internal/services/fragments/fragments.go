// Package fragments builds the independently cacheable pieces of an
// analysis bundle: price meta, momentum, analyst signals, institutional
// ownership, news, earnings calls, macro context and filing summaries.
// Builders degrade into a typed Error field instead of failing, so
// assembly always produces a complete bundle shape.
package fragments

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/metrics"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/services/hotcache"
)

// Providers groups the upstream capabilities the builders draw from.
// Any field may be nil; builders skip or degrade when a capability is
// absent so a partially configured deployment still answers.
type Providers struct {
	// Prices and quotes.
	Quote         interfaces.QuoteProvider
	QuoteFallback interfaces.QuoteProvider
	BatchQuotes   interfaces.BatchQuoteProvider
	History       interfaces.PriceHistoryProvider
	Chart         interfaces.ChartProvider

	// Sell-side coverage.
	PriceTargets    interfaces.PriceTargetProvider
	AnalystFallback interfaces.AnalystSummaryProvider
	Ratings         interfaces.RatingsProvider
	Grades          interfaces.GradesProvider
	Estimates       interfaces.EstimatesProvider

	// Ownership and management activity.
	Holders     interfaces.HoldersProvider
	Insiders    interfaces.InsiderProvider
	Transcripts interfaces.TranscriptProvider

	// Context.
	Macro       interfaces.MacroProvider
	News        interfaces.NewsProvider
	CompanyNews interfaces.CompanyNewsProvider
	Filings     interfaces.FilingsProvider
	FilingText  interfaces.FilingTextProvider
	ETF         interfaces.ETFExposureProvider
	Company     interfaces.CompanyProvider
}

// Service owns fragment construction. Builders share the KV cache, the
// process-local hot cache and the summarizer; per-fragment TTLs come
// from the research config.
type Service struct {
	research   *common.ResearchConfig
	logger     arbor.ILogger
	cache      interfaces.KVCache
	hot        *hotcache.Cache
	providers  Providers
	summarizer interfaces.Summarizer
	metrics    *metrics.Registry

	analystMu       sync.Mutex
	analystInflight map[string]*analystCall
}

// NewService wires the fragment builders. The metrics registry is
// optional; nil disables instrumentation.
func NewService(config *common.Config, logger arbor.ILogger, storage interfaces.StorageManager, hot *hotcache.Cache, providers Providers, summarizer interfaces.Summarizer, registry *metrics.Registry) *Service {
	return &Service{
		research:        &config.Research,
		logger:          logger,
		cache:           storage.Cache(),
		hot:             hot,
		providers:       providers,
		summarizer:      summarizer,
		metrics:         registry,
		analystInflight: make(map[string]*analystCall),
	}
}

// Company returns the hot-cached profile and basic financial metrics
// for the bundle's company block. Either return may be nil.
func (s *Service) Company(ctx context.Context, ticker common.Ticker) (*models.CompanyProfile, map[string]float64) {
	return s.companyProfile(ctx, ticker), s.basicFinancials(ctx, ticker)
}

// companyProfile resolves the profile through the process cache; nil
// when the provider is absent or the lookup fails.
func (s *Service) companyProfile(ctx context.Context, ticker common.Ticker) *models.CompanyProfile {
	if s.providers.Company == nil {
		return nil
	}

	key := "fh_profile_" + ticker.CacheToken()
	if cached, ok := s.hot.Get(key); ok {
		s.cacheHit("hot")
		if profile, ok := cached.(*models.CompanyProfile); ok {
			return profile
		}
	}
	s.cacheMiss("hot")

	profile, err := s.providers.Company.CompanyProfile(ctx, ticker.FinnhubSymbol())
	if err != nil {
		s.logger.Debug().Str("ticker", ticker.Symbol).Err(err).Msg("Company profile unavailable")
		return nil
	}
	s.hot.Set(key, profile)
	return profile
}

func (s *Service) basicFinancials(ctx context.Context, ticker common.Ticker) map[string]float64 {
	if s.providers.Company == nil {
		return nil
	}

	key := "fh_metrics_" + ticker.CacheToken()
	if cached, ok := s.hot.Get(key); ok {
		s.cacheHit("hot")
		if m, ok := cached.(map[string]float64); ok {
			return m
		}
	}
	s.cacheMiss("hot")

	m, err := s.providers.Company.BasicFinancials(ctx, ticker.FinnhubSymbol())
	if err != nil {
		s.logger.Debug().Str("ticker", ticker.Symbol).Err(err).Msg("Basic financials unavailable")
		return nil
	}
	s.hot.Set(key, m)
	return m
}

// kvGet reads one KV entry, recording the tier hit or miss.
func (s *Service) kvGet(key string, maxAge time.Duration, out interface{}) bool {
	if err := s.cache.Get(key, maxAge, out); err != nil {
		s.cacheMiss("kv")
		return false
	}
	s.cacheHit("kv")
	return true
}

// kvPut writes one KV entry; failures are logged and swallowed because
// a cold cache costs a refetch, not correctness.
func (s *Service) kvPut(key string, value interface{}) {
	if err := s.cache.Set(key, value); err != nil {
		s.logger.Warn().Str("key", key).Err(err).Msg("Failed to write cache entry")
	}
}

func (s *Service) cacheHit(tier string) {
	if s.metrics != nil {
		s.metrics.RecordCacheHit(tier)
	}
}

func (s *Service) cacheMiss(tier string) {
	if s.metrics != nil {
		s.metrics.RecordCacheMiss(tier)
	}
}

func (s *Service) recordSource(fragment, source string) {
	if s.metrics != nil {
		s.metrics.RecordFragmentSource(fragment, source)
	}
}

// freshness converts a TTL into the KV read window for one baseline.
// Historical baselines accept any age because the answered data is
// immutable; live baselines expire after the ttl.
func freshness(historical bool, ttl time.Duration) time.Duration {
	if historical {
		return 0
	}
	return ttl
}

func hours(n int) time.Duration { return time.Duration(n) * time.Hour }
func days(n int) time.Duration  { return time.Duration(n) * 24 * time.Hour }

func dateKey(t time.Time) string { return t.Format(common.BaselineDateFormat) }

func ptr(v float64) *float64 { return &v }

// quarterOf returns the calendar quarter containing t.
func quarterOf(t time.Time) (year, quarter int) {
	return t.Year(), (int(t.Month())-1)/3 + 1
}

// prevQuarter steps one quarter back.
func prevQuarter(year, quarter int) (int, int) {
	if quarter == 1 {
		return year - 1, 4
	}
	return year, quarter - 1
}

// quarterEndDate returns the last calendar day of a quarter.
func quarterEndDate(year, quarter int) time.Time {
	return time.Date(year, time.Month(quarter*3+1), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// lastCompletedQuarter returns the most recent quarter whose end falls
// on or before the baseline date.
func lastCompletedQuarter(baseline time.Time) (int, int) {
	year, quarter := quarterOf(baseline)
	if quarterEndDate(year, quarter).After(baseline) {
		return prevQuarter(year, quarter)
	}
	return year, quarter
}

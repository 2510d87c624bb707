// Package usage meters LLM spend over a sliding window and shrinks the
// payload limits handed to the orchestrator when the cost rate runs hot.
package usage

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// Monitor accumulates usage samples in a mutex-guarded window. Samples
// are pruned on every access and by a background sweep so idle periods
// release memory.
type Monitor struct {
	mu      sync.Mutex
	samples []models.UsageSample

	window   time.Duration
	budget   decimal.Decimal
	defaults models.AdaptiveLimits
	floors   models.AdaptiveLimits

	logger   arbor.ILogger
	stop     chan struct{}
	stopOnce sync.Once
}

// Compile-time interface assertion
var _ interfaces.UsageMonitor = (*Monitor)(nil)

// NewMonitor creates a usage monitor. defaults carry the configured
// payload limits; the config floors bound how far degradation can cut.
func NewMonitor(logger arbor.ILogger, config *common.UsageConfig, defaults models.AdaptiveLimits) *Monitor {
	window := time.Duration(config.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Hour
	}

	return &Monitor{
		window:   window,
		budget:   decimal.NewFromFloat(config.BudgetPerHourUSD),
		defaults: defaults,
		floors: models.AdaptiveLimits{
			MaxFilings: config.DegradedFilings,
			NewsLimit:  config.DegradedNews,
		},
		logger: logger,
		stop:   make(chan struct{}),
	}
}

// Record adds one invocation to the window. Cached hits arrive with zero
// cost and are kept so hit rates stay visible in WindowTotals.
func (m *Monitor) Record(usage *models.LLMUsage) {
	if usage == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.pruneLocked(now)
	m.samples = append(m.samples, models.UsageSample{
		At:          now,
		TotalTokens: usage.TotalTokens,
		TotalCost:   usage.TotalCost,
		Model:       usage.Model,
	})
}

// Limits returns the payload limits for the next call. When the windowed
// spend rate exceeds the hourly budget, filings and news inputs are
// halved down to the configured floors.
func (m *Monitor) Limits() models.AdaptiveLimits {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked(time.Now())

	if !m.overBudgetLocked() {
		return m.defaults
	}

	limits := models.AdaptiveLimits{
		MaxFilings: m.defaults.MaxFilings / 2,
		NewsLimit:  m.defaults.NewsLimit / 2,
		Degraded:   true,
	}
	if limits.MaxFilings < m.floors.MaxFilings {
		limits.MaxFilings = m.floors.MaxFilings
	}
	if limits.NewsLimit < m.floors.NewsLimit {
		limits.NewsLimit = m.floors.NewsLimit
	}

	m.logger.Warn().
		Int("max_filings", limits.MaxFilings).
		Int("news_limit", limits.NewsLimit).
		Msg("LLM spend over budget, degrading payload limits")

	return limits
}

// WindowTotals reports the current window's token and cost sums.
func (m *Monitor) WindowTotals() (int, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked(time.Now())

	tokens := 0
	cost := decimal.Zero
	for _, s := range m.samples {
		tokens += s.TotalTokens
		cost = cost.Add(decimal.NewFromFloat(s.TotalCost))
	}
	return tokens, cost.InexactFloat64()
}

// Start launches the background sweep that prunes expired samples.
func (m *Monitor) Start(ctx context.Context) {
	interval := m.window / 4
	if interval < time.Minute {
		interval = time.Minute
	}

	common.SafeGo(m.logger, "usage-monitor-sweep", func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.mu.Lock()
				m.pruneLocked(time.Now())
				m.mu.Unlock()
			}
		}
	})
}

// Stop halts the background sweep.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
}

// pruneLocked drops samples older than the window. Caller holds the lock.
func (m *Monitor) pruneLocked(now time.Time) {
	cutoff := now.Add(-m.window)
	keep := m.samples[:0]
	for _, s := range m.samples {
		if s.At.After(cutoff) {
			keep = append(keep, s)
		}
	}
	m.samples = keep
}

// overBudgetLocked reports whether the windowed spend, scaled to an
// hourly rate, exceeds the budget. Caller holds the lock.
func (m *Monitor) overBudgetLocked() bool {
	if !m.budget.IsPositive() {
		return false
	}

	cost := decimal.Zero
	for _, s := range m.samples {
		cost = cost.Add(decimal.NewFromFloat(s.TotalCost))
	}
	if cost.IsZero() {
		return false
	}

	rate := cost.Div(decimal.NewFromFloat(m.window.Hours()))
	return rate.GreaterThan(m.budget)
}

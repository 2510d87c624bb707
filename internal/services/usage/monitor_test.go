package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/models"
)

func newTestMonitor(budgetPerHour float64) *Monitor {
	return NewMonitor(arbor.NewLogger(), &common.UsageConfig{
		BudgetPerHourUSD: budgetPerHour,
		WindowMinutes:    60,
		DegradedFilings:  1,
		DegradedNews:     2,
	}, models.AdaptiveLimits{MaxFilings: 2, NewsLimit: 4})
}

func TestLimitsDefaultWhenUnderBudget(t *testing.T) {
	monitor := newTestMonitor(5.0)
	monitor.Record(&models.LLMUsage{TotalTokens: 1800, TotalCost: 0.02, Model: "gpt-4o"})

	limits := monitor.Limits()
	assert.Equal(t, 2, limits.MaxFilings)
	assert.Equal(t, 4, limits.NewsLimit)
	assert.False(t, limits.Degraded)
}

func TestLimitsDegradeWhenOverBudget(t *testing.T) {
	monitor := newTestMonitor(1.0)
	for i := 0; i < 5; i++ {
		monitor.Record(&models.LLMUsage{TotalTokens: 40000, TotalCost: 0.5})
	}

	limits := monitor.Limits()
	assert.True(t, limits.Degraded)
	assert.Equal(t, 1, limits.MaxFilings)
	assert.Equal(t, 2, limits.NewsLimit)
}

func TestDegradedLimitsRespectFloors(t *testing.T) {
	monitor := NewMonitor(arbor.NewLogger(), &common.UsageConfig{
		BudgetPerHourUSD: 0.01,
		WindowMinutes:    60,
		DegradedFilings:  1,
		DegradedNews:     2,
	}, models.AdaptiveLimits{MaxFilings: 1, NewsLimit: 3})
	monitor.Record(&models.LLMUsage{TotalCost: 2.0})

	limits := monitor.Limits()
	assert.True(t, limits.Degraded)
	// Halving 1 and 3 would undercut the floors.
	assert.Equal(t, 1, limits.MaxFilings)
	assert.Equal(t, 2, limits.NewsLimit)
}

func TestZeroBudgetNeverDegrades(t *testing.T) {
	monitor := newTestMonitor(0)
	monitor.Record(&models.LLMUsage{TotalCost: 100})

	assert.False(t, monitor.Limits().Degraded)
}

func TestWindowTotalsSumSamples(t *testing.T) {
	monitor := newTestMonitor(5.0)
	monitor.Record(&models.LLMUsage{TotalTokens: 1000, TotalCost: 0.1})
	monitor.Record(&models.LLMUsage{TotalTokens: 500, TotalCost: 0.2})
	// Cached hit: zero cost, still counted.
	monitor.Record(&models.LLMUsage{TotalTokens: 0, TotalCost: 0, Cached: true})

	tokens, cost := monitor.WindowTotals()
	assert.Equal(t, 1500, tokens)
	assert.InDelta(t, 0.3, cost, 1e-9)
}

func TestRecordNilIsNoop(t *testing.T) {
	monitor := newTestMonitor(5.0)
	monitor.Record(nil)

	tokens, cost := monitor.WindowTotals()
	assert.Equal(t, 0, tokens)
	assert.Equal(t, 0.0, cost)
}

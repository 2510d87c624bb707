package fragments

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/models"
)

func TestApplyTargetConfidence(t *testing.T) {
	svc := newTestService(Providers{})

	tests := []struct {
		name       string
		summary    models.PriceTargetSummary
		confidence string
		window     string
	}{
		{
			name: "month window has depth",
			summary: models.PriceTargetSummary{
				LastMonthAvg:   ptr(150.0),
				LastMonthCount: 3,
			},
			confidence: models.ConfidenceHigh,
			window:     "month",
		},
		{
			name: "thin month falls through to quarter",
			summary: models.PriceTargetSummary{
				LastMonthAvg:     ptr(150.0),
				LastMonthCount:   1,
				LastQuarterAvg:   ptr(148.0),
				LastQuarterCount: 5,
			},
			confidence: models.ConfidenceHigh,
			window:     "quarter",
		},
		{
			name: "deep window without an average stays low",
			summary: models.PriceTargetSummary{
				LastMonthCount: 4,
			},
			confidence: models.ConfidenceLow,
			window:     "",
		},
		{
			name:       "no window has depth",
			summary:    models.PriceTargetSummary{LastMonthCount: 1, LastYearCount: 2},
			confidence: models.ConfidenceLow,
			window:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc.applyTargetConfidence(&tt.summary)
			assert.Equal(t, tt.confidence, tt.summary.Confidence)
			assert.Equal(t, tt.window, tt.summary.ConfidenceWindow)
		})
	}
}

func TestApplyRatingTrend(t *testing.T) {
	block := &models.RatingsBlock{
		Historical: []models.RatingSnapshot{
			{Date: "2025-07-01", Score: 3.0},
			{Date: "2025-08-20", Score: 3.5},
			{Date: "2025-08-10", Score: 3.2},
		},
	}
	applyRatingTrend(block)
	assert.Equal(t, models.RatingTrendImproving, block.Trend)
	require.NotNil(t, block.TrendDelta)
	assert.InDelta(t, 0.5, *block.TrendDelta, 1e-9)
	assert.Equal(t, 50, block.TrendWindowDays)
	assert.Equal(t, "2025-08-20", block.Historical[0].Date, "sorted newest first")

	worsening := &models.RatingsBlock{
		Historical: []models.RatingSnapshot{
			{Date: "2025-08-20", Score: 2.5},
			{Date: "2025-06-01", Score: 3.0},
		},
	}
	applyRatingTrend(worsening)
	assert.Equal(t, models.RatingTrendWorsening, worsening.Trend)

	// Only recent snapshots: nothing old enough to anchor the comparison.
	shallow := &models.RatingsBlock{
		Historical: []models.RatingSnapshot{
			{Date: "2025-08-20", Score: 3.5},
			{Date: "2025-08-15", Score: 3.1},
		},
	}
	applyRatingTrend(shallow)
	assert.Equal(t, models.RatingTrendStable, shallow.Trend)
	assert.Nil(t, shallow.TrendDelta)
}

func TestAnalystSkipsExtendedBlocksForOldBaselines(t *testing.T) {
	var estimateCalls, gradeCalls atomic.Int32
	estimates := &stubEstimates{
		estimates: func(symbol, period string, limit int) ([]models.EstimatePeriod, error) {
			estimateCalls.Add(1)
			return []models.EstimatePeriod{{Date: "2025-09-30", EPSAvg: ptr(1.25)}}, nil
		},
	}
	grades := &stubGrades{
		consensus: func(symbol string) (*models.GradeConsensus, error) {
			gradeCalls.Add(1)
			return &models.GradeConsensus{Consensus: "Buy", Buy: 20}, nil
		},
	}
	targets := &stubTargets{
		summary: func(symbol string) (*models.PriceTargetSummary, error) {
			return &models.PriceTargetSummary{TargetMean: ptr(150.0)}, nil
		},
	}
	providers := Providers{PriceTargets: targets, Estimates: estimates, Grades: grades}
	ticker := common.ParseTicker("AAPL")

	svc := newTestService(providers)
	old := svc.Analyst(context.Background(), ticker, time.Now().UTC().AddDate(0, 0, -60))
	require.NotNil(t, old)
	assert.Nil(t, old.Estimates)
	assert.Nil(t, old.Grades)
	require.NotNil(t, old.PriceTarget)
	assert.Equal(t, int32(0), estimateCalls.Load())
	assert.Equal(t, int32(0), gradeCalls.Load())

	svc = newTestService(providers)
	recent := svc.Analyst(context.Background(), ticker, time.Now().UTC())
	require.NotNil(t, recent)
	require.NotNil(t, recent.Estimates)
	require.NotNil(t, recent.Grades)
	assert.Equal(t, "Buy", recent.Grades.Consensus.Consensus)
	assert.Equal(t, int32(2), estimateCalls.Load(), "quarterly and annual")
	assert.Equal(t, int32(1), gradeCalls.Load())
}

func TestAnalystCollapsesConcurrentBuilds(t *testing.T) {
	var builds atomic.Int32
	targets := &stubTargets{
		summary: func(symbol string) (*models.PriceTargetSummary, error) {
			builds.Add(1)
			time.Sleep(50 * time.Millisecond)
			return &models.PriceTargetSummary{TargetMean: ptr(120.0)}, nil
		},
	}
	svc := newTestService(Providers{PriceTargets: targets})
	ticker := common.ParseTicker("NVDA")
	baseline := mustDate(t, "2025-08-20")

	results := make([]*models.AnalystSignals, 5)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Analyst(context.Background(), ticker, baseline)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load(), "concurrent callers share one build")
	for _, result := range results {
		require.NotNil(t, result)
		require.NotNil(t, result.PriceTarget)
	}

	// Each caller owns its price-target block: deriving upside on one
	// result must not leak into the others.
	ApplyUpside(results[0], 100)
	require.NotNil(t, results[0].PriceTarget.UpsidePercent)
	assert.InDelta(t, 20.0, *results[0].PriceTarget.UpsidePercent, 1e-9)
	assert.Nil(t, results[1].PriceTarget.UpsidePercent)
}

func TestPriceTargetYahooFallback(t *testing.T) {
	fallback := &stubAnalystSummary{
		summary: func(symbol string) (*models.AnalystSummary, error) {
			assert.Equal(t, "BRK-B", symbol)
			return &models.AnalystSummary{
				TargetMean:   150.0,
				TargetHigh:   180.0,
				TargetLow:    120.0,
				AnalystCount: 12,
			}, nil
		},
	}
	svc := newTestService(Providers{AnalystFallback: fallback})

	signals := svc.Analyst(context.Background(), common.ParseTicker("BRK.B"), time.Now().UTC())
	require.NotNil(t, signals)
	target := signals.PriceTarget
	require.NotNil(t, target)
	assert.Equal(t, 12, target.PublisherCount)
	assert.Equal(t, 12, target.LastMonthCount)
	require.NotNil(t, target.TargetMean)
	assert.Equal(t, 150.0, *target.TargetMean)
	require.NotNil(t, target.TargetHigh)
	assert.Nil(t, target.TargetMedian)
	assert.Equal(t, models.ConfidenceHigh, target.Confidence)
	assert.Equal(t, "month", target.ConfidenceWindow)
}

func TestAnalystNoSources(t *testing.T) {
	svc := newTestService(Providers{})

	signals := svc.Analyst(context.Background(), common.ParseTicker("AAPL"), time.Now().UTC())
	require.NotNil(t, signals)
	assert.Equal(t, "no analyst source answered", signals.Error)
	assert.False(t, signals.AsOf.IsZero())
}

func TestApplyUpside(t *testing.T) {
	signals := &models.AnalystSignals{
		PriceTarget: &models.PriceTargetSummary{TargetMean: ptr(120.0)},
	}
	ApplyUpside(signals, 100)
	require.NotNil(t, signals.PriceTarget.UpsidePercent)
	assert.InDelta(t, 20.0, *signals.PriceTarget.UpsidePercent, 1e-9)

	ApplyUpside(nil, 100)
	ApplyUpside(&models.AnalystSignals{}, 100)

	noPrice := &models.AnalystSignals{
		PriceTarget: &models.PriceTargetSummary{TargetMean: ptr(120.0)},
	}
	ApplyUpside(noPrice, 0)
	assert.Nil(t, noPrice.PriceTarget.UpsidePercent)

	noMean := &models.AnalystSignals{PriceTarget: &models.PriceTargetSummary{}}
	ApplyUpside(noMean, 100)
	assert.Nil(t, noMean.PriceTarget.UpsidePercent)
}

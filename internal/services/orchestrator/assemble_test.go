package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/services/fragments"
	"github.com/ternarybob/aestimo/internal/services/payload"
)

func TestAssembleReusesFreshFragments(t *testing.T) {
	target := 150.0
	analyzer := &stubAnalyzer{
		enabled: true,
		result: &models.AnalysisResult{
			Action: models.AnalysisAction{Rating: models.RatingBuy, TargetPrice: &target},
		},
		usage: &models.LLMUsage{TotalTokens: 800, Model: "gpt-5-mini"},
	}
	quotes := &stubQuotes{quote: func(ctx context.Context, symbol string) (*models.Quote, error) {
		return &models.Quote{Symbol: symbol, Price: 105, Timestamp: time.Now().UTC()}, nil
	}}
	svc, results := newTestService(t, fragments.Providers{Quote: quotes}, analyzer)
	today := todayString()

	// A fresh bundle that never got its LLM pass forces a rebuild, but
	// every windowed fragment should ride along instead of refetching.
	prior := storedTestBundle("NVDA", today)
	prior.Analysis = nil
	prior.LLMUsage = nil
	prior.AnalysisModel = ""
	seedRecord(t, results, "NVDA", today, "gpt-5-mini__full", prior, time.Hour)

	bundle, err := svc.Analyze(context.Background(), models.AnalysisRequest{Ticker: "NVDA"})
	require.NoError(t, err)

	assert.Equal(t, 1, analyzer.callCount())
	require.NotNil(t, bundle.Analysis)
	assert.Equal(t, models.RatingBuy, bundle.Analysis.Action.Rating)

	// Price is always refetched.
	assert.Equal(t, int32(1), quotes.calls.Load())
	assert.InDelta(t, 105, bundle.Fetched.FinnhubSummary.PriceMeta.Value, 1e-9)

	// Momentum, news and filings were inside their windows: the stored
	// copies survive even though no upstream source is configured.
	require.NotNil(t, bundle.Momentum)
	assert.Empty(t, bundle.Momentum.Error)
	assert.InDelta(t, 64, bundle.Momentum.Score, 1e-9)

	require.NotNil(t, bundle.News)
	assert.Empty(t, bundle.News.Error)
	assert.Equal(t, []string{"NVDA"}, bundle.News.Keywords)

	require.Len(t, bundle.Fetched.Filings, 1)
	require.Len(t, bundle.PerFilingSummaries, 1)
	assert.Equal(t, "前次年報摘要。", bundle.PerFilingSummaries[0].MDASummary)
}

func TestAssembleRefetchesStaleFragments(t *testing.T) {
	analyzer := &stubAnalyzer{
		enabled: true,
		result: &models.AnalysisResult{
			Action: models.AnalysisAction{Rating: models.RatingHold},
		},
		usage: &models.LLMUsage{TotalTokens: 700, Model: "gpt-5-mini"},
	}
	quotes := &stubQuotes{quote: func(ctx context.Context, symbol string) (*models.Quote, error) {
		return &models.Quote{Symbol: symbol, Price: 98, Timestamp: time.Now().UTC()}, nil
	}}
	svc, results := newTestService(t, fragments.Providers{Quote: quotes}, analyzer)
	today := todayString()

	// Seven hours old: filings still fresh against the 12h analysis TTL,
	// momentum and news past their 6h windows.
	seedRecord(t, results, "NVDA", today, "gpt-5-mini__full", storedTestBundle("NVDA", today), 7*time.Hour)

	bundle, err := svc.Analyze(context.Background(), models.AnalysisRequest{Ticker: "NVDA"})
	require.NoError(t, err)

	assert.Equal(t, 1, analyzer.callCount())

	require.NotNil(t, bundle.Momentum)
	assert.NotEmpty(t, bundle.Momentum.Error, "stale momentum must be rebuilt, not reused")
	require.NotNil(t, bundle.News)
	assert.NotEmpty(t, bundle.News.Error, "stale news must be rebuilt, not reused")

	require.Len(t, bundle.Fetched.Filings, 1)
	assert.Equal(t, "10-K", bundle.Fetched.Filings[0].Form)
	require.Len(t, bundle.PerFilingSummaries, 1)
	assert.Equal(t, "前次年報摘要。", bundle.PerFilingSummaries[0].MDASummary)
}

func TestReuseStoredAnalysisPrefersOwnVariant(t *testing.T) {
	quotes := &stubQuotes{quote: func(ctx context.Context, symbol string) (*models.Quote, error) {
		return &models.Quote{Symbol: symbol, Price: 101, Timestamp: time.Now().UTC()}, nil
	}}
	svc, results := newTestService(t, fragments.Providers{Quote: quotes}, nil)
	today := todayString()

	full := storedTestBundle("NVDA", today)
	full.Analysis.Action.Rating = models.RatingBuy
	seedRecord(t, results, "NVDA", today, "gpt-5-mini__full", full, time.Hour)

	stale := storedTestBundle("NVDA", today)
	seedRecord(t, results, "NVDA", today, "gpt-5-mini__metrics", stale, 7*time.Hour)

	bundle, err := svc.Analyze(context.Background(), models.AnalysisRequest{Ticker: "NVDA", Mode: models.ModeMetricsOnly})
	require.NoError(t, err)

	require.NotNil(t, bundle.Analysis)
	assert.Equal(t, models.RatingHold, bundle.Analysis.Action.Rating, "the run's own stale variant outranks the full variant")
}

func TestReuseStoredAnalysisFallsBackToFullVariant(t *testing.T) {
	quotes := &stubQuotes{quote: func(ctx context.Context, symbol string) (*models.Quote, error) {
		return &models.Quote{Symbol: symbol, Price: 101, Timestamp: time.Now().UTC()}, nil
	}}
	svc, results := newTestService(t, fragments.Providers{Quote: quotes}, nil)
	today := todayString()

	full := storedTestBundle("NVDA", today)
	full.Analysis.Action.Rating = models.RatingSell
	seedRecord(t, results, "NVDA", today, "gpt-5-mini__full", full, time.Hour)

	bundle, err := svc.Analyze(context.Background(), models.AnalysisRequest{Ticker: "NVDA", Mode: models.ModeMetricsOnly})
	require.NoError(t, err)

	require.NotNil(t, bundle.Analysis)
	assert.Equal(t, models.RatingSell, bundle.Analysis.Action.Rating)
	assert.Equal(t, "gpt-5-mini", bundle.AnalysisModel)
	assert.True(t, results.has(fmt.Sprintf("NVDA|%s|gpt-5-mini__metrics", today)))
}

func TestAnalystMetricsRollup(t *testing.T) {
	signals := &models.AnalystSignals{
		PriceTarget: &models.PriceTargetSummary{
			TargetMean:     ptr(150),
			UpsidePercent:  ptr(25),
			Confidence:     models.ConfidenceHigh,
			PublisherCount: 12,
		},
		Grades: &models.GradesBlock{
			Consensus: &models.GradeConsensus{Consensus: "Buy"},
		},
		Ratings: &models.RatingsBlock{
			Trend:    models.RatingTrendImproving,
			Snapshot: &models.RatingSnapshot{Rating: "A-", Recommendation: "Strong Buy"},
		},
	}

	m := analystMetrics(signals)
	require.NotNil(t, m)
	assert.InDelta(t, 150, *m.TargetMean, 1e-9)
	assert.InDelta(t, 25, *m.TargetUpside, 1e-9)
	assert.Equal(t, models.ConfidenceHigh, m.TargetConfidence)
	assert.Equal(t, 12, m.PublisherCount)
	assert.Equal(t, "Buy", m.RatingConsensus, "grade consensus wins over the rating snapshot")
	assert.Equal(t, models.RatingTrendImproving, m.RatingTrend)

	signals.Grades = nil
	m = analystMetrics(signals)
	require.NotNil(t, m)
	assert.Equal(t, "Strong Buy", m.RatingConsensus)

	assert.Nil(t, analystMetrics(nil))
	assert.Nil(t, analystMetrics(&models.AnalystSignals{Error: "no analyst source answered"}))
	assert.Nil(t, analystMetrics(&models.AnalystSignals{}))
}

func TestValuationDerivation(t *testing.T) {
	price := &models.PriceMeta{
		Value:    100,
		YearHigh: ptr(150),
		YearLow:  ptr(80),
	}
	momentum := &models.MomentumMetrics{
		BarCount:       260,
		MovingAverages: models.MovingAverages{SMA50: 95, SMA200: 110},
	}
	analyst := &models.AnalystMetrics{TargetMean: ptr(120), TargetUpside: ptr(20)}

	v := valuation(price, momentum, analyst)
	require.NotNil(t, v)
	assert.InDelta(t, 100, v.Price, 1e-9)
	assert.InDelta(t, 120, *v.TargetMean, 1e-9)
	assert.InDelta(t, 20, *v.UpsidePercent, 1e-9)
	assert.InDelta(t, (150.0-100)/150.0*100, *v.DistanceToHigh, 1e-9)
	assert.InDelta(t, 25, *v.DistanceToLow, 1e-9)
	assert.InDelta(t, (100.0-95)/95*100, *v.PriceVsMA50, 1e-9)
	assert.InDelta(t, (100.0-110)/110*100, *v.PriceVsMA200, 1e-9)

	// Vendor-supplied moving averages outrank the momentum fragment.
	price.MA50 = ptr(90)
	v = valuation(price, momentum, analyst)
	assert.InDelta(t, (100.0-90)/90*100, *v.PriceVsMA50, 1e-9)

	assert.Nil(t, valuation(nil, momentum, analyst))
	assert.Nil(t, valuation(&models.PriceMeta{}, momentum, analyst))
}

func TestSignalHints(t *testing.T) {
	svc, _ := newTestService(t, fragments.Providers{}, nil)

	spread := -0.5
	bundle := &models.AnalysisBundle{
		Momentum: &models.MomentumMetrics{
			Score:    15,
			BarCount: 260,
		},
		Institutional: &models.InstitutionalSnapshot{
			Signal:  &models.InstitutionalSignal{Label: models.InstitutionalReducing, NetShares: -4000},
			Insider: &models.InsiderActivity{NetShares: 1500},
		},
		Macro: &models.MacroSnapshot{Spread: &spread},
		News:  &models.NewsBundle{Sentiment: &models.NewsSentiment{Label: models.SentimentNegative}},
	}
	bundle.Guardrails = payload.DeriveGuardrails(bundle.Momentum, bundle.Institutional, svc.config.Research.MomentumSevereThreshold)

	hints := svc.signalHints(bundle)
	require.NotNil(t, hints)
	assert.False(t, hints.MomentumStrong)
	assert.True(t, hints.MomentumSevere)
	assert.True(t, hints.InstitutionalSell)
	assert.True(t, hints.InsiderBuying)
	assert.True(t, hints.CurveInverted)
	assert.True(t, hints.NewsNegative)

	strong := &models.AnalysisBundle{
		Momentum: &models.MomentumMetrics{Score: 85, BarCount: 260},
	}
	strong.Guardrails = payload.DeriveGuardrails(strong.Momentum, strong.Institutional, svc.config.Research.MomentumSevereThreshold)

	hints = svc.signalHints(strong)
	assert.True(t, hints.MomentumStrong)
	assert.False(t, hints.MomentumSevere)
	assert.False(t, hints.InstitutionalSell)
	assert.False(t, hints.InsiderBuying)
	assert.False(t, hints.CurveInverted)
	assert.False(t, hints.NewsNegative)
}

func TestDeriveFieldsAppliesUpside(t *testing.T) {
	svc, _ := newTestService(t, fragments.Providers{}, nil)

	bundle := &models.AnalysisBundle{
		Fetched: models.FetchedData{
			FinnhubSummary: &models.FinnhubSummary{
				PriceMeta: &models.PriceMeta{Value: 100, Kind: models.PriceKindRealtime},
			},
		},
		Analyst: &models.AnalystSignals{
			PriceTarget: &models.PriceTargetSummary{TargetMean: ptr(120), PublisherCount: 8},
		},
	}

	svc.deriveFields(bundle)

	require.NotNil(t, bundle.Analyst.PriceTarget.UpsidePercent)
	assert.InDelta(t, 20, *bundle.Analyst.PriceTarget.UpsidePercent, 1e-9)

	require.NotNil(t, bundle.AnalystMetrics)
	assert.InDelta(t, 20, *bundle.AnalystMetrics.TargetUpside, 1e-9)

	require.NotNil(t, bundle.Valuation)
	assert.InDelta(t, 120, *bundle.Valuation.TargetMean, 1e-9)
	require.NotNil(t, bundle.Guardrails)
	assert.False(t, bundle.Guardrails.Active())
	require.NotNil(t, bundle.SignalHints)
}

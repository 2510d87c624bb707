package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/models"
)

func fptr(v float64) *float64 { return &v }

func noteBundle() *models.AnalysisBundle {
	return &models.AnalysisBundle{
		Input: models.BundleInput{
			Ticker: "NVDA",
			Date:   "2025-08-20",
			Model:  "gpt-5-mini",
			Mode:   models.ModeFull,
		},
		Fetched: models.FetchedData{
			FinnhubSummary: &models.FinnhubSummary{
				PriceMeta: &models.PriceMeta{
					Value:  123.46,
					AsOf:   time.Date(2025, 8, 20, 20, 0, 0, 0, time.UTC),
					Source: models.PriceSourceFMPRealtime,
					Kind:   models.PriceKindRealtime,
				},
			},
		},
		Analysis: &models.AnalysisResult{
			Action: models.AnalysisAction{
				Rating:        models.RatingBuy,
				TargetPrice:   fptr(140.55),
				Confidence:    "medium",
				Rationale:     "Momentum and coverage both lean positive.",
				GuardrailNote: "Target clamped by momentum guardrail",
			},
			Segment:      "AI 基礎設施",
			QualityScore: fptr(7.5),
			Thesis:       "Datacenter demand keeps the topline growing.",
			Highlights:   []string{"Record backlog", "Margin expansion"},
			Risks:        []string{"Export controls"},
		},
		LLMUsage: &models.LLMUsage{
			Model:       "gpt-5-mini",
			TotalTokens: 2150,
			TotalCost:   0.0132,
		},
		AnalysisModel: "gpt-5-mini",
		News: &models.NewsBundle{
			Sentiment: &models.NewsSentiment{
				Label:   models.SentimentNeutral,
				Tag:     models.SentimentTagNeutral,
				Summary: "Coverage balanced between supply news and valuation worries.",
			},
			Articles: []models.NewsArticle{
				{
					Title:       "Chipmaker expands capacity",
					Source:      "fmp",
					PublishedAt: time.Date(2025, 8, 19, 9, 0, 0, 0, time.UTC),
				},
			},
		},
		Momentum: &models.MomentumMetrics{
			Score:    64.0,
			Trend:    models.TrendNeutral,
			TrendTag: models.TrendTagNeutral,
			Returns:  models.MomentumReturns{M3: 0.052, M6: 0.12, M12: 0.304},
			MovingAverages: models.MovingAverages{
				SMA20:  118.2,
				SMA50:  114.9,
				SMA200: 101.3,
			},
			RSI14:         55.1,
			ATR14:         3.2,
			VolumeRatio:   1.12,
			ETF:           &models.SectorETF{Symbol: "SMH"},
			ReferenceDate: "2025-08-20",
			BarCount:      252,
		},
		Institutional: &models.InstitutionalSnapshot{
			AsOf: "2025-06-30",
			Signal: &models.InstitutionalSignal{
				Label:     models.InstitutionalAccumulating,
				Tag:       models.SignalTagAccumulating,
				NetShares: 1250000,
			},
			Top: []models.HolderRow{
				{Holder: "Vanguard Group", Shares: 1250000, ChangeShares: 50000},
			},
			Insider: &models.InsiderActivity{
				BuyCount:  3,
				SellCount: 1,
				NetShares: 42000,
				Label:     models.InstitutionalAccumulating,
			},
		},
		EarningsCall: &models.EarningsCall{
			Quarter: 2,
			Year:    2025,
			Summary: "Management guided above consensus.",
			Bullets: []string{"Blackwell ramp on schedule"},
		},
		Analyst: &models.AnalystSignals{
			PriceTarget: &models.PriceTargetSummary{
				TargetMean:     fptr(150),
				TargetHigh:     fptr(175),
				TargetLow:      fptr(120),
				PublisherCount: 14,
				Confidence:     models.ConfidenceHigh,
				UpsidePercent:  fptr(21.5),
			},
			Ratings: &models.RatingsBlock{
				Snapshot: &models.RatingSnapshot{Date: "2025-08-18", Rating: "A-"},
				Trend:    models.RatingTrendImproving,
			},
			Grades: &models.GradesBlock{
				Consensus: &models.GradeConsensus{Consensus: "Buy"},
				RecentActions: []models.GradeAction{
					{Date: "2025-08-15", Company: "Morgan Stanley", PreviousGrade: "Equal-Weight", NewGrade: "Overweight", Action: "upgrade"},
				},
			},
		},
		PerFilingSummaries: []models.FilingSummary{
			{Form: "10-K", FilingDate: "2025-02-14", MDASummary: "Revenue growth driven by datacenter.", SummaryKind: models.SummaryKindLLM},
		},
		Macro: &models.MacroSnapshot{
			Yield10Y:    fptr(4.25),
			Yield2Y:     fptr(4.75),
			Spread:      fptr(-0.5),
			RiskPremium: fptr(5.1),
		},
		Valuation: &models.Valuation{
			Price:          123.46,
			TargetMean:     fptr(150),
			UpsidePercent:  fptr(21.5),
			DistanceToHigh: fptr(17.7),
			DistanceToLow:  fptr(54.3),
			PriceVsMA50:    fptr(7.4),
		},
		SignalHints: &models.SignalHints{InsiderBuying: true, CurveInverted: true},
		Guardrails:  &models.Guardrails{},
		GeneratedAt: time.Date(2025, 8, 20, 14, 5, 0, 0, time.UTC),
	}
}

func TestRenderMarkdown(t *testing.T) {
	renderer := NewRenderer(arbor.NewLogger())

	out, err := renderer.RenderMarkdown(noteBundle())
	require.NoError(t, err)
	note := string(out)

	assert.Contains(t, note, "# NVDA Research Note")
	assert.Contains(t, note, "- **Baseline**: 2025-08-20")
	assert.Contains(t, note, "- **Generated**: 2025-08-20 14:05 UTC")

	assert.Contains(t, note, "- **Rating**: BUY")
	assert.Contains(t, note, "- **Target price**: 140.55")
	assert.Contains(t, note, "*Target clamped by momentum guardrail*")
	assert.Contains(t, note, "> Momentum and coverage both lean positive.")
	assert.Contains(t, note, "- Record backlog")

	assert.Contains(t, note, "| Current price | 123.46 (real-time_fmp) |")
	assert.Contains(t, note, "| Upside | +21.5% |")

	assert.Contains(t, note, "- **Score**: 64.0")
	assert.Contains(t, note, "3m +5.2%, 6m +12.0%, 12m +30.4%")
	assert.Contains(t, note, "- **Sector proxy**: SMH")

	assert.Contains(t, note, "150.00 (range 120.00 to 175.00)")
	assert.Contains(t, note, "- **Publishers**: 14 (high confidence)")
	assert.Contains(t, note, "- **Rating trend**: improving")
	assert.Contains(t, note, "Overweight from Equal-Weight (upgrade)")

	assert.Contains(t, note, "加碼 (net 1,250,000 shares)")
	assert.Contains(t, note, "| Vanguard Group | 1,250,000 | 50,000 |")
	assert.Contains(t, note, "(3 buys, 1 sells, net 42,000 shares)")

	assert.Contains(t, note, "- **Sentiment**: 中性")
	assert.Contains(t, note, "- 2025-08-19 Chipmaker expands capacity (fmp)")

	assert.Contains(t, note, "- **Quarter**: Q2 2025")
	assert.Contains(t, note, "### 10-K filed 2025-02-14")
	assert.Contains(t, note, "Revenue growth driven by datacenter.")

	assert.Contains(t, note, "- **2s10s spread**: -0.50 (inverted)")
	assert.Contains(t, note, "- **Hints**: insider buying, yield curve inverted")

	assert.Contains(t, note, "Model gpt-5-mini used 2150 tokens (0.0132 USD)")
}

func TestRenderMarkdownMetricsOnly(t *testing.T) {
	renderer := NewRenderer(arbor.NewLogger())
	bundle := noteBundle()
	bundle.Analysis = nil
	bundle.LLMUsage = nil
	bundle.Input.Mode = models.ModeMetricsOnly

	out, err := renderer.RenderMarkdown(bundle)
	require.NoError(t, err)
	note := string(out)

	assert.Contains(t, note, "Metrics-only run; no model action recorded.")
	assert.NotContains(t, note, "- **Rating**: BUY")
	assert.NotContains(t, note, "**Target price**")
	assert.NotContains(t, note, "used 2150 tokens")
	assert.Contains(t, note, "- **Score**: 64.0")
}

func TestRenderMarkdownSparseBundle(t *testing.T) {
	renderer := NewRenderer(arbor.NewLogger())
	bundle := &models.AnalysisBundle{
		Input: models.BundleInput{Ticker: "AAPL", Date: "2025-08-20"},
	}

	out, err := renderer.RenderMarkdown(bundle)
	require.NoError(t, err)
	note := string(out)

	assert.Contains(t, note, "# AAPL Research Note")
	assert.NotContains(t, note, "## Momentum")
	assert.NotContains(t, note, "## Valuation")
	assert.NotContains(t, note, "## Signals")
}

func TestRenderMarkdownFragmentErrors(t *testing.T) {
	renderer := NewRenderer(arbor.NewLogger())
	bundle := noteBundle()
	bundle.Momentum = &models.MomentumMetrics{Error: "no price bars"}
	bundle.News = &models.NewsBundle{Error: "keyword expansion failed"}

	out, err := renderer.RenderMarkdown(bundle)
	require.NoError(t, err)
	note := string(out)

	assert.Contains(t, note, "Unavailable: no price bars")
	assert.Contains(t, note, "Unavailable: keyword expansion failed")
	assert.NotContains(t, note, "**Score**")
}

func TestRenderMarkdownNilBundle(t *testing.T) {
	renderer := NewRenderer(arbor.NewLogger())

	_, err := renderer.RenderMarkdown(nil)
	assert.Error(t, err)

	_, err = renderer.RenderMarkdown(&models.AnalysisBundle{})
	assert.Error(t, err)
}

func TestRenderHTML(t *testing.T) {
	renderer := NewRenderer(arbor.NewLogger())

	out, err := renderer.RenderHTML(noteBundle())
	require.NoError(t, err)
	page := string(out)

	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, page, `<meta charset="UTF-8">`)
	assert.Contains(t, page, "<title>NVDA Research Note (2025-08-20)</title>")
	assert.Contains(t, page, "<h1>NVDA Research Note</h1>")
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, "中性")
}

func TestRenderPDF(t *testing.T) {
	renderer := NewRenderer(arbor.NewLogger())

	out, err := renderer.RenderPDF(noteBundle())
	require.NoError(t, err)

	assert.Equal(t, "%PDF", string(out[:4]))
	assert.Greater(t, len(out), 1000)
}

func TestThousands(t *testing.T) {
	assert.Equal(t, "0", thousands(0))
	assert.Equal(t, "999", thousands(999))
	assert.Equal(t, "1,000", thousands(1000))
	assert.Equal(t, "1,250,000", thousands(1250000))
	assert.Equal(t, "-42,000", thousands(-42000))
}

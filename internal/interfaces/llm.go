package interfaces

import (
	"context"

	"github.com/ternarybob/aestimo/internal/models"
)

// AnalyzeOptions tune one structured analysis call.
type AnalyzeOptions struct {
	// Model overrides the configured default when non-empty.
	Model string

	// NoCache bypasses the cross-request output cache for this call.
	NoCache bool

	// CurrentPrice anchors target-price validation and the guardrail clamp.
	CurrentPrice float64

	// Guardrails tighten the clamp band when active.
	Guardrails *models.Guardrails

	// Confidence from the consensus target data; the clamp is skipped
	// when it is high.
	TargetConfidence string
}

// Analyzer runs the structured equity analysis call.
type Analyzer interface {
	// Analyze sends the compacted payload to the configured model and
	// returns the validated result. Usage is non-nil even on cache hits
	// (Cached=true, zero cost).
	Analyze(ctx context.Context, payload []byte, opts AnalyzeOptions) (*models.AnalysisResult, *models.LLMUsage, error)

	// Enabled reports whether at least one provider key is configured.
	Enabled() bool
}

// Summarizer runs the cheap narrative passes (filings, transcripts,
// news sentiment, keyword expansion). Implementations fall back to
// deterministic extraction when no key is configured, reporting the kind.
type Summarizer interface {
	SummarizeMDA(ctx context.Context, ticker, form, text string) (summary, kind string, err error)
	SummarizeTranscript(ctx context.Context, ticker string, quarter, year int, text string) (summary string, bullets []string, kind string, err error)
	ClassifyNews(ctx context.Context, ticker string, articles []models.NewsArticle) (*models.NewsSentiment, error)
	ExpandKeywords(ctx context.Context, ticker, companyName string) (keywords []string, kind string, err error)
}

// UsageMonitor meters LLM spend and adapts payload limits.
type UsageMonitor interface {
	// Record adds one invocation to the sliding window. Cached calls are
	// recorded with zero cost so hit rates stay observable.
	Record(usage *models.LLMUsage)

	// Limits returns the payload limits for the next call, shrunk from
	// the configured defaults when the windowed spend runs hot.
	Limits() models.AdaptiveLimits

	// WindowTotals reports the current window's token and cost sums.
	WindowTotals() (tokens int, costUSD float64)
}

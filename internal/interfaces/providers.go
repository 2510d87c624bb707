package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/aestimo/internal/models"
)

// Upstream capability interfaces. Fragment builders depend on these
// narrow contracts rather than on concrete vendor clients so the
// fallback chains stay testable with stubs.

// QuoteProvider serves a live quote for one symbol.
type QuoteProvider interface {
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
}

// BatchQuoteProvider serves live quotes for many symbols in one call.
type BatchQuoteProvider interface {
	BatchQuotes(ctx context.Context, symbols []string) ([]models.Quote, error)
}

// PriceHistoryProvider serves end-of-day bars.
type PriceHistoryProvider interface {
	// EODBar returns the bar for the exact trading date, or ErrRecordNotFound
	// when the vendor has no bar for that session.
	EODBar(ctx context.Context, symbol string, date time.Time) (*models.EODBar, error)

	// EODSeries returns daily bars in ascending date order, inclusive.
	EODSeries(ctx context.Context, symbol string, from, to time.Time) ([]models.EODBar, error)
}

// ChartProvider serves daily bars from a secondary vendor. Kept separate
// from PriceHistoryProvider because the fallback chain treats the two
// sources differently when stamping the price source.
type ChartProvider interface {
	ChartDaily(ctx context.Context, symbol string, from, to time.Time) ([]models.EODBar, error)
}

// PriceTargetProvider serves the consensus target summary.
type PriceTargetProvider interface {
	PriceTargetSummary(ctx context.Context, symbol string) (*models.PriceTargetSummary, error)
}

// AnalystSummaryProvider serves the condensed analyst block of a
// secondary vendor, used when the primary target source fails.
type AnalystSummaryProvider interface {
	AnalystSummary(ctx context.Context, symbol string) (*models.AnalystSummary, error)
}

// RatingsProvider serves composite rating snapshots.
type RatingsProvider interface {
	RatingSnapshot(ctx context.Context, symbol string) (*models.RatingSnapshot, error)
	RatingsHistorical(ctx context.Context, symbol string, limit int) ([]models.RatingSnapshot, error)
}

// GradesProvider serves broker grade actions and aggregates.
type GradesProvider interface {
	GradeActions(ctx context.Context, symbol string, limit int) ([]models.GradeAction, error)
	GradeHistogram(ctx context.Context, symbol string, limit int) ([]models.GradeHistogram, error)
	GradeConsensus(ctx context.Context, symbol string) (*models.GradeConsensus, error)
}

// EstimatesProvider serves forward revenue/EPS consensus.
type EstimatesProvider interface {
	// Period is "quarter" or "annual".
	AnalystEstimates(ctx context.Context, symbol, period string, limit int) ([]models.EstimatePeriod, error)
}

// HoldersProvider serves 13F institutional ownership.
type HoldersProvider interface {
	// ThirteenF returns the aggregate for the given quarter end, or
	// ErrRecordNotFound when no institutions reported for it yet.
	ThirteenF(ctx context.Context, symbol string, year, quarter int) (*models.ThirteenF, error)
}

// InsiderProvider serves reported insider transactions.
type InsiderProvider interface {
	InsiderTrades(ctx context.Context, symbol string, from, to time.Time) ([]models.InsiderTrade, error)
}

// TranscriptProvider serves earnings call transcripts.
type TranscriptProvider interface {
	// Transcript returns ErrRecordNotFound when the quarter has no call.
	Transcript(ctx context.Context, symbol string, quarter, year int) (*models.Transcript, error)
}

// MacroProvider serves the macroeconomic context.
type MacroProvider interface {
	EconomicCalendar(ctx context.Context, from, to time.Time) ([]models.EconomicEvent, error)
	TreasuryYields(ctx context.Context, from, to time.Time) ([]models.TreasuryYields, error)
	MarketRiskPremium(ctx context.Context, country string) (float64, error)
}

// NewsProvider serves symbol-tagged news.
type NewsProvider interface {
	StockNews(ctx context.Context, symbols []string, limit int) ([]models.NewsArticle, error)
}

// CompanyNewsProvider serves date-windowed company news from the
// secondary vendor.
type CompanyNewsProvider interface {
	CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsArticle, error)
}

// FilingsProvider lists regulatory filings, newest first.
type FilingsProvider interface {
	Filings(ctx context.Context, symbol, form string, limit int) ([]models.FilingDescriptor, error)
}

// FilingTextProvider fetches and extracts the narrative text of one
// filing document (HTML or PDF).
type FilingTextProvider interface {
	FilingText(ctx context.Context, url string) (string, error)
}

// ETFExposureProvider ranks funds by their exposure to a symbol, used to
// pick the sector benchmark.
type ETFExposureProvider interface {
	ETFExposure(ctx context.Context, symbol string, limit int) ([]models.ETFExposure, error)
}

// CompanyProvider serves identity and fundamental metrics.
type CompanyProvider interface {
	CompanyProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error)
	BasicFinancials(ctx context.Context, symbol string) (map[string]float64, error)
}

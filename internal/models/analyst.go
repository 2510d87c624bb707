package models

import "time"

// Rating trend direction, derived from the historical snapshots.
const (
	RatingTrendImproving = "improving"
	RatingTrendStable    = "stable"
	RatingTrendWorsening = "worsening"
)

// Price-target confidence, derived from publisher sample sizes.
const (
	ConfidenceHigh = "high"
	ConfidenceLow  = "low"
)

// AnalystSignals aggregates sell-side coverage. Each sub-fragment is
// independently cacheable with its own TTL.
type AnalystSignals struct {
	PriceTarget *PriceTargetSummary `json:"price_target_summary,omitempty"`
	Estimates   *AnalystEstimates   `json:"estimates,omitempty"`
	Ratings     *RatingsBlock       `json:"ratings,omitempty"`
	Grades      *GradesBlock        `json:"grades,omitempty"`
	AsOf        time.Time           `json:"as_of,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// PriceTargetSummary condenses the consensus target windows.
type PriceTargetSummary struct {
	// Windowed averages; publisher counts decide which window is trusted.
	LastMonthAvg     *float64 `json:"last_month_avg,omitempty"`
	LastMonthCount   int      `json:"last_month_count,omitempty"`
	LastQuarterAvg   *float64 `json:"last_quarter_avg,omitempty"`
	LastQuarterCount int      `json:"last_quarter_count,omitempty"`
	LastYearAvg      *float64 `json:"last_year_avg,omitempty"`
	LastYearCount    int      `json:"last_year_count,omitempty"`
	AllTimeAvg       *float64 `json:"all_time_avg,omitempty"`
	AllTimeCount     int      `json:"all_time_count,omitempty"`
	TargetMean       *float64 `json:"target_mean,omitempty"`
	TargetHigh       *float64 `json:"target_high,omitempty"`
	TargetLow        *float64 `json:"target_low,omitempty"`
	TargetMedian     *float64 `json:"target_median,omitempty"`
	PublisherCount   int      `json:"publisher_count,omitempty"`
	Confidence       string   `json:"confidence,omitempty"` // high | low
	ConfidenceWindow string   `json:"confidence_window,omitempty"`
	UpsidePercent    *float64 `json:"upside_percent,omitempty"`
}

// AnalystEstimates carries forward-looking revenue/EPS consensus.
// Extended data, fetched only near the baseline date.
type AnalystEstimates struct {
	Quarterly []EstimatePeriod `json:"quarterly,omitempty"`
	Annual    []EstimatePeriod `json:"annual,omitempty"`
}

// EstimatePeriod is one consensus estimate row in canonical form.
type EstimatePeriod struct {
	Date            string   `json:"date"`
	RevenueAvg      *float64 `json:"revenue_avg,omitempty"`
	RevenueHigh     *float64 `json:"revenue_high,omitempty"`
	RevenueLow      *float64 `json:"revenue_low,omitempty"`
	EPSAvg          *float64 `json:"eps_avg,omitempty"`
	EPSHigh         *float64 `json:"eps_high,omitempty"`
	EPSLow          *float64 `json:"eps_low,omitempty"`
	AnalystsRevenue int      `json:"analysts_revenue,omitempty"`
	AnalystsEPS     int      `json:"analysts_eps,omitempty"`
}

// RatingsBlock pairs the current rating snapshot with its history and
// the derived trend.
type RatingsBlock struct {
	Snapshot        *RatingSnapshot  `json:"snapshot,omitempty"`
	Historical      []RatingSnapshot `json:"historical,omitempty"`
	Trend           string           `json:"trend,omitempty"` // improving | stable | worsening
	TrendDelta      *float64         `json:"trend_delta,omitempty"`
	TrendWindowDays int              `json:"trend_window_days,omitempty"`
}

// RatingSnapshot is one dated composite rating in canonical form.
type RatingSnapshot struct {
	Date           string  `json:"date"`
	Rating         string  `json:"rating"`
	Score          float64 `json:"score"`
	Recommendation string  `json:"recommendation,omitempty"`
}

// GradesBlock aggregates broker grade actions.
type GradesBlock struct {
	RecentActions    []GradeAction    `json:"recent_actions,omitempty"`
	HistoricalCounts []GradeHistogram `json:"historical_counts,omitempty"`
	Consensus        *GradeConsensus  `json:"consensus,omitempty"`
}

// GradeAction is one broker upgrade/downgrade in canonical form.
type GradeAction struct {
	Date          string `json:"date"`
	Company       string `json:"company"`
	PreviousGrade string `json:"previous_grade,omitempty"`
	NewGrade      string `json:"new_grade"`
	Action        string `json:"action"` // upgrade | downgrade | initiate | maintain
}

// GradeHistogram is the per-month distribution of outstanding grades.
type GradeHistogram struct {
	Date       string `json:"date"`
	StrongBuy  int    `json:"strong_buy"`
	Buy        int    `json:"buy"`
	Hold       int    `json:"hold"`
	Sell       int    `json:"sell"`
	StrongSell int    `json:"strong_sell"`
}

// GradeConsensus is the aggregate broker stance.
type GradeConsensus struct {
	Consensus  string `json:"consensus"`
	StrongBuy  int    `json:"strong_buy"`
	Buy        int    `json:"buy"`
	Hold       int    `json:"hold"`
	Sell       int    `json:"sell"`
	StrongSell int    `json:"strong_sell"`
}

// AnalystMetrics is the compact per-bundle roll-up consumed by the LLM
// payload and the batch CSV columns.
type AnalystMetrics struct {
	TargetMean       *float64 `json:"target_mean,omitempty"`
	TargetUpside     *float64 `json:"target_upside,omitempty"`
	RatingConsensus  string   `json:"rating_consensus,omitempty"`
	RatingTrend      string   `json:"rating_trend,omitempty"`
	TargetConfidence string   `json:"target_confidence,omitempty"`
	PublisherCount   int      `json:"publisher_count,omitempty"`
}

package models

import "time"

// ThirteenF is one quarter's institutional ownership aggregate in
// canonical form. NetShares is the summary-level figure when the vendor
// reports one; otherwise builders sum row-level changes.
type ThirteenF struct {
	QuarterEnd string      `json:"quarter_end"`
	NetShares  *int64      `json:"net_shares,omitempty"`
	Rows       []HolderRow `json:"rows"`
}

// Transcript is one earnings call transcript in canonical form.
type Transcript struct {
	Symbol  string `json:"symbol"`
	Quarter int    `json:"quarter"`
	Year    int    `json:"year"`
	Date    string `json:"date,omitempty"`
	Content string `json:"content"`
}

// TreasuryYields is one day's treasury curve readings (percent).
type TreasuryYields struct {
	Date string   `json:"date"`
	Y2   *float64 `json:"y2,omitempty"`
	Y10  *float64 `json:"y10,omitempty"`
	M3   *float64 `json:"m3,omitempty"`
	Y30  *float64 `json:"y30,omitempty"`
}

// ETFExposure ranks a fund by its exposure to a symbol.
type ETFExposure struct {
	ETF       string  `json:"etf"`
	WeightPct float64 `json:"weight_pct"`
}

// AnalystSummary is the Yahoo quoteSummary condensate, used as the
// fallback source for consensus targets when the primary vendor fails.
type AnalystSummary struct {
	Symbol             string        `json:"symbol"`
	CurrentPrice       float64       `json:"current_price,omitempty"`
	TargetMean         float64       `json:"target_mean,omitempty"`
	TargetHigh         float64       `json:"target_high,omitempty"`
	TargetLow          float64       `json:"target_low,omitempty"`
	TargetMedian       float64       `json:"target_median,omitempty"`
	AnalystCount       int           `json:"analyst_count,omitempty"`
	RecommendationMean float64       `json:"recommendation_mean,omitempty"`
	RecommendationKey  string        `json:"recommendation_key,omitempty"`
	StrongBuy          int           `json:"strong_buy,omitempty"`
	Buy                int           `json:"buy,omitempty"`
	Hold               int           `json:"hold,omitempty"`
	Sell               int           `json:"sell,omitempty"`
	StrongSell         int           `json:"strong_sell,omitempty"`
	Actions            []GradeAction `json:"actions,omitempty"`
	AsOf               time.Time     `json:"as_of,omitempty"`
}

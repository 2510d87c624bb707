package models

// BatchRow is one parsed input row of a batch run.
type BatchRow struct {
	Index  int    `json:"index"`
	Ticker string `json:"ticker"`
	Date   string `json:"date"`
	Model  string `json:"model,omitempty"`
}

// MemoKey identifies a deduplicable batch task: identical tuples share
// one orchestration run.
func (r BatchRow) MemoKey(mode Mode) string {
	return r.Ticker + "|" + r.Date + "|" + r.Model + "|" + string(mode)
}

// BatchRowResult is one output row. Err carries the per-row failure;
// the result row is still emitted with recommendation "ERROR:<msg>".
type BatchRowResult struct {
	Row    BatchRow        `json:"row"`
	Bundle *AnalysisBundle `json:"bundle,omitempty"`
	Err    string          `json:"error,omitempty"`
	Memo   bool            `json:"memoized,omitempty"`
}

// BatchOutputColumns is the fixed CSV header of a batch result, in order.
var BatchOutputColumns = []string{
	"ticker",
	"date",
	"model",
	"current_price",
	"llm_target_price",
	"recommendation",
	"segment",
	"quality_score",
	"news_sentiment",
	"momentum_score",
	"trend_flag",
	"institutional_signal",
	"analyst_target_mean",
	"analyst_rating_consensus",
	"analyst_rating_trend",
	"price_target_confidence",
}

package models

// Momentum trend labels. The Chinese tags are the canonical wire values;
// TrendTag carries the semantic equivalent for non-localized consumers.
const (
	TrendStrong  = "強勢"
	TrendNeutral = "中性"
	TrendWeak    = "弱勢"

	TrendTagStrong  = "strong"
	TrendTagNeutral = "neutral"
	TrendTagWeak    = "weak"
)

// MomentumMetrics summarizes price action over the trailing year.
type MomentumMetrics struct {
	Score    float64 `json:"score"` // Clamped to [0, 100]
	Trend    string  `json:"trend"`
	TrendTag string  `json:"trend_tag"`

	Returns        MomentumReturns `json:"returns"`
	MovingAverages MovingAverages  `json:"moving_averages"`
	RSI14          float64         `json:"rsi14"`
	ATR14          float64         `json:"atr14"`
	VolumeRatio    float64         `json:"volume_ratio"` // 5-day vs 30-day average volume
	PriceVsMA      PriceVsMA       `json:"price_vs_ma"`

	ETF           *SectorETF `json:"etf,omitempty"`
	ReferenceDate string     `json:"reference_date"`
	BarCount      int        `json:"bar_count,omitempty"`

	Error string `json:"error,omitempty"`
}

// MomentumReturns holds trailing returns as fractions (0.10 = +10%).
type MomentumReturns struct {
	M3  float64 `json:"m3"`
	M6  float64 `json:"m6"`
	M12 float64 `json:"m12"`
}

// MovingAverages holds simple moving averages of the close.
type MovingAverages struct {
	SMA20  float64 `json:"sma20"`
	SMA50  float64 `json:"sma50"`
	SMA200 float64 `json:"sma200"`
}

// PriceVsMA reports where the last close sits relative to each average.
type PriceVsMA struct {
	AboveSMA50  bool `json:"above_sma50"`
	AboveSMA200 bool `json:"above_sma200"`
}

// SectorETF contextualizes momentum against a sector proxy fund.
type SectorETF struct {
	Symbol   string  `json:"symbol"`
	Return3M float64 `json:"return_3m"`
	Source   string  `json:"source"` // "static_table" or "exposure_ranking"
}

package models

import "time"

// Price kinds. Kind is historical exactly when the baseline date falls
// before today; fallback sources never change the kind.
const (
	PriceKindRealtime   = "real-time"
	PriceKindHistorical = "historical"
)

// Price sources, recorded by the fragment builder in fallback-chain order.
const (
	PriceSourceFMPRealtime    = "real-time_fmp"
	PriceSourceYahooRealtime  = "real-time_yahoo"
	PriceSourceHotQuote       = "real-time_hot_quote"
	PriceSourceFMPHistorical  = "historical_fmp"
	PriceSourceFMPNearby      = "historical_fmp_nearby" // Earlier trading session when the exact date has no bar
	PriceSourceYahooChart     = "historical_yahoo_chart"
	PriceSourceFallbackToLive = "real-time_fallback" // Historical chain exhausted, live quote substituted
)

// PriceMeta describes the reference price of one analysis run.
type PriceMeta struct {
	Value  float64   `json:"value"`
	AsOf   time.Time `json:"as_of"`
	Source string    `json:"source"`
	Kind   string    `json:"kind"`
	// Extended marks prices captured outside regular trading hours.
	Extended bool `json:"extended,omitempty"`

	// Enrichment, populated when the winning adapter provides it.
	YearHigh  *float64  `json:"year_high,omitempty"`
	YearLow   *float64  `json:"year_low,omitempty"`
	MA50      *float64  `json:"ma50,omitempty"`
	MA200     *float64  `json:"ma200,omitempty"`
	Intraday  *Intraday `json:"intraday,omitempty"`
	MarketCap *float64  `json:"market_cap,omitempty"`

	Error string `json:"error,omitempty"`
}

// Intraday carries the session OHLC snapshot of a live quote.
type Intraday struct {
	Open          float64 `json:"open,omitempty"`
	High          float64 `json:"high,omitempty"`
	Low           float64 `json:"low,omitempty"`
	PreviousClose float64 `json:"previous_close,omitempty"`
	Volume        int64   `json:"volume,omitempty"`
}

// EODBar is one end-of-day price bar in canonical form.
type EODBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Quote is a live quote in canonical form, shared by all vendors.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Open          float64   `json:"open,omitempty"`
	DayHigh       float64   `json:"day_high,omitempty"`
	DayLow        float64   `json:"day_low,omitempty"`
	PreviousClose float64   `json:"previous_close,omitempty"`
	YearHigh      float64   `json:"year_high,omitempty"`
	YearLow       float64   `json:"year_low,omitempty"`
	MA50          float64   `json:"ma50,omitempty"`
	MA200         float64   `json:"ma200,omitempty"`
	MarketCap     float64   `json:"market_cap,omitempty"`
	Volume        int64     `json:"volume,omitempty"`
	Extended      bool      `json:"extended,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

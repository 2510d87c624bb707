package models

import (
	"encoding/json"
	"time"
)

// AnalysisBundle is the top-level result of one analysis run, persisted
// atomically as the unit of caching.
type AnalysisBundle struct {
	Input   BundleInput `json:"input"`
	Fetched FetchedData `json:"fetched"`

	Analysis      *AnalysisResult `json:"analysis,omitempty"`
	LLMUsage      *LLMUsage       `json:"llm_usage,omitempty"`
	AnalysisModel string          `json:"analysis_model,omitempty"`

	News          *NewsBundle            `json:"news,omitempty"`
	Momentum      *MomentumMetrics       `json:"momentum,omitempty"`
	Institutional *InstitutionalSnapshot `json:"institutional,omitempty"`
	EarningsCall  *EarningsCall          `json:"earnings_call,omitempty"`
	Analyst       *AnalystSignals        `json:"analyst_signals,omitempty"`

	PerFilingSummaries []FilingSummary `json:"per_filing_summaries,omitempty"`

	AnalystMetrics *AnalystMetrics `json:"analyst_metrics,omitempty"`
	Macro          *MacroSnapshot  `json:"macro,omitempty"`
	Valuation      *Valuation      `json:"valuation,omitempty"`
	SignalHints    *SignalHints    `json:"signal_hints,omitempty"`
	Guardrails     *Guardrails     `json:"guardrails,omitempty"`

	// Inputs is the compacted numeric payload handed to the LLM, kept for
	// reproducibility and the cross-request LLM cache key.
	Inputs json.RawMessage `json:"inputs,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
}

// BundleInput echoes the request that produced the bundle.
type BundleInput struct {
	Ticker string `json:"ticker"`
	Date   string `json:"date"`
	Model  string `json:"model"`
	Mode   Mode   `json:"mode,omitempty"`
}

// FetchedData groups the primary upstream fragments.
type FetchedData struct {
	Filings        []FilingDescriptor `json:"filings,omitempty"`
	FinnhubSummary *FinnhubSummary    `json:"finnhub_summary,omitempty"`
}

// FinnhubSummary pairs the resolved price with company fundamentals.
// The name follows the wire format; the price itself may come from any
// vendor in the fallback chain.
type FinnhubSummary struct {
	PriceMeta *PriceMeta         `json:"price_meta,omitempty"`
	Company   *CompanyProfile    `json:"company,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// CompanyProfile is the canonical company identity block.
type CompanyProfile struct {
	Name      string  `json:"name,omitempty"`
	Exchange  string  `json:"exchange,omitempty"`
	Industry  string  `json:"industry,omitempty"`
	Sector    string  `json:"sector,omitempty"`
	MarketCap float64 `json:"market_cap,omitempty"`
	Currency  string  `json:"currency,omitempty"`
}

// Valuation carries the price-relative derived fields.
type Valuation struct {
	Price          float64  `json:"price"`
	TargetMean     *float64 `json:"target_mean,omitempty"`
	UpsidePercent  *float64 `json:"upside_percent,omitempty"`
	DistanceToHigh *float64 `json:"distance_to_high,omitempty"` // Percent below 52w high
	DistanceToLow  *float64 `json:"distance_to_low,omitempty"`  // Percent above 52w low
	PriceVsMA50    *float64 `json:"price_vs_ma50,omitempty"`
	PriceVsMA200   *float64 `json:"price_vs_ma200,omitempty"`
}

// SignalHints collects the boolean tells handed to the LLM prompt.
type SignalHints struct {
	MomentumStrong    bool `json:"momentum_strong,omitempty"`
	MomentumSevere    bool `json:"momentum_severe,omitempty"`
	InstitutionalSell bool `json:"institutional_sell,omitempty"`
	InsiderBuying     bool `json:"insider_buying,omitempty"`
	CurveInverted     bool `json:"curve_inverted,omitempty"`
	NewsNegative      bool `json:"news_negative,omitempty"`
}

// Guardrails flags the conditions that tighten the target-price clamp.
type Guardrails struct {
	SevereMomentum  bool `json:"severe_momentum"`
	SellingPressure bool `json:"selling_pressure"`
}

// Active reports whether either tightening condition holds.
func (g *Guardrails) Active() bool {
	return g != nil && (g.SevereMomentum || g.SellingPressure)
}

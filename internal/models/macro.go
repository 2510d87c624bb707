package models

// MacroSnapshot carries the macroeconomic context around the baseline.
type MacroSnapshot struct {
	Events []EconomicEvent `json:"events,omitempty"`

	Yield10Y *float64 `json:"yield_10y,omitempty"`
	Yield2Y  *float64 `json:"yield_2y,omitempty"`
	Spread   *float64 `json:"spread,omitempty"` // y10 - y2; negative = inverted curve

	RiskPremium *float64 `json:"risk_premium,omitempty"`

	WindowStart string `json:"window_start,omitempty"`
	WindowEnd   string `json:"window_end,omitempty"`
	Error       string `json:"error,omitempty"`
}

// EconomicEvent is one calendar entry in canonical form.
type EconomicEvent struct {
	Date     string   `json:"date"`
	Event    string   `json:"event"`
	Country  string   `json:"country,omitempty"`
	Impact   string   `json:"impact,omitempty"`
	Actual   *float64 `json:"actual,omitempty"`
	Estimate *float64 `json:"estimate,omitempty"`
	Previous *float64 `json:"previous,omitempty"`
}

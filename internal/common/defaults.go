// Package common provides shared utilities and default configuration.
package common

// DefaultKVValue represents a default key/value pair that is seeded on startup.
type DefaultKVValue struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

// GetDefaultKVValues returns the list of default KV values seeded on startup.
// This is the single source of truth for default values.
func GetDefaultKVValues() []DefaultKVValue {
	return []DefaultKVValue{
		{
			Key:         "benchmark_etf",
			Value:       "SPY",
			Description: "Benchmark ETF used when no sector proxy matches",
		},
		{
			Key:         "risk_free_fallback",
			Value:       "4.30",
			Description: "Fallback 10-year treasury yield (percent) when the rates feed is down",
		},
		{
			Key:         "equity_risk_premium",
			Value:       "4.50",
			Description: "Equity risk premium (percent) used in the macro snapshot",
		},
	}
}

// Package common provides shared utilities across the application.
package common

import (
	"regexp"
	"strings"
)

// Ticker represents a normalized US equity symbol.
// Class shares are held in dot notation internally (e.g. "BRK.B");
// vendor methods convert to each API's expected form.
type Ticker struct {
	// Symbol is the normalized uppercase symbol (e.g. "AAPL", "BRK.B")
	Symbol string
	// Raw is the original input string
	Raw string
}

// tickerPattern matches plain symbols plus one optional class/unit suffix
// separated by a dot or dash (e.g. "BRK.B", "AGM-A").
var tickerPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,9}([.\-][A-Z0-9]{1,4})?$`)

// ParseTicker normalizes a raw ticker string.
// Supported inputs:
//   - "aapl"  -> Symbol="AAPL"
//   - " MSFT " -> Symbol="MSFT"
//   - "brk-b" -> Symbol="BRK.B" (dash form folded to dot form)
//
// An unparseable input yields a Ticker with empty Symbol.
func ParseTicker(raw string) Ticker {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	if trimmed == "" {
		return Ticker{Raw: raw}
	}

	// Fold the dash class separator to the internal dot form, but only
	// for a short trailing suffix so symbols like "BTC-USD" stay intact.
	normalized := trimmed
	if idx := strings.LastIndex(trimmed, "-"); idx > 0 && len(trimmed)-idx <= 3 {
		normalized = trimmed[:idx] + "." + trimmed[idx+1:]
	}

	if !tickerPattern.MatchString(normalized) {
		return Ticker{Raw: raw}
	}

	return Ticker{
		Symbol: normalized,
		Raw:    raw,
	}
}

// Valid reports whether the ticker parsed to a usable symbol.
func (t Ticker) Valid() bool {
	return t.Symbol != ""
}

// String returns the normalized symbol.
func (t Ticker) String() string {
	return t.Symbol
}

// YahooSymbol returns the symbol in Yahoo Finance form.
// Yahoo uses dashes for class shares: "BRK.B" -> "BRK-B".
func (t Ticker) YahooSymbol() string {
	return strings.ReplaceAll(t.Symbol, ".", "-")
}

// FMPSymbol returns the symbol in Financial Modeling Prep form.
// FMP also uses dashes for class shares.
func (t Ticker) FMPSymbol() string {
	return strings.ReplaceAll(t.Symbol, ".", "-")
}

// FinnhubSymbol returns the symbol in Finnhub form (dot notation).
func (t Ticker) FinnhubSymbol() string {
	return t.Symbol
}

// CacheToken returns the symbol form used inside cache keys.
// Dots are folded to dashes so keys stay filesystem-safe.
func (t Ticker) CacheToken() string {
	return strings.ReplaceAll(t.Symbol, ".", "-")
}

// ParseTickers parses a list of ticker strings, dropping invalid entries.
func ParseTickers(tickers []string) []Ticker {
	result := make([]Ticker, 0, len(tickers))
	for _, t := range tickers {
		if parsed := ParseTicker(t); parsed.Valid() {
			result = append(result, parsed)
		}
	}
	return result
}

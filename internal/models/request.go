package models

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects which fragments a request requires and whether the LLM
// step runs synchronously, in the background, or not at all.
type Mode string

const (
	// ModeFull fetches every fragment and runs the LLM synchronously.
	ModeFull Mode = "full"
	// ModeCachedOnly serves a fresh stored bundle or fails with a cache miss.
	ModeCachedOnly Mode = "cached-only"
	// ModeMetricsOnly fetches every non-LLM fragment; stored analysis is reused when present.
	ModeMetricsOnly Mode = "metrics-only"
	// ModeDeferred behaves like metrics-only and enqueues a background full rerun.
	ModeDeferred Mode = "deferred"
)

// ParseMode normalizes a mode string. Empty input means full.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeFull:
		return ModeFull, nil
	case ModeCachedOnly:
		return ModeCachedOnly, nil
	case ModeMetricsOnly:
		return ModeMetricsOnly, nil
	case ModeDeferred:
		return ModeDeferred, nil
	default:
		return "", &ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", raw)}
	}
}

// SkipsLLM reports whether the synchronous path omits the LLM call.
func (m Mode) SkipsLLM() bool {
	return m == ModeMetricsOnly || m == ModeDeferred
}

// AnalysisRequest is the parsed input of one analysis run.
type AnalysisRequest struct {
	Ticker        string `json:"ticker"`
	Date          string `json:"date"`
	Model         string `json:"model,omitempty"`
	AnalysisModel string `json:"analysis_model,omitempty"` // Alias accepted by the API; wins over Model when both are set
	Mode          Mode   `json:"mode,omitempty"`
}

// EffectiveModel resolves the model field aliases.
func (r AnalysisRequest) EffectiveModel() string {
	if r.AnalysisModel != "" {
		return r.AnalysisModel
	}
	return r.Model
}

// RequestKey identifies one analysis run. All cache keys derive from it.
type RequestKey struct {
	Ticker       string    `json:"ticker"`
	BaselineDate time.Time `json:"baseline_date"`
	ModelVariant string    `json:"model_variant"`
}

// DateString returns the baseline date in wire format.
func (k RequestKey) DateString() string {
	return k.BaselineDate.Format("2006-01-02")
}

// String renders the composite storage key.
func (k RequestKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Ticker, k.DateString(), k.ModelVariant)
}

// Variant suffixes distinguish cached bundles by whether the LLM step ran.
const (
	VariantFullSuffix    = "__full"
	VariantMetricsSuffix = "__metrics"
)

// ResolveVariant suffixes a model identifier with the run kind.
func ResolveVariant(model string, skipLLM bool) string {
	if skipLLM {
		return model + VariantMetricsSuffix
	}
	return model + VariantFullSuffix
}

// ValidationError reports a bad request input. Handlers map it to HTTP 400.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

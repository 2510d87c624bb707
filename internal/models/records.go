package models

import (
	"encoding/json"
	"time"
)

// AnalysisRecord is the durable results-store row for one finalized bundle.
// Key is "<ticker>|<date>|<variant>"; the bundle is stored as raw JSON so
// the record round-trips byte-identically.
type AnalysisRecord struct {
	Key          string          `json:"key" badgerhold:"key"`
	Ticker       string          `json:"ticker" badgerhold:"index"`
	BaselineDate string          `json:"baseline_date"`
	ModelVariant string          `json:"model_variant"`
	Bundle       json.RawMessage `json:"bundle"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// DecodeBundle unmarshals the stored bundle.
func (r *AnalysisRecord) DecodeBundle() (*AnalysisBundle, error) {
	var bundle AnalysisBundle
	if err := json.Unmarshal(r.Bundle, &bundle); err != nil {
		return nil, err
	}
	return &bundle, nil
}

// LLMCacheRecord caches one validated LLM output across requests.
// Hash is the SHA-256 of (payload, prompt_version, model).
type LLMCacheRecord struct {
	Hash          string          `json:"hash" badgerhold:"key"`
	Parsed        json.RawMessage `json:"parsed"`
	Usage         *LLMUsage       `json:"usage,omitempty"`
	Model         string          `json:"model"`
	PromptVersion string          `json:"prompt_version"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

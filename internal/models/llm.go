package models

import "time"

// Analysis ratings the LLM must choose from.
const (
	RatingBuy  = "BUY"
	RatingHold = "HOLD"
	RatingSell = "SELL"
)

// AnalysisResult is the validated LLM output. The wire shape is fixed by
// the system prompt; anything outside it is rejected or repaired before
// this struct is populated.
type AnalysisResult struct {
	Action       AnalysisAction `json:"action"`
	Segment      string         `json:"segment,omitempty"`
	QualityScore *float64       `json:"quality_score,omitempty"`
	Thesis       string         `json:"thesis,omitempty"`
	Highlights   []string       `json:"highlights,omitempty"`
	Risks        []string       `json:"risks,omitempty"`
}

// AnalysisAction is the actionable core of the analysis.
type AnalysisAction struct {
	Rating        string   `json:"rating"`
	TargetPrice   *float64 `json:"target_price,omitempty"`
	Confidence    string   `json:"confidence,omitempty"` // high | medium | low
	Rationale     string   `json:"rationale,omitempty"`
	GuardrailNote string   `json:"guardrail_note,omitempty"`
}

// LLMUsage meters one model invocation. Costs are USD.
type LLMUsage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	InputCost        float64 `json:"input_cost"`
	OutputCost       float64 `json:"output_cost"`
	TotalCost        float64 `json:"total_cost"`
	Model            string  `json:"model,omitempty"`
	Cached           bool    `json:"cached,omitempty"`
}

// Add accumulates another invocation into this usage record.
func (u *LLMUsage) Add(other *LLMUsage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.InputCost += other.InputCost
	u.OutputCost += other.OutputCost
	u.TotalCost += other.TotalCost
}

// UsageSample is one spend observation inside the adaptive monitor window.
type UsageSample struct {
	At          time.Time `json:"at"`
	TotalTokens int       `json:"total_tokens"`
	TotalCost   float64   `json:"total_cost"`
	Model       string    `json:"model,omitempty"`
}

// AdaptiveLimits sizes the LLM payload. The usage monitor shrinks these
// from the configured defaults when the windowed cost rate runs hot.
type AdaptiveLimits struct {
	MaxFilings int  `json:"max_filings"`
	NewsLimit  int  `json:"news_limit"`
	Degraded   bool `json:"degraded,omitempty"`
}

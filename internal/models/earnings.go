package models

// EarningsCall summarizes the transcript nearest the baseline quarter.
type EarningsCall struct {
	Quarter int      `json:"quarter,omitempty"`
	Year    int      `json:"year,omitempty"`
	Date    string   `json:"date,omitempty"`
	Summary string   `json:"summary,omitempty"`
	Bullets []string `json:"bullets,omitempty"`
	Kind    string   `json:"kind,omitempty"`   // llm | fallback
	Status  string   `json:"status,omitempty"` // "missing" marks a cached negative result
	Error   string   `json:"error,omitempty"`
}

// EarningsCallMissing is the placeholder cached for quarters with no
// transcript so the quarter fallback loop advances instead of refetching.
const EarningsCallMissing = "missing"

package models

// Filing summary kinds. LLM summaries replace fallback ones when a key
// becomes available on a later request.
const (
	SummaryKindLLM      = "llm"
	SummaryKindFallback = "fallback"
)

// FilingDescriptor locates one regulatory filing.
type FilingDescriptor struct {
	Form       string `json:"form"` // 10-K, 10-Q
	FilingDate string `json:"filing_date"`
	ReportDate string `json:"report_date,omitempty"`
	URL        string `json:"url"`
	FinalLink  string `json:"final_link,omitempty"` // Direct document link when the index URL differs
}

// FilingSummary is the narrative digest of one filing's MD&A section.
// Only fallback summaries carry an excerpt of the raw text.
type FilingSummary struct {
	Form        string `json:"form"`
	FilingDate  string `json:"filing_date"`
	ReportDate  string `json:"report_date,omitempty"`
	MDASummary  string `json:"mda_summary"`
	SummaryKind string `json:"summary_kind"` // llm | fallback
	MDAExcerpt  string `json:"mda_excerpt,omitempty"`
	URL         string `json:"url,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Upgradeable reports whether a stored summary should be replaced when an
// LLM key is now available.
func (s *FilingSummary) Upgradeable() bool {
	return s != nil && s.SummaryKind == SummaryKindFallback
}

package models

import "time"

// News sentiment labels. Chinese tags are canonical; SentimentTag carries
// the semantic equivalent.
const (
	SentimentPositive = "樂觀"
	SentimentNeutral  = "中性"
	SentimentNegative = "悲觀"

	SentimentTagPositive = "positive"
	SentimentTagNeutral  = "neutral"
	SentimentTagNegative = "negative"
)

// NewsBundle carries the merged, deduplicated article set and the
// sentiment pass over it.
type NewsBundle struct {
	Keywords    []string       `json:"keywords,omitempty"`
	KeywordKind string         `json:"keyword_kind,omitempty"` // llm | fallback
	Articles    []NewsArticle  `json:"articles,omitempty"`
	Sentiment   *NewsSentiment `json:"sentiment,omitempty"`
	AsOf        time.Time      `json:"as_of,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// NewsArticle is one normalized article. Weight ranks source quality so
// duplicates keep the best copy.
type NewsArticle struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	Publisher   string    `json:"publisher,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Summary     string    `json:"summary,omitempty"`
	Symbols     []string  `json:"symbols,omitempty"`
	Weight      int       `json:"weight"`
}

// NewsSentiment is the LLM classification of the trimmed article set.
type NewsSentiment struct {
	Label            string   `json:"sentiment_label"`
	Tag              string   `json:"sentiment_tag"`
	Summary          string   `json:"summary,omitempty"`
	SupportingEvents []string `json:"supporting_events,omitempty"`
	Kind             string   `json:"kind,omitempty"` // llm | fallback
}

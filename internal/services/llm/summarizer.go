package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/models"
)

// Input caps for summarization prompts. MD&A sections and transcripts
// run to hundreds of kilobytes; the head carries the narrative.
const (
	maxSummaryInputRunes = 20000
	fallbackSummaryRunes = 400
)

// geminiEnabled reports whether the secondary-model key is resolvable.
func (s *Service) geminiEnabled() bool {
	_, err := common.ResolveAPIKey(context.Background(), s.keys, "gemini_api_key", s.config.Gemini.APIKey)
	return err == nil
}

func (s *Service) geminiModel() string {
	if s.config.Gemini.Model != "" {
		return s.config.Gemini.Model
	}
	return s.config.RepairModel
}

// SummarizeMDA condenses one filing's MD&A section. Without a key, or
// when the call fails, it degrades to a leading-sentence extract marked
// as kind fallback so a later request can upgrade it.
func (s *Service) SummarizeMDA(ctx context.Context, ticker, form, text string) (string, string, error) {
	if strings.TrimSpace(text) == "" {
		return "", models.SummaryKindFallback, fmt.Errorf("no filing text to summarize")
	}
	if !s.geminiEnabled() {
		return extractiveSummary(text, fallbackSummaryRunes), models.SummaryKindFallback, nil
	}

	resp, _, err := s.invoke(ctx, generateRequest{
		model:  s.geminiModel(),
		system: mdaPrompt,
		user:   fmt.Sprintf("Ticker: %s\nForm: %s\n\n%s", ticker, form, trimForPrompt(text)),
		schema: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: map[string]*genai.Schema{"summary": {Type: genai.TypeString}},
			Required:   []string{"summary"},
		},
		maxTokens: 512,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("ticker", ticker).Str("form", form).Msg("MD&A summarization failed, using extract fallback")
		return extractiveSummary(text, fallbackSummaryRunes), models.SummaryKindFallback, nil
	}

	var out struct {
		Summary string `json:"summary"`
	}
	if err := decodeSummaryJSON(resp.text, &out); err != nil || strings.TrimSpace(out.Summary) == "" {
		s.logger.Warn().Err(err).Str("ticker", ticker).Msg("MD&A summary response unusable, using extract fallback")
		return extractiveSummary(text, fallbackSummaryRunes), models.SummaryKindFallback, nil
	}
	return strings.TrimSpace(out.Summary), models.SummaryKindLLM, nil
}

// SummarizeTranscript condenses one earnings call transcript into a
// summary plus bullet highlights.
func (s *Service) SummarizeTranscript(ctx context.Context, ticker string, quarter, year int, text string) (string, []string, string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil, models.SummaryKindFallback, fmt.Errorf("no transcript text to summarize")
	}
	if !s.geminiEnabled() {
		return extractiveSummary(text, fallbackSummaryRunes), nil, models.SummaryKindFallback, nil
	}

	resp, _, err := s.invoke(ctx, generateRequest{
		model:  s.geminiModel(),
		system: transcriptPrompt,
		user:   fmt.Sprintf("Ticker: %s\nQuarter: Q%d %d\n\n%s", ticker, quarter, year, trimForPrompt(text)),
		schema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"summary": {Type: genai.TypeString},
				"bullets": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			},
			Required: []string{"summary"},
		},
		maxTokens: 768,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("ticker", ticker).Int("quarter", quarter).Msg("Transcript summarization failed, using extract fallback")
		return extractiveSummary(text, fallbackSummaryRunes), nil, models.SummaryKindFallback, nil
	}

	var out struct {
		Summary string   `json:"summary"`
		Bullets []string `json:"bullets"`
	}
	if err := decodeSummaryJSON(resp.text, &out); err != nil || strings.TrimSpace(out.Summary) == "" {
		s.logger.Warn().Err(err).Str("ticker", ticker).Msg("Transcript summary response unusable, using extract fallback")
		return extractiveSummary(text, fallbackSummaryRunes), nil, models.SummaryKindFallback, nil
	}
	return strings.TrimSpace(out.Summary), out.Bullets, models.SummaryKindLLM, nil
}

// ClassifyNews labels the trimmed article set with one overall sentiment.
// The label vocabulary is fixed; anything else from the model maps back
// to neutral.
func (s *Service) ClassifyNews(ctx context.Context, ticker string, articles []models.NewsArticle) (*models.NewsSentiment, error) {
	if len(articles) == 0 {
		return &models.NewsSentiment{
			Label:   models.SentimentNeutral,
			Tag:     models.SentimentTagNeutral,
			Summary: "無近期新聞可供判讀。",
			Kind:    models.SummaryKindFallback,
		}, nil
	}
	if !s.geminiEnabled() {
		return fallbackSentiment(articles), nil
	}

	resp, _, err := s.invoke(ctx, generateRequest{
		model:  s.geminiModel(),
		system: newsPrompt,
		user:   fmt.Sprintf("Ticker: %s\n\n%s", ticker, articleDigest(articles)),
		schema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"sentiment_label": {
					Type: genai.TypeString,
					Enum: []string{models.SentimentPositive, models.SentimentNeutral, models.SentimentNegative},
				},
				"summary":           {Type: genai.TypeString},
				"supporting_events": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			},
			Required: []string{"sentiment_label"},
		},
		maxTokens: 512,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("ticker", ticker).Msg("News sentiment classification failed, using neutral fallback")
		return fallbackSentiment(articles), nil
	}

	var out struct {
		Label            string   `json:"sentiment_label"`
		Summary          string   `json:"summary"`
		SupportingEvents []string `json:"supporting_events"`
	}
	if err := decodeSummaryJSON(resp.text, &out); err != nil {
		s.logger.Warn().Err(err).Str("ticker", ticker).Msg("News sentiment response unusable, using neutral fallback")
		return fallbackSentiment(articles), nil
	}

	label := canonicalSentiment(out.Label)
	return &models.NewsSentiment{
		Label:            label,
		Tag:              sentimentTag(label),
		Summary:          strings.TrimSpace(out.Summary),
		SupportingEvents: out.SupportingEvents,
		Kind:             models.SummaryKindLLM,
	}, nil
}

// ExpandKeywords turns a ticker into news search phrases. The fallback
// set pairs the ticker with the standing earnings/outlook queries.
func (s *Service) ExpandKeywords(ctx context.Context, ticker, companyName string) ([]string, string, error) {
	if !s.geminiEnabled() {
		return fallbackKeywords(ticker), models.SummaryKindFallback, nil
	}

	resp, _, err := s.invoke(ctx, generateRequest{
		model:  s.geminiModel(),
		system: keywordPrompt,
		user:   fmt.Sprintf("Ticker: %s\nCompany: %s", ticker, companyName),
		schema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"keywords": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			},
			Required: []string{"keywords"},
		},
		maxTokens: 256,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("ticker", ticker).Msg("Keyword expansion failed, using standing queries")
		return fallbackKeywords(ticker), models.SummaryKindFallback, nil
	}

	var out struct {
		Keywords []string `json:"keywords"`
	}
	if err := decodeSummaryJSON(resp.text, &out); err != nil || len(out.Keywords) == 0 {
		return fallbackKeywords(ticker), models.SummaryKindFallback, nil
	}

	keywords := make([]string, 0, len(out.Keywords))
	for _, kw := range out.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) == 0 {
		return fallbackKeywords(ticker), models.SummaryKindFallback, nil
	}
	if len(keywords) > 8 {
		keywords = keywords[:8]
	}
	return keywords, models.SummaryKindLLM, nil
}

// decodeSummaryJSON unmarshals a small response shape, tolerating prose
// around the object. Repair is not attempted here; the caller's
// deterministic fallback is cheaper than a second model call.
func decodeSummaryJSON(text string, out interface{}) error {
	cleaned := cleanResponse(text)
	if err := json.Unmarshal([]byte(cleaned), out); err == nil {
		return nil
	}
	sub, ok := extractJSONObject(cleaned)
	if !ok {
		return fmt.Errorf("no JSON object in response")
	}
	return json.Unmarshal([]byte(sub), out)
}

// articleDigest renders the numbered headline list fed to the classifier.
func articleDigest(articles []models.NewsArticle) string {
	var b strings.Builder
	for i, a := range articles {
		fmt.Fprintf(&b, "%d. [%s] %s", i+1, a.Source, a.Title)
		if a.Summary != "" {
			b.WriteString(" - ")
			b.WriteString(truncateRunes(a.Summary, 200))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func fallbackSentiment(articles []models.NewsArticle) *models.NewsSentiment {
	events := make([]string, 0, 3)
	for _, a := range articles {
		if len(events) == 3 {
			break
		}
		events = append(events, a.Title)
	}
	return &models.NewsSentiment{
		Label:            models.SentimentNeutral,
		Tag:              models.SentimentTagNeutral,
		Summary:          "未啟用語言模型，情緒判讀以中性處理。",
		SupportingEvents: events,
		Kind:             models.SummaryKindFallback,
	}
}

func fallbackKeywords(ticker string) []string {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	return []string{t, t + " earnings", t + " outlook", "guidance", "margin"}
}

func canonicalSentiment(label string) string {
	switch strings.TrimSpace(label) {
	case models.SentimentPositive, models.SentimentNegative:
		return strings.TrimSpace(label)
	default:
		return models.SentimentNeutral
	}
}

func sentimentTag(label string) string {
	switch label {
	case models.SentimentPositive:
		return models.SentimentTagPositive
	case models.SentimentNegative:
		return models.SentimentTagNegative
	default:
		return models.SentimentTagNeutral
	}
}

// extractiveSummary returns the leading sentences of text, capped at max
// runes, preferring a sentence boundary past the halfway point.
func extractiveSummary(text string, max int) string {
	flat := strings.Join(strings.Fields(text), " ")
	runes := []rune(flat)
	if len(runes) <= max {
		return flat
	}

	cut := string(runes[:max])
	if idx := strings.LastIndex(cut, ". "); idx > max/2 {
		return cut[:idx+1]
	}
	if idx := strings.LastIndex(cut, "。"); idx > max/2 {
		return cut[:idx+len("。")]
	}
	return strings.TrimSpace(cut)
}

func trimForPrompt(text string) string {
	return truncateRunes(strings.TrimSpace(text), maxSummaryInputRunes)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

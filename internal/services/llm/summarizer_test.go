package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/aestimo/internal/models"
)

// maskGeminiKeys blanks the secondary-model keys so the deterministic
// fallback paths run regardless of the ambient environment.
func maskGeminiKeys(t *testing.T) {
	t.Helper()
	t.Setenv("AESTIMO_GEMINI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
}

func TestSummarizeMDAFallbackWithoutKey(t *testing.T) {
	maskGeminiKeys(t)
	svc := newTestService(t)

	text := strings.Repeat("Net revenue grew on datacenter demand. ", 40)
	summary, kind, err := svc.SummarizeMDA(context.Background(), "NVDA", "10-K", text)
	require.NoError(t, err)
	assert.Equal(t, models.SummaryKindFallback, kind)
	assert.NotEmpty(t, summary)
	assert.LessOrEqual(t, len([]rune(summary)), fallbackSummaryRunes)
}

func TestSummarizeMDAEmptyTextFails(t *testing.T) {
	maskGeminiKeys(t)
	svc := newTestService(t)

	_, kind, err := svc.SummarizeMDA(context.Background(), "NVDA", "10-K", "   ")
	assert.Error(t, err)
	assert.Equal(t, models.SummaryKindFallback, kind)
}

func TestSummarizeTranscriptFallbackWithoutKey(t *testing.T) {
	maskGeminiKeys(t)
	svc := newTestService(t)

	summary, bullets, kind, err := svc.SummarizeTranscript(context.Background(), "TSM", 2, 2025, "Management reiterated full-year guidance. Capex unchanged.")
	require.NoError(t, err)
	assert.Equal(t, models.SummaryKindFallback, kind)
	assert.Contains(t, summary, "guidance")
	assert.Empty(t, bullets)
}

func TestClassifyNewsEmptyArticles(t *testing.T) {
	maskGeminiKeys(t)
	svc := newTestService(t)

	sentiment, err := svc.ClassifyNews(context.Background(), "TSM", nil)
	require.NoError(t, err)
	assert.Equal(t, models.SentimentNeutral, sentiment.Label)
	assert.Equal(t, models.SentimentTagNeutral, sentiment.Tag)
	assert.Equal(t, models.SummaryKindFallback, sentiment.Kind)
}

func TestClassifyNewsFallbackWithoutKey(t *testing.T) {
	maskGeminiKeys(t)
	svc := newTestService(t)

	articles := []models.NewsArticle{
		{Title: "TSM beats earnings estimates", Source: "fmp"},
		{Title: "Foundry demand stays strong", Source: "finnhub"},
		{Title: "New fab announced in Arizona", Source: "fmp"},
		{Title: "Analyst raises target", Source: "finnhub"},
	}

	sentiment, err := svc.ClassifyNews(context.Background(), "TSM", articles)
	require.NoError(t, err)
	assert.Equal(t, models.SentimentNeutral, sentiment.Label)
	assert.Equal(t, models.SummaryKindFallback, sentiment.Kind)
	require.Len(t, sentiment.SupportingEvents, 3)
	assert.Equal(t, "TSM beats earnings estimates", sentiment.SupportingEvents[0])
}

func TestExpandKeywordsFallback(t *testing.T) {
	maskGeminiKeys(t)
	svc := newTestService(t)

	keywords, kind, err := svc.ExpandKeywords(context.Background(), "tsm", "Taiwan Semiconductor")
	require.NoError(t, err)
	assert.Equal(t, models.SummaryKindFallback, kind)
	assert.Equal(t, []string{"TSM", "TSM earnings", "TSM outlook", "guidance", "margin"}, keywords)
}

func TestExtractiveSummaryPrefersSentenceBoundary(t *testing.T) {
	text := strings.Repeat("Revenue grew nine percent. ", 30)
	summary := extractiveSummary(text, 100)
	assert.True(t, strings.HasSuffix(summary, "."))
	assert.LessOrEqual(t, len([]rune(summary)), 100)
}

func TestExtractiveSummaryChineseBoundary(t *testing.T) {
	text := strings.Repeat("營收持續成長。", 40)
	summary := extractiveSummary(text, 50)
	assert.True(t, strings.HasSuffix(summary, "。"))
	assert.LessOrEqual(t, len([]rune(summary)), 50)
}

func TestExtractiveSummaryShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "Margins expanded.", extractiveSummary("  Margins   expanded. ", 400))
}

func TestCanonicalSentiment(t *testing.T) {
	assert.Equal(t, models.SentimentPositive, canonicalSentiment("樂觀"))
	assert.Equal(t, models.SentimentNegative, canonicalSentiment("悲觀"))
	assert.Equal(t, models.SentimentNeutral, canonicalSentiment("中性"))
	assert.Equal(t, models.SentimentNeutral, canonicalSentiment("bullish"))
	assert.Equal(t, models.SentimentNeutral, canonicalSentiment(""))
}

func TestSentimentTag(t *testing.T) {
	assert.Equal(t, models.SentimentTagPositive, sentimentTag(models.SentimentPositive))
	assert.Equal(t, models.SentimentTagNegative, sentimentTag(models.SentimentNegative))
	assert.Equal(t, models.SentimentTagNeutral, sentimentTag(models.SentimentNeutral))
}

func TestArticleDigestFormat(t *testing.T) {
	digest := articleDigest([]models.NewsArticle{
		{Title: "Earnings beat", Source: "fmp", Summary: "Q2 revenue above consensus."},
		{Title: "Guidance raised", Source: "finnhub"},
	})

	assert.Contains(t, digest, "1. [fmp] Earnings beat - Q2 revenue above consensus.")
	assert.Contains(t, digest, "2. [finnhub] Guidance raised")
}

func TestDecodeSummaryJSONToleratesProse(t *testing.T) {
	var out struct {
		Summary string `json:"summary"`
	}
	err := decodeSummaryJSON("這是摘要：{\"summary\":\"營收成長\"}", &out)
	require.NoError(t, err)
	assert.Equal(t, "營收成長", out.Summary)
}

package fragments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/models"
)

func TestNewsMergesFeeds(t *testing.T) {
	published := time.Date(2025, 8, 19, 12, 0, 0, 0, time.UTC)
	stock := &stubNews{
		stockNews: func(symbols []string, limit int) ([]models.NewsArticle, error) {
			assert.Equal(t, []string{"AAPL"}, symbols)
			assert.Equal(t, 12, limit, "three times the article budget")
			return []models.NewsArticle{
				{Title: "Apple beats estimates", URL: "https://example.com/a", PublishedAt: published, Symbols: []string{"AAPL"}},
				{Title: "Rival wins contract", URL: "https://example.com/rival", PublishedAt: published, Symbols: []string{"OTHER"}},
			}, nil
		},
	}
	company := &stubCompanyNews{
		companyNews: func(symbol string, from, to time.Time) ([]models.NewsArticle, error) {
			return []models.NewsArticle{
				{Title: "apple BEATS  estimates", URL: "https://mirror.example.com/a", PublishedAt: published},
				{Title: "Supply chain update", URL: "https://example.com/b", PublishedAt: published.Add(-2 * time.Hour)},
			}, nil
		},
	}
	svc := newTestService(Providers{News: stock, CompanyNews: company})

	bundle := svc.News(context.Background(), common.ParseTicker("AAPL"), 0)
	require.NotNil(t, bundle)
	require.Empty(t, bundle.Error)

	require.Len(t, bundle.Articles, 2, "title duplicate collapsed, foreign symbol dropped")
	assert.Equal(t, "https://example.com/a", bundle.Articles[0].URL, "the heavier feed's copy wins the dup")
	assert.Equal(t, newsWeightPrimary, bundle.Articles[0].Weight)
	assert.Equal(t, "Supply chain update", bundle.Articles[1].Title, "untagged articles pass the filter")
	assert.Equal(t, newsWeightSecondary, bundle.Articles[1].Weight)

	require.NotNil(t, bundle.Sentiment)
	assert.Equal(t, models.SentimentNeutral, bundle.Sentiment.Label)
	assert.NotEmpty(t, bundle.Keywords)
	assert.Equal(t, models.SummaryKindFallback, bundle.KeywordKind)
}

func TestNewsCachesFullSetTrimsOnRead(t *testing.T) {
	calls := 0
	stock := &stubNews{
		stockNews: func(symbols []string, limit int) ([]models.NewsArticle, error) {
			calls++
			articles := make([]models.NewsArticle, 6)
			base := time.Date(2025, 8, 19, 12, 0, 0, 0, time.UTC)
			for i := range articles {
				articles[i] = models.NewsArticle{
					Title:       "Headline " + string(rune('A'+i)),
					URL:         "https://example.com/" + string(rune('a'+i)),
					PublishedAt: base.Add(-time.Duration(i) * time.Hour),
				}
			}
			return articles, nil
		},
	}
	svc := newTestService(Providers{News: stock})
	ticker := common.ParseTicker("AAPL")

	small := svc.News(context.Background(), ticker, 2)
	require.Len(t, small.Articles, 2)
	assert.Equal(t, "Headline A", small.Articles[0].Title, "newest first within one feed")

	// The degraded request cached the full default set.
	full := svc.News(context.Background(), ticker, 0)
	assert.Len(t, full.Articles, 4)
	assert.Equal(t, 1, calls)
}

func TestNewsNoSourceAnswered(t *testing.T) {
	calls := 0
	stock := &stubNews{
		stockNews: func(symbols []string, limit int) ([]models.NewsArticle, error) {
			calls++
			return nil, errors.New("status 502")
		},
	}
	svc := newTestService(Providers{News: stock})
	ticker := common.ParseTicker("AAPL")

	bundle := svc.News(context.Background(), ticker, 0)
	require.NotNil(t, bundle)
	assert.Equal(t, "no news source answered", bundle.Error)
	assert.NotEmpty(t, bundle.Keywords, "keyword expansion still runs")

	// Transport failures are not cached.
	svc.News(context.Background(), ticker, 0)
	assert.Equal(t, 2, calls)
}

func TestNewsCarriesLLMClassification(t *testing.T) {
	stock := &stubNews{
		stockNews: func(symbols []string, limit int) ([]models.NewsArticle, error) {
			return []models.NewsArticle{{Title: "Record quarter", URL: "https://example.com/q"}}, nil
		},
	}
	svc := newTestService(Providers{News: stock})
	svc.summarizer = &stubSummarizer{
		keywords: func(ticker, companyName string) ([]string, string, error) {
			return []string{"Apple", "iPhone", "Tim Cook"}, models.SummaryKindLLM, nil
		},
		classify: func(ticker string, articles []models.NewsArticle) (*models.NewsSentiment, error) {
			return &models.NewsSentiment{
				Label:   models.SentimentPositive,
				Tag:     models.SentimentTagPositive,
				Summary: "獲利優於預期,動能延續。",
				Kind:    models.SummaryKindLLM,
			}, nil
		},
	}

	bundle := svc.News(context.Background(), common.ParseTicker("AAPL"), 0)
	require.NotNil(t, bundle)
	assert.Equal(t, models.SummaryKindLLM, bundle.KeywordKind)
	assert.Equal(t, []string{"Apple", "iPhone", "Tim Cook"}, bundle.Keywords)
	require.NotNil(t, bundle.Sentiment)
	assert.Equal(t, models.SentimentPositive, bundle.Sentiment.Label)
	assert.Equal(t, models.SummaryKindLLM, bundle.Sentiment.Kind)
}

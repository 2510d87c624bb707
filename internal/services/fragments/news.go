package fragments

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/models"
)

// Source weights; the primary feed wins dedupe ties.
const (
	newsWeightPrimary   = 2
	newsWeightSecondary = 1
)

// News assembles the deduplicated article set and its sentiment read.
// The limit normally comes from the adaptive payload limits; zero means
// the configured default. The cache always stores the full default set
// so a degraded request never starves the next one.
func (s *Service) News(ctx context.Context, ticker common.Ticker, limit int) *models.NewsBundle {
	if limit <= 0 || limit > s.research.NewsArticleLimit {
		limit = s.research.NewsArticleLimit
	}

	key := "news_" + ticker.CacheToken()
	cached := new(models.NewsBundle)
	if s.kvGet(key, hours(s.research.NewsCacheTTLHours), cached) {
		return trimArticles(cached, limit)
	}

	bundle := s.buildNews(ctx, ticker)
	if bundle.Error == "" {
		s.kvPut(key, bundle)
	}
	return trimArticles(bundle, limit)
}

func trimArticles(bundle *models.NewsBundle, limit int) *models.NewsBundle {
	if len(bundle.Articles) <= limit {
		return bundle
	}
	trimmed := *bundle
	trimmed.Articles = bundle.Articles[:limit]
	return &trimmed
}

func (s *Service) buildNews(ctx context.Context, ticker common.Ticker) *models.NewsBundle {
	bundle := &models.NewsBundle{AsOf: time.Now().UTC()}

	companyName := ""
	if profile := s.companyProfile(ctx, ticker); profile != nil {
		companyName = profile.Name
	}

	keywords, kind, err := s.summarizer.ExpandKeywords(ctx, ticker.Symbol, companyName)
	if err != nil {
		s.logger.Debug().Str("ticker", ticker.Symbol).Err(err).Msg("Keyword expansion errored")
	}
	bundle.Keywords = keywords
	bundle.KeywordKind = kind

	articles, answered := s.fetchArticles(ctx, ticker)
	if !answered {
		bundle.Error = "no news source answered"
		return bundle
	}

	articles = dedupeArticles(articles)
	articles = filterBySymbol(articles, ticker)
	sortArticles(articles)
	if len(articles) > s.research.NewsArticleLimit {
		articles = articles[:s.research.NewsArticleLimit]
	}
	bundle.Articles = articles

	sentiment, err := s.summarizer.ClassifyNews(ctx, ticker.Symbol, articles)
	if err != nil {
		s.logger.Warn().Str("ticker", ticker.Symbol).Err(err).Msg("News classification failed")
	} else {
		bundle.Sentiment = sentiment
	}
	return bundle
}

// fetchArticles queries both feeds in parallel and stamps source
// weights. The second return is false when no source answered at all.
func (s *Service) fetchArticles(ctx context.Context, ticker common.Ticker) ([]models.NewsArticle, bool) {
	type feedResult struct {
		articles []models.NewsArticle
		weight   int
		err      error
	}

	var wg sync.WaitGroup
	results := make(chan feedResult, 2)

	if s.providers.News != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			articles, err := s.providers.News.StockNews(ctx, []string{ticker.FMPSymbol()}, s.research.NewsArticleLimit*3)
			results <- feedResult{articles, newsWeightPrimary, err}
		}()
	}
	if s.providers.CompanyNews != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			to := time.Now().UTC()
			articles, err := s.providers.CompanyNews.CompanyNews(ctx, ticker.FinnhubSymbol(), to.AddDate(0, 0, -7), to)
			results <- feedResult{articles, newsWeightSecondary, err}
		}()
	}

	wg.Wait()
	close(results)

	var merged []models.NewsArticle
	answered := false
	for r := range results {
		if r.err != nil {
			s.logger.Warn().Str("ticker", ticker.Symbol).Err(r.err).Msg("News feed failed")
			continue
		}
		answered = true
		for _, article := range r.articles {
			article.Weight = r.weight
			merged = append(merged, article)
		}
	}
	return merged, answered
}

// dedupeArticles collapses identical URLs and titles, keeping the
// heavier source's copy.
func dedupeArticles(articles []models.NewsArticle) []models.NewsArticle {
	seen := make(map[string]int)
	out := make([]models.NewsArticle, 0, len(articles))

	for _, article := range articles {
		keys := make([]string, 0, 2)
		if article.URL != "" {
			keys = append(keys, "u:"+article.URL)
		}
		if title := normalizeTitle(article.Title); title != "" {
			keys = append(keys, "t:"+title)
		}

		dup := -1
		for _, key := range keys {
			if i, ok := seen[key]; ok {
				dup = i
				break
			}
		}
		if dup >= 0 {
			if article.Weight > out[dup].Weight {
				out[dup] = article
			}
			continue
		}

		out = append(out, article)
		for _, key := range keys {
			seen[key] = len(out) - 1
		}
	}
	return out
}

func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// filterBySymbol drops articles tagged for other tickers. Untagged
// articles stay; the feeds already scoped the query.
func filterBySymbol(articles []models.NewsArticle, ticker common.Ticker) []models.NewsArticle {
	out := articles[:0]
	for _, article := range articles {
		if len(article.Symbols) == 0 || hasSymbol(article.Symbols, ticker) {
			out = append(out, article)
		}
	}
	return out
}

func hasSymbol(symbols []string, ticker common.Ticker) bool {
	for _, symbol := range symbols {
		if strings.EqualFold(symbol, ticker.Symbol) || strings.EqualFold(symbol, ticker.FMPSymbol()) {
			return true
		}
	}
	return false
}

func sortArticles(articles []models.NewsArticle) {
	sort.SliceStable(articles, func(i, j int) bool {
		if articles[i].Weight != articles[j].Weight {
			return articles[i].Weight > articles[j].Weight
		}
		return articles[i].PublishedAt.After(articles[j].PublishedAt)
	})
}

package fragments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/secfilings"
)

// filingFetchConcurrency bounds parallel EDGAR fetches; the SEC rate
// limit is shared across the process.
const filingFetchConcurrency = 3

// mdaExcerptChars is how much raw MD&A text a fallback summary carries.
const mdaExcerptChars = 400

// FilingSummaries resolves summaries for the most recent annual and
// quarterly filings. Prior bundle output and the filing cache are
// consulted first; fallback summaries upgrade to LLM output when a key
// has arrived since they were written.
func (s *Service) FilingSummaries(ctx context.Context, ticker common.Ticker, maxFilings int, prior []models.FilingSummary, llmEnabled bool) ([]models.FilingDescriptor, []models.FilingSummary) {
	if maxFilings <= 0 {
		maxFilings = s.research.MaxFilingsForLLM
	}

	descriptors := s.recentFilings(ctx, ticker, maxFilings)
	if len(descriptors) == 0 {
		return nil, nil
	}

	summaries := make([]models.FilingSummary, len(descriptors))
	sem := make(chan struct{}, filingFetchConcurrency)
	var wg sync.WaitGroup
	for i := range descriptors {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			summaries[i] = s.filingSummary(ctx, ticker, descriptors[i], prior, llmEnabled)
		}(i)
	}
	wg.Wait()

	return descriptors, summaries
}

// recentFilings merges the latest 10-K and 10-Q descriptors, newest
// first.
func (s *Service) recentFilings(ctx context.Context, ticker common.Ticker, limit int) []models.FilingDescriptor {
	if s.providers.Filings == nil {
		return nil
	}

	var merged []models.FilingDescriptor
	for _, form := range []string{"10-K", "10-Q"} {
		filings, err := s.providers.Filings.Filings(ctx, ticker.FMPSymbol(), form, limit)
		if err != nil {
			if !errors.Is(err, interfaces.ErrRecordNotFound) {
				s.logger.Warn().Str("ticker", ticker.Symbol).Str("form", form).Err(err).Msg("Filing list fetch failed")
			}
			continue
		}
		merged = append(merged, filings...)
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].FilingDate > merged[j].FilingDate })
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

func (s *Service) filingSummary(ctx context.Context, ticker common.Ticker, descriptor models.FilingDescriptor, prior []models.FilingSummary, llmEnabled bool) models.FilingSummary {
	// A prior bundle answer is reused unless it was a fallback and the
	// summarizer can now do better.
	for _, p := range prior {
		if p.Form == descriptor.Form && p.FilingDate == descriptor.FilingDate && p.Error == "" {
			if !p.Upgradeable() || !llmEnabled {
				return p
			}
		}
	}

	key := filingSummaryKey(ticker, descriptor)
	cached := new(models.FilingSummary)
	if s.kvGet(key, days(s.research.FilingSummaryTTLDays), cached) {
		if !cached.Upgradeable() || !llmEnabled {
			return *cached
		}
	}

	summary := s.summarizeFiling(ctx, ticker, descriptor)
	if summary.Error == "" {
		s.kvPut(key, summary)
	}
	return summary
}

func filingSummaryKey(ticker common.Ticker, descriptor models.FilingDescriptor) string {
	return fmt.Sprintf("filing_summary_%s_%s_%s", ticker.CacheToken(), descriptor.Form, descriptor.FilingDate)
}

func (s *Service) summarizeFiling(ctx context.Context, ticker common.Ticker, descriptor models.FilingDescriptor) models.FilingSummary {
	summary := models.FilingSummary{
		Form:       descriptor.Form,
		FilingDate: descriptor.FilingDate,
		ReportDate: descriptor.ReportDate,
		URL:        descriptor.URL,
	}

	if s.providers.FilingText == nil {
		summary.Error = "no filing text source configured"
		return summary
	}

	docURL := descriptor.FinalLink
	if docURL == "" {
		docURL = descriptor.URL
	}
	text, err := s.providers.FilingText.FilingText(ctx, docURL)
	if err != nil {
		s.logger.Warn().Str("ticker", ticker.Symbol).Str("form", descriptor.Form).Err(err).Msg("Filing text fetch failed")
		summary.Error = "filing text unavailable: " + err.Error()
		return summary
	}

	mda := secfilings.SliceMDA(text)
	content, kind, err := s.summarizer.SummarizeMDA(ctx, ticker.Symbol, descriptor.Form, mda)
	if err != nil {
		s.logger.Warn().Str("ticker", ticker.Symbol).Str("form", descriptor.Form).Err(err).Msg("Filing summarization failed")
		summary.Error = "summarization failed: " + err.Error()
		return summary
	}

	summary.MDASummary = content
	summary.SummaryKind = kind
	if kind == models.SummaryKindFallback {
		summary.MDAExcerpt = secfilings.Excerpt(mda, mdaExcerptChars)
	}
	return summary
}

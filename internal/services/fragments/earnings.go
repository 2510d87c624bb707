package fragments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// EarningsCall summarizes the transcript for the baseline's quarter,
// falling back to the prior quarter when the call has not happened yet.
// Missing quarters are cached as placeholders so the walk stays cheap.
func (s *Service) EarningsCall(ctx context.Context, ticker common.Ticker, baseline time.Time, historical bool) *models.EarningsCall {
	if s.providers.Transcripts == nil {
		return &models.EarningsCall{Status: models.EarningsCallMissing}
	}

	maxAge := freshness(historical, days(s.research.EarningsCallTTLDays))
	year, quarter := quarterOf(baseline)

	for attempt := 0; attempt < 2; attempt++ {
		key := fmt.Sprintf("earnings_call_%s_%d-Q%d", ticker.CacheToken(), year, quarter)

		cached := new(models.EarningsCall)
		if s.kvGet(key, maxAge, cached) {
			if cached.Status != models.EarningsCallMissing {
				return cached
			}
		} else if call := s.buildEarningsCall(ctx, ticker, year, quarter); call != nil {
			s.kvPut(key, call)
			if call.Status != models.EarningsCallMissing {
				return call
			}
		}

		year, quarter = prevQuarter(year, quarter)
	}

	return &models.EarningsCall{Status: models.EarningsCallMissing}
}

// buildEarningsCall returns nil on transport failures so they are not
// cached as missing quarters.
func (s *Service) buildEarningsCall(ctx context.Context, ticker common.Ticker, year, quarter int) *models.EarningsCall {
	transcript, err := s.providers.Transcripts.Transcript(ctx, ticker.FMPSymbol(), quarter, year)
	if errors.Is(err, interfaces.ErrRecordNotFound) {
		return &models.EarningsCall{Quarter: quarter, Year: year, Status: models.EarningsCallMissing}
	}
	if err != nil {
		s.logger.Warn().Str("ticker", ticker.Symbol).Int("year", year).Int("quarter", quarter).Err(err).Msg("Transcript fetch failed")
		return nil
	}

	summary, bullets, kind, err := s.summarizer.SummarizeTranscript(ctx, ticker.Symbol, quarter, year, transcript.Content)
	if err != nil {
		s.logger.Warn().Str("ticker", ticker.Symbol).Err(err).Msg("Transcript summarization failed")
		return nil
	}

	return &models.EarningsCall{
		Quarter: quarter,
		Year:    year,
		Date:    transcript.Date,
		Summary: summary,
		Bullets: bullets,
		Kind:    kind,
	}
}

package fragments

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// ratingTrendMinDays anchors the trend comparison far enough back that
// day-to-day score noise does not flip the direction.
const ratingTrendMinDays = 30

// analystCall shares one in-progress aggregate across concurrent
// callers. The stored result is never mutated; every caller receives a
// copy with a detached price-target block so downstream upside
// derivation cannot race.
type analystCall struct {
	done   chan struct{}
	result *models.AnalystSignals
}

// Analyst aggregates sell-side coverage. Concurrent builds for the same
// ticker and baseline collapse onto one flight; the extended
// sub-fragments (estimates, grades) are skipped when the baseline sits
// outside the configured window around today.
func (s *Service) Analyst(ctx context.Context, ticker common.Ticker, baseline time.Time) *models.AnalystSignals {
	key := ticker.Symbol + "_" + dateKey(baseline)

	s.analystMu.Lock()
	if call, ok := s.analystInflight[key]; ok {
		s.analystMu.Unlock()
		select {
		case <-call.done:
			return copySignals(call.result)
		case <-ctx.Done():
			return &models.AnalystSignals{Error: ctx.Err().Error()}
		}
	}
	call := &analystCall{done: make(chan struct{})}
	s.analystInflight[key] = call
	s.analystMu.Unlock()

	defer func() {
		s.analystMu.Lock()
		delete(s.analystInflight, key)
		s.analystMu.Unlock()
		close(call.done)
	}()

	call.result = s.buildAnalyst(ctx, ticker, baseline)
	return copySignals(call.result)
}

func copySignals(signals *models.AnalystSignals) *models.AnalystSignals {
	if signals == nil {
		return nil
	}
	out := *signals
	if signals.PriceTarget != nil {
		target := *signals.PriceTarget
		out.PriceTarget = &target
	}
	return &out
}

func (s *Service) buildAnalyst(ctx context.Context, ticker common.Ticker, baseline time.Time) *models.AnalystSignals {
	signals := &models.AnalystSignals{AsOf: time.Now().UTC()}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		signals.PriceTarget = s.priceTargetSummary(ctx, ticker)
	}()
	go func() {
		defer wg.Done()
		signals.Ratings = s.ratingsBlock(ctx, ticker)
	}()
	if s.withinExtendedWindow(baseline) {
		wg.Add(2)
		go func() {
			defer wg.Done()
			signals.Estimates = s.estimatesBlock(ctx, ticker)
		}()
		go func() {
			defer wg.Done()
			signals.Grades = s.gradesBlock(ctx, ticker)
		}()
	}
	wg.Wait()

	if signals.PriceTarget == nil && signals.Ratings == nil && signals.Estimates == nil && signals.Grades == nil {
		signals.Error = "no analyst source answered"
	}
	return signals
}

// withinExtendedWindow reports whether the baseline sits close enough
// to today for the extended sub-fragments to stay meaningful.
func (s *Service) withinExtendedWindow(baseline time.Time) bool {
	diff := time.Since(baseline)
	if diff < 0 {
		diff = -diff
	}
	return diff <= days(s.research.AnalystExtendedWindowDays)
}

func (s *Service) priceTargetSummary(ctx context.Context, ticker common.Ticker) *models.PriceTargetSummary {
	key := "analyst_target_" + ticker.CacheToken()
	cached := new(models.PriceTargetSummary)
	if s.kvGet(key, hours(s.research.AnalystPriceTargetTTLHours), cached) {
		return cached
	}

	summary := s.fetchPriceTarget(ctx, ticker)
	if summary == nil {
		return nil
	}
	s.applyTargetConfidence(summary)
	s.kvPut(key, summary)
	return summary
}

func (s *Service) fetchPriceTarget(ctx context.Context, ticker common.Ticker) *models.PriceTargetSummary {
	if s.providers.PriceTargets != nil {
		summary, err := s.providers.PriceTargets.PriceTargetSummary(ctx, ticker.FMPSymbol())
		if err == nil {
			return summary
		}
		if !errors.Is(err, interfaces.ErrRecordNotFound) {
			s.logger.Warn().Str("ticker", ticker.Symbol).Err(err).Msg("Price target summary failed")
		}
	}

	if s.providers.AnalystFallback != nil {
		summary, err := s.providers.AnalystFallback.AnalystSummary(ctx, ticker.YahooSymbol())
		if err == nil {
			return yahooTargets(summary)
		}
		if !errors.Is(err, interfaces.ErrRecordNotFound) {
			s.logger.Warn().Str("ticker", ticker.Symbol).Err(err).Msg("Analyst summary fallback failed")
		}
	}
	return nil
}

// yahooTargets adapts the Yahoo analyst roll-up into the consensus
// shape. Yahoo reports one aggregate window, so the monthly bucket
// carries the publisher count.
func yahooTargets(summary *models.AnalystSummary) *models.PriceTargetSummary {
	out := &models.PriceTargetSummary{PublisherCount: summary.AnalystCount}
	if summary.TargetMean > 0 {
		out.TargetMean = ptr(summary.TargetMean)
		out.LastMonthAvg = ptr(summary.TargetMean)
		out.LastMonthCount = summary.AnalystCount
	}
	if summary.TargetHigh > 0 {
		out.TargetHigh = ptr(summary.TargetHigh)
	}
	if summary.TargetLow > 0 {
		out.TargetLow = ptr(summary.TargetLow)
	}
	if summary.TargetMedian > 0 {
		out.TargetMedian = ptr(summary.TargetMedian)
	}
	return out
}

// applyTargetConfidence grades the consensus by publisher depth: the
// first window with enough publishers decides, high iff its average is
// present.
func (s *Service) applyTargetConfidence(summary *models.PriceTargetSummary) {
	windows := []struct {
		name  string
		count int
		avg   *float64
	}{
		{"month", summary.LastMonthCount, summary.LastMonthAvg},
		{"quarter", summary.LastQuarterCount, summary.LastQuarterAvg},
		{"year", summary.LastYearCount, summary.LastYearAvg},
	}

	summary.Confidence = models.ConfidenceLow
	for _, w := range windows {
		if w.count >= s.research.PriceTargetSampleThreshold {
			if w.avg != nil {
				summary.Confidence = models.ConfidenceHigh
				summary.ConfidenceWindow = w.name
			}
			break
		}
	}
}

// ApplyUpside derives the percentage distance from the current price to
// the consensus mean once both fragments are known.
func ApplyUpside(signals *models.AnalystSignals, currentPrice float64) {
	if signals == nil || signals.PriceTarget == nil || currentPrice <= 0 {
		return
	}
	if mean := signals.PriceTarget.TargetMean; mean != nil {
		signals.PriceTarget.UpsidePercent = ptr((*mean - currentPrice) / currentPrice * 100)
	}
}

func (s *Service) ratingsBlock(ctx context.Context, ticker common.Ticker) *models.RatingsBlock {
	if s.providers.Ratings == nil {
		return nil
	}

	key := "analyst_ratings_" + ticker.CacheToken()
	cached := new(models.RatingsBlock)
	if s.kvGet(key, hours(s.research.AnalystRatingsTTLHours), cached) {
		return cached
	}

	block := new(models.RatingsBlock)
	snapshot, err := s.providers.Ratings.RatingSnapshot(ctx, ticker.FMPSymbol())
	if err == nil {
		block.Snapshot = snapshot
	} else if !errors.Is(err, interfaces.ErrRecordNotFound) {
		s.logger.Warn().Str("ticker", ticker.Symbol).Err(err).Msg("Rating snapshot failed")
	}

	historical, err := s.providers.Ratings.RatingsHistorical(ctx, ticker.FMPSymbol(), 90)
	if err == nil {
		block.Historical = historical
		applyRatingTrend(block)
		// The trend needs the deep history; the bundle keeps a month.
		if len(block.Historical) > 30 {
			block.Historical = block.Historical[:30]
		}
	} else if !errors.Is(err, interfaces.ErrRecordNotFound) {
		s.logger.Warn().Str("ticker", ticker.Symbol).Err(err).Msg("Ratings history failed")
	}

	if block.Snapshot == nil && len(block.Historical) == 0 {
		return nil
	}
	s.kvPut(key, block)
	return block
}

// applyRatingTrend compares the latest composite score against the
// first snapshot at least thirty days older.
func applyRatingTrend(block *models.RatingsBlock) {
	if len(block.Historical) == 0 {
		return
	}

	sort.Slice(block.Historical, func(i, j int) bool {
		return block.Historical[i].Date > block.Historical[j].Date
	})

	latest := block.Historical[0]
	latestDate, err := time.Parse(common.BaselineDateFormat, latest.Date)
	if err != nil {
		return
	}

	for _, snap := range block.Historical[1:] {
		date, err := time.Parse(common.BaselineDateFormat, snap.Date)
		if err != nil {
			continue
		}
		age := int(latestDate.Sub(date).Hours() / 24)
		if age < ratingTrendMinDays {
			continue
		}
		delta := latest.Score - snap.Score
		block.Trend = ratingTrend(delta)
		block.TrendDelta = ptr(delta)
		block.TrendWindowDays = age
		return
	}

	block.Trend = models.RatingTrendStable
}

func ratingTrend(delta float64) string {
	switch {
	case delta > 0:
		return models.RatingTrendImproving
	case delta < 0:
		return models.RatingTrendWorsening
	default:
		return models.RatingTrendStable
	}
}

func (s *Service) estimatesBlock(ctx context.Context, ticker common.Ticker) *models.AnalystEstimates {
	if s.providers.Estimates == nil {
		return nil
	}

	key := "analyst_estimates_" + ticker.CacheToken()
	cached := new(models.AnalystEstimates)
	if s.kvGet(key, hours(s.research.AnalystEstimatesTTLHours), cached) {
		return cached
	}

	out := new(models.AnalystEstimates)
	if quarterly, err := s.providers.Estimates.AnalystEstimates(ctx, ticker.FMPSymbol(), "quarter", 4); err == nil {
		out.Quarterly = quarterly
	} else if !errors.Is(err, interfaces.ErrRecordNotFound) {
		s.logger.Warn().Str("ticker", ticker.Symbol).Err(err).Msg("Quarterly estimates failed")
	}
	if annual, err := s.providers.Estimates.AnalystEstimates(ctx, ticker.FMPSymbol(), "annual", 2); err == nil {
		out.Annual = annual
	} else if !errors.Is(err, interfaces.ErrRecordNotFound) {
		s.logger.Warn().Str("ticker", ticker.Symbol).Err(err).Msg("Annual estimates failed")
	}

	if len(out.Quarterly) == 0 && len(out.Annual) == 0 {
		return nil
	}
	s.kvPut(key, out)
	return out
}

func (s *Service) gradesBlock(ctx context.Context, ticker common.Ticker) *models.GradesBlock {
	if s.providers.Grades == nil {
		return nil
	}

	key := "analyst_grades_" + ticker.CacheToken()
	cached := new(models.GradesBlock)
	if s.kvGet(key, hours(s.research.AnalystGradesTTLHours), cached) {
		return cached
	}

	out := new(models.GradesBlock)
	if actions, err := s.providers.Grades.GradeActions(ctx, ticker.FMPSymbol(), 20); err == nil {
		out.RecentActions = actions
	} else if !errors.Is(err, interfaces.ErrRecordNotFound) {
		s.logger.Warn().Str("ticker", ticker.Symbol).Err(err).Msg("Grade actions failed")
	}
	if counts, err := s.providers.Grades.GradeHistogram(ctx, ticker.FMPSymbol(), 12); err == nil {
		out.HistoricalCounts = counts
	} else if !errors.Is(err, interfaces.ErrRecordNotFound) {
		s.logger.Warn().Str("ticker", ticker.Symbol).Err(err).Msg("Grade histogram failed")
	}
	if consensus, err := s.providers.Grades.GradeConsensus(ctx, ticker.FMPSymbol()); err == nil {
		out.Consensus = consensus
	} else if !errors.Is(err, interfaces.ErrRecordNotFound) {
		s.logger.Warn().Str("ticker", ticker.Symbol).Err(err).Msg("Grade consensus failed")
	}

	if len(out.RecentActions) == 0 && len(out.HistoricalCounts) == 0 && out.Consensus == nil {
		return nil
	}
	s.kvPut(key, out)
	return out
}

package fragments

import (
	"context"
	"time"

	"github.com/ternarybob/aestimo/internal/models"
)

// Macro context window around the baseline. Calendar events look both
// ways because scheduled releases shortly after the baseline shape the
// setup; yields only look back.
const (
	macroLookbackDays  = 7
	macroLookaheadDays = 7
)

// Macro collects the rate backdrop: calendar events around the
// baseline, the 2s10s spread and the equity risk premium. The snapshot
// is ticker-independent and cached per date.
func (s *Service) Macro(ctx context.Context, baseline time.Time, historical bool) *models.MacroSnapshot {
	if s.providers.Macro == nil {
		return &models.MacroSnapshot{Error: "no macro source configured"}
	}

	key := "macro_" + dateKey(baseline)
	cached := new(models.MacroSnapshot)
	if s.kvGet(key, freshness(historical, hours(s.research.NewsCacheTTLHours)), cached) {
		return cached
	}

	snapshot := s.buildMacro(ctx, baseline)
	if snapshot.Error == "" {
		s.kvPut(key, snapshot)
	}
	return snapshot
}

func (s *Service) buildMacro(ctx context.Context, baseline time.Time) *models.MacroSnapshot {
	from := baseline.AddDate(0, 0, -macroLookbackDays)
	to := baseline.AddDate(0, 0, macroLookaheadDays)

	snapshot := &models.MacroSnapshot{
		WindowStart: dateKey(from),
		WindowEnd:   dateKey(to),
	}

	failures := 0

	events, err := s.providers.Macro.EconomicCalendar(ctx, from, to)
	if err != nil {
		failures++
		s.logger.Warn().Err(err).Msg("Economic calendar fetch failed")
	} else {
		if len(events) > s.research.MacroEventLimit {
			events = events[:s.research.MacroEventLimit]
		}
		snapshot.Events = events
	}

	yields, err := s.providers.Macro.TreasuryYields(ctx, from, baseline)
	if err != nil {
		failures++
		s.logger.Warn().Err(err).Msg("Treasury yields fetch failed")
	} else {
		applyYields(snapshot, yields)
	}

	premium, err := s.providers.Macro.MarketRiskPremium(ctx, "US")
	if err != nil {
		s.logger.Debug().Err(err).Msg("Risk premium unavailable")
	} else {
		snapshot.RiskPremium = ptr(premium)
	}

	if failures == 2 {
		snapshot.Error = "macro sources unavailable"
	}
	return snapshot
}

// applyYields keeps the latest session carrying both tenors so the
// spread compares one day, not two.
func applyYields(snapshot *models.MacroSnapshot, yields []models.TreasuryYields) {
	best := -1
	for i, row := range yields {
		if row.Y10 == nil || row.Y2 == nil {
			continue
		}
		if best < 0 || row.Date > yields[best].Date {
			best = i
		}
	}
	if best < 0 {
		return
	}

	row := yields[best]
	snapshot.Yield10Y = row.Y10
	snapshot.Yield2Y = row.Y2
	snapshot.Spread = ptr(*row.Y10 - *row.Y2)
}

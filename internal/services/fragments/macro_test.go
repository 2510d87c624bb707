package fragments

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/aestimo/internal/models"
)

func TestMacroSnapshot(t *testing.T) {
	calendarCalls := 0
	macro := &stubMacro{
		calendar: func(from, to time.Time) ([]models.EconomicEvent, error) {
			calendarCalls++
			assert.Equal(t, "2025-08-13", dateKey(from))
			assert.Equal(t, "2025-08-27", dateKey(to))
			events := make([]models.EconomicEvent, 12)
			for i := range events {
				events[i] = models.EconomicEvent{Date: "2025-08-20", Event: fmt.Sprintf("Release %d", i)}
			}
			return events, nil
		},
		yields: func(from, to time.Time) ([]models.TreasuryYields, error) {
			assert.Equal(t, "2025-08-20", dateKey(to), "yields only look back")
			return []models.TreasuryYields{
				{Date: "2025-08-19", Y10: ptr(4.25)},
				{Date: "2025-08-18", Y10: ptr(4.30), Y2: ptr(3.80)},
				{Date: "2025-08-15", Y10: ptr(4.20), Y2: ptr(3.75)},
			}, nil
		},
		premium: func(country string) (float64, error) {
			assert.Equal(t, "US", country)
			return 5.5, nil
		},
	}
	svc := newTestService(Providers{Macro: macro})
	baseline := mustDate(t, "2025-08-20")

	snapshot := svc.Macro(context.Background(), baseline, false)
	require.NotNil(t, snapshot)
	require.Empty(t, snapshot.Error)
	assert.Len(t, snapshot.Events, 10, "capped at the configured limit")
	require.NotNil(t, snapshot.Yield10Y)
	assert.Equal(t, 4.30, *snapshot.Yield10Y, "latest session carrying both tenors")
	require.NotNil(t, snapshot.Spread)
	assert.InDelta(t, 0.5, *snapshot.Spread, 1e-9)
	require.NotNil(t, snapshot.RiskPremium)
	assert.Equal(t, 5.5, *snapshot.RiskPremium)
	assert.Equal(t, "2025-08-13", snapshot.WindowStart)
	assert.Equal(t, "2025-08-27", snapshot.WindowEnd)

	// Cached per date: the same baseline reuses, a new one rebuilds.
	svc.Macro(context.Background(), baseline, false)
	assert.Equal(t, 1, calendarCalls)
	svc.Macro(context.Background(), mustDate(t, "2025-08-21"), false)
	assert.Equal(t, 2, calendarCalls)
}

func TestMacroPartialFailureStillAnswers(t *testing.T) {
	yieldCalls := 0
	macro := &stubMacro{
		calendar: func(from, to time.Time) ([]models.EconomicEvent, error) {
			return nil, errors.New("status 429")
		},
		yields: func(from, to time.Time) ([]models.TreasuryYields, error) {
			yieldCalls++
			return []models.TreasuryYields{
				{Date: "2025-08-19", Y10: ptr(4.0), Y2: ptr(4.2)},
			}, nil
		},
	}
	svc := newTestService(Providers{Macro: macro})
	baseline := mustDate(t, "2025-08-20")

	snapshot := svc.Macro(context.Background(), baseline, false)
	require.NotNil(t, snapshot)
	assert.Empty(t, snapshot.Error, "one surviving source is enough")
	assert.Empty(t, snapshot.Events)
	require.NotNil(t, snapshot.Spread)
	assert.InDelta(t, -0.2, *snapshot.Spread, 1e-9, "inverted curve")

	svc.Macro(context.Background(), baseline, false)
	assert.Equal(t, 1, yieldCalls, "partial snapshots are still cached")
}

func TestMacroAllSourcesFail(t *testing.T) {
	calls := 0
	macro := &stubMacro{
		calendar: func(from, to time.Time) ([]models.EconomicEvent, error) {
			calls++
			return nil, errors.New("status 502")
		},
		yields: func(from, to time.Time) ([]models.TreasuryYields, error) {
			return nil, errors.New("status 502")
		},
	}
	svc := newTestService(Providers{Macro: macro})
	baseline := mustDate(t, "2025-08-20")

	snapshot := svc.Macro(context.Background(), baseline, false)
	require.NotNil(t, snapshot)
	assert.Equal(t, "macro sources unavailable", snapshot.Error)

	svc.Macro(context.Background(), baseline, false)
	assert.Equal(t, 2, calls, "failures are not cached")
}

func TestMacroNoProvider(t *testing.T) {
	svc := newTestService(Providers{})

	snapshot := svc.Macro(context.Background(), mustDate(t, "2025-08-20"), false)
	require.NotNil(t, snapshot)
	assert.Equal(t, "no macro source configured", snapshot.Error)
}

package fragments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

func ptrInt64(v int64) *int64 { return &v }

func TestInstitutionalCurrentQuarter(t *testing.T) {
	holders := &stubHolders{
		thirteenF: func(symbol string, year, quarter int) (*models.ThirteenF, error) {
			assert.Equal(t, 2025, year)
			assert.Equal(t, 2, quarter)
			return &models.ThirteenF{
				QuarterEnd: "2025-06-30",
				NetShares:  ptrInt64(15000),
				Rows: []models.HolderRow{
					{Holder: "Fidelity", Shares: 700, Value: 300, ChangeShares: 0},
					{Holder: "Vanguard", Shares: 1000, Value: 600, ChangeShares: 100},
					{Holder: "Norges", Shares: 500, Value: 100, ChangeShares: 10},
					{Holder: "BlackRock", Shares: 900, Value: 500, ChangeShares: -50},
					{Holder: "Geode", Shares: 600, Value: 200, ChangeShares: 20},
					{Holder: "State Street", Shares: 800, Value: 400, ChangeShares: 30},
				},
			}, nil
		},
	}
	svc := newTestService(Providers{Holders: holders})

	snapshot := svc.Institutional(context.Background(), common.ParseTicker("AAPL"), mustDate(t, "2025-08-20"), false)
	require.NotNil(t, snapshot)
	assert.Empty(t, snapshot.Error)
	assert.Equal(t, "2025-06-30", snapshot.AsOf)

	require.NotNil(t, snapshot.Signal)
	assert.Equal(t, models.InstitutionalAccumulating, snapshot.Signal.Label)
	assert.Equal(t, models.SignalTagAccumulating, snapshot.Signal.Tag)
	assert.Equal(t, int64(15000), snapshot.Signal.NetShares, "summary-level figure wins over row sums")

	require.Len(t, snapshot.Top, 5)
	assert.Equal(t, "Vanguard", snapshot.Top[0].Holder)
	assert.Equal(t, "Geode", snapshot.Top[4].Holder, "smallest position dropped")

	require.NotNil(t, snapshot.Metrics)
	assert.Equal(t, 6, snapshot.Metrics.HolderCount)
	assert.Equal(t, 2100.0, snapshot.Metrics.TotalValue)
	assert.Equal(t, int64(4500), snapshot.Metrics.TotalShares)
	assert.Equal(t, 0, snapshot.Metrics.QuartersBack)
	assert.Contains(t, snapshot.Summary, "6家機構申報")
	assert.Contains(t, snapshot.Summary, "+15000")

	assert.Nil(t, snapshot.Insider)
	assert.Nil(t, snapshot.AnalystActions)
}

func TestInstitutionalWalksBackQuarters(t *testing.T) {
	calls := 0
	holders := &stubHolders{
		thirteenF: func(symbol string, year, quarter int) (*models.ThirteenF, error) {
			calls++
			if year == 2024 && quarter == 4 {
				return &models.ThirteenF{
					QuarterEnd: "2024-12-31",
					Rows:       []models.HolderRow{{Holder: "Vanguard", Shares: 100, Value: 50, ChangeShares: 5}},
				}, nil
			}
			return nil, interfaces.ErrRecordNotFound
		},
	}
	svc := newTestService(Providers{Holders: holders})
	ticker := common.ParseTicker("AAPL")
	baseline := mustDate(t, "2025-08-20")

	snapshot := svc.Institutional(context.Background(), ticker, baseline, false)
	require.NotNil(t, snapshot)
	require.NotNil(t, snapshot.Metrics)
	assert.Equal(t, 2, snapshot.Metrics.QuartersBack)
	assert.Equal(t, "2024-12-31", snapshot.AsOf)
	assert.Equal(t, 3, calls)

	// Empty quarters cached under the sentinel: no repeat upstream walk.
	svc.Institutional(context.Background(), ticker, baseline, false)
	assert.Equal(t, 3, calls)
}

func TestInstitutionalSumsRowChanges(t *testing.T) {
	holders := &stubHolders{
		thirteenF: func(symbol string, year, quarter int) (*models.ThirteenF, error) {
			return &models.ThirteenF{
				QuarterEnd: "2025-06-30",
				Rows: []models.HolderRow{
					{Holder: "Vanguard", Shares: 1000, Value: 600, ChangeShares: -700},
					{Holder: "BlackRock", Shares: 900, Value: 500, ChangeShares: 200},
				},
			}, nil
		},
	}
	svc := newTestService(Providers{Holders: holders})

	snapshot := svc.Institutional(context.Background(), common.ParseTicker("AAPL"), mustDate(t, "2025-08-20"), false)
	require.NotNil(t, snapshot.Signal)
	assert.Equal(t, int64(-500), snapshot.Signal.NetShares)
	assert.Equal(t, models.InstitutionalReducing, snapshot.Signal.Label)
	assert.Equal(t, models.SignalTagReducing, snapshot.Signal.Tag)
	assert.Contains(t, snapshot.Summary, "-500")
}

func TestInstitutionalNoFiling(t *testing.T) {
	svc := newTestService(Providers{Holders: &stubHolders{}})

	snapshot := svc.Institutional(context.Background(), common.ParseTicker("SPAC"), mustDate(t, "2025-08-20"), false)
	require.NotNil(t, snapshot)
	assert.Equal(t, "no 13F filing within 4 quarters", snapshot.Error)
	assert.Nil(t, snapshot.Signal)
	assert.Empty(t, snapshot.Top)
}

func TestInsiderActivityWindow(t *testing.T) {
	baseline := mustDate(t, "2025-08-20")
	insiders := &stubInsiders{
		trades: func(symbol string, from, to time.Time) ([]models.InsiderTrade, error) {
			assert.Equal(t, "2025-05-22", dateKey(from))
			assert.Equal(t, "2025-09-03", dateKey(to))
			return []models.InsiderTrade{
				{Date: "2025-08-01", Name: "Jane Roe", Type: "buy", Shares: 1000},
				{Date: "2025-07-15", Name: "John Doe", Type: "sell", Shares: 300},
				{Date: "2025-07-01", Name: "Sam Lee", Type: "other", Shares: 9999},
			}, nil
		},
	}
	svc := newTestService(Providers{Insiders: insiders})

	snapshot := svc.Institutional(context.Background(), common.ParseTicker("AAPL"), baseline, false)
	insider := snapshot.Insider
	require.NotNil(t, insider)
	assert.Equal(t, 1, insider.BuyCount)
	assert.Equal(t, 1, insider.SellCount)
	assert.Equal(t, int64(1000), insider.BuyShares)
	assert.Equal(t, int64(300), insider.SellShares)
	assert.Equal(t, int64(700), insider.NetShares, "option exercises and awards do not move the net")
	assert.Equal(t, models.InstitutionalAccumulating, insider.Label)
	assert.Len(t, insider.LastTrades, 3)
	assert.Equal(t, "2025-05-22", insider.WindowStart)
	assert.Equal(t, "2025-09-03", insider.WindowEnd)
}

func TestAnalystActionCounts(t *testing.T) {
	grades := &stubGrades{
		actions: func(symbol string, limit int) ([]models.GradeAction, error) {
			return []models.GradeAction{
				{Date: "2025-08-17", Company: "Morgan Stanley", Action: "Upgrade"},
				{Date: "2025-08-22", Company: "Citi", Action: "upgrade"},
				{Date: "2025-08-18", Company: "Barclays", Action: "Maintains"},
				{Date: "2025-07-31", Company: "UBS", Action: "downgrade"},
				{Date: "2025-07-11", Company: "Jefferies", Action: "upgrade"},
			}, nil
		},
	}
	svc := newTestService(Providers{Grades: grades})

	snapshot := svc.Institutional(context.Background(), common.ParseTicker("AAPL"), mustDate(t, "2025-08-20"), false)
	actions := snapshot.AnalystActions
	require.NotNil(t, actions)
	assert.Equal(t, 1, actions.Upgrades7d)
	assert.Equal(t, 1, actions.Upgrades30d, "post-baseline and stale actions excluded")
	assert.Equal(t, 0, actions.Downgrades7d)
	assert.Equal(t, 1, actions.Downgrades30d)
	assert.False(t, actions.AsOf.IsZero())
}

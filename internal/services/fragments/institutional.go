package fragments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/storage/diskcache"
)

// Insider trade window bounds. The lookahead catches filings reported a
// few days after the baseline for trades executed before it; neither
// bound is baseline-relative config because the SEC filing cadence does
// not vary per deployment.
const (
	insiderLookbackDays  = 90
	insiderLookaheadDays = 14
)

// thirteenFMaxQuartersBack bounds the quarter walk; managers report
// with up to 45 days of lag, so one stale quarter is common and three
// means coverage effectively lapsed.
const thirteenFMaxQuartersBack = 3

// Institutional aggregates 13F ownership with insider activity and the
// broker action counts around the baseline.
func (s *Service) Institutional(ctx context.Context, ticker common.Ticker, baseline time.Time, historical bool) *models.InstitutionalSnapshot {
	snapshot := new(models.InstitutionalSnapshot)

	filing, quartersBack := s.thirteenF(ctx, ticker, baseline, historical)
	if filing == nil {
		snapshot.Error = fmt.Sprintf("no 13F filing within %d quarters", thirteenFMaxQuartersBack+1)
	} else {
		applyHoldings(snapshot, filing, quartersBack)
	}

	snapshot.Insider = s.insiderActivity(ctx, ticker, baseline)
	snapshot.AnalystActions = s.analystActions(ctx, ticker, baseline)
	return snapshot
}

// thirteenF walks back from the last completed quarter until a filing
// answers. Quarters that answered empty are cached under the sentinel
// so quiet tickers stop costing upstream calls.
func (s *Service) thirteenF(ctx context.Context, ticker common.Ticker, baseline time.Time, historical bool) (*models.ThirteenF, int) {
	if s.providers.Holders == nil {
		return nil, 0
	}

	year, quarter := lastCompletedQuarter(baseline)
	maxAge := freshness(historical, days(s.research.ThirteenFTTLDays))

	for back := 0; back <= thirteenFMaxQuartersBack; back++ {
		key := fmt.Sprintf("fmp_13f_%s_%d-Q%d", ticker.CacheToken(), year, quarter)

		var raw json.RawMessage
		if s.kvGet(key, maxAge, &raw) {
			if !diskcache.IsEmptySentinel(raw) {
				filing := new(models.ThirteenF)
				if err := json.Unmarshal(raw, filing); err == nil {
					return filing, back
				}
			}
		} else {
			filing, err := s.providers.Holders.ThirteenF(ctx, ticker.FMPSymbol(), year, quarter)
			switch {
			case err == nil:
				s.kvPut(key, filing)
				return filing, back
			case errors.Is(err, interfaces.ErrRecordNotFound):
				s.kvPut(key, diskcache.EmptySentinel())
			default:
				s.logger.Warn().Str("ticker", ticker.Symbol).Int("year", year).Int("quarter", quarter).Err(err).Msg("13F fetch failed")
			}
		}

		year, quarter = prevQuarter(year, quarter)
	}
	return nil, 0
}

// applyHoldings folds the winning filing into the snapshot: top five
// positions by value, the net share movement and the canonical label.
func applyHoldings(snapshot *models.InstitutionalSnapshot, filing *models.ThirteenF, quartersBack int) {
	rows := append([]models.HolderRow(nil), filing.Rows...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Value > rows[j].Value })
	if len(rows) > 5 {
		rows = rows[:5]
	}

	var totalValue float64
	var totalShares int64
	for _, row := range filing.Rows {
		totalValue += row.Value
		totalShares += row.Shares
	}

	net := int64(0)
	if filing.NetShares != nil {
		net = *filing.NetShares
	} else {
		for _, row := range filing.Rows {
			net += row.ChangeShares
		}
	}

	label, tag := flowLabel(net)

	snapshot.AsOf = filing.QuarterEnd
	snapshot.Signal = &models.InstitutionalSignal{Label: label, Tag: tag, NetShares: net}
	snapshot.Top = rows
	snapshot.Summary = holdingsSummary(label, len(filing.Rows), net)
	snapshot.Metrics = &models.HolderMetrics{
		HolderCount:     len(filing.Rows),
		TotalValue:      totalValue,
		TotalShares:     totalShares,
		QuartersBack:    quartersBack,
		ReportedQuarter: filing.QuarterEnd,
	}
}

func flowLabel(net int64) (string, string) {
	switch {
	case net > 0:
		return models.InstitutionalAccumulating, models.SignalTagAccumulating
	case net < 0:
		return models.InstitutionalReducing, models.SignalTagReducing
	default:
		return models.InstitutionalFlat, models.SignalTagFlat
	}
}

// holdingsSummary writes the one-line digest shown in reports.
func holdingsSummary(label string, holderCount int, net int64) string {
	return fmt.Sprintf("機構持倉%s:%d家機構申報,淨變動%s股。", label, holderCount, signedShares(net))
}

func signedShares(net int64) string {
	if net > 0 {
		return fmt.Sprintf("+%d", net)
	}
	return fmt.Sprintf("%d", net)
}

// insiderActivity summarizes reported officer and director trades in
// the window around the baseline.
func (s *Service) insiderActivity(ctx context.Context, ticker common.Ticker, baseline time.Time) *models.InsiderActivity {
	if s.providers.Insiders == nil {
		return nil
	}

	from := baseline.AddDate(0, 0, -insiderLookbackDays)
	to := baseline.AddDate(0, 0, insiderLookaheadDays)
	trades, err := s.providers.Insiders.InsiderTrades(ctx, ticker.FMPSymbol(), from, to)
	if err != nil {
		if !errors.Is(err, interfaces.ErrRecordNotFound) {
			s.logger.Warn().Str("ticker", ticker.Symbol).Err(err).Msg("Insider trades fetch failed")
		}
		return nil
	}
	if len(trades) == 0 {
		return nil
	}

	activity := &models.InsiderActivity{
		WindowStart: dateKey(from),
		WindowEnd:   dateKey(to),
	}
	for _, trade := range trades {
		switch trade.Type {
		case "buy":
			activity.BuyCount++
			activity.BuyShares += trade.Shares
		case "sell":
			activity.SellCount++
			activity.SellShares += trade.Shares
		}
	}
	activity.NetShares = activity.BuyShares - activity.SellShares
	activity.Label, activity.Tag = flowLabel(activity.NetShares)

	if len(trades) > 5 {
		trades = trades[:5]
	}
	activity.LastTrades = trades
	return activity
}

// analystActions counts broker moves in the week and month before the
// baseline. Actions after the baseline are excluded so historical runs
// stay blind to the future.
func (s *Service) analystActions(ctx context.Context, ticker common.Ticker, baseline time.Time) *models.AnalystActions {
	if s.providers.Grades == nil {
		return nil
	}

	actions, err := s.providers.Grades.GradeActions(ctx, ticker.FMPSymbol(), 50)
	if err != nil {
		if !errors.Is(err, interfaces.ErrRecordNotFound) {
			s.logger.Warn().Str("ticker", ticker.Symbol).Err(err).Msg("Grade actions fetch failed")
		}
		return nil
	}

	out := &models.AnalystActions{AsOf: time.Now().UTC()}
	week := baseline.AddDate(0, 0, -7)
	month := baseline.AddDate(0, 0, -30)
	for _, action := range actions {
		date, err := time.Parse(common.BaselineDateFormat, action.Date)
		if err != nil || date.After(baseline) || date.Before(month) {
			continue
		}
		switch {
		case strings.EqualFold(action.Action, "upgrade"):
			out.Upgrades30d++
			if !date.Before(week) {
				out.Upgrades7d++
			}
		case strings.EqualFold(action.Action, "downgrade"):
			out.Downgrades30d++
			if !date.Before(week) {
				out.Downgrades7d++
			}
		}
	}
	return out
}

package fmp

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// EconomicCalendar retrieves calendar entries for the window.
func (c *Client) EconomicCalendar(ctx context.Context, from, to time.Time) ([]models.EconomicEvent, error) {
	params := url.Values{}
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", to.Format("2006-01-02"))

	var rows []wireEconomicEvent
	if err := c.get(ctx, "/v3/economic_calendar", params, &rows); err != nil {
		return nil, err
	}

	events := make([]models.EconomicEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, models.EconomicEvent{
			Date:     dateOnly(row.Date),
			Event:    row.Event,
			Country:  row.Country,
			Impact:   row.Impact,
			Actual:   row.Actual,
			Estimate: row.Estimate,
			Previous: row.Previous,
		})
	}

	return events, nil
}

// TreasuryYields retrieves daily treasury curve readings for the window.
func (c *Client) TreasuryYields(ctx context.Context, from, to time.Time) ([]models.TreasuryYields, error) {
	params := url.Values{}
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", to.Format("2006-01-02"))

	var rows []wireTreasury
	if err := c.get(ctx, "/v4/treasury", params, &rows); err != nil {
		return nil, err
	}

	yields := make([]models.TreasuryYields, 0, len(rows))
	for _, row := range rows {
		yields = append(yields, models.TreasuryYields{
			Date: dateOnly(row.Date),
			M3:   row.Month3,
			Y2:   row.Year2,
			Y10:  row.Year10,
			Y30:  row.Year30,
		})
	}

	return yields, nil
}

// MarketRiskPremium retrieves the equity risk premium for a country.
func (c *Client) MarketRiskPremium(ctx context.Context, country string) (float64, error) {
	var rows []wireRiskPremium
	if err := c.get(ctx, "/v4/market_risk_premium", nil, &rows); err != nil {
		return 0, err
	}

	for _, row := range rows {
		if strings.EqualFold(row.Country, country) {
			return row.TotalEquityRiskPremium, nil
		}
	}

	return 0, interfaces.ErrRecordNotFound
}

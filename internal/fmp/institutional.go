package fmp

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// ThirteenF retrieves the institutional holder rows for one quarter.
// Returns ErrRecordNotFound when no institution has reported for that
// quarter yet, so the caller can walk back a quarter and retry.
func (c *Client) ThirteenF(ctx context.Context, symbol string, year, quarter int) (*models.ThirteenF, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("year", strconv.Itoa(year))
	params.Set("quarter", strconv.Itoa(quarter))
	params.Set("page", "0")

	var rows []wireHolder
	if err := c.get(ctx, "/v4/institutional-ownership/institutional-holders/symbol-ownership", params, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, interfaces.ErrRecordNotFound
	}

	holders := make([]models.HolderRow, 0, len(rows))
	for _, row := range rows {
		holders = append(holders, models.HolderRow{
			Holder:       row.InvestorName,
			Shares:       row.SharesNumber,
			Value:        row.MarketValue,
			ChangeShares: row.ChangeInSharesNumber,
			Weight:       row.Weight,
		})
	}

	return &models.ThirteenF{
		QuarterEnd: quarterEnd(year, quarter),
		Rows:       holders,
	}, nil
}

// InsiderTrades retrieves insider transactions inside the window,
// newest first. The vendor endpoint is unwindowed; filtering happens here.
func (c *Client) InsiderTrades(ctx context.Context, symbol string, from, to time.Time) ([]models.InsiderTrade, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("page", "0")

	var rows []wireInsiderTrade
	if err := c.get(ctx, "/v4/insider-trading", params, &rows); err != nil {
		return nil, err
	}

	trades := make([]models.InsiderTrade, 0, len(rows))
	for _, row := range rows {
		traded, ok := parseDate(row.TransactionDate)
		if !ok {
			continue
		}
		if traded.Before(from) || traded.After(to) {
			continue
		}
		trades = append(trades, models.InsiderTrade{
			Date:    dateOnly(row.TransactionDate),
			Name:    row.ReportingName,
			Title:   row.TypeOfOwner,
			Type:    row.tradeKind(),
			Shares:  row.SecuritiesTransacted,
			Price:   row.Price,
			FiledAt: dateOnly(row.FilingDate),
		})
	}

	return trades, nil
}

// Transcript retrieves one earnings call transcript.
// Returns ErrRecordNotFound for quarters without a call.
func (c *Client) Transcript(ctx context.Context, symbol string, quarter, year int) (*models.Transcript, error) {
	params := url.Values{}
	params.Set("quarter", strconv.Itoa(quarter))
	params.Set("year", strconv.Itoa(year))

	var rows []wireTranscript
	if err := c.get(ctx, "/v3/earning_call_transcript/"+symbol, params, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0].Content == "" {
		return nil, interfaces.ErrRecordNotFound
	}

	row := rows[0]
	return &models.Transcript{
		Symbol:  symbol,
		Quarter: row.Quarter,
		Year:    row.Year,
		Date:    dateOnly(row.Date),
		Content: row.Content,
	}, nil
}

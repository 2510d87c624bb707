package fmp

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// EODBar retrieves the end-of-day bar for one exact trading date.
// Returns ErrRecordNotFound when the session has no bar (holiday, new
// listing, or a vendor gap).
func (c *Client) EODBar(ctx context.Context, symbol string, date time.Time) (*models.EODBar, error) {
	day := date.Format("2006-01-02")

	params := url.Values{}
	params.Set("from", day)
	params.Set("to", day)

	var result historicalPriceResponse
	if err := c.get(ctx, "/v3/historical-price-full/"+symbol, params, &result); err != nil {
		return nil, err
	}

	for _, bar := range result.Historical {
		if bar.Date != day {
			continue
		}
		canonical := toEODBar(bar)
		return &canonical, nil
	}

	return nil, interfaces.ErrRecordNotFound
}

// EODSeries retrieves daily bars for the window, ascending by date.
// The vendor returns newest-first; order is normalized here.
func (c *Client) EODSeries(ctx context.Context, symbol string, from, to time.Time) ([]models.EODBar, error) {
	params := url.Values{}
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", to.Format("2006-01-02"))

	var result historicalPriceResponse
	if err := c.get(ctx, "/v3/historical-price-full/"+symbol, params, &result); err != nil {
		return nil, err
	}

	bars := make([]models.EODBar, 0, len(result.Historical))
	for i := len(result.Historical) - 1; i >= 0; i-- {
		bars = append(bars, toEODBar(result.Historical[i]))
	}

	return bars, nil
}

// Quote retrieves a live quote with 52-week range and moving averages.
func (c *Client) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	var result []wireQuote
	if err := c.get(ctx, "/v3/quote/"+symbol, nil, &result); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, interfaces.ErrRecordNotFound
	}

	quote := toQuote(result[0])
	return &quote, nil
}

// BatchQuotes retrieves live quotes for many symbols in one call.
// Symbols absent from the response are simply missing from the result;
// callers match by symbol.
func (c *Client) BatchQuotes(ctx context.Context, symbols []string) ([]models.Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	var result []wireQuote
	path := "/v3/quote/" + strings.Join(symbols, ",")
	if err := c.get(ctx, path, nil, &result); err != nil {
		return nil, err
	}

	quotes := make([]models.Quote, 0, len(result))
	for _, row := range result {
		quotes = append(quotes, toQuote(row))
	}

	return quotes, nil
}

func toEODBar(bar wireBar) models.EODBar {
	parsed, _ := parseDate(bar.Date)
	return models.EODBar{
		Date:   parsed,
		Open:   bar.Open,
		High:   bar.High,
		Low:    bar.Low,
		Close:  bar.Close,
		Volume: bar.Volume,
	}
}

func toQuote(row wireQuote) models.Quote {
	quote := models.Quote{
		Symbol:        row.Symbol,
		Price:         row.Price,
		Open:          row.Open,
		DayHigh:       row.DayHigh,
		DayLow:        row.DayLow,
		PreviousClose: row.PreviousClose,
		YearHigh:      row.YearHigh,
		YearLow:       row.YearLow,
		MA50:          row.PriceAvg50,
		MA200:         row.PriceAvg200,
		MarketCap:     row.MarketCap,
		Volume:        row.Volume,
	}
	if row.Timestamp > 0 {
		quote.Timestamp = time.Unix(row.Timestamp, 0).UTC()
	} else {
		quote.Timestamp = time.Now().UTC()
	}
	return quote
}

// quarterEnd renders the last day of a calendar quarter.
func quarterEnd(year, quarter int) string {
	switch quarter {
	case 1:
		return fmt.Sprintf("%d-03-31", year)
	case 2:
		return fmt.Sprintf("%d-06-30", year)
	case 3:
		return fmt.Sprintf("%d-09-30", year)
	default:
		return fmt.Sprintf("%d-12-31", year)
	}
}

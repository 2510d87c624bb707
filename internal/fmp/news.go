package fmp

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/ternarybob/aestimo/internal/models"
)

// StockNews retrieves symbol-tagged articles, newest first.
func (c *Client) StockNews(ctx context.Context, symbols []string, limit int) ([]models.NewsArticle, error) {
	params := url.Values{}
	params.Set("tickers", strings.Join(symbols, ","))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var rows []wireNews
	if err := c.get(ctx, "/v3/stock_news", params, &rows); err != nil {
		return nil, err
	}

	articles := make([]models.NewsArticle, 0, len(rows))
	for _, row := range rows {
		article := models.NewsArticle{
			Title:     row.Title,
			URL:       row.URL,
			Source:    vendorName,
			Publisher: row.Site,
			Summary:   row.Text,
		}
		if row.Symbol != "" {
			article.Symbols = []string{row.Symbol}
		}
		if published, ok := parseDate(row.PublishedDate); ok {
			article.PublishedAt = published
		}
		articles = append(articles, article)
	}

	return articles, nil
}

// Filings lists regulatory filings of one form type, newest first.
func (c *Client) Filings(ctx context.Context, symbol, form string, limit int) ([]models.FilingDescriptor, error) {
	params := url.Values{}
	if form != "" {
		params.Set("type", form)
	}
	params.Set("page", "0")

	var rows []wireFiling
	if err := c.get(ctx, "/v3/sec_filings/"+symbol, params, &rows); err != nil {
		return nil, err
	}

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	filings := make([]models.FilingDescriptor, 0, len(rows))
	for _, row := range rows {
		filings = append(filings, models.FilingDescriptor{
			Form:       row.Type,
			FilingDate: dateOnly(row.FillingDate),
			ReportDate: dateOnly(row.AcceptedDate),
			URL:        row.Link,
			FinalLink:  row.FinalLink,
		})
	}

	return filings, nil
}

// ETFExposure ranks funds by their weight in a symbol, heaviest first.
func (c *Client) ETFExposure(ctx context.Context, symbol string, limit int) ([]models.ETFExposure, error) {
	var rows []wireETFExposure
	if err := c.get(ctx, "/v3/etf-stock-exposure/"+symbol, nil, &rows); err != nil {
		return nil, err
	}

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	exposures := make([]models.ETFExposure, 0, len(rows))
	for _, row := range rows {
		exposures = append(exposures, models.ETFExposure{
			ETF:       row.ETFSymbol,
			WeightPct: row.WeightPercentage,
		})
	}

	return exposures, nil
}

package yahoo

import (
	"context"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/quote"

	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// Quote retrieves a live quote through the finance-go client.
// Outside regular hours the pre/post session price wins and the quote is
// flagged extended.
func (c *Client) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	q, err := quote.Get(symbol)
	if err != nil {
		return nil, err
	}
	if q == nil || q.RegularMarketPrice == 0 {
		return nil, interfaces.ErrRecordNotFound
	}

	return translateQuote(q), nil
}

func translateQuote(q *finance.Quote) *models.Quote {
	out := &models.Quote{
		Symbol:        q.Symbol,
		Price:         q.RegularMarketPrice,
		Open:          q.RegularMarketOpen,
		DayHigh:       q.RegularMarketDayHigh,
		DayLow:        q.RegularMarketDayLow,
		PreviousClose: q.RegularMarketPreviousClose,
		YearHigh:      q.FiftyTwoWeekHigh,
		YearLow:       q.FiftyTwoWeekLow,
		MA50:          q.FiftyDayAverage,
		MA200:         q.TwoHundredDayAverage,
		Volume:        int64(q.RegularMarketVolume),
		Timestamp:     time.Unix(int64(q.RegularMarketTime), 0).UTC(),
	}

	switch q.MarketState {
	case finance.MarketStatePre:
		if q.PreMarketPrice > 0 {
			out.Price = q.PreMarketPrice
			out.Extended = true
		}
	case finance.MarketStatePost:
		if q.PostMarketPrice > 0 {
			out.Price = q.PostMarketPrice
			out.Extended = true
		}
	}

	return out
}

package fragments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// batchQuoteSize caps symbols per multi-quote request, matching the FMP
// batch endpoint limit.
const batchQuoteSize = 50

// PriceMeta resolves the reference price for one baseline date. The
// historical chain tries the exact session, then up to seven earlier
// trading sessions, then the Yahoo chart; when everything misses, the
// live chain answers and the source records the substitution.
func (s *Service) PriceMeta(ctx context.Context, ticker common.Ticker, baseline time.Time, historical bool) *models.PriceMeta {
	if !historical {
		meta := s.realtimePrice(ctx, ticker, baseline)
		s.recordSource("price", priceOutcome(meta))
		return meta
	}

	key := "price_meta_" + ticker.CacheToken() + "_" + dateKey(baseline)
	cached := new(models.PriceMeta)
	if s.kvGet(key, 0, cached) && cached.Value > 0 {
		return cached
	}

	meta := s.historicalPrice(ctx, ticker, baseline)
	s.recordSource("price", priceOutcome(meta))
	if meta.Error == "" && meta.Source != models.PriceSourceFallbackToLive {
		s.kvPut(key, meta)
	}
	return meta
}

func priceOutcome(meta *models.PriceMeta) string {
	if meta.Error != "" {
		return "error"
	}
	return meta.Source
}

func (s *Service) historicalPrice(ctx context.Context, ticker common.Ticker, baseline time.Time) *models.PriceMeta {
	if s.providers.History != nil {
		bar, err := s.providers.History.EODBar(ctx, ticker.FMPSymbol(), baseline)
		if err == nil {
			return barMeta(bar, models.PriceSourceFMPHistorical)
		}
		if !errors.Is(err, interfaces.ErrRecordNotFound) {
			s.logger.Warn().Str("ticker", ticker.Symbol).Err(err).Msg("Historical bar fetch failed")
		}

		// The baseline may fall on a weekend or holiday; probe earlier
		// sessions before switching vendors.
		for _, day := range common.TradingDaysBack(baseline.AddDate(0, 0, -1), 7, nil) {
			bar, err := s.providers.History.EODBar(ctx, ticker.FMPSymbol(), day)
			if err == nil {
				return barMeta(bar, models.PriceSourceFMPNearby)
			}
			if !errors.Is(err, interfaces.ErrRecordNotFound) {
				break
			}
		}
	}

	if s.providers.Chart != nil {
		from := baseline.AddDate(0, 0, -14)
		bars, err := s.providers.Chart.ChartDaily(ctx, ticker.YahooSymbol(), from, baseline)
		if err != nil {
			s.logger.Warn().Str("ticker", ticker.Symbol).Err(err).Msg("Chart fallback failed")
		}
		for i := len(bars) - 1; i >= 0; i-- {
			if !bars[i].Date.After(baseline) {
				return barMeta(&bars[i], models.PriceSourceYahooChart)
			}
		}
	}

	// Chain exhausted. A live quote keeps the run going; the source
	// stamps the substitution so consumers can tell.
	meta := s.realtimePrice(ctx, ticker, baseline)
	if meta.Error == "" {
		meta.Kind = models.PriceKindHistorical
		meta.Source = models.PriceSourceFallbackToLive
	}
	return meta
}

func (s *Service) realtimePrice(ctx context.Context, ticker common.Ticker, baseline time.Time) *models.PriceMeta {
	hotKey := "fh_quote_" + ticker.CacheToken() + "_" + dateKey(baseline)
	if cached, ok := s.hot.Get(hotKey); ok {
		if quote, ok := cached.(*models.Quote); ok {
			s.cacheHit("hot")
			return quoteMeta(quote, models.PriceSourceHotQuote)
		}
	}
	s.cacheMiss("hot")

	if s.providers.Quote != nil {
		quote, err := s.providers.Quote.Quote(ctx, ticker.FMPSymbol())
		if err == nil {
			s.hot.Set(hotKey, quote)
			return quoteMeta(quote, models.PriceSourceFMPRealtime)
		}
		s.logger.Warn().Str("ticker", ticker.Symbol).Err(err).Msg("FMP quote failed")
	}

	if s.providers.QuoteFallback != nil {
		quote, err := s.providers.QuoteFallback.Quote(ctx, ticker.YahooSymbol())
		if err == nil {
			s.hot.Set(hotKey, quote)
			return quoteMeta(quote, models.PriceSourceYahooRealtime)
		}
		s.logger.Warn().Str("ticker", ticker.Symbol).Err(err).Msg("Yahoo quote failed")
	}

	return &models.PriceMeta{
		Kind:  models.PriceKindRealtime,
		Error: "no live quote source answered",
	}
}

// PrimeQuotes warms the hot quote cache for many tickers in one pass so a
// batch run does not issue one live quote call per row. chunk bounds the
// symbols per upstream call; zero or less falls back to the endpoint limit.
// Returns the number of quotes cached.
func (s *Service) PrimeQuotes(ctx context.Context, tickers []common.Ticker, baseline time.Time, chunk int) int {
	if s.providers.BatchQuotes == nil || len(tickers) == 0 {
		return 0
	}
	if chunk <= 0 {
		chunk = batchQuoteSize
	}

	bySymbol := make(map[string]common.Ticker, len(tickers))
	symbols := make([]string, 0, len(tickers))
	for _, ticker := range tickers {
		if !ticker.Valid() {
			continue
		}
		symbol := ticker.FMPSymbol()
		if _, seen := bySymbol[symbol]; seen {
			continue
		}
		bySymbol[symbol] = ticker
		symbols = append(symbols, symbol)
	}

	primed := 0
	for start := 0; start < len(symbols); start += chunk {
		end := start + chunk
		if end > len(symbols) {
			end = len(symbols)
		}
		quotes, err := s.providers.BatchQuotes.BatchQuotes(ctx, symbols[start:end])
		if err != nil {
			s.logger.Warn().Int("symbols", end-start).Err(err).Msg("Batch quote prefetch failed")
			continue
		}
		for i := range quotes {
			quote := quotes[i]
			ticker, ok := bySymbol[strings.ToUpper(quote.Symbol)]
			if !ok || quote.Price <= 0 {
				continue
			}
			s.hot.Set("fh_quote_"+ticker.CacheToken()+"_"+dateKey(baseline), &quote)
			primed++
		}
	}
	if primed > 0 {
		s.logger.Debug().Int("quotes", primed).Msg("Hot quote cache primed")
	}
	return primed
}

// barMeta converts an EOD bar into price meta with session context.
func barMeta(bar *models.EODBar, source string) *models.PriceMeta {
	return &models.PriceMeta{
		Value:  bar.Close,
		AsOf:   bar.Date,
		Source: source,
		Kind:   models.PriceKindHistorical,
		Intraday: &models.Intraday{
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Volume: bar.Volume,
		},
	}
}

// quoteMeta converts a live quote into price meta, carrying whatever
// enrichment the vendor supplied.
func quoteMeta(quote *models.Quote, source string) *models.PriceMeta {
	asOf := quote.Timestamp
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	meta := &models.PriceMeta{
		Value:    quote.Price,
		AsOf:     asOf,
		Source:   source,
		Kind:     models.PriceKindRealtime,
		Extended: quote.Extended,
	}
	if quote.YearHigh > 0 {
		meta.YearHigh = ptr(quote.YearHigh)
	}
	if quote.YearLow > 0 {
		meta.YearLow = ptr(quote.YearLow)
	}
	if quote.MA50 > 0 {
		meta.MA50 = ptr(quote.MA50)
	}
	if quote.MA200 > 0 {
		meta.MA200 = ptr(quote.MA200)
	}
	if quote.MarketCap > 0 {
		meta.MarketCap = ptr(quote.MarketCap)
	}
	if quote.Open > 0 || quote.DayHigh > 0 || quote.PreviousClose > 0 {
		meta.Intraday = &models.Intraday{
			Open:          quote.Open,
			High:          quote.DayHigh,
			Low:           quote.DayLow,
			PreviousClose: quote.PreviousClose,
			Volume:        quote.Volume,
		}
	}
	return meta
}

package fragments

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/models"
)

// Trading-day offsets for the trailing return horizons.
const (
	sessionsQuarter = 63
	sessionsHalf    = 126
	sessionsYear    = 252
)

// sectorProxies maps vendor sector names onto sector SPDR funds. Keys
// are lowercased; both FMP and Finnhub spellings appear.
var sectorProxies = map[string]string{
	"technology":             "XLK",
	"financial services":     "XLF",
	"financials":             "XLF",
	"energy":                 "XLE",
	"healthcare":             "XLV",
	"health care":            "XLV",
	"consumer cyclical":      "XLY",
	"consumer discretionary": "XLY",
	"consumer defensive":     "XLP",
	"consumer staples":       "XLP",
	"industrials":            "XLI",
	"basic materials":        "XLB",
	"materials":              "XLB",
	"real estate":            "XLRE",
	"utilities":              "XLU",
	"communication services": "XLC",
}

// Momentum computes technical indicators from the EOD series ending at
// the baseline. A series shorter than one trading year cannot answer
// the twelve-month return and yields a typed error instead of partial
// numbers.
func (s *Service) Momentum(ctx context.Context, ticker common.Ticker, baseline time.Time, historical bool) *models.MomentumMetrics {
	key := "momentum_" + ticker.CacheToken() + "_" + dateKey(baseline)
	cached := new(models.MomentumMetrics)
	if s.kvGet(key, freshness(historical, hours(s.research.MomentumCacheTTLHours)), cached) && cached.Error == "" {
		return cached
	}

	built := s.buildMomentum(ctx, ticker, baseline)
	if built.Error == "" {
		s.kvPut(key, built)
	}
	return built
}

func (s *Service) buildMomentum(ctx context.Context, ticker common.Ticker, baseline time.Time) *models.MomentumMetrics {
	if s.providers.History == nil {
		return &models.MomentumMetrics{Error: "no price history source configured"}
	}

	// 550 calendar days comfortably covers 252 sessions plus holidays.
	from := baseline.AddDate(0, 0, -550)
	bars, err := s.providers.History.EODSeries(ctx, ticker.FMPSymbol(), from, baseline)
	if err != nil {
		s.logger.Warn().Str("ticker", ticker.Symbol).Err(err).Msg("EOD series fetch failed")
		return &models.MomentumMetrics{Error: "price history unavailable: " + err.Error()}
	}
	if len(bars) <= sessionsYear {
		return &models.MomentumMetrics{
			BarCount: len(bars),
			Error:    fmt.Sprintf("insufficient history: %d bars, need %d", len(bars), sessionsYear+1),
		}
	}

	last := bars[len(bars)-1]
	ret3m := returnOver(bars, sessionsQuarter)
	ret6m := returnOver(bars, sessionsHalf)
	ret12m := returnOver(bars, sessionsYear)
	sma20 := smaClose(bars, 20)
	sma50 := smaClose(bars, 50)
	sma200 := smaClose(bars, 200)
	rsi := rsi14(bars)
	atr := atr14(bars)
	volRatio := volumeRatio(bars, 5, 30)
	above50 := last.Close > sma50
	above200 := last.Close > sma200

	trend, tag := momentumTrend(last.Close, sma50, sma200, ret3m)

	return &models.MomentumMetrics{
		Score:    momentumScore(ret3m, ret6m, ret12m, rsi, volRatio, above50, above200),
		Trend:    trend,
		TrendTag: tag,
		Returns:  models.MomentumReturns{M3: ret3m, M6: ret6m, M12: ret12m},
		MovingAverages: models.MovingAverages{
			SMA20:  sma20,
			SMA50:  sma50,
			SMA200: sma200,
		},
		RSI14:         rsi,
		ATR14:         atr,
		VolumeRatio:   volRatio,
		PriceVsMA:     models.PriceVsMA{AboveSMA50: above50, AboveSMA200: above200},
		ETF:           s.sectorETF(ctx, ticker, baseline),
		ReferenceDate: dateKey(last.Date),
		BarCount:      len(bars),
	}
}

// momentumTrend classifies price action: strong needs the close above
// both long averages with a clearly positive quarter, weak the inverse.
func momentumTrend(price, sma50, sma200, ret3m float64) (string, string) {
	switch {
	case price > sma50 && price > sma200 && ret3m > 0.10:
		return models.TrendStrong, models.TrendTagStrong
	case price < sma50 && price < sma200 && ret3m < -0.05:
		return models.TrendWeak, models.TrendTagWeak
	default:
		return models.TrendNeutral, models.TrendTagNeutral
	}
}

// momentumScore folds the capped indicator contributions around a
// neutral 50.
func momentumScore(ret3m, ret6m, ret12m, rsi, volRatio float64, above50, above200 bool) float64 {
	score := 50.0
	score += clampF(ret3m*200, -20, 20)
	score += clampF(ret6m*150, -15, 15)
	score += clampF(ret12m*100, -10, 10)
	score += clampF((rsi-50)/2, -10, 10)
	score += clampF((volRatio-1)*20, -10, 10)
	if above50 {
		score += 5
	} else {
		score -= 5
	}
	if above200 {
		score += 5
	} else {
		score -= 5
	}
	return clampF(score, 0, 100)
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// returnOver computes the fractional return against the bar n sessions
// before the latest.
func returnOver(bars []models.EODBar, n int) float64 {
	base := bars[len(bars)-1-n].Close
	if base <= 0 {
		return 0
	}
	return bars[len(bars)-1].Close/base - 1
}

func smaClose(bars []models.EODBar, n int) float64 {
	var sum float64
	for _, bar := range bars[len(bars)-n:] {
		sum += bar.Close
	}
	return sum / float64(n)
}

// rsi14 computes the Wilder-smoothed relative strength index.
func rsi14(bars []models.EODBar) float64 {
	const period = 14
	if len(bars) <= period {
		return 50
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		delta := bars[i].Close - bars[i-1].Close
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	avgGain := gain / period
	avgLoss := loss / period

	for i := period + 1; i < len(bars); i++ {
		up, down := 0.0, 0.0
		if delta := bars[i].Close - bars[i-1].Close; delta > 0 {
			up = delta
		} else {
			down = -delta
		}
		avgGain = (avgGain*(period-1) + up) / period
		avgLoss = (avgLoss*(period-1) + down) / period
	}

	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

// atr14 computes the Wilder-smoothed average true range.
func atr14(bars []models.EODBar) float64 {
	const period = 14
	if len(bars) <= period {
		return 0
	}

	var sum float64
	for i := 1; i <= period; i++ {
		sum += trueRange(bars[i], bars[i-1].Close)
	}
	atr := sum / period

	for i := period + 1; i < len(bars); i++ {
		atr = (atr*(period-1) + trueRange(bars[i], bars[i-1].Close)) / period
	}
	return atr
}

func trueRange(bar models.EODBar, prevClose float64) float64 {
	tr := bar.High - bar.Low
	if d := math.Abs(bar.High - prevClose); d > tr {
		tr = d
	}
	if d := math.Abs(bar.Low - prevClose); d > tr {
		tr = d
	}
	return tr
}

// volumeRatio compares recent turnover against the monthly norm.
func volumeRatio(bars []models.EODBar, short, long int) float64 {
	if len(bars) < long {
		return 1
	}
	var s, l float64
	for _, bar := range bars[len(bars)-short:] {
		s += float64(bar.Volume)
	}
	for _, bar := range bars[len(bars)-long:] {
		l += float64(bar.Volume)
	}
	s /= float64(short)
	l /= float64(long)
	if l <= 0 {
		return 1
	}
	return s / l
}

// sectorETF picks a sector proxy fund and reports its trailing quarter.
// The static table answers from the company profile; the exposure
// ranking answers for tickers outside the mapped sectors.
func (s *Service) sectorETF(ctx context.Context, ticker common.Ticker, baseline time.Time) *models.SectorETF {
	symbol, source := "", ""
	if profile := s.companyProfile(ctx, ticker); profile != nil {
		if proxy, ok := sectorProxies[strings.ToLower(strings.TrimSpace(profile.Sector))]; ok {
			symbol, source = proxy, "static_table"
		}
	}
	if symbol == "" && s.providers.ETF != nil {
		funds, err := s.providers.ETF.ETFExposure(ctx, ticker.FMPSymbol(), 1)
		if err != nil {
			s.logger.Debug().Str("ticker", ticker.Symbol).Err(err).Msg("ETF exposure lookup failed")
		} else if len(funds) > 0 {
			symbol, source = funds[0].ETF, "exposure_ranking"
		}
	}
	if symbol == "" {
		symbol, source = "SPY", "static_table"
	}

	etf := &models.SectorETF{Symbol: symbol, Source: source}
	bars, err := s.providers.History.EODSeries(ctx, symbol, baseline.AddDate(0, 0, -150), baseline)
	if err != nil {
		s.logger.Debug().Str("etf", symbol).Err(err).Msg("Sector ETF series unavailable")
		return etf
	}
	if len(bars) > sessionsQuarter {
		etf.Return3M = returnOver(bars, sessionsQuarter)
	}
	return etf
}

package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/ternarybob/aestimo/internal/models"
)

// rawFloat unwraps Yahoo's {raw, fmt} number rendering.
type rawFloat struct {
	Raw float64 `json:"raw"`
}

type rawInt struct {
	Raw int `json:"raw"`
}

// quoteSummaryResponse for the v10 quoteSummary endpoint.
type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			Price struct {
				RegularMarketPrice rawFloat `json:"regularMarketPrice"`
				ShortName          string   `json:"shortName"`
				Symbol             string   `json:"symbol"`
			} `json:"price"`
			RecommendationTrend struct {
				Trend []struct {
					Period     string `json:"period"`
					StrongBuy  int    `json:"strongBuy"`
					Buy        int    `json:"buy"`
					Hold       int    `json:"hold"`
					Sell       int    `json:"sell"`
					StrongSell int    `json:"strongSell"`
				} `json:"trend"`
			} `json:"recommendationTrend"`
			FinancialData struct {
				TargetHighPrice         rawFloat `json:"targetHighPrice"`
				TargetLowPrice          rawFloat `json:"targetLowPrice"`
				TargetMeanPrice         rawFloat `json:"targetMeanPrice"`
				TargetMedianPrice       rawFloat `json:"targetMedianPrice"`
				RecommendationMean      rawFloat `json:"recommendationMean"`
				RecommendationKey       string   `json:"recommendationKey"`
				NumberOfAnalystOpinions rawInt   `json:"numberOfAnalystOpinions"`
				CurrentPrice            rawFloat `json:"currentPrice"`
			} `json:"financialData"`
			UpgradeDowngradeHistory struct {
				History []struct {
					EpochGradeDate int64  `json:"epochGradeDate"`
					Firm           string `json:"firm"`
					ToGrade        string `json:"toGrade"`
					FromGrade      string `json:"fromGrade"`
					Action         string `json:"action"`
				} `json:"history"`
			} `json:"upgradeDowngradeHistory"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"quoteSummary"`
}

// actionHistoryLimit caps the upgrade/downgrade list carried over.
const actionHistoryLimit = 10

// AnalystSummary retrieves the condensed analyst block from the v10
// quoteSummary endpoint. Used when the primary target source fails.
func (c *Client) AnalystSummary(ctx context.Context, symbol string) (*models.AnalystSummary, error) {
	params := url.Values{}
	params.Set("modules", "price,financialData,recommendationTrend,upgradeDowngradeHistory")

	var resp quoteSummaryResponse
	if err := c.get(ctx, "/v10/finance/quoteSummary/"+symbol, params, &resp); err != nil {
		return nil, err
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("no data in response for %s", symbol)
	}

	result := resp.QuoteSummary.Result[0]

	summary := &models.AnalystSummary{
		Symbol:             symbol,
		CurrentPrice:       result.Price.RegularMarketPrice.Raw,
		TargetMean:         result.FinancialData.TargetMeanPrice.Raw,
		TargetHigh:         result.FinancialData.TargetHighPrice.Raw,
		TargetLow:          result.FinancialData.TargetLowPrice.Raw,
		TargetMedian:       result.FinancialData.TargetMedianPrice.Raw,
		AnalystCount:       result.FinancialData.NumberOfAnalystOpinions.Raw,
		RecommendationMean: result.FinancialData.RecommendationMean.Raw,
		RecommendationKey:  result.FinancialData.RecommendationKey,
		AsOf:               time.Now().UTC(),
	}
	if summary.CurrentPrice == 0 {
		summary.CurrentPrice = result.FinancialData.CurrentPrice.Raw
	}

	// Current-month recommendation histogram.
	if len(result.RecommendationTrend.Trend) > 0 {
		current := result.RecommendationTrend.Trend[0]
		summary.StrongBuy = current.StrongBuy
		summary.Buy = current.Buy
		summary.Hold = current.Hold
		summary.Sell = current.Sell
		summary.StrongSell = current.StrongSell
	}

	for i, h := range result.UpgradeDowngradeHistory.History {
		if i >= actionHistoryLimit {
			break
		}
		summary.Actions = append(summary.Actions, models.GradeAction{
			Date:          time.Unix(h.EpochGradeDate, 0).UTC().Format("2006-01-02"),
			Company:       h.Firm,
			PreviousGrade: h.FromGrade,
			NewGrade:      h.ToGrade,
			Action:        h.Action,
		})
	}

	return summary, nil
}

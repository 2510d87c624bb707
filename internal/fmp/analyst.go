package fmp

import (
	"context"
	"net/url"
	"strconv"

	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// PriceTargetSummary merges the windowed summary and the consensus
// endpoints into one canonical block. Confidence and upside derivation
// happen in the analyst fragment builder, not here.
func (c *Client) PriceTargetSummary(ctx context.Context, symbol string) (*models.PriceTargetSummary, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var summaryRows []wirePriceTargetSummary
	if err := c.get(ctx, "/v4/price-target-summary", params, &summaryRows); err != nil {
		return nil, err
	}
	if len(summaryRows) == 0 {
		return nil, interfaces.ErrRecordNotFound
	}
	row := summaryRows[0]

	out := &models.PriceTargetSummary{
		LastMonthCount:   row.LastMonth,
		LastQuarterCount: row.LastQuarter,
		LastYearCount:    row.LastYear,
		AllTimeCount:     row.AllTime,
		PublisherCount:   row.publisherCount(),
	}
	if row.LastMonth > 0 {
		out.LastMonthAvg = ptr(row.LastMonthAvgPriceTarget)
	}
	if row.LastQuarter > 0 {
		out.LastQuarterAvg = ptr(row.LastQuarterAvgPriceTarget)
	}
	if row.LastYear > 0 {
		out.LastYearAvg = ptr(row.LastYearAvgPriceTarget)
	}
	if row.AllTime > 0 {
		out.AllTimeAvg = ptr(row.AllTimeAvgPriceTarget)
	}

	// The consensus call enriches the block; its failure is not fatal
	// because the windowed averages already answer the main question.
	var consensusRows []wirePriceTargetConsensus
	if err := c.get(ctx, "/v4/price-target-consensus", params, &consensusRows); err == nil && len(consensusRows) > 0 {
		consensus := consensusRows[0]
		out.TargetMean = consensus.mean()
		out.TargetHigh = consensus.TargetHigh
		out.TargetLow = consensus.TargetLow
		out.TargetMedian = consensus.TargetMedian
	} else if err != nil && c.logger != nil {
		c.logger.Debug().Str("symbol", symbol).Err(err).Msg("Price target consensus unavailable")
	}

	return out, nil
}

// RatingSnapshot retrieves the current composite rating.
func (c *Client) RatingSnapshot(ctx context.Context, symbol string) (*models.RatingSnapshot, error) {
	var rows []wireRating
	if err := c.get(ctx, "/v3/rating/"+symbol, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, interfaces.ErrRecordNotFound
	}

	snapshot := toRatingSnapshot(rows[0])
	return &snapshot, nil
}

// RatingsHistorical retrieves dated composite ratings, newest first.
func (c *Client) RatingsHistorical(ctx context.Context, symbol string, limit int) ([]models.RatingSnapshot, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var rows []wireRating
	if err := c.get(ctx, "/v3/historical-rating/"+symbol, params, &rows); err != nil {
		return nil, err
	}

	snapshots := make([]models.RatingSnapshot, 0, len(rows))
	for _, row := range rows {
		snapshots = append(snapshots, toRatingSnapshot(row))
	}

	return snapshots, nil
}

// GradeActions retrieves broker upgrade/downgrade actions, newest first.
func (c *Client) GradeActions(ctx context.Context, symbol string, limit int) ([]models.GradeAction, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var rows []wireGradeAction
	if err := c.get(ctx, "/v4/upgrades-downgrades", params, &rows); err != nil {
		return nil, err
	}

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	actions := make([]models.GradeAction, 0, len(rows))
	for _, row := range rows {
		actions = append(actions, models.GradeAction{
			Date:          dateOnly(row.PublishedDate),
			Company:       row.GradingCompany,
			PreviousGrade: row.PreviousGrade,
			NewGrade:      row.NewGrade,
			Action:        row.Action,
		})
	}

	return actions, nil
}

// GradeHistogram retrieves the monthly distribution of outstanding
// grades, newest first.
func (c *Client) GradeHistogram(ctx context.Context, symbol string, limit int) ([]models.GradeHistogram, error) {
	var rows []wireRecommendationRow
	if err := c.get(ctx, "/v3/analyst-stock-recommendations/"+symbol, nil, &rows); err != nil {
		return nil, err
	}

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	histograms := make([]models.GradeHistogram, 0, len(rows))
	for _, row := range rows {
		histograms = append(histograms, models.GradeHistogram{
			Date:       dateOnly(row.Date),
			StrongBuy:  row.StrongBuy,
			Buy:        row.Buy,
			Hold:       row.Hold,
			Sell:       row.Sell,
			StrongSell: row.StrongSell,
		})
	}

	return histograms, nil
}

// GradeConsensus retrieves the aggregate broker stance.
func (c *Client) GradeConsensus(ctx context.Context, symbol string) (*models.GradeConsensus, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var rows []wireGradeConsensus
	if err := c.get(ctx, "/v4/upgrades-downgrades-consensus", params, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, interfaces.ErrRecordNotFound
	}

	row := rows[0]
	return &models.GradeConsensus{
		Consensus:  row.Consensus,
		StrongBuy:  row.StrongBuy,
		Buy:        row.Buy,
		Hold:       row.Hold,
		Sell:       row.Sell,
		StrongSell: row.StrongSell,
	}, nil
}

// AnalystEstimates retrieves forward consensus rows. Period is "quarter"
// or "annual".
func (c *Client) AnalystEstimates(ctx context.Context, symbol, period string, limit int) ([]models.EstimatePeriod, error) {
	params := url.Values{}
	if period != "" {
		params.Set("period", period)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var rows []wireEstimate
	if err := c.get(ctx, "/v3/analyst-estimates/"+symbol, params, &rows); err != nil {
		return nil, err
	}

	estimates := make([]models.EstimatePeriod, 0, len(rows))
	for _, row := range rows {
		estimates = append(estimates, models.EstimatePeriod{
			Date:            dateOnly(row.Date),
			RevenueAvg:      row.EstimatedRevenueAvg,
			RevenueHigh:     row.EstimatedRevenueHigh,
			RevenueLow:      row.EstimatedRevenueLow,
			EPSAvg:          row.EstimatedEpsAvg,
			EPSHigh:         row.EstimatedEpsHigh,
			EPSLow:          row.EstimatedEpsLow,
			AnalystsRevenue: row.NumberAnalystsRevenue,
			AnalystsEPS:     row.NumberAnalystsEstimatedEps,
		})
	}

	return estimates, nil
}

func toRatingSnapshot(row wireRating) models.RatingSnapshot {
	return models.RatingSnapshot{
		Date:           dateOnly(row.Date),
		Rating:         row.Rating,
		Score:          row.RatingScore,
		Recommendation: row.Recommendation,
	}
}

func ptr(v float64) *float64 {
	return &v
}

package batch

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/ternarybob/aestimo/internal/models"
)

// WriteCSV renders one output row per result under the fixed header.
func WriteCSV(w io.Writer, results []models.BatchRowResult) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(models.BatchOutputColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range results {
		if err := writer.Write(outputRow(&results[i])); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// outputRow flattens one scored bundle into the fixed column set. Missing
// values stay empty; a row failure lands in the recommendation column so
// the sheet keeps one row per input.
func outputRow(result *models.BatchRowResult) []string {
	row := make([]string, len(models.BatchOutputColumns))
	row[0] = result.Row.Ticker
	row[1] = result.Row.Date
	row[2] = result.Row.Model

	bundle := result.Bundle
	if bundle != nil {
		row[0] = bundle.Input.Ticker
		row[1] = bundle.Input.Date
		row[2] = bundle.Input.Model
		if bundle.AnalysisModel != "" {
			row[2] = bundle.AnalysisModel
		}

		if summary := bundle.Fetched.FinnhubSummary; summary != nil && summary.PriceMeta != nil && summary.PriceMeta.Value > 0 {
			row[3] = money(summary.PriceMeta.Value)
		}
		if analysis := bundle.Analysis; analysis != nil {
			if analysis.Action.TargetPrice != nil {
				row[4] = money(*analysis.Action.TargetPrice)
			}
			row[5] = analysis.Action.Rating
			row[6] = analysis.Segment
			if analysis.QualityScore != nil {
				row[7] = score(*analysis.QualityScore)
			}
		}
		if news := bundle.News; news != nil && news.Sentiment != nil {
			row[8] = news.Sentiment.Label
		}
		if momentum := bundle.Momentum; momentum != nil && momentum.Error == "" {
			row[9] = score(momentum.Score)
			row[10] = momentum.TrendTag
		}
		if inst := bundle.Institutional; inst != nil && inst.Signal != nil {
			row[11] = inst.Signal.Label
		}
		if analyst := bundle.AnalystMetrics; analyst != nil {
			if analyst.TargetMean != nil {
				row[12] = money(*analyst.TargetMean)
			}
			row[13] = analyst.RatingConsensus
			row[14] = analyst.RatingTrend
			row[15] = analyst.TargetConfidence
		}
	}

	if result.Err != "" {
		row[5] = "ERROR:" + result.Err
	}
	return row
}

func money(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
func score(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }

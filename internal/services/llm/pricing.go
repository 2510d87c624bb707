package llm

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/aestimo/internal/models"
)

// ModelPrice holds per-million-token USD rates for one model family.
type ModelPrice struct {
	InputPerMillion  decimal.Decimal
	OutputPerMillion decimal.Decimal
}

// PriceTable maps model names to their token rates. Lookups match by
// longest configured prefix so dated releases (gpt-4o-2024-08-06)
// inherit their family's rates.
type PriceTable struct {
	prices map[string]ModelPrice
}

type priceFile struct {
	Models map[string]modelPriceEntry `yaml:"models"`
}

type modelPriceEntry struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// LoadPriceTable reads a YAML price table keyed by model name prefix.
func LoadPriceTable(path string) (*PriceTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read price table: %w", err)
	}

	var file priceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse price table %s: %w", path, err)
	}
	if len(file.Models) == 0 {
		return nil, fmt.Errorf("price table %s lists no models", path)
	}

	table := &PriceTable{prices: make(map[string]ModelPrice, len(file.Models))}
	for name, entry := range file.Models {
		table.prices[name] = ModelPrice{
			InputPerMillion:  decimal.NewFromFloat(entry.InputPerMillion),
			OutputPerMillion: decimal.NewFromFloat(entry.OutputPerMillion),
		}
	}
	return table, nil
}

// DefaultPriceTable covers the shipped model set so cost metering still
// works when no pricing file is deployed.
func DefaultPriceTable() *PriceTable {
	rates := map[string][2]float64{
		"gpt-4o":           {2.50, 10.00},
		"gpt-4o-mini":      {0.15, 0.60},
		"gpt-4.1":          {2.00, 8.00},
		"gpt-4.1-mini":     {0.40, 1.60},
		"claude-sonnet-4":  {3.00, 15.00},
		"claude-haiku-3-5": {0.80, 4.00},
		"gemini-2.0-flash": {0.10, 0.40},
	}

	table := &PriceTable{prices: make(map[string]ModelPrice, len(rates))}
	for name, rate := range rates {
		table.prices[name] = ModelPrice{
			InputPerMillion:  decimal.NewFromFloat(rate[0]),
			OutputPerMillion: decimal.NewFromFloat(rate[1]),
		}
	}
	return table
}

// Usage prices one invocation. Unknown models return token counts with
// zero cost rather than failing the call.
func (t *PriceTable) Usage(model string, promptTokens, completionTokens int) *models.LLMUsage {
	usage := &models.LLMUsage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		Model:            model,
	}

	price, ok := t.lookup(model)
	if !ok {
		return usage
	}

	million := decimal.NewFromInt(1_000_000)
	input := price.InputPerMillion.Mul(decimal.NewFromInt(int64(promptTokens))).Div(million)
	output := price.OutputPerMillion.Mul(decimal.NewFromInt(int64(completionTokens))).Div(million)

	usage.InputCost = input.InexactFloat64()
	usage.OutputCost = output.InexactFloat64()
	usage.TotalCost = input.Add(output).InexactFloat64()
	return usage
}

// lookup prefers an exact match, then the longest prefix match.
func (t *PriceTable) lookup(model string) (ModelPrice, bool) {
	if price, ok := t.prices[model]; ok {
		return price, true
	}

	best := ""
	for name := range t.prices {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return ModelPrice{}, false
	}
	return t.prices[best], true
}

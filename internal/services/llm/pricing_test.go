package llm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPricingYAML = `models:
  gpt-4o:
    input_per_million: 2.50
    output_per_million: 10.00
  gpt-4o-mini:
    input_per_million: 0.15
    output_per_million: 0.60
  claude-haiku-3-5:
    input_per_million: 0.80
    output_per_million: 4.00
`

func writePricingFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPriceTableCostMath(t *testing.T) {
	table, err := LoadPriceTable(writePricingFile(t, testPricingYAML))
	require.NoError(t, err)

	usage := table.Usage("gpt-4o", 1000, 500)
	assert.Equal(t, 1000, usage.PromptTokens)
	assert.Equal(t, 500, usage.CompletionTokens)
	assert.Equal(t, 1500, usage.TotalTokens)
	assert.InDelta(t, 0.0025, usage.InputCost, 1e-9)
	assert.InDelta(t, 0.005, usage.OutputCost, 1e-9)
	assert.InDelta(t, 0.0075, usage.TotalCost, 1e-9)
	assert.Equal(t, "gpt-4o", usage.Model)
	assert.False(t, usage.Cached)
}

func TestUsagePrefersLongestPrefix(t *testing.T) {
	table, err := LoadPriceTable(writePricingFile(t, testPricingYAML))
	require.NoError(t, err)

	// A dated release inherits its family's rates.
	dated := table.Usage("gpt-4o-2024-08-06", 1_000_000, 0)
	assert.InDelta(t, 2.50, dated.InputCost, 1e-9)

	// The mini family must not fall back to the shorter gpt-4o prefix.
	mini := table.Usage("gpt-4o-mini-2024-07-18", 1_000_000, 0)
	assert.InDelta(t, 0.15, mini.InputCost, 1e-9)
}

func TestUsageUnknownModelHasZeroCost(t *testing.T) {
	table, err := LoadPriceTable(writePricingFile(t, testPricingYAML))
	require.NoError(t, err)

	usage := table.Usage("o3-experimental", 500, 500)
	assert.Equal(t, 1000, usage.TotalTokens)
	assert.Zero(t, usage.TotalCost)
}

func TestLoadPriceTableMissingFile(t *testing.T) {
	_, err := LoadPriceTable(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadPriceTableEmptyModels(t *testing.T) {
	_, err := LoadPriceTable(writePricingFile(t, "models: {}\n"))
	assert.Error(t, err)
}

func TestDefaultPriceTableCoversConfiguredModels(t *testing.T) {
	table := DefaultPriceTable()

	for _, model := range []string{"gpt-4o-mini", "claude-haiku-3-5-20241022", "gemini-2.0-flash"} {
		usage := table.Usage(model, 1_000_000, 1_000_000)
		assert.Positive(t, usage.TotalCost, "model %s should have rates", model)
	}
}

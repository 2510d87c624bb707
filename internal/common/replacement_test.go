package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

// createTestLogger creates a logger for testing
func createTestLogger() arbor.ILogger {
	return arbor.NewLogger()
}

func TestReplaceKeyReferences_Simple(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"fmp-api-key": "sk-12345"}

	input := "api_key = {fmp-api-key}"
	expected := "api_key = sk-12345"

	result := ReplaceKeyReferences(input, kvMap, logger)
	assert.Equal(t, expected, result)
}

func TestReplaceKeyReferences_MultipleReferences(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{
		"fmp-api-key":     "sk-fmp",
		"finnhub-api-key": "sk-fh",
	}

	input := "fmp={fmp-api-key} finnhub={finnhub-api-key}"
	result := ReplaceKeyReferences(input, kvMap, logger)
	assert.Equal(t, "fmp=sk-fmp finnhub=sk-fh", result)
}

func TestReplaceKeyReferences_MissingKeyLeftUnchanged(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"present": "yes"}

	input := "have {present}, missing {absent}"
	result := ReplaceKeyReferences(input, kvMap, logger)
	assert.Equal(t, "have yes, missing {absent}", result)
}

func TestReplaceKeyReferences_EmptyInput(t *testing.T) {
	logger := createTestLogger()
	result := ReplaceKeyReferences("", map[string]string{"k": "v"}, logger)
	assert.Equal(t, "", result)
}

func TestReplaceInStruct_NestedConfig(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{
		"fmp-api-key":    "sk-real",
		"openai-api-key": "sk-openai",
	}

	config := NewDefaultConfig()
	config.Upstreams.FMP.APIKey = "{fmp-api-key}"
	config.LLM.OpenAI.APIKey = "{openai-api-key}"

	err := ReplaceInStruct(config, kvMap, logger)
	require.NoError(t, err)

	assert.Equal(t, "sk-real", config.Upstreams.FMP.APIKey)
	assert.Equal(t, "sk-openai", config.LLM.OpenAI.APIKey)
}

func TestReplaceInStruct_SliceFields(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"core-ticker": "AAPL"}

	config := NewDefaultConfig()
	config.Prewarm.Tickers = []string{"{core-ticker}", "MSFT"}

	err := ReplaceInStruct(config, kvMap, logger)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "MSFT"}, config.Prewarm.Tickers)
}

func TestReplaceInStruct_RequiresStructPointer(t *testing.T) {
	logger := createTestLogger()

	err := ReplaceInStruct("not a pointer", nil, logger)
	require.Error(t, err)

	value := 42
	err = ReplaceInStruct(&value, nil, logger)
	require.Error(t, err)
}

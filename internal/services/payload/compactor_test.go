package payload

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompactTruncatesByKey(t *testing.T) {
	long := strings.Repeat("a", 1200)
	tree := map[string]interface{}{
		"thesis":      long,
		"mda_summary": long,
	}

	out := Compact(tree).(map[string]interface{})
	assert.Len(t, out["thesis"], 300)
	assert.Len(t, out["mda_summary"], 900)
}

func TestCompactTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("強", 400)
	tree := map[string]interface{}{"label": long}

	out := Compact(tree).(map[string]interface{})
	got := out["label"].(string)
	assert.Equal(t, 300, len([]rune(got)))
	assert.True(t, strings.HasPrefix(got, "強"))
}

func TestCompactDropsNonFiniteNumbers(t *testing.T) {
	tree := map[string]interface{}{
		"rsi":   math.NaN(),
		"atr":   math.Inf(1),
		"score": 42.5,
	}

	out := Compact(tree).(map[string]interface{})
	assert.Nil(t, out["rsi"])
	assert.Nil(t, out["atr"])
	assert.Equal(t, 42.5, out["score"])
}

func TestCompactDropsEmptyAndAllNull(t *testing.T) {
	tree := map[string]interface{}{
		"keep":      map[string]interface{}{"price": 100.0},
		"empty_obj": map[string]interface{}{},
		"empty_arr": []interface{}{},
		"all_null": map[string]interface{}{
			"a": nil,
			"b": nil,
		},
	}

	out := Compact(tree).(map[string]interface{})
	assert.Contains(t, out, "keep")
	assert.NotContains(t, out, "empty_obj")
	assert.NotContains(t, out, "empty_arr")
	assert.NotContains(t, out, "all_null")
}

func TestCompactWholeTreeCollapsesToNil(t *testing.T) {
	tree := map[string]interface{}{
		"a": map[string]interface{}{},
		"b": []interface{}{},
	}
	assert.Nil(t, Compact(tree))
}

func TestCompactMarshalRoundTrip(t *testing.T) {
	type inner struct {
		Summary string `json:"summary"`
	}
	type doc struct {
		Ticker string  `json:"ticker"`
		Price  float64 `json:"price"`
		Notes  inner   `json:"notes"`
	}

	raw, err := CompactMarshal(doc{
		Ticker: "NVDA",
		Price:  905.5,
		Notes:  inner{Summary: strings.Repeat("x", 1000)},
	})
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "NVDA", got["ticker"])
	notes := got["notes"].(map[string]interface{})
	assert.Len(t, notes["summary"], 900)
}

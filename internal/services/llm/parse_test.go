package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/aestimo/internal/models"
)

func TestCleanResponseStripsFences(t *testing.T) {
	fenced := "```json\n{\"action\":{\"rating\":\"BUY\"}}\n```"
	assert.Equal(t, `{"action":{"rating":"BUY"}}`, cleanResponse(fenced))

	bare := "  {\"action\":{\"rating\":\"HOLD\"}}  "
	assert.Equal(t, `{"action":{"rating":"HOLD"}}`, cleanResponse(bare))

	uppercase := "```JSON\n{\"a\":1}\n```"
	assert.Equal(t, `{"a":1}`, cleanResponse(uppercase))
}

func TestExtractJSONObject(t *testing.T) {
	sub, ok := extractJSONObject(`以下是分析結果：{"action":{"rating":"SELL"}}，請參考。`)
	require.True(t, ok)
	assert.Equal(t, `{"action":{"rating":"SELL"}}`, sub)

	_, ok = extractJSONObject("no braces here")
	assert.False(t, ok)
}

func TestValidateResult(t *testing.T) {
	valid := &models.AnalysisResult{Action: models.AnalysisAction{Rating: models.RatingBuy}}
	assert.NoError(t, validateResult(valid))

	missing := &models.AnalysisResult{}
	assert.ErrorIs(t, validateResult(missing), ErrInvalidOutput)

	na := &models.AnalysisResult{Action: models.AnalysisAction{Rating: "N/A"}}
	assert.ErrorIs(t, validateResult(na), ErrInvalidOutput)

	lower := &models.AnalysisResult{Action: models.AnalysisAction{Rating: "n/a"}}
	assert.ErrorIs(t, validateResult(lower), ErrInvalidOutput)
}

func TestParseResultCleanedJSON(t *testing.T) {
	svc := newTestService(t)

	result, err := svc.parseResult(context.Background(), "```json\n{\"action\":{\"rating\":\"BUY\",\"confidence\":\"medium\"}}\n```")
	require.NoError(t, err)
	assert.Equal(t, models.RatingBuy, result.Action.Rating)
	assert.Equal(t, "medium", result.Action.Confidence)
}

func TestParseResultProseWrappedJSON(t *testing.T) {
	svc := newTestService(t)

	text := `根據資料判斷如下 {"action":{"rating":"HOLD","rationale":"基本面穩健。"},"segment":"半導體"} 以上。`
	result, err := svc.parseResult(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, models.RatingHold, result.Action.Rating)
	assert.Equal(t, "半導體", result.Segment)
}

func TestParseResultUnrepairableFails(t *testing.T) {
	svc := newTestService(t)
	// No repair model configured, so the third fallback cannot run.
	svc.config.RepairModel = ""
	svc.config.Gemini.Model = ""

	_, err := svc.parseResult(context.Background(), "completely unstructured response")
	assert.Error(t, err)
}

func TestParseResultRejectsMissingRating(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.parseResult(context.Background(), `{"action":{"confidence":"high"}}`)
	assert.ErrorIs(t, err, ErrInvalidOutput)
}

func TestCacheHashIsStableAndSensitive(t *testing.T) {
	payload := []byte(`{"ticker":"AAPL","price":189.5}`)

	first := CacheHash(payload, "v1", "gpt-4o-mini")
	second := CacheHash(payload, "v1", "gpt-4o-mini")
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)

	assert.NotEqual(t, first, CacheHash(payload, "v2", "gpt-4o-mini"))
	assert.NotEqual(t, first, CacheHash(payload, "v1", "gpt-4o"))
	assert.NotEqual(t, first, CacheHash([]byte(`{"ticker":"MSFT"}`), "v1", "gpt-4o-mini"))
}

func TestDeterministicSeed(t *testing.T) {
	// ParseInt("ffffffffffff", 16) = 281474976710655; mod 1e9 = 976710655.
	assert.Equal(t, int64(976710655), DeterministicSeed("ffffffffffff0000"))
	assert.Equal(t, int64(0), DeterministicSeed("000000000000abcd"))
	assert.Equal(t, int64(0), DeterministicSeed("short"))

	seed := DeterministicSeed(CacheHash([]byte(`{}`), "v1", "gpt-4o"))
	assert.GreaterOrEqual(t, seed, int64(0))
	assert.Less(t, seed, int64(1_000_000_000))
}

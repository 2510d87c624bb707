package llm

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/services/payload"
	"github.com/ternarybob/aestimo/internal/storage/memcache"
)

// fakeResults is an in-memory results store covering only the LLM cache
// surface; bundle methods satisfy the interface and nothing else.
type fakeResults struct {
	mu      sync.Mutex
	outputs map[string]*models.LLMCacheRecord
}

var _ interfaces.ResultsStore = (*fakeResults)(nil)

func newFakeResults() *fakeResults {
	return &fakeResults{outputs: make(map[string]*models.LLMCacheRecord)}
}

func (f *fakeResults) GetBundle(ctx context.Context, ticker, date, variant string) (*models.AnalysisRecord, error) {
	return nil, interfaces.ErrRecordNotFound
}

func (f *fakeResults) PutBundle(ctx context.Context, record *models.AnalysisRecord) error {
	return nil
}

func (f *fakeResults) DeleteVariants(ctx context.Context, ticker, date, model string) (int, error) {
	return 0, nil
}

func (f *fakeResults) GetLLMOutput(ctx context.Context, hash string) (*models.LLMCacheRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.outputs[hash]
	if !ok {
		return nil, interfaces.ErrRecordNotFound
	}
	return record, nil
}

func (f *fakeResults) PutLLMOutput(ctx context.Context, record *models.LLMCacheRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[record.Hash] = record
	return nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return &Service{
		config: &common.LLMConfig{
			Model:               "gpt-4o-mini",
			FallbackModel:       "claude-haiku-3-5-20241022",
			RepairModel:         "gemini-2.0-flash",
			PromptVersion:       "v1",
			MaxCompletionTokens: 512,
			JSONFormatModels:    []string{"gpt-4o", "gpt-4.1"},
			Gemini:              common.GeminiConfig{Model: "gemini-2.0-flash"},
		},
		bounds:   payload.DefaultBounds(),
		logger:   arbor.NewLogger(),
		results:  newFakeResults(),
		cache:    memcache.New(),
		prices:   DefaultPriceTable(),
		inflight: make(map[string]*inflightCall),
	}
}

func storedResult(rating string, target float64) *models.AnalysisResult {
	return &models.AnalysisResult{
		Action: models.AnalysisAction{
			Rating:      rating,
			TargetPrice: &target,
			Confidence:  "medium",
			Rationale:   "動能與基本面均佳。",
		},
		Segment: "半導體",
	}
}

func seedResultsStore(t *testing.T, svc *Service, payloadJSON []byte, result *models.AnalysisResult) string {
	t.Helper()
	hash := CacheHash(payloadJSON, svc.config.PromptVersion, svc.config.Model)
	parsed, err := json.Marshal(result)
	require.NoError(t, err)
	require.NoError(t, svc.results.PutLLMOutput(context.Background(), &models.LLMCacheRecord{
		Hash:      hash,
		Parsed:    parsed,
		Model:     svc.config.Model,
		UpdatedAt: time.Now().UTC(),
	}))
	return hash
}

func TestAnalyzeReturnsResultsStoreHit(t *testing.T) {
	svc := newTestService(t)
	payloadJSON := []byte(`{"ticker":"TSM","price_meta":{"value":100}}`)
	seedResultsStore(t, svc, payloadJSON, storedResult(models.RatingBuy, 120))

	result, usage, err := svc.Analyze(context.Background(), payloadJSON, interfaces.AnalyzeOptions{CurrentPrice: 100})
	require.NoError(t, err)
	assert.Equal(t, models.RatingBuy, result.Action.Rating)
	assert.True(t, usage.Cached)
	assert.Zero(t, usage.TotalCost)
}

func TestAnalyzeClampsCachedTarget(t *testing.T) {
	svc := newTestService(t)
	payloadJSON := []byte(`{"ticker":"TSM"}`)
	seedResultsStore(t, svc, payloadJSON, storedResult(models.RatingBuy, 500))

	result, _, err := svc.Analyze(context.Background(), payloadJSON, interfaces.AnalyzeOptions{CurrentPrice: 100})
	require.NoError(t, err)

	// Default band caps the target at 1.8x the current price.
	require.NotNil(t, result.Action.TargetPrice)
	assert.InDelta(t, 180.0, *result.Action.TargetPrice, 1e-9)
	assert.NotEmpty(t, result.Action.GuardrailNote)
	assert.Contains(t, result.Action.Rationale, "已自動調整")
}

func TestAnalyzeSkipsClampOnHighConfidence(t *testing.T) {
	svc := newTestService(t)
	payloadJSON := []byte(`{"ticker":"TSM"}`)
	seedResultsStore(t, svc, payloadJSON, storedResult(models.RatingBuy, 500))

	result, _, err := svc.Analyze(context.Background(), payloadJSON, interfaces.AnalyzeOptions{
		CurrentPrice:     100,
		TargetConfidence: "high",
	})
	require.NoError(t, err)
	assert.InDelta(t, 500.0, *result.Action.TargetPrice, 1e-9)
	assert.Empty(t, result.Action.GuardrailNote)
}

func TestAnalyzeTightensBandWhenGuardrailsActive(t *testing.T) {
	svc := newTestService(t)
	payloadJSON := []byte(`{"ticker":"TSM"}`)
	seedResultsStore(t, svc, payloadJSON, storedResult(models.RatingHold, 150))

	result, _, err := svc.Analyze(context.Background(), payloadJSON, interfaces.AnalyzeOptions{
		CurrentPrice: 100,
		Guardrails:   &models.Guardrails{SevereMomentum: true},
	})
	require.NoError(t, err)
	assert.InDelta(t, 125.0, *result.Action.TargetPrice, 1e-9)
}

func TestAnalyzeKVHitBackfillsResultsStore(t *testing.T) {
	svc := newTestService(t)
	payloadJSON := []byte(`{"ticker":"NVDA"}`)
	hash := CacheHash(payloadJSON, svc.config.PromptVersion, svc.config.Model)

	parsed, err := json.Marshal(storedResult(models.RatingHold, 110))
	require.NoError(t, err)
	require.NoError(t, svc.cache.Set(llmOutputKey(hash), &models.LLMCacheRecord{
		Parsed: parsed,
		Model:  "gpt-4o-mini",
	}))

	result, usage, err := svc.Analyze(context.Background(), payloadJSON, interfaces.AnalyzeOptions{CurrentPrice: 100})
	require.NoError(t, err)
	assert.Equal(t, models.RatingHold, result.Action.Rating)
	assert.True(t, usage.Cached)

	backfilled, err := svc.results.GetLLMOutput(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, hash, backfilled.Hash)
}

func TestAnalyzeEmptyPayloadFails(t *testing.T) {
	svc := newTestService(t)

	_, _, err := svc.Analyze(context.Background(), nil, interfaces.AnalyzeOptions{})
	assert.Error(t, err)
}

func TestInflightCollapseSharesOneCall(t *testing.T) {
	svc := newTestService(t)

	call, leader := svc.joinInflight("hash-1")
	require.True(t, leader)

	joined, second := svc.joinInflight("hash-1")
	assert.False(t, second)
	assert.Same(t, call, joined)

	parsed, err := json.Marshal(storedResult(models.RatingBuy, 120))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-joined.done
	}()

	svc.finishInflight("hash-1", call, parsed, &models.LLMUsage{Model: "gpt-4o-mini"}, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter did not observe completion")
	}

	// The slot is free again once the call completes.
	_, leader = svc.joinInflight("hash-1")
	assert.True(t, leader)
}

func TestProviderFor(t *testing.T) {
	assert.Equal(t, providerOpenAI, providerFor("gpt-4o-mini"))
	assert.Equal(t, providerOpenAI, providerFor("o3-mini"))
	assert.Equal(t, providerAnthropic, providerFor("claude-haiku-3-5-20241022"))
	assert.Equal(t, providerGemini, providerFor("gemini-2.0-flash"))
}

func TestJSONFormatEnabledMatchesPrefixes(t *testing.T) {
	svc := newTestService(t)

	assert.True(t, svc.jsonFormatEnabled("gpt-4o"))
	assert.True(t, svc.jsonFormatEnabled("gpt-4o-2024-08-06"))
	assert.True(t, svc.jsonFormatEnabled("gpt-4.1-mini"))
	assert.False(t, svc.jsonFormatEnabled("claude-haiku-3-5-20241022"))
	assert.False(t, svc.jsonFormatEnabled("gemini-2.0-flash"))
}

func TestEnabledReflectsConfiguredKeys(t *testing.T) {
	for _, name := range []string{
		"AESTIMO_OPENAI_API_KEY", "OPENAI_API_KEY",
		"AESTIMO_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY",
	} {
		t.Setenv(name, "")
	}

	svc := newTestService(t)
	assert.False(t, svc.Enabled())

	svc.config.OpenAI.APIKey = "sk-test"
	assert.True(t, svc.Enabled())
}

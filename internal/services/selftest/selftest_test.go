package selftest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/storage/memcache"
)

type stubAnalysis struct {
	mu      sync.Mutex
	calls   int
	bundles []*models.AnalysisBundle
	err     error
}

var _ interfaces.AnalysisService = (*stubAnalysis)(nil)

func (s *stubAnalysis) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	idx := s.calls - 1
	if idx >= len(s.bundles) {
		idx = len(s.bundles) - 1
	}
	return s.bundles[idx], nil
}

func (s *stubAnalysis) ResetCaches(ctx context.Context, ticker, date, model string) (int, error) {
	return 0, nil
}

type stubResults struct {
	mu      sync.Mutex
	records map[string]*models.AnalysisRecord
}

var _ interfaces.ResultsStore = (*stubResults)(nil)

func newStubResults() *stubResults {
	return &stubResults{records: make(map[string]*models.AnalysisRecord)}
}

func (s *stubResults) GetBundle(ctx context.Context, ticker, date, variant string) (*models.AnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[fmt.Sprintf("%s|%s|%s", ticker, date, variant)]
	if !ok {
		return nil, interfaces.ErrRecordNotFound
	}
	return record, nil
}

func (s *stubResults) PutBundle(ctx context.Context, record *models.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[fmt.Sprintf("%s|%s|%s", record.Ticker, record.BaselineDate, record.ModelVariant)] = record
	return nil
}

func (s *stubResults) DeleteVariants(ctx context.Context, ticker, date, model string) (int, error) {
	return 0, nil
}

func (s *stubResults) GetLLMOutput(ctx context.Context, hash string) (*models.LLMCacheRecord, error) {
	return nil, interfaces.ErrRecordNotFound
}

func (s *stubResults) PutLLMOutput(ctx context.Context, record *models.LLMCacheRecord) error {
	return nil
}

type stubStorage struct {
	results interfaces.ResultsStore
	cache   interfaces.KVCache
}

var _ interfaces.StorageManager = (*stubStorage)(nil)

func (s *stubStorage) KVStorage() interfaces.KeyValueStorage { return nil }
func (s *stubStorage) Results() interfaces.ResultsStore      { return s.results }
func (s *stubStorage) Cache() interfaces.KVCache             { return s.cache }
func (s *stubStorage) LoadVariablesFromFiles(ctx context.Context, dir string) error {
	return nil
}
func (s *stubStorage) Close() error { return nil }

func healthyBundle(generated time.Time) *models.AnalysisBundle {
	return &models.AnalysisBundle{
		Input: models.BundleInput{Ticker: CanonicalTicker, Mode: models.ModeMetricsOnly},
		Fetched: models.FetchedData{
			FinnhubSummary: &models.FinnhubSummary{
				PriceMeta: &models.PriceMeta{
					Value:  182.5,
					Kind:   models.PriceKindRealtime,
					Source: models.PriceSourceFMPRealtime,
				},
			},
		},
		Momentum: &models.MomentumMetrics{
			Score:    64,
			Trend:    models.TrendNeutral,
			TrendTag: models.TrendTagNeutral,
		},
		GeneratedAt: generated,
	}
}

func seedStoredMetrics(t *testing.T, results *stubResults, date string) {
	t.Helper()
	err := results.PutBundle(context.Background(), &models.AnalysisRecord{
		Ticker:       CanonicalTicker,
		BaselineDate: date,
		ModelVariant: models.ResolveVariant("gpt-5-mini", true),
		Bundle:       json.RawMessage(`{"input":{"ticker":"NVDA"}}`),
	})
	require.NoError(t, err)
}

func todayString() string {
	return common.DateOnly(time.Now().UTC()).Format(common.BaselineDateFormat)
}

func newTestService(analyses *stubAnalysis, results *stubResults) *Service {
	storage := &stubStorage{results: results, cache: memcache.New()}
	return NewService(analyses, storage, "gpt-5-mini", arbor.NewLogger())
}

func checkByName(t *testing.T, report *Report, name string) Check {
	t.Helper()
	for _, check := range report.Checks {
		if check.Name == name {
			return check
		}
	}
	t.Fatalf("check %q not in report", name)
	return Check{}
}

func TestRunAllChecksPass(t *testing.T) {
	generated := time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC)
	analyses := &stubAnalysis{bundles: []*models.AnalysisBundle{healthyBundle(generated)}}
	results := newStubResults()
	seedStoredMetrics(t, results, todayString())

	report := newTestService(analyses, results).Run(context.Background())

	assert.True(t, report.Passed)
	assert.Equal(t, CanonicalTicker, report.Ticker)
	assert.Equal(t, todayString(), report.Date)
	require.Len(t, report.Checks, 6)
	for _, check := range report.Checks {
		assert.True(t, check.Passed, "check %s failed: %s", check.Name, check.Detail)
	}
	assert.Equal(t, 2, analyses.calls)

	names := make([]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		names = append(names, check.Name)
	}
	assert.Equal(t, []string{
		"storage", "analyze_metrics_only", "price_meta",
		"momentum", "stored_bundle", "cache_replay",
	}, names)
}

func TestRunReportsAnalyzeFailure(t *testing.T) {
	analyses := &stubAnalysis{err: fmt.Errorf("upstream exploded")}
	results := newStubResults()

	report := newTestService(analyses, results).Run(context.Background())

	assert.False(t, report.Passed)
	assert.True(t, checkByName(t, report, "storage").Passed)

	analyze := checkByName(t, report, "analyze_metrics_only")
	assert.False(t, analyze.Passed)
	assert.Contains(t, analyze.Detail, "upstream exploded")

	assert.False(t, checkByName(t, report, "price_meta").Passed)
	assert.False(t, checkByName(t, report, "momentum").Passed)
	assert.False(t, checkByName(t, report, "stored_bundle").Passed)
}

func TestRunFlagsRebuiltReplay(t *testing.T) {
	first := healthyBundle(time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC))
	second := healthyBundle(time.Date(2025, 8, 25, 10, 5, 0, 0, time.UTC))
	analyses := &stubAnalysis{bundles: []*models.AnalysisBundle{first, second}}
	results := newStubResults()
	seedStoredMetrics(t, results, todayString())

	report := newTestService(analyses, results).Run(context.Background())

	assert.False(t, report.Passed)
	replay := checkByName(t, report, "cache_replay")
	assert.False(t, replay.Passed)
	assert.Contains(t, replay.Detail, "rebuilt")
	assert.True(t, checkByName(t, report, "price_meta").Passed)
}

func TestRunFlagsWrongPriceKind(t *testing.T) {
	bundle := healthyBundle(time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC))
	bundle.Fetched.FinnhubSummary.PriceMeta.Kind = models.PriceKindHistorical
	analyses := &stubAnalysis{bundles: []*models.AnalysisBundle{bundle}}
	results := newStubResults()
	seedStoredMetrics(t, results, todayString())

	report := newTestService(analyses, results).Run(context.Background())

	assert.False(t, report.Passed)
	price := checkByName(t, report, "price_meta")
	assert.False(t, price.Passed)
	assert.Contains(t, price.Detail, "historical")
}

func TestRunFlagsMomentumError(t *testing.T) {
	bundle := healthyBundle(time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC))
	bundle.Momentum = &models.MomentumMetrics{Error: "no price bars"}
	analyses := &stubAnalysis{bundles: []*models.AnalysisBundle{bundle}}
	results := newStubResults()
	seedStoredMetrics(t, results, todayString())

	report := newTestService(analyses, results).Run(context.Background())

	assert.False(t, report.Passed)
	momentum := checkByName(t, report, "momentum")
	assert.False(t, momentum.Passed)
	assert.Contains(t, momentum.Detail, "no price bars")
}

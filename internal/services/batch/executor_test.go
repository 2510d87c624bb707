package batch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/xuri/excelize/v2"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/services/fragments"
	"github.com/ternarybob/aestimo/internal/services/hotcache"
	"github.com/ternarybob/aestimo/internal/storage/memcache"
)

type stubAnalysis struct {
	mu       sync.Mutex
	requests []models.AnalysisRequest
	errs     map[string]error
	bundle   func(req models.AnalysisRequest) *models.AnalysisBundle
}

func (s *stubAnalysis) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisBundle, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if err := s.errs[req.Ticker]; err != nil {
		return nil, err
	}
	if s.bundle != nil {
		return s.bundle(req), nil
	}
	return &models.AnalysisBundle{
		Input: models.BundleInput{Ticker: req.Ticker, Date: req.Date, Model: "gpt-5-mini", Mode: req.Mode},
	}, nil
}

func (s *stubAnalysis) ResetCaches(ctx context.Context, ticker, date, model string) (int, error) {
	return 0, nil
}

func (s *stubAnalysis) calls() []models.AnalysisRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AnalysisRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

type stubBatchQuotes struct {
	mu      sync.Mutex
	batches [][]string
	price   float64
}

func (s *stubBatchQuotes) BatchQuotes(ctx context.Context, symbols []string) ([]models.Quote, error) {
	s.mu.Lock()
	batch := make([]string, len(symbols))
	copy(batch, symbols)
	s.batches = append(s.batches, batch)
	s.mu.Unlock()

	quotes := make([]models.Quote, 0, len(symbols))
	for _, symbol := range symbols {
		quotes = append(quotes, models.Quote{Symbol: symbol, Price: s.price, Timestamp: time.Now().UTC()})
	}
	return quotes, nil
}

type stubStorage struct{ cache interfaces.KVCache }

func (s *stubStorage) KVStorage() interfaces.KeyValueStorage { return nil }
func (s *stubStorage) Results() interfaces.ResultsStore      { return nil }
func (s *stubStorage) Cache() interfaces.KVCache             { return s.cache }
func (s *stubStorage) LoadVariablesFromFiles(ctx context.Context, dir string) error {
	return nil
}
func (s *stubStorage) Close() error { return nil }

func newTestExecutor(t *testing.T, concurrency int, quotes interfaces.BatchQuoteProvider, analyses *stubAnalysis) *Executor {
	t.Helper()
	config := &common.Config{
		Batch: common.BatchConfig{Concurrency: concurrency, PrefetchBatch: 2},
		LLM:   common.LLMConfig{Model: "gpt-5-mini"},
	}
	logger := arbor.NewLogger()
	hot := hotcache.New(30*time.Second, 64)
	frags := fragments.NewService(config, logger, &stubStorage{cache: memcache.New()}, hot, fragments.Providers{BatchQuotes: quotes}, nil, nil)
	return NewExecutor(config, logger, analyses, frags, nil, nil)
}

func TestRunMemoizesDuplicateRows(t *testing.T) {
	analyses := &stubAnalysis{}
	executor := newTestExecutor(t, 1, nil, analyses)

	rows := []models.BatchRow{
		{Index: 0, Ticker: "NVDA", Date: "2024-01-02"},
		{Index: 1, Ticker: "NVDA", Date: "2024-01-02"},
		{Index: 2, Ticker: "AAPL", Date: "2024-01-02"},
	}
	results, err := executor.Run(context.Background(), rows, models.ModeFull, "")
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Len(t, analyses.calls(), 2, "duplicate tuple shares one run")
	assert.False(t, results[0].Memo)
	assert.True(t, results[1].Memo)
	assert.False(t, results[2].Memo)
	require.NotNil(t, results[1].Bundle)
	assert.Equal(t, "NVDA", results[1].Bundle.Input.Ticker)
}

func TestRunCarriesRowErrors(t *testing.T) {
	analyses := &stubAnalysis{errs: map[string]error{"FAIL": errors.New("upstream exploded")}}
	executor := newTestExecutor(t, 3, nil, analyses)

	rows := []models.BatchRow{
		{Index: 0, Ticker: "FAIL", Date: "2024-01-02"},
		{Index: 1, Ticker: "AAPL", Date: "2024-01-02"},
		{Index: 2, Ticker: "  ", Date: "2024-01-02"},
	}
	results, err := executor.Run(context.Background(), rows, models.ModeFull, "")
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Contains(t, results[0].Err, "upstream exploded")
	assert.Empty(t, results[1].Err)
	assert.NotNil(t, results[1].Bundle)
	assert.Contains(t, results[2].Err, "symbol is required")
	assert.Len(t, analyses.calls(), 2, "the blank ticker never reaches the pipeline")
}

func TestRunUsesRowModelOverBatchModel(t *testing.T) {
	analyses := &stubAnalysis{}
	executor := newTestExecutor(t, 1, nil, analyses)

	rows := []models.BatchRow{
		{Index: 0, Ticker: "NVDA", Date: "2024-01-02", Model: "gpt-5"},
		{Index: 1, Ticker: "AAPL", Date: "2024-01-02"},
	}
	_, err := executor.Run(context.Background(), rows, models.ModeFull, "gpt-5-mini")
	require.NoError(t, err)

	calls := analyses.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "gpt-5", calls[0].Model)
	assert.Equal(t, "gpt-5-mini", calls[1].Model)
}

func TestRunRejectsEmptyInput(t *testing.T) {
	executor := newTestExecutor(t, 1, nil, &stubAnalysis{})
	_, err := executor.Run(context.Background(), nil, models.ModeFull, "")
	require.Error(t, err)
}

func TestPrefetchSkipsHistoricalRows(t *testing.T) {
	quotes := &stubBatchQuotes{price: 100}
	analyses := &stubAnalysis{}
	executor := newTestExecutor(t, 2, quotes, analyses)

	today := common.DateOnly(time.Now()).Format(common.BaselineDateFormat)
	rows := []models.BatchRow{
		{Index: 0, Ticker: "NVDA", Date: today},
		{Index: 1, Ticker: "AAPL", Date: "2024-01-02"},
		{Index: 2, Ticker: "MSFT", Date: ""},
		{Index: 3, Ticker: "nvda", Date: today},
		{Index: 4, Ticker: "TSLA", Date: today},
	}
	_, err := executor.Run(context.Background(), rows, models.ModeMetricsOnly, "")
	require.NoError(t, err)

	var symbols []string
	for _, batch := range quotes.batches {
		assert.LessOrEqual(t, len(batch), 2, "prefetch honors the configured chunk size")
		symbols = append(symbols, batch...)
	}
	assert.ElementsMatch(t, []string{"NVDA", "MSFT", "TSLA"}, symbols)
}

func TestResolveConcurrency(t *testing.T) {
	executor := newTestExecutor(t, 3, nil, &stubAnalysis{})

	assert.Equal(t, 3, executor.resolveConcurrency(models.ModeFull))
	assert.Equal(t, 3, executor.resolveConcurrency(models.ModeDeferred))
	assert.Equal(t, 2, executor.resolveConcurrency(models.ModeMetricsOnly))
	assert.Equal(t, 1, executor.resolveConcurrency(models.ModeCachedOnly))

	wide := newTestExecutor(t, 8, nil, &stubAnalysis{})
	assert.Equal(t, 8, wide.resolveConcurrency(models.ModeFull))
	assert.Equal(t, 2, wide.resolveConcurrency(models.ModeMetricsOnly))
	assert.Equal(t, 4, wide.resolveConcurrency(models.ModeCachedOnly))

	narrow := newTestExecutor(t, 1, nil, &stubAnalysis{})
	assert.Equal(t, 1, narrow.resolveConcurrency(models.ModeMetricsOnly))
	assert.Equal(t, 1, narrow.resolveConcurrency(models.ModeCachedOnly))
}

func TestParseCSV(t *testing.T) {
	input := "ticker,date,model\nNVDA,2024-01-02,gpt-5\n\nAAPL,2024-01-03\nMSFT\n"
	rows, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, models.BatchRow{Index: 0, Ticker: "NVDA", Date: "2024-01-02", Model: "gpt-5"}, rows[0])
	assert.Equal(t, models.BatchRow{Index: 1, Ticker: "AAPL", Date: "2024-01-03"}, rows[1])
	assert.Equal(t, models.BatchRow{Index: 2, Ticker: "MSFT"}, rows[2])

	_, err = ParseCSV(strings.NewReader("ticker,date\n"))
	require.Error(t, err)
}

func TestParseXLSX(t *testing.T) {
	workbook := excelize.NewFile()
	sheet := workbook.GetSheetName(0)
	require.NoError(t, workbook.SetCellValue(sheet, "A1", "ticker"))
	require.NoError(t, workbook.SetCellValue(sheet, "B1", "date"))
	require.NoError(t, workbook.SetCellValue(sheet, "A2", "NVDA"))
	require.NoError(t, workbook.SetCellValue(sheet, "B2", "2024-01-02"))
	require.NoError(t, workbook.SetCellValue(sheet, "A3", "AAPL"))

	buf, err := workbook.WriteToBuffer()
	require.NoError(t, err)

	rows, err := ParseXLSX(buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "NVDA", rows[0].Ticker)
	assert.Equal(t, "2024-01-02", rows[0].Date)
	assert.Equal(t, "AAPL", rows[1].Ticker)
}

func TestParseUploadDispatchesByExtension(t *testing.T) {
	rows, err := ParseUpload("watchlist.csv", strings.NewReader("NVDA,2024-01-02\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	workbook := excelize.NewFile()
	sheet := workbook.GetSheetName(0)
	require.NoError(t, workbook.SetCellValue(sheet, "A1", "NVDA"))
	buf, err := workbook.WriteToBuffer()
	require.NoError(t, err)

	rows, err = ParseUpload("watchlist.XLSX", buf)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "NVDA", rows[0].Ticker)
}

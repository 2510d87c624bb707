package interfaces

import (
	"context"

	"github.com/ternarybob/aestimo/internal/models"
)

// AnalysisService is the orchestration entry point consumed by the HTTP
// handlers, the batch executor, the prewarmer and the MCP tools.
type AnalysisService interface {
	// Analyze runs or replays one analysis per the request's mode.
	Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisBundle, error)

	// ResetCaches deletes cached state for a ticker: both model variants
	// for the date (all dates when date is empty) plus matching disk
	// cache entries. Returns the number of records removed.
	ResetCaches(ctx context.Context, ticker, date, model string) (int, error)
}

// DeferredQueue accepts requests for background execution.
type DeferredQueue interface {
	// Enqueue adds a request to the FIFO queue. Duplicate keys already
	// queued or running are dropped.
	Enqueue(req models.AnalysisRequest) error

	// Depth reports queued (not yet started) requests.
	Depth() int

	Start()
	Stop()
}

// BatchExecutor runs many analysis rows with bounded concurrency.
type BatchExecutor interface {
	Run(ctx context.Context, rows []models.BatchRow, mode models.Mode, model string) ([]models.BatchRowResult, error)
}

// ReportRenderer turns a stored bundle into a deliverable document.
type ReportRenderer interface {
	RenderMarkdown(bundle *models.AnalysisBundle) ([]byte, error)
	RenderHTML(bundle *models.AnalysisBundle) ([]byte, error)
	RenderPDF(bundle *models.AnalysisBundle) ([]byte, error)
}

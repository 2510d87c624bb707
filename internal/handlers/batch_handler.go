package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/services/batch"
)

// BatchHandler serves spreadsheet batch scoring.
type BatchHandler struct {
	executor interfaces.BatchExecutor
	logger   arbor.ILogger
}

// NewBatchHandler creates a new BatchHandler
func NewBatchHandler(executor interfaces.BatchExecutor, logger arbor.ILogger) *BatchHandler {
	return &BatchHandler{
		executor: executor,
		logger:   logger,
	}
}

// RunBatchHandler handles POST /api/batch. The upload is a CSV or XLSX
// file under the multipart field "file"; mode and model come from the
// query string. The response streams back as a CSV download.
func (h *BatchHandler) RunBatchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	mode, err := models.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	model := r.URL.Query().Get("model")

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "missing upload field \"file\": "+err.Error())
		return
	}
	defer file.Close()

	rows, err := batch.ParseUpload(header.Filename, file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "parse upload: "+err.Error())
		return
	}

	h.logger.Info().
		Str("filename", header.Filename).
		Int("rows", len(rows)).
		Str("mode", string(mode)).
		Msg("Batch run started")

	results, err := h.executor.Run(r.Context(), rows, mode, model)
	if err != nil {
		h.logger.Error().Err(err).Str("filename", header.Filename).Msg("Batch run failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	filename := fmt.Sprintf("aestimo_batch_%s.csv", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := batch.WriteCSV(w, results); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to stream batch results")
	}
}

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// ReportHandler renders stored analysis bundles as research notes.
type ReportHandler struct {
	storage      interfaces.StorageManager
	renderer     interfaces.ReportRenderer
	defaultModel string
	logger       arbor.ILogger
}

// NewReportHandler creates a new ReportHandler. defaultModel fills in the
// model variant when the request does not name one.
func NewReportHandler(storage interfaces.StorageManager, renderer interfaces.ReportRenderer, defaultModel string, logger arbor.ILogger) *ReportHandler {
	return &ReportHandler{
		storage:      storage,
		renderer:     renderer,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// GetReportHandler handles GET /api/report?ticker=&date=&model=&format=
func (h *ReportHandler) GetReportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	query := r.URL.Query()
	ticker := common.ParseTicker(query.Get("ticker"))
	if ticker.Symbol == "" {
		WriteError(w, http.StatusBadRequest, "invalid ticker: must not be empty")
		return
	}
	date := query.Get("date")
	if date == "" {
		date = common.DateOnly(time.Now().UTC()).Format(common.BaselineDateFormat)
	} else if _, err := common.ParseBaselineDate(date, time.Now()); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid date: "+err.Error())
		return
	}
	model := query.Get("model")
	if model == "" {
		model = h.defaultModel
	}
	format := query.Get("format")
	if format == "" {
		format = "md"
	}

	record, err := h.loadStored(r, ticker.Symbol, date, model)
	if err != nil {
		if errors.Is(err, interfaces.ErrRecordNotFound) {
			WriteError(w, http.StatusNotFound, fmt.Sprintf("no stored bundle for %s at %s", ticker.Symbol, date))
			return
		}
		h.logger.Error().Err(err).Str("ticker", ticker.Symbol).Msg("Report lookup failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	bundle, err := record.DecodeBundle()
	if err != nil {
		h.logger.Error().Err(err).Str("key", record.Key).Msg("Stored bundle is unreadable")
		WriteError(w, http.StatusInternalServerError, "decode stored bundle: "+err.Error())
		return
	}

	switch format {
	case "md", "markdown":
		note, err := h.renderer.RenderMarkdown(bundle)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write(note)
	case "html":
		page, err := h.renderer.RenderHTML(bundle)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page)
	case "pdf":
		doc, err := h.renderer.RenderPDF(bundle)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q",
			fmt.Sprintf("%s_%s.pdf", ticker.Symbol, date)))
		w.Write(doc)
	default:
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid format: %q (want md, html or pdf)", format))
	}
}

// loadStored finds the freshest stored variant for the model: the full
// run first, then the metrics-only run, then a legacy bare-model record.
func (h *ReportHandler) loadStored(r *http.Request, symbol, date, model string) (*models.AnalysisRecord, error) {
	variants := []string{
		models.ResolveVariant(model, false),
		models.ResolveVariant(model, true),
		model,
	}
	for _, variant := range variants {
		record, err := h.storage.Results().GetBundle(r.Context(), symbol, date, variant)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, interfaces.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, interfaces.ErrRecordNotFound
}

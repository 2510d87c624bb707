package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/services/orchestrator"
)

// AnalyzeHandler serves the core research endpoint.
type AnalyzeHandler struct {
	analyses interfaces.AnalysisService
	logger   arbor.ILogger
}

// NewAnalyzeHandler creates a new AnalyzeHandler
func NewAnalyzeHandler(analyses interfaces.AnalysisService, logger arbor.ILogger) *AnalyzeHandler {
	return &AnalyzeHandler{
		analyses: analyses,
		logger:   logger,
	}
}

// AnalyzeRequestHandler handles POST /api/analyze
func (h *AnalyzeHandler) AnalyzeRequestHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req models.AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	bundle, err := h.analyses.Analyze(r.Context(), req)
	if err != nil {
		var verr *models.ValidationError
		switch {
		case errors.As(err, &verr):
			WriteError(w, http.StatusBadRequest, verr.Error())
		case errors.Is(err, orchestrator.ErrCachedResultUnavailable):
			WriteJSON(w, http.StatusConflict, map[string]string{
				"error": orchestrator.ErrCachedResultUnavailable.Error(),
			})
		default:
			h.logger.Error().Err(err).
				Str("ticker", req.Ticker).
				Str("mode", string(req.Mode)).
				Msg("Analysis failed")
			WriteError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	WriteJSON(w, http.StatusOK, bundle)
}

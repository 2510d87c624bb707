package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/interfaces"
)

// CacheHandler serves the cache reset endpoint.
type CacheHandler struct {
	analyses interfaces.AnalysisService
	logger   arbor.ILogger
}

// NewCacheHandler creates a new CacheHandler
func NewCacheHandler(analyses interfaces.AnalysisService, logger arbor.ILogger) *CacheHandler {
	return &CacheHandler{
		analyses: analyses,
		logger:   logger,
	}
}

type resetCacheRequest struct {
	Ticker string `json:"ticker"`
	Date   string `json:"date,omitempty"`
	Model  string `json:"model,omitempty"`
}

// ResetCacheHandler handles POST /api/reset-cache
func (h *CacheHandler) ResetCacheHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req resetCacheRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Ticker) == "" {
		WriteError(w, http.StatusBadRequest, "invalid ticker: must not be empty")
		return
	}

	cleared, err := h.analyses.ResetCaches(r.Context(), req.Ticker, req.Date, req.Model)
	if err != nil {
		h.logger.Error().Err(err).Str("ticker", req.Ticker).Msg("Cache reset failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info().
		Str("ticker", req.Ticker).
		Int("cleared", cleared).
		Msg("Caches cleared")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":                  true,
		"cleared_cache_files": cleared,
	})
}

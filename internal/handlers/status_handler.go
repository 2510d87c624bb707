package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/services/usage"
)

// StatusHandler reports process health for operators.
type StatusHandler struct {
	storage  interfaces.StorageManager
	deferred interfaces.DeferredQueue
	usage    *usage.Monitor
	started  time.Time
	logger   arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(storage interfaces.StorageManager, deferred interfaces.DeferredQueue, monitor *usage.Monitor, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		storage:  storage,
		deferred: deferred,
		usage:    monitor,
		started:  time.Now(),
		logger:   logger,
	}
}

type usageStatus struct {
	WindowTokens  int     `json:"window_tokens"`
	WindowCostUSD float64 `json:"window_cost_usd"`
}

type statusResponse struct {
	Status        string      `json:"status"`
	Version       string      `json:"version"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	Storage       string      `json:"storage"`
	DeferredDepth int         `json:"deferred_depth"`
	Usage         usageStatus `json:"usage"`
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	resp := statusResponse{
		Status:        "ok",
		Version:       common.GetVersion(),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Storage:       "ok",
	}

	if h.storage == nil {
		resp.Storage = "unavailable"
	} else if _, err := h.storage.Cache().Keys(); err != nil {
		h.logger.Warn().Err(err).Msg("Storage probe failed")
		resp.Storage = "unavailable"
	}

	if h.deferred != nil {
		resp.DeferredDepth = h.deferred.Depth()
	}
	if h.usage != nil {
		tokens, cost := h.usage.WindowTotals()
		resp.Usage = usageStatus{WindowTokens: tokens, WindowCostUSD: cost}
	}

	WriteJSON(w, http.StatusOK, resp)
}

package server

import (
	"net/http"

	"github.com/vertextoedge/safe-downloader/internal/domain"
	"github.com/vertextoedge/safe-downloader/internal/port"
	"go.uber.org/zap"
)

// DebugHandler handles debug endpoint requests
type DebugHandler struct {
	transfers port.TransferRepository
	metrics   MetricsSource
	logger    *zap.Logger
}

// NewDebugHandler creates a new DebugHandler
func NewDebugHandler(transfers port.TransferRepository, metrics MetricsSource, logger *zap.Logger) *DebugHandler {
	return &DebugHandler{
		transfers: transfers,
		metrics:   metrics,
		logger:    logger,
	}
}

// statsResponse combines process counters with the persisted history
type statsResponse struct {
	Metrics map[string]int64     `json:"metrics"`
	History *domain.HistoryStats `json:"history"`
}

// HandleStats handles debug statistics requests
func (h *DebugHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	history, err := h.transfers.GetHistoryStats()
	if err != nil {
		h.logger.Error("failed to get history stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get history stats")
		return
	}

	resp := statsResponse{
		Metrics: map[string]int64{},
		History: history,
	}
	if h.metrics != nil {
		resp.Metrics = h.metrics.GetMetrics()
	}

	writeJSON(w, http.StatusOK, resp)
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/vertextoedge/safe-downloader/internal/domain"
	"github.com/vertextoedge/safe-downloader/internal/port"
	"github.com/vertextoedge/safe-downloader/internal/service/transfer"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	maxRequestBody      = 64 * 1024
)

var validate = validator.New()

// startRequest is the body of POST /transfers
type startRequest struct {
	URL            string `json:"url" validate:"required,url"`
	DestinationDir string `json:"destination_dir" validate:"required"`
}

type startResponse struct {
	ID string `json:"id"`
}

// transferResponse is the JSON view of a session snapshot or history record
type transferResponse struct {
	ID              string                `json:"id"`
	URL             string                `json:"url"`
	DestinationPath string                `json:"destination_path"`
	StagingPath     string                `json:"staging_path,omitempty"`
	State           string                `json:"state"`
	Progress        domain.ProgressReport `json:"progress"`
	ContentType     string                `json:"content_type,omitempty"`
	Error           string                `json:"error,omitempty"`
	StartedAt       time.Time             `json:"started_at"`
	FinishedAt      *time.Time            `json:"finished_at,omitempty"`
}

func snapshotResponse(s transfer.Snapshot) transferResponse {
	resp := transferResponse{
		ID:              s.ID,
		URL:             s.URL,
		DestinationPath: s.DestinationPath,
		State:           s.State.String(),
		Progress:        s.Progress.Report(),
		ContentType:     s.ContentType,
		Error:           s.Error,
		StartedAt:       s.StartedAt,
	}
	if !s.State.IsTerminal() {
		resp.StagingPath = s.StagingPath
	}
	if !s.FinishedAt.IsZero() {
		resp.FinishedAt = lo.ToPtr(s.FinishedAt)
	}
	return resp
}

func recordResponse(rec *domain.TransferRecord, _ int) transferResponse {
	resp := transferResponse{
		ID:              rec.ID,
		URL:             rec.URL,
		DestinationPath: rec.DestinationPath,
		State:           rec.State.String(),
		Progress:        rec.Progress().Report(),
		ContentType:     rec.ContentType,
		Error:           rec.LastError,
		StartedAt:       rec.StartedAt,
		FinishedAt:      rec.FinishedAt,
	}
	if rec.State.IsOutstanding() {
		resp.StagingPath = rec.StagingPath
	}
	return resp
}

// TransferHandler handles the transfer control endpoints
type TransferHandler struct {
	controller   Controller
	transfers    port.TransferRepository
	destinations destinationPolicy
	logger       *zap.Logger
}

// NewTransferHandler creates a new TransferHandler. Transfers may only
// target allowedDirs or their subdirectories; with none configured, every
// start is refused.
func NewTransferHandler(controller Controller, transfers port.TransferRepository, allowedDirs []string, logger *zap.Logger) *TransferHandler {
	return &TransferHandler{
		controller:   controller,
		transfers:    transfers,
		destinations: newDestinationPolicy(allowedDirs),
		logger:       logger,
	}
}

// HandleTransfers handles /transfers: POST starts a transfer, GET lists the history
func (h *TransferHandler) HandleTransfers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleStart(w, r)
	case http.MethodGet:
		h.handleHistory(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// HandleActive handles /transfers/active: GET shows, DELETE cancels
func (h *TransferHandler) HandleActive(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		snap, ok := h.controller.Active()
		if !ok {
			writeError(w, http.StatusNotFound, domain.ErrNoActiveSession.Error())
			return
		}
		writeJSON(w, http.StatusOK, snapshotResponse(snap))
	case http.MethodDelete:
		snap, ok := h.controller.Active()
		if err := h.controller.Cancel(); err != nil {
			if errors.Is(err, domain.ErrNoActiveSession) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			h.logger.Error("failed to cancel transfer", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to cancel transfer")
			return
		}
		if !ok {
			writeJSON(w, http.StatusAccepted, map[string]string{})
			return
		}
		writeJSON(w, http.StatusAccepted, startResponse{ID: snap.ID})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *TransferHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r.Header.Get("Content-Type")) {
		writeError(w, http.StatusUnsupportedMediaType, "content type must be application/json")
		return
	}

	var body startRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := domain.NewDownloadRequest(body.URL, body.DestinationDir)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.destinations.empty() || !h.destinations.allows(req.DestinationDir()) {
		h.logger.Warn("destination outside allowed directories",
			zap.String("destination_dir", req.DestinationDir()),
			zap.String("peer", r.RemoteAddr))
		writeError(w, http.StatusForbidden, "destination directory is not allowed")
		return
	}

	id, err := h.controller.Start(req)
	if err != nil {
		status := startErrorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("failed to start transfer",
				zap.String("url", req.URLString()),
				zap.Error(err))
		}
		writeError(w, status, err.Error())
		return
	}

	h.logger.Info("transfer started",
		zap.String("transfer_id", id),
		zap.String("url", req.URLString()),
		zap.String("destination", req.TargetPath()))

	writeJSON(w, http.StatusAccepted, startResponse{ID: id})
}

func startErrorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidDestination):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *TransferHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := h.transfers.ListTransfers(limit)
	if err != nil {
		h.logger.Error("failed to list transfers", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list transfers")
		return
	}

	writeJSON(w, http.StatusOK, lo.Map(records, recordResponse))
}

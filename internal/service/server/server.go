package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/vertextoedge/safe-downloader/internal/domain"
	"github.com/vertextoedge/safe-downloader/internal/port"
	"github.com/vertextoedge/safe-downloader/internal/service/transfer"
	"go.uber.org/zap"
)

// Config contains HTTP server configuration
type Config struct {
	BindAddr     string
	Username     string
	Password     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// AllowedDirs are the directories POST /transfers may write into
	AllowedDirs []string
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:     "127.0.0.1:8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Controller is the part of transfer.Controller the API drives
type Controller interface {
	Start(req domain.DownloadRequest) (string, error)
	Cancel() error
	Active() (transfer.Snapshot, bool)
}

// MetricsSource exposes event counters
type MetricsSource interface {
	GetMetrics() map[string]int64
}

// Server represents the HTTP API server
type Server struct {
	config          *Config
	transfers       port.TransferRepository
	logger          *zap.Logger
	server          *http.Server
	transferHandler *TransferHandler
	debugHandler    *DebugHandler
}

// New creates a new HTTP server. metrics may be nil.
func New(cfg *Config, controller Controller, transfers port.TransferRepository, metrics MetricsSource, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		config:    cfg,
		transfers: transfers,
		logger:    logger,
	}

	s.transferHandler = NewTransferHandler(controller, transfers, cfg.AllowedDirs, logger)
	s.debugHandler = NewDebugHandler(transfers, metrics, logger)

	mux := http.NewServeMux()

	// Health check stays open for probes
	mux.HandleFunc("/health", s.handleHealth)

	protect := withBasicAuth(cfg.Username, cfg.Password, logger)

	// Transfer endpoints
	mux.Handle("/transfers", protect(http.HandlerFunc(s.transferHandler.HandleTransfers)))
	mux.Handle("/transfers/active", protect(http.HandlerFunc(s.transferHandler.HandleActive)))

	// Debug endpoints
	mux.Handle("/debug/stats", protect(http.HandlerFunc(s.debugHandler.HandleStats)))

	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      chain(mux, withAccessLog(logger), withSameOrigin(logger)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root handler, including middleware
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.transfers.Ping(); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "database connection failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// errorResponse is the body of every non-2xx JSON response
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/vertextoedge/safe-downloader/internal/logger"
	"github.com/vertextoedge/safe-downloader/internal/service/maintenance"
	"github.com/vertextoedge/safe-downloader/internal/service/server"
	"github.com/vertextoedge/safe-downloader/internal/service/transfer"
	"go.uber.org/zap"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control API with transfer history and maintenance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a)
		},
	}
}

func runServe(ctx context.Context, a *app) error {
	cfg := a.cfg
	zapLogger := logger.GetZapLogger()

	if cfg.Database.Path == "" {
		return &exitError{code: 1, err: fmt.Errorf("database.path is required for serve")}
	}

	zapLogger.Info("starting safe-downloader",
		zap.String("version", version),
		zap.String("config", a.configPath))

	c, err := buildComponents(cfg, zapLogger)
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("failed to open database: %w", err)}
	}
	defer c.close()

	controller := transfer.NewController(c.fs, c.transport, c.dispatcher, nil, zapLogger, transferConfig(cfg))

	// Create maintenance service
	scanDirs := cfg.Maintenance.ScanDirs
	if cfg.Download.DestDir != "" {
		scanDirs = lo.Uniq(append([]string{cfg.Download.DestDir}, scanDirs...))
	}
	maintenanceCfg := &maintenance.Config{
		StaleCheckInterval: cfg.Maintenance.GetStaleCheckInterval(),
		StaleAfter:         cfg.Maintenance.GetStaleAfter(),
		CleanupInterval:    cfg.Maintenance.GetCleanupInterval(),
		StagingMaxAge:      cfg.Maintenance.GetStagingMaxAge(),
		HistoryMaxAge:      cfg.Maintenance.GetHistoryMaxAge(),
		ScanDirs:           scanDirs,
	}
	maintenanceService := maintenance.New(maintenanceCfg, c.store, c.fs, controller, zapLogger)

	// Create HTTP server
	serverCfg := &server.Config{
		BindAddr:     cfg.HTTP.BindAddr,
		Username:     cfg.HTTP.Username,
		Password:     cfg.HTTP.Password,
		ReadTimeout:  cfg.HTTP.GetReadTimeout(),
		WriteTimeout: cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:  cfg.HTTP.GetIdleTimeout(),
		AllowedDirs:  scanDirs,
	}
	if len(scanDirs) == 0 {
		zapLogger.Warn("no download directories configured, POST /transfers will be refused",
			zap.String("hint", "set download.dest_dir or maintenance.scan_dirs"))
	}
	httpServer := server.New(serverCfg, controller, c.store, c.metrics, zapLogger)

	// Start HTTP server
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	// Start maintenance service
	go func() {
		if err := maintenanceService.Start(ctx); err != nil {
			zapLogger.Error("maintenance service failed", zap.Error(err))
		}
	}()

	zapLogger.Info("safe-downloader started", zap.String("addr", cfg.HTTP.BindAddr))

	var runErr error
	select {
	case <-ctx.Done():
		zapLogger.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			runErr = &exitError{code: 1, err: fmt.Errorf("HTTP server failed: %w", err)}
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	maintenanceService.Stop()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		zapLogger.Error("failed to stop HTTP server", zap.Error(err))
	}

	// An outstanding transfer is discarded, never committed half-way
	if err := controller.Cancel(); err == nil {
		zapLogger.Info("cancelling active transfer")
	}
	if err := controller.Wait(shutdownCtx); err != nil {
		zapLogger.Warn("active transfer did not finish before shutdown", zap.Error(err))
	}

	zapLogger.Info("safe-downloader stopped")
	return runErr
}

package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/vertextoedge/safe-downloader/internal/adapter/filesystem"
	"github.com/vertextoedge/safe-downloader/internal/adapter/httptransport"
	"github.com/vertextoedge/safe-downloader/internal/adapter/sqlite"
	"github.com/vertextoedge/safe-downloader/internal/config"
	"github.com/vertextoedge/safe-downloader/internal/domain/event"
	"github.com/vertextoedge/safe-downloader/internal/service/transfer"
	"go.uber.org/zap"
)

var errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")) // red

func errorText(text string) string {
	return errorStyle.Render(text)
}

// components are the collaborators shared by get and serve
type components struct {
	dispatcher *event.InMemoryDispatcher
	metrics    *event.MetricsHandler
	fs         *filesystem.Manager
	transport  *httptransport.Client
	store      *sqlite.Store
}

// buildComponents wires the filesystem, transport and event fan-out. The
// history store is opened only when database.path is set.
func buildComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	// Synchronous dispatch keeps events in chunk order
	dispatcher := event.NewInMemoryDispatcher(false)
	dispatcher.OnError(func(e event.DomainEvent, err error) {
		logger.Warn("event handler failed",
			zap.String("event", e.EventName()),
			zap.Error(err))
	})
	metrics := event.NewMetricsHandler()
	dispatcher.Subscribe(event.NewLoggingHandler(logger))
	dispatcher.Subscribe(metrics)

	c := &components{
		dispatcher: dispatcher,
		metrics:    metrics,
		fs: filesystem.NewManagerWithConfig(filesystem.Config{
			StagingSuffix: cfg.Download.StagingSuffix,
			BufferSize:    cfg.Download.GetBufferSize(),
		}, logger, dispatcher),
		transport: httptransport.NewClientWithConfig(&httptransport.Config{
			UserAgent:             cfg.Download.UserAgent,
			ResponseHeaderTimeout: cfg.Download.GetResponseHeaderTimeout(),
			BufferSizeKB:          cfg.Download.BufferSizeKB,
		}),
	}

	if cfg.Database.Path != "" {
		store, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		c.store = store
		dispatcher.Subscribe(transfer.NewRecorder(store, logger, cfg.History.GetProgressInterval()))
		logger.Debug("transfer history enabled", zap.String("path", cfg.Database.Path))
	}

	return c, nil
}

func (c *components) close() {
	if c.store != nil {
		c.store.Close()
	}
}

func transferConfig(cfg *config.Config) transfer.Config {
	return transfer.Config{
		ChunkSize:         cfg.Download.GetChunkSize(),
		InactivityTimeout: cfg.Download.GetInactivityTimeout(),
		CheckFreeSpace:    cfg.Download.CheckFreeSpace,
	}
}

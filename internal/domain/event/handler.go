package event

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// LoggingHandler logs all events
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case TransferStarted:
		h.logger.Info("transfer started",
			zap.String("transfer_id", e.TransferID),
			zap.String("url", e.URL),
			zap.String("destination", e.DestinationPath),
			zap.String("staging", e.StagingPath),
		)
	case TransferProgressed:
		// Progress is emitted per chunk; keep it out of info logs
		h.logger.Debug("transfer progressed",
			zap.String("transfer_id", e.TransferID),
			zap.Int64("received", e.BytesReceived),
			zap.Int64("total", e.BytesTotal),
		)
	case TransferCompleted:
		h.logger.Info("transfer completed",
			zap.String("transfer_id", e.TransferID),
			zap.String("destination", e.DestinationPath),
			zap.Int64("size", e.Size),
			zap.String("content_type", e.ContentType),
			zap.Duration("duration", e.Duration),
		)
	case TransferCancelled:
		h.logger.Info("transfer cancelled",
			zap.String("transfer_id", e.TransferID),
			zap.Int64("received", e.BytesReceived),
		)
	case TransferFailed:
		h.logger.Warn("transfer failed",
			zap.String("transfer_id", e.TransferID),
			zap.Int64("received", e.BytesReceived),
			zap.String("error", e.Error),
			zap.Bool("commit_failure", e.CommitFailure),
		)
	case StagingFileOrphaned:
		h.logger.Warn("staging file orphaned",
			zap.String("path", e.Path),
			zap.String("reason", e.Reason),
		)
	default:
		h.logger.Debug("domain event",
			zap.String("event", event.EventName()),
			zap.Time("occurred_at", event.OccurredAt()),
		)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *LoggingHandler) HandledEvents() []string {
	return []string{AllEvents}
}

// MetricsHandler collects counters from events
type MetricsHandler struct {
	transfersStarted   atomic.Int64
	transfersCompleted atomic.Int64
	transfersCancelled atomic.Int64
	transfersFailed    atomic.Int64
	commitFailures     atomic.Int64
	orphanedStaging    atomic.Int64
	bytesReceived      atomic.Int64
	bytesCommitted     atomic.Int64
}

// NewMetricsHandler creates a new MetricsHandler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// Handle updates metrics based on the event
func (h *MetricsHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case TransferStarted:
		h.transfersStarted.Add(1)
	case TransferCompleted:
		h.transfersCompleted.Add(1)
		h.bytesCommitted.Add(e.Size)
		h.bytesReceived.Add(e.Size)
	case TransferCancelled:
		h.transfersCancelled.Add(1)
		h.bytesReceived.Add(e.BytesReceived)
	case TransferFailed:
		h.transfersFailed.Add(1)
		h.bytesReceived.Add(e.BytesReceived)
		if e.CommitFailure {
			h.commitFailures.Add(1)
		}
	case StagingFileOrphaned:
		h.orphanedStaging.Add(1)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *MetricsHandler) HandledEvents() []string {
	return []string{
		NameTransferStarted,
		NameTransferCompleted,
		NameTransferCancelled,
		NameTransferFailed,
		NameStagingFileOrphaned,
	}
}

// GetMetrics returns current metrics
func (h *MetricsHandler) GetMetrics() map[string]int64 {
	return map[string]int64{
		"transfers_started":   h.transfersStarted.Load(),
		"transfers_completed": h.transfersCompleted.Load(),
		"transfers_cancelled": h.transfersCancelled.Load(),
		"transfers_failed":    h.transfersFailed.Load(),
		"commit_failures":     h.commitFailures.Load(),
		"orphaned_staging":    h.orphanedStaging.Load(),
		"bytes_received":      h.bytesReceived.Load(),
		"bytes_committed":     h.bytesCommitted.Load(),
	}
}

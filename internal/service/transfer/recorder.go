package transfer

import (
	"sync"
	"time"

	"github.com/vertextoedge/safe-downloader/internal/domain"
	"github.com/vertextoedge/safe-downloader/internal/domain/event"
	"github.com/vertextoedge/safe-downloader/internal/port"
	"github.com/vertextoedge/safe-downloader/internal/util/ratelimiter"
	"go.uber.org/zap"
)

// Recorder journals transfer events into the history repository.
// Persistence errors are logged and never reach the session.
type Recorder struct {
	repo     port.TransferRepository
	logger   *zap.Logger
	progress *ratelimiter.Keyed

	mu      sync.Mutex
	records map[string]*domain.TransferRecord
}

// Ensure Recorder implements event.EventHandler
var _ event.EventHandler = (*Recorder)(nil)

// NewRecorder creates a new Recorder. Progress rows are written at most
// once per progressInterval (default: 2s).
func NewRecorder(repo port.TransferRepository, logger *zap.Logger, progressInterval time.Duration) *Recorder {
	if progressInterval <= 0 {
		progressInterval = 2 * time.Second
	}
	return &Recorder{
		repo:     repo,
		logger:   logger,
		progress: ratelimiter.NewKeyed(progressInterval),
		records:  make(map[string]*domain.TransferRecord),
	}
}

// HandledEvents returns the events this handler handles
func (r *Recorder) HandledEvents() []string {
	return []string{
		event.NameTransferStarted,
		event.NameTransferProgressed,
		event.NameTransferCompleted,
		event.NameTransferCancelled,
		event.NameTransferFailed,
	}
}

// Handle persists the event
func (r *Recorder) Handle(e event.DomainEvent) error {
	switch ev := e.(type) {
	case event.TransferStarted:
		r.started(ev)
	case event.TransferProgressed:
		r.progressed(ev)
	case event.TransferCompleted:
		r.finish(ev.TransferID, func(rec *domain.TransferRecord) {
			rec.MarkCompleted(ev.Size, ev.ContentType)
		})
	case event.TransferCancelled:
		r.finish(ev.TransferID, func(rec *domain.TransferRecord) {
			rec.UpdateProgress(ev.BytesReceived, rec.BytesTotal)
			rec.MarkCancelled()
		})
	case event.TransferFailed:
		r.finish(ev.TransferID, func(rec *domain.TransferRecord) {
			rec.UpdateProgress(ev.BytesReceived, rec.BytesTotal)
			rec.MarkFailed(ev.Error)
		})
	}
	return nil
}

func (r *Recorder) started(ev event.TransferStarted) {
	rec := &domain.TransferRecord{
		ID:              ev.TransferID,
		URL:             ev.URL,
		DestinationPath: ev.DestinationPath,
		StagingPath:     ev.StagingPath,
		State:           domain.StateOpening,
		BytesTotal:      domain.UnknownTotal,
		StartedAt:       ev.OccurredAt(),
	}

	r.mu.Lock()
	r.records[rec.ID] = rec
	r.mu.Unlock()

	if err := r.repo.CreateTransfer(rec); err != nil {
		r.logger.Warn("failed to record transfer",
			zap.String("transfer_id", rec.ID),
			zap.Error(err))
	}
}

func (r *Recorder) progressed(ev event.TransferProgressed) {
	r.mu.Lock()
	rec, ok := r.records[ev.TransferID]
	if ok {
		rec.UpdateProgress(ev.BytesReceived, ev.BytesTotal)
		rec.State = domain.StateActive
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if allowed, _ := r.progress.Allow(ev.TransferID); !allowed {
		return
	}

	if err := r.repo.UpdateProgress(ev.TransferID, domain.StateActive, ev.BytesReceived, ev.BytesTotal); err != nil {
		r.logger.Debug("failed to record progress",
			zap.String("transfer_id", ev.TransferID),
			zap.Error(err))
	}
}

func (r *Recorder) finish(id string, apply func(rec *domain.TransferRecord)) {
	r.mu.Lock()
	rec, ok := r.records[id]
	delete(r.records, id)
	r.mu.Unlock()

	r.progress.Forget(id)

	if !ok {
		// Started before this recorder was subscribed
		loaded, err := r.repo.GetTransfer(id)
		if err != nil {
			r.logger.Warn("terminal event for unknown transfer",
				zap.String("transfer_id", id),
				zap.Error(err))
			return
		}
		rec = loaded
	}

	apply(rec)

	if err := r.repo.FinishTransfer(rec); err != nil {
		r.logger.Warn("failed to record transfer outcome",
			zap.String("transfer_id", id),
			zap.String("state", rec.State.String()),
			zap.Error(err))
	}
}

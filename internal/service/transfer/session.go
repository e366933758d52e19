package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/vertextoedge/safe-downloader/internal/domain"
	"github.com/vertextoedge/safe-downloader/internal/domain/event"
	"github.com/vertextoedge/safe-downloader/internal/port"
	"go.uber.org/zap"
)

// sniffLimit is how many leading bytes are kept for content detection
const sniffLimit = 3072

// errCancelled is the cancel cause of a user cancellation
var errCancelled = errors.New("transfer cancelled")

// Snapshot is a point-in-time view of a session
type Snapshot struct {
	ID              string
	URL             string
	DestinationPath string
	StagingPath     string
	State           domain.State
	Progress        domain.Progress
	ContentType     string
	Error           string
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Session drives one transfer from request to terminal state.
// Only the worker goroutine touches the sink and the response body.
type Session struct {
	id        string
	req       domain.DownloadRequest
	sink      port.Sink
	fs        port.FileSystem
	transport port.Transport
	events    event.EventDispatcher
	listener  Listener
	logger    *zap.Logger
	cfg       Config

	ctx    context.Context
	cancel context.CancelCauseFunc

	received atomic.Int64
	total    atomic.Int64

	mu          sync.Mutex
	state       domain.State
	err         error
	contentType string
	startedAt   time.Time
	finishedAt  time.Time

	// worker-owned
	head          []byte
	headerType    string
	onTerminalize func(*Session)

	done chan struct{}
}

func newSession(
	req domain.DownloadRequest,
	sink port.Sink,
	fs port.FileSystem,
	transport port.Transport,
	events event.EventDispatcher,
	listener Listener,
	logger *zap.Logger,
	cfg Config,
) *Session {
	ctx, cancel := context.WithCancelCause(context.Background())
	id := uuid.NewString()

	s := &Session{
		id:        id,
		req:       req,
		sink:      sink,
		fs:        fs,
		transport: transport,
		events:    events,
		listener:  listener,
		logger:    logger.With(zap.String("transfer_id", id)),
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		state:     domain.StateIdle,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	s.total.Store(domain.UnknownTotal)
	return s
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// State returns the current state
func (s *Session) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress returns the current byte counters
func (s *Session) Progress() domain.Progress {
	return domain.Progress{
		BytesReceived: s.received.Load(),
		BytesTotal:    s.total.Load(),
	}
}

// Done is closed once the session reached a terminal state
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the failure of a Failed session
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Snapshot returns a copy of the session state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:              s.id,
		URL:             s.req.URLString(),
		DestinationPath: s.sink.DestinationPath(),
		StagingPath:     s.sink.StagingPath(),
		State:           s.state,
		Progress:        s.Progress(),
		ContentType:     s.contentType,
		StartedAt:       s.startedAt,
		FinishedAt:      s.finishedAt,
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}

// transition moves the session to next if the state machine allows it
func (s *Session) transition(next domain.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.state.TransitionTo(next); err != nil {
		s.logger.Debug("transition refused", zap.Error(err))
		return err
	}
	s.state = next
	return nil
}

// Cancel requests cancellation. It returns false when the session is past
// the point where a cancel has an effect.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	if !s.state.IsCancellable() {
		s.mu.Unlock()
		return false
	}
	s.state = domain.StateCancelling
	s.mu.Unlock()

	s.logger.Debug("cancel requested")
	s.cancel(errCancelled)
	return true
}

// run is the worker loop; it returns after the terminal callbacks fired
func (s *Session) run() {
	defer close(s.done)

	state, err := s.transfer()
	s.terminate(state, err)
}

// transfer streams the response into the sink and returns the terminal outcome
func (s *Session) transfer() (domain.State, error) {
	ctx, wd := newWatchdog(s.ctx, s.cfg.InactivityTimeout)
	defer wd.Stop()

	resp, err := s.transport.Get(ctx, s.req.URLString())
	if err != nil {
		return s.abort(s.transportError(ctx, "request", err))
	}
	defer resp.Body.Close()

	total := resp.ContentLength
	if total < 0 {
		total = domain.UnknownTotal
	}
	s.total.Store(total)
	s.headerType = resp.ContentType

	if err := s.checkFreeSpace(total); err != nil {
		return s.abort(err)
	}

	if err := s.transition(domain.StateActive); err != nil {
		return s.abort(context.Cause(s.ctx))
	}

	s.logger.Debug("response accepted",
		zap.Int("status", resp.StatusCode),
		zap.Int64("total", total),
		zap.String("content_type", resp.ContentType))

	buf := make([]byte, s.cfg.ChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if err := s.writeChunk(buf[:n], total); err != nil {
				return s.abort(err)
			}
			wd.Kick()
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return s.abort(s.transportError(ctx, "read", readErr))
		}
		// A chunk read before the abort took effect is kept; stop here
		if ctx.Err() != nil {
			return s.abort(s.transportError(ctx, "read", context.Cause(ctx)))
		}
	}

	if received := s.received.Load(); total >= 0 && received < total {
		return s.abort(domain.NewTransportError("read", s.req.URLString(), 0,
			fmt.Errorf("stream ended after %d of %d bytes: %w", received, total, io.ErrUnexpectedEOF)))
	}

	return s.commit()
}

// writeChunk appends p to the sink and reports progress
func (s *Session) writeChunk(p []byte, total int64) error {
	received := s.received.Load()
	if total >= 0 && received+int64(len(p)) > total {
		return domain.NewTransportError("read", s.req.URLString(), 0,
			fmt.Errorf("%w: announced %d bytes", domain.ErrLengthExceeded, total))
	}

	if _, err := s.sink.Write(p); err != nil {
		return fmt.Errorf("write staging file: %w", err)
	}

	if len(s.head) < sniffLimit {
		s.head = append(s.head, p[:min(len(p), sniffLimit-len(s.head))]...)
	}

	received = s.received.Add(int64(len(p)))
	s.listener.OnProgress(received, total)
	s.events.Dispatch(event.NewTransferProgressed(s.id, received, total))
	return nil
}

// commit moves the staging file into place
func (s *Session) commit() (domain.State, error) {
	if err := s.transition(domain.StateCompleting); err != nil {
		// Cancel arrived between the last chunk and end of stream
		return s.abort(context.Cause(s.ctx))
	}

	if err := s.sink.Commit(); err != nil {
		if !domain.IsCommitError(err) {
			err = domain.NewCommitError(s.sink.DestinationPath(), s.sink.StagingPath(), err)
		}
		_ = s.transition(domain.StateFailing)
		s.sink.Discard()
		return domain.StateFailed, err
	}

	s.mu.Lock()
	s.contentType = s.detectContentType()
	s.mu.Unlock()

	return domain.StateCompleted, nil
}

// abort discards the staging file and resolves whether the session ends
// cancelled or failed. A user cancel wins over any error it provoked.
func (s *Session) abort(cause error) (domain.State, error) {
	s.mu.Lock()
	cancelled := s.state == domain.StateCancelling
	if !cancelled {
		s.state = domain.StateFailing
	}
	s.mu.Unlock()

	s.sink.Discard()

	if cancelled {
		return domain.StateCancelled, nil
	}
	if cause == nil {
		cause = errors.New("transfer aborted")
	}
	return domain.StateFailed, cause
}

// transportError attributes a network failure to the transfer URL
func (s *Session) transportError(ctx context.Context, op string, err error) error {
	if errors.Is(context.Cause(ctx), os.ErrDeadlineExceeded) {
		return domain.NewTransportError(op, s.req.URLString(), 0,
			fmt.Errorf("no data received for %s: %w", s.cfg.InactivityTimeout, os.ErrDeadlineExceeded))
	}
	if domain.IsTransportError(err) {
		return err
	}
	return domain.NewTransportError(op, s.req.URLString(), 0, err)
}

// checkFreeSpace fails early when the announced total cannot fit
func (s *Session) checkFreeSpace(total int64) error {
	if !s.cfg.CheckFreeSpace || total <= 0 || s.fs == nil {
		return nil
	}

	usage, err := s.fs.GetDiskUsage(s.req.DestinationDir())
	if err != nil {
		s.logger.Debug("free space check skipped", zap.Error(err))
		return nil
	}
	if usage.Free < uint64(total) {
		return fmt.Errorf("%w: need %s, %s available",
			domain.ErrInsufficientSpace,
			humanize.IBytes(uint64(total)),
			humanize.IBytes(usage.Free))
	}
	return nil
}

// detectContentType sniffs the leading bytes and falls back to the header
func (s *Session) detectContentType() string {
	if len(s.head) == 0 {
		return s.headerType
	}
	mtype := mimetype.Detect(s.head)
	if mtype.Is("application/octet-stream") && s.headerType != "" {
		return s.headerType
	}
	return mtype.String()
}

// terminate records the terminal state, releases the controller slot and
// fires exactly one terminal callback
func (s *Session) terminate(state domain.State, err error) {
	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.err = err
	s.finishedAt = time.Now()
	contentType := s.contentType
	s.mu.Unlock()

	s.cancel(nil)

	if s.onTerminalize != nil {
		s.onTerminalize(s)
	}

	received := s.received.Load()
	switch state {
	case domain.StateCompleted:
		s.listener.OnCompleted()
		s.events.Dispatch(event.NewTransferCompleted(s.id, s.sink.DestinationPath(),
			received, contentType, s.finishedAt.Sub(s.startedAt)))
	case domain.StateCancelled:
		s.listener.OnCancelled()
		s.events.Dispatch(event.NewTransferCancelled(s.id, received))
	default:
		description := "transfer failed"
		if err != nil {
			description = err.Error()
		}
		s.listener.OnFailed(description)
		s.events.Dispatch(event.NewTransferFailed(s.id, received, description, domain.IsCommitError(err)))
	}
}

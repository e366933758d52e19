package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vertextoedge/safe-downloader/internal/domain"
	"github.com/vertextoedge/safe-downloader/internal/domain/event"
	"github.com/vertextoedge/safe-downloader/internal/port"
	"go.uber.org/zap"
)

// Config contains transfer settings
type Config struct {
	// ChunkSize is the read buffer of one network read (default: 32KB)
	ChunkSize int

	// InactivityTimeout fails a transfer that receives no data for this long.
	// 0 disables the watchdog.
	InactivityTimeout time.Duration

	// CheckFreeSpace rejects transfers whose announced size exceeds the free space
	CheckFreeSpace bool
}

// DefaultConfig returns default transfer configuration
func DefaultConfig() Config {
	return Config{
		ChunkSize: 32 * 1024,
	}
}

// Controller owns at most one transfer session at a time
type Controller struct {
	fs        port.FileSystem
	transport port.Transport
	events    event.EventDispatcher
	listener  Listener
	logger    *zap.Logger
	cfg       Config

	mu     sync.Mutex
	active *Session
	last   *Session
}

// NewController creates a new Controller.
// events and listener may be nil.
func NewController(
	fs port.FileSystem,
	transport port.Transport,
	events event.EventDispatcher,
	listener Listener,
	logger *zap.Logger,
	cfg Config,
) *Controller {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if events == nil {
		events = event.NewNullDispatcher()
	}
	if listener == nil {
		listener = NopListener{}
	}

	return &Controller{
		fs:        fs,
		transport: transport,
		events:    events,
		listener:  listener,
		logger:    logger,
		cfg:       cfg,
	}
}

// Start validates the destination, creates the staging file and launches
// the transfer. It returns the session ID.
func (c *Controller) Start(req domain.DownloadRequest) (string, error) {
	if req.IsZero() {
		return "", fmt.Errorf("%w: empty request", domain.ErrInvalidRequest)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return "", domain.ErrAlreadyActive
	}

	if err := c.fs.CheckDestination(req.DestinationDir()); err != nil {
		if !errors.Is(err, domain.ErrInvalidDestination) {
			err = fmt.Errorf("%w: %v", domain.ErrInvalidDestination, err)
		}
		return "", err
	}

	sink, err := c.fs.OpenSink(req.TargetPath())
	if err != nil {
		if !errors.Is(err, domain.ErrOpenStaging) {
			err = fmt.Errorf("%w: %v", domain.ErrOpenStaging, err)
		}
		c.logger.Warn("failed to open staging file",
			zap.String("destination", req.TargetPath()),
			zap.Error(err))
		return "", err
	}

	s := newSession(req, sink, c.fs, c.transport, c.events, c.listener, c.logger, c.cfg)
	s.onTerminalize = c.release
	s.transition(domain.StateOpening)
	c.active = s

	c.events.Dispatch(event.NewTransferStarted(s.id, req.URLString(), sink.DestinationPath(), sink.StagingPath()))

	go s.run()

	return s.id, nil
}

// Cancel asks the active session to stop. Cancelling a session that is
// already completing or finishing is a no-op.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()

	if s == nil {
		return domain.ErrNoActiveSession
	}
	if !s.Cancel() {
		c.logger.Debug("cancel ignored",
			zap.String("transfer_id", s.id),
			zap.String("state", s.State().String()))
	}
	return nil
}

// Active returns a snapshot of the outstanding session, if any
func (c *Controller) Active() (Snapshot, bool) {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()

	if s == nil {
		return Snapshot{}, false
	}
	return s.Snapshot(), true
}

// Last returns a snapshot of the most recently finished session
func (c *Controller) Last() (Snapshot, bool) {
	c.mu.Lock()
	s := c.last
	c.mu.Unlock()

	if s == nil {
		return Snapshot{}, false
	}
	return s.Snapshot(), true
}

// IsActive reports whether id belongs to the outstanding session
func (c *Controller) IsActive(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil && c.active.id == id
}

// Wait blocks until the most recent session has finished and its terminal
// callback returned. It returns immediately when nothing was started.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	s := c.active
	if s == nil {
		s = c.last
	}
	c.mu.Unlock()

	if s == nil {
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release frees the active slot before the terminal callback runs,
// so a listener may start the next transfer
func (c *Controller) release(s *Session) {
	c.mu.Lock()
	if c.active == s {
		c.active = nil
	}
	c.last = s
	c.mu.Unlock()
}

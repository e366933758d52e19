package filesystem

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/vertextoedge/safe-downloader/internal/domain"
	"github.com/vertextoedge/safe-downloader/internal/domain/event"
	"github.com/vertextoedge/safe-downloader/internal/port"
	"go.uber.org/zap"
)

// ErrSinkClosed is returned when writing to a committed or discarded sink
var ErrSinkClosed = errors.New("sink is closed")

// AtomicFileSink buffers a transfer into a staging file and renames it onto
// the destination on Commit. Until then the destination is never opened.
type AtomicFileSink struct {
	mu          sync.Mutex
	file        *os.File
	w           *bufio.Writer
	stagingPath string
	destPath    string
	written     int64
	closed      bool
	committed   bool
	discarded   bool
	logger      *zap.Logger
	events      event.EventDispatcher
}

// Ensure AtomicFileSink implements port.Sink
var _ port.Sink = (*AtomicFileSink)(nil)

func newAtomicFileSink(f *os.File, destPath string, bufferSize int, logger *zap.Logger, events event.EventDispatcher) *AtomicFileSink {
	return &AtomicFileSink{
		file:        f,
		w:           bufio.NewWriterSize(f, bufferSize),
		stagingPath: f.Name(),
		destPath:    destPath,
		logger:      logger,
		events:      events,
	}
}

// Write appends p to the staging file
func (s *AtomicFileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSinkClosed
	}
	n, err := s.w.Write(p)
	s.written += int64(n)
	if err != nil {
		return n, fmt.Errorf("failed to write staging file: %w", err)
	}
	return n, nil
}

// Commit flushes the staging file and renames it onto the destination.
// On failure the destination is untouched and the staging file is left for Discard.
func (s *AtomicFileSink) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	s.closed = true

	if err := s.w.Flush(); err != nil {
		s.file.Close()
		return domain.NewCommitError(s.destPath, s.stagingPath, fmt.Errorf("flush: %w", err))
	}
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return domain.NewCommitError(s.destPath, s.stagingPath, fmt.Errorf("sync: %w", err))
	}
	if err := s.file.Close(); err != nil {
		return domain.NewCommitError(s.destPath, s.stagingPath, fmt.Errorf("close: %w", err))
	}

	// CreateTemp uses 0600; keep the mode of a file being replaced
	mode := os.FileMode(0o644)
	if info, err := os.Stat(s.destPath); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.Chmod(s.stagingPath, mode); err != nil {
		s.logger.Debug("failed to set staging file mode",
			zap.String("staging", s.stagingPath),
			zap.Error(err))
	}

	if err := os.Rename(s.stagingPath, s.destPath); err != nil {
		return domain.NewCommitError(s.destPath, s.stagingPath, fmt.Errorf("rename: %w", err))
	}
	s.committed = true

	if err := syncDir(filepath.Dir(s.destPath)); err != nil {
		s.logger.Debug("failed to sync destination directory",
			zap.String("dir", filepath.Dir(s.destPath)),
			zap.Error(err))
	}
	return nil
}

// Discard closes and deletes the staging file. It is idempotent, never fails
// and does nothing after a successful Commit.
func (s *AtomicFileSink) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.committed || s.discarded {
		return
	}
	s.discarded = true

	if !s.closed {
		s.closed = true
		s.file.Close()
	}

	if err := os.Remove(s.stagingPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to delete staging file, leaving it orphaned",
			zap.String("staging", s.stagingPath),
			zap.Error(err))
		s.events.Dispatch(event.NewStagingFileOrphaned(s.stagingPath, err.Error()))
	}
}

// StagingPath returns the path of the staging file
func (s *AtomicFileSink) StagingPath() string {
	return s.stagingPath
}

// DestinationPath returns the final path of the file
func (s *AtomicFileSink) DestinationPath() string {
	return s.destPath
}

// Written returns the number of bytes accepted so far
func (s *AtomicFileSink) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// syncDir persists the rename on filesystems that need a directory fsync
func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vertextoedge/safe-downloader/internal/domain"
	"github.com/vertextoedge/safe-downloader/internal/domain/event"
	"github.com/vertextoedge/safe-downloader/internal/port"
	"go.uber.org/zap"
)

const (
	// DefaultStagingSuffix marks staging files next to their destination
	DefaultStagingSuffix = ".downloading"

	// DefaultBufferSize is the write buffer of a staging file
	DefaultBufferSize = 256 * 1024
)

// Config contains filesystem manager settings
type Config struct {
	StagingSuffix string
	BufferSize    int
}

// Manager handles local filesystem operations
type Manager struct {
	stagingSuffix string
	bufferSize    int
	logger        *zap.Logger
	events        event.EventDispatcher
}

// Ensure Manager implements port.FileSystem
var _ port.FileSystem = (*Manager)(nil)

// NewManager creates a new filesystem manager with default settings
func NewManager(logger *zap.Logger) *Manager {
	return NewManagerWithConfig(Config{}, logger, nil)
}

// NewManagerWithConfig creates a new filesystem manager.
// events may be nil; orphaned staging files are then only logged.
func NewManagerWithConfig(cfg Config, logger *zap.Logger, events event.EventDispatcher) *Manager {
	if cfg.StagingSuffix == "" {
		cfg.StagingSuffix = DefaultStagingSuffix
	}
	if !strings.HasPrefix(cfg.StagingSuffix, ".") {
		cfg.StagingSuffix = "." + cfg.StagingSuffix
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if events == nil {
		events = event.NewNullDispatcher()
	}

	return &Manager{
		stagingSuffix: cfg.StagingSuffix,
		bufferSize:    cfg.BufferSize,
		logger:        logger,
		events:        events,
	}
}

// StagingSuffix returns the suffix carried by staging files
func (m *Manager) StagingSuffix() string {
	return m.stagingSuffix
}

// CheckDestination verifies that dir exists, is a directory and is writable
func (m *Manager) CheckDestination(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s does not exist", domain.ErrInvalidDestination, dir)
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidDestination, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidDestination, dir)
	}

	// Permission bits do not tell the whole story (ACLs, read-only mounts)
	probe, err := os.CreateTemp(dir, ".write-probe-*")
	if err != nil {
		return fmt.Errorf("%w: %s is not writable: %v", domain.ErrInvalidDestination, dir, err)
	}
	probe.Close()
	if err := os.Remove(probe.Name()); err != nil {
		m.logger.Warn("failed to remove write probe",
			zap.String("path", probe.Name()),
			zap.Error(err))
	}
	return nil
}

// OpenSink creates a staging file in the directory of destinationPath.
// The staging name is unique, so an existing user file is never reused.
func (m *Manager) OpenSink(destinationPath string) (port.Sink, error) {
	if info, err := os.Stat(destinationPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", domain.ErrOpenStaging, destinationPath)
	}

	dir := filepath.Dir(destinationPath)
	base := filepath.Base(destinationPath)

	f, err := os.CreateTemp(dir, "."+base+".*"+m.stagingSuffix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOpenStaging, err)
	}

	m.logger.Debug("staging file created",
		zap.String("staging", f.Name()),
		zap.String("destination", destinationPath))

	return newAtomicFileSink(f, destinationPath, m.bufferSize, m.logger, m.events), nil
}

// FileExists checks if a file exists
func (m *Manager) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// StagingModTime returns the modification time of a staging file
func (m *Manager) StagingModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// IsStagingFile reports whether path looks like a staging file of this manager
func (m *Manager) IsStagingFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && strings.HasSuffix(base, m.stagingSuffix)
}

// DeleteStagingFile removes a staging file
func (m *Manager) DeleteStagingFile(path string) error {
	if !m.IsStagingFile(path) {
		return fmt.Errorf("refusing to delete %s: not a staging file", path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete staging file: %w", err)
	}
	return nil
}

// CleanOldStagingFiles removes staging files in dir older than the specified duration.
// Staging files always sit next to their destination, so the scan is not recursive.
func (m *Manager) CleanOldStagingFiles(dir string, olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	count := 0
	threshold := time.Now().Add(-olderThan)

	for _, entry := range entries {
		if entry.IsDir() || !m.IsStagingFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(threshold) {
			path := filepath.Join(dir, entry.Name())
			if removeErr := os.Remove(path); removeErr == nil {
				count++
			} else if !os.IsNotExist(removeErr) {
				m.logger.Warn("failed to remove old staging file",
					zap.String("path", path),
					zap.Error(removeErr))
			}
		}
	}
	return count, nil
}

package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/vertextoedge/safe-downloader/internal/domain"
	"github.com/vertextoedge/safe-downloader/internal/port"
	"go.uber.org/zap"
)

// InterruptedReason is recorded on transfers a previous process left behind
const InterruptedReason = "interrupted: process exited before the transfer finished"

// Config contains maintenance service configuration
type Config struct {
	// StaleCheckInterval is how often to look for interrupted transfers
	StaleCheckInterval time.Duration

	// StaleAfter is how long a record of this process must be silent
	// before it counts as interrupted
	StaleAfter time.Duration

	// CleanupInterval is how often to run cleanup tasks
	CleanupInterval time.Duration

	// StagingMaxAge is the maximum age of staging files before cleanup
	StagingMaxAge time.Duration

	// HistoryMaxAge is the maximum age of finished history records
	HistoryMaxAge time.Duration

	// ScanDirs are the directories swept for leftover staging files
	ScanDirs []string
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		StaleCheckInterval: time.Minute,
		StaleAfter:         5 * time.Minute,
		CleanupInterval:    time.Hour,
		StagingMaxAge:      24 * time.Hour,
		HistoryMaxAge:      30 * 24 * time.Hour,
	}
}

// ActiveChecker tells whether a transfer is owned by the live controller
type ActiveChecker interface {
	IsActive(id string) bool
}

// Service handles periodic maintenance tasks
type Service struct {
	config    *Config
	transfers port.TransferRepository
	fs        port.FileSystem
	active    ActiveChecker
	logger    *zap.Logger
	bootTime  time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service. active may be nil when no
// controller runs in this process.
func New(cfg *Config, transfers port.TransferRepository, fs port.FileSystem, active ActiveChecker, logger *zap.Logger) *Service {
	defaults := DefaultConfig()
	if cfg == nil {
		cfg = defaults
	}
	if cfg.StaleCheckInterval == 0 {
		cfg.StaleCheckInterval = defaults.StaleCheckInterval
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = defaults.StaleAfter
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = defaults.CleanupInterval
	}
	if cfg.StagingMaxAge == 0 {
		cfg.StagingMaxAge = defaults.StagingMaxAge
	}
	if cfg.HistoryMaxAge == 0 {
		cfg.HistoryMaxAge = defaults.HistoryMaxAge
	}

	return &Service{
		config:    cfg,
		transfers: transfers,
		fs:        fs,
		active:    active,
		logger:    logger,
		bootTime:  time.Now(),
	}
}

// Start runs the maintenance loop until ctx is cancelled or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("stale_check_interval", s.config.StaleCheckInterval),
		zap.Duration("cleanup_interval", s.config.CleanupInterval),
		zap.Strings("scan_dirs", s.config.ScanDirs))

	// Leftovers of a crashed process are handled before the first tick
	s.recoverInterrupted()

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

// maintenanceLoop handles periodic maintenance tasks
func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	staleTicker := time.NewTicker(s.config.StaleCheckInterval)
	defer staleTicker.Stop()

	cleanupTicker := time.NewTicker(s.config.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-staleTicker.C:
			s.recoverInterrupted()
		case <-cleanupTicker.C:
			s.cleanupStagingFiles()
			s.pruneHistory()
		}
	}
}

// RecoverInterrupted marks outstanding records nobody owns as failed and
// removes their staging files. It returns the number of recovered records.
func (s *Service) RecoverInterrupted() (int, error) {
	outstanding, err := s.transfers.ListOutstanding()
	if err != nil {
		return 0, fmt.Errorf("failed to list outstanding transfers: %w", err)
	}

	now := time.Now()
	orphans := lo.Filter(outstanding, func(rec *domain.TransferRecord, _ int) bool {
		if s.active != nil && s.active.IsActive(rec.ID) {
			return false
		}
		if !rec.StartedAt.Before(s.bootTime) && now.Sub(rec.UpdatedAt) <= s.config.StaleAfter {
			return false
		}
		// Another process sharing the database may still be writing it
		return !s.stagingRecentlyWritten(rec, now)
	})

	recovered := 0
	for _, rec := range orphans {
		if rec.StagingPath != "" {
			if err := s.fs.DeleteStagingFile(rec.StagingPath); err != nil {
				s.logger.Warn("failed to delete staging file of interrupted transfer",
					zap.String("transfer_id", rec.ID),
					zap.String("staging", rec.StagingPath),
					zap.Error(err))
			}
		}

		rec.MarkFailed(InterruptedReason)
		if err := s.transfers.FinishTransfer(rec); err != nil {
			s.logger.Error("failed to mark transfer interrupted",
				zap.String("transfer_id", rec.ID),
				zap.Error(err))
			continue
		}
		recovered++
	}

	return recovered, nil
}

func (s *Service) stagingRecentlyWritten(rec *domain.TransferRecord, now time.Time) bool {
	if rec.StagingPath == "" {
		return false
	}
	modTime, err := s.fs.StagingModTime(rec.StagingPath)
	if err != nil || now.Sub(modTime) > s.config.StaleAfter {
		return false
	}
	s.logger.Debug("skipping outstanding transfer with a live staging file",
		zap.String("transfer_id", rec.ID),
		zap.String("staging", rec.StagingPath),
		zap.Time("modified", modTime))
	return true
}

func (s *Service) recoverInterrupted() {
	recovered, err := s.RecoverInterrupted()
	if err != nil {
		s.logger.Error("failed to recover interrupted transfers", zap.Error(err))
	} else if recovered > 0 {
		s.logger.Info("recovered interrupted transfers", zap.Int("count", recovered))
	}
}

// cleanupStagingFiles removes old staging files from the scanned directories
func (s *Service) cleanupStagingFiles() {
	for _, dir := range lo.Uniq(s.config.ScanDirs) {
		count, err := s.fs.CleanOldStagingFiles(dir, s.config.StagingMaxAge)
		if err != nil {
			s.logger.Error("failed to cleanup old staging files",
				zap.String("dir", dir),
				zap.Error(err))
		} else if count > 0 {
			s.logger.Info("cleaned up old staging files",
				zap.String("dir", dir),
				zap.Int("count", count))
		}
	}
}

// pruneHistory removes finished history records past their retention
func (s *Service) pruneHistory() {
	cleared, err := s.transfers.CleanupOldTransfers(s.config.HistoryMaxAge)
	if err != nil {
		s.logger.Error("failed to prune transfer history", zap.Error(err))
	} else if cleared > 0 {
		s.logger.Info("pruned transfer history", zap.Int("count", cleared))
	}
}

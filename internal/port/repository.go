package port

import (
	"time"

	"github.com/vertextoedge/safe-downloader/internal/domain"
)

// TransferRepository persists the transfer history
type TransferRepository interface {
	// CreateTransfer inserts a new record
	// Returns domain.ErrAlreadyExists if the ID is taken
	CreateTransfer(record *domain.TransferRecord) error

	// GetTransfer retrieves a record by ID
	// Returns domain.ErrNotFound if it does not exist
	GetTransfer(id string) (*domain.TransferRecord, error)

	// UpdateProgress updates the byte counters and moves the record to the given state
	UpdateProgress(id string, state domain.State, received, total int64) error

	// FinishTransfer stores the terminal state of a record
	FinishTransfer(record *domain.TransferRecord) error

	// ListTransfers returns the most recent records, newest first
	ListTransfers(limit int) ([]*domain.TransferRecord, error)

	// ListOutstanding returns records that never reached a terminal state
	ListOutstanding() ([]*domain.TransferRecord, error)

	// CleanupOldTransfers removes finished records older than the specified duration
	CleanupOldTransfers(olderThan time.Duration) (int, error)

	// GetHistoryStats returns aggregate counters
	GetHistoryStats() (*domain.HistoryStats, error)

	// Ping checks database connectivity
	Ping() error

	// Close closes the database connection
	Close() error
}

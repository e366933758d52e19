package event

import (
	"time"
)

// Event names
const (
	NameTransferStarted     = "transfer.started"
	NameTransferProgressed  = "transfer.progressed"
	NameTransferCompleted   = "transfer.completed"
	NameTransferCancelled   = "transfer.cancelled"
	NameTransferFailed      = "transfer.failed"
	NameStagingFileOrphaned = "staging.orphaned"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp time.Time
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// TransferStarted is raised once the staging file exists and the request is issued
type TransferStarted struct {
	BaseEvent
	TransferID      string
	URL             string
	DestinationPath string
	StagingPath     string
}

// EventName returns the event name
func (e TransferStarted) EventName() string {
	return NameTransferStarted
}

// NewTransferStarted creates a new TransferStarted event
func NewTransferStarted(id, url, destinationPath, stagingPath string) TransferStarted {
	return TransferStarted{
		BaseEvent:       BaseEvent{Timestamp: time.Now()},
		TransferID:      id,
		URL:             url,
		DestinationPath: destinationPath,
		StagingPath:     stagingPath,
	}
}

// TransferProgressed is raised after every chunk written to the staging file
type TransferProgressed struct {
	BaseEvent
	TransferID    string
	BytesReceived int64
	BytesTotal    int64
}

// EventName returns the event name
func (e TransferProgressed) EventName() string {
	return NameTransferProgressed
}

// NewTransferProgressed creates a new TransferProgressed event
func NewTransferProgressed(id string, received, total int64) TransferProgressed {
	return TransferProgressed{
		BaseEvent:     BaseEvent{Timestamp: time.Now()},
		TransferID:    id,
		BytesReceived: received,
		BytesTotal:    total,
	}
}

// TransferCompleted is raised after the staging file was committed
type TransferCompleted struct {
	BaseEvent
	TransferID      string
	DestinationPath string
	Size            int64
	ContentType     string
	Duration        time.Duration
}

// EventName returns the event name
func (e TransferCompleted) EventName() string {
	return NameTransferCompleted
}

// NewTransferCompleted creates a new TransferCompleted event
func NewTransferCompleted(id, destinationPath string, size int64, contentType string, duration time.Duration) TransferCompleted {
	return TransferCompleted{
		BaseEvent:       BaseEvent{Timestamp: time.Now()},
		TransferID:      id,
		DestinationPath: destinationPath,
		Size:            size,
		ContentType:     contentType,
		Duration:        duration,
	}
}

// TransferCancelled is raised after a user cancellation discarded the staging file
type TransferCancelled struct {
	BaseEvent
	TransferID    string
	BytesReceived int64
}

// EventName returns the event name
func (e TransferCancelled) EventName() string {
	return NameTransferCancelled
}

// NewTransferCancelled creates a new TransferCancelled event
func NewTransferCancelled(id string, received int64) TransferCancelled {
	return TransferCancelled{
		BaseEvent:     BaseEvent{Timestamp: time.Now()},
		TransferID:    id,
		BytesReceived: received,
	}
}

// TransferFailed is raised when a transport or commit error ended the transfer
type TransferFailed struct {
	BaseEvent
	TransferID    string
	BytesReceived int64
	Error         string
	CommitFailure bool
}

// EventName returns the event name
func (e TransferFailed) EventName() string {
	return NameTransferFailed
}

// NewTransferFailed creates a new TransferFailed event
func NewTransferFailed(id string, received int64, err string, commitFailure bool) TransferFailed {
	return TransferFailed{
		BaseEvent:     BaseEvent{Timestamp: time.Now()},
		TransferID:    id,
		BytesReceived: received,
		Error:         err,
		CommitFailure: commitFailure,
	}
}

// StagingFileOrphaned is raised when a staging file could not be deleted
type StagingFileOrphaned struct {
	BaseEvent
	Path   string
	Reason string
}

// EventName returns the event name
func (e StagingFileOrphaned) EventName() string {
	return NameStagingFileOrphaned
}

// NewStagingFileOrphaned creates a new StagingFileOrphaned event
func NewStagingFileOrphaned(path, reason string) StagingFileOrphaned {
	return StagingFileOrphaned{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		Path:      path,
		Reason:    reason,
	}
}

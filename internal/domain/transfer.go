package domain

import "time"

// TransferRecord is the persisted history entry of one transfer session
type TransferRecord struct {
	ID              string
	URL             string
	DestinationPath string
	StagingPath     string
	State           State

	// Progress
	BytesReceived int64
	BytesTotal    int64

	// Outcome
	ContentType string
	LastError   string

	// Timestamps
	StartedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt *time.Time
}

// Progress returns the byte counters of the record
func (r *TransferRecord) Progress() Progress {
	return Progress{BytesReceived: r.BytesReceived, BytesTotal: r.BytesTotal}
}

// UpdateProgress records the latest byte counters
func (r *TransferRecord) UpdateProgress(received, total int64) {
	if received > r.BytesReceived {
		r.BytesReceived = received
	}
	r.BytesTotal = total
	r.UpdatedAt = time.Now()
}

// MarkCompleted records a committed transfer
func (r *TransferRecord) MarkCompleted(size int64, contentType string) {
	r.finish(StateCompleted)
	r.BytesReceived = size
	r.ContentType = contentType
	r.LastError = ""
}

// MarkCancelled records a user cancellation
func (r *TransferRecord) MarkCancelled() {
	r.finish(StateCancelled)
}

// MarkFailed records a failure with its description
func (r *TransferRecord) MarkFailed(reason string) {
	r.finish(StateFailed)
	r.LastError = reason
}

func (r *TransferRecord) finish(state State) {
	now := time.Now()
	r.State = state
	r.UpdatedAt = now
	r.FinishedAt = &now
}

// HistoryStats summarizes the transfer history
type HistoryStats struct {
	Total          int   `json:"total"`
	Completed      int   `json:"completed"`
	Cancelled      int   `json:"cancelled"`
	Failed         int   `json:"failed"`
	Outstanding    int   `json:"outstanding"`
	BytesCommitted int64 `json:"bytes_committed"`
}

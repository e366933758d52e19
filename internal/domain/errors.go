package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Request validation errors, returned synchronously by Start
	ErrInvalidRequest     = errors.New("invalid download request")
	ErrInvalidDestination = errors.New("invalid destination directory")
	ErrAlreadyActive      = errors.New("a transfer is already active")
	ErrOpenStaging        = errors.New("cannot open staging file")

	// Controller errors
	ErrNoActiveSession        = errors.New("no active transfer")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// Post-start failures
	ErrInsufficientSpace = errors.New("insufficient space")
	ErrLengthExceeded    = errors.New("received more bytes than announced")
)

// TransportError represents a failure reported by the network collaborator
// after the request was issued: connection errors, non-success statuses and
// mid-stream disconnects.
type TransportError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

// Error returns the error message
func (e *TransportError) Error() string {
	msg := "transport error"
	if e.Op != "" {
		msg = e.Op
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: unexpected status %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new transport error
func NewTransportError(op, url string, statusCode int, err error) *TransportError {
	return &TransportError{Op: op, URL: url, StatusCode: statusCode, Err: err}
}

// IsTransportError returns true if err is or wraps a TransportError
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// CommitError represents a failure to move the staging file into place.
// All bytes were received but the destination was left untouched.
type CommitError struct {
	DestinationPath string
	StagingPath     string
	Err             error
}

// Error returns the error message
func (e *CommitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("commit %s: %s", e.DestinationPath, e.Err.Error())
	}
	return fmt.Sprintf("commit %s failed", e.DestinationPath)
}

// Unwrap returns the underlying error
func (e *CommitError) Unwrap() error {
	return e.Err
}

// NewCommitError creates a new commit error
func NewCommitError(destinationPath, stagingPath string, err error) *CommitError {
	return &CommitError{DestinationPath: destinationPath, StagingPath: stagingPath, Err: err}
}

// IsCommitError returns true if err is or wraps a CommitError
func IsCommitError(err error) bool {
	var ce *CommitError
	return errors.As(err, &ce)
}

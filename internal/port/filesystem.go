package port

import (
	"io"
	"time"
)

// DiskUsage represents disk usage statistics
type DiskUsage struct {
	Total   uint64  // Total disk space in bytes
	Used    uint64  // Used disk space in bytes
	Free    uint64  // Free disk space in bytes
	UsedPct float64 // Used percentage (0-100)
}

// Sink receives the streamed bytes of one transfer.
// Bytes land in a staging file; the destination is only touched by Commit.
type Sink interface {
	io.Writer

	// Commit flushes the staging file and atomically renames it onto the destination
	Commit() error

	// Discard removes the staging file. It never fails; errors are logged.
	Discard()

	// StagingPath returns the path of the staging file
	StagingPath() string

	// DestinationPath returns the final path of the file
	DestinationPath() string

	// Written returns the number of bytes accepted so far
	Written() int64
}

// FileSystem defines the interface for filesystem operations
type FileSystem interface {
	// CheckDestination verifies that dir exists, is a directory and is writable
	CheckDestination(dir string) error

	// OpenSink creates a staging file next to destinationPath
	OpenSink(destinationPath string) (Sink, error)

	// FileExists checks if a file exists
	FileExists(path string) bool

	// DeleteStagingFile removes a staging file; a missing file is not an error
	DeleteStagingFile(path string) error

	// StagingModTime returns when a staging file was last written
	StagingModTime(path string) (time.Time, error)

	// IsStagingFile reports whether path carries the staging suffix
	IsStagingFile(path string) bool

	// CleanOldStagingFiles removes staging files in dir older than the specified duration
	// Returns the number of files deleted
	CleanOldStagingFiles(dir string, olderThan time.Duration) (int, error)

	// GetDiskUsage returns disk usage statistics for the volume holding dir
	GetDiskUsage(dir string) (*DiskUsage, error)
}

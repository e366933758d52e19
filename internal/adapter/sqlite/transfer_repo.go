package sqlite

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/vertextoedge/safe-downloader/internal/domain"
)

const transferColumns = `
	id, url, destination_path, staging_path, state, bytes_received, bytes_total,
	content_type, last_error, started_at, updated_at, finished_at`

var outstandingStates = []string{
	domain.StateOpening.String(),
	domain.StateActive.String(),
	domain.StateCompleting.String(),
	domain.StateCancelling.String(),
	domain.StateFailing.String(),
}

// CreateTransfer inserts a new transfer record
func (s *Store) CreateTransfer(record *domain.TransferRecord) error {
	now := time.Now().UTC()
	if record.StartedAt.IsZero() {
		record.StartedAt = now
	}
	record.UpdatedAt = now

	query := `
		INSERT INTO transfers (
			id, url, destination_path, staging_path, state,
			bytes_received, bytes_total, started_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		record.ID, record.URL, record.DestinationPath, nullString(record.StagingPath),
		record.State.String(), record.BytesReceived, record.BytesTotal,
		record.StartedAt.UTC(), record.UpdatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetTransfer retrieves a transfer record by ID
func (s *Store) GetTransfer(id string) (*domain.TransferRecord, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = ?`

	record, err := scanTransfer(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return record, err
}

// UpdateProgress updates the byte counters and state of a record
func (s *Store) UpdateProgress(id string, state domain.State, received, total int64) error {
	query := `
		UPDATE transfers
		SET state = ?, bytes_received = MAX(bytes_received, ?), bytes_total = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(query, state.String(), received, total, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// FinishTransfer stores the terminal state of a record
func (s *Store) FinishTransfer(record *domain.TransferRecord) error {
	query := `
		UPDATE transfers
		SET state = ?, bytes_received = ?, bytes_total = ?, content_type = ?,
			last_error = ?, updated_at = ?, finished_at = ?
		WHERE id = ?
	`

	now := time.Now().UTC()
	var finishedAt sql.NullTime
	if record.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: record.FinishedAt.UTC(), Valid: true}
	} else {
		finishedAt = sql.NullTime{Time: now, Valid: true}
	}

	result, err := s.db.Exec(query,
		record.State.String(), record.BytesReceived, record.BytesTotal,
		nullString(record.ContentType), nullString(record.LastError),
		now, finishedAt, record.ID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// ListTransfers returns the most recent records, newest first
func (s *Store) ListTransfers(limit int) ([]*domain.TransferRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + transferColumns + `
		FROM transfers
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransfers(rows)
}

// ListOutstanding returns records that never reached a terminal state
func (s *Store) ListOutstanding() ([]*domain.TransferRecord, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(outstandingStates)), ",")
	query := `SELECT ` + transferColumns + `
		FROM transfers
		WHERE state IN (` + placeholders + `)
		ORDER BY started_at ASC`

	args := make([]any, len(outstandingStates))
	for i, st := range outstandingStates {
		args[i] = st
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransfers(rows)
}

// CleanupOldTransfers removes finished records older than the specified duration
func (s *Store) CleanupOldTransfers(olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	result, err := s.db.Exec(
		"DELETE FROM transfers WHERE finished_at IS NOT NULL AND finished_at < ?",
		cutoff)
	if err != nil {
		return 0, err
	}

	count, err := result.RowsAffected()
	return int(count), err
}

// GetHistoryStats returns aggregate counters of the transfer history
func (s *Store) GetHistoryStats() (*domain.HistoryStats, error) {
	stats := &domain.HistoryStats{}

	rows, err := s.db.Query(`
		SELECT state, COUNT(*), COALESCE(SUM(bytes_received), 0)
		FROM transfers
		GROUP BY state
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var count int
		var bytes int64

		if err := rows.Scan(&name, &count, &bytes); err != nil {
			return nil, err
		}

		stats.Total += count
		state, _ := domain.ParseState(name)
		switch {
		case state == domain.StateCompleted:
			stats.Completed = count
			stats.BytesCommitted = bytes
		case state == domain.StateCancelled:
			stats.Cancelled = count
		case state == domain.StateFailed:
			stats.Failed = count
		case state.IsOutstanding():
			stats.Outstanding += count
		}
	}

	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanTransfer scans a single transfer row
func scanTransfer(row rowScanner) (*domain.TransferRecord, error) {
	record := &domain.TransferRecord{}
	var stagingPath, contentType, lastError sql.NullString
	var finishedAt sql.NullTime
	var state string

	err := row.Scan(
		&record.ID, &record.URL, &record.DestinationPath, &stagingPath, &state,
		&record.BytesReceived, &record.BytesTotal, &contentType, &lastError,
		&record.StartedAt, &record.UpdatedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	record.State, _ = domain.ParseState(state)
	if stagingPath.Valid {
		record.StagingPath = stagingPath.String
	}
	if contentType.Valid {
		record.ContentType = contentType.String
	}
	if lastError.Valid {
		record.LastError = lastError.String
	}
	if finishedAt.Valid {
		record.FinishedAt = &finishedAt.Time
	}

	return record, nil
}

// scanTransfers scans multiple transfer rows
func scanTransfers(rows *sql.Rows) ([]*domain.TransferRecord, error) {
	var records []*domain.TransferRecord

	for rows.Next() {
		record, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isUniqueConstraintError checks if the error is a unique constraint violation
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "duplicate key")
}

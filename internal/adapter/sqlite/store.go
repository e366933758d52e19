package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/vertextoedge/safe-downloader/internal/port"
)

// Store implements port.TransferRepository using SQLite
type Store struct {
	db *sql.DB
}

// Ensure Store implements port.TransferRepository
var _ port.TransferRepository = (*Store)(nil)

// Open opens a connection to the SQLite database
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Open database with WAL mode and busy timeout
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks database connectivity
func (s *Store) Ping() error {
	return s.db.Ping()
}

// migrate creates or updates the database schema
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS transfers (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			destination_path TEXT NOT NULL,
			staging_path TEXT,
			state TEXT NOT NULL,
			bytes_received INTEGER NOT NULL DEFAULT 0,
			bytes_total INTEGER NOT NULL DEFAULT -1,
			content_type TEXT,
			last_error TEXT,
			started_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_transfers_state ON transfers(state)`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_started_at ON transfers(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_finished_at ON transfers(finished_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}

	return nil
}

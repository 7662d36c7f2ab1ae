// Package store is reaper's embedded relational persistence layer: users,
// scythes, history, and queue tables, plus a single-row current_job table
// that durably records whichever job the Worker has popped for active
// processing, so Recovery can find it after a crash without the queue
// table's replace-all semantics wiping it out. One SQLite file beside the
// binary.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	apperr "reaper/internal/errors"
)

// Store wraps the SQLite connection backing the daemon.
type Store struct {
	conn *sql.DB
	path string
}

// New opens (creating if absent) the store database under dataDir and
// applies the schema.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, apperr.Wrap("store.New", err)
	}

	dbPath := filepath.Join(dataDir, "reaper.db")

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, apperr.Wrap("store.New", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, apperr.Wrap("store.New", err)
		}
	}

	s := &Store{conn: conn, path: dbPath}
	if err := s.CreateSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// CreateSchema is idempotent and callable at startup.
func (s *Store) CreateSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		password_hash TEXT,
		permissions TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS scythes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		job_data TEXT NOT NULL,
		schedule TEXT
	);

	CREATE TABLE IF NOT EXISTS history (
		log_id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT,
		title TEXT,
		folder TEXT,
		filenames TEXT,
		job_data TEXT,
		status TEXT,
		log_path TEXT,
		error_summary TEXT,
		timestamp REAL
	);
	CREATE INDEX IF NOT EXISTS idx_history_timestamp ON history(timestamp DESC);

	CREATE TABLE IF NOT EXISTS queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_data TEXT NOT NULL,
		queue_order INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS current_job (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		job_data TEXT NOT NULL
	);
	`
	if _, err := s.conn.Exec(schema); err != nil {
		return apperr.WrapWithMessage("store.CreateSchema", apperr.ErrStoreUnavailable, fmt.Sprintf("migration failed: %v", err))
	}
	return nil
}

// Conn exposes the underlying *sql.DB for components that need raw access.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

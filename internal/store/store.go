// Package store implements the Trajectory Store (spec.md §3 ownership, §6):
// trajectory persistence, bandit-prior persistence, historical similarity
// search, and aggregate metrics rollups. Grounded on
// internal/storage/sqlite/sqlite.go's connection pattern
// (sql.Open with WAL + foreign keys, schema-on-open, os.MkdirAll for the
// parent directory) adapted from mattn/go-sqlite3 (cgo) to
// github.com/ncruces/go-sqlite3 (pure Go), per SPEC_FULL.md's ambient
// persistence stack.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the trajectory database. Safe for concurrent use: callers
// share one *Store per process, same as the teacher's SQLiteStorage.
type Store struct {
	db *sql.DB
}

// Open creates or opens the trajectory database at path, initialising the
// schema if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

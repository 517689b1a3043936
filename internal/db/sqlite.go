// Package db opens the SQLite session journal.
package db

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

var (
	db      *sql.DB
	initErr error
	once    sync.Once
)

// InitDB initializes the SQLite database connection and runs schema migrations.
// Only the first call opens a database; later calls return its result, error
// included, until CloseDB.
func InitDB(dbPath string) (*sql.DB, error) {
	once.Do(func() {
		conn, err := open(dbPath)
		if err != nil {
			initErr = err
			return
		}
		db = conn
	})
	return db, initErr
}

func open(dbPath string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Sessions finish concurrently; WAL keeps their writes from blocking readers.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return conn, nil
}

// runMigrations executes the database schema migrations.
func runMigrations(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		peer TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'open',
		close_reason TEXT,
		error_kind TEXT,
		frames_in INTEGER NOT NULL DEFAULT 0,
		frames_out INTEGER NOT NULL DEFAULT 0,
		opened_at DATETIME NOT NULL,
		closed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_role ON sessions(role);
	CREATE INDEX IF NOT EXISTS idx_sessions_opened_at ON sessions(opened_at);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// CloseDB closes the database connection and resets the singleton so the next
// InitDB opens a fresh one.
func CloseDB() error {
	var err error
	if db != nil {
		err = db.Close()
	}
	once = sync.Once{}
	db = nil
	initErr = nil
	return err
}

// NewTestDB creates a new in-memory database for testing.
// This bypasses the singleton pattern and creates a fresh database each time.
func NewTestDB() (*sql.DB, error) {
	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open test database: %w", err)
	}
	// Every pooled connection would get its own empty in-memory database.
	testDB.SetMaxOpenConns(1)

	if err := runMigrations(testDB); err != nil {
		testDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return testDB, nil
}

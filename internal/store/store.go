package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// DefaultMaxRetries caps replay attempts per queue entry before the entry
// is parked as a dead letter.
const DefaultMaxRetries = 5

// Store is the node-local durable store: generic record tables plus the
// sync queue, in one SQLite database.
type Store struct {
	db         *sql.DB
	maxRetries int
}

// Open creates or opens the local database at the given path.
// Applies required pragmas and the schema automatically; idempotent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect local store: %w", err)
	}

	// SQLite only supports one writer at a time; a single connection
	// serializes writers without SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, maxRetries: DefaultMaxRetries}, nil
}

// SetMaxRetries overrides the replay retry cap. Values below 1 are ignored.
func (s *Store) SetMaxRetries(n int) {
	if n >= 1 {
		s.maxRetries = n
	}
}

// MaxRetries returns the current replay retry cap.
func (s *Store) MaxRetries() int {
	return s.maxRetries
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	return nil
}

// Stats is a point-in-time health snapshot of the local store.
type Stats struct {
	Reachable   bool  `json:"reachable"`
	QueueSize   int   `json:"queue_size"`
	DeadLetters int   `json:"dead_letters"`
	Records     int64 `json:"records"`
}

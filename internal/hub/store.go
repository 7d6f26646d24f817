package hub

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fleetd-io/fleetd/internal/record"
)

// Store holds one generic record table per (source, table) pair.
type Store struct {
	db *sql.DB

	// Guards the known-tables set. Table creation itself is idempotent
	// DDL, so a racing create is harmless; the set only saves the DDL
	// round trip on the hot path.
	mu    sync.Mutex
	known map[string]bool
}

// OpenStore creates or opens the hub database at the given path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open hub store: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect hub store: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	return &Store{db: db, known: make(map[string]bool)}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Apply executes one replicated write against the source's table,
// provisioning the table on first use. Insert and update both upsert by
// id (last write wins by arrival order); delete removes by id.
func (s *Store) Apply(ctx context.Context, sourceID, table string, op record.Operation, payload record.Object) error {
	if !op.Valid() {
		return fmt.Errorf("apply %s/%s: invalid operation %q", sourceID, table, op)
	}

	name, err := s.ensureTable(ctx, sourceID, table)
	if err != nil {
		return err
	}

	id := recordID(payload)
	if id == "" {
		return fmt.Errorf("apply %s/%s: payload has no id", sourceID, table)
	}

	if op == record.OpDelete {
		_, err := s.db.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, name), id)
		if err != nil {
			return fmt.Errorf("apply delete %s/%s: %w", sourceID, table, err)
		}
		return nil
	}

	data, err := record.EncodePayload(payload)
	if err != nil {
		return fmt.Errorf("apply %s/%s: %w", sourceID, table, err)
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, data)
		VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP
	`, name), id, data)
	if err != nil {
		return fmt.Errorf("apply %s %s/%s: %w", op, sourceID, table, err)
	}

	return nil
}

// Get reads one payload back from a source's table.
// Returns nil with no error when the row (or the table) does not exist.
func (s *Store) Get(ctx context.Context, sourceID, table, id string) (record.Object, error) {
	name, err := tableName(sourceID, table)
	if err != nil {
		return nil, err
	}

	var data string
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT data FROM %s WHERE id = ?`, name), id).Scan(&data)
	if err == sql.ErrNoRows || isNoSuchTable(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s/%s: %w", sourceID, table, id, err)
	}

	payload, err := record.DecodePayload(data)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s/%s: %w", sourceID, table, id, err)
	}
	return payload, nil
}

// Count returns the number of rows in a source's table; zero when the
// table has never been provisioned.
func (s *Store) Count(ctx context.Context, sourceID, table string) (int64, error) {
	name, err := tableName(sourceID, table)
	if err != nil {
		return 0, err
	}

	var n int64
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, name)).Scan(&n)
	if isNoSuchTable(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count %s/%s: %w", sourceID, table, err)
	}
	return n, nil
}

// Query runs an ad-hoc read for a source and returns rows as maps.
// Trusted-cluster-only: the SQL is executed as-is.
func (s *Store) Query(ctx context.Context, sourceID, rawSQL string) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, rawSQL)
	if err != nil {
		return nil, fmt.Errorf("query for %s: %w", sourceID, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query for %s: columns: %w", sourceID, err)
	}

	results := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("query for %s: scan: %w", sourceID, err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query for %s: %w", sourceID, err)
	}

	return results, nil
}

// TableName returns the physical table name a source's logical table maps
// to. Exposed so sources can address their own tables in ad-hoc queries.
func TableName(sourceID, table string) (string, error) {
	return tableName(sourceID, table)
}

// ensureTable provisions the backing table on first use.
// CREATE TABLE IF NOT EXISTS makes concurrent first-writes race-safe.
func (s *Store) ensureTable(ctx context.Context, sourceID, table string) (string, error) {
	name, err := tableName(sourceID, table)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	seen := s.known[name]
	s.mu.Unlock()
	if seen {
		return name, nil
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id         TEXT PRIMARY KEY,
			data       TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`, name))
	if err != nil {
		return "", fmt.Errorf("provision table %s: %w", name, err)
	}

	s.mu.Lock()
	s.known[name] = true
	s.mu.Unlock()

	return name, nil
}

// tableName builds the physical name r_<source>_<table>, rejecting
// identifiers that cannot be sanitized into [a-z0-9_].
func tableName(sourceID, table string) (string, error) {
	src, err := sanitize(sourceID)
	if err != nil {
		return "", fmt.Errorf("source id %q: %w", sourceID, err)
	}
	tbl, err := sanitize(table)
	if err != nil {
		return "", fmt.Errorf("table %q: %w", table, err)
	}
	return "r_" + src + "_" + tbl, nil
}

func sanitize(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty identifier")
	}
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == '-', r == '.', r == ' ':
			b.WriteRune('_')
		default:
			return "", fmt.Errorf("invalid identifier character %q", r)
		}
	}
	return b.String(), nil
}

// recordID extracts the id field the row is keyed by.
func recordID(payload record.Object) string {
	if v, ok := payload["id"]; ok {
		if s, ok := v.(record.String); ok {
			return string(s)
		}
	}
	return ""
}

func isNoSuchTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

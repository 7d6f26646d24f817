package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fleetd-io/fleetd/internal/record"
)

// ErrNotFound is returned when a (table, id) pair has no row.
var ErrNotFound = errors.New("record not found")

// Apply executes one write against the local record tables.
// Insert and update both resolve to an upsert-by-id; delete removes the
// row and is a no-op when it does not exist.
func (s *Store) Apply(ctx context.Context, table, id string, op record.Operation, payload record.Object) error {
	if !op.Valid() {
		return fmt.Errorf("apply %s/%s: invalid operation %q", table, id, op)
	}

	if op == record.OpDelete {
		_, err := s.db.ExecContext(ctx, `
			DELETE FROM records WHERE table_name = ? AND id = ?
		`, table, id)
		if err != nil {
			return fmt.Errorf("apply delete %s/%s: %w", table, id, err)
		}
		return nil
	}

	data, err := record.EncodePayload(payload)
	if err != nil {
		return fmt.Errorf("apply %s/%s: %w", table, id, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (table_name, id, data)
		VALUES (?, ?, ?)
		ON CONFLICT(table_name, id) DO UPDATE SET
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP
	`, table, id, data)
	if err != nil {
		return fmt.Errorf("apply %s %s/%s: %w", op, table, id, err)
	}

	return nil
}

// Get reads one payload back by (table, id).
func (s *Store) Get(ctx context.Context, table, id string) (record.Object, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM records WHERE table_name = ? AND id = ?
	`, table, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", table, id, err)
	}

	payload, err := record.DecodePayload(data)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", table, id, err)
	}
	return payload, nil
}

// List returns every payload in a table, ordered by id for determinism.
func (s *Store) List(ctx context.Context, table string) ([]record.Object, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM records WHERE table_name = ? ORDER BY id ASC
	`, table)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var payloads []record.Object
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("list %s: scan: %w", table, err)
		}
		payload, err := record.DecodePayload(data)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", table, err)
		}
		payloads = append(payloads, payload)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}

	if payloads == nil {
		payloads = []record.Object{}
	}
	return payloads, nil
}

// Count returns the number of rows in a table.
func (s *Store) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM records WHERE table_name = ?
	`, table).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// HealthStats reports local store health: connectivity, total record
// count, and sync queue depth including dead letters.
func (s *Store) HealthStats(ctx context.Context) Stats {
	var stats Stats

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&stats.Records); err == nil {
		stats.Reachable = true
	}

	if size, err := s.QueueSize(ctx); err == nil {
		stats.QueueSize = size
	}
	if dead, err := s.DeadLetters(ctx); err == nil {
		stats.DeadLetters = len(dead)
	}

	return stats
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetd-io/fleetd/internal/record"
)

// QueueEntry is one write waiting for delivery to the Hub.
// Seq is assigned at enqueue time and is monotonic per store.
type QueueEntry struct {
	Seq        int64
	Table      string
	RecordID   string
	Op         record.Operation
	Payload    record.Object
	QueuedAt   time.Time
	RetryCount int
}

// Enqueue persists a failed replication write for later replay.
// The insert must succeed before the originating write call may return ok.
func (s *Store) Enqueue(ctx context.Context, table, id string, op record.Operation, payload record.Object) (int64, error) {
	data, err := record.EncodePayload(payload)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s/%s: %w", table, id, err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_queue (table_name, record_id, operation, data)
		VALUES (?, ?, ?, ?)
	`, table, id, string(op), data)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s/%s: %w", table, id, err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue %s/%s: last insert id: %w", table, id, err)
	}
	return seq, nil
}

// Pending returns up to limit entries eligible for replay, FIFO by
// queued_at with seq as the tiebreak. Entries at the retry cap are
// excluded; they surface through DeadLetters instead.
func (s *Store) Pending(ctx context.Context, limit int) ([]QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, table_name, record_id, operation, data, queued_at, retry_count
		FROM sync_queue
		WHERE retry_count < ?
		ORDER BY queued_at ASC, id ASC
		LIMIT ?
	`, s.maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("pending: %w", err)
	}
	defer rows.Close()

	return scanQueueEntries(rows)
}

// Ack deletes an entry after successful delivery.
func (s *Store) Ack(ctx context.Context, seq int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_queue WHERE id = ?
	`, seq)
	if err != nil {
		return fmt.Errorf("ack %d: %w", seq, err)
	}
	return nil
}

// Fail increments an entry's retry counter after a failed delivery.
// The entry stays queued; once the counter hits the cap it becomes a
// dead letter.
func (s *Store) Fail(ctx context.Context, seq int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_queue SET retry_count = retry_count + 1 WHERE id = ?
	`, seq)
	if err != nil {
		return fmt.Errorf("fail %d: %w", seq, err)
	}
	return nil
}

// QueueSize returns the total number of queued entries, dead letters
// included.
func (s *Store) QueueSize(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue size: %w", err)
	}
	return n, nil
}

// DeadLetters returns entries frozen at the retry cap, oldest first.
// They are never deleted automatically; RequeueDeadLetters puts them back
// into replay rotation.
func (s *Store) DeadLetters(ctx context.Context) ([]QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, table_name, record_id, operation, data, queued_at, retry_count
		FROM sync_queue
		WHERE retry_count >= ?
		ORDER BY queued_at ASC, id ASC
	`, s.maxRetries)
	if err != nil {
		return nil, fmt.Errorf("dead letters: %w", err)
	}
	defer rows.Close()

	return scanQueueEntries(rows)
}

// RequeueDeadLetters resets the retry counter on every dead letter and
// returns how many entries re-entered replay rotation.
func (s *Store) RequeueDeadLetters(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_queue SET retry_count = 0 WHERE retry_count >= ?
	`, s.maxRetries)
	if err != nil {
		return 0, fmt.Errorf("requeue dead letters: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue dead letters: rows affected: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanQueueEntries(rows rowScanner) ([]QueueEntry, error) {
	var entries []QueueEntry
	for rows.Next() {
		var (
			entry QueueEntry
			op    string
			data  string
		)
		if err := rows.Scan(&entry.Seq, &entry.Table, &entry.RecordID, &op, &data, &entry.QueuedAt, &entry.RetryCount); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entry.Op = record.Operation(op)
		payload, err := record.DecodePayload(data)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry %d: %w", entry.Seq, err)
		}
		entry.Payload = payload
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue entries: %w", err)
	}

	if entries == nil {
		entries = []QueueEntry{}
	}
	return entries, nil
}

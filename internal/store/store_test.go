package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fleetd-io/fleetd/internal/record"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"records", "sync_queue", "schema_version"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestApply_InsertThenGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	payload := record.Object{"id": record.String("n-1"), "name": record.String("htpc")}
	if err := s.Apply(ctx, "nodes", "n-1", record.OpInsert, payload); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	got, err := s.Get(ctx, "nodes", "n-1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got["name"] != record.String("htpc") {
		t.Errorf("read back name = %v, want htpc", got["name"])
	}
}

func TestApply_UpdateIsUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Update before insert must still land: both resolve to upsert-by-id.
	if err := s.Apply(ctx, "nodes", "n-1", record.OpUpdate, record.Object{"v": record.Number(1)}); err != nil {
		t.Fatalf("Apply(update) failed: %v", err)
	}
	if err := s.Apply(ctx, "nodes", "n-1", record.OpUpdate, record.Object{"v": record.Number(2)}); err != nil {
		t.Fatalf("Apply(update) failed: %v", err)
	}

	got, err := s.Get(ctx, "nodes", "n-1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got["v"] != record.Number(2) {
		t.Errorf("last write should win, got v = %v", got["v"])
	}

	count, err := s.Count(ctx, "nodes")
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}

func TestApply_Delete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.Apply(ctx, "nodes", "n-1", record.OpInsert, record.Object{"x": record.Bool(true)})
	if err := s.Apply(ctx, "nodes", "n-1", record.OpDelete, nil); err != nil {
		t.Fatalf("Apply(delete) failed: %v", err)
	}

	if _, err := s.Get(ctx, "nodes", "n-1"); err != ErrNotFound {
		t.Errorf("Get() after delete = %v, want ErrNotFound", err)
	}

	// Deleting a missing row is a no-op, not an error.
	if err := s.Apply(ctx, "nodes", "n-1", record.OpDelete, nil); err != nil {
		t.Errorf("second delete should be no-op: %v", err)
	}
}

func TestApply_InvalidOperation(t *testing.T) {
	s := openTestStore(t)

	err := s.Apply(context.Background(), "nodes", "n-1", record.Operation("merge"), nil)
	if err == nil {
		t.Error("expected error for invalid operation")
	}
}

func TestList_OrderedByID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"b", "a", "c"} {
		s.Apply(ctx, "tasks", id, record.OpInsert, record.Object{"id": record.String(id)})
	}

	payloads, err := s.List(ctx, "tasks")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(payloads) != 3 {
		t.Fatalf("List() returned %d rows, want 3", len(payloads))
	}
	want := []string{"a", "b", "c"}
	for i, p := range payloads {
		if p["id"] != record.String(want[i]) {
			t.Errorf("List()[%d].id = %v, want %s", i, p["id"], want[i])
		}
	}
}

func TestList_EmptyTable(t *testing.T) {
	s := openTestStore(t)

	payloads, err := s.List(context.Background(), "nothing")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if payloads == nil || len(payloads) != 0 {
		t.Errorf("List() on empty table = %v, want empty slice", payloads)
	}
}

func TestHealthStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.Apply(ctx, "nodes", "n-1", record.OpInsert, record.Object{})
	s.Enqueue(ctx, "nodes", "n-1", record.OpInsert, record.Object{})

	stats := s.HealthStats(ctx)
	if !stats.Reachable {
		t.Error("Reachable = false, want true")
	}
	if stats.Records != 1 {
		t.Errorf("Records = %d, want 1", stats.Records)
	}
	if stats.QueueSize != 1 {
		t.Errorf("QueueSize = %d, want 1", stats.QueueSize)
	}
}

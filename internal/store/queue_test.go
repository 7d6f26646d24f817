package store

import (
	"context"
	"testing"

	"github.com/fleetd-io/fleetd/internal/record"
)

func TestEnqueue_AssignsMonotonicSeq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.Enqueue(ctx, "tasks", "t-1", record.OpInsert, record.Object{})
	if err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	second, err := s.Enqueue(ctx, "tasks", "t-2", record.OpInsert, record.Object{})
	if err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	if second <= first {
		t.Errorf("seq not monotonic: first=%d second=%d", first, second)
	}
}

func TestPending_FIFOOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// All entries land in the same CURRENT_TIMESTAMP second; seq breaks
	// the tie so enqueue order is preserved.
	ids := []string{"t-1", "t-2", "t-3"}
	for _, id := range ids {
		if _, err := s.Enqueue(ctx, "tasks", id, record.OpInsert, record.Object{"id": record.String(id)}); err != nil {
			t.Fatalf("Enqueue(%s) failed: %v", id, err)
		}
	}

	entries, err := s.Pending(ctx, 10)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Pending() returned %d entries, want 3", len(entries))
	}
	for i, e := range entries {
		if e.RecordID != ids[i] {
			t.Errorf("Pending()[%d].RecordID = %s, want %s", i, e.RecordID, ids[i])
		}
	}
}

func TestPending_RespectsLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s.Enqueue(ctx, "tasks", "t", record.OpUpdate, record.Object{})
	}

	entries, err := s.Pending(ctx, 2)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Pending(limit=2) returned %d entries", len(entries))
	}
}

func TestAck_RemovesEntry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seq, _ := s.Enqueue(ctx, "tasks", "t-1", record.OpInsert, record.Object{})
	if err := s.Ack(ctx, seq); err != nil {
		t.Fatalf("Ack() failed: %v", err)
	}

	size, err := s.QueueSize(ctx)
	if err != nil {
		t.Fatalf("QueueSize() failed: %v", err)
	}
	if size != 0 {
		t.Errorf("QueueSize() = %d after ack, want 0", size)
	}
}

func TestFail_IncrementsRetryCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seq, _ := s.Enqueue(ctx, "tasks", "t-1", record.OpInsert, record.Object{})
	if err := s.Fail(ctx, seq); err != nil {
		t.Fatalf("Fail() failed: %v", err)
	}

	entries, err := s.Pending(ctx, 10)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(entries) != 1 || entries[0].RetryCount != 1 {
		t.Errorf("Pending() = %+v, want one entry with RetryCount=1", entries)
	}
}

func TestDeadLetters_ExcludedFromPending(t *testing.T) {
	s := openTestStore(t)
	s.SetMaxRetries(2)
	ctx := context.Background()

	seq, _ := s.Enqueue(ctx, "tasks", "t-dead", record.OpInsert, record.Object{})
	s.Enqueue(ctx, "tasks", "t-live", record.OpInsert, record.Object{})

	for i := 0; i < 2; i++ {
		if err := s.Fail(ctx, seq); err != nil {
			t.Fatalf("Fail() failed: %v", err)
		}
	}

	entries, err := s.Pending(ctx, 10)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(entries) != 1 || entries[0].RecordID != "t-live" {
		t.Fatalf("Pending() = %+v, want only t-live", entries)
	}

	dead, err := s.DeadLetters(ctx)
	if err != nil {
		t.Fatalf("DeadLetters() failed: %v", err)
	}
	if len(dead) != 1 || dead[0].RecordID != "t-dead" {
		t.Fatalf("DeadLetters() = %+v, want only t-dead", dead)
	}

	// Dead letters still count toward the total queue size.
	size, _ := s.QueueSize(ctx)
	if size != 2 {
		t.Errorf("QueueSize() = %d, want 2", size)
	}
}

func TestRequeueDeadLetters(t *testing.T) {
	s := openTestStore(t)
	s.SetMaxRetries(1)
	ctx := context.Background()

	seq, _ := s.Enqueue(ctx, "tasks", "t-1", record.OpInsert, record.Object{})
	s.Fail(ctx, seq)

	n, err := s.RequeueDeadLetters(ctx)
	if err != nil {
		t.Fatalf("RequeueDeadLetters() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("RequeueDeadLetters() = %d, want 1", n)
	}

	entries, err := s.Pending(ctx, 10)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(entries) != 1 || entries[0].RetryCount != 0 {
		t.Errorf("Pending() after requeue = %+v, want one entry with RetryCount=0", entries)
	}
}

func TestQueueEntry_PayloadSurvives(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	payload := record.Object{
		"id":   record.String("t-1"),
		"tps":  record.Number(60),
		"meta": record.Object{"gpu": record.Bool(true)},
	}
	if _, err := s.Enqueue(ctx, "tasks", "t-1", record.OpUpdate, payload); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	entries, err := s.Pending(ctx, 1)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Pending() returned %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Op != record.OpUpdate {
		t.Errorf("Op = %s, want update", e.Op)
	}
	if e.Payload["tps"] != record.Number(60) {
		t.Errorf("payload tps = %v, want 60", e.Payload["tps"])
	}
	if meta, ok := e.Payload["meta"].(record.Object); !ok || meta["gpu"] != record.Bool(true) {
		t.Errorf("payload meta = %v, want nested object", e.Payload["meta"])
	}
}

func TestSetMaxRetries_IgnoresInvalid(t *testing.T) {
	s := openTestStore(t)

	s.SetMaxRetries(0)
	if s.MaxRetries() != DefaultMaxRetries {
		t.Errorf("MaxRetries() = %d, want default %d", s.MaxRetries(), DefaultMaxRetries)
	}

	s.SetMaxRetries(3)
	if s.MaxRetries() != 3 {
		t.Errorf("MaxRetries() = %d, want 3", s.MaxRetries())
	}
}

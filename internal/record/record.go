package record

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Operation identifies what a record does to its target row.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether the operation is one of the known kinds.
func (op Operation) Valid() bool {
	switch op {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Record is one logical write targeting a (source, table, id).
// Records are fire-and-forget: created on write, never mutated.
type Record struct {
	SourceID  string    `json:"source_id"`
	Table     string    `json:"table"`
	ID        string    `json:"id"`
	Op        Operation `json:"operation"`
	Payload   Object    `json:"payload"`
	Timestamp float64   `json:"timestamp"` // Unix seconds, assigned at creation
}

// New builds a record, generating a uuid id when the caller supplies none.
// The id is also mirrored into the payload under "id" so the Hub can key
// the row without understanding the payload schema.
func New(sourceID, table, id string, op Operation, payload Object) (Record, error) {
	if !op.Valid() {
		return Record{}, fmt.Errorf("new record: invalid operation %q", op)
	}
	if table == "" {
		return Record{}, fmt.Errorf("new record: empty table")
	}
	if id == "" {
		id = uuid.NewString()
	}
	if payload == nil {
		payload = Object{}
	}
	if _, ok := payload["id"]; !ok {
		payload["id"] = String(id)
	}
	return Record{
		SourceID:  sourceID,
		Table:     table,
		ID:        id,
		Op:        op,
		Payload:   payload,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}, nil
}

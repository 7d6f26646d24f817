// Package record defines the wire-level data model shared by every fleetd
// component: replication records, the opaque payload value union, and the
// node/agent status state machine.
//
// Payloads are deliberately schemaless. A Value is a small closed union
// (null, string, number, bool, array, object) that round-trips through JSON
// without interpretation; only the source that wrote a payload understands
// its shape. The Hub stores payloads as opaque blobs keyed by id.
//
// Records are immutable once constructed. Uniqueness is per
// (source_id, table, id); the Hub resolves duplicate ids by
// last-writer-wins on arrival order.
package record

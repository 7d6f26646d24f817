// Package hub implements the central replication target: a generic
// per-source record store behind a small HTTP surface.
//
// The Hub is a replication sink, not a domain store. On first reference to
// a (source, table) pair it provisions a table keyed by id, holding the
// payload as an opaque blob plus server-assigned created_at/updated_at.
// Insert and update both resolve to upsert-by-id, so replaying the same
// record twice converges on the same state (at-least-once delivery with
// idempotent overwrite). Each apply is independent; there is no
// cross-source transaction boundary.
//
// The query endpoint is an intentionally loose escape hatch for
// network-wide visibility and is a trusted-cluster-only capability: the
// SQL runs as-is, with no sandboxing.
package hub

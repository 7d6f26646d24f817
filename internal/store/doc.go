// Package store provides the node-local SQLite storage engine: the
// authoritative record tables and the durable sync queue.
//
// Local durability is synchronous and authoritative. Every write lands
// here before anything touches the network, and a write that cannot land
// here fails the caller. The sync queue absorbs writes that could not
// reach the Hub; entries replay in FIFO order (queued_at, then rowid) and
// carry a retry counter that caps at MaxRetries.
//
// # Retry-cap policy
//
// Entries at the cap are never deleted. They drop out of normal replay
// selection and surface through DeadLetters as a permanently-stuck
// backlog; RequeueDeadLetters resets their counters for another round.
// Silent data loss is not an option this package offers.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
//   - single connection: SQLite allows one writer at a time
package store

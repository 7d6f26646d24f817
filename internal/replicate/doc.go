// Package replicate implements the dual-write core: synchronous local
// durability with best-effort, time-bounded delivery to the Hub.
//
// A write lands in the local store first; that apply must succeed or the
// call fails. Hub delivery is then attempted with a short deadline, and
// any failure - timeout, connection refused, non-2xx - is absorbed into
// the durable sync queue rather than surfaced to the writer. The caller
// sees an explicit Outcome (Delivered or Queued) so the path taken is
// observable without reaching into internals.
//
// The Replayer drains the queue against the Hub on a timer, sequentially
// and in FIFO order, so writes from one source reach the Hub in the order
// they were originally accepted. A writer never blocks waiting for
// replay.
package replicate

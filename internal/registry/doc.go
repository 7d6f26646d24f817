// Package registry tracks which nodes and agents are alive.
//
// The registry is in-memory and process-scoped: entries are created on
// first registration, mutated by explicit status/heartbeat/role calls, and
// never deleted. Liveness does not survive a restart by design - nodes
// re-register and re-heartbeat on reconnect.
//
// One mutex guards every read and write so a status read during a
// concurrent heartbeat or sweep never observes a torn record. The lock is
// held only for the duration of map mutation, never across network calls.
// The staleness sweep is the sole source of involuntary demotion: it
// forces heartbeat-expired entries to offline and never promotes.
package registry

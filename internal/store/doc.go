// Package store provides SQLite-backed durable storage for run traces.
//
// A trace is an append-only log of the effects one run emitted:
//   - Runs: one row per harness run (root task, start time)
//   - Effects: one row per emitted effect, in emission order
//
// Ordering always uses seq INTEGER (the harness's emission counter),
// never timestamps, so reading a trace back yields the emission order
// exactly. Effect payloads are stored as canonical JSON, which makes a
// trace row comparable against a scenario expectation byte for byte.
//
// Database configuration:
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: effects always belong to a run
package store

// Package journal provides SQLite-backed durable storage for the engine's
// event log and finished ops.
//
// The in-memory event log is bounded and lost on exit. The journal keeps
// everything, so a session can be traced after the fact with `rfx trace`.
//
// The journal is append-only:
//   - Events: every event log entry, keyed by its logical seq
//   - Ops: every op that reached a terminal status, keyed by op id
//
// # Critical Patterns
//
// Logical Ordering:
//   - Events are ordered by seq (engine.Clock), never by timestamps
//   - Reopening a journal continues numbering from LastSeq
//
// Idempotent Writes:
//   - ON CONFLICT DO NOTHING on both tables
//   - Terminal ops never change, so a second write is a no-op
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package journal

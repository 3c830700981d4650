// Package engine owns the client-side session state: the last committed
// snapshot, the pending-op ledger, the optimistic overlay and the event log.
//
// The Store is the only component the UI and the transport touch. UI code
// dispatches intents and reads effective state through selectors; the
// transport feeds snapshots and meter frames. Readers always see the
// snapshot with the overlay applied, and stored data is never mutated on
// read.
//
// ARCHITECTURE:
//
// Single Writer:
// Every mutation of ledger and overlay runs under one mutex. Snapshot
// ingestion (normalize, reconcile, commit) runs to completion under that
// lock, so readers never observe a half-applied snapshot. Syscalls are
// issued outside the lock so other intents can queue while one is in flight.
//
// Event Processing Flow:
//  1. Transport callbacks enqueue snapshots and meter frames on a FIFO queue
//  2. Loop.Run dequeues them one at a time, in delivery order
//  3. Snapshots go through Store.IngestSnapshot, meters through IngestMeters
//  4. An optional tick runs Store.Tick so timeouts fire while the remote is quiet
//
// Nothing is dropped and nothing is retried. An op is abandoned only through
// timeout or supersession.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Event log entries are stamped with a monotonic seq from Clock.Next().
// Wall-clock time is recorded for display only, never for ordering.
//
// Pure Transitions:
// Ingest and Register are pure functions of State. The Store wraps them with
// locking, logging and observer notification.
package engine

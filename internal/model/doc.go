// Package model defines the canonical types shared by the rfx core.
//
// The types fall into three groups:
//
//   - Snapshot data: RawSnapshot (what a transport delivers) and View (what the
//     normalizer produces). A View is immutable once built; nothing in the core
//     writes to a View after normalization.
//   - Intents: Intent and Call describe a user mutation and the command sent to the
//     remote session for it.
//   - Optimistic state: Patch, Overlay, PendingOp and Ledger track unconfirmed
//     local intent layered over the last View.
//
// # Effective State
//
// Effective state for an entity is the snapshot entity with every overlay layer
// that touches it applied in dispatch order. Overlay layers are owned by exactly
// one PendingOp and are dropped when that op reaches a terminal status.
package model

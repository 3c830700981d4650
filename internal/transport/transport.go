// Package transport connects the engine to a remote session.
//
// A Transport delivers seq-bearing snapshots and accepts one-way commands.
// Command results only say whether the remote accepted the call; whether it
// took effect is decided later by reconciliation against snapshots.
//
// Implementations in this package:
//
//   - MockVM: in-process reduced-shape backend with buses, modes and meters.
//   - MockSession: in-process rich-shape backend with tracks, lanes and sends.
//   - WSClient / Server: the same contract over a websocket.
//   - File: watches a session view file and appends commands to a file.
//
// Wrap third-party or remote transports with Enforce before handing them to
// the engine.
package transport

import (
	"context"
	"fmt"

	"github.com/roach88/rfx/internal/model"
)

// Boot is the result of a successful handshake.
type Boot struct {
	Seq int64 `json:"seq"`
}

// Transport is the contract the engine consumes.
type Transport interface {
	// Boot performs the initial handshake.
	Boot(ctx context.Context) (Boot, error)

	// Snapshot returns the last known snapshot, or nil before the first one.
	Snapshot() model.RawSnapshot

	// Subscribe registers fn for every truth-bearing snapshot.
	// The returned func unsubscribes.
	Subscribe(fn func(model.RawSnapshot)) (unsubscribe func())

	// Syscall sends a one-way command. A nil error means the remote accepted
	// the call, not that it was applied.
	Syscall(ctx context.Context, call model.Call) error
}

// MeterSource is implemented by transports with a telemetry channel.
// Meter frames carry no seq and never drive verification.
type MeterSource interface {
	SubscribeMeters(fn func(model.MeterFrame)) (unsubscribe func())
}

// RejectedError is returned when the remote answers a call with ok=false.
type RejectedError struct {
	Name   model.Kind
	Reason string
}

// Error returns the remote's reason unchanged so it can be surfaced to users.
func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s rejected", e.Name)
	}
	return e.Reason
}

// Reject builds a RejectedError.
func Reject(name model.Kind, format string, args ...any) error {
	return &RejectedError{Name: name, Reason: fmt.Sprintf(format, args...)}
}

// Result is the {ok, error} wire form of a call or boot outcome.
type Result struct {
	OK    bool   `json:"ok"`
	Seq   *int64 `json:"seq,omitempty"`
	Error string `json:"error,omitempty"`
}

// ResultOf converts an error into its wire form.
func ResultOf(err error) Result {
	if err != nil {
		return Result{OK: false, Error: err.Error()}
	}
	return Result{OK: true}
}

package engine

import (
	"github.com/roach88/rfx/internal/model"
)

// Observer receives Store notifications. Calls are made after the Store
// lock is released, in the order the changes were committed.
type Observer interface {
	// OpDispatched is called once per intent, after the op is registered.
	OpDispatched(op model.PendingOp)

	// OpFinished is called when an op reaches a terminal status.
	OpFinished(op model.PendingOp)

	// SnapshotIngested is called after each committed snapshot.
	SnapshotIngested(v *model.View, transitions []model.Transition)

	// EventLogged is called for every event log entry.
	EventLogged(e model.Event)
}

// NopObserver implements Observer with no-ops. Embed it to implement only
// the methods you need.
type NopObserver struct{}

func (NopObserver) OpDispatched(model.PendingOp) {}
func (NopObserver) OpFinished(model.PendingOp) {}
func (NopObserver) SnapshotIngested(*model.View, []model.Transition) {}
func (NopObserver) EventLogged(model.Event) {}

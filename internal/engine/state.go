package engine

import (
	"maps"
	"time"

	"github.com/roach88/rfx/internal/model"
	"github.com/roach88/rfx/internal/reconcile"
)

// Session holds client-side selection state derived from snapshots.
type Session struct {
	ActiveTrackGUID   string `json:"activeTrackGuid"`
	SelectedTrackGUID string `json:"selectedTrackGuid"`
	SelectedFxGUID    string `json:"selectedFxGuid"`
}

// State is everything the Store commits. Values are replaced, never mutated
// in place, so a State handed to a reader stays consistent.
type State struct {
	Snapshot   model.SnapshotMeta
	ReceivedAt time.Time

	// HighSeq is the highest seq ever committed. Verification is gated on it.
	HighSeq int64

	View    *model.View
	Perf    *model.Perf
	Session Session
	Ledger  model.Ledger
	Overlay model.Overlay
}

// Register adds a freshly created op and its overlay layer.
func Register(prev State, op model.PendingOp) State {
	next := prev
	next.Ledger = prev.Ledger.Put(op)
	next.Overlay = prev.Overlay.With(op.ID, op.Patch)
	return next
}

// Finish moves a live op to a terminal status and releases its overlay
// claim. It reports false when the op is no longer live or the transition
// is not legal.
func Finish(prev State, id string, to model.OpStatus, errMsg string, at time.Time) (State, model.PendingOp, bool) {
	op, ok := prev.Ledger.Get(id)
	if !ok || !model.CanTransition(op.Status, to) {
		return prev, op, false
	}
	op.Status = to
	op.FinishedAt = at
	if errMsg != "" {
		op.Error = errMsg
	}
	next := prev
	next.Ledger = prev.Ledger.Put(op)
	next.Overlay = prev.Overlay.Without(id)
	return next, op, true
}

// MarkSent records that the op's syscall is about to go out.
func MarkSent(prev State, id string, at time.Time) (State, model.PendingOp, bool) {
	op, ok := prev.Ledger.Get(id)
	if !ok || !model.CanTransition(op.Status, model.StatusSent) {
		return prev, op, false
	}
	op.Status = model.StatusSent
	op.SentAt = at
	next := prev
	next.Ledger = prev.Ledger.Put(op)
	return next, op, true
}

// Ingest reconciles prev against v and commits v. It is pure: the returned
// State shares no mutable data with prev.
func Ingest(prev State, v *model.View, r *reconcile.Reconciler, at time.Time) (State, reconcile.Result) {
	res := r.Reconcile(reconcile.State{
		Seq:     prev.HighSeq,
		Ledger:  prev.Ledger,
		Overlay: prev.Overlay,
	}, v)

	next := prev
	next.Ledger = res.Ledger
	next.Overlay = res.Overlay
	next.View = v
	next.Snapshot = v.Snapshot
	next.ReceivedAt = at
	if v.Snapshot.Seq > next.HighSeq {
		next.HighSeq = v.Snapshot.Seq
	}
	if v.Perf != nil {
		next.Perf = copyPerf(v.Perf)
	}
	next.Session = deriveSession(prev.Session, v, next.Perf)
	return next, res
}

// Sweep applies collapse and timeout without a new snapshot.
func Sweep(prev State, r *reconcile.Reconciler) (State, reconcile.Result) {
	res := r.Sweep(reconcile.State{
		Seq:     prev.HighSeq,
		Ledger:  prev.Ledger,
		Overlay: prev.Overlay,
	})
	next := prev
	next.Ledger = res.Ledger
	next.Overlay = res.Overlay
	return next, res
}

// WithMeters folds a telemetry frame into the perf meters. It never touches
// the ledger or the overlay.
func WithMeters(prev State, f model.MeterFrame) State {
	next := prev
	perf := copyPerf(prev.Perf)
	if perf == nil {
		perf = &model.Perf{BusModesByID: map[string]model.Mode{}}
	}
	if perf.MetersByID == nil {
		perf.MetersByID = map[string]model.Meter{}
	}
	maps.Copy(perf.MetersByID, f.MetersByID)
	next.Perf = perf
	return next
}

func copyPerf(p *model.Perf) *model.Perf {
	if p == nil {
		return nil
	}
	out := *p
	out.Buses = append([]model.Bus(nil), p.Buses...)
	out.BusModesByID = maps.Clone(p.BusModesByID)
	out.MetersByID = maps.Clone(p.MetersByID)
	return &out
}

// deriveSession picks the active track: the perf active bus when it names a
// track, then the previous choice while it still exists, then the selected
// track, then the first track.
func deriveSession(prev Session, v *model.View, perf *model.Perf) Session {
	ents := v.Entities
	s := Session{}
	if hasTrack(ents, prev.ActiveTrackGUID) {
		s.ActiveTrackGUID = prev.ActiveTrackGUID
	}

	idx := v.Selection.SelectedTrackIndex
	if idx >= 0 && idx < len(ents.TrackOrder) {
		s.SelectedTrackGUID = ents.TrackOrder[idx]
	}

	switch {
	case perf != nil && perf.ActiveBusID != "" && hasTrack(ents, perf.ActiveBusID):
		s.ActiveTrackGUID = perf.ActiveBusID
	case s.ActiveTrackGUID != "":
	case s.SelectedTrackGUID != "":
		s.ActiveTrackGUID = s.SelectedTrackGUID
	case len(ents.TrackOrder) > 0:
		s.ActiveTrackGUID = ents.TrackOrder[0]
	}

	if _, ok := ents.FXByGUID[prev.SelectedFxGUID]; ok {
		s.SelectedFxGUID = prev.SelectedFxGUID
	}
	return s
}

func hasTrack(ents model.Entities, guid string) bool {
	_, ok := ents.TracksByGUID[guid]
	return ok
}

package reconcile

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/roach88/rfx/internal/lanes"
	"github.com/roach88/rfx/internal/model"
	"github.com/roach88/rfx/internal/optimistic"
)

func (r *Reconciler) builtins() map[model.Kind]Verifier {
	return map[model.Kind]Verifier{
		model.KindToggleRecArm: trackBool("recArm", func(t model.Track) bool { return t.RecArm }),
		model.KindToggleMute:   trackBool("mute", func(t model.Track) bool { return t.Mute }),
		model.KindToggleSolo:   trackBool("solo", func(t model.Track) bool { return t.Solo != 0 }),
		model.KindSetVol:       r.trackNumber("vol", 1, func(t model.Track) float64 { return t.Vol }),
		model.KindSetPan:       r.trackNumber("pan", 0, func(t model.Track) float64 { return t.Pan }),
		model.KindToggleFx:     verifyToggleFx,
		model.KindReorderFx:    verifyReorderFx,
		model.KindSetRoutingMode: func(op model.PendingOp, v *model.View) (bool, string) {
			return r.verifyRoutingMode(op, v)
		},
		model.KindSelectActiveBus: func(op model.PendingOp, v *model.View) (bool, string) {
			return r.verifySelectActiveBus(op, v)
		},
		model.KindSyncView: func(model.PendingOp, *model.View) (bool, string) { return true, "" },
	}
}

func lookupTrack(op model.PendingOp, v *model.View) (model.Track, string) {
	guid := op.Intent.TrackGUID
	tr, ok := v.Entities.TracksByGUID[guid]
	if !ok {
		return tr, fmt.Sprintf("track %q not in snapshot", guid)
	}
	return tr, ""
}

func trackBool(field string, get func(model.Track) bool) Verifier {
	return func(op model.PendingOp, v *model.View) (bool, string) {
		tr, reason := lookupTrack(op, v)
		if reason != "" {
			return false, reason
		}
		want := op.Intent.Bool()
		if got := get(tr); got != want {
			return false, fmt.Sprintf("track %q %s=%t, want %t", tr.GUID, field, got, want)
		}
		return true, ""
	}
}

func (r *Reconciler) trackNumber(field string, def float64, get func(model.Track) float64) Verifier {
	return func(op model.PendingOp, v *model.View) (bool, string) {
		tr, reason := lookupTrack(op, v)
		if reason != "" {
			return false, reason
		}
		want := op.Intent.Number(def)
		got := get(tr)
		if !nearlyEqual(got, want, r.epsilon) {
			return false, fmt.Sprintf("track %q %s=%g, want %g", tr.GUID, field, got, want)
		}
		return true, ""
	}
}

func nearlyEqual(a, b, eps float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) {
		return false
	}
	return math.Abs(a-b) <= eps
}

func verifyToggleFx(op model.PendingOp, v *model.View) (bool, string) {
	guid := op.Intent.FxGUID
	fx, ok := v.Entities.FXByGUID[guid]
	if !ok {
		return false, fmt.Sprintf("fx %q not in snapshot", guid)
	}
	if want := op.Intent.Bool(); fx.Enabled != want {
		return false, fmt.Sprintf("fx %q enabled=%t, want %t", guid, fx.Enabled, want)
	}
	return true, ""
}

// verifyReorderFx compares against the predicted order when the op carried
// one. Otherwise the move is replayed against the latest order, which can
// accept a chain that reached the same order through unrelated edits.
func verifyReorderFx(op model.PendingOp, v *model.View) (bool, string) {
	guid := op.Intent.TrackGUID
	if guid == "" {
		return false, "reorderFx without trackGuid"
	}
	actual := v.Entities.FXOrderByTrackGUID[guid]

	expected, ok := op.Patch.FXOrderFor(guid)
	if !ok {
		from, to := op.Intent.FromIndex, op.Intent.ToIndex
		if from == nil || to == nil {
			return false, "reorderFx without indices"
		}
		if expected, ok = optimistic.Move(actual, *from, *to); !ok {
			return false, fmt.Sprintf("fx indices %d->%d out of range for %d fx", *from, *to, len(actual))
		}
	}
	if !slices.Equal(actual, expected) {
		return false, fmt.Sprintf("fx order [%s], want [%s]", strings.Join(actual, ","), strings.Join(expected, ","))
	}
	return true, ""
}

func (r *Reconciler) verifyRoutingMode(op model.PendingOp, v *model.View) (bool, string) {
	busID := op.Intent.BusID
	if busID == "" {
		return false, "setRoutingMode without busId"
	}
	want := model.NormalizeMode(op.Intent.Mode)

	if v.Reduced() {
		got := model.ModeLinear
		if v.Perf != nil {
			got = model.NormalizeMode(string(v.Perf.BusModesByID[busID]))
		}
		if got != want {
			return false, fmt.Sprintf("bus %s mode=%s, want %s", busID, got, want)
		}
		return true, ""
	}

	set := r.lanes.Lanes(&v.Entities, busID)
	if set.Empty() {
		return false, fmt.Sprintf("no lanes resolved for bus %s", busID)
	}
	arm := want.Arming()
	for i, guid := range set.Slots() {
		if guid == "" {
			continue
		}
		tr := v.Entities.TracksByGUID[guid]
		if tr.RecArm != arm[i] {
			return false, fmt.Sprintf("lane %s%s recArm=%t, want %t", busID, lanes.Letters[i], tr.RecArm, arm[i])
		}
	}
	return true, ""
}

func (r *Reconciler) verifySelectActiveBus(op model.PendingOp, v *model.View) (bool, string) {
	busID := op.Intent.BusID
	if busID == "" {
		return false, "selectActiveBus without busId"
	}

	if v.Reduced() {
		active := v.Session.ActiveBusID
		if active == "" && v.Perf != nil {
			active = v.Perf.ActiveBusID
		}
		if active != busID {
			return false, fmt.Sprintf("active bus %q, want %q", active, busID)
		}
		return true, ""
	}

	if v.Session.ActiveBusID != busID {
		return false, fmt.Sprintf("session active bus %q, want %q", v.Session.ActiveBusID, busID)
	}
	input, ok := r.lanes.Input(&v.Entities)
	if !ok {
		return false, "input track missing from snapshot"
	}

	var dests []string
	for _, id := range v.Entities.RouteIDsByTrackGUID[input].Sends {
		e, ok := v.Entities.RoutesByID[id]
		if !ok || e.Category != model.RouteSend || e.DestTrackGUID == "" {
			continue
		}
		dests = append(dests, e.DestTrackGUID)
	}
	armed := lanes.Armed(r.lanes, &v.Entities, busID)
	if !sameSet(dests, armed) {
		return false, fmt.Sprintf("input sends [%s], want armed lanes [%s]", strings.Join(dests, ","), strings.Join(armed, ","))
	}
	return true, ""
}

func sameSet(a, b []string) bool {
	as := make(map[string]bool, len(a))
	for _, x := range a {
		as[x] = true
	}
	bs := make(map[string]bool, len(b))
	for _, x := range b {
		bs[x] = true
	}
	if len(as) != len(bs) {
		return false
	}
	for x := range as {
		if !bs[x] {
			return false
		}
	}
	return true
}

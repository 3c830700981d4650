// Package optimistic predicts the local effect of an intent before the remote
// session confirms it.
//
// A prediction is a sparse model.Patch touching only entities the intent can
// plausibly change. When no safe guess exists the builder returns a nil patch
// and the caller simply waits for the next snapshot:
//
//   - selectActiveBus depends on server-side input routing.
//   - syncView changes nothing.
//   - setRoutingMode against a session without lane tracks (reduced shape).
//   - reorderFx with indices outside the current chain.
//
// Build only returns an error for intents that cannot address anything, such
// as a toggle without a target id. Callers treat that as "no prediction" and
// continue dispatching.
package optimistic

import (
	"errors"
	"fmt"

	"github.com/roach88/rfx/internal/lanes"
	"github.com/roach88/rfx/internal/model"
)

// ErrMissingTarget is returned when an intent lacks the id it needs.
var ErrMissingTarget = errors.New("missing target id")

// Builder computes optimistic patches.
type Builder struct {
	Lanes lanes.Resolver
}

// New returns a Builder using r for lane discovery. A nil resolver falls
// back to name-based lanes.
func New(r lanes.Resolver) Builder {
	if r == nil {
		r = lanes.ByName{}
	}
	return Builder{Lanes: r}
}

// Build returns the patch predicted for in against the current view.
func (b Builder) Build(v *model.View, in model.Intent) (*model.Patch, error) {
	switch in.Kind.Canonical() {
	case model.KindToggleRecArm:
		return b.track(in, "trackGuid", model.TrackPatch{RecArm: model.Bool(in.Bool())})
	case model.KindToggleMute:
		return b.track(in, "trackGuid", model.TrackPatch{Mute: model.Bool(in.Bool())})
	case model.KindToggleSolo:
		solo := 0
		if in.Bool() {
			solo = 1
		}
		return b.track(in, "trackGuid", model.TrackPatch{Solo: model.Int(solo)})
	case model.KindSetVol:
		return b.track(in, "trackGuid", model.TrackPatch{Vol: model.Float(in.Number(1))})
	case model.KindSetPan:
		return b.track(in, "trackGuid", model.TrackPatch{Pan: model.Float(in.Number(0))})
	case model.KindToggleFx:
		if in.FxGUID == "" {
			return nil, missing(in, "fxGuid")
		}
		return &model.Patch{FX: map[string]model.FXPatch{
			in.FxGUID: {Enabled: model.Bool(in.Bool())},
		}}, nil
	case model.KindReorderFx:
		return b.reorder(v, in)
	case model.KindSetRoutingMode:
		return b.routingMode(v, in)
	}
	// selectActiveBus, syncView and unknown kinds have no local guess.
	return nil, nil
}

func (b Builder) track(in model.Intent, field string, p model.TrackPatch) (*model.Patch, error) {
	if in.TrackGUID == "" {
		return nil, missing(in, field)
	}
	return &model.Patch{Track: map[string]model.TrackPatch{in.TrackGUID: p}}, nil
}

func (b Builder) reorder(v *model.View, in model.Intent) (*model.Patch, error) {
	if in.TrackGUID == "" {
		return nil, missing(in, "trackGuid")
	}
	if in.FromIndex == nil || in.ToIndex == nil || v == nil {
		return nil, nil
	}
	next, ok := Move(v.Entities.FXOrderByTrackGUID[in.TrackGUID], *in.FromIndex, *in.ToIndex)
	if !ok {
		return nil, nil
	}
	return &model.Patch{FXOrder: map[string][]string{in.TrackGUID: next}}, nil
}

func (b Builder) routingMode(v *model.View, in model.Intent) (*model.Patch, error) {
	if in.BusID == "" {
		return nil, missing(in, "busId")
	}
	if v == nil {
		return nil, nil
	}
	set := b.resolver().Lanes(&v.Entities, in.BusID)
	if set.Empty() {
		return nil, nil
	}
	arm := model.NormalizeMode(in.Mode).Arming()
	patch := map[string]model.TrackPatch{}
	for i, guid := range set.Slots() {
		if guid != "" {
			patch[guid] = model.TrackPatch{RecArm: model.Bool(arm[i])}
		}
	}
	return &model.Patch{Track: patch}, nil
}

func (b Builder) resolver() lanes.Resolver {
	if b.Lanes == nil {
		return lanes.ByName{}
	}
	return b.Lanes
}

func missing(in model.Intent, field string) error {
	return fmt.Errorf("%s: %w: %s", in.Kind, ErrMissingTarget, field)
}

// Move returns a copy of order with the element at from moved to to.
// It reports false when either index is out of range.
func Move(order []string, from, to int) ([]string, bool) {
	if from < 0 || to < 0 || from >= len(order) || to >= len(order) {
		return nil, false
	}
	next := make([]string, 0, len(order))
	next = append(next, order[:from]...)
	next = append(next, order[from+1:]...)
	moved := order[from]
	next = append(next[:to], append([]string{moved}, next[to:]...)...)
	return next, true
}

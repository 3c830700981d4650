package model

import "encoding/json"

// Layer is the overlay contribution of a single op.
type Layer struct {
	OpID  string `json:"opId"`
	Patch *Patch `json:"patch"`
}

// Overlay is the stack of unconfirmed patches layered over the last View.
//
// Layers are kept in dispatch order and each is owned by exactly one op.
// Removing an op's layer removes exactly its claims; slots also claimed by
// another live op keep that op's value. Overlay values are immutable: With and
// Without return new overlays.
type Overlay struct {
	layers []Layer
}

// With returns an overlay with p layered on top under opID.
// A nil or empty patch claims nothing and leaves the overlay unchanged.
func (o Overlay) With(opID string, p *Patch) Overlay {
	if p.Empty() {
		return o
	}
	next := make([]Layer, 0, len(o.layers)+1)
	for _, l := range o.layers {
		if l.OpID != opID {
			next = append(next, l)
		}
	}
	next = append(next, Layer{OpID: opID, Patch: p})
	return Overlay{layers: next}
}

// Without returns an overlay with opID's layer removed.
func (o Overlay) Without(opID string) Overlay {
	if !o.Claims(opID) {
		return o
	}
	next := make([]Layer, 0, len(o.layers)-1)
	for _, l := range o.layers {
		if l.OpID != opID {
			next = append(next, l)
		}
	}
	return Overlay{layers: next}
}

// Claims reports whether opID owns a layer.
func (o Overlay) Claims(opID string) bool {
	for _, l := range o.layers {
		if l.OpID == opID {
			return true
		}
	}
	return false
}

// Len returns the number of live layers.
func (o Overlay) Len() int {
	return len(o.layers)
}

// Layers returns a copy of the layers in dispatch order.
func (o Overlay) Layers() []Layer {
	out := make([]Layer, len(o.layers))
	copy(out, o.layers)
	return out
}

// Track returns the merged patch for a track.
func (o Overlay) Track(guid string) (TrackPatch, bool) {
	var merged TrackPatch
	found := false
	for _, l := range o.layers {
		if p, ok := l.Patch.Track[guid]; ok {
			merged = merged.Merge(p)
			found = true
		}
	}
	return merged, found && !merged.Empty()
}

// FX returns the merged patch for an fx instance.
func (o Overlay) FX(guid string) (FXPatch, bool) {
	var merged FXPatch
	found := false
	for _, l := range o.layers {
		if p, ok := l.Patch.FX[guid]; ok {
			merged = merged.Merge(p)
			found = true
		}
	}
	return merged, found && !merged.Empty()
}

// FXOrder returns the most recent predicted fx order for a track.
func (o Overlay) FXOrder(trackGUID string) ([]string, bool) {
	for i := len(o.layers) - 1; i >= 0; i-- {
		if order, ok := o.layers[i].Patch.FXOrder[trackGUID]; ok {
			return order, true
		}
	}
	return nil, false
}

// Merged flattens the overlay into one sparse patch keyed by entity id.
func (o Overlay) Merged() Patch {
	out := Patch{
		Track:   map[string]TrackPatch{},
		FX:      map[string]FXPatch{},
		FXOrder: map[string][]string{},
	}
	for _, l := range o.layers {
		for guid, p := range l.Patch.Track {
			out.Track[guid] = out.Track[guid].Merge(p)
		}
		for guid, p := range l.Patch.FX {
			out.FX[guid] = out.FX[guid].Merge(p)
		}
		for guid, order := range l.Patch.FXOrder {
			out.FXOrder[guid] = order
		}
	}
	return out
}

// MarshalJSON renders the merged view: {track, fx, fxOrderByTrackGuid}.
func (o Overlay) MarshalJSON() ([]byte, error) {
	m := o.Merged()
	return json.Marshal(struct {
		Track   map[string]TrackPatch `json:"track"`
		FX      map[string]FXPatch    `json:"fx"`
		FXOrder map[string][]string   `json:"fxOrderByTrackGuid"`
	}{m.Track, m.FX, m.FXOrder})
}

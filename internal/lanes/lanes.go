// Package lanes resolves bus lanes and the INPUT track from a session's tracks.
//
// A bus FX_n is implemented in the rich session by up to three lane tracks named
// FX_nA, FX_nB and FX_nC. Their record-arm flags encode the bus routing mode.
// The naming convention is the only link between track names and that meaning,
// so it is kept behind the Resolver interface instead of spread through callers.
package lanes

import "github.com/roach88/rfx/internal/model"

// DefaultInputTrack is the conventional name of the session's input track.
const DefaultInputTrack = "INPUT"

// Set holds the lane track GUIDs for one bus. Empty means unresolved.
type Set struct {
	A string `json:"a,omitempty"`
	B string `json:"b,omitempty"`
	C string `json:"c,omitempty"`
}

// Empty reports whether no lane resolved.
func (s Set) Empty() bool {
	return s.A == "" && s.B == "" && s.C == ""
}

// Slots returns the lanes in A, B, C order.
func (s Set) Slots() [3]string {
	return [3]string{s.A, s.B, s.C}
}

// Letters are the lane suffixes in slot order.
var Letters = [3]string{"A", "B", "C"}

// Resolver maps domain roles onto track GUIDs.
type Resolver interface {
	// Lanes returns the lane tracks of busID.
	Lanes(ents *model.Entities, busID string) Set

	// Input returns the GUID of the session's input track.
	Input(ents *model.Entities) (string, bool)
}

// ByName resolves lanes and the input track by exact track name.
type ByName struct {
	// InputTrack overrides DefaultInputTrack when set.
	InputTrack string
}

// Lanes implements Resolver.
func (r ByName) Lanes(ents *model.Entities, busID string) Set {
	var out Set
	if ents == nil || busID == "" {
		return out
	}
	// Walk in track order so duplicate names resolve deterministically.
	for _, guid := range orderedGUIDs(ents) {
		switch ents.TracksByGUID[guid].Name {
		case busID + "A":
			out.A = guid
		case busID + "B":
			out.B = guid
		case busID + "C":
			out.C = guid
		}
	}
	return out
}

// Input implements Resolver.
func (r ByName) Input(ents *model.Entities) (string, bool) {
	if ents == nil {
		return "", false
	}
	name := r.InputTrack
	if name == "" {
		name = DefaultInputTrack
	}
	for _, guid := range orderedGUIDs(ents) {
		if ents.TracksByGUID[guid].Name == name {
			return guid, true
		}
	}
	return "", false
}

// Armed returns the GUIDs of the lanes of busID whose track is record-armed.
func Armed(r Resolver, ents *model.Entities, busID string) []string {
	var out []string
	for _, guid := range r.Lanes(ents, busID).Slots() {
		if guid == "" {
			continue
		}
		if tr, ok := ents.TracksByGUID[guid]; ok && tr.RecArm {
			out = append(out, guid)
		}
	}
	return out
}

func orderedGUIDs(ents *model.Entities) []string {
	if len(ents.TrackOrder) == len(ents.TracksByGUID) {
		return ents.TrackOrder
	}
	out := make([]string, 0, len(ents.TracksByGUID))
	seen := make(map[string]bool, len(ents.TrackOrder))
	for _, guid := range ents.TrackOrder {
		if _, ok := ents.TracksByGUID[guid]; ok && !seen[guid] {
			out = append(out, guid)
			seen[guid] = true
		}
	}
	for guid := range ents.TracksByGUID {
		if !seen[guid] {
			out = append(out, guid)
		}
	}
	return out
}

package model

// TrackPatch is a sparse set of track field overrides. Nil fields are untouched.
type TrackPatch struct {
	RecArm *bool    `json:"recArm,omitempty"`
	Mute   *bool    `json:"mute,omitempty"`
	Solo   *int     `json:"solo,omitempty"`
	Vol    *float64 `json:"vol,omitempty"`
	Pan    *float64 `json:"pan,omitempty"`
}

// Empty reports whether the patch overrides nothing.
func (p TrackPatch) Empty() bool {
	return p.RecArm == nil && p.Mute == nil && p.Solo == nil && p.Vol == nil && p.Pan == nil
}

// Merge layers q over p; fields set in q win.
func (p TrackPatch) Merge(q TrackPatch) TrackPatch {
	if q.RecArm != nil {
		p.RecArm = q.RecArm
	}
	if q.Mute != nil {
		p.Mute = q.Mute
	}
	if q.Solo != nil {
		p.Solo = q.Solo
	}
	if q.Vol != nil {
		p.Vol = q.Vol
	}
	if q.Pan != nil {
		p.Pan = q.Pan
	}
	return p
}

// Apply returns t with the patch applied.
func (p TrackPatch) Apply(t Track) Track {
	if p.RecArm != nil {
		t.RecArm = *p.RecArm
	}
	if p.Mute != nil {
		t.Mute = *p.Mute
	}
	if p.Solo != nil {
		t.Solo = *p.Solo
	}
	if p.Vol != nil {
		t.Vol = *p.Vol
	}
	if p.Pan != nil {
		t.Pan = *p.Pan
	}
	return t
}

// FXPatch is a sparse set of fx field overrides.
type FXPatch struct {
	Enabled *bool `json:"enabled,omitempty"`
}

// Empty reports whether the patch overrides nothing.
func (p FXPatch) Empty() bool {
	return p.Enabled == nil
}

// Merge layers q over p.
func (p FXPatch) Merge(q FXPatch) FXPatch {
	if q.Enabled != nil {
		p.Enabled = q.Enabled
	}
	return p
}

// Apply returns fx with the patch applied.
func (p FXPatch) Apply(fx FX) FX {
	if p.Enabled != nil {
		fx.Enabled = *p.Enabled
	}
	return fx
}

// Patch is the optimistic change predicted for one intent.
type Patch struct {
	Track   map[string]TrackPatch `json:"track,omitempty"`
	FX      map[string]FXPatch    `json:"fx,omitempty"`
	FXOrder map[string][]string   `json:"fxOrderByTrackGuid,omitempty"`
}

// Empty reports whether the patch touches no entity.
func (p *Patch) Empty() bool {
	return p == nil || (len(p.Track) == 0 && len(p.FX) == 0 && len(p.FXOrder) == 0)
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}

// Float returns a pointer to f.
func Float(f float64) *float64 {
	return &f
}

// FXOrderFor returns the predicted fx order for a track, if the patch has one.
func (p *Patch) FXOrderFor(trackGUID string) ([]string, bool) {
	if p == nil {
		return nil, false
	}
	order, ok := p.FXOrder[trackGUID]
	return order, ok
}

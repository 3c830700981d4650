package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind names an intent and the command it produces.
type Kind string

const (
	KindSelectActiveBus Kind = "selectActiveBus"
	KindSetRoutingMode  Kind = "setRoutingMode"
	KindSyncView        Kind = "syncView"
	KindToggleRecArm    Kind = "toggleRecArm"
	KindToggleMute      Kind = "toggleMute"
	KindToggleSolo      Kind = "toggleSolo"
	KindSetVol          Kind = "setVol"
	KindSetPan          Kind = "setPan"
	KindToggleFx        Kind = "toggleFx"
	KindReorderFx       Kind = "reorderFx"

	// KindSetStateMode is the legacy alias of KindSetRoutingMode.
	KindSetStateMode Kind = "setStateMode"
)

// Canonical folds aliases onto their canonical kind.
func (k Kind) Canonical() Kind {
	if k == KindSetStateMode {
		return KindSetRoutingMode
	}
	return k
}

// Coalescable reports whether rapid repeats of this kind collapse to the latest.
func (k Kind) Coalescable() bool {
	switch k.Canonical() {
	case KindSetVol, KindSetPan:
		return true
	}
	return false
}

// Mode is a bus routing mode.
type Mode string

const (
	ModeLinear   Mode = "linear"
	ModeParallel Mode = "parallel"
	ModeLCR      Mode = "lcr"
)

// NormalizeMode maps any string onto a known mode. Unknown values are linear.
func NormalizeMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeLCR:
		return ModeLCR
	case ModeParallel:
		return ModeParallel
	}
	return ModeLinear
}

// Arming returns the A/B/C lane record-arm flags that implement the mode.
func (m Mode) Arming() [3]bool {
	switch NormalizeMode(string(m)) {
	case ModeLCR:
		return [3]bool{true, true, true}
	case ModeParallel:
		return [3]bool{true, true, false}
	}
	return [3]bool{true, false, false}
}

// Args are the parameters shared by intents and calls.
// Value is a bool for toggles and a number for setVol/setPan.
type Args struct {
	TrackGUID string `json:"trackGuid,omitempty"`
	FxGUID    string `json:"fxGuid,omitempty"`
	BusID     string `json:"busId,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Value     any    `json:"value,omitempty"`
	FromIndex *int   `json:"fromIndex,omitempty"`
	ToIndex   *int   `json:"toIndex,omitempty"`
}

// Bool interprets Value as a truth value. Numbers are true when nonzero.
func (a Args) Bool() bool {
	switch v := a.Value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case float32:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	case json.Number:
		f, err := v.Float64()
		return err == nil && f != 0
	case string:
		return v != ""
	}
	return false
}

// Number interprets Value as a number, falling back to def.
func (a Args) Number(def float64) float64 {
	switch v := a.Value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return def
}

// Intent is a user mutation request.
type Intent struct {
	Kind Kind `json:"kind"`
	Args
}

// UnmarshalJSON accepts either "kind" or "name" as the discriminator.
func (i *Intent) UnmarshalJSON(b []byte) error {
	var wire struct {
		Kind Kind `json:"kind"`
		Name Kind `json:"name"`
		Args
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return fmt.Errorf("decode intent: %w", err)
	}
	i.Kind = wire.Kind
	if i.Kind == "" {
		i.Kind = wire.Name
	}
	i.Args = wire.Args
	return nil
}

// Call returns the command sent to the remote session for this intent.
// The kind is forwarded as given so aliases reach the remote unchanged.
func (i Intent) Call() Call {
	return Call{Name: i.Kind, Args: i.Args}
}

// Call is the one-way command payload: {name, ...params}.
type Call struct {
	Name Kind `json:"name"`
	Args
}

// Intent converts a call back into an intent.
func (c Call) Intent() Intent {
	return Intent{Kind: c.Name, Args: c.Args}
}

// Int returns a pointer to n. Handy for FromIndex/ToIndex literals.
func Int(n int) *int {
	return &n
}

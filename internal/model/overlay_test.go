package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func volPatch(guid string, v float64) *Patch {
	return &Patch{Track: map[string]TrackPatch{guid: {Vol: Float(v)}}}
}

func TestOverlay_WithNilPatchClaimsNothing(t *testing.T) {
	var o Overlay
	o = o.With("op-1", nil)
	assert.Equal(t, 0, o.Len())
	assert.False(t, o.Claims("op-1"))
}

func TestOverlay_LaterLayerWins(t *testing.T) {
	var o Overlay
	o = o.With("op-1", volPatch("T1", 0.2))
	o = o.With("op-2", volPatch("T1", 0.9))

	p, ok := o.Track("T1")
	require.True(t, ok)
	assert.Equal(t, 0.9, *p.Vol)
}

func TestOverlay_WithoutKeepsOtherClaims(t *testing.T) {
	var o Overlay
	o = o.With("mute", &Patch{Track: map[string]TrackPatch{"T1": {Mute: Bool(true)}}})
	o = o.With("vol", volPatch("T1", 0.5))

	o = o.Without("vol")

	p, ok := o.Track("T1")
	require.True(t, ok)
	assert.Nil(t, p.Vol, "released field must not linger")
	require.NotNil(t, p.Mute)
	assert.True(t, *p.Mute)
}

func TestOverlay_WithoutFallsBackToOlderClaim(t *testing.T) {
	var o Overlay
	o = o.With("op-1", volPatch("T1", 0.2))
	o = o.With("op-2", volPatch("T1", 0.9))

	o = o.Without("op-2")

	p, ok := o.Track("T1")
	require.True(t, ok)
	assert.Equal(t, 0.2, *p.Vol)

	o = o.Without("op-1")
	_, ok = o.Track("T1")
	assert.False(t, ok)
	assert.Equal(t, 0, o.Len())
}

func TestOverlay_IsImmutable(t *testing.T) {
	var base Overlay
	base = base.With("op-1", volPatch("T1", 0.2))
	derived := base.With("op-2", volPatch("T2", 0.3))

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, derived.Len())
	_, ok := base.Track("T2")
	assert.False(t, ok)
}

func TestOverlay_FXOrderLatestWins(t *testing.T) {
	var o Overlay
	o = o.With("a", &Patch{FXOrder: map[string][]string{"T1": {"x", "y"}}})
	o = o.With("b", &Patch{FXOrder: map[string][]string{"T1": {"y", "x"}}})

	order, ok := o.FXOrder("T1")
	require.True(t, ok)
	assert.Equal(t, []string{"y", "x"}, order)
}

func TestOverlay_MarshalJSON(t *testing.T) {
	var o Overlay
	o = o.With("a", &Patch{FX: map[string]FXPatch{"F1": {Enabled: Bool(false)}}})

	b, err := json.Marshal(o)
	require.NoError(t, err)
	assert.JSONEq(t, `{"track":{},"fx":{"F1":{"enabled":false}},"fxOrderByTrackGuid":{}}`, string(b))
}

func TestTrackPatch_Apply(t *testing.T) {
	base := Track{GUID: "T1", Vol: 1, Pan: 0, Solo: 0}
	p := TrackPatch{Vol: Float(0.5), Solo: Int(1)}

	got := p.Apply(base)

	assert.Equal(t, 0.5, got.Vol)
	assert.Equal(t, 1, got.Solo)
	assert.Equal(t, 1.0, base.Vol, "apply must not touch the input")
}

package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rfx/internal/model"
)

const minimal = `
name: minimal
description: "smallest valid scenario"
steps:
  - tick: true
assertions:
  - type: overlay_empty
`

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimal))
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
	assert.Empty(t, s.Remote)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, "tick", s.Steps[0].Action())
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "name: x\ndescription: d\nstep: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			yaml: "description: d\nsteps: [{tick: true}]\nassertions: [{type: overlay_empty}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: x\nsteps: [{tick: true}]\nassertions: [{type: overlay_empty}]\n",
			want: "description is required",
		},
		{
			name: "unknown remote",
			yaml: "name: x\ndescription: d\nremote: carrier\nsteps: [{tick: true}]\nassertions: [{type: overlay_empty}]\n",
			want: `unknown remote "carrier"`,
		},
		{
			name: "no steps",
			yaml: "name: x\ndescription: d\nassertions: [{type: overlay_empty}]\n",
			want: "steps list is required",
		},
		{
			name: "no assertions",
			yaml: "name: x\ndescription: d\nsteps: [{tick: true}]\n",
			want: "assertions list is required",
		},
		{
			name: "empty step",
			yaml: "name: x\ndescription: d\nsteps: [{}]\nassertions: [{type: overlay_empty}]\n",
			want: "steps[0]: no action",
		},
		{
			name: "two actions",
			yaml: "name: x\ndescription: d\nsteps: [{tick: true, advance: 1s}]\nassertions: [{type: overlay_empty}]\n",
			want: "exactly one action allowed, got advance+tick",
		},
		{
			name: "expect without dispatch",
			yaml: "name: x\ndescription: d\nsteps: [{tick: true, expect: acked}]\nassertions: [{type: overlay_empty}]\n",
			want: "expect is only valid on dispatch",
		},
		{
			name: "bad expect",
			yaml: "name: x\ndescription: d\nsteps: [{dispatch: {kind: syncView}, expect: done}]\nassertions: [{type: overlay_empty}]\n",
			want: `unknown status "done"`,
		},
		{
			name: "bad duration",
			yaml: "name: x\ndescription: d\nsteps: [{advance: soon}]\nassertions: [{type: overlay_empty}]\n",
			want: "advance",
		},
		{
			name: "negative duration",
			yaml: "name: x\ndescription: d\nsteps: [{advance: -1s}]\nassertions: [{type: overlay_empty}]\n",
			want: "must not be negative",
		},
		{
			name: "dispatch without kind",
			yaml: "name: x\ndescription: d\nsteps: [{dispatch: {trackGuid: T1}}]\nassertions: [{type: overlay_empty}]\n",
			want: "kind is required",
		},
		{
			name: "unknown assertion",
			yaml: "name: x\ndescription: d\nsteps: [{tick: true}]\nassertions: [{type: vibes}]\n",
			want: `unknown assertion type "vibes"`,
		},
		{
			name: "op_status without op",
			yaml: "name: x\ndescription: d\nsteps: [{tick: true}]\nassertions: [{type: op_status, status: acked}]\n",
			want: "op is required",
		},
		{
			name: "track with unknown field",
			yaml: "name: x\ndescription: d\nsteps: [{tick: true}]\nassertions: [{type: track, guid: T1, field: width, value: 1}]\n",
			want: `unknown track field "width"`,
		},
		{
			name: "event_order without events",
			yaml: "name: x\ndescription: d\nsteps: [{tick: true}]\nassertions: [{type: event_order}]\n",
			want: "events list is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadDir_SortedAndStrict(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("b.yaml", "name: b\n"+minimal[len("\nname: minimal\n"):])
	write("a.yml", "name: a\n"+minimal[len("\nname: minimal\n"):])
	write("notes.txt", "ignored")

	scenarios, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "a", scenarios[0].Name)
	assert.Equal(t, "b", scenarios[1].Name)

	write("c.yaml", "name: c\n")
	_, err = LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c.yaml")
}

func TestDecodeIntent_AcceptsNameAlias(t *testing.T) {
	in, err := decodeIntent(map[string]any{"name": "setStateMode", "busId": "FX_1", "mode": "lcr"})
	require.NoError(t, err)
	assert.Equal(t, model.KindSetStateMode, in.Kind)
	assert.Equal(t, "FX_1", in.BusID)
}

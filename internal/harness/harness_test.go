package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rfx/internal/model"
)

func TestRun_Scenarios(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRunWithGolden_VolumeConfirm(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "volume_confirm.yaml"))
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass)
}

func TestRun_IsDeterministic(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "volume_collapse.yaml"))
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := MarshalTrace(Snapshot(s.Name, first))
	require.NoError(t, err)
	b, err := MarshalTrace(Snapshot(s.Name, second))
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_ReportsFailedExpectation(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong_expect
description: "expects acked from a remote that never answers"
steps:
  - dispatch: {kind: toggleSolo, trackGuid: T1, value: true}
    expect: acked
assertions:
  - type: pending_count
    count: 1
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected acked, got sent")
}

func TestRun_ReportsFailedAssertion(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong_bus
description: "asserts a bus that was never selected"
remote: vm
steps:
  - tick: true
assertions:
  - type: active_bus
    bus: FX_4
  - type: op_status
    op: op-9
    status: acked
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], `expected FX_4, got "FX_1"`)
	assert.Contains(t, result.Errors[1], "unknown op")
}

func TestRun_FixedOpIDs(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: fixed_ids
description: "op ids come from op_ids"
op_ids: [first, second]
remote: none
steps:
  - dispatch: {kind: toggleMute, trackGuid: T1, value: true}
  - dispatch: {kind: toggleMute, trackGuid: T1, value: false}
assertions:
  - type: op_status
    op: second
    status: failed
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
	assert.Equal(t, model.StatusFailed, result.Ops["first"].Status)
}

func TestRun_ApplyNeedsSession(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: apply_on_manual
description: "apply only works with a session remote"
steps:
  - apply: false
assertions:
  - type: overlay_empty
`))
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply needs a session remote")
}

func TestRun_BootEmitsSnapshot(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: boot
description: "boot bumps seq and the store ingests it"
remote: session
buses: 1
steps:
  - boot: true
assertions:
  - type: event_count
    event: snapshot:received
    count: 2
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}

package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rfx/internal/journal"
	"github.com/roach88/rfx/internal/model"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// seedJournal writes two ops and their events, then closes the journal.
func seedJournal(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rfx.db")
	j, err := journal.Open(path)
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	events := []model.Event{
		{Seq: 1, At: t0, Kind: model.EventIntentReceived, OpID: "op-1"},
		{Seq: 2, At: t0, Kind: model.EventSyscallSent, OpID: "op-1"},
		{Seq: 3, At: t0, Kind: model.EventIntentReceived, OpID: "op-2"},
		{Seq: 4, At: t0, Kind: model.EventSyscallError, OpID: "op-2", Data: map[string]string{"error": "unknown track: {X}"}},
		{Seq: 5, At: t0.Add(40 * time.Millisecond), Kind: model.EventSnapshotReceived},
		{Seq: 6, At: t0.Add(40 * time.Millisecond), Kind: model.EventReconcileTransition},
	}
	for _, e := range events {
		require.NoError(t, j.WriteEvent(ctx, e))
	}

	ops := []model.PendingOp{
		{
			ID:         "op-1",
			Kind:       model.KindSetVol,
			Intent:     model.Intent{Kind: model.KindSetVol, Args: model.Args{TrackGUID: "{T1}", Value: 0.5}},
			Status:     model.StatusAcked,
			AckSeq:     7,
			CreatedAt:  t0,
			SentAt:     t0,
			FinishedAt: t0.Add(40 * time.Millisecond),
		},
		{
			ID:         "op-2",
			Kind:       model.KindToggleMute,
			Intent:     model.Intent{Kind: model.KindToggleMute, Args: model.Args{TrackGUID: "{X}", Value: true}},
			Status:     model.StatusFailed,
			Error:      "unknown track: {X}",
			CreatedAt:  t0.Add(time.Millisecond),
			SentAt:     t0.Add(time.Millisecond),
			FinishedAt: t0.Add(time.Millisecond),
		},
	}
	for _, op := range ops {
		require.NoError(t, j.WriteOp(ctx, op))
	}
	return path
}

func TestTraceCommand_RequiresDB(t *testing.T) {
	_, err := execute(t, nil, "trace")
	require.Error(t, err)
}

func TestTraceCommand_MissingJournal(t *testing.T) {
	_, err := execute(t, nil, "trace", "--db", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTraceCommand_Overview(t *testing.T) {
	db := seedJournal(t)

	out, err := execute(t, nil, "trace", "--db", db)
	require.NoError(t, err)

	assert.Contains(t, out, "[1] 12:00:00 intent:received op-1")
	assert.Contains(t, out, "[6] 12:00:00 reconcile:transitions")
	assert.Contains(t, out, "✓ op-1 setVol acked {T1} ackSeq=7")
	assert.Contains(t, out, "✗ op-2 toggleMute failed {X}: unknown track: {X}")
	assert.Contains(t, out, "Stats: 6 events, 1 acked, 1 failed, 0 timeout, 0 superseded")
}

func TestTraceCommand_SingleOpJSON(t *testing.T) {
	db := seedJournal(t)

	out, err := execute(t, nil, "--format", "json", "trace", "--db", db, "--op", "op-2")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Data.Op)
	assert.Equal(t, model.StatusFailed, resp.Data.Op.Status)
	require.Len(t, resp.Data.Timeline, 2)
	assert.Equal(t, model.EventSyscallError, resp.Data.Timeline[1].Kind)
	assert.Empty(t, resp.Data.Ops)
	assert.Equal(t, 1, resp.Data.Stats.ByStatus["failed"])
}

func TestTraceCommand_KindAndLimit(t *testing.T) {
	db := seedJournal(t)

	out, err := execute(t, nil, "--format", "json", "trace", "--db", db, "--kind", model.EventIntentReceived, "--limit", "1")
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Timeline, 1)
	assert.Equal(t, "op-1", resp.Data.Timeline[0].OpID)
}

func TestTraceCommand_UnknownOp(t *testing.T) {
	db := seedJournal(t)

	out, err := execute(t, nil, "trace", "--db", db, "--op", "op-404")
	require.NoError(t, err)
	assert.Contains(t, out, "No events found for op: op-404")
}

package journal

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rfx/internal/engine"
	"github.com/roach88/rfx/internal/model"
)

func TestRecorder_PersistsStoreActivity(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	store := engine.NewStore(
		engine.WithIDGenerator(engine.NewFixedGenerator("op-1")),
		engine.WithObserver(NewRecorder(j, nil)),
	)

	// No transport: the op fails immediately.
	op := store.DispatchIntent(ctx, model.Intent{Kind: model.KindToggleMute, Args: model.Args{TrackGUID: "T1"}})
	require.Equal(t, model.StatusFailed, op.Status)

	events, err := j.ReadEvents(ctx, EventFilter{OpID: "op-1"})
	require.NoError(t, err)
	require.Len(t, events, len(store.Events()))
	assert.Equal(t, model.EventIntentReceived, events[0].Kind)
	assert.Equal(t, model.EventSyscallError, events[len(events)-1].Kind)

	got, ok, err := j.ReadOp(ctx, "op-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, engine.ErrNoTransport, got.Error)
}

func TestRecorder_LogsWriteFailures(t *testing.T) {
	j := createTestJournal(t)
	var buf bytes.Buffer
	rec := NewRecorder(j, slog.New(slog.NewTextHandler(&buf, nil)))

	rec.OpFinished(model.PendingOp{ID: "op-1", Status: model.StatusSent})

	assert.Contains(t, buf.String(), "journal write failed")
	assert.Contains(t, buf.String(), "op=op-1")
}

package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rfx/internal/engine"
	"github.com/roach88/rfx/internal/model"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestRecorder_OpLifecycle(t *testing.T) {
	r := New()

	r.OpDispatched(model.PendingOp{ID: "a", Kind: model.KindSetVol})
	r.OpDispatched(model.PendingOp{ID: "b", Kind: model.KindSetStateMode})
	assert.Equal(t, 1.0, testutil.ToFloat64(r.dispatched.WithLabelValues("setVol")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.dispatched.WithLabelValues("setRoutingMode")), "aliases fold onto the canonical kind")
	assert.Equal(t, 2.0, testutil.ToFloat64(r.active))

	r.OpFinished(model.PendingOp{
		ID:         "a",
		Kind:       model.KindSetVol,
		Status:     model.StatusAcked,
		SentAt:     t0,
		FinishedAt: t0.Add(40 * time.Millisecond),
	})
	r.OpFinished(model.PendingOp{ID: "b", Kind: model.KindSetStateMode, Status: model.StatusTimeout, SentAt: t0})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.finalized.WithLabelValues("setVol", "acked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.finalized.WithLabelValues("setRoutingMode", "timeout")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.active))
	assert.Equal(t, 1, testutil.CollectAndCount(r.ackLatency), "only acked ops observe latency")
}

func TestRecorder_Snapshots(t *testing.T) {
	r := New()

	r.SnapshotIngested(&model.View{Shape: model.ShapeRich}, nil)
	r.SnapshotIngested(&model.View{Shape: model.ShapeReduced}, nil)
	r.SnapshotIngested(&model.View{Shape: model.ShapeReduced}, nil)
	r.SnapshotIngested(nil, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.snapshots.WithLabelValues("rich")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.snapshots.WithLabelValues("reduced")))
}

func TestRecorder_WiredIntoStore(t *testing.T) {
	r := New()
	store := engine.NewStore(engine.WithObserver(r))

	op := store.DispatchIntent(context.Background(), model.Intent{Kind: model.KindToggleMute, Args: model.Args{TrackGUID: "T1"}})
	require.Equal(t, model.StatusFailed, op.Status)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.dispatched.WithLabelValues("toggleMute")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.finalized.WithLabelValues("toggleMute", "failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.active))
	assert.Equal(t, float64(len(store.Events())), testutil.ToFloat64(r.events))
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.OpDispatched(model.PendingOp{ID: "a", Kind: model.KindSetPan})

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `rfx_ops_dispatched_total{kind="setPan"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

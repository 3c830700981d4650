package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rfx/internal/model"
	"github.com/roach88/rfx/internal/testutil"
	"github.com/roach88/rfx/internal/transport"
)

func runLoop(t *testing.T, l *Loop) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("loop did not stop")
		}
	}
}

func TestLoop_DrainSeedsFromTransport(t *testing.T) {
	vm := transport.NewMockVM()
	defer vm.Close()
	s := NewStore(WithIDGenerator(&SequenceGenerator{}))
	l := NewLoop(s)

	l.Attach(vm)
	assert.Equal(t, 1, l.Pending())
	assert.Equal(t, 1, l.Drain())

	assert.Equal(t, int64(1), s.Snapshot().Seq)
	assert.Equal(t, "FX_1", s.ActiveBusID())
	assert.Equal(t, model.Meter{L: 0.1, R: 0.12}, s.Perf().MetersByID["FX_1"], "meters seeded from the snapshot")
}

func TestLoop_SnapshotsResolveOps(t *testing.T) {
	vm := transport.NewMockVM()
	defer vm.Close()
	s := NewStore(WithIDGenerator(&SequenceGenerator{}))
	l := NewLoop(s)
	l.Attach(vm)
	defer l.Detach()
	stop := runLoop(t, l)
	defer stop()

	require.Eventually(t, func() bool { return s.Snapshot().Seq == 1 }, 2*time.Second, 5*time.Millisecond)

	op := s.DispatchIntent(context.Background(), model.Intent{Kind: model.KindSetStateMode, Args: model.Args{BusID: "FX_1", Mode: "lcr"}})
	require.NotEqual(t, model.StatusFailed, op.Status)

	require.Eventually(t, func() bool {
		got, ok := s.Op(op.ID)
		return ok && got.Status == model.StatusAcked
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, model.ModeLCR, s.Perf().BusModesByID["FX_1"])
}

func TestLoop_MetersFlowWithoutReconciling(t *testing.T) {
	vm := transport.NewMockVM(transport.WithSeed(3))
	defer vm.Close()
	s := NewStore()
	l := NewLoop(s)
	l.Attach(vm)
	l.Drain()

	vm.TickMeters()
	assert.Equal(t, 1, l.Drain())

	assert.NotEqual(t, model.Meter{L: 0.1, R: 0.12}, s.Perf().MetersByID["FX_1"])
	assert.Equal(t, int64(1), s.Snapshot().Seq)
}

func TestLoop_TickFiresTimeouts(t *testing.T) {
	clock := testutil.NewManualClock(time.Time{})
	sess := transport.NewMockSession(1)
	sess.SetApply(false)
	s := newTestStore(clock)
	l := NewLoop(s, WithTick(time.Millisecond))
	l.Attach(sess)
	l.Drain()
	stop := runLoop(t, l)
	defer stop()

	op := s.DispatchIntent(context.Background(), model.Intent{Kind: model.KindToggleMute, Args: model.Args{TrackGUID: sess.TrackGUID("INPUT"), Value: true}})
	clock.Advance(9 * time.Second)

	require.Eventually(t, func() bool {
		got, ok := s.Op(op.ID)
		return ok && got.Status == model.StatusTimeout
	}, 2*time.Second, 5*time.Millisecond)
}

func TestLoop_DetachStopsDelivery(t *testing.T) {
	vm := transport.NewMockVM()
	defer vm.Close()
	s := NewStore()
	l := NewLoop(s)
	l.Attach(vm)
	l.Drain()

	l.Detach()
	require.NoError(t, vm.Syscall(context.Background(), model.Call{Name: model.KindSyncView}))

	assert.Equal(t, 0, l.Pending())
	assert.Nil(t, s.Transport())
	op := s.DispatchIntent(context.Background(), model.Intent{Kind: model.KindSyncView})
	assert.Equal(t, model.StatusFailed, op.Status)
}

func TestLoop_StopDrainsThenReturns(t *testing.T) {
	s := NewStore()
	l := NewLoop(s)
	l.queue.Enqueue(Event{Type: EventTypeSnapshot, Snapshot: testutil.RichSnapshot(4)})
	l.queue.Enqueue(Event{Type: EventTypeMeters})
	l.Stop()

	err := l.Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, int64(4), s.Snapshot().Seq)
}

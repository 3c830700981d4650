package engine

import (
	"context"
	"sync"

	"github.com/roach88/rfx/internal/model"
	"github.com/roach88/rfx/internal/testutil"
	"github.com/roach88/rfx/internal/transport"
)

// fakeTransport records calls and answers them with err.
type fakeTransport struct {
	mu    sync.Mutex
	calls []model.Call
	err   error

	panicWith any
}

func (f *fakeTransport) Boot(context.Context) (transport.Boot, error) { return transport.Boot{}, nil }
func (f *fakeTransport) Snapshot() model.RawSnapshot { return nil }
func (f *fakeTransport) Subscribe(func(model.RawSnapshot)) func() { return func() {} }

func (f *fakeTransport) Syscall(_ context.Context, call model.Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	return f.err
}

func (f *fakeTransport) Calls() []model.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Call(nil), f.calls...)
}

// recordingObserver keeps every notification in order.
type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingObserver) add(s string) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
}

func (r *recordingObserver) OpDispatched(op model.PendingOp) { r.add("dispatched " + op.ID) }
func (r *recordingObserver) OpFinished(op model.PendingOp) {
	r.add("finished " + op.ID + " " + string(op.Status))
}
func (r *recordingObserver) SnapshotIngested(v *model.View, _ []model.Transition) { r.add("snapshot") }
func (r *recordingObserver) EventLogged(model.Event) {}

func (r *recordingObserver) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newTestStore(clock *testutil.ManualClock, opts ...StoreOption) *Store {
	base := []StoreOption{
		WithNow(clock.Now),
		WithIDGenerator(&SequenceGenerator{}),
	}
	return NewStore(append(base, opts...)...)
}

func setVol(guid string, v float64) model.Intent {
	return model.Intent{Kind: model.KindSetVol, Args: model.Args{TrackGUID: guid, Value: v}}
}

func eventKinds(es []model.Event) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.Kind)
	}
	return out
}

package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/rfx/internal/engine"
	"github.com/roach88/rfx/internal/model"
	"github.com/roach88/rfx/internal/reconcile"
	"github.com/roach88/rfx/internal/testutil"
	"github.com/roach88/rfx/internal/transport"
)

// Harness holds the per-scenario fixtures.
type Harness struct {
	store  *engine.Store
	loop   *engine.Loop
	remote transport.Transport
	clock  *testutil.ManualClock
	trace  *traceRecorder
	logger *slog.Logger

	dispatched []string
}

// Run executes a scenario and returns the result.
//
// Each scenario gets a fresh store, a manual clock at testutil.Epoch and
// deterministic op ids, so identical scenarios produce identical traces.
//
// A non-nil error means the scenario could not run at all. Failed
// expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}
	defer h.close()

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, step.Action(), err)
		}
	}

	for _, id := range h.dispatched {
		if op, ok := h.store.Op(id); ok {
			result.Ops[id] = op
		}
	}
	result.Trace = h.trace.events()

	for i, a := range scenario.Assertions {
		if err := h.evaluate(a, result); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return result, nil
}

func newHarness(scenario *Scenario) (*Harness, error) {
	clock := testutil.NewManualClock(time.Time{})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var ids engine.IDGenerator = &engine.SequenceGenerator{Prefix: "op-"}
	if len(scenario.OpIDs) > 0 {
		ids = engine.NewFixedGenerator(scenario.OpIDs...)
	}

	ropts := []reconcile.Option{reconcile.WithNow(clock.Now)}
	if scenario.TimeoutMs > 0 {
		ropts = append(ropts, reconcile.WithTimeout(time.Duration(scenario.TimeoutMs)*time.Millisecond))
	}

	h := &Harness{
		clock:  clock,
		trace:  &traceRecorder{start: clock.Now()},
		logger: logger,
	}
	h.store = engine.NewStore(
		engine.WithIDGenerator(ids),
		engine.WithNow(clock.Now),
		engine.WithReconciler(reconcile.New(ropts...)),
		engine.WithLogger(logger),
		engine.WithObserver(h.trace),
	)
	h.loop = engine.NewLoop(h.store, engine.WithLoopLogger(logger))

	buses := scenario.Buses
	if buses <= 0 {
		buses = 2
	}
	switch scenario.Remote {
	case "", RemoteManual:
		h.remote = &manualRemote{}
	case RemoteSession:
		h.remote = transport.NewMockSession(buses, transport.WithMockClock(clock.Now))
	case RemoteVM:
		h.remote = transport.NewMockVM(transport.WithMockClock(clock.Now))
	case RemoteNone:
	default:
		return nil, fmt.Errorf("unknown remote %q", scenario.Remote)
	}
	if h.remote != nil {
		h.loop.Attach(h.remote)
		h.loop.Drain()
	}
	return h, nil
}

func (h *Harness) close() {
	h.loop.Detach()
	if c, ok := h.remote.(io.Closer); ok {
		c.Close()
	}
}

func (h *Harness) execute(ctx context.Context, index int, step Step, result *Result) error {
	defer h.loop.Drain()

	switch {
	case step.Snapshot != nil:
		var raw model.RawSnapshot
		if err := jsonRoundTrip(step.Snapshot, &raw); err != nil {
			return err
		}
		h.store.IngestSnapshot(raw)

	case step.Dispatch != nil:
		in, err := decodeIntent(step.Dispatch)
		if err != nil {
			return err
		}
		op := h.store.DispatchIntent(ctx, in)
		h.dispatched = append(h.dispatched, op.ID)
		if step.Expect == "" {
			return nil
		}
		h.loop.Drain()
		if got, _ := h.store.Op(op.ID); string(got.Status) != step.Expect {
			result.AddError(fmt.Sprintf("steps[%d]: %s %s: expected %s, got %s (%s)",
				index, in.Kind, op.ID, step.Expect, got.Status, got.Error))
		}

	case step.Meters != nil:
		var frame model.MeterFrame
		if err := jsonRoundTrip(step.Meters, &frame); err != nil {
			return err
		}
		h.store.IngestMeters(frame)

	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		h.clock.Advance(d)

	case step.Tick:
		h.store.Tick()

	case step.Apply != nil:
		s, ok := h.remote.(*transport.MockSession)
		if !ok {
			return fmt.Errorf("apply needs a session remote")
		}
		s.SetApply(*step.Apply)

	case step.Boot:
		if h.remote == nil {
			return fmt.Errorf("boot needs a remote")
		}
		if _, err := h.remote.Boot(ctx); err != nil {
			result.AddError(fmt.Sprintf("steps[%d]: boot: %v", index, err))
		}
	}
	return nil
}

// traceRecorder captures every logged event, unbounded.
type traceRecorder struct {
	engine.NopObserver

	start time.Time

	mu  sync.Mutex
	out []TraceEvent
}

func (r *traceRecorder) EventLogged(e model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, TraceEvent{
		Seq:  e.Seq,
		At:   e.At.Sub(r.start).Milliseconds(),
		Kind: e.Kind,
		OpID: e.OpID,
		Data: e.Data,
	})
}

func (r *traceRecorder) events() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TraceEvent{}, r.out...)
}

// manualRemote accepts every call and never emits. Snapshots come from
// snapshot steps.
type manualRemote struct {
	mu    sync.Mutex
	calls []model.Call
}

func (m *manualRemote) Boot(context.Context) (transport.Boot, error) { return transport.Boot{}, nil }

func (m *manualRemote) Snapshot() model.RawSnapshot { return nil }

func (m *manualRemote) Subscribe(func(model.RawSnapshot)) func() { return func() {} }

func (m *manualRemote) Syscall(_ context.Context, call model.Call) error {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
	return nil
}

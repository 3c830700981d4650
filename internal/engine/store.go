package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/rfx/internal/lanes"
	"github.com/roach88/rfx/internal/model"
	"github.com/roach88/rfx/internal/normalize"
	"github.com/roach88/rfx/internal/optimistic"
	"github.com/roach88/rfx/internal/reconcile"
	"github.com/roach88/rfx/internal/transport"
)

// Store is the single-writer container for session state.
//
// All methods are safe for concurrent use. None of them panic on bad input:
// outcomes are reported through PendingOp values and LastError.
type Store struct {
	mu sync.Mutex

	state      State
	transport  transport.Transport
	builder    optimistic.Builder
	reconciler *reconcile.Reconciler
	ids        IDGenerator
	now        func() time.Time
	clock      *Clock
	log        *eventLog
	history    *history
	lastErr    error
	logger     *slog.Logger
	observers  []Observer
}

// StoreOption configures a Store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	transport   transport.Transport
	lanes       lanes.Resolver
	reconciler  *reconcile.Reconciler
	ids         IDGenerator
	now         func() time.Time
	clock       *Clock
	logCapacity int
	logger      *slog.Logger
	observers   []Observer
}

// WithTransport wires the transport used by DispatchIntent.
func WithTransport(t transport.Transport) StoreOption {
	return func(c *storeConfig) { c.transport = t }
}

// WithLanes sets the lane resolver shared by builder and reconciler.
// Ignored when WithReconciler is also given.
func WithLanes(r lanes.Resolver) StoreOption {
	return func(c *storeConfig) { c.lanes = r }
}

// WithReconciler overrides the default reconciler.
func WithReconciler(r *reconcile.Reconciler) StoreOption {
	return func(c *storeConfig) { c.reconciler = r }
}

// WithIDGenerator sets the op id source. Defaults to UUIDv7Generator.
func WithIDGenerator(g IDGenerator) StoreOption {
	return func(c *storeConfig) { c.ids = g }
}

// WithNow sets the wall clock for op timestamps. The default reconciler
// shares it so timeouts follow the same clock.
func WithNow(now func() time.Time) StoreOption {
	return func(c *storeConfig) { c.now = now }
}

// WithClock sets the logical clock for event log entries.
func WithClock(clock *Clock) StoreOption {
	return func(c *storeConfig) { c.clock = clock }
}

// WithEventLogCapacity bounds the event log and the finished-op history.
func WithEventLogCapacity(n int) StoreOption {
	return func(c *storeConfig) { c.logCapacity = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(c *storeConfig) { c.logger = l }
}

// WithObserver adds an observer.
func WithObserver(o Observer) StoreOption {
	return func(c *storeConfig) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	cfg := storeConfig{
		lanes:       lanes.ByName{},
		ids:         UUIDv7Generator{},
		now:         time.Now,
		logCapacity: DefaultEventLogCapacity,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.clock == nil {
		cfg.clock = NewClock()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.reconciler == nil {
		cfg.reconciler = reconcile.New(reconcile.WithLanes(cfg.lanes), reconcile.WithNow(cfg.now))
	}
	return &Store{
		state:      State{View: normalize.Normalize(nil)},
		transport:  cfg.transport,
		builder:    optimistic.New(cfg.lanes),
		reconciler: cfg.reconciler,
		ids:        cfg.ids,
		now:        cfg.now,
		clock:      cfg.clock,
		log:        newEventLog(cfg.logCapacity),
		history:    newHistory(cfg.logCapacity),
		logger:     cfg.logger,
		observers:  cfg.observers,
	}
}

// notifier collects observer calls made while the lock is held so they
// can run after it is released.
type notifier []func(Observer)

func (s *Store) flush(n notifier) {
	if len(n) == 0 {
		return
	}
	for _, o := range s.observers {
		for _, fn := range n {
			fn(o)
		}
	}
}

// logEvent appends to the event log. Caller holds s.mu.
func (s *Store) logEvent(n *notifier, kind, opID string, data any) {
	e := model.Event{
		Seq:  s.clock.Next(),
		At:   s.now(),
		Kind: kind,
		OpID: opID,
		Data: data,
	}
	s.log.append(e)
	*n = append(*n, func(o Observer) { o.EventLogged(e) })
}

// finished records terminal ops. Caller holds s.mu.
func (s *Store) finished(n *notifier, ops ...model.PendingOp) {
	for _, op := range ops {
		s.history.add(op)
		*n = append(*n, func(o Observer) { o.OpFinished(op) })
	}
}

// SetTransport swaps the transport. Nil detaches it; later dispatches fail
// with "no transport".
func (s *Store) SetTransport(t transport.Transport) {
	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()
}

// Transport returns the wired transport, or nil.
func (s *Store) Transport() transport.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// Reconciler exposes the reconciler so callers can register verifiers.
func (s *Store) Reconciler() *reconcile.Reconciler {
	return s.reconciler
}

// DispatchIntent records in as a new op, layers its optimistic patch and
// sends it through the transport. The returned op reflects its status when
// DispatchIntent returns: failed when there is no transport or the call was
// rejected, sent otherwise (or already acked if a confirming snapshot raced
// the call's return).
func (s *Store) DispatchIntent(ctx context.Context, in model.Intent) model.PendingOp {
	var n notifier

	s.mu.Lock()
	now := s.now()
	op := model.PendingOp{
		ID:        s.ids.Generate(),
		Kind:      in.Kind,
		Intent:    in,
		Status:    model.StatusQueued,
		CreatedAt: now,
	}
	s.logEvent(&n, model.EventIntentReceived, op.ID, in)

	patch, err := s.build(in)
	if err != nil {
		s.lastErr = NewBuildError(op, err)
		s.logger.Warn("optimistic build failed", "op", op.ID, "kind", in.Kind, "err", err)
		s.logEvent(&n, model.EventBuildFailed, op.ID, map[string]string{"error": err.Error()})
	}
	op.Patch = patch

	s.state = Register(s.state, op)
	n = append(n, func(o Observer) { o.OpDispatched(op) })
	var applied any
	if patch != nil {
		applied = patch
	}
	s.logEvent(&n, model.EventOptimisticApplied, op.ID, applied)

	tr := s.transport
	if tr == nil {
		var done model.PendingOp
		s.state, done, _ = Finish(s.state, op.ID, model.StatusFailed, ErrNoTransport, now)
		s.lastErr = ErrorOf(done)
		s.finished(&n, done)
		s.logEvent(&n, model.EventSyscallError, op.ID, map[string]string{"error": ErrNoTransport})
		s.mu.Unlock()
		s.flush(n)
		return done
	}

	s.state, op, _ = MarkSent(s.state, op.ID, now)
	s.logEvent(&n, model.EventSyscallSent, op.ID, in.Call())
	s.mu.Unlock()
	s.flush(n)
	n = nil

	callErr := syscall(ctx, tr, in.Call())

	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		s.flush(n)
	}()
	if callErr != nil {
		s.logger.Warn("syscall failed", "op", op.ID, "kind", in.Kind, "err", callErr)
		s.logEvent(&n, model.EventSyscallError, op.ID, map[string]string{"error": callErr.Error()})
		next, done, ok := Finish(s.state, op.ID, model.StatusFailed, callErr.Error(), s.now())
		if ok {
			s.state = next
			s.lastErr = NewRejectedError(done, callErr)
			s.finished(&n, done)
			return done
		}
	}
	return s.lookup(op.ID, op)
}

// build runs the optimistic builder, turning panics into errors.
// Caller holds s.mu.
func (s *Store) build(in model.Intent) (p *model.Patch, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("builder panic: %v", r)
		}
	}()
	return s.builder.Build(s.state.View, in)
}

// syscall invokes t, turning panics into errors.
func syscall(ctx context.Context, t transport.Transport, call model.Call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("syscall panic: %v", r)
		}
	}()
	return t.Syscall(ctx, call)
}

// lookup returns the current record of an op. Caller holds s.mu.
func (s *Store) lookup(id string, fallback model.PendingOp) model.PendingOp {
	if op, ok := s.state.Ledger.Get(id); ok {
		return op
	}
	if op, ok := s.history.get(id); ok {
		return op
	}
	return fallback
}

// IngestSnapshot normalizes raw, reconciles the ledger against it and
// commits it. It returns the committed view.
func (s *Store) IngestSnapshot(raw model.RawSnapshot) *model.View {
	v := normalize.Normalize(raw)
	var n notifier

	s.mu.Lock()
	prevSeq := s.state.Snapshot.Seq
	next, res := Ingest(s.state, v, s.reconciler, s.now())
	s.state = next

	if v.Snapshot.Seq != 0 && v.Snapshot.Seq != prevSeq {
		s.logEvent(&n, model.EventSnapshotReceived, "", map[string]any{
			"seq":    v.Snapshot.Seq,
			"schema": v.Snapshot.Schema,
			"shape":  v.Shape,
		})
	}
	s.recordTransitions(&n, res)
	n = append(n, func(o Observer) { o.SnapshotIngested(v, res.Transitions) })
	s.mu.Unlock()

	s.flush(n)
	return v
}

// recordTransitions logs a reconciliation summary. Caller holds s.mu.
func (s *Store) recordTransitions(n *notifier, res reconcile.Result) {
	sum := model.Summarize(res.Transitions, s.state.Ledger.Len())
	if sum.Changed() == 0 {
		return
	}
	s.logEvent(n, model.EventReconcileTransition, "", sum)
	s.finished(n, res.Finished...)
	for _, op := range res.Finished {
		if err := ErrorOf(op); err != nil {
			s.lastErr = err
		}
	}
	s.logger.Debug("reconciled",
		"acked", len(sum.Acked),
		"timeout", len(sum.Timeout),
		"superseded", len(sum.Superseded),
		"pending", sum.StillPending,
	)
}

// IngestMeters folds a telemetry frame into perf meters. It never
// reconciles and never touches seq.
func (s *Store) IngestMeters(f model.MeterFrame) {
	s.mu.Lock()
	s.state = WithMeters(s.state, f)
	s.mu.Unlock()
}

// Tick runs the collapse and timeout passes without a new snapshot.
func (s *Store) Tick() {
	var n notifier
	s.mu.Lock()
	next, res := Sweep(s.state, s.reconciler)
	s.state = next
	s.recordTransitions(&n, res)
	s.mu.Unlock()
	s.flush(n)
}

// State returns the committed state. The value is immutable.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View returns the committed view without overlay.
func (s *Store) View() *model.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.View
}

// Snapshot returns the committed snapshot metadata.
func (s *Store) Snapshot() model.SnapshotMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Snapshot
}

// Track returns the effective track: snapshot value with overlay applied.
func (s *Store) Track(guid string) (model.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return effectiveTrack(s.state, guid)
}

func effectiveTrack(st State, guid string) (model.Track, bool) {
	tr, ok := st.View.Entities.TracksByGUID[guid]
	if !ok {
		return model.Track{}, false
	}
	if p, ok := st.Overlay.Track(guid); ok {
		tr = p.Apply(tr)
	}
	return tr, true
}

// Tracks returns every effective track in snapshot order.
func (s *Store) Tracks() []model.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Track, 0, len(s.state.View.Entities.TrackOrder))
	for _, guid := range s.state.View.Entities.TrackOrder {
		if tr, ok := effectiveTrack(s.state, guid); ok {
			out = append(out, tr)
		}
	}
	return out
}

// FX returns the effective fx instance.
func (s *Store) FX(guid string) (model.FX, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fx, ok := s.state.View.Entities.FXByGUID[guid]
	if !ok {
		return model.FX{}, false
	}
	if p, ok := s.state.Overlay.FX(guid); ok {
		fx = p.Apply(fx)
	}
	return fx, true
}

// FXOrder returns the effective fx chain order of a track.
func (s *Store) FXOrder(trackGUID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order, ok := s.state.Overlay.FXOrder(trackGUID); ok {
		return append([]string(nil), order...)
	}
	return append([]string(nil), s.state.View.Entities.FXOrderByTrackGUID[trackGUID]...)
}

// Perf returns a copy of the perf state, or nil before any reduced snapshot
// or meter frame.
func (s *Store) Perf() *model.Perf {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyPerf(s.state.Perf)
}

// ActiveBusID returns the active bus from the perf state, falling back to
// the session-level active bus of rich snapshots.
func (s *Store) ActiveBusID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Perf != nil && s.state.Perf.ActiveBusID != "" {
		return s.state.Perf.ActiveBusID
	}
	return s.state.View.Session.ActiveBusID
}

// Session returns the derived selection state.
func (s *Store) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Session
}

// SetActiveTrackGUID overrides the active track. The choice survives
// snapshots while the track exists, unless the perf active bus names a track.
func (s *Store) SetActiveTrackGUID(guid string) {
	s.mu.Lock()
	s.state.Session.ActiveTrackGUID = guid
	s.mu.Unlock()
}

// SetSelectedFxGUID selects an fx. The selection survives snapshots while
// the fx exists.
func (s *Store) SetSelectedFxGUID(guid string) {
	s.mu.Lock()
	s.state.Session.SelectedFxGUID = guid
	s.mu.Unlock()
}

// Overlay returns the live overlay.
func (s *Store) Overlay() model.Overlay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Overlay
}

// Pending returns the live ops in dispatch order.
func (s *Store) Pending() []model.PendingOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Ledger.Ops()
}

// Op returns an op by id, live or recently finished.
func (s *Store) Op(id string) (model.PendingOp, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if op, ok := s.state.Ledger.Get(id); ok {
		return op, true
	}
	return s.history.get(id)
}

// Events returns the event log oldest first.
func (s *Store) Events() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.entries()
}

// ClearEventLog empties the event log. Logical seq keeps counting.
func (s *Store) ClearEventLog() {
	s.mu.Lock()
	s.log.clear()
	s.mu.Unlock()
}

// LastError returns the most recent op error, or nil.
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/rfx/internal/config"
	"github.com/roach88/rfx/internal/engine"
	"github.com/roach88/rfx/internal/journal"
	"github.com/roach88/rfx/internal/lanes"
	"github.com/roach88/rfx/internal/metrics"
	"github.com/roach88/rfx/internal/model"
	"github.com/roach88/rfx/internal/reconcile"
	"github.com/roach88/rfx/internal/transport"
)

// loadConfig reads --config, falling back to schema defaults.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. --verbose forces debug level.
func newLogger(opts *RootOptions, cfg *config.Config, w io.Writer) *slog.Logger {
	level := cfg.Log.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// openTransport builds the remote selected by cfg.Transport.Kind.
// The returned transport is not yet booted.
func openTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger) (transport.Transport, error) {
	tc := cfg.Transport
	switch tc.Kind {
	case "mock":
		vm := transport.NewMockVM(transport.WithMeterInterval(tc.MetersInterval()))
		vm.Start()
		return vm, nil
	case "session":
		return transport.NewMockSession(tc.Buses), nil
	case "ws":
		c, err := transport.DialWS(ctx, tc.URL, logger)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", tc.URL, err)
		}
		return c, nil
	case "file":
		f, err := transport.NewFile(tc.ViewPath, tc.CommandPath, transport.WithFileLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open view %s: %w", tc.ViewPath, err)
		}
		if err := f.Start(); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("watch view %s: %w", tc.ViewPath, err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", tc.Kind)
	}
}

// closeTransport releases raw when it holds resources.
func closeTransport(raw transport.Transport) {
	if c, ok := raw.(io.Closer); ok {
		_ = c.Close()
	}
}

// session bundles a store, its loop and the resources behind them.
type session struct {
	store     *engine.Store
	loop      *engine.Loop
	transport *transport.Enforced
	journal   *journal.Journal
	metrics   *metrics.Recorder
	tally     *opTally
	logger    *slog.Logger
}

// openSession wires raw behind the enforcement wrapper and builds the store
// with the observers cfg asks for. raw may be nil for offline sessions.
func openSession(cfg *config.Config, raw transport.Transport, logger *slog.Logger) (*session, error) {
	s := &session{tally: newOpTally(), logger: logger}

	resolver := lanes.ByName{InputTrack: cfg.Lanes.InputTrack}
	rec := reconcile.New(
		reconcile.WithTimeout(cfg.Reconcile.Timeout()),
		reconcile.WithEpsilon(cfg.Reconcile.Epsilon),
		reconcile.WithLanes(resolver),
	)

	storeOpts := []engine.StoreOption{
		engine.WithLanes(resolver),
		engine.WithReconciler(rec),
		engine.WithEventLogCapacity(cfg.EventLog.Capacity),
		engine.WithLogger(logger),
		engine.WithObserver(s.tally),
	}

	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		last, err := j.LastSeq(context.Background())
		if err != nil {
			_ = j.Close()
			return nil, fmt.Errorf("read journal: %w", err)
		}
		s.journal = j
		storeOpts = append(storeOpts,
			engine.WithClock(engine.NewClockAt(last)),
			engine.WithObserver(journal.NewRecorder(j, logger)),
		)
		logger.Info("journal ready", "path", cfg.Journal.Path, "last_seq", last)
	}

	if cfg.Metrics.Addr != "" {
		s.metrics = metrics.New()
		storeOpts = append(storeOpts, engine.WithObserver(s.metrics))
	}

	s.store = engine.NewStore(storeOpts...)
	s.loop = engine.NewLoop(s.store, engine.WithTick(cfg.Reconcile.Tick()), engine.WithLoopLogger(logger))

	if raw != nil {
		s.transport = transport.Enforce(cfg.Transport.Kind, raw, logger)
		s.loop.Attach(s.transport)
	}
	return s, nil
}

// Close detaches the transport and releases the journal.
func (s *session) Close() error {
	s.loop.Detach()
	var errs []error
	if s.transport != nil {
		errs = append(errs, s.transport.Close())
	}
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
	}
	return errors.Join(errs...)
}

// opTally counts finished ops by status and committed snapshots.
type opTally struct {
	engine.NopObserver

	mu        sync.Mutex
	byStatus  map[model.OpStatus]int
	finished  []model.PendingOp
	snapshots int
}

func newOpTally() *opTally {
	return &opTally{byStatus: map[model.OpStatus]int{}}
}

// OpFinished implements engine.Observer.
func (t *opTally) OpFinished(op model.PendingOp) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byStatus[op.Status]++
	t.finished = append(t.finished, op)
}

// SnapshotIngested implements engine.Observer.
func (t *opTally) SnapshotIngested(*model.View, []model.Transition) {
	t.mu.Lock()
	t.snapshots++
	t.mu.Unlock()
}

// Snapshots returns the number of committed snapshots.
func (t *opTally) Snapshots() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshots
}

// Summary returns a copy of the counts.
func (t *opTally) Summary() map[model.OpStatus]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[model.OpStatus]int, len(t.byStatus))
	for k, v := range t.byStatus {
		out[k] = v
	}
	return out
}

// Unconfirmed reports finished ops whose outcome was not applied by the
// remote. Superseded ops count as confirmed: a later op took their place.
func (t *opTally) Unconfirmed() []model.PendingOp {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []model.PendingOp
	for _, op := range t.finished {
		if op.Status != model.StatusAcked && op.Status != model.StatusSuperseded {
			out = append(out, op)
		}
	}
	return out
}

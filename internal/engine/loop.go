package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/rfx/internal/model"
	"github.com/roach88/rfx/internal/transport"
)

// Loop feeds transport deliveries into a Store through a FIFO queue.
//
// Transport callbacks only enqueue, so a transport that emits from inside
// Syscall never re-enters the Store. Run drains the queue on one goroutine,
// which preserves delivery order.
type Loop struct {
	store  *Store
	queue  *eventQueue
	tick   time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	unsubs []func()
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithTick runs Store.Tick at the given period so timeouts fire without
// snapshots. Zero disables it.
func WithTick(d time.Duration) LoopOption {
	return func(l *Loop) { l.tick = d }
}

// WithLoopLogger sets the loop's logger.
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) { l.logger = logger }
}

// NewLoop creates a loop for store.
func NewLoop(store *Store, opts ...LoopOption) *Loop {
	l := &Loop{
		store:  store,
		queue:  newEventQueue(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Attach wires t into the store, seeds the store from t's current snapshot
// and subscribes to snapshots and, when available, meter frames. Attaching
// again replaces the previous transport.
func (l *Loop) Attach(t transport.Transport) {
	l.Detach()

	l.store.SetTransport(t)
	if snap := t.Snapshot(); snap != nil {
		l.queue.Enqueue(Event{Type: EventTypeSnapshot, Snapshot: snap})
	}

	unsubs := []func(){t.Subscribe(func(snap model.RawSnapshot) {
		l.queue.Enqueue(Event{Type: EventTypeSnapshot, Snapshot: snap})
	})}
	if ms, ok := t.(transport.MeterSource); ok {
		unsubs = append(unsubs, ms.SubscribeMeters(func(f model.MeterFrame) {
			l.queue.Enqueue(Event{Type: EventTypeMeters, Meters: &f})
		}))
	}

	l.mu.Lock()
	l.unsubs = unsubs
	l.mu.Unlock()
}

// Detach unsubscribes from the attached transport and clears it from the
// store. Queued deliveries are still processed.
func (l *Loop) Detach() {
	l.mu.Lock()
	unsubs := l.unsubs
	l.unsubs = nil
	l.mu.Unlock()

	if unsubs == nil {
		return
	}
	for _, unsub := range unsubs {
		if unsub != nil {
			unsub()
		}
	}
	l.store.SetTransport(nil)
}

// Pending returns the number of queued deliveries.
func (l *Loop) Pending() int {
	return l.queue.Len()
}

// Drain processes every queued delivery on the caller's goroutine.
// Used by tests and the scenario harness instead of Run.
func (l *Loop) Drain() int {
	n := 0
	for {
		event, ok := l.queue.TryDequeue()
		if !ok {
			return n
		}
		if err := l.process(event); err != nil {
			l.logError(event, err)
		}
		n++
	}
}

// Run processes deliveries until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("loop starting", "tick", l.tick)

	var tickC <-chan time.Time
	if l.tick > 0 {
		ticker := time.NewTicker(l.tick)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		event, ok := l.queue.TryDequeue()
		if ok {
			if err := l.process(event); err != nil {
				// Log and continue: one bad delivery must not stall the session.
				l.logError(event, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Info("loop stopping: context cancelled")
			l.queue.Close()
			return ctx.Err()

		case <-tickC:
			l.store.Tick()

		case <-l.queue.Wait():
			// The signal channel closes with the queue.
			if l.queue.Len() == 0 && l.closed() {
				l.logger.Info("loop stopping: queue closed")
				return nil
			}
		}
	}
}

func (l *Loop) closed() bool {
	l.queue.mu.Lock()
	defer l.queue.mu.Unlock()
	return l.queue.closed
}

// Stop closes the queue, which makes Run return once it is empty.
func (l *Loop) Stop() {
	l.queue.Close()
}

func (l *Loop) process(event Event) error {
	switch event.Type {
	case EventTypeSnapshot:
		if event.Snapshot == nil {
			return fmt.Errorf("snapshot event missing snapshot")
		}
		l.store.IngestSnapshot(event.Snapshot)
		return nil

	case EventTypeMeters:
		if event.Meters == nil {
			return fmt.Errorf("meters event missing frame")
		}
		l.store.IngestMeters(*event.Meters)
		return nil

	default:
		return fmt.Errorf("unknown event type: %d", event.Type)
	}
}

func (l *Loop) logError(event Event, err error) {
	l.logger.Error("failed to process delivery", "type", event.Type, "err", err)
}

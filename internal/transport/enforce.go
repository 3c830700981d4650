package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/rfx/internal/model"
)

// Enforced wraps a Transport and holds it to the contract: panics become
// errors, nil callbacks and nil unsubscribe funcs are tolerated, and each
// kind of violation is logged once per method.
type Enforced struct {
	name   string
	raw    Transport
	logger *slog.Logger

	mu     sync.Mutex
	warned map[string]bool
}

// Enforce wraps raw. A nil logger uses slog.Default.
func Enforce(name string, raw Transport, logger *slog.Logger) *Enforced {
	if logger == nil {
		logger = slog.Default()
	}
	if name == "" {
		name = "transport"
	}
	return &Enforced{name: name, raw: raw, logger: logger, warned: map[string]bool{}}
}

// Unwrap returns the wrapped transport.
func (e *Enforced) Unwrap() Transport {
	return e.raw
}

func (e *Enforced) warnOnce(method, msg string, args ...any) {
	e.mu.Lock()
	seen := e.warned[method]
	e.warned[method] = true
	e.mu.Unlock()
	if seen {
		return
	}
	e.logger.Warn(msg, append([]any{"transport", e.name, "method", method}, args...)...)
}

func (e *Enforced) recovered(method string, r any) error {
	e.warnOnce(method, "transport panicked; converted to error", "panic", fmt.Sprint(r))
	return fmt.Errorf("%s.%s: panic: %v", e.name, method, r)
}

// Boot implements Transport.
func (e *Enforced) Boot(ctx context.Context) (b Boot, err error) {
	if e.raw == nil {
		return Boot{}, fmt.Errorf("%s.boot missing", e.name)
	}
	defer func() {
		if r := recover(); r != nil {
			b, err = Boot{}, e.recovered("boot", r)
		}
	}()
	return e.raw.Boot(ctx)
}

// Snapshot implements Transport.
func (e *Enforced) Snapshot() (snap model.RawSnapshot) {
	if e.raw == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			_ = e.recovered("snapshot", r)
			snap = nil
		}
	}()
	return e.raw.Snapshot()
}

// Subscribe implements Transport.
func (e *Enforced) Subscribe(fn func(model.RawSnapshot)) (unsubscribe func()) {
	if e.raw == nil || fn == nil {
		return func() {}
	}
	defer func() {
		if r := recover(); r != nil {
			_ = e.recovered("subscribe", r)
			unsubscribe = func() {}
		}
	}()
	unsub := e.raw.Subscribe(fn)
	if unsub == nil {
		e.warnOnce("subscribe", "subscribe returned no unsubscribe func")
		return func() {}
	}
	return unsub
}

// SubscribeMeters passes through to the wrapped transport when it has a
// telemetry channel. Otherwise it is a no-op.
func (e *Enforced) SubscribeMeters(fn func(model.MeterFrame)) (unsubscribe func()) {
	ms, ok := e.raw.(MeterSource)
	if !ok || fn == nil {
		return func() {}
	}
	defer func() {
		if r := recover(); r != nil {
			_ = e.recovered("subscribeMeters", r)
			unsubscribe = func() {}
		}
	}()
	unsub := ms.SubscribeMeters(fn)
	if unsub == nil {
		e.warnOnce("subscribeMeters", "subscribeMeters returned no unsubscribe func")
		return func() {}
	}
	return unsub
}

// HasMeters reports whether the wrapped transport has a telemetry channel.
func (e *Enforced) HasMeters() bool {
	_, ok := e.raw.(MeterSource)
	return ok
}

// Syscall implements Transport.
func (e *Enforced) Syscall(ctx context.Context, call model.Call) (err error) {
	if e.raw == nil {
		return fmt.Errorf("%s.syscall missing", e.name)
	}
	if call.Name == "" {
		return Reject(call.Name, "invalid syscall")
	}
	defer func() {
		if r := recover(); r != nil {
			err = e.recovered("syscall", r)
		}
	}()
	return e.raw.Syscall(ctx, call)
}

// Close closes the wrapped transport if it holds resources.
func (e *Enforced) Close() error {
	if c, ok := e.raw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

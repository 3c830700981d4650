// Package reconcile resolves pending ops against each newly ingested snapshot.
//
// Reconcile runs once per snapshot, synchronously, before the snapshot is
// committed. Each pass consumes the ledger left by the previous pass:
//
//  1. Collapse: for coalescable kinds (setVol, setPan) only the latest op per
//     (kind, track) stays live. Earlier ones become superseded.
//  2. Timeout: sent ops older than the budget become timeout.
//  3. Gate: when seq has not advanced past an established previous seq,
//     verification is skipped. Telemetry-only updates must never resolve ops.
//  4. Verify: a kind-specific predicate decides acked or keeps the op sent
//     with a recorded mismatch reason.
//
// Every op that leaves the ledger also drops its overlay layer in the same
// pass, so the overlay never holds claims of terminal ops.
package reconcile

import (
	"fmt"
	"time"

	"github.com/roach88/rfx/internal/lanes"
	"github.com/roach88/rfx/internal/model"
)

// Defaults applied by New.
const (
	DefaultTimeout = 8000 * time.Millisecond
	DefaultEpsilon = 1e-4
)

// State is the slice of store state reconciliation reads.
type State struct {
	// Seq is the highest seq observed so far. Zero means none established.
	Seq     int64
	Ledger  model.Ledger
	Overlay model.Overlay
}

// Result is the outcome of one reconciliation pass.
type Result struct {
	Ledger      model.Ledger
	Overlay     model.Overlay
	Transitions []model.Transition

	// Finished holds the ops that reached a terminal status in this pass.
	Finished []model.PendingOp

	// Verified reports whether the verify pass ran.
	Verified bool
}

// Verifier checks one op against a view. A false result carries the reason.
type Verifier func(op model.PendingOp, v *model.View) (bool, string)

// Reconciler holds reconciliation policy. The zero value is not usable; use New.
type Reconciler struct {
	timeout   time.Duration
	epsilon   float64
	lanes     lanes.Resolver
	now       func() time.Time
	verifiers map[model.Kind]Verifier
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithTimeout sets the sent → timeout budget.
func WithTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithEpsilon sets the numeric tolerance for setVol and setPan.
func WithEpsilon(eps float64) Option {
	return func(r *Reconciler) {
		if eps > 0 {
			r.epsilon = eps
		}
	}
}

// WithLanes sets the lane resolver used by routing verifiers.
func WithLanes(res lanes.Resolver) Option {
	return func(r *Reconciler) {
		if res != nil {
			r.lanes = res
		}
	}
}

// WithNow sets the wall clock used by the timeout pass.
func WithNow(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// New returns a Reconciler with the built-in verifiers registered.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{
		timeout: DefaultTimeout,
		epsilon: DefaultEpsilon,
		lanes:   lanes.ByName{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.verifiers = r.builtins()
	return r
}

// Timeout returns the configured timeout budget.
func (r *Reconciler) Timeout() time.Duration {
	return r.timeout
}

// Register installs or replaces the verifier for kind.
func (r *Reconciler) Register(kind model.Kind, fn Verifier) {
	r.verifiers[kind.Canonical()] = fn
}

// Check evaluates op against v without changing any state.
func (r *Reconciler) Check(op model.PendingOp, v *model.View) model.Verification {
	fn, ok := r.verifiers[op.Kind.Canonical()]
	if !ok {
		return model.Verification{
			OK:         false,
			Reason:     fmt.Sprintf("no verifier for kind %q", op.Kind),
			CheckedSeq: v.Snapshot.Seq,
		}
	}
	good, reason := fn(op, v)
	return model.Verification{OK: good, Reason: reason, CheckedSeq: v.Snapshot.Seq}
}

// Reconcile runs the collapse, timeout, gate and verify passes of prev
// against v.
func (r *Reconciler) Reconcile(prev State, v *model.View) Result {
	seqAdvanced := v.Snapshot.Seq > prev.Seq
	gate := !seqAdvanced && prev.Seq != 0
	return r.pass(prev, v, !gate)
}

// Sweep runs only the collapse and timeout passes. It lets timeouts fire
// while the remote is silent.
func (r *Reconciler) Sweep(prev State) Result {
	return r.pass(prev, nil, false)
}

func (r *Reconciler) pass(prev State, v *model.View, verify bool) Result {
	now := r.now()
	res := Result{
		Ledger:  prev.Ledger,
		Overlay: prev.Overlay,
	}

	finish := func(op model.PendingOp, to model.OpStatus, errMsg string) {
		from := op.Status
		op.Status = to
		op.FinishedAt = now
		if errMsg != "" {
			op.Error = errMsg
		}
		res.Ledger = res.Ledger.Put(op)
		res.Overlay = res.Overlay.Without(op.ID)
		res.Finished = append(res.Finished, op)
		res.Transitions = append(res.Transitions, model.Transition{
			OpID:   op.ID,
			Kind:   op.Kind,
			From:   from,
			To:     to,
			Error:  op.Error,
			AckSeq: op.AckSeq,
		})
	}

	collapsed := Collapsed(prev.Ledger)
	res.Verified = verify

	for _, op := range prev.Ledger.Ops() {
		if collapsed[op.ID] {
			finish(op, model.StatusSuperseded, "")
			continue
		}
		if op.Status != model.StatusSent {
			continue
		}
		if !op.SentAt.IsZero() && now.Sub(op.SentAt) >= r.timeout {
			finish(op, model.StatusTimeout, fmt.Sprintf("timed out after %dms", r.timeout.Milliseconds()))
			continue
		}
		if !verify {
			continue
		}

		check := r.Check(op, v)
		op.Check = &check
		if check.OK {
			op.AckSeq = v.Snapshot.Seq
			if op.AckSeq == 0 {
				op.AckSeq = prev.Seq
			}
			finish(op, model.StatusAcked, "")
			continue
		}
		res.Ledger = res.Ledger.Put(op)
	}
	return res
}

// Collapsed returns the ids of coalescable ops shadowed by a later op with
// the same kind and target.
func Collapsed(l model.Ledger) map[string]bool {
	out := map[string]bool{}
	type key struct {
		kind   model.Kind
		target string
	}
	last := map[key]string{}
	for _, op := range l.Ops() {
		if !op.Kind.Coalescable() || op.Intent.TrackGUID == "" {
			continue
		}
		k := key{op.Kind.Canonical(), op.Intent.TrackGUID}
		if prevID, ok := last[k]; ok {
			out[prevID] = true
		}
		last[k] = op.ID
	}
	return out
}

package model

import "time"

// Event log kinds recorded by the store.
const (
	EventIntentReceived      = "intent:received"
	EventOptimisticApplied   = "intent:optimistic_applied"
	EventBuildFailed         = "intent:build_failed"
	EventSyscallSent         = "syscall:sent"
	EventSyscallError        = "syscall:error"
	EventSnapshotReceived    = "snapshot:received"
	EventReconcileTransition = "reconcile:transitions"
)

// Event is one entry in the store's bounded diagnostic log.
// Seq comes from the store's logical clock and orders entries totally.
type Event struct {
	Seq  int64     `json:"seq"`
	At   time.Time `json:"at"`
	Kind string    `json:"kind"`
	OpID string    `json:"opId,omitempty"`
	Data any       `json:"data,omitempty"`
}

// TransitionSummary groups the transitions of one reconciliation pass.
type TransitionSummary struct {
	Acked        []Transition `json:"acked"`
	Timeout      []Transition `json:"timeout"`
	Failed       []Transition `json:"failed"`
	Superseded   []Transition `json:"superseded"`
	StillPending int          `json:"stillPending"`
}

// Changed returns the number of ops that moved to a terminal status.
func (s TransitionSummary) Changed() int {
	return len(s.Acked) + len(s.Timeout) + len(s.Failed) + len(s.Superseded)
}

// Summarize buckets transitions by destination status.
func Summarize(ts []Transition, stillPending int) TransitionSummary {
	out := TransitionSummary{
		Acked:        []Transition{},
		Timeout:      []Transition{},
		Failed:       []Transition{},
		Superseded:   []Transition{},
		StillPending: stillPending,
	}
	for _, t := range ts {
		switch t.To {
		case StatusAcked:
			out.Acked = append(out.Acked, t)
		case StatusTimeout:
			out.Timeout = append(out.Timeout, t)
		case StatusFailed:
			out.Failed = append(out.Failed, t)
		case StatusSuperseded:
			out.Superseded = append(out.Superseded, t)
		}
	}
	return out
}

package model

import "time"

// OpStatus is the lifecycle state of a PendingOp.
//
//	queued → sent → {acked | failed | timeout | superseded}
//	queued → failed        (no transport)
//	queued → superseded    (collapsed before it was sent)
type OpStatus string

const (
	StatusQueued     OpStatus = "queued"
	StatusSent       OpStatus = "sent"
	StatusAcked      OpStatus = "acked"
	StatusFailed     OpStatus = "failed"
	StatusTimeout    OpStatus = "timeout"
	StatusSuperseded OpStatus = "superseded"
)

// Terminal reports whether no further transition may leave this status.
func (s OpStatus) Terminal() bool {
	switch s {
	case StatusAcked, StatusFailed, StatusTimeout, StatusSuperseded:
		return true
	}
	return false
}

// CanTransition reports whether from → to is a legal lifecycle step.
func CanTransition(from, to OpStatus) bool {
	switch from {
	case StatusQueued:
		return to == StatusSent || to == StatusFailed || to == StatusSuperseded
	case StatusSent:
		return to.Terminal()
	}
	return false
}

// Verification is the outcome of checking an op against a snapshot.
type Verification struct {
	OK         bool   `json:"ok"`
	Reason     string `json:"reason,omitempty"`
	CheckedSeq int64  `json:"checkedSeq"`
}

// PendingOp is one tracked client-issued mutation.
type PendingOp struct {
	ID         string        `json:"id"`
	Kind       Kind          `json:"kind"`
	Intent     Intent        `json:"intent"`
	Patch      *Patch        `json:"optimistic,omitempty"`
	Status     OpStatus      `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
	SentAt     time.Time     `json:"sentAt,omitzero"`
	FinishedAt time.Time     `json:"finishedAt,omitzero"`
	AckSeq     int64         `json:"ackSeq,omitempty"`
	Error      string        `json:"error,omitempty"`
	Check      *Verification `json:"verification,omitempty"`
}

// Target returns the entity the op mutates, used for collapsing.
func (op PendingOp) Target() string {
	switch {
	case op.Intent.TrackGUID != "":
		return op.Intent.TrackGUID
	case op.Intent.FxGUID != "":
		return op.Intent.FxGUID
	}
	return op.Intent.BusID
}

// Transition records one status change made by the store or reconciler.
type Transition struct {
	OpID   string   `json:"id"`
	Kind   Kind     `json:"kind"`
	From   OpStatus `json:"from"`
	To     OpStatus `json:"to"`
	Error  string   `json:"error,omitempty"`
	AckSeq int64    `json:"ackSeq,omitempty"`
}

// Ledger holds the non-terminal ops in dispatch order.
// Ledger values are treated as immutable; mutators return a new Ledger.
type Ledger struct {
	order []string
	byID  map[string]PendingOp
}

// Len returns the number of live ops.
func (l Ledger) Len() int {
	return len(l.order)
}

// Get returns a live op by id.
func (l Ledger) Get(id string) (PendingOp, bool) {
	op, ok := l.byID[id]
	return op, ok
}

// Ops returns the live ops in dispatch order.
func (l Ledger) Ops() []PendingOp {
	out := make([]PendingOp, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id])
	}
	return out
}

// IDs returns the live op ids in dispatch order.
func (l Ledger) IDs() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Put inserts or replaces op. New ops are appended in dispatch order.
// Putting a terminal op removes it from the ledger.
func (l Ledger) Put(op PendingOp) Ledger {
	if op.Status.Terminal() {
		return l.Remove(op.ID)
	}
	next := l.clone()
	if _, exists := next.byID[op.ID]; !exists {
		next.order = append(next.order, op.ID)
	}
	next.byID[op.ID] = op
	return next
}

// Remove drops an op from the ledger.
func (l Ledger) Remove(id string) Ledger {
	if _, ok := l.byID[id]; !ok {
		return l
	}
	next := Ledger{
		order: make([]string, 0, len(l.order)),
		byID:  make(map[string]PendingOp, len(l.byID)),
	}
	for _, oid := range l.order {
		if oid == id {
			continue
		}
		next.order = append(next.order, oid)
		next.byID[oid] = l.byID[oid]
	}
	return next
}

func (l Ledger) clone() Ledger {
	next := Ledger{
		order: make([]string, len(l.order), len(l.order)+1),
		byID:  make(map[string]PendingOp, len(l.byID)+1),
	}
	copy(next.order, l.order)
	for id, op := range l.byID {
		next.byID[id] = op
	}
	return next
}

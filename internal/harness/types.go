package harness

import (
	"github.com/roach88/rfx/internal/model"
)

// TraceEvent is one event log entry as captured by the harness.
// At is milliseconds since the scenario started.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	At   int64  `json:"atMs"`
	Kind string `json:"kind"`
	OpID string `json:"opId,omitempty"`
	Data any    `json:"data,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every event the store logged, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Ops holds the final state of every dispatched op, by id.
	Ops map[string]model.PendingOp `json:"ops"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Ops:    map[string]model.PendingOp{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

package engine

import "github.com/roach88/rfx/internal/model"

// DefaultEventLogCapacity bounds the in-memory event log and op history.
const DefaultEventLogCapacity = 300

// eventLog is a bounded ring of diagnostic events. Oldest entries are
// evicted first. Not safe for concurrent use; the Store guards it.
type eventLog struct {
	buf   []model.Event
	start int
	n     int
}

func newEventLog(capacity int) *eventLog {
	if capacity <= 0 {
		capacity = DefaultEventLogCapacity
	}
	return &eventLog{buf: make([]model.Event, capacity)}
}

func (l *eventLog) append(e model.Event) {
	if l.n < len(l.buf) {
		l.buf[(l.start+l.n)%len(l.buf)] = e
		l.n++
		return
	}
	l.buf[l.start] = e
	l.start = (l.start + 1) % len(l.buf)
}

// entries returns the log oldest first.
func (l *eventLog) entries() []model.Event {
	out := make([]model.Event, l.n)
	for i := 0; i < l.n; i++ {
		out[i] = l.buf[(l.start+i)%len(l.buf)]
	}
	return out
}

func (l *eventLog) clear() {
	clear(l.buf)
	l.start, l.n = 0, 0
}

// history keeps the most recent finished ops for lookup by id.
type history struct {
	capacity int
	order    []string
	byID     map[string]model.PendingOp
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = DefaultEventLogCapacity
	}
	return &history{capacity: capacity, byID: map[string]model.PendingOp{}}
}

func (h *history) add(op model.PendingOp) {
	if _, ok := h.byID[op.ID]; !ok {
		h.order = append(h.order, op.ID)
	}
	h.byID[op.ID] = op
	for len(h.order) > h.capacity {
		delete(h.byID, h.order[0])
		h.order = h.order[1:]
	}
}

func (h *history) get(id string) (model.PendingOp, bool) {
	op, ok := h.byID[id]
	return op, ok
}

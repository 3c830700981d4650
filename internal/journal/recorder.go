package journal

import (
	"context"
	"log/slog"

	"github.com/roach88/rfx/internal/engine"
	"github.com/roach88/rfx/internal/model"
)

// Recorder is an engine.Observer that writes events and finished ops to a
// Journal. Write failures are logged and otherwise ignored: the journal must
// never stall the session.
type Recorder struct {
	engine.NopObserver

	j      *Journal
	logger *slog.Logger
}

// NewRecorder returns an observer writing to j.
func NewRecorder(j *Journal, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{j: j, logger: logger}
}

// EventLogged implements engine.Observer.
func (r *Recorder) EventLogged(e model.Event) {
	if err := r.j.WriteEvent(context.Background(), e); err != nil {
		r.logger.Error("journal write failed", "seq", e.Seq, "kind", e.Kind, "err", err)
	}
}

// OpFinished implements engine.Observer.
func (r *Recorder) OpFinished(op model.PendingOp) {
	if err := r.j.WriteOp(context.Background(), op); err != nil {
		r.logger.Error("journal write failed", "op", op.ID, "status", op.Status, "err", err)
	}
}

package journal

import (
	"context"
	"fmt"

	"github.com/roach88/rfx/internal/model"
)

// WriteEvent appends an event log entry.
// Uses ON CONFLICT(seq) DO NOTHING: rewriting a seq is a no-op.
func (j *Journal) WriteEvent(ctx context.Context, e model.Event) error {
	data, err := marshalJSON(e.Data)
	if err != nil {
		return fmt.Errorf("write event: marshal data: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO events (seq, at, kind, op_id, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		e.Seq,
		formatTime(e.At),
		e.Kind,
		e.OpID,
		data,
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// WriteOp records a finished op. Only terminal ops are accepted; a live op
// would be stale the moment it was written.
func (j *Journal) WriteOp(ctx context.Context, op model.PendingOp) error {
	if !op.Status.Terminal() {
		return fmt.Errorf("write op %s: status %s is not terminal", op.ID, op.Status)
	}

	intent, err := marshalJSON(op.Intent)
	if err != nil {
		return fmt.Errorf("write op: marshal intent: %w", err)
	}
	patch, err := marshalJSON(op.Patch)
	if err != nil {
		return fmt.Errorf("write op: marshal patch: %w", err)
	}
	check, err := marshalJSON(op.Check)
	if err != nil {
		return fmt.Errorf("write op: marshal verification: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO ops
		(id, kind, status, intent, patch, verification, error, ack_seq, created_at, sent_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		op.ID,
		string(op.Kind),
		string(op.Status),
		intent,
		patch,
		check,
		op.Error,
		op.AckSeq,
		formatTime(op.CreatedAt),
		formatTime(op.SentAt),
		formatTime(op.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("write op: %w", err)
	}
	return nil
}

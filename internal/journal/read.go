package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/rfx/internal/model"
)

// EventFilter narrows ReadEvents. Zero fields match everything.
type EventFilter struct {
	OpID  string
	Kind  string
	After int64
	Limit int
}

// ReadEvents returns matching events ordered by seq.
// Data is returned as json.RawMessage.
//
// Returns an empty slice (not nil) when nothing matches.
func (j *Journal) ReadEvents(ctx context.Context, f EventFilter) ([]model.Event, error) {
	var (
		where []string
		args  []any
	)
	if f.OpID != "" {
		where = append(where, "op_id = ?")
		args = append(args, f.OpID)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.After > 0 {
		where = append(where, "seq > ?")
		args = append(args, f.After)
	}

	query := `SELECT seq, at, kind, op_id, data FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		var (
			e    model.Event
			at   string
			data string
		)
		if err := rows.Scan(&e.Seq, &at, &e.Kind, &e.OpID, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if e.At, err = parseTime(at); err != nil {
			return nil, err
		}
		if data != "" && data != "null" {
			e.Data = json.RawMessage(data)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

const opColumns = `id, kind, status, intent, patch, verification, error, ack_seq, created_at, sent_at, finished_at`

// ReadOps returns finished ops ordered by creation time, then id. An empty
// status matches every status.
func (j *Journal) ReadOps(ctx context.Context, status model.OpStatus) ([]model.PendingOp, error) {
	query := `SELECT ` + opColumns + ` FROM ops`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC, id COLLATE BINARY ASC`

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ops: %w", err)
	}
	defer rows.Close()

	ops := []model.PendingOp{}
	for rows.Next() {
		op, err := scanOp(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ops: %w", err)
	}
	return ops, nil
}

// ReadOp returns one finished op. The bool is false when the id is unknown.
func (j *Journal) ReadOp(ctx context.Context, id string) (model.PendingOp, bool, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+opColumns+` FROM ops WHERE id = ?`, id)
	op, err := scanOp(row)
	if err == sql.ErrNoRows {
		return model.PendingOp{}, false, nil
	}
	if err != nil {
		return model.PendingOp{}, false, err
	}
	return op, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOp(s scanner) (model.PendingOp, error) {
	var (
		op                          model.PendingOp
		kind, status                string
		intent, patch, check        string
		createdAt, sentAt, finished string
	)
	err := s.Scan(&op.ID, &kind, &status, &intent, &patch, &check, &op.Error, &op.AckSeq, &createdAt, &sentAt, &finished)
	if err == sql.ErrNoRows {
		return op, err
	}
	if err != nil {
		return op, fmt.Errorf("scan op: %w", err)
	}
	op.Kind = model.Kind(kind)
	op.Status = model.OpStatus(status)

	if err := unmarshalJSON(intent, &op.Intent, "intent"); err != nil {
		return op, err
	}
	if err := unmarshalJSON(patch, &op.Patch, "patch"); err != nil {
		return op, err
	}
	if err := unmarshalJSON(check, &op.Check, "verification"); err != nil {
		return op, err
	}
	if op.CreatedAt, err = parseTime(createdAt); err != nil {
		return op, err
	}
	if op.SentAt, err = parseTime(sentAt); err != nil {
		return op, err
	}
	if op.FinishedAt, err = parseTime(finished); err != nil {
		return op, err
	}
	return op, nil
}

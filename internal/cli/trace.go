package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rfx/internal/journal"
	"github.com/roach88/rfx/internal/model"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	OpID     string
	Kind     string
	After    int64
	Limit    int
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	OpID     string            `json:"opId,omitempty"`
	Op       *model.PendingOp  `json:"op,omitempty"`
	Timeline []model.Event     `json:"timeline"`
	Ops      []model.PendingOp `json:"ops,omitempty"`
	Stats    TraceStats        `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int            `json:"totalEvents"`
	ByKind      map[string]int `json:"byKind"`
	ByStatus    map[string]int `json:"byStatus"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query the session journal",
		Long: `Query a SQLite journal written by rfx run.

Without --op, lists the journaled events and every finished op.
With --op, shows that op's final record and the events that touched it.

Examples:
  rfx trace --db ./rfx.db
  rfx trace --db ./rfx.db --op 0192f1c4-...
  rfx trace --db ./rfx.db --kind reconcile:transitions --limit 20 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.OpID, "op", "", "restrict to one op id")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "restrict to one event kind")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only events with seq greater than this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of events (0 = all)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Open creates missing files; a trace of nothing is a usage error.
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}
	j, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	events, err := j.ReadEvents(ctx, journal.EventFilter{
		OpID:  opts.OpID,
		Kind:  opts.Kind,
		After: opts.After,
		Limit: opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	result := TraceResult{OpID: opts.OpID, Timeline: events}
	if opts.OpID != "" {
		op, ok, err := j.ReadOp(ctx, opts.OpID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read op", err)
		}
		if ok {
			result.Op = &op
		}
	} else {
		ops, err := j.ReadOps(ctx, "")
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read ops", err)
		}
		result.Ops = ops
	}
	result.Stats = traceStats(result)

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
		return formatter.Success(result)
	}
	return outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
}

func traceStats(r TraceResult) TraceStats {
	s := TraceStats{
		TotalEvents: len(r.Timeline),
		ByKind:      map[string]int{},
		ByStatus:    map[string]int{},
	}
	for _, e := range r.Timeline {
		s.ByKind[e.Kind]++
	}
	if r.Op != nil {
		s.ByStatus[string(r.Op.Status)]++
	}
	for _, op := range r.Ops {
		s.ByStatus[string(op.Status)]++
	}
	return s
}

func outputTraceText(w io.Writer, r TraceResult, verbose bool) error {
	if len(r.Timeline) == 0 && r.Op == nil && len(r.Ops) == 0 {
		if r.OpID != "" {
			fmt.Fprintf(w, "No events found for op: %s\n", r.OpID)
		} else {
			fmt.Fprintln(w, "Journal is empty.")
		}
		return nil
	}

	if r.Op != nil {
		fmt.Fprintf(w, "Op %s\n", r.Op.ID)
		writeOpLine(w, *r.Op)
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "Timeline:")
	for _, e := range r.Timeline {
		op := ""
		if e.OpID != "" && r.OpID == "" {
			op = " " + truncateID(e.OpID)
		}
		fmt.Fprintf(w, "  [%d] %s %s%s\n", e.Seq, e.At.Format(time.TimeOnly), e.Kind, op)
		if verbose && e.Data != nil {
			fmt.Fprintf(w, "       %s\n", e.Data)
		}
	}

	if len(r.Ops) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Ops:")
		for _, op := range r.Ops {
			writeOpLine(w, op)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Stats: %d events, %d acked, %d failed, %d timeout, %d superseded\n",
		r.Stats.TotalEvents,
		r.Stats.ByStatus[string(model.StatusAcked)],
		r.Stats.ByStatus[string(model.StatusFailed)],
		r.Stats.ByStatus[string(model.StatusTimeout)],
		r.Stats.ByStatus[string(model.StatusSuperseded)],
	)
	return nil
}

func writeOpLine(w io.Writer, op model.PendingOp) {
	mark := "✓"
	if op.Status != model.StatusAcked && op.Status != model.StatusSuperseded {
		mark = "✗"
	}
	line := fmt.Sprintf("  %s %s %s %s", mark, truncateID(op.ID), op.Kind, op.Status)
	if op.Target() != "" {
		line += " " + op.Target()
	}
	if op.AckSeq != 0 {
		line += fmt.Sprintf(" ackSeq=%d", op.AckSeq)
	}
	if op.Error != "" {
		line += ": " + op.Error
	}
	fmt.Fprintln(w, line)
}

// truncateID shortens UUIDs for display.
func truncateID(id string) string {
	if len(id) > 13 {
		return id[:13]
	}
	return id
}

package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/rfx/internal/model"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Intents string
	Settle  bool
}

// settlePoll is how often --settle checks for outstanding ops.
const settlePoll = 25 * time.Millisecond

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a session against the configured remote",
		Long: `Boot the configured transport and keep a session running.

Intents are read as JSON lines from --intents ("-" for stdin), one intent
per line, and dispatched in order. With --settle the session stops once
every intent has been read and no op is outstanding.

Example:
  rfx run --config rfx.cue
  echo '{"kind":"setVol","trackGuid":"{TRK-VOX}","value":0.5}' | rfx run --intents - --settle`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Intents, "intents", "", `JSON-lines intent file ("-" for stdin)`)
	cmd.Flags().BoolVar(&opts.Settle, "settle", false, "stop once intents are consumed and no op is outstanding")

	return cmd
}

func runSession(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	logger := newLogger(opts.RootOptions, cfg, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	if opts.Settle && opts.Intents == "" {
		return NewExitError(ExitCommandError, "--settle requires --intents")
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	raw, err := openTransport(ctx, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open transport", err)
	}
	sess, err := openSession(cfg, raw, logger)
	if err != nil {
		closeTransport(raw)
		return WrapExitError(ExitCommandError, "failed to open session", err)
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			logger.Error("error closing session", "err", closeErr)
		}
	}()

	boot, err := sess.transport.Boot(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "boot failed", err)
	}
	logger.Info("remote booted", "kind", cfg.Transport.Kind, "seq", boot.Seq)

	var intents io.Reader
	if opts.Intents != "" {
		r, closeIntents, err := openInput(opts.Intents, cmd.InOrStdin())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open intents", err)
		}
		defer closeIntents()
		intents = r
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(gctx)
	defer cancelRun()

	g.Go(func() error {
		return sess.loop.Run(runCtx)
	})

	if sess.metrics != nil {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: sess.metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("metrics listening", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if intents != nil {
		g.Go(func() error {
			n, err := dispatchLines(runCtx, sess, intents)
			logger.Info("intents consumed", "count", n)
			if err != nil {
				return err
			}
			if opts.Settle {
				waitSettled(runCtx, sess)
				cancelRun()
			}
			return nil
		})
	}

	if !opts.Settle {
		fmt.Fprintln(cmd.ErrOrStderr(), "Session running. Press Ctrl-C to stop.")
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "session error", err)
	}

	return reportSession(opts.RootOptions, cmd.OutOrStdout(), sess)
}

// openInput opens path, treating "-" as stdin.
func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// dispatchLines decodes one intent per non-empty line and dispatches it.
// Lines starting with # are skipped.
func dispatchLines(ctx context.Context, sess *session, r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	n := 0
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if ctx.Err() != nil {
			return n, nil
		}
		var in model.Intent
		if err := json.Unmarshal([]byte(text), &in); err != nil {
			return n, fmt.Errorf("intents line %d: %w", line, err)
		}
		if in.Kind == "" {
			return n, fmt.Errorf("intents line %d: kind is required", line)
		}
		op := sess.store.DispatchIntent(ctx, in)
		sess.logger.Debug("dispatched", "op", op.ID, "kind", op.Kind, "status", op.Status)
		n++
	}
	return n, sc.Err()
}

// waitSettled blocks until no op is outstanding or ctx ends. The store's
// reconciler enforces the timeout budget, so this always terminates when
// the loop ticks.
func waitSettled(ctx context.Context, sess *session) {
	t := time.NewTicker(settlePoll)
	defer t.Stop()
	for {
		if len(sess.store.Pending()) == 0 && sess.loop.Pending() == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// runSummary is the JSON payload of a finished session.
type runSummary struct {
	Ops         map[model.OpStatus]int `json:"ops"`
	Unconfirmed []model.PendingOp      `json:"unconfirmed,omitempty"`
	Outstanding int                    `json:"outstanding"`
}

func reportSession(opts *RootOptions, w io.Writer, sess *session) error {
	summary := runSummary{
		Ops:         sess.tally.Summary(),
		Unconfirmed: sess.tally.Unconfirmed(),
		Outstanding: len(sess.store.Pending()),
	}
	formatter := &OutputFormatter{Format: opts.Format, Writer: w, Verbose: opts.Verbose}
	var failure *ExitError
	if len(summary.Unconfirmed) > 0 {
		failure = NewExitError(ExitFailure, fmt.Sprintf("%d op(s) not confirmed", len(summary.Unconfirmed)))
	}

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: summary}
		if failure != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeOpFailed, Message: failure.Message}
		}
		if err := formatter.encode(resp); err != nil {
			return err
		}
	} else {
		statuses := make([]model.OpStatus, 0, len(summary.Ops))
		for s := range summary.Ops {
			statuses = append(statuses, s)
		}
		slices.Sort(statuses)
		for _, s := range statuses {
			fmt.Fprintf(w, "%s: %d\n", s, summary.Ops[s])
		}
		for _, op := range summary.Unconfirmed {
			fmt.Fprintf(w, "✗ %s %s %s: %s\n", op.ID, op.Kind, op.Status, op.Error)
		}
		if summary.Outstanding > 0 {
			fmt.Fprintf(w, "%d op(s) still outstanding\n", summary.Outstanding)
		}
	}

	if failure != nil {
		return failure
	}
	return nil
}

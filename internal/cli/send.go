package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rfx/internal/model"
	"github.com/roach88/rfx/internal/transport"
)

// SendOptions holds flags for the send command.
type SendOptions struct {
	*RootOptions
	URL     string
	Wait    bool
	Timeout time.Duration
}

// sendPoll is the drain period while waiting on the remote.
const sendPoll = 10 * time.Millisecond

// NewSendCommand creates the send command.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "send <intent-json|->",
		Short: "Dispatch one intent over websocket",
		Long: `Connect to a websocket remote, dispatch one intent and report its op.

The intent is a JSON object with "kind" (or "name") and its arguments.
With --wait the command blocks until the op is acked, rejected, superseded
or timed out.

Exit codes:
  0 - Op acked (or sent, without --wait)
  1 - Op failed or timed out
  2 - Command error (bad intent, unreachable remote)

Examples:
  rfx send '{"kind":"selectActiveBus","busId":"bus2"}'
  rfx send --wait '{"kind":"toggleMute","trackGuid":"{TRK-VOX}","value":true}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "", "websocket url (defaults to transport.url from config)")
	cmd.Flags().BoolVar(&opts.Wait, "wait", false, "wait for the op to reach a terminal status")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 15*time.Second, "overall deadline")

	return cmd
}

// parseIntent decodes arg, reading stdin when arg is "-".
func parseIntent(arg string, stdin io.Reader) (model.Intent, error) {
	data := []byte(arg)
	if arg == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return model.Intent{}, fmt.Errorf("read stdin: %w", err)
		}
		data = b
	}
	var in model.Intent
	if err := json.Unmarshal(data, &in); err != nil {
		return model.Intent{}, err
	}
	if in.Kind == "" {
		return model.Intent{}, errors.New("intent kind is required")
	}
	return in, nil
}

func runSend(opts *SendOptions, arg string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	logger := newLogger(opts.RootOptions, cfg, cmd.ErrOrStderr())

	in, err := parseIntent(arg, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid intent", err)
	}

	url := opts.URL
	if url == "" {
		url = cfg.Transport.URL
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, opts.Timeout)
	defer cancel()

	client, err := transport.DialWS(ctx, url, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect", err)
	}
	cfg.Transport.Kind = "ws"
	sess, err := openSession(cfg, client, logger)
	if err != nil {
		_ = client.Close()
		return WrapExitError(ExitCommandError, "failed to open session", err)
	}
	defer sess.Close()

	// Verification needs a baseline: wait for the first snapshot.
	err = pump(ctx, sess, client.Done(), func() bool {
		return sess.tally.Snapshots() > 0
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "no snapshot from remote", err)
	}

	op := sess.store.DispatchIntent(ctx, in)
	logger.Debug("dispatched", "op", op.ID, "kind", op.Kind, "status", op.Status)

	if opts.Wait && !op.Status.Terminal() {
		err = pump(ctx, sess, client.Done(), func() bool {
			op, _ = sess.store.Op(op.ID)
			return op.Status.Terminal()
		})
		if err != nil {
			return WrapExitError(ExitFailure, "op did not finish", err)
		}
	}

	return reportOp(opts.RootOptions, cmd.OutOrStdout(), op)
}

// pump drains deliveries and sweeps timeouts on the caller's goroutine
// until done reports true.
func pump(ctx context.Context, sess *session, closed <-chan struct{}, done func() bool) error {
	t := time.NewTicker(sendPoll)
	defer t.Stop()
	for {
		sess.loop.Drain()
		sess.store.Tick()
		if done() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-closed:
			return errors.New("connection closed")
		case <-t.C:
		}
	}
}

func reportOp(opts *RootOptions, w io.Writer, op model.PendingOp) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: w, Verbose: opts.Verbose}
	bad := op.Status == model.StatusFailed || op.Status == model.StatusTimeout

	if opts.Format == "json" {
		if bad {
			if err := formatter.Error(ErrCodeOpFailed, op.Error, op); err != nil {
				return err
			}
		} else if err := formatter.Success(op); err != nil {
			return err
		}
	} else {
		writeOpLine(w, op)
	}

	if bad {
		return NewExitError(ExitFailure, fmt.Sprintf("op %s %s", op.ID, op.Status))
	}
	return nil
}

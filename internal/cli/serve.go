package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/rfx/internal/config"
	"github.com/roach88/rfx/internal/metrics"
	"github.com/roach88/rfx/internal/transport"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr    string
	Backend string // "vm" | "session"
	Metrics bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a mock remote over websocket",
		Long: `Serve a simulated remote over the websocket bridge protocol.

The "vm" backend emits the reduced performance shape with live meters.
The "session" backend emits the rich session shape.

Routes:
  GET  /ws        envelope stream (hello, snapshot, meters, call, boot)
  GET  /snapshot  last snapshot as JSON
  POST /syscall   one call, answered with {ok, error}
  GET  /metrics   Prometheus metrics (with --metrics)

Examples:
  rfx serve
  rfx serve --backend session --addr 127.0.0.1:9000 --metrics`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (defaults to server.addr from config)")
	cmd.Flags().StringVar(&opts.Backend, "backend", "vm", "simulated remote (vm|session)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "mount /metrics")

	return cmd
}

func newBackend(kind string, cfg *config.Config) (transport.Transport, error) {
	switch kind {
	case "vm":
		vm := transport.NewMockVM(transport.WithMeterInterval(cfg.Transport.MetersInterval()))
		vm.Start()
		return vm, nil
	case "session":
		return transport.NewMockSession(cfg.Transport.Buses), nil
	default:
		return nil, fmt.Errorf("unknown backend %q: must be vm or session", kind)
	}
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	logger := newLogger(opts.RootOptions, cfg, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	addr := opts.Addr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	raw, err := newBackend(opts.Backend, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid backend", err)
	}
	backend := transport.Enforce(opts.Backend, raw, logger)
	defer backend.Close()

	srv := transport.NewServer(backend, logger)
	if opts.Metrics {
		srv.Handle("/metrics", metrics.New().Handler())
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpSrv := &http.Server{Handler: srv, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("serving", "addr", ln.Addr().String(), "backend", opts.Backend)
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Hijacked websocket conns are not tracked by http.Server.
		_ = srv.Close()
		return httpSrv.Shutdown(shutdownCtx)
	})

	fmt.Fprintf(cmd.ErrOrStderr(), "Serving %s remote on ws://%s/ws. Press Ctrl-C to stop.\n", opts.Backend, ln.Addr())

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("server stopped")
	return nil
}

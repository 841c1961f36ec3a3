package cmd

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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragsearch/internal/mcp"
	"github.com/Aman-CERP/ragsearch/internal/watcher"
)

type serveOptions struct {
	transport   string
	metricsAddr string
	watch       bool
}

func newServeCmd(g *globalOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve search over MCP",
		Long: `Serve text, vector and hybrid search to MCP clients over stdio.

stdout carries only JSON-RPC while serving; logs go to the log file.
With --watch the vector indexes are rebuilt after another process writes
the database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, g, opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", "", "MCP transport (default from config: stdio)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Reload vector indexes when the database changes")
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, g *globalOptions, opts *serveOptions) error {
	cfg, err := g.load(true)
	if err != nil {
		return err
	}
	if opts.transport != "" {
		cfg.Server.Transport = opts.transport
	}
	if opts.metricsAddr != "" {
		cfg.Server.MetricsAddr = opts.metricsAddr
	}
	if cmd.Flags().Changed("watch") {
		cfg.Server.Watch = opts.watch
	}

	a, err := openApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	srv, err := mcp.NewServer(a.engine, a.store, a.registry)
	if err != nil {
		return err
	}

	if cfg.Server.MetricsAddr != "" {
		_, shutdown, err := serveMetrics(cfg.Server.MetricsAddr)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	if cfg.Server.Watch && persistent(cfg.Store.Path) {
		wopts := watcher.DefaultOptions()
		wopts.Debounce = cfg.Server.WatchDebounce
		w := watcher.New(cfg.Store.Path, a.registry.Reload, wopts)

		wctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := w.Run(wctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("db_watcher_stopped", slog.String("error", err.Error()))
			}
		}()
		defer func() {
			cancel()
			<-done
		}()
	}

	slog.Info("server_starting",
		slog.String("transport", cfg.Server.Transport),
		slog.String("db", cfg.Store.Path),
		slog.Int("indexes", len(a.registry.Models())),
		slog.Bool("watch", cfg.Server.Watch))

	return srv.Serve(ctx, cfg.Server.Transport)
}

// serveMetrics exposes the default Prometheus registry on addr/metrics. It
// returns the bound address and a function that shuts the listener down.
func serveMetrics(addr string) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("failed to listen on metrics address %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	hs := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics_server_failed", slog.String("error", err.Error()))
		}
	}()
	slog.Info("metrics_listening", slog.String("addr", ln.Addr().String()))

	return ln.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = hs.Shutdown(ctx)
	}, nil
}

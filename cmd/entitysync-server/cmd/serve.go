package cmd

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"entitysync/internal/adapters/httpapi"
	"entitysync/internal/blob"
	"entitysync/internal/core"
	"entitysync/internal/entitymodel"
	"entitysync/internal/infra/logging"
	promrecorder "entitysync/internal/infra/metrics/prometheus"
	"entitysync/internal/infra/persistence"
	"entitysync/pkg/domain"
)

var (
	listenAddr      string
	shutdownTimeout time.Duration
	policyExpiry    time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the entity API",
	Long: `Serve the entity API, Prometheus metrics at /metrics and expvar
counters at /debug/vars.

Examples:
  entitysync-server serve
  entitysync-server serve --addr :9000 --v=2`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "addr", ":8080", "address to listen on")
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight requests")
	serveCmd.Flags().DurationVar(&policyExpiry, "policy-expiry", httpapi.DefaultPolicyExpiry, "lifetime of issued upload policies")
	rootCmd.AddCommand(serveCmd)
}

// server bundles the HTTP server with the resources it must release.
type server struct {
	http  *http.Server
	store domain.PersistentStore
}

func (s *server) Close() error {
	if c, ok := s.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ExpvarName is the /debug/vars key holding per-operation API counters.
const ExpvarName = "entitysync_http"

// newServer opens the configured store and blob backend and mounts the API
// next to /metrics, /debug/vars and /schema.
func newServer(ctx context.Context, addr string, logger core.Logger) (*server, error) {
	store, err := persistence.Open(ctx, core.NewDefaultRulesEngine())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	srv := &server{store: store}
	blobs, err := blob.Open(ctx)
	if err != nil {
		_ = srv.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := promrecorder.NewRecorder(reg, "http")
	if err != nil {
		_ = srv.Close()
		return nil, err
	}

	api := httpapi.NewHandler(store, blobs)
	api.Logger = logger
	api.Metrics = core.MultiRecorder(recorder, core.NewExpvarRecorder(ExpvarName))
	api.PolicyExpiry = policyExpiry

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/debug/vars", expvar.Handler())
	mux.Handle("/schema", entitymodel.NewHandler())
	mux.Handle("/", api)
	srv.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv, nil
}

func serve(ctx context.Context) error {
	logger := logging.NewGlog("server")
	srv, err := newServer(ctx, listenAddr, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warn("close store", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", listenAddr)
		errCh <- srv.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.http.Shutdown(shutdownCtx)
}

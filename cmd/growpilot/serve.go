package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"growpilot/internal/adapters/export"
	"growpilot/internal/blob"
	"growpilot/internal/config"
	"growpilot/internal/core"
	"growpilot/internal/session"
	"growpilot/internal/web"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web interface and JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			logger, err := cfg.Log.Logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			app, err := newApp(cmd.Context(), cfg, logger, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.close()
			return app.serve(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "listen address (default :8080)")
	_ = root.v.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	return cmd
}

// app is the assembled server process.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	sessions *session.Manager
	handler  *web.Server
	registry *prometheus.Registry
	tracer   *core.JSONTraceTracer
}

// traceRetention bounds the spans kept in memory when log.trace is on.
const traceRetention = 1000

// newApp wires the service, sessions and HTTP handler. Spans go to traceOut
// when cfg.Log.Trace is set.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, traceOut io.Writer) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	prom, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return nil, err
	}
	svcOpts := []core.ServiceOption{
		core.WithLogger(logger),
		core.WithMetricsRecorder(core.MultiMetricsRecorder{prom, core.NewExpvarMetricsRecorder("")}),
		core.WithAuditRecorder(serviceAudit{logger: logger}),
		core.WithForecastHorizon(cfg.Forecast.Horizon),
	}
	var tracer *core.JSONTraceTracer
	if cfg.Log.Trace {
		tracer = core.NewJSONTracer(traceOut, traceRetention)
		svcOpts = append(svcOpts, core.WithTracer(tracer))
	}
	svc := core.NewService(svcOpts...)

	sessions := session.NewManager(
		core.StoreOpener(core.StorageDriver(cfg.Storage.Driver)),
		session.WithIdleTimeout(cfg.Session.IdleTimeout),
		session.WithOnClose(func(id string, err error) {
			if err != nil {
				logger.Warn("close session store", "session", id, "error", err)
				return
			}
			logger.Debug("session ended", "session", id)
		}),
	)

	exporterOpts := []export.Option{export.WithAuditLogger(archiveAudit{logger: logger})}
	if cfg.Export.Archive {
		store, err := blob.Open(ctx, cfg.BlobStore())
		if err != nil {
			sessions.Close()
			return nil, fmt.Errorf("open export archive: %w", err)
		}
		logger.Info("export archive enabled", "driver", store.Driver())
		exporterOpts = append(exporterOpts, export.WithBlobStore(store))
	}

	handler, err := web.NewServer(svc, sessions,
		web.WithLogger(logger),
		web.WithRegistry(reg),
		web.WithExporter(export.NewExporter(exporterOpts...)),
		web.WithArchive(cfg.Export.Archive),
	)
	if err != nil {
		sessions.Close()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, sessions: sessions, handler: handler, registry: reg, tracer: tracer}, nil
}

func (a *app) close() {
	a.sessions.Close()
}

// serve listens until ctx is cancelled, then drains in-flight requests.
func (a *app) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", a.cfg.Addr, "storage", a.cfg.Storage.Driver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

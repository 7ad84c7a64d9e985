// Package web serves the GrowPilot form pages and JSON API.
package web

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"growpilot/internal/adapters/export"
	"growpilot/internal/barcode"
	"growpilot/internal/core"
	"growpilot/internal/session"
)

// SessionCookie carries the session ID.
const SessionCookie = "growpilot_session"

const maxBodyBytes = 1 << 20

// Server routes HTTP requests to the service. Every request acts on the
// caller's own session store.
type Server struct {
	svc      *core.Service
	sessions *session.Manager
	exporter *export.Exporter
	barcodes *barcode.Decoder
	logger   core.Logger
	registry *prometheus.Registry
	archive  bool
	pages    *templates
	handler  http.Handler
}

// Option customises a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger core.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegistry sets the registry that HTTP metrics are registered with and
// /metrics serves.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// WithExporter replaces the default exporter.
func WithExporter(exp *export.Exporter) Option {
	return func(s *Server) {
		if exp != nil {
			s.exporter = exp
		}
	}
}

// WithBarcodeDecoder replaces the default decoder.
func WithBarcodeDecoder(d *barcode.Decoder) Option {
	return func(s *Server) {
		if d != nil {
			s.barcodes = d
		}
	}
}

// WithArchive archives every export download when the exporter has a blob
// store.
func WithArchive(enabled bool) Option {
	return func(s *Server) { s.archive = enabled }
}

// NewServer wires the routes.
func NewServer(svc *core.Service, sessions *session.Manager, opts ...Option) (*Server, error) {
	if svc == nil || sessions == nil {
		return nil, fmt.Errorf("web: service and session manager are required")
	}
	s := &Server{
		svc:      svc,
		sessions: sessions,
		exporter: export.NewExporter(),
		barcodes: barcode.NewDecoder(),
		logger:   nopLogger{},
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	pages, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	s.pages = pages

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleDashboardPage)
	mux.HandleFunc("GET /pages/{page}", s.handlePage)
	mux.HandleFunc("POST /pages/{page}", s.handleSubmit)
	mux.HandleFunc("POST /pages/log-nutrients/scan", s.handleScanPage)

	mux.HandleFunc("POST /api/plants", s.handleAddPlant)
	mux.HandleFunc("POST /api/watering", s.handleLogWatering)
	mux.HandleFunc("POST /api/nutrients", s.handleLogNutrients)
	mux.HandleFunc("POST /api/harvests", s.handleLogHarvest)
	mux.HandleFunc("GET /api/records/{category}", s.handleRecords)
	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("POST /api/barcode", s.handleBarcode)
	mux.HandleFunc("GET /api/archive", s.handleArchived)
	mux.HandleFunc("DELETE /api/session", s.handleEndSession)

	mux.HandleFunc("GET /export/{file}", s.handleExport)
	mux.HandleFunc("GET /charts/{file}", s.handleChart)

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.Handle("GET /debug/vars", expvar.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealth)

	instrumented, err := instrument(s.registry, mux)
	if err != nil {
		return nil, err
	}
	s.handler = s.logRequests(instrumented)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func instrument(reg prometheus.Registerer, next http.Handler) (http.Handler, error) {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "growpilot",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by status code and method.",
	}, []string{"code", "method"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "growpilot",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
	for _, c := range []prometheus.Collector{requests, duration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register http metrics: %w", err)
		}
	}
	return promhttp.InstrumentHandlerCounter(requests, promhttp.InstrumentHandlerDuration(duration, next)), nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		args := []any{"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start)}
		if rec.status >= http.StatusInternalServerError {
			s.logger.Error("http request", args...)
			return
		}
		s.logger.Debug("http request", args...)
	})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// currentSession returns the caller's session, starting one when the cookie
// is missing or stale.
func (s *Server) currentSession(ctx context.Context, w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if sess, ok := s.sessions.Get(c.Value); ok {
			return sess, nil
		}
	}
	if n := s.sessions.Sweep(); n > 0 {
		s.logger.Info("expired idle sessions", "count", n)
	}
	sess, err := s.sessions.Create(ctx)
	if err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.logger.Debug("session started", "session", sess.ID)
	return sess, nil
}

// withSession runs fn under the session lock.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request, fn func(sess *session.Session) error) error {
	sess, err := s.currentSession(r.Context(), w, r)
	if err != nil {
		return err
	}
	return sess.Do(func(_ core.RecordStore) error { return fn(sess) })
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || !s.sessions.End(c.Value) {
		writeError(w, http.StatusNotFound, session.ErrNotFound.Error())
		return
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.sessions.Len()})
}

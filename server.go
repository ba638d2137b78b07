package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/fjacquet/cpmgmt/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const readHeaderTimeout = 5 * time.Second // HTTP server read header timeout

// Server exposes the client metrics and a health check while
// "apply --watch" is running.
//
// Error Handling:
// Server errors (such as port binding failures) are communicated through the ErrorChan()
// channel rather than calling log.Fatal. This allows the caller to perform graceful
// shutdown even when the server encounters errors.
//
// Usage:
//
//	server := NewServer(cfg, registry, false)
//	if err := server.Start(); err != nil {
//	    return err
//	}
//
//	select {
//	case <-ctx.Done():
//	    // Normal shutdown
//	case err := <-server.ErrorChan():
//	    log.Errorf("Server error: %v", err)
//	}
//
//	server.Shutdown()
type Server struct {
	cfg      models.Config
	httpSrv  *http.Server
	registry *prometheus.Registry
	tracing  bool

	// healthy is false while the last playbook run failed.
	healthy atomic.Bool

	// serverErrChan receives HTTP server errors. It is buffered (capacity 1)
	// to ensure the goroutine can send an error even if the main select
	// hasn't started listening yet (race between Start() return and select).
	serverErrChan chan error
}

// NewServer creates a server publishing registry. When tracing is set,
// incoming W3C trace context is extracted from scrape requests.
func NewServer(cfg models.Config, registry *prometheus.Registry, tracing bool) *Server {
	s := &Server{
		cfg:           cfg,
		registry:      registry,
		tracing:       tracing,
		serverErrChan: make(chan error, 1), // Buffered to prevent goroutine leak
	}
	s.healthy.Store(true)
	return s
}

// Handler returns the HTTP routes:
//   - Metrics endpoint at the configured URI (default: /metrics)
//   - Health check endpoint at /health
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	var metricsHandler http.Handler = promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
	if s.tracing {
		metricsHandler = extractTraceContextMiddleware(metricsHandler)
	}

	mux.Handle(s.cfg.Server.URI, metricsHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Start listens on server.host:server.port in a goroutine.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.GetServerAddress(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Infof("Serving metrics on %s%s", s.cfg.GetServerAddress(), s.cfg.Server.URI)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Send error through channel instead of log.Fatalf
			s.serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	return nil
}

// ErrorChan returns the channel for receiving server errors.
func (s *Server) ErrorChan() <-chan error {
	return s.serverErrChan
}

// SetHealthy records the outcome of the last playbook run.
func (s *Server) SetHealthy(ok bool) {
	s.healthy.Store(ok)
}

// Shutdown stops accepting connections and waits for active requests
// (up to shutdownTimeout).
func (s *Server) Shutdown() error {
	if s.httpSrv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("Shutting down HTTP server...")
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}

	log.Info("Server stopped gracefully")
	return nil
}

// extractTraceContextMiddleware wraps an HTTP handler to extract trace context from incoming requests.
// If no trace context is present in the request, the handler operates normally without tracing.
func extractTraceContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// healthHandler returns 200 OK while the last playbook run succeeded and
// 503 after a failed run.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !s.healthy.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "last playbook run failed\n")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK\n")
}

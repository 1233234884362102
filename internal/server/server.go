// Package server provides the telemetryd HTTP surface.
//
// The server routes requests to the ingestion pipeline and the stats
// aggregator, wraps every response in the wire envelope and shuts down
// gracefully when its context ends.
package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	defaults "github.com/xtxerr/telemetry/config"
	"github.com/xtxerr/telemetry/internal/config"
	"github.com/xtxerr/telemetry/internal/errors"
	"github.com/xtxerr/telemetry/internal/ingestion"
	"github.com/xtxerr/telemetry/internal/logging"
	"github.com/xtxerr/telemetry/internal/metrics"
	"github.com/xtxerr/telemetry/internal/stats"
	"github.com/xtxerr/telemetry/internal/tracing"
	"github.com/xtxerr/telemetry/internal/wire"
)

var log = logging.Component("server")

// Ingester stores /send bodies.
type Ingester interface {
	Ingest(ctx context.Context, r io.Reader) (ingestion.Event, error)
	MaxBodyBytes() int
}

// Snapshotter produces /stats payloads.
type Snapshotter interface {
	Snapshot(ctx context.Context) (stats.Snapshot, error)
}

// Store is the part of the store client the server reports on.
type Store interface {
	Ping(ctx context.Context) error
	Latency() map[string]metrics.Summary
}

// =============================================================================
// Server Configuration
// =============================================================================

// Config holds server configuration.
type Config struct {
	// HTTP is the listener configuration.
	HTTP config.HTTPConfig

	// RateLimit throttles /send per client IP when enabled.
	RateLimit config.RateLimitConfig

	// Ingester, Stats and Store are required.
	Ingester Ingester
	Stats    Snapshotter
	Store    Store
}

// =============================================================================
// Server
// =============================================================================

// Server is the telemetryd HTTP server.
type Server struct {
	cfg     *Config
	limiter *RateLimiter
	tracer  trace.Tracer
	handler http.Handler
}

// New creates a new server.
func New(cfg *Config) *Server {
	// Apply defaults
	if cfg.HTTP.ReadHeaderTimeout == 0 {
		cfg.HTTP.ReadHeaderTimeout = defaults.DefaultReadHeaderTimeout
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = defaults.DefaultShutdownTimeout
	}

	s := &Server{
		cfg:    cfg,
		tracer: tracing.Tracer(),
	}

	if cfg.RateLimit.Enabled {
		s.limiter = NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL)
	}

	s.handler = s.routes()
	return s
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.HTTP.Addr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then drains in-flight requests for
// at most the shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.HTTP.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("listening", "address", ln.Addr().String())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		log.Info("shutdown complete")
		return nil
	})

	if s.limiter != nil {
		g.Go(func() error {
			s.limiter.Run(gctx)
			return nil
		})
	}

	return g.Wait()
}

// =============================================================================
// Routing
// =============================================================================

func (s *Server) routes() http.Handler {
	var send http.Handler = http.HandlerFunc(s.handleSend)
	if s.limiter != nil {
		send = RateLimit(s.limiter)(send)
	}

	mux := http.NewServeMux()
	mux.Handle("/{$}", allow(http.MethodGet, http.HandlerFunc(s.handleHello)))
	mux.Handle("/stats", allow(http.MethodGet, http.HandlerFunc(s.handleStats)))
	mux.Handle("/stats/latency", allow(http.MethodGet, http.HandlerFunc(s.handleLatency)))
	mux.Handle("/health", allow(http.MethodGet, http.HandlerFunc(s.handleHealth)))
	mux.Handle("/send", allow(http.MethodPost, send))
	mux.HandleFunc("/", handleNotFound)

	return Chain(
		RequestID(),
		AccessLog(),
		Recovery(),
		Trace(s.tracer),
		Timeout(s.cfg.HTTP.RequestTimeout),
	)(mux)
}

// allow restricts h to one method and answers 405 otherwise.
func allow(method string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			wire.Write(w, http.StatusMethodNotAllowed,
				wire.NewErrorf(errors.CodeMethodNotAllowed, "method %s is not allowed on %s", r.Method, r.URL.Path))
			return
		}
		h.ServeHTTP(w, r)
	})
}

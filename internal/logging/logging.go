// Package logging provides structured logging for the telemetry server.
//
// This package wraps the standard library's log/slog package to provide
// consistent logging across all components. It supports both text and JSON
// output formats, configurable log levels, component-based loggers and an
// optional Logstash TCP sink that receives every record as JSON.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init(slog.LevelInfo, false) // Text format
//	logging.Init(slog.LevelDebug, true) // JSON format for production
//
//	// Get a component logger
//	log := logging.Component("ingestion")
//	log.Info("event stored", "id", id)
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// Init initializes the global logger with the specified level and format.
// If jsonFormat is true, logs are output as JSON; otherwise, human-readable text.
func Init(level slog.Level, jsonFormat bool) {
	InitWithHandler(newHandler(os.Stdout, level, jsonFormat))
}

// InitWithHandler initializes the global logger with a custom handler.
// This is useful for testing or custom output destinations.
func InitWithHandler(handler slog.Handler) {
	slog.SetDefault(slog.New(handler))
}

// Options configures Setup.
type Options struct {
	Level       string
	JSON        bool
	LogstashURI string
	Source      string
}

// Setup initializes the global logger from configuration. When LogstashURI is
// set, records are also shipped as JSON over TCP through a bounded queue, so
// a stalled Logstash drops records instead of blocking callers. The returned
// io.Closer flushes the queue and releases the connection.
func Setup(opts Options) (io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	stdout := newHandler(os.Stdout, level, opts.JSON)
	if opts.LogstashURI == "" {
		InitWithHandler(stdout)
		return io.NopCloser(nil), nil
	}

	conn, err := net.DialTimeout("tcp", strings.TrimPrefix(opts.LogstashURI, "tcp://"), 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect logstash %s: %w", opts.LogstashURI, err)
	}

	sink := newShipper(conn, shipperQueueSize, shipperWriteTimeout)

	var logstash slog.Handler = slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: level})
	if opts.Source != "" {
		logstash = logstash.WithAttrs([]slog.Attr{slog.String("source", opts.Source)})
	}

	InitWithHandler(fanout{stdout, logstash})
	return sink, nil
}

// ParseLevel converts a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug", "trace":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func newHandler(w io.Writer, level slog.Level, jsonFormat bool) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}
	if jsonFormat {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// fanout forwards every record to all handlers that accept its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// Component returns a logger for a specific component.
// The component name is added as an attribute to all log entries.
//
// Example:
//
//	log := logging.Component("store")
//	log.Info("pool ready") // Output: time=... level=INFO component=store msg="pool ready"
//
// Component loggers are safe to create in package-level variables: they
// resolve the default handler at log time, so a later Setup takes effect.
func Component(name string) *slog.Logger {
	return slog.New(deferred{}).With("component", name)
}

// deferred resolves slog.Default's handler on every call and replays the
// attributes and groups added to it.
type deferred struct {
	steps []func(slog.Handler) slog.Handler
}

func (d deferred) resolve() slog.Handler {
	h := slog.Default().Handler()
	for _, step := range d.steps {
		h = step(h)
	}
	return h
}

func (d deferred) Enabled(ctx context.Context, level slog.Level) bool {
	return slog.Default().Handler().Enabled(ctx, level)
}

func (d deferred) Handle(ctx context.Context, r slog.Record) error {
	return d.resolve().Handle(ctx, r)
}

func (d deferred) WithAttrs(attrs []slog.Attr) slog.Handler {
	return d.with(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (d deferred) WithGroup(name string) slog.Handler {
	return d.with(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (d deferred) with(step func(slog.Handler) slog.Handler) deferred {
	steps := make([]func(slog.Handler) slog.Handler, len(d.steps), len(d.steps)+1)
	copy(steps, d.steps)
	return deferred{steps: append(steps, step)}
}

// WithContext returns a logger that includes request-scoped context values.
func WithContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if requestID, ok := ctx.Value(contextKeyRequestID).(string); ok {
		base = base.With("request_id", requestID)
	}
	return base
}

// Context key types for type-safe context value extraction.
type contextKey int

const (
	contextKeyRequestID contextKey = iota
)

// ContextWithRequestID adds a request ID to the context for logging.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// RequestIDFromContext returns the request ID stored by ContextWithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

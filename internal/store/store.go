// Package store is the accounting client for the analytical event store.
//
// It wraps a database/sql pool (ClickHouse in production, DuckDB embedded)
// and counts every round-trip it issues. Each operation acquires one pooled
// connection, runs under its own deadline and a tracing span, and releases
// the connection before returning. Driver failures surface as
// errors.ErrStoreUnavailable and never terminate the process.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/marcboeker/go-duckdb"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/telemetry/internal/config"
	"github.com/xtxerr/telemetry/internal/errors"
	"github.com/xtxerr/telemetry/internal/logging"
	"github.com/xtxerr/telemetry/internal/metrics"
	"github.com/xtxerr/telemetry/internal/tracing"
)

var log = logging.Component("store")

// Operation names, used for spans and latency series.
const (
	OpPing   = "ping"
	OpQuery  = "query"
	OpInsert = "insert"
	OpExec   = "exec"
)

// =============================================================================
// Options
// =============================================================================

// Option customizes a Client.
type Option func(*Client)

// WithTracer replaces the tracer used for operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithRecorder replaces the latency recorder.
func WithRecorder(r *metrics.Recorder) Option {
	return func(c *Client) { c.latency = r }
}

// =============================================================================
// Client
// =============================================================================

// Client issues counted round-trips against the analytical store.
//
// Client is safe for concurrent use.
type Client struct {
	db     *sql.DB
	cfg    config.StoreConfig
	driver string

	calls   atomic.Uint64
	closed  atomic.Bool
	latency *metrics.Recorder
	tracer  trace.Tracer
}

// New opens the connection pool described by cfg. It does not contact the
// store; call Ping for that.
func New(cfg config.StoreConfig, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open %s pool: %w", cfg.Driver, err)
	}

	db.SetMaxOpenConns(cfg.PoolMax)
	db.SetMaxIdleConns(cfg.PoolMin)

	c := &Client{
		db:      db,
		cfg:     cfg,
		driver:  cfg.Driver,
		latency: metrics.NewRecorder(),
		tracer:  tracing.Tracer(),
	}
	for _, opt := range opts {
		opt(c)
	}

	log.Debug("pool opened", "driver", cfg.Driver, "dsn", cfg.Redacted(), "pool_min", cfg.PoolMin, "pool_max", cfg.PoolMax)
	return c, nil
}

// Driver returns the configured driver name.
func (c *Client) Driver() string {
	return c.driver
}

// Calls returns the number of store round-trips attempted so far.
func (c *Client) Calls() uint64 {
	return c.calls.Load()
}

// Latency returns per-operation latency statistics.
func (c *Client) Latency() map[string]metrics.Summary {
	return c.latency.Snapshot()
}

// Stats returns the database/sql pool statistics.
func (c *Client) Stats() sql.DBStats {
	return c.db.Stats()
}

// Close closes the pool. Subsequent operations fail with ErrStoreClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.db.Close()
}

// =============================================================================
// Pool Maintenance
// =============================================================================

// Warm opens PoolMin connections concurrently and returns them to the idle
// pool. It is pool maintenance and does not count as a round-trip.
func (c *Client) Warm(ctx context.Context) error {
	if c.closed.Load() {
		return errors.ErrStoreClosed
	}

	n := c.cfg.PoolMin
	if n <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.PingTimeout)
	defer cancel()

	conns := make([]*sql.Conn, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			conn, err := c.db.Conn(gctx)
			if err != nil {
				return err
			}
			conns[i] = conn
			return nil
		})
	}
	err := g.Wait()

	for _, conn := range conns {
		if conn != nil {
			conn.Close()
		}
	}

	if err != nil {
		return errors.NewStoreError("warm", err)
	}

	log.Debug("pool warmed", "connections", n)
	return nil
}

// =============================================================================
// Counted Operations
// =============================================================================

// Ping acquires a pooled connection and checks that the store answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, OpPing, func(ctx context.Context, conn *sql.Conn) error {
		return conn.PingContext(ctx)
	})
}

// Exec runs a statement that returns no rows, such as DDL.
func (c *Client) Exec(ctx context.Context, statement string, args ...any) error {
	return c.do(ctx, OpExec, func(ctx context.Context, conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, statement, args...)
		return err
	})
}

// Query runs a read statement on c and hands the result set to decode. The
// call counts as one round-trip whatever the outcome.
func Query[T any](ctx context.Context, c *Client, statement string, decode func(*sql.Rows) (T, error), args ...any) (T, error) {
	var out T
	err := c.do(ctx, OpQuery, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, statement, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		v, err := decode(rows)
		if err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// do runs fn on one pooled connection under the operation deadline. It
// counts the attempt, records latency and a span, and maps failures to
// ErrStoreUnavailable.
func (c *Client) do(ctx context.Context, op string, fn func(context.Context, *sql.Conn) error) (err error) {
	if c.closed.Load() {
		return fmt.Errorf("%s: %w", op, errors.ErrStoreClosed)
	}

	c.calls.Add(1)

	ctx, span := c.tracer.Start(ctx, "store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.system", c.driver)),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	defer c.latency.Since(op, time.Now(), &err)

	conn, err := c.db.Conn(ctx)
	if err != nil {
		return c.fail(span, op, fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Close()

	if err := fn(ctx, conn); err != nil {
		return c.fail(span, op, err)
	}
	return nil
}

func (c *Client) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	log.Warn("store operation failed", "op", op, "error", err)
	return errors.NewStoreError(op, err)
}

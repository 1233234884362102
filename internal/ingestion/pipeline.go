// Package ingestion turns /send request bodies into stored events.
//
// The pipeline is: size guard → decode → enrich (receipt time and
// snowflake id) → one store insert. Nothing is buffered between requests.
package ingestion

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xtxerr/telemetry/config"
	"github.com/xtxerr/telemetry/internal/errors"
	"github.com/xtxerr/telemetry/internal/logging"
	"github.com/xtxerr/telemetry/internal/snowflake"
	"github.com/xtxerr/telemetry/internal/store"
	"github.com/xtxerr/telemetry/internal/tracing"
)

var log = logging.Component("ingestion")

// IDGenerator issues event identifiers.
type IDGenerator interface {
	Generate() (snowflake.ID, error)
}

// Inserter writes a block of rows to a table.
type Inserter interface {
	Insert(ctx context.Context, table string, block store.Block) error
}

// Options configures a Pipeline.
type Options struct {
	// Table receives one row per event.
	Table string

	// MaxBodyBytes is the largest accepted body.
	MaxBodyBytes int

	// Now overrides the receipt clock, for tests.
	Now func() time.Time
}

// DefaultOptions returns the events table and a 256 KiB body limit.
func DefaultOptions() Options {
	return Options{
		Table:        config.DefaultEventsTable,
		MaxBodyBytes: config.DefaultMaxBodyBytes,
	}
}

// Pipeline orchestrates event ingestion. It is safe for concurrent use.
type Pipeline struct {
	ids   IDGenerator
	store Inserter
	opts  Options

	tracer trace.Tracer
	stats  Stats
}

// Stats holds ingestion statistics.
type Stats struct {
	Received          atomic.Int64
	Ingested          atomic.Int64
	RejectedTooLarge  atomic.Int64
	RejectedMalformed atomic.Int64
	StoreErrors       atomic.Int64
	Errors            atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Received          int64 `json:"received"`
	Ingested          int64 `json:"ingested"`
	RejectedTooLarge  int64 `json:"rejectedTooLarge"`
	RejectedMalformed int64 `json:"rejectedMalformed"`
	StoreErrors       int64 `json:"storeErrors"`
	Errors            int64 `json:"errors"`
}

// New creates a pipeline.
func New(ids IDGenerator, inserter Inserter, opts Options) *Pipeline {
	defaults := DefaultOptions()
	if opts.Table == "" {
		opts.Table = defaults.Table
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Pipeline{
		ids:    ids,
		store:  inserter,
		opts:   opts,
		tracer: tracing.Tracer(),
	}
}

// MaxBodyBytes returns the configured body limit.
func (p *Pipeline) MaxBodyBytes() int {
	return p.opts.MaxBodyBytes
}

// Ingest reads one submission from r and stores it. On success exactly one
// identifier was consumed and exactly one insert was issued. Decode failures
// happen before any identifier or store call.
func (p *Pipeline) Ingest(ctx context.Context, r io.Reader) (Event, error) {
	ctx, span := p.tracer.Start(ctx, "ingestion.ingest")
	defer span.End()

	p.stats.Received.Add(1)

	ev, err := p.ingest(ctx, r)
	if err != nil {
		p.count(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Event{}, err
	}

	p.stats.Ingested.Add(1)
	span.SetAttributes(attribute.String("event.id", ev.ID.String()), attribute.String("event.product", ev.Product))
	return ev, nil
}

func (p *Pipeline) ingest(ctx context.Context, r io.Reader) (Event, error) {
	body, err := ReadBounded(ctx, r, p.opts.MaxBodyBytes)
	if err != nil {
		return Event{}, err
	}

	sub, err := Decode(body)
	if err != nil {
		return Event{}, err
	}

	firedAt := p.opts.Now()

	id, err := p.ids.Generate()
	if err != nil {
		return Event{}, errors.Wrap(err, "generate id")
	}

	ev := sub.Enrich(firedAt, id)
	block, err := ev.Block()
	if err != nil {
		return Event{}, fmt.Errorf("%w: %w", errors.ErrInternal, err)
	}

	if err := p.store.Insert(ctx, p.opts.Table, block); err != nil {
		logging.WithContext(ctx, log).Warn("event insert failed", "id", id, "product", ev.Product, "error", err)
		return Event{}, err
	}

	logging.WithContext(ctx, log).Debug("event stored", "id", id, "product", ev.Product, "vendor", ev.Vendor)
	return ev, nil
}

func (p *Pipeline) count(err error) {
	switch {
	case errors.Is(err, errors.ErrPayloadTooLarge):
		p.stats.RejectedTooLarge.Add(1)
	case errors.Is(err, errors.ErrMalformedPayload):
		p.stats.RejectedMalformed.Add(1)
	case errors.Is(err, errors.ErrStoreUnavailable):
		p.stats.StoreErrors.Add(1)
	default:
		p.stats.Errors.Add(1)
	}
}

// Stats returns a snapshot of the pipeline statistics.
func (p *Pipeline) Stats() StatsSnapshot {
	return StatsSnapshot{
		Received:          p.stats.Received.Load(),
		Ingested:          p.stats.Ingested.Load(),
		RejectedTooLarge:  p.stats.RejectedTooLarge.Load(),
		RejectedMalformed: p.stats.RejectedMalformed.Load(),
		StoreErrors:       p.stats.StoreErrors.Load(),
		Errors:            p.stats.Errors.Load(),
	}
}

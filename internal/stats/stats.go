// Package stats reports aggregate counts over the store.
package stats

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xtxerr/telemetry/internal/errors"
	"github.com/xtxerr/telemetry/internal/logging"
	"github.com/xtxerr/telemetry/internal/store"
	"github.com/xtxerr/telemetry/internal/tracing"
	"github.com/xtxerr/telemetry/internal/validation"
)

var log = logging.Component("stats")

// Snapshot is the /stats payload.
type Snapshot struct {
	// DBCalls is the store round-trip count before the snapshot's own query.
	DBCalls uint64 `json:"dbCalls"`

	// EventsEmitted is the number of rows in the events table.
	EventsEmitted uint64 `json:"eventsEmitted"`
}

// Aggregator builds snapshots. It only reads; the count query is its one
// side effect on the call counter.
type Aggregator struct {
	store  *store.Client
	count  string
	tracer trace.Tracer
}

// New creates an aggregator counting rows of table.
func New(c *store.Client, table string) (*Aggregator, error) {
	if err := validation.ValidateIdentifier(table); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfig, err.Error())
	}
	return &Aggregator{
		store:  c,
		count:  "SELECT COUNT(*) FROM " + table,
		tracer: tracing.Tracer(),
	}, nil
}

// Snapshot reads the call counter, then counts events. A failed count is
// returned as ErrStoreUnavailable and leaves no other state behind.
func (a *Aggregator) Snapshot(ctx context.Context) (Snapshot, error) {
	ctx, span := a.tracer.Start(ctx, "stats.snapshot")
	defer span.End()

	calls := a.store.Calls()

	events, err := store.Query(ctx, a.store, a.count, store.ScanCount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logging.WithContext(ctx, log).Warn("event count failed", "error", err)
		return Snapshot{}, err
	}

	return Snapshot{DBCalls: calls, EventsEmitted: events}, nil
}

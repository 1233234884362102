package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/telemetry/internal/config"
	"github.com/xtxerr/telemetry/internal/errors"
	"github.com/xtxerr/telemetry/internal/store"
)

func newStore(t *testing.T) *store.Client {
	t.Helper()
	c, err := store.New(config.StoreConfig{
		Driver:           config.DriverDuckDB,
		PoolMin:          1,
		PoolMax:          2,
		OperationTimeout: 5 * time.Second,
		PingTimeout:      5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func insertEvents(t *testing.T, c *store.Client, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, c.Insert(context.Background(), "events", store.Block{
			store.StringColumn(store.ColumnData, `{}`),
			store.Uint64Column(store.ColumnID, uint64(i+1)),
			store.StringColumn(store.ColumnProduct, "charted-server"),
			store.StringColumn(store.ColumnVendor, "Noelware"),
		}))
	}
}

func TestNewRejectsBadTable(t *testing.T) {
	_, err := New(newStore(t), "events; DROP TABLE events")
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	c := newStore(t)

	require.NoError(t, c.EnsureSchema(ctx, "events"))
	insertEvents(t, c, 3)
	require.NoError(t, c.Ping(ctx))

	agg, err := New(c, "events")
	require.NoError(t, err)

	// EnsureSchema, three inserts and a ping.
	snap, err := agg.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, Snapshot{DBCalls: 5, EventsEmitted: 3}, snap)

	// The previous snapshot's count query is now visible.
	snap, err = agg.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), snap.DBCalls)
	assert.Equal(t, uint64(7), c.Calls())
}

func TestSnapshotEmptyTable(t *testing.T) {
	ctx := context.Background()
	c := newStore(t)
	require.NoError(t, c.EnsureSchema(ctx, "events"))

	agg, err := New(c, "events")
	require.NoError(t, err)

	snap, err := agg.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), snap.EventsEmitted)
	assert.Equal(t, uint64(1), snap.DBCalls)
}

func TestSnapshotStoreFailure(t *testing.T) {
	ctx := context.Background()
	c := newStore(t)

	// No schema: the count query fails.
	agg, err := New(c, "events")
	require.NoError(t, err)

	_, err = agg.Snapshot(ctx)
	assert.ErrorIs(t, err, errors.ErrStoreUnavailable)
	assert.Equal(t, uint64(1), c.Calls(), "failed query still counts")

	// Recovers once the table exists.
	require.NoError(t, c.EnsureSchema(ctx, "events"))
	snap, err := agg.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.DBCalls)
}

package ingestion

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/telemetry/internal/config"
	"github.com/xtxerr/telemetry/internal/errors"
	"github.com/xtxerr/telemetry/internal/snowflake"
	"github.com/xtxerr/telemetry/internal/store"
	testutil "github.com/xtxerr/telemetry/internal/testing"
)

// =============================================================================
// Fakes
// =============================================================================

type countingGenerator struct {
	mu    sync.Mutex
	next  snowflake.ID
	calls int
	err   error
}

func (g *countingGenerator) Generate() (snowflake.ID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return 0, g.err
	}
	g.next++
	return g.next, nil
}

type recordingInserter struct {
	mu     sync.Mutex
	tables []string
	blocks []store.Block
	err    error
}

func (r *recordingInserter) Insert(_ context.Context, table string, block store.Block) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables = append(r.tables, table)
	r.blocks = append(r.blocks, block)
	return r.err
}

func (r *recordingInserter) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.blocks)
}

var fixedNow = time.Date(2024, time.March, 9, 12, 30, 0, 123456789, time.FixedZone("CET", 3600))

func newTestPipeline(gen *countingGenerator, ins *recordingInserter) *Pipeline {
	opts := DefaultOptions()
	opts.Now = func() time.Time { return fixedNow }
	return New(gen, ins, opts)
}

// =============================================================================
// ReadBounded
// =============================================================================

func TestReadBoundedLimit(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"empty", 0, false},
		{"small", 100, false},
		{"exactly limit", 262144, false},
		{"one over limit", 262145, true},
		{"far over limit", 1 << 20, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := ReadBounded(ctx, bytes.NewReader(make([]byte, tt.size)), 262144)
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrPayloadTooLarge)
				assert.Contains(t, err.Error(), "256 KiB")
				return
			}
			require.NoError(t, err)
			assert.Len(t, body, tt.size)
		})
	}
}

func TestReadBoundedSmallReads(t *testing.T) {
	// One byte per Read exercises the per-chunk check at the boundary.
	data := bytes.Repeat([]byte("x"), 1000)

	body, err := ReadBounded(context.Background(), iotest.OneByteReader(bytes.NewReader(data)), 1000)
	require.NoError(t, err)
	assert.Equal(t, data, body)

	_, err = ReadBounded(context.Background(), iotest.OneByteReader(bytes.NewReader(data)), 999)
	assert.ErrorIs(t, err, errors.ErrPayloadTooLarge)
}

func TestReadBoundedStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadBounded(ctx, strings.NewReader("{}"), 100)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadBoundedReadError(t *testing.T) {
	_, err := ReadBounded(context.Background(), iotest.ErrReader(io.ErrUnexpectedEOF), 100)
	assert.ErrorIs(t, err, errors.ErrMalformedPayload)
}

// =============================================================================
// Decode
// =============================================================================

func TestDecodeValid(t *testing.T) {
	sub, err := Decode(testutil.EventBody(testutil.EventFields()))
	require.NoError(t, err)

	assert.Equal(t, "charted-server", sub.Product)
	assert.Equal(t, "Noelware", sub.Vendor)
	assert.Equal(t, "amd64", sub.Arch)
	assert.Equal(t, "linux", sub.OS)
	assert.Equal(t, "0.1.0-beta", sub.Version)
	assert.Equal(t, "docker", sub.Distribution)
	assert.JSONEq(t, `{"uptime":42}`, string(sub.Data))
}

func TestDecodeDataAcceptsAnyJSON(t *testing.T) {
	for _, data := range []any{nil, "text", 3.5, []any{1, "two"}, map[string]any{}} {
		fields := testutil.EventFields()
		fields["data"] = data

		_, err := Decode(testutil.EventBody(fields))
		assert.NoError(t, err, "data=%v", data)
	}
}

func TestDecodeMalformed(t *testing.T) {
	without := func(field string) []byte {
		f := testutil.EventFields()
		delete(f, field)
		return testutil.EventBody(f)
	}
	with := func(field string, v any) []byte {
		f := testutil.EventFields()
		f[field] = v
		return testutil.EventBody(f)
	}
	valid := testutil.EventBody(testutil.EventFields())

	tests := []struct {
		name string
		body []byte
	}{
		{"empty", nil},
		{"not json", []byte("product=charted")},
		{"array", []byte(`[1,2,3]`)},
		{"null", []byte(`null`)},
		{"truncated", valid[:len(valid)-1]},
		{"trailing object", append(append([]byte{}, valid...), []byte(`{}`)...)},
		{"trailing garbage", append(append([]byte{}, valid...), []byte(`x`)...)},
		{"missing product", without("product")},
		{"missing vendor", without("vendor")},
		{"missing distribution", without("distribution")},
		{"missing data", without("data")},
		{"numeric product", with("product", 42)},
		{"null vendor", with("vendor", nil)},
		{"object os", with("os", map[string]any{"name": "linux"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.body)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrMalformedPayload)
			assert.Equal(t, errors.CodeMalformedPayload, errors.ErrorToCode(err))
		})
	}
}

func TestDecodeKeepsStringsVerbatim(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value string
	}{
		{"long version", "version", strings.Repeat("1", 4096)},
		{"tab", "product", "charted\tserver"},
		{"newline", "os", "linux\n"},
		{"control char", "arch", "amd\u000164"},
		{"empty", "vendor", ""},
		{"unicode", "distribution", "Noelware Ürün"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testutil.EventFields()
			f[tt.field] = tt.value

			sub, err := Decode(testutil.EventBody(f))
			require.NoError(t, err)

			got := map[string]string{
				"product":      sub.Product,
				"vendor":       sub.Vendor,
				"arch":         sub.Arch,
				"os":           sub.OS,
				"version":      sub.Version,
				"distribution": sub.Distribution,
			}
			assert.Equal(t, tt.value, got[tt.field])
		})
	}
}

func TestDecodeNamesMissingField(t *testing.T) {
	f := testutil.EventFields()
	delete(f, "product")

	_, err := Decode(testutil.EventBody(f))
	assert.ErrorIs(t, err, errors.ErrMissingField)
	assert.Contains(t, err.Error(), `"product"`)
}

// =============================================================================
// Pipeline
// =============================================================================

func TestIngestWellFormed(t *testing.T) {
	gen := &countingGenerator{next: 41}
	ins := &recordingInserter{}
	p := newTestPipeline(gen, ins)

	ev, err := p.Ingest(context.Background(), bytes.NewReader(testutil.EventBody(testutil.EventFields())))
	require.NoError(t, err)

	assert.Equal(t, 1, gen.calls, "exactly one id consumed")
	require.Equal(t, 1, ins.calls(), "exactly one insert")
	assert.Equal(t, "events", ins.tables[0])

	assert.Equal(t, snowflake.ID(42), ev.ID)
	assert.Equal(t, fixedNow.UTC(), ev.FiredAt)

	block := ins.blocks[0]
	rows, err := block.Rows()
	require.NoError(t, err)
	assert.Equal(t, 1, rows)
	assert.Equal(t, store.EventColumns, block.Names())

	row := block.Row(0)
	assert.Equal(t, uint64(42), row[1])
	assert.Equal(t, "charted-server", row[2])
	assert.Equal(t, "Noelware", row[3])

	var stored map[string]any
	require.NoError(t, json.Unmarshal([]byte(row[0].(string)), &stored))
	assert.Equal(t, "42", stored["id"])
	assert.Equal(t, "2024-03-09T11:30:00.123456789Z", stored["firedAt"])
	assert.Equal(t, "charted-server", stored["product"])
	assert.Equal(t, "docker", stored["distribution"])
	assert.Equal(t, map[string]any{"uptime": float64(42)}, stored["data"])

	assert.Equal(t, StatsSnapshot{Received: 1, Ingested: 1}, p.Stats())
}

func TestIngestOverwritesClientIdentity(t *testing.T) {
	gen := &countingGenerator{next: 99}
	ins := &recordingInserter{}
	p := newTestPipeline(gen, ins)

	fields := testutil.EventFields()
	fields["id"] = "1"
	fields["firedAt"] = "1999-01-01T00:00:00Z"
	fields["extra"] = true

	_, err := p.Ingest(context.Background(), bytes.NewReader(testutil.EventBody(fields)))
	require.NoError(t, err)

	var stored map[string]any
	require.NoError(t, json.Unmarshal([]byte(ins.blocks[0].Row(0)[0].(string)), &stored))
	assert.Equal(t, "100", stored["id"], "id comes from the generator")
	assert.NotEqual(t, "1999-01-01T00:00:00Z", stored["firedAt"])
	assert.NotContains(t, stored, "extra")
}

func TestIngestRejectsBeforeConsumingAnything(t *testing.T) {
	tests := []struct {
		name string
		body []byte
		want error
	}{
		{"too large", testutil.SizedEventBody(262145), errors.ErrPayloadTooLarge},
		{"malformed", []byte(`{"product":`), errors.ErrMalformedPayload},
		{"missing field", []byte(`{"vendor":"x"}`), errors.ErrMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &countingGenerator{}
			ins := &recordingInserter{}
			p := newTestPipeline(gen, ins)

			_, err := p.Ingest(context.Background(), bytes.NewReader(tt.body))
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, gen.calls)
			assert.Equal(t, 0, ins.calls())
		})
	}
}

func TestIngestExactLimitIsAccepted(t *testing.T) {
	gen := &countingGenerator{}
	ins := &recordingInserter{}
	p := newTestPipeline(gen, ins)

	_, err := p.Ingest(context.Background(), bytes.NewReader(testutil.SizedEventBody(262144)))
	require.NoError(t, err)
	assert.Equal(t, 1, ins.calls())
}

func TestIngestStoreFailureIsRecoverable(t *testing.T) {
	gen := &countingGenerator{}
	ins := &recordingInserter{err: errors.NewStoreError("insert", io.ErrClosedPipe)}
	p := newTestPipeline(gen, ins)

	body := testutil.EventBody(testutil.EventFields())

	_, err := p.Ingest(context.Background(), bytes.NewReader(body))
	assert.ErrorIs(t, err, errors.ErrStoreUnavailable)

	ins.err = nil
	_, err = p.Ingest(context.Background(), bytes.NewReader(body))
	require.NoError(t, err)

	s := p.Stats()
	assert.Equal(t, int64(2), s.Received)
	assert.Equal(t, int64(1), s.Ingested)
	assert.Equal(t, int64(1), s.StoreErrors)
}

func TestIngestClockRegression(t *testing.T) {
	gen := &countingGenerator{err: errors.ErrClockRegression}
	ins := &recordingInserter{}
	p := newTestPipeline(gen, ins)

	_, err := p.Ingest(context.Background(), bytes.NewReader(testutil.EventBody(testutil.EventFields())))
	assert.ErrorIs(t, err, errors.ErrClockRegression)
	assert.Equal(t, 0, ins.calls())
	assert.Equal(t, int64(1), p.Stats().Errors)
}

func TestIngestStats(t *testing.T) {
	p := newTestPipeline(&countingGenerator{}, &recordingInserter{})
	ctx := context.Background()

	p.Ingest(ctx, bytes.NewReader(testutil.EventBody(testutil.EventFields())))
	p.Ingest(ctx, bytes.NewReader([]byte("{")))
	p.Ingest(ctx, bytes.NewReader(testutil.SizedEventBody(300000)))

	assert.Equal(t, StatsSnapshot{
		Received:          3,
		Ingested:          1,
		RejectedTooLarge:  1,
		RejectedMalformed: 1,
	}, p.Stats())
}

// =============================================================================
// Against an embedded store
// =============================================================================

func TestIngestPersistsToDuckDB(t *testing.T) {
	ctx := context.Background()

	client, err := store.New(config.StoreConfig{
		Driver:           config.DriverDuckDB,
		PoolMin:          1,
		PoolMax:          2,
		OperationTimeout: 5 * time.Second,
		PingTimeout:      5 * time.Second,
	})
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.EnsureSchema(ctx, "events"))

	gen, err := snowflake.New(snowflake.DefaultOptions())
	require.NoError(t, err)

	p := New(gen, client, DefaultOptions())

	fields := testutil.EventFields()
	fields["product"] = "Hazel ✨"
	fields["vendor"] = "Noelware, LLC."

	before := client.Calls()
	ev, err := p.Ingest(ctx, bytes.NewReader(testutil.EventBody(fields)))
	require.NoError(t, err)
	assert.Equal(t, before+1, client.Calls(), "one store round-trip per event")

	type row struct {
		data, product, vendor string
		id                    uint64
	}
	got, err := store.Query(ctx, client, "SELECT Data, ID, Product, Vendor FROM events", func(rs *sql.Rows) (row, error) {
		var r row
		if !rs.Next() {
			return r, io.EOF
		}
		err := rs.Scan(&r.data, &r.id, &r.product, &r.vendor)
		return r, err
	})
	require.NoError(t, err)

	assert.Equal(t, "Hazel ✨", got.product)
	assert.Equal(t, "Noelware, LLC.", got.vendor)
	assert.Equal(t, ev.ID.Uint64(), got.id)

	var stored Event
	require.NoError(t, json.Unmarshal([]byte(got.data), &stored))
	assert.Equal(t, ev.ID, stored.ID)
	assert.True(t, stored.FiredAt.Equal(ev.FiredAt))
}

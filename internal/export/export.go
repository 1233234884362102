// Package export dumps the events table to Parquet files.
//
// Rows are fetched in ID order with keyset pagination, one store query per
// batch, so an export never holds more than one batch in memory.
package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/xtxerr/telemetry/internal/errors"
	"github.com/xtxerr/telemetry/internal/logging"
	"github.com/xtxerr/telemetry/internal/store"
	"github.com/xtxerr/telemetry/internal/validation"
)

var log = logging.Component("export")

// Result describes a finished export.
type Result struct {
	Path    string
	Rows    int64
	Batches int
	Bytes   int64
}

// Exporter copies events from the store into Parquet files.
type Exporter struct {
	store *store.Client
	query string
	opts  Options
}

// New creates an exporter for table.
func New(c *store.Client, table string, opts Options) (*Exporter, error) {
	if err := validation.ValidateIdentifier(table); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfig, err.Error())
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions().BatchSize
	}

	query := fmt.Sprintf("SELECT %s, %s, %s, %s FROM %s WHERE %s > ? ORDER BY %s LIMIT %s",
		store.ColumnID, store.ColumnProduct, store.ColumnVendor, store.ColumnData,
		table, store.ColumnID, store.ColumnID, strconv.Itoa(opts.BatchSize))

	return &Exporter{store: c, query: query, opts: opts}, nil
}

// Export writes every event to path. On failure the partial file is removed.
func (e *Exporter) Export(ctx context.Context, path string) (res Result, err error) {
	w, err := NewWriter(path, e.opts)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if cerr := w.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	var after uint64
	for {
		rows, err := store.Query(ctx, e.store, e.query, scanEvents, after)
		if err != nil {
			return Result{}, fmt.Errorf("fetch batch after id %d: %w", after, err)
		}
		res.Batches++

		if err := w.Write(rows); err != nil {
			return Result{}, err
		}
		if len(rows) < e.opts.BatchSize {
			break
		}
		after = rows[len(rows)-1].ID

		log.Debug("batch exported", "rows", len(rows), "last_id", after)
	}

	if err := w.Close(); err != nil {
		return Result{}, err
	}

	res.Path = path
	res.Rows = w.RowCount()
	if err := verify(path, res.Rows); err != nil {
		return Result{}, err
	}
	if st, err := os.Stat(path); err == nil {
		res.Bytes = st.Size()
	}

	log.Info("export complete", "path", path, "rows", res.Rows, "batches", res.Batches, "size", humanize.IBytes(uint64(res.Bytes)))
	return res, nil
}

// verify reopens the finished file and checks its footer row count.
func verify(path string, want int64) error {
	r, err := NewReader(path)
	if err != nil {
		return fmt.Errorf("reopen export: %w", err)
	}
	defer r.Close()

	if got := r.NumRows(); got != want {
		return errors.Wrapf(errors.ErrInternal, "export %s holds %d rows, wrote %d", path, got, want)
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]EventRow, error) {
	var out []EventRow
	for rows.Next() {
		var (
			id                    uint64
			product, vendor, data string
		)
		if err := rows.Scan(&id, &product, &vendor, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, NewEventRow(id, product, vendor, data))
	}
	return out, rows.Err()
}

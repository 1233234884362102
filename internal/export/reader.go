package export

import (
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/xtxerr/telemetry/internal/errors"
)

// Reader reads event rows from a Parquet file.
type Reader struct {
	file   *os.File
	reader *parquet.GenericReader[EventRow]
	path   string
}

// NewReader opens an exported file.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	pf, err := parquet.OpenFile(f, info.Size(), parquet.ReadBufferSize(1024*1024))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open parquet file %s: %w", path, err)
	}

	reader := parquet.NewGenericReader[EventRow](pf)

	return &Reader{
		file:   f,
		reader: reader,
		path:   path,
	}, nil
}

// Read reads up to n rows. It returns an empty slice at the end of the file.
func (r *Reader) Read(n int) ([]EventRow, error) {
	rows := make([]EventRow, n)
	count, err := r.reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return rows[:count], nil
}

// ReadAll reads every row of the file.
func (r *Reader) ReadAll() ([]EventRow, error) {
	return r.Read(int(r.reader.NumRows()))
}

// NumRows returns the total number of rows in the file.
func (r *Reader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *Reader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *Reader) Path() string {
	return r.path
}

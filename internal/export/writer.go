package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/telemetry/internal/snowflake"
)

// Options configures the Parquet writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// BatchSize is the number of rows fetched from the store per query
	BatchSize int
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default export options.
func DefaultOptions() Options {
	return Options{
		Compression: CompressionZstd,
		BatchSize:   10000,
	}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) (CompressionType, error) {
	switch s {
	case "snappy":
		return CompressionSnappy, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	case "gzip":
		return CompressionGzip, nil
	case "none", "":
		return CompressionNone, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression %q", s)
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// EventRow is one stored event in Parquet format.
type EventRow struct {
	ID          uint64 `parquet:"id"`
	TimestampMs int64  `parquet:"timestamp_ms"`
	Product     string `parquet:"product,dict"`
	Vendor      string `parquet:"vendor,dict"`
	Data        string `parquet:"data"`
}

// NewEventRow builds a row from the stored columns. The timestamp is the
// one encoded in the identifier.
func NewEventRow(id uint64, product, vendor, data string) EventRow {
	return EventRow{
		ID:          id,
		TimestampMs: snowflake.Parse(snowflake.ID(id)).Time.UnixMilli(),
		Product:     product,
		Vendor:      vendor,
		Data:        data,
	}
}

// Writer writes event rows to a Parquet file.
type Writer struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[EventRow]
	rowCount int64
	closed   bool
}

// NewWriter creates a new event Parquet writer.
func NewWriter(path string, opts Options) (*Writer, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writer := parquet.NewGenericWriter[EventRow](f,
		parquet.Compression(getCompression(opts.Compression)),
	)

	return &Writer{
		path:   path,
		file:   f,
		writer: writer,
	}, nil
}

// Write appends rows to the file.
func (w *Writer) Write(rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	return nil
}

// Close flushes the footer and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *Writer) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.path
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = fmt.Errorf("parquet writer is closed")

package ingestion

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/xtxerr/telemetry/internal/errors"
)

// readChunkSize is the size of a single read from the request body.
const readChunkSize = 32 * 1024

// ReadBounded reads r to EOF and returns the bytes, failing with
// ErrPayloadTooLarge as soon as the total would exceed limit. The size check
// runs before each chunk is appended, so the buffer never holds more than
// limit bytes. A body of exactly limit bytes is accepted.
func ReadBounded(ctx context.Context, r io.Reader, limit int) ([]byte, error) {
	buf := make([]byte, 0, min(limit, 64*1024))
	chunk := make([]byte, readChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := r.Read(chunk)
		if n > 0 {
			if len(buf)+n > limit {
				return nil, fmt.Errorf("%w: body exceeds %s", errors.ErrPayloadTooLarge, humanize.IBytes(uint64(limit)))
			}
			buf = append(buf, chunk[:n]...)
		}

		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %w", errors.ErrMalformedPayload, err)
		}
	}
}

// Package snowflake generates 63-bit, time-ordered event identifiers.
//
// Layout (most significant bit first):
//
//	| 1 unused | 41 ms since epoch | 5 datacenter | 5 worker | 12 sequence |
//
// Identifiers from one Generator are strictly increasing across goroutines.
package snowflake

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/xtxerr/telemetry/config"
	"github.com/xtxerr/telemetry/internal/errors"
)

// Epoch is 2022-06-01T00:00:00Z in Unix milliseconds.
const Epoch int64 = 1654041600000

const (
	datacenterBits = 5
	workerBits     = 5
	sequenceBits   = 12

	MaxDatacenterID = 1<<datacenterBits - 1
	MaxWorkerID     = 1<<workerBits - 1
	MaxSequence     = 1<<sequenceBits - 1

	workerShift     = sequenceBits
	datacenterShift = sequenceBits + workerBits
	timestampShift  = sequenceBits + workerBits + datacenterBits
)

// ID is a generated identifier.
type ID int64

// Int64 returns the identifier as a signed integer.
func (id ID) Int64() int64 { return int64(id) }

// Uint64 returns the identifier as stored in the UInt64 ID column.
func (id ID) Uint64() uint64 { return uint64(id) }

// String returns the decimal form.
func (id ID) String() string { return strconv.FormatInt(int64(id), 10) }

// MarshalJSON encodes the identifier as a decimal string so that clients
// holding float64 numbers do not lose precision.
func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON accepts both the string and the bare number form.
func (id *ID) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse snowflake id %q: %w", s, err)
	}
	*id = ID(v)
	return nil
}

// Parts is a decoded identifier.
type Parts struct {
	Time         time.Time
	Elapsed      int64
	DatacenterID int64
	WorkerID     int64
	Sequence     int64
}

// Parse splits id into its fields.
func Parse(id ID) Parts {
	v := int64(id)
	elapsed := v >> timestampShift
	return Parts{
		Time:         time.UnixMilli(Epoch + elapsed).UTC(),
		Elapsed:      elapsed,
		DatacenterID: (v >> datacenterShift) & MaxDatacenterID,
		WorkerID:     (v >> workerShift) & MaxWorkerID,
		Sequence:     v & MaxSequence,
	}
}

// Options configures a Generator.
type Options struct {
	DatacenterID int64
	WorkerID     int64

	// MaxClockDrift is how far the clock may step back before Generate
	// returns ErrClockRegression instead of waiting.
	MaxClockDrift time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultOptions returns datacenter 31, worker 1 and a 5ms drift tolerance.
func DefaultOptions() Options {
	return Options{
		DatacenterID:  config.DefaultDatacenterID,
		WorkerID:      config.DefaultWorkerID,
		MaxClockDrift: config.DefaultMaxClockDrift,
	}
}

// Generator issues identifiers. It is safe for concurrent use.
type Generator struct {
	mu sync.Mutex

	datacenterID int64
	workerID     int64
	maxDrift     int64
	now          func() time.Time

	lastMs   int64
	sequence int64
}

// New creates a generator.
func New(opts Options) (*Generator, error) {
	if opts.DatacenterID < 0 || opts.DatacenterID > MaxDatacenterID {
		return nil, fmt.Errorf("datacenter id %d out of range 0..%d: %w", opts.DatacenterID, MaxDatacenterID, errors.ErrInvalidConfig)
	}
	if opts.WorkerID < 0 || opts.WorkerID > MaxWorkerID {
		return nil, fmt.Errorf("worker id %d out of range 0..%d: %w", opts.WorkerID, MaxWorkerID, errors.ErrInvalidConfig)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Generator{
		datacenterID: opts.DatacenterID,
		workerID:     opts.WorkerID,
		maxDrift:     opts.MaxClockDrift.Milliseconds(),
		now:          opts.Now,
		lastMs:       -1,
	}, nil
}

// Generate returns the next identifier.
//
// Within one millisecond the sequence increments; once it is exhausted the
// call blocks until the next millisecond. If the clock moved back by no more
// than MaxClockDrift the call waits for it to catch up, otherwise it fails
// with ErrClockRegression and the generator state is unchanged.
func (g *Generator) Generate() (ID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.elapsed()
	if ms < 0 {
		return 0, fmt.Errorf("%w: clock is before the epoch", errors.ErrClockRegression)
	}
	if ms >= 1<<(63-timestampShift) {
		return 0, fmt.Errorf("%w: timestamp overflows %d bits", errors.ErrInternal, 63-timestampShift)
	}

	if ms < g.lastMs {
		behind := g.lastMs - ms
		if behind > g.maxDrift {
			return 0, fmt.Errorf("%w: %dms behind last issued id", errors.ErrClockRegression, behind)
		}
		ms = g.waitUntil(g.lastMs)
	}

	if ms == g.lastMs {
		if g.sequence == MaxSequence {
			ms = g.waitUntil(g.lastMs + 1)
			g.sequence = 0
		} else {
			g.sequence++
		}
	} else {
		g.sequence = 0
	}

	g.lastMs = ms
	return ID(ms<<timestampShift | g.datacenterID<<datacenterShift | g.workerID<<workerShift | g.sequence), nil
}

func (g *Generator) elapsed() int64 {
	return g.now().UnixMilli() - Epoch
}

// waitUntil spins until the clock reaches at least target and returns the
// elapsed milliseconds observed.
func (g *Generator) waitUntil(target int64) int64 {
	ms := g.elapsed()
	for ms < target {
		time.Sleep(time.Duration(target-ms) * time.Millisecond / 2)
		ms = g.elapsed()
	}
	return ms
}

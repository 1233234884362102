// Package metrics keeps streaming latency statistics with DDSketch
// percentiles.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/xtxerr/telemetry/config"
)

// Summary is a point-in-time view of one latency series. Durations are in
// milliseconds.
type Summary struct {
	Count  int64   `json:"count"`
	Errors int64   `json:"errors"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Avg    float64 `json:"avg"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
}

// Latency maintains running statistics for one operation.
type Latency struct {
	mu sync.Mutex

	count  int64
	errors int64
	sum    float64
	min    float64
	max    float64

	// nil if the sketch could not be built
	sketch   *ddsketch.DDSketch
	accuracy float64
}

// NewLatency creates a series with the given relative percentile accuracy
// (0.01 = 1% error).
func NewLatency(accuracy float64) *Latency {
	l := &Latency{
		min:      math.MaxFloat64,
		max:      -math.MaxFloat64,
		accuracy: accuracy,
	}
	if sketch, err := ddsketch.NewDefaultDDSketch(accuracy); err == nil {
		l.sketch = sketch
	}
	return l
}

// Observe records one operation that took d. failed marks it as an error;
// failed operations still count towards the latency distribution.
func (l *Latency) Observe(d time.Duration, failed bool) {
	ms := float64(d) / float64(time.Millisecond)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
	if failed {
		l.errors++
	}
	l.sum += ms
	if ms < l.min {
		l.min = ms
	}
	if ms > l.max {
		l.max = ms
	}

	if l.sketch != nil {
		_ = l.sketch.Add(ms)
	}
}

// Count returns the number of observations.
func (l *Latency) Count() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Summary returns the current statistics.
func (l *Latency) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Summary{Count: l.count, Errors: l.errors}
	if l.count == 0 {
		return s
	}

	s.Min = l.min
	s.Max = l.max
	s.Avg = l.sum / float64(l.count)

	if l.sketch != nil {
		s.P50, _ = l.sketch.GetValueAtQuantile(0.50)
		s.P90, _ = l.sketch.GetValueAtQuantile(0.90)
		s.P95, _ = l.sketch.GetValueAtQuantile(0.95)
		s.P99, _ = l.sketch.GetValueAtQuantile(0.99)
	}
	return s
}

// Reset clears the series.
func (l *Latency) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count = 0
	l.errors = 0
	l.sum = 0
	l.min = math.MaxFloat64
	l.max = -math.MaxFloat64

	// DDSketch has no Clear method.
	if sketch, err := ddsketch.NewDefaultDDSketch(l.accuracy); err == nil {
		l.sketch = sketch
	}
}

// Recorder keeps one Latency per named operation.
type Recorder struct {
	mu       sync.RWMutex
	accuracy float64
	series   map[string]*Latency
}

// NewRecorder creates a recorder with the default 1% accuracy.
func NewRecorder() *Recorder {
	return NewRecorderWithAccuracy(config.DefaultSketchAccuracy)
}

// NewRecorderWithAccuracy creates a recorder with custom percentile accuracy.
func NewRecorderWithAccuracy(accuracy float64) *Recorder {
	return &Recorder{
		accuracy: accuracy,
		series:   make(map[string]*Latency),
	}
}

// Observe records a duration for op.
func (r *Recorder) Observe(op string, d time.Duration, failed bool) {
	r.get(op).Observe(d, failed)
}

// Since records time.Since(start) for op. It is meant to be deferred:
//
//	defer rec.Since("insert", time.Now(), &err)
func (r *Recorder) Since(op string, start time.Time, errp *error) {
	failed := errp != nil && *errp != nil
	r.Observe(op, time.Since(start), failed)
}

func (r *Recorder) get(op string) *Latency {
	r.mu.RLock()
	l, ok := r.series[op]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok = r.series[op]; ok {
		return l
	}
	l = NewLatency(r.accuracy)
	r.series[op] = l
	return l
}

// Snapshot returns a summary per operation.
func (r *Recorder) Snapshot() map[string]Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Summary, len(r.series))
	for op, l := range r.series {
		out[op] = l.Summary()
	}
	return out
}

// Operations returns the recorded operation names, sorted.
func (r *Recorder) Operations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ops := make([]string, 0, len(r.series))
	for op := range r.series {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Package testing provides test utilities for the telemetry server.
//
// It carries the error channel pattern for concurrent tests (t.Fatal must
// never be called from a spawned goroutine) and fixtures for building /send
// request bodies.
package testing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Error Channel Pattern
// =============================================================================

// GoroutineTest collects errors from goroutines and reports them on the test
// goroutine.
//
//	func TestConcurrentGenerate(t *testing.T) {
//	    gt := testutil.NewGoroutineTest(t)
//	    defer gt.Wait()
//
//	    gt.Go(func() error {
//	        _, err := gen.Generate()
//	        return err
//	    })
//	}
type GoroutineTest struct {
	t      *testing.T
	wg     sync.WaitGroup
	errors chan error
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGoroutineTest creates a new GoroutineTest helper.
func NewGoroutineTest(t *testing.T) *GoroutineTest {
	return NewGoroutineTestWithTimeout(t, 30*time.Second)
}

// NewGoroutineTestWithTimeout creates a GoroutineTest whose context expires
// after timeout.
func NewGoroutineTestWithTimeout(t *testing.T, timeout time.Duration) *GoroutineTest {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return &GoroutineTest{
		t:      t,
		errors: make(chan error, 100),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go runs fn in a goroutine and records its error.
func (gt *GoroutineTest) Go(fn func() error) {
	gt.GoWithContext(func(context.Context) error { return fn() })
}

// GoWithContext runs fn with the helper's context in a goroutine.
func (gt *GoroutineTest) GoWithContext(fn func(ctx context.Context) error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(gt.ctx); err != nil {
			select {
			case gt.errors <- err:
			default:
				gt.t.Logf("error channel full, dropping error: %v", err)
			}
		}
	}()
}

// Context returns the context handed to GoWithContext functions.
func (gt *GoroutineTest) Context() context.Context {
	return gt.ctx
}

// Wait waits for all goroutines and fails the test if any returned an error.
func (gt *GoroutineTest) Wait() {
	gt.wg.Wait()
	gt.cancel()
	close(gt.errors)

	var errs []error
	for err := range gt.errors {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		gt.t.Errorf("goroutine test failed with %d error(s):", len(errs))
		for i, err := range errs {
			gt.t.Errorf("  [%d] %v", i+1, err)
		}
		gt.t.FailNow()
	}
}

// =============================================================================
// Timing Helpers
// =============================================================================

// WithTimeout runs fn and returns its error, or a timeout error if fn does
// not return in time.
func WithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("operation timed out after %v", timeout)
	}
}

// Eventually polls condition until it holds or timeout elapses.
func Eventually(timeout, interval time.Duration, condition func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return nil
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("condition not met within %v", timeout)
}

// =============================================================================
// Event Fixtures
// =============================================================================

// EventFields returns a well-formed submission as a map so tests can alter
// or drop single fields.
func EventFields() map[string]any {
	return map[string]any{
		"product":      "charted-server",
		"vendor":       "Noelware",
		"arch":         "amd64",
		"os":           "linux",
		"version":      "0.1.0-beta",
		"distribution": "docker",
		"data":         map[string]any{"uptime": 42},
	}
}

// EventBody marshals fields into a request body.
func EventBody(fields map[string]any) []byte {
	b, err := json.Marshal(fields)
	if err != nil {
		panic(fmt.Sprintf("marshal event fixture: %v", err))
	}
	return b
}

// SizedEventBody returns a well-formed submission of exactly size bytes. The
// data field carries the padding.
func SizedEventBody(size int) []byte {
	return SizedEventBodyIn("data", size)
}

// SizedEventBodyIn is SizedEventBody with the padding in field, which may be
// any of the string fields or data.
func SizedEventBodyIn(field string, size int) []byte {
	fields := EventFields()
	fields[field] = ""
	base := EventBody(fields)
	if size < len(base) {
		panic(fmt.Sprintf("size %d is below the minimal event of %d bytes", size, len(base)))
	}

	fields[field] = strings.Repeat("a", size-len(base))
	return EventBody(fields)
}

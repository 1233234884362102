package testing

import (
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoroutineTestCollectsResults(t *testing.T) {
	var ran atomic.Int32

	gt := NewGoroutineTest(t)
	for i := 0; i < 5; i++ {
		gt.Go(func() error {
			ran.Add(1)
			return nil
		})
	}
	gt.Wait()

	if ran.Load() != 5 {
		t.Errorf("expected 5 goroutines to run, got %d", ran.Load())
	}
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(time.Second, func() error {
		time.Sleep(10 * time.Millisecond)
		return nil
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err = WithTimeout(10*time.Millisecond, func() error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})
	if err == nil {
		t.Error("expected timeout error")
	}
}

func TestEventually(t *testing.T) {
	var ready atomic.Bool
	go func() {
		time.Sleep(20 * time.Millisecond)
		ready.Store(true)
	}()

	if err := Eventually(time.Second, 5*time.Millisecond, ready.Load); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSizedEventBody(t *testing.T) {
	for _, size := range []int{200, 1024, 262144, 262145} {
		body := SizedEventBody(size)
		if len(body) != size {
			t.Errorf("SizedEventBody(%d) has %d bytes", size, len(body))
		}
		if !json.Valid(body) {
			t.Errorf("SizedEventBody(%d) is not valid JSON", size)
		}
	}

	for _, field := range []string{"product", "version", "distribution"} {
		body := SizedEventBodyIn(field, 262144)
		if len(body) != 262144 {
			t.Errorf("SizedEventBodyIn(%q) has %d bytes", field, len(body))
		}
	}
}

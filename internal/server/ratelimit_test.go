package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutil "github.com/xtxerr/telemetry/internal/testing"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newFakeLimiter(perSecond float64, burst int, ttl time.Duration) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(perSecond, burst, ttl)
	rl.now = clock.Now
	return rl, clock
}

func TestRateLimiterBurstAndRefill(t *testing.T) {
	rl, clock := newFakeLimiter(1, 3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("192.0.2.1"), "request %d within burst", i)
	}
	assert.False(t, rl.Allow("192.0.2.1"))

	clock.now = clock.now.Add(time.Second)
	assert.True(t, rl.Allow("192.0.2.1"))
	assert.False(t, rl.Allow("192.0.2.1"))
}

func TestRateLimiterPerIP(t *testing.T) {
	rl, _ := newFakeLimiter(1, 1, time.Minute)

	assert.True(t, rl.Allow("192.0.2.1"))
	assert.False(t, rl.Allow("192.0.2.1"))
	assert.True(t, rl.Allow("192.0.2.2"))
	assert.Equal(t, 2, rl.Len())
}

func TestRateLimiterCleanup(t *testing.T) {
	rl, clock := newFakeLimiter(1, 1, time.Minute)

	rl.Allow("192.0.2.1")
	clock.now = clock.now.Add(30 * time.Second)
	rl.Allow("192.0.2.2")

	clock.now = clock.now.Add(45 * time.Second)
	rl.cleanup()

	assert.Equal(t, 1, rl.Len())
	// The dropped IP starts over with a full bucket.
	assert.True(t, rl.Allow("192.0.2.1"))
}

func TestRateLimiterRunStopsOnCancel(t *testing.T) {
	rl := NewRateLimiter(1, 1, 10*time.Millisecond)
	rl.Allow("192.0.2.1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rl.Run(ctx)
		close(done)
	}()

	require.NoError(t, testutil.Eventually(2*time.Second, 5*time.Millisecond, func() bool {
		return rl.Len() == 0
	}))

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestExtractIP(t *testing.T) {
	assert.Equal(t, "192.0.2.1", extractIP("192.0.2.1:1234"))
	assert.Equal(t, "::1", extractIP("[::1]:80"))
	assert.Equal(t, "pipe", extractIP("pipe"))
}

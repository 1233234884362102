package server

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// Rate Limiter for /send
// =============================================================================

// RateLimiter throttles requests per client IP address. Each IP gets its own
// token bucket; buckets idle for longer than the TTL are dropped by Run.
//
// Flow:
//  1. Request arrives
//  2. Allow(ip) takes a token from the IP's bucket, creating it on first use
//  3. If no token is available the request is rejected with 429
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*rateLimitEntry
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	now func() time.Time
}

type rateLimitEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter.
//
// Parameters:
//   - perSecond: sustained requests per second per IP
//   - burst: requests an idle IP may send at once
//   - idleTTL: how long an unused bucket is kept
func NewRateLimiter(perSecond float64, burst int, idleTTL time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*rateLimitEntry),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

// Allow reports whether ip may send one more request now.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, ok := rl.clients[ip]
	if !ok {
		entry = &rateLimitEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = entry
	}
	entry.lastSeen = now

	return entry.limiter.AllowN(now, 1)
}

// Len returns the number of tracked IPs.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Run drops idle buckets periodically until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	interval := min(rl.idleTTL, time.Minute)
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-ctx.Done():
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idleTTL)
	for ip, entry := range rl.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// extractIP extracts the IP address from a remote address string.
func extractIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}

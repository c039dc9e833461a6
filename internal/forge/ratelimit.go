package forge

import (
	"context"
	"sync"
	"time"
)

// rateLimiter throttles outbound calls to the forge API using the
// remaining/reset counters the API itself reports, so repeated
// getHeadCommit/compareCommits calls during a busy coordinator loop
// back off before the forge starts rejecting requests.
type rateLimiter struct {
	mu        sync.Mutex
	remaining int
	reset     time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		remaining: 5000,
		reset:     time.Now().Add(time.Hour),
	}
}

func (r *rateLimiter) wait(ctx context.Context) error {
	r.mu.Lock()
	if time.Now().After(r.reset) {
		r.remaining = 5000
		r.reset = time.Now().Add(time.Hour)
	}
	if r.remaining > 1 {
		r.remaining--
		r.mu.Unlock()
		return nil
	}
	wait := time.Until(r.reset)
	r.mu.Unlock()
	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *rateLimiter) update(remaining int, reset time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = remaining
	if !reset.IsZero() {
		r.reset = reset
	}
}

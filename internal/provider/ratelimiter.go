package provider

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket shared by the data-source clients. FRED and
// the Yahoo chart endpoint both throttle aggressively, so every fetch waits
// for a token first.
type RateLimiter struct {
	mu       sync.Mutex
	tokens   int
	capacity int
	interval time.Duration
	last     time.Time
}

// NewRateLimiter allows capacity calls per interval.
func NewRateLimiter(capacity int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:   capacity,
		capacity: capacity,
		interval: interval,
		last:     time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		if r.take() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.interval):
		}
	}
}

func (r *RateLimiter) take() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := time.Since(r.last)
	if refill := int(elapsed / r.interval); refill > 0 {
		r.tokens = min(r.tokens+refill, r.capacity)
		r.last = r.last.Add(time.Duration(refill) * r.interval)
	}
	if r.tokens == 0 {
		return false
	}
	r.tokens--
	return true
}

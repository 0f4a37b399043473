package clients

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outbound API requests to a fixed requests-per-second
// budget with burst headroom.
type RateLimiter struct {
	limiter *rate.Limiter

	allowedRequests int64
	blockedRequests int64
}

// RateLimiterStats reports rate limiter activity
type RateLimiterStats struct {
	Rate            int
	Burst           int
	AllowedRequests int64
	BlockedRequests int64
}

// NewRateLimiter creates a rate limiter allowing perSec requests per second
// with bursts up to burst.
func NewRateLimiter(perSec, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSec), burst),
	}
}

// Wait blocks until a request slot is available or the context is cancelled
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := rl.limiter.Wait(ctx); err != nil {
		atomic.AddInt64(&rl.blockedRequests, 1)
		return err
	}
	atomic.AddInt64(&rl.allowedRequests, 1)
	return nil
}

// Allow reports whether a request may proceed without blocking
func (rl *RateLimiter) Allow() bool {
	ok := rl.limiter.Allow()
	if ok {
		atomic.AddInt64(&rl.allowedRequests, 1)
	} else {
		atomic.AddInt64(&rl.blockedRequests, 1)
	}
	return ok
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() RateLimiterStats {
	return RateLimiterStats{
		Rate:            int(rl.limiter.Limit()),
		Burst:           rl.limiter.Burst(),
		AllowedRequests: atomic.LoadInt64(&rl.allowedRequests),
		BlockedRequests: atomic.LoadInt64(&rl.blockedRequests),
	}
}

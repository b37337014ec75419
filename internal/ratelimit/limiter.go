// Package ratelimit provides client-side token-bucket rate limiting for
// broker REST calls, keeping the engine under the documented per-minute
// caps regardless of how many collaborators share one broker client.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps golang.org/x/time/rate with a requests-per-minute constructor,
// matching how broker rate limits are documented (§5: "200 req/min").
type Limiter struct {
	inner *rate.Limiter
}

// NewPerMinute creates a Limiter allowing up to reqPerMin requests per
// minute, with a burst equal to that same count so a quiet period doesn't
// starve a legitimate burst of catch-up calls.
func NewPerMinute(reqPerMin int) *Limiter {
	if reqPerMin <= 0 {
		reqPerMin = 1
	}
	return &Limiter{inner: rate.NewLimiter(rate.Limit(float64(reqPerMin)/60.0), reqPerMin)}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.inner.Wait(ctx)
}

// Allow reports whether a call may proceed right now without blocking,
// consuming a token if so.
func (l *Limiter) Allow() bool {
	return l.inner.Allow()
}

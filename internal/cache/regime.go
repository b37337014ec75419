package cache

import (
	"context"
	"time"
)

// regimeTTL matches §4.8 #10's "short-lived (≤30s) cached check".
const regimeTTL = 30 * time.Second

const regimeKey = "market_regime:weak"

// RegimeFetcher computes the live market-regime check: true if the
// benchmark's intraday return from today's open is at or below the
// rejection threshold. Implemented by position.NewRegimeChecker using a
// broker daily-bar and snapshot lookup.
type RegimeFetcher func(ctx context.Context) (weak bool, err error)

// RegimeCache caches the market-regime verdict for up to 30s so the Position
// Manager's admission check doesn't hit the broker on every opened signal.
// A fetch failure fails *open* per §4.8 #10: the trade is allowed and
// nothing is cached, so the next call retries the live fetch.
type RegimeCache struct {
	client *Client
}

// NewRegimeCache wraps client. client may be nil, in which case Weak always
// calls fetch directly with no caching.
func NewRegimeCache(client *Client) *RegimeCache {
	return &RegimeCache{client: client}
}

// Weak reports whether the market regime currently fails the filter,
// consulting the cache first and falling through to fetch on a miss or
// when no client is configured.
func (r *RegimeCache) Weak(ctx context.Context, fetch RegimeFetcher) bool {
	if r.client == nil {
		weak, err := fetch(ctx)
		if err != nil {
			return false
		}
		return weak
	}

	var cached bool
	if err := r.client.Get(ctx, regimeKey, &cached); err == nil {
		return cached
	}

	weak, err := fetch(ctx)
	if err != nil {
		// Fail open: don't cache the error, so the next call retries live.
		return false
	}
	_ = r.client.Set(ctx, regimeKey, weak, regimeTTL)
	return weak
}

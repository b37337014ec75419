package cache

import (
	"context"
	"fmt"
	"time"
)

// baselineTTL bounds how long a cached baseline survives before the next
// detector scan falls through to the in-process provider again. Baselines
// only change on the next bucket-aggregator daily reload, so this is purely
// about sparing Redis round trips during a busy session, not freshness.
const baselineTTL = 10 * time.Minute

// BaselineSource is the in-process fallback a BaselineCache reads through
// to on a cache miss — satisfied by *baseline.Provider.
type BaselineSource interface {
	Baseline(symbol string) float64
}

// BaselineCache fronts a BaselineSource with Redis so that a multi-process
// deployment (or a single process scanning thousands of symbols every 10s)
// doesn't recompute or re-fetch the same per-symbol average repeatedly.
type BaselineCache struct {
	client *Client
	source BaselineSource
}

// NewBaselineCache wraps source with a Redis read-through layer. client may
// be nil, in which case Baseline always falls through to source directly.
func NewBaselineCache(client *Client, source BaselineSource) *BaselineCache {
	return &BaselineCache{client: client, source: source}
}

// Baseline returns the cached per-symbol baseline notional, populating the
// cache on a miss. Never errors — a Redis failure just means every call
// falls through to the in-process provider, exactly as if no cache existed.
func (b *BaselineCache) Baseline(ctx context.Context, symbol string) float64 {
	if b.client == nil {
		return b.source.Baseline(symbol)
	}

	key := fmt.Sprintf("baseline:%s", symbol)
	var cached float64
	// Any Get error (miss, connection drop) falls through to source rather
	// than failing the detector scan.
	if err := b.client.Get(ctx, key, &cached); err == nil {
		return cached
	}

	v := b.source.Baseline(symbol)
	_ = b.client.Set(ctx, key, v, baselineTTL)
	return v
}

// WithContext pins ctx and returns a detector.BaselineSource-shaped view
// (Baseline(symbol string) float64, no ctx param) so the detector's scan
// loop — which has no per-call context of its own — can read through this
// cache. Each call reuses the same background-derived ctx for the whole
// scan.
func (b *BaselineCache) WithContext(ctx context.Context) *pinnedBaselineCache {
	return &pinnedBaselineCache{cache: b, ctx: ctx}
}

type pinnedBaselineCache struct {
	cache *BaselineCache
	ctx   context.Context
}

func (p *pinnedBaselineCache) Baseline(symbol string) float64 {
	return p.cache.Baseline(p.ctx, symbol)
}

// Package engulfing is Account B's admission gate (§4.9): a recent bullish
// 5-min engulfing candlestick, or membership on the daily watchlist,
// confirms a trigger without requiring it to survive the filter chain.
package engulfing

import (
	"context"
	"time"

	"github.com/uoa-systems/flowwatch/internal/models"
)

// Lookback is the 5-min query's recency window.
const Lookback = 30 * time.Minute

// Store is the narrow persistence dependency, satisfied by
// storage.Interface's ReferenceStore subset.
type Store interface {
	QueryEngulfing5min(ctx context.Context, symbol string, lookback time.Duration) (models.EngulfingScore, bool)
}

// DailyWatchlist is the preloaded O(1) daily-pattern membership test,
// satisfied by *reference.Data.
type DailyWatchlist interface {
	OnDailyWatchlist(symbol string) bool
}

// Checker confirms Account B admission. It never returns an error: a DB
// failure on the 5-min query degrades to "not present", matching §4.9.
type Checker struct {
	store     Store
	watchlist DailyWatchlist
}

// New builds a Checker. watchlist may be nil, in which case only the 5-min
// query is consulted.
func New(store Store, watchlist DailyWatchlist) *Checker {
	return &Checker{store: store, watchlist: watchlist}
}

// Confirm reports whether symbol has a recent bullish engulfing pattern.
// When the 5-min query hits, strength reflects that row's confidence. When
// it misses but the symbol is on the daily watchlist, present is true with
// a nil strength (the daily feed carries no per-row strength).
func (c *Checker) Confirm(ctx context.Context, symbol string) (present bool, strength *models.PatternStrength) {
	if score, ok := c.store.QueryEngulfing5min(ctx, symbol, Lookback); ok {
		s := score.Strength
		return true, &s
	}
	if c.watchlist != nil && c.watchlist.OnDailyWatchlist(symbol) {
		return true, nil
	}
	return false, nil
}

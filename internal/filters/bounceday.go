package filters

import (
	"context"
	"sync"

	"github.com/uoa-systems/flowwatch/internal/broker"
)

// BenchmarkSymbol is the index ETF whose daily closes decide bounce-day status.
const BenchmarkSymbol = "SPY"

// BarsSource is the narrow broker dependency the bounce-day check needs.
type BarsSource interface {
	BarsCtx(ctx context.Context, symbol string, lookbackDays int) ([]broker.Bar, error)
}

// BounceDayCache isolates the bounce-day determination behind a single
// query+cache pair evaluated once at start-of-day, per §9's design note.
// The filter chain never sees SPY closes directly, only the resulting
// effective RSI threshold.
type BounceDayCache struct {
	mu        sync.RWMutex
	isBounce  bool
	computed  bool
	bars      BarsSource
}

// NewBounceDayCache creates an uncomputed cache; call Refresh before serving traffic.
func NewBounceDayCache(bars BarsSource) *BounceDayCache {
	return &BounceDayCache{bars: bars}
}

// Refresh recomputes the bounce-day flag from SPY's recent daily bars.
// A bounce day is: today's open strictly above yesterday's close, AND the
// two preceding daily closes are each lower than their respective prior
// close (two consecutive red closes before today).
func (b *BounceDayCache) Refresh(ctx context.Context) error {
	bars, err := b.bars.BarsCtx(ctx, BenchmarkSymbol, 10)
	if err != nil {
		return err
	}

	bounce := IsBounceDay(bars)

	b.mu.Lock()
	b.isBounce = bounce
	b.computed = true
	b.mu.Unlock()
	return nil
}

// IsBounceDay is the pure computation over a chronologically-ordered bar
// slice (oldest first), exposed standalone for testing.
func IsBounceDay(bars []broker.Bar) bool {
	if len(bars) < 4 {
		return false
	}
	// bars[n-1] is today (its Open matters, Close may not exist yet intraday);
	// bars[n-2], bars[n-3], bars[n-4] are the prior three closes.
	n := len(bars)
	today := bars[n-1]
	yesterday := bars[n-2]
	twoAgo := bars[n-3]
	threeAgo := bars[n-4]

	redOnce := yesterday.Close < twoAgo.Close
	redTwice := twoAgo.Close < threeAgo.Close
	opensGreen := today.Open > yesterday.Close

	return opensGreen && redOnce && redTwice
}

// IsBounce reports today's cached verdict. Returns false (normal day, the
// conservative default) until the first Refresh completes.
func (b *BounceDayCache) IsBounce() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.computed && b.isBounce
}

// Threshold returns today's effective RSI threshold for filter #4.
func (b *BounceDayCache) Threshold() float64 {
	return EffectiveRSIThreshold(b.IsBounce())
}

package position

import (
	"context"

	"github.com/uoa-systems/flowwatch/internal/broker"
	"github.com/uoa-systems/flowwatch/internal/cache"
)

// RegimeBenchmark is the index whose intraday move decides market regime.
const RegimeBenchmark = "SPY"

// RegimeRejectThreshold is §4.8 #10's cutoff: a benchmark intraday return
// at or below this value rejects new entries.
const RegimeRejectThreshold = -0.005

// RegimeBroker is the narrow market-data dependency the regime check needs.
type RegimeBroker interface {
	SnapshotCtx(ctx context.Context, symbol string) (float64, error)
	BarsCtx(ctx context.Context, symbol string, lookbackDays int) ([]broker.Bar, error)
}

// NewRegimeChecker builds a RegimeChecker backed by rc's 30s cache and a
// live fetch against mkt: the benchmark's intraday return from today's
// open. A fetch error or a missing/zero open fails open (not weak), per
// §4.8 #10's "network error allows the trade" rule.
func NewRegimeChecker(rc *cache.RegimeCache, mkt RegimeBroker) RegimeChecker {
	return func(ctx context.Context) bool {
		return rc.Weak(ctx, func(ctx context.Context) (bool, error) {
			bars, err := mkt.BarsCtx(ctx, RegimeBenchmark, 1)
			if err != nil || len(bars) == 0 {
				return false, err
			}
			open := bars[len(bars)-1].Open
			if open <= 0 {
				return false, nil
			}

			price, err := mkt.SnapshotCtx(ctx, RegimeBenchmark)
			if err != nil || price <= 0 {
				return false, err
			}

			ret := price/open - 1
			return ret <= RegimeRejectThreshold, nil
		})
	}
}

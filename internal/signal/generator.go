// Package signal enriches a Trigger with the market context the filter
// chain needs: spot price, technical indicators, sector, and optional GEX
// metadata. Every external lookup is best-effort with its own timeout,
// grounded on the teacher's getMarketCalendar/getTodaysMarketSchedule
// pattern (context.WithTimeout per outbound call, RWMutex-guarded cache,
// graceful fallback on error) and internal/retry for the broker calls.
package signal

import (
	"context"
	"time"

	"github.com/uoa-systems/flowwatch/internal/broker"
	"github.com/uoa-systems/flowwatch/internal/models"
	"github.com/uoa-systems/flowwatch/internal/reference"
	"github.com/uoa-systems/flowwatch/internal/retry"
	"github.com/uoa-systems/flowwatch/internal/scorer"
)

// Per-lookup timeouts, §4.7.
const (
	PriceTimeout = 2 * time.Second
	TATimeout    = 3 * time.Second
)

// intradaySessionCutoff is 09:35 local exchange time — before it, TA reads
// only the daily-close cache; after, intraday 5-min TA is preferred.
const intradaySessionCutoffHour, intradaySessionCutoffMinute = 9, 35

// barsLookbackDays is the bars REST fallback's window (§6: "120-day lookback").
const barsLookbackDays = 120

// MarketDataBroker is the narrow broker dependency: spot snapshot + daily bars.
type MarketDataBroker interface {
	SnapshotCtx(ctx context.Context, symbol string) (float64, error)
	BarsCtx(ctx context.Context, symbol string, lookbackDays int) ([]broker.Bar, error)
}

// Generator enriches Triggers into Signals.
type Generator struct {
	broker MarketDataBroker
	retry  *retry.Client
	ta     *taCache
	ref    *reference.Data
	loc    *time.Location
	now    func() time.Time
}

// New creates a Generator reading market data through mkt, TA rows through
// taStore, and sector/GEX through ref (nil is tolerated: both fields are
// then left empty on every Signal).
func New(mkt MarketDataBroker, taStore TAStore, ref *reference.Data, loc *time.Location, retryClient *retry.Client) *Generator {
	if retryClient == nil {
		retryClient = retry.NewClient(nil)
	}
	return &Generator{
		broker: mkt,
		retry:  retryClient,
		ta:     newTACache(taStore),
		ref:    ref,
		loc:    loc,
		now:    time.Now,
	}
}

// RefreshDailyClose reloads the daily-close TA cache, called once at the
// start of each trading day.
func (g *Generator) RefreshDailyClose(ctx context.Context, tradeDate time.Time) error {
	return g.ta.refreshDaily(ctx, tradeDate)
}

// RefreshIntraday reloads the intraday 5-min TA cache, called every 5 minutes.
func (g *Generator) RefreshIntraday(ctx context.Context) error {
	return g.ta.refreshIntraday(ctx)
}

// SetReferenceData swaps in a freshly-loaded reference.Data handle after a
// daily refresh (§9: refresh produces a new handle, never mutates the old one).
func (g *Generator) SetReferenceData(ref *reference.Data) {
	g.ref = ref
}

// Enrich turns a Trigger into a Signal, attaching score, spot price, TA,
// sector and GEX. Every lookup degrades gracefully; nothing here returns
// an error; a Signal with HasSpot=false or HasTA=false is still emitted
// for the filter chain to reject on its own terms.
func (g *Generator) Enrich(ctx context.Context, trig models.Trigger) models.Signal {
	sig := models.Signal{
		Trigger: trig,
		Score:   scorer.Score(trig),
	}

	rsi, sma20, sma50, lastClose, hasTA := g.fetchTA(ctx, trig.Symbol)
	sig.RSI14, sig.SMA20, sig.SMA50, sig.LastClose, sig.HasTA = rsi, sma20, sma50, lastClose, hasTA

	spot, hasSpot := g.fetchSpot(ctx, trig.Symbol)
	if !hasSpot && hasTA && lastClose > 0 {
		// Fall back to the TA cache's last_close per §4.7.
		spot, hasSpot = lastClose, true
	}
	sig.SpotPrice, sig.HasSpot = spot, hasSpot

	switch {
	case !hasTA:
		sig.Trend = models.TrendFlat
	case sig.SpotPrice > sig.SMA20:
		sig.Trend = models.TrendUp
	case sig.SpotPrice < sig.SMA20:
		sig.Trend = models.TrendDown
	default:
		sig.Trend = models.TrendFlat
	}

	if g.ref != nil {
		sig.Sector = g.ref.Sector(trig.Symbol)
		if gex, ok := g.ref.GEX(trig.Symbol); ok {
			sig.GEX = &gex
		}
	}

	return sig
}

func (g *Generator) fetchSpot(ctx context.Context, symbol string) (float64, bool) {
	if g.broker == nil {
		return 0, false
	}
	var price float64
	err := g.retry.Do(ctx, "signal:snapshot:"+symbol, func(opCtx context.Context) error {
		callCtx, cancel := context.WithTimeout(opCtx, PriceTimeout)
		defer cancel()
		p, err := g.broker.SnapshotCtx(callCtx, symbol)
		if err != nil {
			return err
		}
		price = p
		return nil
	})
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}

func (g *Generator) fetchTA(ctx context.Context, symbol string) (rsi, sma20, sma50, lastClose float64, ok bool) {
	if g.beforeIntradaySession() {
		if row, found := g.ta.daily(symbol); found {
			return row.RSI14, row.SMA20, row.SMA50, row.Close, true
		}
	} else if row, found := g.ta.intraday(symbol); found {
		// ta_intraday_5m has no sma_50 column; carry forward the once-a-day
		// sma_50 from the daily-close cache rather than zeroing it, or
		// filter #5 (SMA-50 momentum) would trivially pass all session long.
		sma50 := 0.0
		if daily, dailyFound := g.ta.daily(symbol); dailyFound {
			sma50 = daily.SMA50
		}
		return row.RSI14, row.SMA20, sma50, row.Price, true
	}

	return g.fetchTAFromBars(ctx, symbol)
}

func (g *Generator) fetchTAFromBars(ctx context.Context, symbol string) (rsi, sma20, sma50, lastClose float64, ok bool) {
	if g.broker == nil {
		return 0, 0, 0, 0, false
	}
	var bars []broker.Bar
	err := g.retry.Do(ctx, "signal:bars:"+symbol, func(opCtx context.Context) error {
		callCtx, cancel := context.WithTimeout(opCtx, TATimeout)
		defer cancel()
		b, err := g.broker.BarsCtx(callCtx, symbol, barsLookbackDays)
		if err != nil {
			return err
		}
		bars = b
		return nil
	})
	if err != nil {
		return 0, 0, 0, 0, false
	}
	return computeTA(bars)
}

func (g *Generator) beforeIntradaySession() bool {
	loc := g.loc
	if loc == nil {
		loc = time.UTC
	}
	local := g.now().In(loc)
	cutoff := time.Date(local.Year(), local.Month(), local.Day(), intradaySessionCutoffHour, intradaySessionCutoffMinute, 0, 0, loc)
	return local.Before(cutoff)
}

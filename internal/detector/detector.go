// Package detector compares each symbol's rolling-window notional against
// its baseline and emits a Trigger when the ratio crosses the threshold
// and the symbol is not in cooldown.
package detector

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	baselinepkg "github.com/uoa-systems/flowwatch/internal/baseline"
	"github.com/uoa-systems/flowwatch/internal/models"
)

const (
	// Threshold is the minimum volume_ratio to consider a symbol unusual.
	Threshold = 3.0
	// Cooldown is the minimum spacing between two triggers on the same symbol.
	Cooldown = 60 * time.Minute
	// MinNotional is the floor window notional below which a symbol is skipped outright.
	MinNotional = 10000.0
	// ScanInterval is the default periodic scan cadence.
	ScanInterval = 10 * time.Second
)

// WindowStatsSource is the Trade Aggregator's read surface.
type WindowStatsSource interface {
	Stats(symbol string) models.WindowStats
	ActiveSymbols() []string
}

// BaselineSource is the Baseline Provider's read surface.
type BaselineSource interface {
	Baseline(symbol string) float64
}

// SymbolTracker upserts a row on every trigger, regardless of cooldown state.
type SymbolTracker interface {
	UpsertTrackedSymbol(ctx context.Context, symbol string, ts time.Time) error
}

// Detector never errors on its hot path — a baseline lookup failure
// degrades to the fallback and the detector itself cannot fail.
type Detector struct {
	mu             sync.Mutex
	lastTriggerAt  map[string]time.Time
	aggregator     WindowStatsSource
	baseline       BaselineSource
	tracker        SymbolTracker
	now            func() time.Time
	log            *log.Logger
}

// New creates a Detector reading from agg and baseline, upserting into tracker.
func New(agg WindowStatsSource, baseline BaselineSource, tracker SymbolTracker, logger *log.Logger) *Detector {
	if logger == nil {
		logger = log.Default()
	}
	return &Detector{
		lastTriggerAt: make(map[string]time.Time),
		aggregator:    agg,
		baseline:      baseline,
		tracker:       tracker,
		now:           time.Now,
		log:           logger,
	}
}

// Scan evaluates every currently-active symbol and returns the Triggers
// emitted this pass, ordered (ts ascending, symbol ascending) per the
// tie-break rule.
func (d *Detector) Scan(ctx context.Context) []models.Trigger {
	symbols := d.aggregator.ActiveSymbols()
	sort.Strings(symbols)

	var triggers []models.Trigger
	now := d.now()

	for _, symbol := range symbols {
		stats := d.aggregator.Stats(symbol)
		if stats.NotionalTotal < MinNotional {
			continue
		}

		baseline := d.baseline.Baseline(symbol)
		if baseline <= 0 {
			// A non-positive baseline would make the ratio +Inf or meaningless;
			// it is replaced by the same fallback a missing baseline gets.
			baseline = baselinepkg.FallbackNotional
		}
		ratio := stats.NotionalTotal / baseline

		d.mu.Lock()
		last, seen := d.lastTriggerAt[symbol]
		inCooldown := seen && now.Sub(last) < Cooldown
		d.mu.Unlock()

		if ratio >= Threshold && !inCooldown {
			d.mu.Lock()
			d.lastTriggerAt[symbol] = now
			d.mu.Unlock()

			if err := d.tracker.UpsertTrackedSymbol(ctx, symbol, now); err != nil {
				d.log.Printf("detector: symbol=%s reason=tracker_upsert_failed err=%v", symbol, err)
			}

			triggers = append(triggers, models.Trigger{
				Symbol:           symbol,
				TS:               now,
				Stats:            stats,
				VolumeRatio:      ratio,
				BaselineNotional: baseline,
			})
		}
	}

	sort.SliceStable(triggers, func(i, j int) bool {
		if !triggers[i].TS.Equal(triggers[j].TS) {
			return triggers[i].TS.Before(triggers[j].TS)
		}
		return triggers[i].Symbol < triggers[j].Symbol
	})

	return triggers
}

// Run drives Scan on a ticker until ctx is cancelled, delivering each
// pass's triggers to onTrigger in tie-break order.
func (d *Detector) Run(ctx context.Context, interval time.Duration, onTrigger func(models.Trigger)) {
	if interval <= 0 {
		interval = ScanInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, trig := range d.Scan(ctx) {
				onTrigger(trig)
			}
		}
	}
}

// ResetCooldowns clears all cooldown state, used at daily reset.
func (d *Detector) ResetCooldowns() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastTriggerAt = make(map[string]time.Time)
}

// Package aggregator maintains the per-underlying 60-second rolling window
// of options trades that the UOA Detector scans for volume anomalies.
package aggregator

import (
	"log"
	"sync"
	"time"

	"github.com/uoa-systems/flowwatch/internal/models"
)

// Window is the trailing-W-second duration used for the rolling aggregate.
const Window = 60 * time.Second

// softCapPerSymbol bounds per-symbol memory: past this many entries the
// oldest-in-window trade is dropped and the symbol's soft-cap counter
// (SoftCapDropCount) is incremented.
const softCapPerSymbol = 10000

type entry struct {
	ts            time.Time
	notional      float64
	right         models.Right
	strike        float64
	isSweep       bool
	contracts     int64
	occSymbol     string
}

type window struct {
	entries []entry
	// runningNotional etc. are recomputed on eviction, not maintained
	// incrementally, so stats() always reflects exactly the retained sample.
}

// Aggregator owns one rolling window per underlying. Every method is safe
// for concurrent use; the firehose-consuming goroutine is the sole writer
// via AddTrade, while detector scans and the status API read via Stats.
type Aggregator struct {
	mu      sync.Mutex
	windows map[string]*window

	dropped      map[string]int64 // malformed-trade counter, never reset except by Reset
	softCapDrops map[string]int64 // backpressure counter

	now func() time.Time
	log *log.Logger
}

// New creates an empty Aggregator.
func New(logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = log.Default()
	}
	return &Aggregator{
		windows:      make(map[string]*window),
		dropped:      make(map[string]int64),
		softCapDrops: make(map[string]int64),
		now:          time.Now,
		log:          logger,
	}
}

// AddTrade appends a trade to its underlying's window. No eviction happens
// here — eviction is lazy, performed by Stats on read. Malformed trades
// (non-positive size/price) are counted and dropped, never propagated.
func (a *Aggregator) AddTrade(t models.OptionTrade) {
	if t.Size <= 0 || t.Price <= 0 || t.Underlying == "" {
		a.mu.Lock()
		a.dropped[t.Underlying]++
		a.mu.Unlock()
		return
	}

	e := entry{
		ts:        t.TS,
		notional:  t.Notional(),
		right:     t.Right,
		strike:    t.Strike,
		isSweep:   isSweep(t.Conditions),
		contracts: t.Size,
		occSymbol: t.OCCSymbol,
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.windows[t.Underlying]
	if !ok {
		w = &window{}
		a.windows[t.Underlying] = w
	}
	w.entries = append(w.entries, e)
	if len(w.entries) > softCapPerSymbol {
		drop := len(w.entries) - softCapPerSymbol
		w.entries = w.entries[drop:]
		a.softCapDrops[t.Underlying] += int64(drop)
		a.log.Printf("aggregator: symbol=%s reason=soft_cap dropped=%d", t.Underlying, drop)
	}
}

// Stats evicts stale entries (ts < now-Window) then returns the aggregate
// over what remains — a consistent snapshot for a single scan.
func (a *Aggregator) Stats(symbol string) models.WindowStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	w, ok := a.windows[symbol]
	if !ok {
		return models.WindowStats{Symbol: symbol, AsOf: a.now()}
	}

	cutoff := a.now().Add(-Window)
	kept := w.entries[:0:0]
	for _, e := range w.entries {
		if !e.ts.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	w.entries = kept

	return computeStats(symbol, kept, a.now())
}

func computeStats(symbol string, entries []entry, asOf time.Time) models.WindowStats {
	stats := models.WindowStats{Symbol: symbol, AsOf: asOf}
	strikes := make(map[float64]struct{})

	for _, e := range entries {
		stats.NotionalTotal += e.notional
		stats.ContractsTotal += e.contracts
		stats.Prints++
		if e.right == models.Call {
			stats.CallsNotional += e.notional
		} else {
			stats.PutsNotional += e.notional
		}
		if e.isSweep {
			stats.SweepNotional += e.notional
		}
		strikes[e.strike] = struct{}{}
		if e.contracts > stats.MaxPrintSize {
			stats.MaxPrintSize = e.contracts
		}
	}
	stats.UniqueStrikes = len(strikes)
	return stats
}

// Reset clears a symbol's window on daily rollover.
func (a *Aggregator) Reset(symbol string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.windows, symbol)
	delete(a.dropped, symbol)
	delete(a.softCapDrops, symbol)
}

// ResetAll clears every symbol's window, used at start-of-day.
func (a *Aggregator) ResetAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.windows = make(map[string]*window)
	a.dropped = make(map[string]int64)
	a.softCapDrops = make(map[string]int64)
}

// DroppedCount returns the malformed-trade counter for a symbol, for the status API.
func (a *Aggregator) DroppedCount(symbol string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped[symbol]
}

// SoftCapDropCount returns the backpressure-eviction counter for a symbol.
func (a *Aggregator) SoftCapDropCount(symbol string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.softCapDrops[symbol]
}

// ActiveSymbols returns the set of underlyings with a non-empty window, the
// candidate set the detector scans each tick.
func (a *Aggregator) ActiveSymbols() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.windows))
	for sym, w := range a.windows {
		if len(w.entries) > 0 {
			out = append(out, sym)
		}
	}
	return out
}

// sweepConditions is the authoritative set of firehose condition codes
// treated as sweep indicators. Configurable override lives in
// internal/config; this is the documented default (Open Question #1).
var sweepConditions = map[string]struct{}{
	"37": {}, // intermarket sweep
	"sweep": {},
}

// SetSweepConditions overrides the sweep-code set from configuration.
func SetSweepConditions(codes []string) {
	m := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		m[c] = struct{}{}
	}
	sweepConditions = m
}

func isSweep(conditions []string) bool {
	for _, c := range conditions {
		if _, ok := sweepConditions[c]; ok {
			return true
		}
	}
	return false
}

package baseline

import (
	"context"
	"sync"
)

// FallbackNotional is returned for any symbol with no baseline history.
const FallbackNotional = 50000.0

// TradingDaysLookback is the window the startup load averages over —
// "mean across all 30-min buckets over 20 days" (symbol-day aggregate),
// the interpretation spec.md's hot path uses (Open Question #2).
const TradingDaysLookback = 20

// HistoryStore loads the raw rows the Provider aggregates at startup.
type HistoryStore interface {
	// LoadBaselineHistory returns, for every symbol with any history, the
	// per-trading-day summed notional over the preceding lookbackDays.
	LoadBaselineHistory(ctx context.Context, lookbackDays int) (map[string][]float64, error)
}

// Provider exposes baseline(symbol), loaded once at startup and held
// read-only in memory until the next daily reload.
type Provider struct {
	mu       sync.RWMutex
	averages map[string]float64
	store    HistoryStore
}

// NewProvider creates an empty Provider; call Load before serving traffic.
func NewProvider(store HistoryStore) *Provider {
	return &Provider{
		averages: make(map[string]float64),
		store:    store,
	}
}

// Load computes each symbol's mean daily notional over the preceding
// TradingDaysLookback trading days and replaces the in-memory table.
// Baseline lookup never errors once loaded: a store failure here is fatal
// at boot (schema drift / DB unreachable), matching §7's "fail fast at boot".
func (p *Provider) Load(ctx context.Context) error {
	history, err := p.store.LoadBaselineHistory(ctx, TradingDaysLookback)
	if err != nil {
		return err
	}

	averages := make(map[string]float64, len(history))
	for symbol, dailyNotionals := range history {
		if len(dailyNotionals) == 0 {
			continue
		}
		var sum float64
		for _, n := range dailyNotionals {
			sum += n
		}
		averages[symbol] = sum / float64(len(dailyNotionals))
	}

	p.mu.Lock()
	p.averages = averages
	p.mu.Unlock()
	return nil
}

// Baseline returns the symbol's average daily notional, or FallbackNotional
// if the symbol has no history. Never fails — a missing baseline is not an
// error, it is the fallback.
func (p *Provider) Baseline(symbol string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.averages[symbol]; ok {
		return v
	}
	return FallbackNotional
}

// Len reports how many symbols currently have a loaded baseline, for status reporting.
func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.averages)
}

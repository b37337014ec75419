// Package reference holds the bulk-preloaded, read-only reference caches
// the filter chain and signal generator consult: sector, ETF membership,
// earnings proximity, media sentiment, and GEX. Re-architected (per the
// source's process-wide-mutable-cache design note) as an explicitly-owned
// value loaded once at startup and handed to collaborators by reference;
// a daily refresh produces a new handle rather than mutating this one.
package reference

import (
	"context"
	"time"

	"github.com/uoa-systems/flowwatch/internal/models"
)

// Store is the bulk-load dependency, one query per cache at startup/refresh.
// Satisfied by storage.Interface's ReferenceStore subset.
type Store interface {
	LoadMasterTickers(ctx context.Context) ([]models.MasterTicker, error)
	LoadEarningsCalendar(ctx context.Context, withinDays int) ([]models.EarningsEvent, error)
	LoadMediaDailyFeatures(ctx context.Context, asOf time.Time) ([]models.MediaFeature, error)
	LoadGEXSnapshot(ctx context.Context) ([]models.GEXSnapshot, error)
	LoadEngulfingDailyWatchlist(ctx context.Context, lookback time.Duration) ([]models.EngulfingScore, error)
}

// dailyWatchlistLookback is §4.9's "last 20 hours" window for 1D patterns.
const dailyWatchlistLookback = 20 * time.Hour

// earningsProximityDays is the ±N calendar day window filter #8 checks.
const earningsProximityDays = 2

// Data is one immutable snapshot of every reference cache. Safe for
// concurrent reads from any number of goroutines; never mutated after Load.
type Data struct {
	sector  map[string]string
	etfSet  map[string]struct{}
	earnings map[string][]time.Time
	media   map[string]models.MediaFeature
	gex     map[string]models.GEXMetadata
	dailyWatchlist map[string]struct{}

	loadedAt time.Time
}

// Load performs every bulk query once and returns an immutable Data handle.
func Load(ctx context.Context, store Store, now time.Time) (*Data, error) {
	tickers, err := store.LoadMasterTickers(ctx)
	if err != nil {
		return nil, err
	}
	earningsRows, err := store.LoadEarningsCalendar(ctx, earningsProximityDays)
	if err != nil {
		return nil, err
	}
	mediaRows, err := store.LoadMediaDailyFeatures(ctx, now)
	if err != nil {
		return nil, err
	}
	gexRows, err := store.LoadGEXSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	watchlistRows, err := store.LoadEngulfingDailyWatchlist(ctx, dailyWatchlistLookback)
	if err != nil {
		return nil, err
	}

	d := &Data{
		sector:         make(map[string]string, len(tickers)),
		etfSet:         make(map[string]struct{}),
		earnings:       make(map[string][]time.Time),
		media:          make(map[string]models.MediaFeature, len(mediaRows)),
		gex:            make(map[string]models.GEXMetadata, len(gexRows)),
		dailyWatchlist: make(map[string]struct{}, len(watchlistRows)),
		loadedAt:       now,
	}

	for _, t := range tickers {
		d.sector[t.Symbol] = t.Sector
		if t.IsETF {
			d.etfSet[t.Symbol] = struct{}{}
		}
	}
	for _, e := range earningsRows {
		d.earnings[e.Symbol] = append(d.earnings[e.Symbol], e.EventDate)
	}
	for _, m := range mediaRows {
		d.media[m.Symbol] = m
	}
	for _, g := range gexRows {
		d.gex[g.Symbol] = models.GEXMetadata{NetGEX: g.NetGEX, GammaFlip: g.GammaFlip, SnapshotTS: g.SnapshotTS}
	}
	for _, w := range watchlistRows {
		if w.Timeframe == models.Timeframe1Day && w.Direction == models.EngulfingBullish {
			d.dailyWatchlist[w.Symbol] = struct{}{}
		}
	}

	return d, nil
}

// IsETF reports ETF-set membership, filter #1.
func (d *Data) IsETF(symbol string) bool {
	_, ok := d.etfSet[symbol]
	return ok
}

// Sector returns the symbol's sector, or "" if unknown. An unknown sector
// never trips the sector-concentration cap (filter #9).
func (d *Data) Sector(symbol string) string {
	return d.sector[symbol]
}

// HasUpcomingEarnings reports whether symbol has an earnings event within
// ±earningsProximityDays calendar days of asOf (filter #8).
func (d *Data) HasUpcomingEarnings(symbol string, asOf time.Time) bool {
	ay, am, ad := asOf.Date()
	asOfDay := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	for _, eventDate := range d.earnings[symbol] {
		ey, em, ed := eventDate.Date()
		diff := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC).Sub(asOfDay)
		if diff < 0 {
			diff = -diff
		}
		if diff <= earningsProximityDays*24*time.Hour {
			return true
		}
	}
	return false
}

// CrowdedTrade reports whether the crowded-trade filter (#7) should reject.
// The filter passes when mentions < 5 AND sentiment >= 0, so it rejects on
// the negation: mentions >= 5 OR sentiment < 0. Missing media data is
// treated as not crowded (pass), matching §7's "sentiment missing -> treat
// as pass".
func (d *Data) CrowdedTrade(symbol string) bool {
	m, ok := d.media[symbol]
	if !ok {
		return false
	}
	return m.Mentions >= 5 || m.Sentiment < 0
}

// GEX returns the symbol's opaque GEX metadata, if loaded.
func (d *Data) GEX(symbol string) (models.GEXMetadata, bool) {
	g, ok := d.gex[symbol]
	return g, ok
}

// OnDailyWatchlist reports O(1) membership in the daily bullish-engulfing
// watchlist the Engulfing Checker consults alongside its 5-minute lookup.
func (d *Data) OnDailyWatchlist(symbol string) bool {
	_, ok := d.dailyWatchlist[symbol]
	return ok
}

// LoadedAt returns when this snapshot was built.
func (d *Data) LoadedAt() time.Time {
	return d.loadedAt
}

// Package baseline builds the 30-minute wall-clock buckets that become
// tomorrow's (and every subsequent day's) time-of-day baseline, and serves
// the Baseline Provider's startup-loaded per-symbol average.
package baseline

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/uoa-systems/flowwatch/internal/models"
)

// BucketInterval is the wall-clock aggregation window.
const BucketInterval = 30 * time.Minute

type bucketKey struct {
	symbol      string
	tradeDate   time.Time
	bucketStart time.Time
}

type bucketState struct {
	prints          int
	notional        float64
	contractsUnique map[string]struct{}
}

// Store is the persistence dependency: an idempotent upsert of a flushed
// bucket row. Implemented by internal/storage's Postgres-backed type.
type Store interface {
	UpsertBaselineBucket(ctx context.Context, p models.BaselinePoint) error
}

// BucketAggregator exclusively owns in-memory Bucket state; the Engine
// drives AddTrade from the firehose-consuming goroutine and calls
// FlushIfBoundaryCrossed on its periodic tick.
type BucketAggregator struct {
	mu       sync.Mutex
	buckets  map[bucketKey]*bucketState
	lastTick time.Time

	store Store
	loc   *time.Location
	now   func() time.Time
	log   *log.Logger
}

// NewBucketAggregator creates an aggregator flushing to store, bucketing
// wall-clock time in loc (the exchange timezone).
func NewBucketAggregator(store Store, loc *time.Location, logger *log.Logger) *BucketAggregator {
	if logger == nil {
		logger = log.Default()
	}
	return &BucketAggregator{
		buckets: make(map[bucketKey]*bucketState),
		store:   store,
		loc:     loc,
		now:     time.Now,
		log:     logger,
	}
}

// AddTrade increments the current bucket for the trade's underlying.
func (b *BucketAggregator) AddTrade(t models.OptionTrade) {
	key := bucketKey{
		symbol:      t.Underlying,
		tradeDate:   dateOnly(t.TS, b.loc),
		bucketStart: BucketStart(t.TS, b.loc),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.buckets[key]
	if !ok {
		st = &bucketState{contractsUnique: make(map[string]struct{})}
		b.buckets[key] = st
	}
	st.prints++
	st.notional += t.Notional()
	st.contractsUnique[t.OCCSymbol] = struct{}{}
}

// BucketStart floors ts to the 30-minute wall-clock boundary in loc.
func BucketStart(ts time.Time, loc *time.Location) time.Time {
	local := ts.In(loc)
	minutesSinceMidnight := local.Hour()*60 + local.Minute()
	floored := (minutesSinceMidnight / 30) * 30
	return time.Date(local.Year(), local.Month(), local.Day(), floored/60, floored%60, 0, 0, loc)
}

func dateOnly(ts time.Time, loc *time.Location) time.Time {
	local := ts.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// FlushIfBoundaryCrossed flushes every accumulated bucket whose
// bucket_start is strictly before the current bucket (i.e. the wall clock
// has crossed a 30-minute boundary since the last flush), clearing them
// from memory. Flush upserts are idempotent so a retried or double flush
// is harmless.
func (b *BucketAggregator) FlushIfBoundaryCrossed(ctx context.Context) {
	now := b.now()
	current := BucketStart(now, b.loc)

	b.mu.Lock()
	if !b.lastTick.IsZero() && BucketStart(b.lastTick, b.loc).Equal(current) {
		b.lastTick = now
		b.mu.Unlock()
		return
	}
	b.lastTick = now

	toFlush := make(map[bucketKey]*bucketState)
	for k, st := range b.buckets {
		if k.bucketStart.Before(current) {
			toFlush[k] = st
			delete(b.buckets, k)
		}
	}
	b.mu.Unlock()

	b.flush(ctx, toFlush)
}

// FlushAll flushes every bucket regardless of boundary, called on shutdown.
func (b *BucketAggregator) FlushAll(ctx context.Context) {
	b.mu.Lock()
	toFlush := b.buckets
	b.buckets = make(map[bucketKey]*bucketState)
	b.mu.Unlock()

	b.flush(ctx, toFlush)
}

func (b *BucketAggregator) flush(ctx context.Context, buckets map[bucketKey]*bucketState) {
	for k, st := range buckets {
		point := models.BaselinePoint{
			Symbol:          k.symbol,
			TradeDate:       k.tradeDate,
			BucketStart:     k.bucketStart,
			Prints:          st.prints,
			Notional:        st.notional,
			ContractsUnique: len(st.contractsUnique),
		}
		if err := b.store.UpsertBaselineBucket(ctx, point); err != nil {
			b.log.Printf("bucket_aggregator: symbol=%s bucket=%s reason=flush_failed err=%v",
				k.symbol, k.bucketStart.Format(time.RFC3339), err)
		}
	}
}

// InMemoryNotional returns the sum of un-flushed notional for a symbol
// across every bucket still held in memory, whatever its trade date, used
// by testable-property S8 (flushed + in-memory notional equals total valid
// notional seen).
func (b *BucketAggregator) InMemoryNotional(symbol string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var total float64
	for k, st := range b.buckets {
		if k.symbol == symbol {
			total += st.notional
		}
	}
	return total
}

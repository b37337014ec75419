package baseline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uoa-systems/flowwatch/internal/models"
)

type fakeStore struct {
	mu     sync.Mutex
	points []models.BaselinePoint
}

func (f *fakeStore) UpsertBaselineBucket(ctx context.Context, p models.BaselinePoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.points {
		if existing.Symbol == p.Symbol && existing.TradeDate.Equal(p.TradeDate) && existing.BucketStart.Equal(p.BucketStart) {
			f.points[i] = p
			return nil
		}
	}
	f.points = append(f.points, p)
	return nil
}

func TestBucketStartAlignsToThirtyMinutes(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	ts := time.Date(2024, 3, 4, 9, 47, 12, 0, loc)
	got := BucketStart(ts, loc)
	assert.Equal(t, time.Date(2024, 3, 4, 9, 30, 0, 0, loc), got)
}

func TestBucketAggregatorFlushIsIdempotent(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	store := &fakeStore{}
	ba := NewBucketAggregator(store, loc, nil)

	base := time.Date(2024, 3, 4, 9, 40, 0, 0, loc)
	ba.now = func() time.Time { return base }

	ba.AddTrade(models.OptionTrade{Underlying: "AAPL", OCCSymbol: "AAPL-1", TS: base, Price: 5, Size: 10})
	ba.AddTrade(models.OptionTrade{Underlying: "AAPL", OCCSymbol: "AAPL-2", TS: base, Price: 5, Size: 10})

	// advance past the boundary and flush twice
	ba.now = func() time.Time { return base.Add(31 * time.Minute) }
	ba.FlushIfBoundaryCrossed(context.Background())
	ba.FlushAll(context.Background())

	require.Len(t, store.points, 1)
	assert.Equal(t, 2, store.points[0].Prints)
	assert.Equal(t, 10000.0, store.points[0].Notional)
	assert.Equal(t, 2, store.points[0].ContractsUnique)
}

func TestBucketAggregatorDoesNotFlushWithinSameBoundary(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	store := &fakeStore{}
	ba := NewBucketAggregator(store, loc, nil)

	base := time.Date(2024, 3, 4, 9, 40, 0, 0, loc)
	ba.now = func() time.Time { return base }
	ba.AddTrade(models.OptionTrade{Underlying: "AAPL", OCCSymbol: "AAPL-1", TS: base, Price: 5, Size: 10})

	ba.now = func() time.Time { return base.Add(5 * time.Minute) }
	ba.FlushIfBoundaryCrossed(context.Background())

	assert.Empty(t, store.points)
	assert.Equal(t, 5000.0, ba.InMemoryNotional("AAPL"))
}

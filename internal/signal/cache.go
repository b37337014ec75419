package signal

import (
	"context"
	"sync"
	"time"

	"github.com/uoa-systems/flowwatch/internal/models"
)

// TAStore is the bulk-load dependency backing the daily-close and
// intraday-5m TA caches (§6: ta_daily_close, ta_intraday_5m).
type TAStore interface {
	LoadTADailyClose(ctx context.Context, tradeDate time.Time) (map[string]models.TADailyClose, error)
	LoadTAIntraday5m(ctx context.Context) (map[string]models.TAIntraday5m, error)
}

// taCache holds both TA layers read-only between refreshes. The daily-close
// layer is reloaded once per trading day; the intraday layer every 5
// minutes, matching the upstream tables' own refresh cadence.
type taCache struct {
	store TAStore

	mu         sync.RWMutex
	dailyClose map[string]models.TADailyClose
	intraday5m map[string]models.TAIntraday5m
}

func newTACache(store TAStore) *taCache {
	return &taCache{
		store:      store,
		dailyClose: make(map[string]models.TADailyClose),
		intraday5m: make(map[string]models.TAIntraday5m),
	}
}

func (c *taCache) refreshDaily(ctx context.Context, tradeDate time.Time) error {
	rows, err := c.store.LoadTADailyClose(ctx, tradeDate)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.dailyClose = rows
	c.mu.Unlock()
	return nil
}

func (c *taCache) refreshIntraday(ctx context.Context) error {
	rows, err := c.store.LoadTAIntraday5m(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.intraday5m = rows
	c.mu.Unlock()
	return nil
}

func (c *taCache) daily(symbol string) (models.TADailyClose, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.dailyClose[symbol]
	return v, ok
}

func (c *taCache) intraday(symbol string) (models.TAIntraday5m, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.intraday5m[symbol]
	return v, ok
}

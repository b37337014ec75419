package broker

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitTradingBroker wraps a TradingBroker in a circuit breaker, tripping
// after repeated consecutive failures and shedding load onto ErrCircuitOpen
// until the breaker's cooldown elapses — the same pattern the teacher wraps
// its broker client in.
type CircuitTradingBroker struct {
	inner TradingBroker
	cb    *gobreaker.CircuitBreaker
}

// NewCircuitTradingBroker wraps inner with a breaker named for logs/metrics.
func NewCircuitTradingBroker(name string, inner TradingBroker) *CircuitTradingBroker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &CircuitTradingBroker{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (c *CircuitTradingBroker) GetAccountCtx(ctx context.Context) (Account, error) {
	v, err := c.cb.Execute(func() (any, error) { return c.inner.GetAccountCtx(ctx) })
	if err != nil {
		return Account{}, err
	}
	return v.(Account), nil
}

func (c *CircuitTradingBroker) GetPositionsCtx(ctx context.Context) ([]Position, error) {
	v, err := c.cb.Execute(func() (any, error) { return c.inner.GetPositionsCtx(ctx) })
	if err != nil {
		return nil, err
	}
	return v.([]Position), nil
}

func (c *CircuitTradingBroker) PlaceMarketOrderCtx(ctx context.Context, symbol string, side Side, shares int64) (string, error) {
	v, err := c.cb.Execute(func() (any, error) { return c.inner.PlaceMarketOrderCtx(ctx, symbol, side, shares) })
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *CircuitTradingBroker) GetOrderStatusCtx(ctx context.Context, orderID string) (OrderStatus, float64, error) {
	type result struct {
		status OrderStatus
		price  float64
	}
	v, err := c.cb.Execute(func() (any, error) {
		status, price, err := c.inner.GetOrderStatusCtx(ctx, orderID)
		if err != nil {
			return result{}, err
		}
		return result{status, price}, nil
	})
	if err != nil {
		return "", 0, err
	}
	res := v.(result)
	return res.status, res.price, nil
}

func (c *CircuitTradingBroker) ClosePositionCtx(ctx context.Context, symbol string, shares int64) (string, error) {
	v, err := c.cb.Execute(func() (any, error) { return c.inner.ClosePositionCtx(ctx, symbol, shares) })
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// CircuitMarketDataBroker wraps a MarketDataBroker the same way.
type CircuitMarketDataBroker struct {
	inner MarketDataBroker
	cb    *gobreaker.CircuitBreaker
}

// NewCircuitMarketDataBroker wraps inner with a breaker named for logs/metrics.
func NewCircuitMarketDataBroker(name string, inner MarketDataBroker) *CircuitMarketDataBroker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &CircuitMarketDataBroker{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (c *CircuitMarketDataBroker) SnapshotCtx(ctx context.Context, symbol string) (float64, error) {
	v, err := c.cb.Execute(func() (any, error) { return c.inner.SnapshotCtx(ctx, symbol) })
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (c *CircuitMarketDataBroker) BarsCtx(ctx context.Context, symbol string, lookbackDays int) ([]Bar, error) {
	v, err := c.cb.Execute(func() (any, error) { return c.inner.BarsCtx(ctx, symbol, lookbackDays) })
	if err != nil {
		return nil, err
	}
	return v.([]Bar), nil
}

var (
	_ TradingBroker    = (*CircuitTradingBroker)(nil)
	_ MarketDataBroker = (*CircuitMarketDataBroker)(nil)
)

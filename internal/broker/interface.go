// Package broker provides the REST and streaming clients the engine uses to
// read market data and place/manage paper-account orders.
package broker

import (
	"context"
	"fmt"
	"time"
)

// Side is a market order's direction.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// OrderStatus is the broker's lifecycle state for a submitted order.
type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderFilled   OrderStatus = "filled"
	OrderRejected OrderStatus = "rejected"
	OrderCanceled OrderStatus = "canceled"
)

// Bar is one daily OHLC bar from the bars endpoint.
type Bar struct {
	Date  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// Position is one broker-reported open equity position.
type Position struct {
	Symbol       string
	Shares       int64
	CostBasis    float64
	CurrentPrice float64
}

// Account holds the equity/buying-power snapshot from GET /v2/account.
type Account struct {
	Equity      float64
	BuyingPower float64
}

// APIError represents a non-2xx broker REST response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("broker API error %d: %s", e.Status, e.Body)
}

// MarketDataBroker is the Signal Generator's read surface: spot price and
// daily bars. Implemented by RESTClient and wrapped in a circuit breaker.
type MarketDataBroker interface {
	SnapshotCtx(ctx context.Context, symbol string) (price float64, err error)
	BarsCtx(ctx context.Context, symbol string, lookbackDays int) ([]Bar, error)
}

// TradingBroker is the Position Manager's execution surface, one instance
// per paper account.
type TradingBroker interface {
	GetAccountCtx(ctx context.Context) (Account, error)
	GetPositionsCtx(ctx context.Context) ([]Position, error)
	PlaceMarketOrderCtx(ctx context.Context, symbol string, side Side, shares int64) (orderID string, err error)
	GetOrderStatusCtx(ctx context.Context, orderID string) (status OrderStatus, fillPrice float64, err error)
	ClosePositionCtx(ctx context.Context, symbol string, shares int64) (orderID string, err error)
}

package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/uoa-systems/flowwatch/internal/ratelimit"
)

// Endpoint categories, rate-limited independently per §5.
const (
	categoryMarketData = "market_data" // snapshot + bars: 200 req/min documented
	categoryTrading     = "trading"     // orders + positions + account
)

// RESTClient is a paper-broker REST client in the shape of §6: account,
// positions, orders, snapshot, bars. One instance is constructed per
// account (and a third, read-only instance, for shared market data).
type RESTClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
	account string
	timeout time.Duration

	marketDataLimiter *ratelimit.Limiter
	tradingLimiter    *ratelimit.Limiter
}

// Option configures a RESTClient at construction.
type Option func(*RESTClient)

// WithHTTPClient overrides the HTTP client (tests, custom transport).
func WithHTTPClient(c *http.Client) Option {
	return func(r *RESTClient) {
		if c != nil {
			r.client = c
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *RESTClient) { r.timeout = d }
}

// WithRateLimits overrides the default requests-per-minute caps.
func WithRateLimits(marketDataPerMin, tradingPerMin int) Option {
	return func(r *RESTClient) {
		r.marketDataLimiter = ratelimit.NewPerMinute(marketDataPerMin)
		r.tradingLimiter = ratelimit.NewPerMinute(tradingPerMin)
	}
}

// NewRESTClient creates a broker REST client against baseURL, authenticating
// with apiKey and scoped to account.
func NewRESTClient(baseURL, apiKey, account string, opts ...Option) *RESTClient {
	r := &RESTClient{
		client:            &http.Client{Timeout: 10 * time.Second},
		baseURL:           strings.TrimRight(baseURL, "/"),
		apiKey:            apiKey,
		account:           account,
		timeout:           10 * time.Second,
		marketDataLimiter: ratelimit.NewPerMinute(200),
		tradingLimiter:    ratelimit.NewPerMinute(200),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RESTClient) wait(ctx context.Context, category string) error {
	switch category {
	case categoryMarketData:
		return r.marketDataLimiter.Wait(ctx)
	default:
		return r.tradingLimiter.Wait(ctx)
	}
}

func (r *RESTClient) do(ctx context.Context, category, method, path string, query url.Values, body io.Reader, out any) error {
	if err := r.wait(ctx, category); err != nil {
		return fmt.Errorf("broker: rate limiter: %w", err)
	}

	u := r.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("broker: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("broker: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("broker: reading response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("broker: decoding response: %w", err)
	}
	return nil
}

type accountResponse struct {
	Equity      float64 `json:"equity"`
	BuyingPower float64 `json:"buying_power"`
}

// GetAccountCtx reads GET /v2/account.
func (r *RESTClient) GetAccountCtx(ctx context.Context) (Account, error) {
	var resp accountResponse
	if err := r.do(ctx, categoryTrading, http.MethodGet, "/v2/account", nil, nil, &resp); err != nil {
		return Account{}, err
	}
	return Account{Equity: resp.Equity, BuyingPower: resp.BuyingPower}, nil
}

type positionResponse struct {
	Symbol       string  `json:"symbol"`
	Quantity     int64   `json:"quantity"`
	CostBasis    float64 `json:"cost_basis"`
	CurrentPrice float64 `json:"current_price"`
}

// GetPositionsCtx reads GET /v2/positions, used by the Startup Reconciler.
func (r *RESTClient) GetPositionsCtx(ctx context.Context) ([]Position, error) {
	var resp []positionResponse
	if err := r.do(ctx, categoryTrading, http.MethodGet, "/v2/positions", nil, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(resp))
	for _, p := range resp {
		out = append(out, Position{Symbol: p.Symbol, Shares: p.Quantity, CostBasis: p.CostBasis, CurrentPrice: p.CurrentPrice})
	}
	return out, nil
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// PlaceMarketOrderCtx submits POST /v2/orders for a market buy or sell. Each
// call sets a newly generated client order ID, so calling it again for the
// same order sends a different ID and the broker does not see a duplicate.
func (r *RESTClient) PlaceMarketOrderCtx(ctx context.Context, symbol string, side Side, shares int64) (string, error) {
	form := url.Values{}
	form.Set("symbol", symbol)
	form.Set("side", string(side))
	form.Set("quantity", strconv.FormatInt(shares, 10))
	form.Set("type", "market")
	form.Set("duration", "day")
	form.Set("client_order_id", uuid.NewString())

	var resp orderResponse
	err := r.do(ctx, categoryTrading, http.MethodPost, "/v2/orders", nil, bytes.NewBufferString(form.Encode()), &resp)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// GetOrderStatusCtx reads an order's fill state and fill price.
func (r *RESTClient) GetOrderStatusCtx(ctx context.Context, orderID string) (OrderStatus, float64, error) {
	var resp struct {
		Status    string  `json:"status"`
		FillPrice float64 `json:"avg_fill_price"`
	}
	if err := r.do(ctx, categoryTrading, http.MethodGet, "/v2/orders/"+orderID, nil, nil, &resp); err != nil {
		return "", 0, err
	}
	switch resp.Status {
	case "filled":
		return OrderFilled, resp.FillPrice, nil
	case "rejected":
		return OrderRejected, 0, nil
	case "canceled", "expired":
		return OrderCanceled, 0, nil
	default:
		return OrderPending, 0, nil
	}
}

// ClosePositionCtx submits a market sell for the full existing share count.
func (r *RESTClient) ClosePositionCtx(ctx context.Context, symbol string, shares int64) (string, error) {
	return r.PlaceMarketOrderCtx(ctx, symbol, Sell, shares)
}

type snapshotResponse struct {
	LastPrice float64 `json:"last_price"`
}

// SnapshotCtx reads GET /v2/stocks/{symbol}/snapshot for the current spot price.
// A stale or zero price is surfaced to the caller rather than silently
// substituted — the signal generator and filter chain decide fail-open vs
// fail-closed per their own invariants.
func (r *RESTClient) SnapshotCtx(ctx context.Context, symbol string) (float64, error) {
	var resp snapshotResponse
	path := fmt.Sprintf("/v2/stocks/%s/snapshot", url.PathEscape(symbol))
	if err := r.do(ctx, categoryMarketData, http.MethodGet, path, nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.LastPrice, nil
}

type barsResponse struct {
	Bars []struct {
		Date  string  `json:"date"`
		Open  float64 `json:"open"`
		High  float64 `json:"high"`
		Low   float64 `json:"low"`
		Close float64 `json:"close"`
	} `json:"bars"`
	NextPageToken string `json:"next_page_token"`
}

// BarsCtx reads GET /v2/stocks/bars with a lookbackDays window, transparently
// following next_page_token until exhausted.
func (r *RESTClient) BarsCtx(ctx context.Context, symbol string, lookbackDays int) ([]Bar, error) {
	var out []Bar
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("symbols", symbol)
		q.Set("lookback_days", strconv.Itoa(lookbackDays))
		q.Set("interval", "daily")
		q.Set("feed", "sip")
		if pageToken != "" {
			q.Set("next_page_token", pageToken)
		}

		var resp barsResponse
		if err := r.do(ctx, categoryMarketData, http.MethodGet, "/v2/stocks/bars", q, nil, &resp); err != nil {
			return nil, err
		}
		for _, b := range resp.Bars {
			date, err := time.Parse("2006-01-02", b.Date)
			if err != nil {
				continue
			}
			out = append(out, Bar{Date: date, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close})
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return out, nil
}

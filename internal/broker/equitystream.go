package broker

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// EquityTrade is one message off the per-symbol equity trade stream.
type EquityTrade struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Size   int64   `json:"size"`
	TS     int64   `json:"timestamp"`
}

// EquityStream is a subscribe/unsubscribe streaming client the Hard-Stop
// Monitor uses for its real-time path, one connection per process.
type EquityStream struct {
	url    string
	apiKey string
	log    *log.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	subs map[string]struct{}

	Trades chan EquityTrade
}

// NewEquityStream creates a stream client that connects lazily on Run.
func NewEquityStream(url, apiKey string, logger *log.Logger) *EquityStream {
	if logger == nil {
		logger = log.Default()
	}
	return &EquityStream{
		url:    url,
		apiKey: apiKey,
		log:    logger,
		subs:   make(map[string]struct{}),
		Trades: make(chan EquityTrade, 1024),
	}
}

// Subscribe adds symbol to the watched set, sending a subscribe message if connected.
func (e *EquityStream) Subscribe(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.subs[symbol]; ok {
		return
	}
	e.subs[symbol] = struct{}{}
	if e.conn != nil {
		_ = e.conn.WriteJSON(map[string]any{"action": "subscribe", "symbol": symbol})
	}
}

// Unsubscribe removes symbol from the watched set once no account holds it.
func (e *EquityStream) Unsubscribe(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.subs, symbol)
	if e.conn != nil {
		_ = e.conn.WriteJSON(map[string]any{"action": "unsubscribe", "symbol": symbol})
	}
}

// Run connects and reconnects until ctx is cancelled, replaying the current
// subscription set on each reconnect.
func (e *EquityStream) Run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			close(e.Trades)
			return
		}
		err := e.connectAndStream(ctx)
		if ctx.Err() != nil {
			close(e.Trades)
			return
		}
		backoff := backoffDuration(attempt)
		e.log.Printf("equity_stream: reason=disconnected err=%v backoff=%s", err, backoff)
		sleep(ctx, backoff)
		attempt++
	}
}

func (e *EquityStream) connectAndStream(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, e.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	e.mu.Lock()
	e.conn = conn
	for symbol := range e.subs {
		_ = conn.WriteJSON(map[string]any{"action": "subscribe", "symbol": symbol})
	}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.conn = nil
		e.mu.Unlock()
	}()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var trade EquityTrade
		if err := json.Unmarshal(msg, &trade); err != nil {
			e.log.Printf("equity_stream: reason=malformed_message err=%v", err)
			continue
		}
		select {
		case e.Trades <- trade:
		case <-ctx.Done():
			return ctx.Err()
		default:
			e.log.Printf("equity_stream: reason=backpressure_drop symbol=%s", trade.Symbol)
		}
	}
}

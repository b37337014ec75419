package broker

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// RawTrade is one wire message off the options firehose, before OCC decode.
type RawTrade struct {
	Symbol     string   `json:"symbol"`
	Size       int64    `json:"size"`
	Price      float64  `json:"price"`
	TimestampNS int64   `json:"timestamp"`
	Conditions []string `json:"conditions"`
}

const maxConnectionsBackoff = 60 * time.Second

// Firehose subscribes to the full-market options trade stream (`T.*`) and
// delivers decoded RawTrade messages on Trades, reconnecting with jittered
// exponential backoff on disconnect.
type Firehose struct {
	url    string
	apiKey string
	log    *log.Logger

	Trades chan RawTrade
}

// NewFirehose creates a Firehose client that will connect to url on Run.
func NewFirehose(url, apiKey string, logger *log.Logger) *Firehose {
	if logger == nil {
		logger = log.Default()
	}
	return &Firehose{url: url, apiKey: apiKey, log: logger, Trades: make(chan RawTrade, 4096)}
}

// Run connects and reconnects until ctx is cancelled, pushing decoded
// trades to f.Trades. Never returns an error to the caller — connection
// failures are logged and retried.
func (f *Firehose) Run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			close(f.Trades)
			return
		}

		err := f.connectAndStream(ctx)
		if ctx.Err() != nil {
			close(f.Trades)
			return
		}

		if err != nil && strings.Contains(err.Error(), "max connections exceeded") {
			f.log.Printf("firehose: reason=max_connections_exceeded sleeping=%s", maxConnectionsBackoff)
			sleep(ctx, maxConnectionsBackoff)
			attempt = 0
			continue
		}

		backoff := backoffDuration(attempt)
		f.log.Printf("firehose: reason=disconnected err=%v backoff=%s", err, backoff)
		sleep(ctx, backoff)
		attempt++
	}
}

func (f *Firehose) connectAndStream(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	subscribe := map[string]any{"action": "subscribe", "params": "T.*", "key": f.apiKey}
	if err := conn.WriteJSON(subscribe); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var trade RawTrade
		if err := json.Unmarshal(msg, &trade); err != nil {
			f.log.Printf("firehose: reason=malformed_message err=%v", err)
			continue
		}
		select {
		case f.Trades <- trade:
		case <-ctx.Done():
			return ctx.Err()
		default:
			f.log.Printf("firehose: reason=backpressure_drop symbol=%s", trade.Symbol)
		}
	}
}

func backoffDuration(attempt int) time.Duration {
	base := time.Second
	max := 30 * time.Second
	d := base << uint(min(attempt, 5))
	if d > max {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	return d + jitter
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

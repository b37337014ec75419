// Package storage persists every store named in §6: the append-only
// evaluation log, the deduplicated passed-signal projection, per-account
// trade records, tracked-symbol counters, the 30-min baseline buckets, and
// the read-only reference tables loaded once at boot. The teacher's
// JSON-file Storage could not express the partial unique index
// (`UNIQUE(symbol) WHERE exit_time IS NULL`) or idempotent upserts these
// require, so this package is backed by Postgres via gorm instead, while
// keeping the teacher's interface-plus-mock testing shape.
package storage

import (
	"context"
	"time"

	"github.com/uoa-systems/flowwatch/internal/models"
)

// Interface is the full persistence contract. The engine holds one Store
// satisfying Interface; collaborators (position managers, the bucket
// aggregator, the signal generator's reference caches) are each handed the
// narrower sub-interface they actually need.
type Interface interface {
	BaselineStore
	EvaluationStore
	TradeStore
	TrackedSymbolStore
	ReferenceStore

	// Close releases the underlying connection pool.
	Close() error
}

// BaselineStore backs the Bucket Aggregator (writer) and Baseline Provider
// (reader at startup).
type BaselineStore interface {
	// UpsertBaselineBucket flushes one accumulated 30-min bucket. Idempotent
	// on the (symbol, trade_date, bucket_start) key — a retried flush after a
	// partial failure is harmless.
	UpsertBaselineBucket(ctx context.Context, b models.BaselinePoint) error

	// LoadBaselineHistory returns, for every symbol with any history, the
	// per-trading-day summed notional over the preceding lookbackDays,
	// satisfying baseline.HistoryStore.
	LoadBaselineHistory(ctx context.Context, lookbackDays int) (map[string][]float64, error)
}

// EvaluationStore backs the Filter Chain's append-only audit trail.
type EvaluationStore interface {
	// SaveEvaluation inserts one evaluated signal (pass or fail) and
	// returns its assigned ID.
	SaveEvaluation(ctx context.Context, e *models.Evaluation) (int64, error)

	// UpsertPassedSignal inserts or no-ops a passed-signal row, idempotent
	// on (detected_at, symbol).
	UpsertPassedSignal(ctx context.Context, p *models.PassedSignal) error

	// UpdatePassedSignalStatus transitions a passed signal's status (e.g.
	// to CLOSED) when the position manager closes the corresponding trade.
	UpdatePassedSignalStatus(ctx context.Context, detectedAt time.Time, symbol, status string) error
}

// TradeStore backs the Position Manager (writer) and Startup Reconciler
// (reader on boot), scoped per account ("A" or "B").
type TradeStore interface {
	// OpenTradeRecord inserts an open row (exit_time NULL) and returns its ID.
	OpenTradeRecord(ctx context.Context, t *models.TradeRecord) (int64, error)

	// CloseTradeRecord updates an open row by ID regardless of how many
	// days have passed since it was opened.
	CloseTradeRecord(ctx context.Context, id int64, exitTime time.Time, exitPrice, pnl, pnlPct float64, exitReason string) error

	// LoadOpenTradeRecords returns every row with exit_time IS NULL for account.
	LoadOpenTradeRecords(ctx context.Context, account string) ([]models.TradeRecord, error)
}

// TrackedSymbolStore backs the detector's per-trigger bookkeeping.
type TrackedSymbolStore interface {
	// UpsertTrackedSymbol increments trigger_count and bumps last_trigger_ts
	// for symbol, creating the row on first trigger.
	UpsertTrackedSymbol(ctx context.Context, symbol string, triggerTS time.Time) error
}

// ReferenceStore backs the bulk, read-at-boot reference caches (§4.7, §4.8,
// §4.9) and their periodic refreshes.
type ReferenceStore interface {
	LoadMasterTickers(ctx context.Context) ([]models.MasterTicker, error)
	LoadEarningsCalendar(ctx context.Context, withinDays int) ([]models.EarningsEvent, error)
	LoadMediaDailyFeatures(ctx context.Context, asOf time.Time) ([]models.MediaFeature, error)
	LoadGEXSnapshot(ctx context.Context) ([]models.GEXSnapshot, error)
	LoadTADailyClose(ctx context.Context, tradeDate time.Time) (map[string]models.TADailyClose, error)
	LoadTAIntraday5m(ctx context.Context) (map[string]models.TAIntraday5m, error)

	// LoadEngulfingDailyWatchlist returns every 1D-timeframe pattern
	// detected in the last lookback window (§4.9: "last 20 hours").
	LoadEngulfingDailyWatchlist(ctx context.Context, lookback time.Duration) ([]models.EngulfingScore, error)

	// QueryEngulfing5min looks up the most recent 5-min bullish engulfing
	// pattern for symbol within lookback. Returns ok=false on a miss; never
	// errors to the caller (§4.9: "never fails the calling flow").
	QueryEngulfing5min(ctx context.Context, symbol string, lookback time.Duration) (score models.EngulfingScore, ok bool)
}

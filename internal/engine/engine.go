// Package engine is the top-level coordinator (§4.13): it owns every
// collaborator's lifecycle, drives the firehose-to-detector-to-filter
// pipeline, runs the periodic bucket-flush/EOD/daily-reset ticks, and
// shuts down without liquidating any open position. Grounded on the
// teacher's cmd/bot Bot struct and its Run(ctx) main loop, generalized from
// a single-symbol polling cycle to an event-driven multi-account pipeline.
package engine

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/uoa-systems/flowwatch/internal/aggregator"
	"github.com/uoa-systems/flowwatch/internal/baseline"
	"github.com/uoa-systems/flowwatch/internal/broker"
	"github.com/uoa-systems/flowwatch/internal/detector"
	"github.com/uoa-systems/flowwatch/internal/engulfing"
	"github.com/uoa-systems/flowwatch/internal/eod"
	"github.com/uoa-systems/flowwatch/internal/filters"
	"github.com/uoa-systems/flowwatch/internal/hardstop"
	"github.com/uoa-systems/flowwatch/internal/models"
	"github.com/uoa-systems/flowwatch/internal/occ"
	"github.com/uoa-systems/flowwatch/internal/position"
	"github.com/uoa-systems/flowwatch/internal/reference"
	"github.com/uoa-systems/flowwatch/internal/signal"
)

// intradayRefreshInterval matches §4.7's 5-min intraday TA refresh.
const intradayRefreshInterval = 5 * time.Minute

// eodCheckInterval is how often the wall clock is checked against the EOD
// exit time; coarser than a second is fine since liquidation has no upper
// bound once triggered.
const eodCheckInterval = 5 * time.Second

// EvaluationStore is the append-only audit-trail dependency.
type EvaluationStore interface {
	SaveEvaluation(ctx context.Context, e *models.Evaluation) (int64, error)
	UpsertPassedSignal(ctx context.Context, p *models.PassedSignal) error
}

// ReferenceStore is the daily reference-reload dependency, satisfied by
// storage.Interface's ReferenceStore sub-interface.
type ReferenceStore = reference.Store

// Deps bundles every collaborator the Engine drives. All fields are
// required except EquityStream, which may be nil to disable the hard-stop
// monitor's real-time path (REST safety net still runs).
type Deps struct {
	Firehose     *broker.Firehose
	EquityStream *broker.EquityStream
	Aggregator   *aggregator.Aggregator
	BucketAgg  *baseline.BucketAggregator
	Baseline   *baseline.Provider
	Detector   *detector.Detector
	Generator  *signal.Generator
	Filters    *filters.Chain
	BounceDay  *filters.BounceDayCache
	Engulfing  *engulfing.Checker

	AccountA *position.Manager
	AccountB *position.Manager

	HardStop *hardstop.Monitor
	EOD      *eod.Closer

	Evaluations EvaluationStore
	Reference   ReferenceStore

	ScanInterval        time.Duration
	BucketFlushInterval time.Duration
	Location            *time.Location
	Logger              *log.Logger
}

// Engine is the fully-wired runtime. Construct via New, then Run.
type Engine struct {
	d   Deps
	now func() time.Time
}

// New builds an Engine from its dependencies.
func New(d Deps) *Engine {
	if d.Logger == nil {
		d.Logger = log.New(os.Stderr, "engine: ", log.LstdFlags)
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.ScanInterval <= 0 {
		d.ScanInterval = detector.ScanInterval
	}
	if d.BucketFlushInterval <= 0 {
		d.BucketFlushInterval = 5 * time.Second
	}
	return &Engine{d: d, now: time.Now}
}

// Run starts every collaborator and blocks until ctx is cancelled. On
// cancellation it flushes in-memory bucket state (a data-durability
// concern, not a position one) and returns without liquidating a single
// open position — per §4.13, shutdown never force-closes trades.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.d.Baseline.Load(ctx); err != nil {
		return err
	}
	if err := e.d.BounceDay.Refresh(ctx); err != nil {
		e.d.Logger.Printf("bounce_day refresh failed at boot: %v", err)
	}
	if err := e.d.Generator.RefreshDailyClose(ctx, e.now().In(e.d.Location)); err != nil {
		e.d.Logger.Printf("ta daily_close refresh failed at boot: %v", err)
	}
	if err := e.d.Generator.RefreshIntraday(ctx); err != nil {
		e.d.Logger.Printf("ta intraday refresh failed at boot: %v", err)
	}

	if err := e.d.AccountA.SyncOnStartup(ctx); err != nil {
		e.d.Logger.Printf("account A sync_on_startup failed: %v", err)
	}
	if err := e.d.AccountB.SyncOnStartup(ctx); err != nil {
		e.d.Logger.Printf("account B sync_on_startup failed: %v", err)
	}

	go e.d.Firehose.Run(ctx)
	if e.d.EquityStream != nil {
		go e.d.EquityStream.Run(ctx)
	}
	go e.d.HardStop.Run(ctx)
	go e.d.Detector.Run(ctx, e.d.ScanInterval, e.handleTrigger)
	go e.consumeFirehose(ctx)
	go e.runPeriodicTasks(ctx)

	<-ctx.Done()

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	e.d.BucketAgg.FlushAll(flushCtx)

	return nil
}

// consumeFirehose decodes every raw trade and feeds it to the rolling
// window and bucket aggregators, the two writers on this hot path (§5:
// "the firehose handler must never block on a synchronous DB write" — both
// AddTrade calls are in-memory only).
func (e *Engine) consumeFirehose(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-e.d.Firehose.Trades:
			if !ok {
				return
			}
			trade, err := decodeTrade(raw)
			if err != nil {
				continue
			}
			e.d.Aggregator.AddTrade(trade)
			e.d.BucketAgg.AddTrade(trade)
		}
	}
}

func decodeTrade(raw broker.RawTrade) (models.OptionTrade, error) {
	decoded, err := occ.Parse(raw.Symbol)
	if err != nil {
		return models.OptionTrade{}, err
	}
	return models.OptionTrade{
		OCCSymbol:  raw.Symbol,
		Underlying: decoded.Underlying,
		Expiry:     decoded.Expiry,
		Right:      decoded.Right,
		Strike:     decoded.Strike,
		TS:         time.Unix(0, raw.TimestampNS),
		Price:      raw.Price,
		Size:       raw.Size,
		Conditions: raw.Conditions,
	}, nil
}

// handleTrigger runs one detector trigger through enrichment, filtering,
// and dual-account admission. Spawned per trigger so a slow broker lookup
// on one symbol never delays another's cooldown-gated trigger.
func (e *Engine) handleTrigger(trig models.Trigger) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		sig := e.d.Generator.Enrich(ctx, trig)
		result := e.d.Filters.Evaluate(sig, e.d.BounceDay.Threshold())

		eval := &models.Evaluation{
			DetectedAt:       trig.TS,
			Symbol:           trig.Symbol,
			ScoreTotal:       sig.Score.Total(),
			ComponentScores:  sig.Score,
			RSI14:            sig.RSI14,
			SMA20:            sig.SMA20,
			SMA50:            sig.SMA50,
			SpotPrice:        sig.SpotPrice,
			NotionalTotal:    sig.Stats.NotionalTotal,
			VolumeRatio:      sig.VolumeRatio,
			PassedAllFilters: result.Pass,
			RejectionReason:  result.Reason,
		}
		if _, err := e.d.Evaluations.SaveEvaluation(ctx, eval); err != nil {
			e.d.Logger.Printf("symbol=%s save_evaluation error=%v", trig.Symbol, err)
		}

		// Account B evaluates independently of the 10-filter chain (§4.9):
		// only score>=10 plus engulfing confirmation gate it, so it is not a
		// subset of Account A and must run even when result.Pass is false.
		if sig.Score.Total() >= filters.ScoreThreshold {
			present, strength := e.d.Engulfing.Confirm(ctx, trig.Symbol)
			if present {
				e.d.Logger.Printf("symbol=%s engulfing confirmed strength=%v", trig.Symbol, strength)
				if ok, reason := e.d.AccountB.OpenPosition(ctx, sig); ok {
					e.subscribeEquity(trig.Symbol)
				} else {
					e.d.Logger.Printf("symbol=%s account=B open rejected reason=%s", trig.Symbol, reason)
				}
			}
		}

		if !result.Pass {
			e.d.Logger.Printf("symbol=%s rejected reason=%s", trig.Symbol, result.Reason)
			return
		}

		passed := &models.PassedSignal{
			DetectedAt: trig.TS,
			Symbol:     trig.Symbol,
			ScoreTotal: sig.Score.Total(),
			Status:     models.PassedSignalOpen,
		}
		if err := e.d.Evaluations.UpsertPassedSignal(ctx, passed); err != nil {
			e.d.Logger.Printf("symbol=%s upsert_passed_signal error=%v", trig.Symbol, err)
		}

		if ok, reason := e.d.AccountA.OpenPosition(ctx, sig); ok {
			e.subscribeEquity(trig.Symbol)
		} else {
			e.d.Logger.Printf("symbol=%s account=A open rejected reason=%s", trig.Symbol, reason)
		}
	}()
}

// subscribeEquity adds symbol to the hard-stop monitor's real-time stream
// once a position is opened in it; a symbol already subscribed from a
// prior position is a cheap no-op in the stream client.
func (e *Engine) subscribeEquity(symbol string) {
	if e.d.EquityStream != nil {
		e.d.EquityStream.Subscribe(symbol)
	}
}

// dayCheckInterval is how often the wall clock is polled for a date
// rollover; a minute's slack on the daily reset boundary is harmless.
const dayCheckInterval = time.Minute

// runPeriodicTasks drives every tick-based collaborator: bucket flush, EOD
// wall-clock check, intraday TA refresh, and the once-daily reset/reload.
func (e *Engine) runPeriodicTasks(ctx context.Context) {
	bucketTicker := time.NewTicker(e.d.BucketFlushInterval)
	defer bucketTicker.Stop()

	eodTicker := time.NewTicker(eodCheckInterval)
	defer eodTicker.Stop()

	intradayTicker := time.NewTicker(intradayRefreshInterval)
	defer intradayTicker.Stop()

	dayTicker := time.NewTicker(dayCheckInterval)
	defer dayTicker.Stop()

	lastDay := e.now().In(e.d.Location).YearDay()

	for {
		select {
		case <-ctx.Done():
			return
		case <-bucketTicker.C:
			e.d.BucketAgg.FlushIfBoundaryCrossed(ctx)
		case <-eodTicker.C:
			e.d.EOD.Tick(ctx, e.now())
		case <-intradayTicker.C:
			if err := e.d.Generator.RefreshIntraday(ctx); err != nil {
				e.d.Logger.Printf("ta intraday refresh failed: %v", err)
			}
		case <-dayTicker.C:
			today := e.now().In(e.d.Location).YearDay()
			if today != lastDay {
				lastDay = today
				e.dailyReset(ctx)
			}
		}
	}
}

// dailyReset reloads every cache that is only valid for one trading day
// and clears each account's daily counters, cooldowns, and EOD flag.
func (e *Engine) dailyReset(ctx context.Context) {
	e.d.Logger.Println("running daily reset")

	e.d.Aggregator.ResetAll()
	e.d.Detector.ResetCooldowns()
	e.d.AccountA.ResetDaily()
	e.d.AccountB.ResetDaily()
	e.d.EOD.ResetDaily()

	if err := e.d.BounceDay.Refresh(ctx); err != nil {
		e.d.Logger.Printf("bounce_day refresh failed: %v", err)
	}
	if err := e.d.Generator.RefreshDailyClose(ctx, e.now().In(e.d.Location)); err != nil {
		e.d.Logger.Printf("ta daily_close refresh failed: %v", err)
	}
	if err := e.d.Baseline.Load(ctx); err != nil {
		e.d.Logger.Printf("baseline reload failed: %v", err)
	}
	if e.d.Reference != nil {
		if ref, err := reference.Load(ctx, e.d.Reference, e.now()); err != nil {
			e.d.Logger.Printf("reference reload failed: %v", err)
		} else {
			e.d.Generator.SetReferenceData(ref)
			e.d.Filters.SetReference(ref)
		}
	}
}

// Command uoabot is the engine's entrypoint: load configuration, wire every
// collaborator, and run until SIGINT/SIGTERM. Grounded on cmd/bot/main.go's
// Bot struct and run() int pattern — config load, storage connect, broker
// clients, signal-driven graceful shutdown — generalized from a single
// options strategy to the dual-account equity pipeline.
package main

import (
	"context"
	"log"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/uoa-systems/flowwatch/internal/aggregator"
	"github.com/uoa-systems/flowwatch/internal/baseline"
	"github.com/uoa-systems/flowwatch/internal/broker"
	"github.com/uoa-systems/flowwatch/internal/cache"
	"github.com/uoa-systems/flowwatch/internal/config"
	"github.com/uoa-systems/flowwatch/internal/detector"
	"github.com/uoa-systems/flowwatch/internal/engine"
	"github.com/uoa-systems/flowwatch/internal/engulfing"
	"github.com/uoa-systems/flowwatch/internal/eod"
	"github.com/uoa-systems/flowwatch/internal/filters"
	"github.com/uoa-systems/flowwatch/internal/hardstop"
	"github.com/uoa-systems/flowwatch/internal/position"
	"github.com/uoa-systems/flowwatch/internal/reference"
	"github.com/uoa-systems/flowwatch/internal/retry"
	"github.com/uoa-systems/flowwatch/internal/signal"
	"github.com/uoa-systems/flowwatch/internal/statusapi"
	"github.com/uoa-systems/flowwatch/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := log.New(os.Stderr, "uoabot: ", log.LstdFlags)

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Printf("config load failed: %v", err)
		return 1
	}
	loc := cfg.Location()

	logrusLogger := newLogrusLogger(cfg.Environment)

	store, err := storage.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Printf("storage open failed: %v", err)
		return 1
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	migrateCtx, migrateCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := store.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Printf("storage migrate failed: %v", err)
		return 1
	}
	migrateCancel()

	var redisClient *cache.Client
	if cfg.RedisURL != "" {
		redisClient, err = cache.NewClient(cfg.RedisURL, "", 0)
		if err != nil {
			logger.Printf("redis connect failed (continuing without cache): %v", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	retryClient := retry.NewClient(logger)

	refDataCtx, refDataCancel := context.WithTimeout(ctx, 30*time.Second)
	refData, err := reference.Load(refDataCtx, store, time.Now())
	refDataCancel()
	if err != nil {
		logger.Printf("reference data load failed: %v", err)
		return 1
	}

	if len(cfg.Detector.SweepConditions) > 0 {
		aggregator.SetSweepConditions(cfg.Detector.SweepConditions)
	}
	agg := aggregator.New(logger)

	bucketAgg := baseline.NewBucketAggregator(store, loc, logger)
	baselineProvider := baseline.NewProvider(store)
	baselineCache := cache.NewBaselineCache(redisClient, baselineProvider)

	det := detector.New(agg, baselineCache.WithContext(ctx), store, logger)

	mktA := newMarketDataBroker(cfg.AccountA, "account-a-marketdata")

	gen := signal.New(mktA, store, refData, loc, retryClient)

	filterChain := filters.New(refData)
	bounceDay := filters.NewBounceDayCache(mktA)

	engulfingChecker := engulfing.New(store, refData)

	regimeCache := cache.NewRegimeCache(redisClient)
	regimeChecker := position.NewRegimeChecker(regimeCache, mktA)

	accountA := position.New(
		position.Config{
			Account:             "A",
			MaxConcurrent:       cfg.AccountA.MaxConcurrent,
			PositionNotionalCap: cfg.AccountA.PositionNotionalCap,
			PositionPct:         cfg.AccountA.PositionPct,
		},
		newTradingBroker(cfg.AccountA, "account-a-trading"),
		store, refData, regimeChecker, spotLookup(mktA), logger,
	)
	accountB := position.New(
		position.Config{
			Account:             "B",
			MaxConcurrent:       cfg.AccountB.MaxConcurrent,
			PositionNotionalCap: cfg.AccountB.PositionNotionalCap,
			PositionPct:         cfg.AccountB.PositionPct,
		},
		newTradingBroker(cfg.AccountB, "account-b-trading"),
		store, refData, regimeChecker, spotLookup(mktA), logger,
	)

	firehose := broker.NewFirehose(cfg.Firehose.URL, cfg.Firehose.APIKey, logger)
	equityStream := broker.NewEquityStream(cfg.EquityStream.URL, cfg.EquityStream.APIKey, logger)

	hsMonitor := hardstop.New([]hardstop.Account{
		{Name: "A", HardStopPct: cfg.AccountA.HardStopPct, Manager: accountA},
		{Name: "B", HardStopPct: cfg.AccountB.HardStopPct, Manager: accountB},
	}, equityStream.Trades, mktA, logger)

	eodCloser, err := eod.New([]eod.Account{
		{Name: "A", Manager: accountA},
		{Name: "B", Manager: accountB},
	}, cfg.EOD.ExitTime, loc, logger)
	if err != nil {
		logger.Printf("eod closer construction failed: %v", err)
		return 1
	}

	statusSrv := statusapi.New(
		statusapi.Config{Addr: cfg.StatusAPIAddr},
		[]statusapi.Account{
			{Name: "A", Manager: accountA},
			{Name: "B", Manager: accountB},
		},
		agg, logrusLogger,
	)

	eng := engine.New(engine.Deps{
		Firehose:     firehose,
		EquityStream: equityStream,
		Aggregator:   agg,
		BucketAgg:    bucketAgg,
		Baseline:     baselineProvider,
		Detector:     det,
		Generator:    gen,
		Filters:      filterChain,
		BounceDay:    bounceDay,
		Engulfing:    engulfingChecker,
		AccountA:     accountA,
		AccountB:     accountB,
		HardStop:     hsMonitor,
		EOD:          eodCloser,
		Evaluations:  store,
		Reference:    store,

		ScanInterval:        cfg.Detector.ScanInterval,
		BucketFlushInterval: cfg.BucketFlushInterval,
		Location:            loc,
		Logger:              logger,
	})

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Println("shutdown signal received")
		cancel()
	}()

	go func() {
		if err := statusSrv.Start(); err != nil {
			logger.Printf("status api server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = statusSrv.Shutdown(shutdownCtx)
	}()

	if err := eng.Run(ctx); err != nil {
		logger.Printf("engine run error: %v", err)
		return 1
	}
	return 0
}

func newLogrusLogger(environment string) *logrus.Logger {
	l := logrus.New()
	if environment == "live" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}

func newTradingBroker(acct config.BrokerAccount, name string) *broker.CircuitTradingBroker {
	client := broker.NewRESTClient(acct.BaseURL, acct.APIKey, acct.AccountID)
	return broker.NewCircuitTradingBroker(name, client)
}

func newMarketDataBroker(acct config.BrokerAccount, name string) *broker.CircuitMarketDataBroker {
	client := broker.NewRESTClient(acct.BaseURL, acct.APIKey, acct.AccountID)
	return broker.NewCircuitMarketDataBroker(name, client)
}

// spotLookup adapts a MarketDataBroker's SnapshotCtx (float64, error) to the
// Position Manager's SpotLookup shape (float64, ok bool), used only to
// refine a crash-recovery exit price when no fresher value is available.
func spotLookup(mkt *broker.CircuitMarketDataBroker) position.SpotLookup {
	return func(ctx context.Context, symbol string) (float64, bool) {
		price, err := mkt.SnapshotCtx(ctx, symbol)
		if err != nil || price <= 0 {
			return 0, false
		}
		return price, true
	}
}

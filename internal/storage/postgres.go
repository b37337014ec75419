package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/uoa-systems/flowwatch/internal/models"
)

// Store is the gorm/postgres-backed Interface implementation.
type Store struct {
	db *gorm.DB
}

// Open dials dsn and returns a ready Store. Call Migrate before serving
// traffic on a fresh database.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: connecting to postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// Migrate creates every table via AutoMigrate, then adds the partial
// unique indexes gorm struct tags can't express: at most one open trade
// row per (account, symbol), matching §3's TradeRecord invariant.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&baselineBucketRow{},
		&evaluationRow{},
		&activeSignalRow{},
		&tradeRecordRow{},
		&trackedSymbolRow{},
		&masterTickerRow{},
		&earningsEventRow{},
		&mediaFeatureRow{},
		&gexSnapshotRow{},
		&taDailyCloseRow{},
		&taIntraday5mRow{},
		&engulfingScoreRow{},
	)
	if err != nil {
		return fmt.Errorf("storage: automigrate: %w", err)
	}

	statements := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_open_trade_per_account_symbol
		 ON paper_trades_log (account, symbol) WHERE exit_time IS NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_baseline_bucket
		 ON intraday_baselines_30m (symbol, trade_date, bucket_start)`,
	}
	for _, stmt := range statements {
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("storage: creating index: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertBaselineBucket flushes one bucket, idempotent on the composite key.
func (s *Store) UpsertBaselineBucket(ctx context.Context, b models.BaselinePoint) error {
	row := baselineBucketRow{
		Symbol:          b.Symbol,
		TradeDate:       b.TradeDate,
		BucketStart:     b.BucketStart,
		Prints:          b.Prints,
		Notional:        b.Notional,
		ContractsUnique: b.ContractsUnique,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "trade_date"}, {Name: "bucket_start"}},
		DoUpdates: clause.AssignmentColumns([]string{"prints", "notional", "contracts_unique"}),
	}).Create(&row).Error
}

// LoadBaselineHistory sums notional per (symbol, trade_date) over the most
// recent lookbackDays trade dates present in the table and groups the daily
// sums by symbol, matching Open Question decision #2's symbol-day aggregate
// interpretation.
func (s *Store) LoadBaselineHistory(ctx context.Context, lookbackDays int) (map[string][]float64, error) {
	var rows []struct {
		Symbol    string
		TradeDate time.Time
		Total     float64
	}
	err := s.db.WithContext(ctx).Model(&baselineBucketRow{}).
		Select("symbol, trade_date, SUM(notional) AS total").
		Where("trade_date >= (SELECT MIN(d) FROM (SELECT DISTINCT trade_date AS d FROM intraday_baselines_30m ORDER BY d DESC LIMIT ?) AS recent)", lookbackDays).
		Group("symbol, trade_date").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("storage: loading baseline history: %w", err)
	}

	out := make(map[string][]float64)
	for _, r := range rows {
		out[r.Symbol] = append(out[r.Symbol], r.Total)
	}
	return out, nil
}

// SaveEvaluation inserts one evaluated signal and returns its ID.
func (s *Store) SaveEvaluation(ctx context.Context, e *models.Evaluation) (int64, error) {
	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return 0, fmt.Errorf("storage: marshaling evaluation metadata: %w", err)
	}
	row := evaluationRow{
		DetectedAt:       e.DetectedAt,
		Symbol:           e.Symbol,
		ScoreTotal:       e.ScoreTotal,
		VolumeRatioScore: e.ComponentScores.VolumeRatio,
		CallPctScore:     e.ComponentScores.CallPct,
		SweepPctScore:    e.ComponentScores.SweepPct,
		StrikeConcScore:  e.ComponentScores.StrikeConcentration,
		NotionalScore:    e.ComponentScores.Notional,
		RSI14:            e.RSI14,
		SMA20:            e.SMA20,
		SMA50:            e.SMA50,
		SpotPrice:        e.SpotPrice,
		NotionalTotal:    e.NotionalTotal,
		VolumeRatio:      e.VolumeRatio,
		PassedAllFilters: e.PassedAllFilters,
		RejectionReason:  e.RejectionReason,
		Metadata:         string(metaJSON),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("storage: saving evaluation: %w", err)
	}
	return row.ID, nil
}

// UpsertPassedSignal is idempotent on (detected_at, symbol).
func (s *Store) UpsertPassedSignal(ctx context.Context, p *models.PassedSignal) error {
	row := activeSignalRow{
		DetectedAt: p.DetectedAt,
		Symbol:     p.Symbol,
		ScoreTotal: p.ScoreTotal,
		Status:     p.Status,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "detected_at"}, {Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"score_total", "status"}),
	}).Create(&row).Error
}

// UpdatePassedSignalStatus transitions status for the row keyed by
// (detected_at, symbol).
func (s *Store) UpdatePassedSignalStatus(ctx context.Context, detectedAt time.Time, symbol, status string) error {
	return s.db.WithContext(ctx).Model(&activeSignalRow{}).
		Where("detected_at = ? AND symbol = ?", detectedAt, symbol).
		Update("status", status).Error
}

// OpenTradeRecord inserts an open row (exit_time NULL) and returns its ID.
// The partial unique index (created by Migrate) rejects a second concurrent open
// row for the same (account, symbol) at the database layer, backstopping
// the position manager's in-memory presence check.
func (s *Store) OpenTradeRecord(ctx context.Context, t *models.TradeRecord) (int64, error) {
	row := tradeRecordRow{
		Account:    t.Account,
		Symbol:     t.Symbol,
		EntryTime:  t.EntryTime,
		EntryPrice: t.EntryPrice,
		Shares:     t.Shares,
		Score:      t.Score,
		Sector:     t.Sector,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("storage: opening trade record: %w", err)
	}
	return row.ID, nil
}

// CloseTradeRecord updates the row by ID regardless of how many days have
// passed since open (§6: "a close must succeed regardless of how many days
// have passed since open").
func (s *Store) CloseTradeRecord(ctx context.Context, id int64, exitTime time.Time, exitPrice, pnl, pnlPct float64, exitReason string) error {
	return s.db.WithContext(ctx).Model(&tradeRecordRow{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"exit_time":   exitTime,
			"exit_price":  exitPrice,
			"exit_reason": exitReason,
			"pnl":         pnl,
			"pnl_pct":     pnlPct,
		}).Error
}

// LoadOpenTradeRecords returns every exit_time IS NULL row for account.
func (s *Store) LoadOpenTradeRecords(ctx context.Context, account string) ([]models.TradeRecord, error) {
	var rows []tradeRecordRow
	err := s.db.WithContext(ctx).
		Where("account = ? AND exit_time IS NULL", account).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("storage: loading open trade records: %w", err)
	}

	out := make([]models.TradeRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.TradeRecord{
			ID:         r.ID,
			Account:    r.Account,
			Symbol:     r.Symbol,
			EntryTime:  r.EntryTime,
			EntryPrice: r.EntryPrice,
			Shares:     r.Shares,
			Score:      r.Score,
			Sector:     r.Sector,
			ExitTime:   r.ExitTime,
			ExitPrice:  r.ExitPrice,
			ExitReason: r.ExitReason,
			PnL:        r.PnL,
			PnLPct:     r.PnLPct,
		})
	}
	return out, nil
}

// UpsertTrackedSymbol increments trigger_count and bumps last_trigger_ts.
func (s *Store) UpsertTrackedSymbol(ctx context.Context, symbol string, triggerTS time.Time) error {
	row := trackedSymbolRow{Symbol: symbol, TriggerCount: 1, LastTriggerTS: triggerTS}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.Assignments(map[string]any{
			"trigger_count":   gorm.Expr("tracked_symbols.trigger_count + 1"),
			"last_trigger_ts": triggerTS,
		}),
	}).Create(&row).Error
}

// LoadMasterTickers returns every (symbol, sector, is_etf) row.
func (s *Store) LoadMasterTickers(ctx context.Context) ([]models.MasterTicker, error) {
	var rows []masterTickerRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("storage: loading master tickers: %w", err)
	}
	out := make([]models.MasterTicker, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.MasterTicker{Symbol: r.Symbol, Sector: r.Sector, IsETF: r.IsETF})
	}
	return out, nil
}

// LoadEarningsCalendar returns events whose event_date falls within
// withinDays calendar days of today, in both directions, matching the
// filter's ±2 calendar day window.
func (s *Store) LoadEarningsCalendar(ctx context.Context, withinDays int) ([]models.EarningsEvent, error) {
	from := time.Now().AddDate(0, 0, -withinDays).Format("2006-01-02")
	to := time.Now().AddDate(0, 0, withinDays).Format("2006-01-02")
	var rows []earningsEventRow
	err := s.db.WithContext(ctx).
		Where("event_date BETWEEN ? AND ?", from, to).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("storage: loading earnings calendar: %w", err)
	}
	out := make([]models.EarningsEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.EarningsEvent{Symbol: r.Symbol, EventDate: r.EventDate})
	}
	return out, nil
}

// LoadMediaDailyFeatures returns the asOf day's mentions/sentiment rows.
func (s *Store) LoadMediaDailyFeatures(ctx context.Context, asOf time.Time) ([]models.MediaFeature, error) {
	var rows []mediaFeatureRow
	err := s.db.WithContext(ctx).
		Where("asof_date = ?", asOf.Format("2006-01-02")).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("storage: loading media features: %w", err)
	}
	out := make([]models.MediaFeature, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.MediaFeature{Symbol: r.Symbol, AsOfDate: r.AsOfDate, Mentions: r.Mentions, Sentiment: r.Sentiment})
	}
	return out, nil
}

// LoadGEXSnapshot returns the latest snapshot per symbol.
func (s *Store) LoadGEXSnapshot(ctx context.Context) ([]models.GEXSnapshot, error) {
	var rows []gexSnapshotRow
	err := s.db.WithContext(ctx).
		Order("snapshot_ts DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("storage: loading gex snapshot: %w", err)
	}
	seen := make(map[string]bool, len(rows))
	out := make([]models.GEXSnapshot, 0, len(rows))
	for _, r := range rows {
		if seen[r.Symbol] {
			continue
		}
		seen[r.Symbol] = true
		out = append(out, models.GEXSnapshot{Symbol: r.Symbol, SnapshotTS: r.SnapshotTS, NetGEX: r.NetGEX, GammaFlip: r.GammaFlip})
	}
	return out, nil
}

// LoadTADailyClose returns the tradeDate's row per symbol.
func (s *Store) LoadTADailyClose(ctx context.Context, tradeDate time.Time) (map[string]models.TADailyClose, error) {
	var rows []taDailyCloseRow
	err := s.db.WithContext(ctx).
		Where("trade_date = ?", tradeDate.Format("2006-01-02")).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("storage: loading ta daily close: %w", err)
	}
	out := make(map[string]models.TADailyClose, len(rows))
	for _, r := range rows {
		out[r.Symbol] = models.TADailyClose{Symbol: r.Symbol, TradeDate: r.TradeDate, RSI14: r.RSI14, SMA20: r.SMA20, SMA50: r.SMA50, Close: r.Close}
	}
	return out, nil
}

// LoadTAIntraday5m returns the most recent intraday row per symbol.
func (s *Store) LoadTAIntraday5m(ctx context.Context) (map[string]models.TAIntraday5m, error) {
	var rows []taIntraday5mRow
	err := s.db.WithContext(ctx).
		Order("snapshot_ts DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("storage: loading ta intraday 5m: %w", err)
	}
	out := make(map[string]models.TAIntraday5m, len(rows))
	for _, r := range rows {
		if _, ok := out[r.Symbol]; ok {
			continue
		}
		out[r.Symbol] = models.TAIntraday5m{Symbol: r.Symbol, SnapshotTS: r.SnapshotTS, RSI14: r.RSI14, SMA20: r.SMA20, Price: r.Price}
	}
	return out, nil
}

// LoadEngulfingDailyWatchlist returns every 1D pattern detected within lookback.
func (s *Store) LoadEngulfingDailyWatchlist(ctx context.Context, lookback time.Duration) ([]models.EngulfingScore, error) {
	since := time.Now().Add(-lookback)
	var rows []engulfingScoreRow
	err := s.db.WithContext(ctx).
		Where("timeframe = ? AND scan_ts > ?", string(models.Timeframe1Day), since).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("storage: loading engulfing watchlist: %w", err)
	}
	out := make([]models.EngulfingScore, 0, len(rows))
	for _, r := range rows {
		out = append(out, toEngulfingScore(r))
	}
	return out, nil
}

// QueryEngulfing5min looks up the freshest bullish 5min pattern for symbol.
// Never returns an error to the caller: a query failure is treated as a
// miss, matching §4.9's "never fails the calling flow".
func (s *Store) QueryEngulfing5min(ctx context.Context, symbol string, lookback time.Duration) (models.EngulfingScore, bool) {
	since := time.Now().Add(-lookback)
	var row engulfingScoreRow
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND direction = ? AND timeframe = ? AND scan_ts > ?",
			symbol, string(models.EngulfingBullish), string(models.Timeframe5Min), since).
		Order("scan_ts DESC").
		First(&row).Error
	if err != nil {
		return models.EngulfingScore{}, false
	}
	return toEngulfingScore(row), true
}

func toEngulfingScore(r engulfingScoreRow) models.EngulfingScore {
	return models.EngulfingScore{
		Symbol:    r.Symbol,
		ScanTS:    r.ScanTS,
		Timeframe: models.EngulfingTimeframe(r.Timeframe),
		Direction: models.EngulfingDirection(r.Direction),
		Strength:  models.PatternStrength(r.Strength),
	}
}

var _ Interface = (*Store)(nil)

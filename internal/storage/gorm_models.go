package storage

import "time"

// Row structs mirror §3/§6's persistent stores; gorm column tags follow the
// snake_case names §6 specifies verbatim so DESIGN.md's schema notes and
// the raw-SQL index statements in Store.Migrate line up with the struct tags.

type baselineBucketRow struct {
	ID              int64     `gorm:"primaryKey"`
	Symbol          string    `gorm:"column:symbol;index:idx_baseline_symbol"`
	TradeDate       time.Time `gorm:"column:trade_date"`
	BucketStart     time.Time `gorm:"column:bucket_start"`
	Prints          int       `gorm:"column:prints"`
	Notional        float64   `gorm:"column:notional"`
	ContractsUnique int       `gorm:"column:contracts_unique"`
}

func (baselineBucketRow) TableName() string { return "intraday_baselines_30m" }

type evaluationRow struct {
	ID               int64     `gorm:"primaryKey"`
	DetectedAt       time.Time `gorm:"column:detected_at;index"`
	Symbol           string    `gorm:"column:symbol;index"`
	ScoreTotal       int       `gorm:"column:score_total"`
	VolumeRatioScore int       `gorm:"column:volume_ratio_score"`
	CallPctScore     int       `gorm:"column:call_pct_score"`
	SweepPctScore    int       `gorm:"column:sweep_pct_score"`
	StrikeConcScore  int       `gorm:"column:strike_concentration_score"`
	NotionalScore    int       `gorm:"column:notional_score"`
	RSI14            float64   `gorm:"column:rsi_14"`
	SMA20            float64   `gorm:"column:sma_20"`
	SMA50            float64   `gorm:"column:sma_50"`
	SpotPrice        float64   `gorm:"column:spot_price"`
	NotionalTotal    float64   `gorm:"column:notional_total"`
	VolumeRatio      float64   `gorm:"column:volume_ratio"`
	PassedAllFilters bool      `gorm:"column:passed_all_filters"`
	RejectionReason  string    `gorm:"column:rejection_reason"`
	Metadata         string    `gorm:"column:metadata"` // JSON-encoded
}

func (evaluationRow) TableName() string { return "signal_evaluations" }

type activeSignalRow struct {
	ID         int64     `gorm:"primaryKey"`
	DetectedAt time.Time `gorm:"column:detected_at;uniqueIndex:uniq_active_signal"`
	Symbol     string    `gorm:"column:symbol;uniqueIndex:uniq_active_signal"`
	ScoreTotal int       `gorm:"column:score_total"`
	Status     string    `gorm:"column:status"`
}

func (activeSignalRow) TableName() string { return "active_signals" }

type tradeRecordRow struct {
	ID         int64      `gorm:"primaryKey"`
	Account    string     `gorm:"column:account;index:idx_trade_account_symbol"`
	Symbol     string     `gorm:"column:symbol;index:idx_trade_account_symbol"`
	EntryTime  time.Time  `gorm:"column:entry_time"`
	EntryPrice float64    `gorm:"column:entry_price"`
	Shares     int64      `gorm:"column:shares"`
	Score      int        `gorm:"column:score"`
	Sector     string     `gorm:"column:sector"`
	ExitTime   *time.Time `gorm:"column:exit_time"`
	ExitPrice  *float64   `gorm:"column:exit_price"`
	ExitReason *string    `gorm:"column:exit_reason"`
	PnL        *float64   `gorm:"column:pnl"`
	PnLPct     *float64   `gorm:"column:pnl_pct"`
}

func (tradeRecordRow) TableName() string { return "paper_trades_log" }

type trackedSymbolRow struct {
	Symbol        string    `gorm:"column:symbol;primaryKey"`
	TriggerCount  int       `gorm:"column:trigger_count"`
	LastTriggerTS time.Time `gorm:"column:last_trigger_ts"`
}

func (trackedSymbolRow) TableName() string { return "tracked_symbols" }

type masterTickerRow struct {
	Symbol string `gorm:"column:symbol;primaryKey"`
	Sector string `gorm:"column:sector"`
	IsETF  bool   `gorm:"column:is_etf"`
}

func (masterTickerRow) TableName() string { return "master_tickers" }

type earningsEventRow struct {
	ID        int64     `gorm:"primaryKey"`
	Symbol    string    `gorm:"column:symbol;index"`
	EventDate time.Time `gorm:"column:event_date"`
}

func (earningsEventRow) TableName() string { return "earnings_calendar" }

type mediaFeatureRow struct {
	ID        int64     `gorm:"primaryKey"`
	Symbol    string    `gorm:"column:symbol;index"`
	AsOfDate  time.Time `gorm:"column:asof_date"`
	Mentions  int       `gorm:"column:mentions"`
	Sentiment float64   `gorm:"column:sentiment"`
}

func (mediaFeatureRow) TableName() string { return "media_daily_features" }

type gexSnapshotRow struct {
	ID         int64     `gorm:"primaryKey"`
	Symbol     string    `gorm:"column:symbol;index"`
	SnapshotTS time.Time `gorm:"column:snapshot_ts"`
	NetGEX     float64   `gorm:"column:net_gex"`
	GammaFlip  float64   `gorm:"column:gamma_flip"`
}

func (gexSnapshotRow) TableName() string { return "gex_snapshot" }

type taDailyCloseRow struct {
	ID        int64     `gorm:"primaryKey"`
	Symbol    string    `gorm:"column:symbol;index"`
	TradeDate time.Time `gorm:"column:trade_date"`
	RSI14     float64   `gorm:"column:rsi_14"`
	SMA20     float64   `gorm:"column:sma_20"`
	SMA50     float64   `gorm:"column:sma_50"`
	Close     float64   `gorm:"column:close_price"`
}

func (taDailyCloseRow) TableName() string { return "ta_daily_close" }

type taIntraday5mRow struct {
	ID         int64     `gorm:"primaryKey"`
	Symbol     string    `gorm:"column:symbol;index"`
	SnapshotTS time.Time `gorm:"column:snapshot_ts"`
	RSI14      float64   `gorm:"column:rsi_14"`
	SMA20      float64   `gorm:"column:sma_20"`
	Price      float64   `gorm:"column:price"`
}

func (taIntraday5mRow) TableName() string { return "ta_intraday_5m" }

type engulfingScoreRow struct {
	ID        int64     `gorm:"primaryKey"`
	Symbol    string    `gorm:"column:symbol;index"`
	ScanTS    time.Time `gorm:"column:scan_ts"`
	Timeframe string    `gorm:"column:timeframe"`
	Direction string    `gorm:"column:direction"`
	Strength  string    `gorm:"column:pattern_strength"`
}

func (engulfingScoreRow) TableName() string { return "engulfing_scores" }

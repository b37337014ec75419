package storage

import (
	"context"
	"sync"
	"time"

	"github.com/uoa-systems/flowwatch/internal/models"
)

// MockStorage implements Interface entirely in memory, for unit tests that
// would otherwise need a live Postgres instance.
type MockStorage struct {
	mu sync.Mutex

	// Error injection, one slot per method family.
	UpsertBaselineBucketErr error
	LoadBaselineHistoryErr  error
	SaveEvaluationErr       error
	OpenTradeRecordErr      error
	CloseTradeRecordErr     error

	buckets         []models.BaselinePoint
	baselineHistory map[string][]float64
	evaluations     []models.Evaluation
	passedSignals   map[string]*models.PassedSignal // key: detectedAt.String()+symbol
	tradeRecords    map[int64]*models.TradeRecord
	nextTradeID     int64
	trackedSymbols  map[string]models.TrackedSymbol

	masterTickers       []models.MasterTicker
	earnings            []models.EarningsEvent
	mediaFeatures       []models.MediaFeature
	gexSnapshots        []models.GEXSnapshot
	taDailyClose        map[string]models.TADailyClose
	taIntraday5m        map[string]models.TAIntraday5m
	engulfingDaily      []models.EngulfingScore
	engulfing5min       map[string]models.EngulfingScore

	SaveEvaluationCallCount  int
	OpenTradeRecordCallCount int
}

// NewMockStorage returns an empty, ready-to-use MockStorage.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		baselineHistory: make(map[string][]float64),
		passedSignals:   make(map[string]*models.PassedSignal),
		tradeRecords:    make(map[int64]*models.TradeRecord),
		trackedSymbols:  make(map[string]models.TrackedSymbol),
		taDailyClose:    make(map[string]models.TADailyClose),
		taIntraday5m:    make(map[string]models.TAIntraday5m),
		engulfing5min:   make(map[string]models.EngulfingScore),
	}
}

func passedSignalKey(detectedAt time.Time, symbol string) string {
	return detectedAt.Format(time.RFC3339Nano) + "|" + symbol
}

func (m *MockStorage) UpsertBaselineBucket(ctx context.Context, b models.BaselinePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertBaselineBucketErr != nil {
		return m.UpsertBaselineBucketErr
	}
	for i, existing := range m.buckets {
		if existing.Symbol == b.Symbol && existing.TradeDate.Equal(b.TradeDate) && existing.BucketStart.Equal(b.BucketStart) {
			m.buckets[i] = b
			return nil
		}
	}
	m.buckets = append(m.buckets, b)
	return nil
}

func (m *MockStorage) LoadBaselineHistory(ctx context.Context, lookbackDays int) (map[string][]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadBaselineHistoryErr != nil {
		return nil, m.LoadBaselineHistoryErr
	}
	out := make(map[string][]float64, len(m.baselineHistory))
	for k, v := range m.baselineHistory {
		out[k] = append([]float64(nil), v...)
	}
	return out, nil
}

// SeedBaselineHistory lets tests preload per-symbol daily notionals.
func (m *MockStorage) SeedBaselineHistory(symbol string, dailyNotionals []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baselineHistory[symbol] = dailyNotionals
}

func (m *MockStorage) SaveEvaluation(ctx context.Context, e *models.Evaluation) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveEvaluationCallCount++
	if m.SaveEvaluationErr != nil {
		return 0, m.SaveEvaluationErr
	}
	e.ID = int64(len(m.evaluations) + 1)
	m.evaluations = append(m.evaluations, *e)
	return e.ID, nil
}

func (m *MockStorage) UpsertPassedSignal(ctx context.Context, p *models.PassedSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := passedSignalKey(p.DetectedAt, p.Symbol)
	cp := *p
	m.passedSignals[key] = &cp
	return nil
}

func (m *MockStorage) UpdatePassedSignalStatus(ctx context.Context, detectedAt time.Time, symbol, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := passedSignalKey(detectedAt, symbol)
	if p, ok := m.passedSignals[key]; ok {
		p.Status = status
	}
	return nil
}

// PassedSignals exposes the current snapshot for test assertions.
func (m *MockStorage) PassedSignals() []models.PassedSignal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PassedSignal, 0, len(m.passedSignals))
	for _, p := range m.passedSignals {
		out = append(out, *p)
	}
	return out
}

func (m *MockStorage) OpenTradeRecord(ctx context.Context, t *models.TradeRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenTradeRecordCallCount++
	if m.OpenTradeRecordErr != nil {
		return 0, m.OpenTradeRecordErr
	}
	for _, existing := range m.tradeRecords {
		if existing.Account == t.Account && existing.Symbol == t.Symbol && existing.IsOpen() {
			return 0, errAlreadyOpen
		}
	}
	m.nextTradeID++
	id := m.nextTradeID
	cp := *t
	cp.ID = id
	m.tradeRecords[id] = &cp
	return id, nil
}

func (m *MockStorage) CloseTradeRecord(ctx context.Context, id int64, exitTime time.Time, exitPrice, pnl, pnlPct float64, exitReason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CloseTradeRecordErr != nil {
		return m.CloseTradeRecordErr
	}
	rec, ok := m.tradeRecords[id]
	if !ok {
		return errNoSuchTrade
	}
	rec.ExitTime = &exitTime
	rec.ExitPrice = &exitPrice
	rec.PnL = &pnl
	rec.PnLPct = &pnlPct
	rec.ExitReason = &exitReason
	return nil
}

func (m *MockStorage) LoadOpenTradeRecords(ctx context.Context, account string) ([]models.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TradeRecord
	for _, rec := range m.tradeRecords {
		if rec.Account == account && rec.IsOpen() {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *MockStorage) UpsertTrackedSymbol(ctx context.Context, symbol string, triggerTS time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts := m.trackedSymbols[symbol]
	ts.Symbol = symbol
	ts.TriggerCount++
	ts.LastTriggerTS = triggerTS
	m.trackedSymbols[symbol] = ts
	return nil
}

// TrackedSymbol exposes one symbol's counters for test assertions.
func (m *MockStorage) TrackedSymbol(symbol string) (models.TrackedSymbol, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.trackedSymbols[symbol]
	return ts, ok
}

func (m *MockStorage) LoadMasterTickers(ctx context.Context) ([]models.MasterTicker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.MasterTicker(nil), m.masterTickers...), nil
}

// SeedMasterTickers lets tests preload the ticker/sector/ETF table.
func (m *MockStorage) SeedMasterTickers(rows ...models.MasterTicker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.masterTickers = append(m.masterTickers, rows...)
}

func (m *MockStorage) LoadEarningsCalendar(ctx context.Context, withinDays int) ([]models.EarningsEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.EarningsEvent(nil), m.earnings...), nil
}

// SeedEarningsCalendar lets tests preload earnings events.
func (m *MockStorage) SeedEarningsCalendar(rows ...models.EarningsEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.earnings = append(m.earnings, rows...)
}

func (m *MockStorage) LoadMediaDailyFeatures(ctx context.Context, asOf time.Time) ([]models.MediaFeature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.MediaFeature(nil), m.mediaFeatures...), nil
}

// SeedMediaDailyFeatures lets tests preload crowded-trade inputs.
func (m *MockStorage) SeedMediaDailyFeatures(rows ...models.MediaFeature) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mediaFeatures = append(m.mediaFeatures, rows...)
}

func (m *MockStorage) LoadGEXSnapshot(ctx context.Context) ([]models.GEXSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.GEXSnapshot(nil), m.gexSnapshots...), nil
}

// SeedGEXSnapshot lets tests preload the GEX metadata map.
func (m *MockStorage) SeedGEXSnapshot(rows ...models.GEXSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gexSnapshots = append(m.gexSnapshots, rows...)
}

func (m *MockStorage) LoadTADailyClose(ctx context.Context, tradeDate time.Time) (map[string]models.TADailyClose, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.TADailyClose, len(m.taDailyClose))
	for k, v := range m.taDailyClose {
		out[k] = v
	}
	return out, nil
}

// SeedTADailyClose lets tests preload the daily-close TA cache.
func (m *MockStorage) SeedTADailyClose(symbol string, row models.TADailyClose) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taDailyClose[symbol] = row
}

func (m *MockStorage) LoadTAIntraday5m(ctx context.Context) (map[string]models.TAIntraday5m, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.TAIntraday5m, len(m.taIntraday5m))
	for k, v := range m.taIntraday5m {
		out[k] = v
	}
	return out, nil
}

// SeedTAIntraday5m lets tests preload the intraday TA cache.
func (m *MockStorage) SeedTAIntraday5m(symbol string, row models.TAIntraday5m) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taIntraday5m[symbol] = row
}

func (m *MockStorage) LoadEngulfingDailyWatchlist(ctx context.Context, lookback time.Duration) ([]models.EngulfingScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.EngulfingScore(nil), m.engulfingDaily...), nil
}

// SeedEngulfingDailyWatchlist lets tests preload the 1D watchlist.
func (m *MockStorage) SeedEngulfingDailyWatchlist(rows ...models.EngulfingScore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engulfingDaily = append(m.engulfingDaily, rows...)
}

func (m *MockStorage) QueryEngulfing5min(ctx context.Context, symbol string, lookback time.Duration) (models.EngulfingScore, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.engulfing5min[symbol]
	return row, ok
}

// SeedEngulfing5min lets tests preload a live 5-min pattern for symbol.
func (m *MockStorage) SeedEngulfing5min(symbol string, row models.EngulfingScore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engulfing5min[symbol] = row
}

func (m *MockStorage) Close() error { return nil }

var _ Interface = (*MockStorage)(nil)

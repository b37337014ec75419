package position

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uoa-systems/flowwatch/internal/broker"
	"github.com/uoa-systems/flowwatch/internal/models"
)

type fakeBroker struct {
	mu sync.Mutex

	account    broker.Account
	accountErr error

	positions    []broker.Position
	positionsErr error

	placeOrderID  string
	placeErr      error
	placedOrders  []string

	orderStatus broker.OrderStatus
	fillPrice   float64
	statusErr   error

	closeOrderID string
	closeErr     error
	closedShares map[string]int64
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		orderStatus:  broker.OrderFilled,
		closedShares: make(map[string]int64),
	}
}

func (f *fakeBroker) GetAccountCtx(_ context.Context) (broker.Account, error) {
	return f.account, f.accountErr
}

func (f *fakeBroker) GetPositionsCtx(_ context.Context) ([]broker.Position, error) {
	return f.positions, f.positionsErr
}

func (f *fakeBroker) PlaceMarketOrderCtx(_ context.Context, symbol string, _ broker.Side, _ int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placedOrders = append(f.placedOrders, symbol)
	return f.placeOrderID, f.placeErr
}

func (f *fakeBroker) GetOrderStatusCtx(_ context.Context, _ string) (broker.OrderStatus, float64, error) {
	return f.orderStatus, f.fillPrice, f.statusErr
}

func (f *fakeBroker) ClosePositionCtx(_ context.Context, symbol string, shares int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closedShares[symbol] = shares
	return f.closeOrderID, f.closeErr
}

type fakeStore struct {
	mu sync.Mutex

	openCalls  []models.TradeRecord
	openErr    error
	nextID     int64
	closeCalls []int64
	closePnLs  []float64
	closeErr   error
	openRows   []models.TradeRecord
	openRowErr error
}

func (f *fakeStore) OpenTradeRecord(_ context.Context, t *models.TradeRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.openCalls = append(f.openCalls, *t)
	return f.nextID, f.openErr
}

func (f *fakeStore) CloseTradeRecord(_ context.Context, id int64, _ time.Time, _, pnl, _ float64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls = append(f.closeCalls, id)
	f.closePnLs = append(f.closePnLs, pnl)
	return f.closeErr
}

func (f *fakeStore) LoadOpenTradeRecords(_ context.Context, _ string) ([]models.TradeRecord, error) {
	return f.openRows, f.openRowErr
}

func (f *fakeStore) UpdatePassedSignalStatus(_ context.Context, _ time.Time, _, _ string) error {
	return nil
}

func testSignal(symbol string, spot float64, sector string) models.Signal {
	return models.Signal{
		Trigger: models.Trigger{
			Symbol: symbol,
			TS:     time.Now(),
			Stats:  models.WindowStats{NotionalTotal: 400000},
		},
		Score:     models.ComponentScores{VolumeRatio: 1, CallPct: 3, SweepPct: 3, StrikeConcentration: 3, Notional: 3},
		SpotPrice: spot,
		Sector:    sector,
	}
}

func waitForActive(t *testing.T, m *Manager, symbol string) *models.Position {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p, ok := m.Get(symbol); ok {
			return p
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("symbol %s never became active", symbol)
	return nil
}

func TestOpenPositionSizesAndFills(t *testing.T) {
	brk := newFakeBroker()
	brk.account = broker.Account{Equity: 100000, BuyingPower: 100000}
	brk.placeOrderID = "order-1"
	brk.fillPrice = 100.0

	store := &fakeStore{}
	cfg := Config{Account: "A", MaxConcurrent: 5, PositionNotionalCap: 10000, PositionPct: 0.10}
	mgr := New(cfg, brk, store, nil, nil, nil, nil)

	ok, reason := mgr.OpenPosition(context.Background(), testSignal("NET", 100, "Technology"))
	require.True(t, ok)
	assert.Empty(t, reason)

	pos := waitForActive(t, mgr, "NET")
	assert.Equal(t, int64(100), pos.Shares) // min(10000, 10000)/100
	assert.Equal(t, models.StateHolding, pos.State())
}

func TestOpenPositionRejectsWhenAlreadyActive(t *testing.T) {
	brk := newFakeBroker()
	brk.account = broker.Account{Equity: 100000}
	brk.placeOrderID = "order-1"
	brk.fillPrice = 100.0
	store := &fakeStore{}
	mgr := New(Config{Account: "A"}, brk, store, nil, nil, nil, nil)

	ok, _ := mgr.OpenPosition(context.Background(), testSignal("NET", 100, ""))
	require.True(t, ok)
	waitForActive(t, mgr, "NET")

	ok, reason := mgr.OpenPosition(context.Background(), testSignal("NET", 100, ""))
	assert.False(t, ok)
	assert.Equal(t, ReasonAlreadyOpen, reason)
}

func TestOpenPositionRejectsAtMaxConcurrent(t *testing.T) {
	brk := newFakeBroker()
	brk.account = broker.Account{Equity: 100000}
	brk.placeOrderID = "order-1"
	store := &fakeStore{}
	mgr := New(Config{Account: "A", MaxConcurrent: 1}, brk, store, nil, nil, nil, nil)

	ok, _ := mgr.OpenPosition(context.Background(), testSignal("NET", 100, ""))
	require.True(t, ok)

	ok, reason := mgr.OpenPosition(context.Background(), testSignal("AAPL", 100, ""))
	assert.False(t, ok)
	assert.Equal(t, ReasonMaxConcurrent, reason)
}

func TestOpenPositionRejectsOnSectorCap(t *testing.T) {
	brk := newFakeBroker()
	brk.account = broker.Account{Equity: 1000000}
	brk.placeOrderID = "order-1"
	brk.fillPrice = 100
	store := &fakeStore{}
	mgr := New(Config{Account: "A", MaxConcurrent: 10}, brk, store, nil, nil, nil, nil)

	ok, _ := mgr.OpenPosition(context.Background(), testSignal("AAA", 100, "Technology"))
	require.True(t, ok)
	waitForActive(t, mgr, "AAA")
	ok, _ = mgr.OpenPosition(context.Background(), testSignal("BBB", 100, "Technology"))
	require.True(t, ok)
	waitForActive(t, mgr, "BBB")

	ok, reason := mgr.OpenPosition(context.Background(), testSignal("CCC", 100, "Technology"))
	assert.False(t, ok)
	assert.Equal(t, ReasonSectorCap, reason)
}

func TestOpenPositionRejectsOnWeakRegime(t *testing.T) {
	brk := newFakeBroker()
	store := &fakeStore{}
	regime := func(_ context.Context) bool { return true }
	mgr := New(Config{Account: "A"}, brk, store, nil, regime, nil, nil)

	ok, reason := mgr.OpenPosition(context.Background(), testSignal("NET", 100, ""))
	assert.False(t, ok)
	assert.Equal(t, ReasonRegimeWeak, reason)
}

func TestClosePositionComputesPnLAndPersists(t *testing.T) {
	brk := newFakeBroker()
	brk.account = broker.Account{Equity: 100000}
	brk.placeOrderID = "order-1"
	brk.fillPrice = 100.0
	store := &fakeStore{}
	mgr := New(Config{Account: "A"}, brk, store, nil, nil, nil, nil)

	ok, _ := mgr.OpenPosition(context.Background(), testSignal("XYZ", 100, ""))
	require.True(t, ok)
	waitForActive(t, mgr, "XYZ")

	brk.closeOrderID = "close-1"
	brk.fillPrice = 97.99
	mgr.ClosePosition(context.Background(), "XYZ", "hard_stop")

	_, stillActive := mgr.Get("XYZ")
	assert.False(t, stillActive)
	require.Len(t, store.closeCalls, 1)
	assert.InDelta(t, -201.0, store.closePnLs[0], 1e-6) // (97.99 - 100) * 100 shares
}

func TestClosePositionIsReentrantSafe(t *testing.T) {
	brk := newFakeBroker()
	brk.account = broker.Account{Equity: 100000}
	brk.placeOrderID = "order-1"
	brk.fillPrice = 100.0
	store := &fakeStore{}
	mgr := New(Config{Account: "A"}, brk, store, nil, nil, nil, nil)

	ok, _ := mgr.OpenPosition(context.Background(), testSignal("XYZ", 100, ""))
	require.True(t, ok)
	waitForActive(t, mgr, "XYZ")

	brk.closeOrderID = "close-1"
	brk.fillPrice = 97.99

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mgr.ClosePosition(context.Background(), "XYZ", "hard_stop")
		}()
	}
	wg.Wait()

	brk.mu.Lock()
	closes := brk.closedShares["XYZ"]
	brk.mu.Unlock()
	assert.Equal(t, int64(100), closes)
	assert.Len(t, store.closeCalls, 1)
}

func TestSyncOnStartupRestoresIntersectionAndRecoversCrash(t *testing.T) {
	brk := newFakeBroker()
	brk.positions = []broker.Position{{Symbol: "AAPL", Shares: 10, CurrentPrice: 150}}
	store := &fakeStore{
		openRows: []models.TradeRecord{
			{ID: 1, Symbol: "AAPL", EntryPrice: 140, Shares: 10},
			{ID: 2, Symbol: "NFLX", EntryPrice: 400, Shares: 5},
		},
	}
	mgr := New(Config{Account: "A"}, brk, store, nil, nil, nil, nil)

	require.NoError(t, mgr.SyncOnStartup(context.Background()))

	_, aaplActive := mgr.Get("AAPL")
	assert.True(t, aaplActive)
	_, nflxActive := mgr.Get("NFLX")
	assert.False(t, nflxActive)
	assert.Contains(t, store.closeCalls, int64(2))
}

func TestSyncOnStartupClosesOrphanBrokerPositions(t *testing.T) {
	brk := newFakeBroker()
	brk.positions = []broker.Position{{Symbol: "ORPHAN", Shares: 3, CurrentPrice: 50}}
	store := &fakeStore{}
	mgr := New(Config{Account: "A"}, brk, store, nil, nil, nil, nil)

	require.NoError(t, mgr.SyncOnStartup(context.Background()))

	brk.mu.Lock()
	shares, closed := brk.closedShares["ORPHAN"]
	brk.mu.Unlock()
	assert.True(t, closed)
	assert.Equal(t, int64(3), shares)
}

func TestSyncOnStartupPropagatesBrokerError(t *testing.T) {
	brk := newFakeBroker()
	brk.positionsErr = errors.New("broker down")
	store := &fakeStore{}
	mgr := New(Config{Account: "A"}, brk, store, nil, nil, nil, nil)

	err := mgr.SyncOnStartup(context.Background())
	assert.Error(t, err)
}

// Package position implements the per-account Position Manager (§4.10):
// admission (concurrency cap, sector concentration, market regime),
// sizing, order submission with asynchronous fill confirmation, reentrant
// closing, and startup reconciliation against the broker's live positions.
// Grounded on the teacher's internal/orders poll-and-transition pattern
// (ticker-driven GetOrderStatusCtx polling, handleOrderFilled/Failed/Timeout
// helpers) generalized from options legs to single-leg equity shares, and
// on its models.StateMachine to drive each Position's lifecycle.
package position

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/uoa-systems/flowwatch/internal/broker"
	"github.com/uoa-systems/flowwatch/internal/models"
)

// Admission/order rejection reasons, mirroring the filter chain's
// reason-string convention (§4.8).
const (
	ReasonAlreadyOpen   = "already_open"
	ReasonMaxConcurrent = "max_concurrent"
	ReasonSectorCap     = "sector_cap"
	ReasonRegimeWeak    = "regime_weak"
	ReasonOrderRejected = "order_rejected"
)

// sectorCap is filter #9's concentration limit: reject a third position in
// the same sector.
const sectorCap = 2

const (
	fillPollInterval = 2 * time.Second
	fillPollTimeout  = 60 * time.Second
)

// Broker is the narrow execution surface the Position Manager needs,
// satisfied by broker.TradingBroker (optionally circuit-breaker wrapped).
type Broker interface {
	GetAccountCtx(ctx context.Context) (broker.Account, error)
	GetPositionsCtx(ctx context.Context) ([]broker.Position, error)
	PlaceMarketOrderCtx(ctx context.Context, symbol string, side broker.Side, shares int64) (string, error)
	GetOrderStatusCtx(ctx context.Context, orderID string) (broker.OrderStatus, float64, error)
	ClosePositionCtx(ctx context.Context, symbol string, shares int64) (string, error)
}

// Store is the narrow persistence surface a Position Manager writes
// through, satisfied by storage.Interface's TradeStore + EvaluationStore.
type Store interface {
	OpenTradeRecord(ctx context.Context, t *models.TradeRecord) (int64, error)
	CloseTradeRecord(ctx context.Context, id int64, exitTime time.Time, exitPrice, pnl, pnlPct float64, exitReason string) error
	LoadOpenTradeRecords(ctx context.Context, account string) ([]models.TradeRecord, error)
	UpdatePassedSignalStatus(ctx context.Context, detectedAt time.Time, symbol, status string) error
}

// SectorLookup resolves a symbol's sector, satisfied by *reference.Data.
// The concentration cap (#9) reads the signal's own Sector field instead.
type SectorLookup interface {
	Sector(symbol string) string
}

// RegimeChecker reports whether the market regime currently fails
// admission (#10). Implementations must fail open (return false) on fetch
// error, matching cache.RegimeCache's contract.
type RegimeChecker func(ctx context.Context) bool

// SpotLookup optionally supplies a last-known price, used only to price a
// crash-recovery exit when no fresher value is available.
type SpotLookup func(ctx context.Context, symbol string) (float64, bool)

// Config holds one account's sizing and concurrency limits.
type Config struct {
	Account             string // "A" or "B"
	MaxConcurrent       int
	PositionNotionalCap float64
	PositionPct         float64
}

// DailyStats summarizes today's activity for the status API.
type DailyStats struct {
	Opened int
	Closed int
}

// Manager is one paper account's Position Manager. Exclusively owns
// active/pending/closingInProgress; external actors interact only through
// its exported methods (§5 shared-resource policy).
type Manager struct {
	cfg     Config
	broker  Broker
	store   Store
	sectors SectorLookup
	regime  RegimeChecker
	spot    SpotLookup
	logger  *log.Logger

	mu                sync.Mutex
	active            map[string]*models.Position
	pending           map[string]*models.PendingOrder
	closingInProgress map[string]struct{}
	stats             DailyStats
}

// New builds a Manager for one account. regime and spot may be nil —
// admission then skips the regime check, and crash recovery the price
// refinement. sectors may be nil too: it is stored but not consulted, and
// the sector cap applies from each signal's Sector whether or not it is set.
func New(cfg Config, brk Broker, store Store, sectors SectorLookup, regime RegimeChecker, spot SpotLookup, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stderr, fmt.Sprintf("position[%s]: ", cfg.Account), log.LstdFlags)
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.PositionNotionalCap <= 0 {
		cfg.PositionNotionalCap = 10000
	}
	if cfg.PositionPct <= 0 {
		cfg.PositionPct = 0.10
	}
	return &Manager{
		cfg:               cfg,
		broker:            brk,
		store:             store,
		sectors:           sectors,
		regime:            regime,
		spot:              spot,
		logger:            logger,
		active:            make(map[string]*models.Position),
		pending:           make(map[string]*models.PendingOrder),
		closingInProgress: make(map[string]struct{}),
	}
}

// OpenPosition admits sig for opening. A false ok carries the rejection
// reason and nothing is submitted. A true ok means a market buy has been
// submitted; the fill is confirmed off the hot path by pollFill, which
// moves the symbol from pending to active once filled.
func (m *Manager) OpenPosition(ctx context.Context, sig models.Signal) (ok bool, reason string) {
	symbol := sig.Symbol

	m.mu.Lock()
	if _, exists := m.active[symbol]; exists {
		m.mu.Unlock()
		return false, ReasonAlreadyOpen
	}
	if _, exists := m.pending[symbol]; exists {
		m.mu.Unlock()
		return false, ReasonAlreadyOpen
	}
	if len(m.active)+len(m.pending) >= m.cfg.MaxConcurrent {
		m.mu.Unlock()
		return false, ReasonMaxConcurrent
	}
	if sig.Sector != "" && m.sectorCountLocked(sig.Sector) >= sectorCap {
		m.mu.Unlock()
		return false, ReasonSectorCap
	}
	m.mu.Unlock()

	if m.regime != nil && m.regime(ctx) {
		return false, ReasonRegimeWeak
	}

	account, err := m.broker.GetAccountCtx(ctx)
	if err != nil {
		m.logger.Printf("symbol=%s get_account error=%v", symbol, err)
		return false, ReasonOrderRejected
	}

	shares := sizeShares(m.cfg.PositionNotionalCap, m.cfg.PositionPct, account.Equity, sig.SpotPrice)
	if shares <= 0 {
		m.logger.Printf("symbol=%s sizing produced zero shares equity=%.2f spot=%.2f", symbol, account.Equity, sig.SpotPrice)
		return false, ReasonOrderRejected
	}

	ref := models.SignalRef{
		Score:      sig.Score.Total(),
		RSI14:      sig.RSI14,
		Notional:   float64(sig.Stats.NotionalTotal),
		Sector:     sig.Sector,
		DetectedAt: sig.TS,
	}

	orderID, err := m.broker.PlaceMarketOrderCtx(ctx, symbol, broker.Buy, shares)
	if err != nil {
		m.logger.Printf("symbol=%s place_order error=%v", symbol, err)
		return false, ReasonOrderRejected
	}

	m.mu.Lock()
	m.pending[symbol] = &models.PendingOrder{
		Symbol:        symbol,
		Signal:        ref,
		Shares:        shares,
		BrokerOrderID: orderID,
		SubmittedAt:   time.Now(),
	}
	m.mu.Unlock()

	go m.pollFill(symbol, orderID, ref, shares)

	return true, ""
}

// pollFill confirms a submitted buy order off the hot path, moving symbol
// from pending to active on fill or discarding it on rejection/timeout.
func (m *Manager) pollFill(symbol, orderID string, ref models.SignalRef, shares int64) {
	ctx, cancel := context.WithTimeout(context.Background(), fillPollTimeout)
	defer cancel()

	ticker := time.NewTicker(fillPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Printf("symbol=%s order=%s fill poll timed out", symbol, orderID)
			m.abandonPending(symbol)
			return
		case <-ticker.C:
			status, fillPrice, err := m.broker.GetOrderStatusCtx(ctx, orderID)
			if err != nil {
				m.logger.Printf("symbol=%s order=%s status error=%v", symbol, orderID, err)
				continue
			}
			switch status {
			case broker.OrderFilled:
				m.handleFilled(symbol, ref, shares, fillPrice)
				return
			case broker.OrderRejected, broker.OrderCanceled:
				m.logger.Printf("symbol=%s order=%s failed status=%s", symbol, orderID, status)
				m.abandonPending(symbol)
				return
			default:
				continue
			}
		}
	}
}

func (m *Manager) abandonPending(symbol string) {
	m.mu.Lock()
	delete(m.pending, symbol)
	m.mu.Unlock()
}

func (m *Manager) handleFilled(symbol string, ref models.SignalRef, shares int64, fillPrice float64) {
	now := time.Now()
	rec := &models.TradeRecord{
		Account:    m.cfg.Account,
		Symbol:     symbol,
		EntryTime:  now,
		EntryPrice: fillPrice,
		Shares:     shares,
		Score:      ref.Score,
		Sector:     ref.Sector,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	dbID, err := m.store.OpenTradeRecord(ctx, rec)
	if err != nil {
		m.logger.Printf("symbol=%s open_trade_record error=%v (in-memory state stays authoritative)", symbol, err)
	}

	pos := &models.Position{
		Symbol:        symbol,
		EntryTime:     now,
		EntryPrice:    fillPrice,
		Shares:        shares,
		Signal:        ref,
		DBID:          dbID,
		HighWaterMark: fillPrice,
		SM:            models.NewStateMachine(),
	}
	if err := pos.SM.Transition(models.StateHolding, models.CondOrderFilled); err != nil {
		m.logger.Printf("symbol=%s state transition error=%v", symbol, err)
	}

	m.mu.Lock()
	delete(m.pending, symbol)
	m.active[symbol] = pos
	m.stats.Opened++
	m.mu.Unlock()

	m.logger.Printf("symbol=%s opened shares=%d entry=%.2f db_id=%d", symbol, shares, fillPrice, dbID)
}

// ClosePosition submits a market sell for symbol and, on fill, records the
// exit. Reentrancy is guarded by closingInProgress: a concurrent or
// overlapping call for the same symbol is a no-op, and the guard is
// released on every exit path.
func (m *Manager) ClosePosition(ctx context.Context, symbol, reason string) {
	m.mu.Lock()
	if _, inProgress := m.closingInProgress[symbol]; inProgress {
		m.mu.Unlock()
		return
	}
	pos, ok := m.active[symbol]
	if !ok {
		m.mu.Unlock()
		return
	}
	m.closingInProgress[symbol] = struct{}{}
	if err := pos.SM.Transition(models.StateClosing, models.CondCloseRequest); err != nil {
		m.logger.Printf("symbol=%s state transition error=%v", symbol, err)
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.closingInProgress, symbol)
		m.mu.Unlock()
	}()

	orderID, err := m.broker.ClosePositionCtx(ctx, symbol, pos.Shares)
	if err != nil {
		m.logger.Printf("symbol=%s close submit error=%v", symbol, err)
		m.revertToHolding(pos)
		return
	}

	status, fillPrice, err := m.awaitClose(ctx, orderID)
	if err != nil || status != broker.OrderFilled {
		m.logger.Printf("symbol=%s close order=%s fill error=%v status=%s", symbol, orderID, err, status)
		m.revertToHolding(pos)
		return
	}

	pnl := (fillPrice - pos.EntryPrice) * float64(pos.Shares)
	pnlPct := fillPrice/pos.EntryPrice - 1
	now := time.Now()

	if pos.DBID != 0 {
		if err := m.store.CloseTradeRecord(ctx, pos.DBID, now, fillPrice, pnl, pnlPct, reason); err != nil {
			m.logger.Printf("symbol=%s close_trade_record error=%v", symbol, err)
		}
	}
	if err := m.store.UpdatePassedSignalStatus(ctx, pos.Signal.DetectedAt, symbol, models.PassedSignalClosed); err != nil {
		m.logger.Printf("symbol=%s update_passed_signal error=%v", symbol, err)
	}

	m.mu.Lock()
	if err := pos.SM.Transition(models.StateClosed, models.CondCloseFilled); err != nil {
		m.logger.Printf("symbol=%s state transition error=%v", symbol, err)
	}
	pos.ExitTime, pos.ExitPrice, pos.ExitReason, pos.PnL, pos.PnLPct = now, fillPrice, reason, pnl, pnlPct
	delete(m.active, symbol)
	m.stats.Closed++
	m.mu.Unlock()

	m.logger.Printf("symbol=%s closed reason=%s pnl=%.2f pnl_pct=%.4f", symbol, reason, pnl, pnlPct)
}

func (m *Manager) revertToHolding(pos *models.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := pos.SM.Transition(models.StateHolding, models.CondCloseFailed); err != nil {
		m.logger.Printf("symbol=%s revert transition error=%v", pos.Symbol, err)
	}
}

func (m *Manager) awaitClose(ctx context.Context, orderID string) (broker.OrderStatus, float64, error) {
	deadline := time.Now().Add(fillPollTimeout)
	ticker := time.NewTicker(fillPollInterval)
	defer ticker.Stop()

	for {
		status, price, err := m.broker.GetOrderStatusCtx(ctx, orderID)
		if err == nil {
			switch status {
			case broker.OrderFilled, broker.OrderRejected, broker.OrderCanceled:
				return status, price, nil
			}
		}
		if time.Now().After(deadline) {
			return "", 0, fmt.Errorf("close order %s: fill poll timed out", orderID)
		}
		select {
		case <-ctx.Done():
			return "", 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SyncOnStartup reconciles in-memory state against the DB's open trade
// records and the broker's live positions (§4.10, scenario S4). Must run
// before the engine starts routing live triggers.
func (m *Manager) SyncOnStartup(ctx context.Context) error {
	dbRows, err := m.store.LoadOpenTradeRecords(ctx, m.cfg.Account)
	if err != nil {
		return fmt.Errorf("sync_on_startup: load open trade records: %w", err)
	}
	brokerPositions, err := m.broker.GetPositionsCtx(ctx)
	if err != nil {
		return fmt.Errorf("sync_on_startup: get broker positions: %w", err)
	}

	dbBySymbol := make(map[string]models.TradeRecord, len(dbRows))
	for _, r := range dbRows {
		dbBySymbol[r.Symbol] = r
	}
	brokerBySymbol := make(map[string]broker.Position, len(brokerPositions))
	for _, p := range brokerPositions {
		brokerBySymbol[p.Symbol] = p
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for symbol, rec := range dbBySymbol {
		if bp, inBroker := brokerBySymbol[symbol]; inBroker {
			// Case A: DB ∩ Broker — restore with full metadata.
			pos := &models.Position{
				Symbol:        symbol,
				EntryTime:     rec.EntryTime,
				EntryPrice:    rec.EntryPrice,
				Shares:        rec.Shares,
				DBID:          rec.ID,
				HighWaterMark: bp.CurrentPrice,
				Signal:        models.SignalRef{Score: rec.Score, Sector: rec.Sector, DetectedAt: rec.EntryTime},
				SM:            models.NewStateMachineFromState(models.StateHolding),
			}
			m.active[symbol] = pos
			continue
		}

		// Case B: DB \ Broker — crash recovery close.
		exitPrice := rec.EntryPrice
		if m.spot != nil {
			if p, ok := m.spot(ctx, symbol); ok && p > 0 {
				exitPrice = p
			}
		}
		now := time.Now()
		pnl := (exitPrice - rec.EntryPrice) * float64(rec.Shares)
		pnlPct := exitPrice/rec.EntryPrice - 1
		if err := m.store.CloseTradeRecord(ctx, rec.ID, now, exitPrice, pnl, pnlPct, "crash_recovery"); err != nil {
			m.logger.Printf("symbol=%s crash_recovery close_trade_record error=%v", symbol, err)
		}
		if err := m.store.UpdatePassedSignalStatus(ctx, rec.EntryTime, symbol, models.PassedSignalClosed); err != nil {
			m.logger.Printf("symbol=%s crash_recovery update_passed_signal error=%v", symbol, err)
		}
		m.logger.Printf("symbol=%s crash_recovery closed exit_price=%.2f", symbol, exitPrice)
	}

	for symbol, bp := range brokerBySymbol {
		if _, inDB := dbBySymbol[symbol]; inDB {
			continue
		}
		// Case C: Broker \ DB — orphan cleanup.
		if _, err := m.broker.ClosePositionCtx(ctx, symbol, bp.Shares); err != nil {
			m.logger.Printf("symbol=%s orphan_cleanup close error=%v", symbol, err)
			continue
		}
		m.logger.Printf("symbol=%s orphan_cleanup closed shares=%d", symbol, bp.Shares)
	}

	return nil
}

// ResetDaily clears today's activity counters (daily stats) at the
// start-of-day boundary (§4.10). Open positions are untouched; the
// bounce-day cache is not held by the Manager and is not reset here.
func (m *Manager) ResetDaily() {
	m.mu.Lock()
	m.stats = DailyStats{}
	m.mu.Unlock()
}

// Stats returns today's activity snapshot.
func (m *Manager) Stats() DailyStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Active returns a defensive-copy snapshot of every open position, sorted
// by symbol for deterministic output.
func (m *Manager) Active() []*models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Position, 0, len(m.active))
	for _, p := range m.active {
		out = append(out, p.Copy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Get returns a defensive copy of symbol's open position, if any.
func (m *Manager) Get(symbol string) (*models.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.active[symbol]
	if !ok {
		return nil, false
	}
	return p.Copy(), true
}

// Count returns the number of positions counted against MaxConcurrent.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active) + len(m.pending)
}

func (m *Manager) sectorCountLocked(sector string) int {
	count := 0
	for _, p := range m.active {
		if p.Signal.Sector == sector {
			count++
		}
	}
	for _, p := range m.pending {
		if p.Signal.Sector == sector {
			count++
		}
	}
	return count
}

// sizeShares implements §4.10's sizing formula:
// floor(min(notionalCap, equity*pct) / spot).
func sizeShares(notionalCap, pct, equity, spot float64) int64 {
	if spot <= 0 {
		return 0
	}
	budget := notionalCap
	if pctBudget := equity * pct; pctBudget < budget {
		budget = pctBudget
	}
	if budget <= 0 {
		return 0
	}
	return int64(math.Floor(budget / spot))
}

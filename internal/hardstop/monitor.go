// Package hardstop implements the Hard-Stop Monitor (§4.11): a real-time
// equity-trade stream watches every open position across both accounts and
// a 30s REST safety net re-checks the same condition, both funneling
// through a debounced dispatch guard before calling into the Position
// Manager's own reentrancy-safe ClosePosition.
package hardstop

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/uoa-systems/flowwatch/internal/broker"
	"github.com/uoa-systems/flowwatch/internal/models"
)

// RESTPollInterval is the safety-net cadence (§4.11).
const RESTPollInterval = 30 * time.Second

// closeTimeout bounds how long a dispatched close is allowed to run before
// its in-flight goroutine gives up waiting.
const closeTimeout = 90 * time.Second

// PositionManager is the narrow dependency the monitor dispatches closes
// through, satisfied by *position.Manager.
type PositionManager interface {
	Active() []*models.Position
	ClosePosition(ctx context.Context, symbol, reason string)
}

// SpotSource is the safety net's REST price source.
type SpotSource interface {
	SnapshotCtx(ctx context.Context, symbol string) (float64, error)
}

// Account pairs one paper account's Position Manager with its hard-stop threshold.
type Account struct {
	Name        string
	HardStopPct float64
	Manager     PositionManager
}

// Monitor watches every open position across both accounts and closes any
// that breach its hard-stop threshold.
type Monitor struct {
	accounts []Account
	trades   <-chan broker.EquityTrade
	spot     SpotSource
	logger   *log.Logger

	mu      sync.Mutex
	pending map[string]map[string]struct{} // account name -> symbols with a close in flight
}

// New builds a Monitor. trades is the equity stream's delivery channel;
// spot backs the REST safety net and may be nil to disable it.
func New(accounts []Account, trades <-chan broker.EquityTrade, spot SpotSource, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.New(os.Stderr, "hardstop: ", log.LstdFlags)
	}
	pending := make(map[string]map[string]struct{}, len(accounts))
	for _, a := range accounts {
		pending[a.Name] = make(map[string]struct{})
	}
	return &Monitor{accounts: accounts, trades: trades, spot: spot, logger: logger, pending: pending}
}

// Run consumes the real-time stream until ctx is cancelled or the channel
// closes, and drives the REST safety net on its own ticker.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(RESTPollInterval)
	defer ticker.Stop()

	trades := m.trades
	for {
		select {
		case <-ctx.Done():
			return
		case trade, ok := <-trades:
			if !ok {
				trades = nil
				continue
			}
			m.handleTrade(ctx, trade)
		case <-ticker.C:
			m.pollSafetyNet(ctx)
		}
	}
}

// handleTrade checks every account holding trade.Symbol against its
// hard-stop threshold and dispatches a close on breach.
func (m *Monitor) handleTrade(ctx context.Context, trade broker.EquityTrade) {
	for _, acct := range m.accounts {
		for _, pos := range acct.Manager.Active() {
			if pos.Symbol != trade.Symbol || pos.EntryPrice <= 0 {
				continue
			}
			pnlPct := trade.Price/pos.EntryPrice - 1
			if pnlPct <= acct.HardStopPct {
				m.logger.Printf("account=%s symbol=%s pnl_pct=%.4f hard_stop triggered (ws)", acct.Name, pos.Symbol, pnlPct)
				m.dispatchClose(acct, pos.Symbol)
			}
		}
	}
}

// pollSafetyNet re-checks every open position via REST snapshot, covering
// any symbol the live stream missed. A symbol the real-time path already
// caught is held back by dispatchClose's pending set, and the Position
// Manager's closing guard stops any second close that still gets through.
func (m *Monitor) pollSafetyNet(ctx context.Context) {
	if m.spot == nil {
		return
	}
	for _, acct := range m.accounts {
		for _, pos := range acct.Manager.Active() {
			price, err := m.spot.SnapshotCtx(ctx, pos.Symbol)
			if err != nil || price <= 0 || pos.EntryPrice <= 0 {
				continue
			}
			pnlPct := price/pos.EntryPrice - 1
			if pnlPct <= acct.HardStopPct {
				m.logger.Printf("account=%s symbol=%s pnl_pct=%.4f hard_stop triggered (rest)", acct.Name, pos.Symbol, pnlPct)
				m.dispatchClose(acct, pos.Symbol)
			}
		}
	}
}

// dispatchClose debounces concurrent/rapid-fire triggers for the same
// (account, symbol) pair (§4.11, scenario S6) before calling into the
// account's Position Manager, which applies its own closing_in_progress
// guard as the ultimate protection against a double-close.
func (m *Monitor) dispatchClose(acct Account, symbol string) {
	m.mu.Lock()
	set := m.pending[acct.Name]
	if set == nil {
		set = make(map[string]struct{})
		m.pending[acct.Name] = set
	}
	if _, inFlight := set[symbol]; inFlight {
		m.mu.Unlock()
		return
	}
	set[symbol] = struct{}{}
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.pending[acct.Name], symbol)
			m.mu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		acct.Manager.ClosePosition(ctx, symbol, "hard_stop")
	}()
}

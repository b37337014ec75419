package models

import "time"

// SignalRef is the subset of the originating Signal a Position carries
// forward for dashboard rows and sector-cap checks; it is not the full
// Signal so Position stays small and JSON-stable across storage round trips.
type SignalRef struct {
	Score     int
	RSI14     float64
	Notional  float64
	Sector    string
	DetectedAt time.Time
}

// Position is the Position Manager's in-memory view of one open (or
// opening/closing) trade for one account. Exclusively owned by the
// Position Manager for that account; crosses API boundaries only via
// deep copies (Copy()).
type Position struct {
	Symbol        string
	EntryTime     time.Time
	EntryPrice    float64
	Shares        int64
	Signal        SignalRef
	DBID          int64
	HighWaterMark float64
	SM            *StateMachine

	ExitTime   time.Time
	ExitPrice  float64
	ExitReason string
	PnL        float64
	PnLPct     float64
}

// State is a convenience accessor over the embedded state machine.
func (p *Position) State() PositionState {
	if p.SM == nil {
		return StateClosed
	}
	return p.SM.GetCurrentState()
}

// Copy returns a deep copy so callers reading a Position from the manager
// cannot mutate manager-owned state.
func (p *Position) Copy() *Position {
	if p == nil {
		return nil
	}
	cp := *p
	cp.SM = p.SM.Copy()
	return &cp
}

// PendingOrder tracks a submitted-but-not-yet-filled open order.
type PendingOrder struct {
	Symbol     string
	Signal     SignalRef
	Shares     int64
	BrokerOrderID string
	SubmittedAt time.Time
}

// TradeRecord is the persisted row backing a Position: one INSERT at entry
// (exit_time NULL), one UPDATE at close. At most one open row per
// (account, symbol) via a partial unique index.
type TradeRecord struct {
	ID         int64
	Account    string
	Symbol     string
	EntryTime  time.Time
	EntryPrice float64
	Shares     int64
	Score      int
	Sector     string
	ExitTime   *time.Time
	ExitPrice  *float64
	ExitReason *string
	PnL        *float64
	PnLPct     *float64
}

// IsOpen reports whether this row has not yet been closed.
func (t TradeRecord) IsOpen() bool {
	return t.ExitTime == nil
}

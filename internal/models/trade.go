package models

import "time"

// Right is the option contract side.
type Right string

const (
	// Call is a call contract.
	Call Right = "C"
	// Put is a put contract.
	Put Right = "P"
)

// OptionTrade is one print off the firehose, already OCC-decoded. It is
// transient: received, folded into the rolling window, then discarded.
type OptionTrade struct {
	OCCSymbol  string
	Underlying string
	Expiry     time.Time
	Right      Right
	Strike     float64
	TS         time.Time
	Price      float64
	Size       int64
	Conditions []string
}

// Notional is price * size * 100 (100 shares per contract).
func (t OptionTrade) Notional() float64 {
	return t.Price * float64(t.Size) * 100
}

// WindowStats is the aggregate view of a RollingWindow as of the moment it
// was computed; returned by stats(symbol) after stale eviction.
type WindowStats struct {
	Symbol             string
	NotionalTotal      float64
	ContractsTotal      int64
	Prints             int
	CallsNotional      float64
	PutsNotional       float64
	SweepNotional      float64
	UniqueStrikes      int
	MaxPrintSize       int64
	AsOf               time.Time
}

// CallPct is calls_notional / (calls_notional + puts_notional); 0 when no options priced.
func (w WindowStats) CallPct() float64 {
	denom := w.CallsNotional + w.PutsNotional
	if denom <= 0 {
		return 0
	}
	return w.CallsNotional / denom
}

// SweepPct is sweep_notional / notional_total.
func (w WindowStats) SweepPct() float64 {
	if w.NotionalTotal <= 0 {
		return 0
	}
	return w.SweepNotional / w.NotionalTotal
}

// AvgContractsPerPrint is contracts_total / prints, 0 when there were no prints.
func (w WindowStats) AvgContractsPerPrint() float64 {
	if w.Prints == 0 {
		return 0
	}
	return float64(w.ContractsTotal) / float64(w.Prints)
}

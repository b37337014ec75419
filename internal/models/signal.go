package models

import "time"

// Trend is a coarse label attached to a Signal by the generator's TA fields.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// Trigger is produced by the UOA Detector when a symbol's rolling-window
// notional crosses its baseline ratio threshold. Transient.
type Trigger struct {
	Symbol          string
	TS              time.Time
	Stats           WindowStats
	VolumeRatio     float64
	BaselineNotional float64
}

// ComponentScores is the per-component breakdown the Scorer produces,
// retained verbatim on the Evaluation row.
type ComponentScores struct {
	VolumeRatio         int
	CallPct             int
	SweepPct            int
	StrikeConcentration int
	Notional            int
}

// Total sums the five components into the [0,15] score.
func (c ComponentScores) Total() int {
	return c.VolumeRatio + c.CallPct + c.SweepPct + c.StrikeConcentration + c.Notional
}

// Signal is a Trigger enriched with market context ahead of filtering.
type Signal struct {
	Trigger

	Score ComponentScores

	RSI14    float64
	SMA20    float64
	SMA50    float64
	LastClose float64
	Trend    Trend
	HasTA    bool

	SpotPrice float64
	HasSpot   bool

	Sector string

	GEX *GEXMetadata
}

// GEXMetadata is opaque, optional, never consulted by the filter chain.
type GEXMetadata struct {
	NetGEX    float64
	GammaFlip float64
	SnapshotTS time.Time
}

// Evaluation is the append-only record of every signal that reached the
// filter chain, pass or fail.
type Evaluation struct {
	ID               int64
	DetectedAt       time.Time
	Symbol           string
	ScoreTotal       int
	ComponentScores  ComponentScores
	RSI14            float64
	SMA20            float64
	SMA50            float64
	SpotPrice        float64
	NotionalTotal    float64
	VolumeRatio      float64
	PassedAllFilters bool
	RejectionReason  string
	Metadata         map[string]any
}

// PassedSignal is the de-duplicated projection of Evaluations where
// passed_all_filters = true. Unique on (DetectedAt, Symbol).
type PassedSignal struct {
	ID         int64
	DetectedAt time.Time
	Symbol     string
	ScoreTotal int
	Status     string // "OPEN", "CLOSED" — updated by the position manager on close
}

// PassedSignal status values.
const (
	PassedSignalOpen   = "OPEN"
	PassedSignalClosed = "CLOSED"
)

// Package scorer turns a Trigger's aggregate stats into the integer [0,15]
// score the filter chain's admission gate reads. Pure function of
// WindowStats and VolumeRatio — same input always yields the same output.
package scorer

import "github.com/uoa-systems/flowwatch/internal/models"

// Score computes the component breakdown for a trigger.
func Score(t models.Trigger) models.ComponentScores {
	return models.ComponentScores{
		VolumeRatio:         volumeRatioPoints(t.VolumeRatio),
		CallPct:             callPctPoints(t.Stats.CallPct()),
		SweepPct:            sweepPctPoints(t.Stats.SweepPct()),
		StrikeConcentration: strikeConcentrationPoints(t.Stats.UniqueStrikes, t.Stats.ContractsTotal),
		Notional:            notionalPoints(t.Stats.NotionalTotal),
	}
}

func volumeRatioPoints(ratio float64) int {
	switch {
	case ratio >= 20:
		return 5
	case ratio >= 10:
		return 3
	case ratio >= 5:
		return 1
	default:
		return 0
	}
}

func callPctPoints(callPct float64) int {
	switch {
	case callPct > 0.85:
		return 3
	case callPct > 0.70:
		return 2
	default:
		return 0
	}
}

func sweepPctPoints(sweepPct float64) int {
	switch {
	case sweepPct > 0.50:
		return 3
	case sweepPct > 0.30:
		return 2
	default:
		return 0
	}
}

// strikeConcentrationPoints requires contracts_total >= 50 for either tier —
// confirmed against the boundary case (strikes=4, contracts=40 scores 0 for
// this component, not the 1 point a guard-less reading of "<=5" would give.
func strikeConcentrationPoints(uniqueStrikes int, contractsTotal int64) int {
	if contractsTotal < 50 {
		return 0
	}
	switch {
	case uniqueStrikes <= 3:
		return 3
	case uniqueStrikes <= 5:
		return 1
	default:
		return 0
	}
}

func notionalPoints(notional float64) int {
	switch {
	case notional >= 200000:
		return 3
	case notional >= 50000:
		return 1
	default:
		return 0
	}
}

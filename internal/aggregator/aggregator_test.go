package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uoa-systems/flowwatch/internal/models"
)

func mkTrade(underlying string, ts time.Time, price float64, size int64, right models.Right, strike float64, sweep bool) models.OptionTrade {
	conditions := []string{}
	if sweep {
		conditions = append(conditions, "sweep")
	}
	return models.OptionTrade{
		OCCSymbol:  underlying + "...",
		Underlying: underlying,
		TS:         ts,
		Price:      price,
		Size:       size,
		Right:      right,
		Strike:     strike,
		Conditions: conditions,
	}
}

func TestAggregatorStatsSumsRetainedEntries(t *testing.T) {
	a := New(nil)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	a.AddTrade(mkTrade("AAPL", now, 5.00, 100, models.Call, 250, true))
	a.AddTrade(mkTrade("AAPL", now, 5.00, 100, models.Call, 250, true))
	a.AddTrade(mkTrade("AAPL", now, 5.00, 50, models.Call, 250, true))

	stats := a.Stats("AAPL")
	assert.Equal(t, 125000.0, stats.NotionalTotal)
	assert.Equal(t, int64(250), stats.ContractsTotal)
	assert.Equal(t, 3, stats.Prints)
	assert.Equal(t, 1, stats.UniqueStrikes)
	assert.InDelta(t, 1.0, stats.SweepPct(), 0.0001)
}

func TestAggregatorEvictsStaleEntries(t *testing.T) {
	a := New(nil)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	a.AddTrade(mkTrade("NET", now.Add(-90*time.Second), 1.00, 10, models.Put, 50, false))
	a.AddTrade(mkTrade("NET", now.Add(-10*time.Second), 1.00, 10, models.Put, 50, false))

	stats := a.Stats("NET")
	assert.Equal(t, 1, stats.Prints)
	assert.Equal(t, 1000.0, stats.NotionalTotal)
}

func TestAggregatorDropsMalformedTrades(t *testing.T) {
	a := New(nil)
	a.AddTrade(mkTrade("GME", time.Now(), 0, 10, models.Call, 10, false))
	a.AddTrade(mkTrade("GME", time.Now(), 5, -1, models.Call, 10, false))
	assert.Equal(t, int64(2), a.DroppedCount("GME"))
	stats := a.Stats("GME")
	assert.Equal(t, 0, stats.Prints)
}

func TestAggregatorCallPutSplit(t *testing.T) {
	a := New(nil)
	now := time.Now()
	a.now = func() time.Time { return now }
	a.AddTrade(mkTrade("NET", now, 4.00, 200, models.Call, 90, true))
	a.AddTrade(mkTrade("NET", now, 4.00, 22, models.Put, 90, false))

	stats := a.Stats("NET")
	require.InDelta(t, 0.9, stats.CallPct(), 0.01)
}

func TestResetClearsWindow(t *testing.T) {
	a := New(nil)
	a.AddTrade(mkTrade("TSLA", time.Now(), 1, 1, models.Call, 1, false))
	a.Reset("TSLA")
	stats := a.Stats("TSLA")
	assert.Equal(t, 0, stats.Prints)
}

func TestActiveSymbols(t *testing.T) {
	a := New(nil)
	now := time.Now()
	a.now = func() time.Time { return now }
	a.AddTrade(mkTrade("AAPL", now, 1, 1, models.Call, 1, false))
	syms := a.ActiveSymbols()
	assert.Contains(t, syms, "AAPL")
}

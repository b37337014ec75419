package detector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uoa-systems/flowwatch/internal/models"
)

type fakeAgg struct {
	stats   map[string]models.WindowStats
	symbols []string
}

func (f fakeAgg) Stats(symbol string) models.WindowStats { return f.stats[symbol] }
func (f fakeAgg) ActiveSymbols() []string                { return f.symbols }

type fakeBaseline struct{ values map[string]float64 }

func (f fakeBaseline) Baseline(symbol string) float64 { return f.values[symbol] }

type fakeTracker struct{ upserts []string }

func (f *fakeTracker) UpsertTrackedSymbol(ctx context.Context, symbol string, ts time.Time) error {
	f.upserts = append(f.upserts, symbol)
	return nil
}

func TestDetectorEmitsTriggerAboveThreshold(t *testing.T) {
	agg := fakeAgg{
		stats:   map[string]models.WindowStats{"NET": {Symbol: "NET", NotionalTotal: 400000}},
		symbols: []string{"NET"},
	}
	baseline := fakeBaseline{values: map[string]float64{"NET": 50000}}
	tracker := &fakeTracker{}
	d := New(agg, baseline, tracker, nil)

	triggers := d.Scan(context.Background())
	require.Len(t, triggers, 1)
	assert.Equal(t, "NET", triggers[0].Symbol)
	assert.InDelta(t, 8.0, triggers[0].VolumeRatio, 0.001)
	assert.Equal(t, []string{"NET"}, tracker.upserts)
}

func TestDetectorSkipsBelowMinNotional(t *testing.T) {
	agg := fakeAgg{
		stats:   map[string]models.WindowStats{"AAPL": {Symbol: "AAPL", NotionalTotal: 9999}},
		symbols: []string{"AAPL"},
	}
	baseline := fakeBaseline{values: map[string]float64{"AAPL": 100}}
	d := New(agg, baseline, &fakeTracker{}, nil)
	assert.Empty(t, d.Scan(context.Background()))
}

func TestDetectorSkipsBelowThreshold(t *testing.T) {
	agg := fakeAgg{
		stats:   map[string]models.WindowStats{"AAPL": {Symbol: "AAPL", NotionalTotal: 125000}},
		symbols: []string{"AAPL"},
	}
	baseline := fakeBaseline{values: map[string]float64{"AAPL": 100000}}
	d := New(agg, baseline, &fakeTracker{}, nil)
	assert.Empty(t, d.Scan(context.Background()))
}

func TestDetectorRespectsCooldown(t *testing.T) {
	agg := fakeAgg{
		stats:   map[string]models.WindowStats{"NET": {Symbol: "NET", NotionalTotal: 400000}},
		symbols: []string{"NET"},
	}
	baseline := fakeBaseline{values: map[string]float64{"NET": 50000}}
	d := New(agg, baseline, &fakeTracker{}, nil)

	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return base }
	require.Len(t, d.Scan(context.Background()), 1)

	d.now = func() time.Time { return base.Add(59*time.Minute + 59*time.Second) }
	assert.Empty(t, d.Scan(context.Background()))

	d.now = func() time.Time { return base.Add(60 * time.Minute) }
	assert.Len(t, d.Scan(context.Background()), 1)
}

func TestDetectorTieBreakOrdering(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	agg := fakeAgg{
		stats: map[string]models.WindowStats{
			"ZZZ": {Symbol: "ZZZ", NotionalTotal: 400000},
			"AAA": {Symbol: "AAA", NotionalTotal: 400000},
		},
		symbols: []string{"ZZZ", "AAA"},
	}
	baseline := fakeBaseline{values: map[string]float64{"ZZZ": 1000, "AAA": 1000}}
	d := New(agg, baseline, &fakeTracker{}, nil)
	d.now = func() time.Time { return base }

	triggers := d.Scan(context.Background())
	require.Len(t, triggers, 2)
	assert.Equal(t, "AAA", triggers[0].Symbol)
	assert.Equal(t, "ZZZ", triggers[1].Symbol)
}

package baseline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistoryStore struct {
	history map[string][]float64
	err     error
}

func (f fakeHistoryStore) LoadBaselineHistory(ctx context.Context, lookbackDays int) (map[string][]float64, error) {
	return f.history, f.err
}

func TestProviderBaselineFallback(t *testing.T) {
	p := NewProvider(fakeHistoryStore{history: map[string][]float64{}})
	require.NoError(t, p.Load(context.Background()))
	assert.Equal(t, FallbackNotional, p.Baseline("UNKNOWN"))
}

func TestProviderBaselineAverage(t *testing.T) {
	p := NewProvider(fakeHistoryStore{history: map[string][]float64{
		"NET": {40000, 50000, 60000},
	}})
	require.NoError(t, p.Load(context.Background()))
	assert.Equal(t, 50000.0, p.Baseline("NET"))
}

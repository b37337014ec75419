package eod

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uoa-systems/flowwatch/internal/models"
)

type fakeManager struct {
	mu         sync.Mutex
	positions  []*models.Position
	closeCalls []string
}

func (f *fakeManager) Active() []*models.Position {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Position, len(f.positions))
	copy(out, f.positions)
	return out
}

func (f *fakeManager) ClosePosition(_ context.Context, symbol, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls = append(f.closeCalls, symbol)
}

func (f *fakeManager) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.closeCalls))
	copy(out, f.closeCalls)
	return out
}

func TestTickClosesAllPositionsAtExitTime(t *testing.T) {
	mgr := &fakeManager{positions: []*models.Position{{Symbol: "AAPL"}, {Symbol: "NET"}}}
	closer, err := New([]Account{{Name: "A", Manager: mgr}}, "15:55", time.UTC, nil)
	require.NoError(t, err)

	now := time.Date(2026, 3, 2, 15, 59, 0, 0, time.UTC)
	closer.Tick(context.Background(), now)

	assert.ElementsMatch(t, []string{"AAPL", "NET"}, mgr.calls())
	assert.True(t, closer.ClosedToday("A"))
}

func TestTickDoesNothingBeforeExitTime(t *testing.T) {
	mgr := &fakeManager{positions: []*models.Position{{Symbol: "AAPL"}}}
	closer, err := New([]Account{{Name: "A", Manager: mgr}}, "15:55", time.UTC, nil)
	require.NoError(t, err)

	now := time.Date(2026, 3, 2, 15, 54, 59, 0, time.UTC)
	closer.Tick(context.Background(), now)

	assert.Empty(t, mgr.calls())
	assert.False(t, closer.ClosedToday("A"))
}

func TestTickOnlyClosesOncePerDay(t *testing.T) {
	mgr := &fakeManager{positions: []*models.Position{{Symbol: "AAPL"}}}
	closer, err := New([]Account{{Name: "A", Manager: mgr}}, "15:55", time.UTC, nil)
	require.NoError(t, err)

	now := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)
	closer.Tick(context.Background(), now)
	closer.Tick(context.Background(), now.Add(time.Minute))

	assert.Len(t, mgr.calls(), 1)
}

func TestResetDailyClearsClosedFlag(t *testing.T) {
	mgr := &fakeManager{}
	closer, err := New([]Account{{Name: "A", Manager: mgr}}, "15:55", time.UTC, nil)
	require.NoError(t, err)

	now := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)
	closer.Tick(context.Background(), now)
	assert.True(t, closer.ClosedToday("A"))

	closer.ResetDaily()
	assert.False(t, closer.ClosedToday("A"))
}

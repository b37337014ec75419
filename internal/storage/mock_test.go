package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uoa-systems/flowwatch/internal/models"
)

func TestMockStorageOpenTradeRecordRejectsDuplicateOpen(t *testing.T) {
	m := NewMockStorage()
	ctx := context.Background()

	id1, err := m.OpenTradeRecord(ctx, &models.TradeRecord{Account: "A", Symbol: "AAPL", EntryPrice: 100, Shares: 10})
	require.NoError(t, err)
	assert.NotZero(t, id1)

	_, err = m.OpenTradeRecord(ctx, &models.TradeRecord{Account: "A", Symbol: "AAPL", EntryPrice: 101, Shares: 5})
	assert.ErrorIs(t, err, errAlreadyOpen)
}

func TestMockStorageCloseThenReopenAllowed(t *testing.T) {
	m := NewMockStorage()
	ctx := context.Background()

	id, err := m.OpenTradeRecord(ctx, &models.TradeRecord{Account: "A", Symbol: "AAPL", EntryPrice: 100, Shares: 10})
	require.NoError(t, err)

	require.NoError(t, m.CloseTradeRecord(ctx, id, time.Now(), 105, 50, 0.05, "eod"))

	open, err := m.LoadOpenTradeRecords(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, open)

	_, err = m.OpenTradeRecord(ctx, &models.TradeRecord{Account: "A", Symbol: "AAPL", EntryPrice: 102, Shares: 8})
	assert.NoError(t, err)
}

func TestMockStoragePassedSignalUpsertIsIdempotentOnKey(t *testing.T) {
	m := NewMockStorage()
	ctx := context.Background()
	detectedAt := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)

	require.NoError(t, m.UpsertPassedSignal(ctx, &models.PassedSignal{DetectedAt: detectedAt, Symbol: "AAPL", ScoreTotal: 11, Status: models.PassedSignalOpen}))
	require.NoError(t, m.UpsertPassedSignal(ctx, &models.PassedSignal{DetectedAt: detectedAt, Symbol: "AAPL", ScoreTotal: 11, Status: models.PassedSignalOpen}))

	assert.Len(t, m.PassedSignals(), 1)

	require.NoError(t, m.UpdatePassedSignalStatus(ctx, detectedAt, "AAPL", models.PassedSignalClosed))
	signals := m.PassedSignals()
	require.Len(t, signals, 1)
	assert.Equal(t, models.PassedSignalClosed, signals[0].Status)
}

func TestMockStorageUpsertTrackedSymbolIncrements(t *testing.T) {
	m := NewMockStorage()
	ctx := context.Background()

	require.NoError(t, m.UpsertTrackedSymbol(ctx, "AAPL", time.Now()))
	require.NoError(t, m.UpsertTrackedSymbol(ctx, "AAPL", time.Now()))

	ts, ok := m.TrackedSymbol("AAPL")
	require.True(t, ok)
	assert.Equal(t, 2, ts.TriggerCount)
}

func TestMockStorageLoadBaselineHistoryReturnsSeededCopy(t *testing.T) {
	m := NewMockStorage()
	ctx := context.Background()
	m.SeedBaselineHistory("AAPL", []float64{100, 200, 300})

	history, err := m.LoadBaselineHistory(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 200, 300}, history["AAPL"])

	history["AAPL"][0] = 999
	history2, err := m.LoadBaselineHistory(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, float64(100), history2["AAPL"][0], "mutating a returned slice must not affect internal state")
}

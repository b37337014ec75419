package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uoa-systems/flowwatch/internal/broker"
	"github.com/uoa-systems/flowwatch/internal/models"
)

func TestDecodeTradeParsesOCCSymbol(t *testing.T) {
	raw := broker.RawTrade{
		Symbol:      "AAPL240119C00150000",
		Size:        10,
		Price:       2.5,
		TimestampNS: time.Date(2024, 1, 10, 14, 30, 0, 0, time.UTC).UnixNano(),
		Conditions:  []string{"sweep"},
	}

	trade, err := decodeTrade(raw)
	require.NoError(t, err)

	assert.Equal(t, "AAPL", trade.Underlying)
	assert.Equal(t, models.Call, trade.Right)
	assert.Equal(t, 150.0, trade.Strike)
	assert.Equal(t, raw.Price, trade.Price)
	assert.Equal(t, raw.Size, trade.Size)
	assert.Equal(t, raw.Conditions, trade.Conditions)
	assert.True(t, trade.TS.Equal(time.Unix(0, raw.TimestampNS)))
}

func TestDecodeTradeRejectsMalformedSymbol(t *testing.T) {
	_, err := decodeTrade(broker.RawTrade{Symbol: "not-an-occ-symbol"})
	assert.Error(t, err)
}

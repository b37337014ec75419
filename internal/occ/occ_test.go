package occ

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uoa-systems/flowwatch/internal/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		symbol  string
		want    Decoded
		wantErr bool
	}{
		{
			name:   "with O prefix",
			symbol: "O:AAPL240119C00150000",
			want: Decoded{
				Underlying: "AAPL",
				Expiry:     time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC),
				Right:      models.Call,
				Strike:     150.0,
			},
		},
		{
			name:   "without prefix, put, fractional strike",
			symbol: "NET240119P00050500",
			want: Decoded{
				Underlying: "NET",
				Expiry:     time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC),
				Right:      models.Put,
				Strike:     50.5,
			},
		},
		{
			name:    "no underlying letters",
			symbol:  "240119C00150000",
			wantErr: true,
		},
		{
			name:    "wrong length suffix",
			symbol:  "AAPL24011C00150000",
			wantErr: true,
		},
		{
			name:    "bad right char",
			symbol:  "AAPL240119X00150000",
			wantErr: true,
		},
		{
			name:    "non-digit strike",
			symbol:  "AAPL240119C0015000X",
			wantErr: true,
		},
		{
			name:    "non-digit date",
			symbol:  "AAPL24011XC00150000",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.symbol)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidSymbol)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseEncodeRoundTrip(t *testing.T) {
	cases := []struct {
		underlying string
		expiry     time.Time
		right      models.Right
		strike     float64
	}{
		{"AAPL", time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC), models.Call, 150},
		{"SPY", time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), models.Put, 432.5},
		{"GOOGL", time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC), models.Call, 2800.125},
	}

	for _, c := range cases {
		encoded := Encode(c.underlying, c.expiry, c.right, c.strike)
		decoded, err := Parse(encoded)
		require.NoError(t, err)
		assert.Equal(t, c.underlying, decoded.Underlying)
		assert.True(t, c.expiry.Equal(decoded.Expiry))
		assert.Equal(t, c.right, decoded.Right)
		assert.InDelta(t, c.strike, decoded.Strike, 0.001)
	}
}

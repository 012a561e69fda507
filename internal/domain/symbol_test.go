package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"BTCUSDT", "BTCUSDT"},
		{"btcusdt", "BTCUSDT"},
		{"BTC", "BTCUSDT"},
		{"BTCT", "BTCUSDT"},
		{"BTCUSD", "BTCUSDT"},
		{" eth ", "ETHUSDT"},
		{"SOLUSD", "SOLUSDT"},
		{"BNB", "BNBUSDT"},
		{"DOGE", "DOGEUSDT"},
		{"DOGEUSD", "DOGEUSDT"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalSymbol(tt.in))
		})
	}
}

func TestScaledPrice(t *testing.T) {
	t.Run("exact trigger equality", func(t *testing.T) {
		target, ok := ScaledPrice("BTCUSDT", 30900.0)
		assert.True(t, ok)

		last, ok := ScaledPrice("BTCUSDT", 30900.000)
		assert.True(t, ok)
		assert.Equal(t, target, last, "equal prices must scale identically")
	})

	t.Run("one scaled unit short does not reach the trigger", func(t *testing.T) {
		target, _ := ScaledPrice("BTCUSDT", 30900.0)
		last, _ := ScaledPrice("BTCUSDT", 30899.999)
		assert.Less(t, last, target)
		assert.Equal(t, int64(1), target-last)
	})

	t.Run("float noise cannot flip a comparison", func(t *testing.T) {
		// 0.1+0.2 != 0.3 in float64; at three decimals both scale the same.
		a, _ := ScaledPrice("ETHUSDT", 0.1+0.2)
		b, _ := ScaledPrice("ETHUSDT", 0.3)
		assert.Equal(t, a, b)
	})

	t.Run("non-finite inputs are rejected", func(t *testing.T) {
		_, ok := ScaledPrice("BTCUSDT", math.NaN())
		assert.False(t, ok)
		_, ok = ScaledPrice("BTCUSDT", math.Inf(1))
		assert.False(t, ok)
		_, ok = ScaledPrice("BTCUSDT", math.Inf(-1))
		assert.False(t, ok)
	})
}

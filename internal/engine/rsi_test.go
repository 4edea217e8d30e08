package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSIRequiresEnoughCloses(t *testing.T) {
	_, err := RSI([]float64{100, 101}, 14)
	require.Error(t, err)

	_, err = RSI(make([]float64, 14), 14)
	require.Error(t, err, "period+1 closes are needed")
}

func TestRSIExtremes(t *testing.T) {
	rsi, err := RSI(rising(15), 14)
	require.NoError(t, err)
	assert.InDelta(t, 100, rsi, 0.001, "all gains")

	rsi, err = RSI(declining(15), 14)
	require.NoError(t, err)
	assert.InDelta(t, 0, rsi, 0.001, "all losses")
}

func TestRSIKnownSeries(t *testing.T) {
	// Alternating equal gains and losses settle near 50.
	closes := make([]float64, 31)
	price := 100.0
	for i := range closes {
		closes[i] = price
		if i%2 == 0 {
			price += 1
		} else {
			price -= 1
		}
	}

	rsi, err := RSI(closes, 14)
	require.NoError(t, err)
	assert.Greater(t, rsi, 30.0)
	assert.Less(t, rsi, 70.0)
}

func TestRSIUsesMostRecentWindow(t *testing.T) {
	// A long rally followed by a steep selloff must read oversold.
	closes := append(rising(30), 128, 120, 112, 104, 96, 88, 80, 72, 64, 56, 48, 40, 32, 24, 16)

	rsi, err := RSI(closes, 14)
	require.NoError(t, err)
	assert.Less(t, rsi, 30.0)
}

func TestPriceChangePercent(t *testing.T) {
	assert.InDelta(t, 1.0, PriceChangePercent([]float64{100, 101}), 0.0001)
	assert.InDelta(t, -2.0, PriceChangePercent([]float64{50, 100, 98}), 0.0001)
	assert.Zero(t, PriceChangePercent([]float64{100}))
	assert.Zero(t, PriceChangePercent(nil))
}

package engine

import "fmt"

// RSI computes the Relative Strength Index over the given close series
// using Wilder's smoothing. Closes are ordered oldest to newest; at least
// period+1 values are required.
func RSI(closes []float64, period int) (float64, error) {
	if period < 2 {
		return 0, fmt.Errorf("rsi period %d too small", period)
	}
	if len(closes) < period+1 {
		return 0, fmt.Errorf("rsi needs %d closes, got %d", period+1, len(closes))
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}

// PriceChangePercent returns the percent change of the last close relative
// to the one before it. Zero when fewer than two closes are available.
func PriceChangePercent(closes []float64) float64 {
	n := len(closes)
	if n < 2 || closes[n-2] == 0 {
		return 0
	}
	return (closes[n-1] - closes[n-2]) / closes[n-2] * 100
}

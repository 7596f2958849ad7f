package indicator

import (
	"fmt"
	"math"
)

// MACDResult holds the three MACD output series.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes moving average convergence/divergence: the difference of the
// fast and slow EMAs, its signal EMA, and the histogram between them. The
// usual parameters are 12, 26, 9.
func MACD(values []float64, fast, slow, signal int) (MACDResult, error) {
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return MACDResult{}, fmt.Errorf("periods must be positive, got fast=%d slow=%d signal=%d", fast, slow, signal)
	}
	if fast >= slow {
		return MACDResult{}, fmt.Errorf("fast period %d must be shorter than slow period %d", fast, slow)
	}

	emaFast := ema(values, fast)
	emaSlow := ema(values, slow)

	macd := nanSlice(len(values))
	for i := range values {
		if math.IsNaN(emaFast[i]) || math.IsNaN(emaSlow[i]) {
			continue
		}
		macd[i] = emaFast[i] - emaSlow[i]
	}

	signalLine := ema(macd, signal)

	hist := nanSlice(len(values))
	for i := range values {
		if math.IsNaN(macd[i]) || math.IsNaN(signalLine[i]) {
			continue
		}
		hist[i] = macd[i] - signalLine[i]
	}

	return MACDResult{MACD: macd, Signal: signalLine, Histogram: hist}, nil
}

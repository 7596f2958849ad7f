package indicator

import (
	"fmt"
	"math"

	"callisto/internal/domain"
)

// ATR computes the Wilder-smoothed average true range over the given period,
// returning the latest value. Requires at least period+1 bars.
func ATR(bars []domain.Bar, period int) (float64, error) {
	series, err := RollingATR(bars, period)
	if err != nil {
		return 0, err
	}
	if len(series) == 0 || math.IsNaN(series[len(series)-1]) {
		return 0, fmt.Errorf("%w: have %d bars, need %d", ErrNotEnoughData, len(bars), period+1)
	}
	return series[len(series)-1], nil
}

// RollingATR computes the Wilder-smoothed ATR at every index. The first
// period entries are NaN.
func RollingATR(bars []domain.Bar, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}
	out := nanSlice(len(bars))
	if len(bars) < period+1 {
		return out, nil
	}

	// True range needs the previous close, so the series starts at index 1.
	var sum float64
	for i := 1; i <= period; i++ {
		sum += trueRange(bars[i], bars[i-1].Close)
	}
	atr := sum / float64(period)
	out[period] = atr

	for i := period + 1; i < len(bars); i++ {
		tr := trueRange(bars[i], bars[i-1].Close)
		atr = (atr*float64(period-1) + tr) / float64(period)
		out[i] = atr
	}
	return out, nil
}

func trueRange(b domain.Bar, prevClose float64) float64 {
	tr := b.High - b.Low
	if hc := math.Abs(b.High - prevClose); hc > tr {
		tr = hc
	}
	if lc := math.Abs(b.Low - prevClose); lc > tr {
		tr = lc
	}
	return tr
}

// Package indicator implements technical indicators over bar history.
//
// Scalar functions return the latest value and an explicit error when the
// input is too short. Series functions return a slice the same length as the
// input, padded with NaN over the warmup region.
package indicator

import (
	"errors"
	"math"
)

// ErrNotEnoughData is returned when the input is shorter than the indicator
// warmup requires.
var ErrNotEnoughData = errors.New("not enough data")

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// ema returns the exponential moving average of values, seeded with the
// simple average of the first period valid values. Leading NaNs in the input
// and the warmup region stay NaN in the output.
func ema(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	start := 0
	for start < len(values) && math.IsNaN(values[start]) {
		start++
	}
	if len(values)-start < period {
		return out
	}
	sum := 0.0
	for i := start; i < start+period; i++ {
		sum += values[i]
	}
	prev := sum / float64(period)
	out[start+period-1] = prev

	alpha := 2.0 / float64(period+1)
	for i := start + period; i < len(values); i++ {
		prev = alpha*values[i] + (1-alpha)*prev
		out[i] = prev
	}
	return out
}

// rollingMean averages values over a trailing window, ignoring NaNs. Entries
// with no valid values in their window stay NaN.
func rollingMean(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	for i := range values {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		sum, n := 0.0, 0
		for j := lo; j <= i; j++ {
			if !math.IsNaN(values[j]) {
				sum += values[j]
				n++
			}
		}
		if n > 0 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

package indicator

import (
	"fmt"
	"math"
)

// RSI computes the Wilder-smoothed relative strength index over the given
// period, returning the latest value. Requires at least period+1 values.
func RSI(values []float64, period int) (float64, error) {
	series, err := RollingRSI(values, period)
	if err != nil {
		return 0, err
	}
	if len(series) == 0 || math.IsNaN(series[len(series)-1]) {
		return 0, fmt.Errorf("%w: have %d values, need %d", ErrNotEnoughData, len(values), period+1)
	}
	return series[len(series)-1], nil
}

// RollingRSI computes the Wilder-smoothed RSI at every index. The first
// period entries are NaN.
func RollingRSI(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}
	out := nanSlice(len(values))
	if len(values) < period+1 {
		return out, nil
	}

	// Initial averages over the first period changes.
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	// Wilder smoothing for the rest.
	for i := period + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

// InverseFisherRSI applies the inverse Fisher transform to the RSI series:
// x = 0.1*(RSI-50), output (e^2x - 1)/(e^2x + 1). Values land in (-1, 1),
// saturating toward the extremes. NaN warmup entries stay NaN.
func InverseFisherRSI(values []float64, period int) ([]float64, error) {
	rsi, err := RollingRSI(values, period)
	if err != nil {
		return nil, err
	}
	out := nanSlice(len(rsi))
	for i, r := range rsi {
		if math.IsNaN(r) {
			continue
		}
		x := 0.1 * (r - 50.0)
		e := math.Exp(2 * x)
		out[i] = (e - 1) / (e + 1)
	}
	return out, nil
}

// StochasticRSI computes the stochastic oscillator of the RSI series:
// 100*(RSI - min)/(max - min) over a trailing stochPeriod window, smoothed
// into %K and %D lines with simple moving averages.
func StochasticRSI(values []float64, rsiPeriod, stochPeriod, kSmooth, dSmooth int) (k, d []float64, err error) {
	if stochPeriod <= 0 {
		return nil, nil, fmt.Errorf("stochPeriod must be positive, got %d", stochPeriod)
	}
	if kSmooth <= 0 || dSmooth <= 0 {
		return nil, nil, fmt.Errorf("smoothing periods must be positive, got k=%d d=%d", kSmooth, dSmooth)
	}
	rsi, err := RollingRSI(values, rsiPeriod)
	if err != nil {
		return nil, nil, err
	}

	stoch := nanSlice(len(rsi))
	for i, r := range rsi {
		if math.IsNaN(r) {
			continue
		}
		lo := i - stochPeriod + 1
		if lo < 0 {
			lo = 0
		}
		min, max := math.Inf(1), math.Inf(-1)
		for j := lo; j <= i; j++ {
			if math.IsNaN(rsi[j]) {
				continue
			}
			if rsi[j] < min {
				min = rsi[j]
			}
			if rsi[j] > max {
				max = rsi[j]
			}
		}
		if max == min {
			continue
		}
		v := 100 * (r - min) / (max - min)
		if v < 0 {
			v = 0
		}
		if v > 100 {
			v = 100
		}
		stoch[i] = v
	}

	k = rollingMean(stoch, kSmooth)
	d = rollingMean(k, dSmooth)
	return k, d, nil
}

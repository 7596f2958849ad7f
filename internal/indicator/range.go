package indicator

import (
	"fmt"

	"callisto/internal/domain"
)

// tradingDaysPerYear approximates 52 weeks of daily bars.
const tradingDaysPerYear = 252

// WeekRange52 scans the most recent 252 daily bars and returns the high, the
// low, and where the last close sits within that range (0.0 at the low, 1.0
// at the high).
func WeekRange52(bars []domain.Bar) (high, low, position float64, err error) {
	if len(bars) == 0 {
		return 0, 0, 0, fmt.Errorf("%w: no bars", ErrNotEnoughData)
	}
	start := len(bars) - tradingDaysPerYear
	if start < 0 {
		start = 0
	}
	high = bars[start].High
	low = bars[start].Low
	for _, b := range bars[start:] {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}

	last := bars[len(bars)-1].Close
	if high == low {
		return high, low, 0.5, nil
	}
	position = (last - low) / (high - low)
	if position < 0 {
		position = 0
	}
	if position > 1 {
		position = 1
	}
	return high, low, position, nil
}

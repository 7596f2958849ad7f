// Package domain defines the core market data types shared across callisto:
// OHLCV bars, the chart Series, timeframes, broker orders, and signals.
package domain

import (
	"fmt"
	"sort"
	"time"
)

// Bar is one OHLCV sample for a fixed time interval. Time is a unix timestamp
// in seconds and is unique within a Series.
type Bar struct {
	Time   int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Timestamp returns the bar's time as a time.Time in UTC.
func (b Bar) Timestamp() time.Time {
	return time.Unix(b.Time, 0).UTC()
}

// Series is the ordered bar history for one (ticker, timeframe) pair.
// Invariant: Time values are strictly increasing with no duplicates.
type Series []Bar

// SortBars sorts bars ascending by Time in place.
func SortBars(bars []Bar) {
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Time < bars[j].Time
	})
}

// Validate returns an error if the series is not strictly increasing in Time.
func (s Series) Validate() error {
	for i := 1; i < len(s); i++ {
		if s[i].Time <= s[i-1].Time {
			return fmt.Errorf("series not strictly increasing at index %d: %d then %d",
				i, s[i-1].Time, s[i].Time)
		}
	}
	return nil
}

// Earliest returns the first bar of the series. The second return value is
// false when the series is empty.
func (s Series) Earliest() (Bar, bool) {
	if len(s) == 0 {
		return Bar{}, false
	}
	return s[0], true
}

// Latest returns the last bar of the series. The second return value is false
// when the series is empty.
func (s Series) Latest() (Bar, bool) {
	if len(s) == 0 {
		return Bar{}, false
	}
	return s[len(s)-1], true
}

// PrependMerge merges a batch of older bars onto the front of the series.
// Incoming bars whose Time already exists in the series are dropped, as are
// bars that would not sort before the current earliest bar (overlap happens
// at day boundaries). The returned series is strictly increasing; the second
// return value holds only the bars that were actually added, sorted
// ascending, so a rendering surface can prepend them without a full reload.
func (s Series) PrependMerge(older []Bar) (Series, []Bar) {
	if len(older) == 0 {
		return s, nil
	}
	if len(s) == 0 {
		added := DedupSort(older)
		merged := make(Series, len(added))
		copy(merged, added)
		return merged, added
	}

	seen := make(map[int64]bool, len(s))
	for _, b := range s {
		seen[b.Time] = true
	}
	earliest := s[0].Time

	added := make([]Bar, 0, len(older))
	for _, b := range older {
		if seen[b.Time] || b.Time >= earliest {
			continue
		}
		seen[b.Time] = true
		added = append(added, b)
	}
	if len(added) == 0 {
		return s, nil
	}
	SortBars(added)

	merged := make(Series, 0, len(added)+len(s))
	merged = append(merged, added...)
	merged = append(merged, s...)
	return merged, added
}

// DedupSort returns a copy of bars sorted ascending by Time with duplicate
// Time values dropped, keeping the first occurrence.
func DedupSort(bars []Bar) []Bar {
	out := make([]Bar, len(bars))
	copy(out, bars)
	SortBars(out)
	n := 0
	for i, b := range out {
		if i > 0 && b.Time == out[n-1].Time {
			continue
		}
		out[n] = b
		n++
	}
	return out[:n]
}

// CloneBars returns a copy of bars that shares no memory with the input.
func CloneBars(bars []Bar) []Bar {
	if bars == nil {
		return nil
	}
	out := make([]Bar, len(bars))
	copy(out, bars)
	return out
}

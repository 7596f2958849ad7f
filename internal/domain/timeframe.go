package domain

import (
	"fmt"
	"time"
)

// Timeframe identifies the bar interval of a series.
type Timeframe string

const (
	Timeframe1Min  Timeframe = "1m"
	Timeframe5Min  Timeframe = "5m"
	Timeframe15Min Timeframe = "15m"
	Timeframe1Hour Timeframe = "1h"
	Timeframe1Day  Timeframe = "1d"
	Timeframe1Week Timeframe = "1wk"
)

// timeframeIntervals maps each supported timeframe to its bar interval.
var timeframeIntervals = map[Timeframe]time.Duration{
	Timeframe1Min:  time.Minute,
	Timeframe5Min:  5 * time.Minute,
	Timeframe15Min: 15 * time.Minute,
	Timeframe1Hour: time.Hour,
	Timeframe1Day:  24 * time.Hour,
	Timeframe1Week: 7 * 24 * time.Hour,
}

// SupportedTimeframes lists the valid timeframe strings in ascending interval
// order.
func SupportedTimeframes() []string {
	return []string{"1m", "5m", "15m", "1h", "1d", "1wk"}
}

// ParseTimeframe validates a timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeIntervals[tf]; !ok {
		return "", fmt.Errorf("invalid timeframe %q; supported: %v", s, SupportedTimeframes())
	}
	return tf, nil
}

// Interval returns the duration of one bar at this timeframe.
func (tf Timeframe) Interval() time.Duration {
	return timeframeIntervals[tf]
}

// IsIntraday reports whether the timeframe is shorter than one day.
func (tf Timeframe) IsIntraday() bool {
	return tf.Interval() < 24*time.Hour
}

func (tf Timeframe) String() string {
	return string(tf)
}

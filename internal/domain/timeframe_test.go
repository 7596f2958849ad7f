package domain

import (
	"testing"
	"time"
)

func TestParseTimeframe(t *testing.T) {
	for _, s := range SupportedTimeframes() {
		tf, err := ParseTimeframe(s)
		if err != nil {
			t.Errorf("ParseTimeframe(%q) returned error: %v", s, err)
		}
		if tf.String() != s {
			t.Errorf("ParseTimeframe(%q).String() = %q", s, tf.String())
		}
	}

	if _, err := ParseTimeframe("2h"); err == nil {
		t.Error("ParseTimeframe accepted unsupported timeframe 2h")
	}
	if _, err := ParseTimeframe(""); err == nil {
		t.Error("ParseTimeframe accepted empty timeframe")
	}
}

func TestTimeframeInterval(t *testing.T) {
	cases := []struct {
		tf   Timeframe
		want time.Duration
	}{
		{Timeframe1Min, time.Minute},
		{Timeframe5Min, 5 * time.Minute},
		{Timeframe15Min, 15 * time.Minute},
		{Timeframe1Hour, time.Hour},
		{Timeframe1Day, 24 * time.Hour},
		{Timeframe1Week, 7 * 24 * time.Hour},
	}
	for _, c := range cases {
		if got := c.tf.Interval(); got != c.want {
			t.Errorf("%s.Interval() = %v, want %v", c.tf, got, c.want)
		}
	}
}

func TestTimeframeIsIntraday(t *testing.T) {
	if !Timeframe15Min.IsIntraday() {
		t.Error("15m should be intraday")
	}
	if Timeframe1Day.IsIntraday() {
		t.Error("1d should not be intraday")
	}
	if Timeframe1Week.IsIntraday() {
		t.Error("1wk should not be intraday")
	}
}

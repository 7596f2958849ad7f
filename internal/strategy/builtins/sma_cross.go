// Package builtins provides the strategy implementations that ship with
// callisto.
package builtins

import (
	"context"
	"fmt"

	"callisto/internal/domain"
	"callisto/internal/indicator"
	"callisto/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy. It generates
// a buy signal when the short-period SMA crosses above the long-period SMA,
// and a sell signal when it crosses below.
type SMACross struct {
	shortPeriod int
	longPeriod  int

	closes    []float64
	prevShort float64
	prevLong  float64
	havePrev  bool
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods. Periods are validated in Init.
func NewSMACross(short, long int) *SMACross {
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
	}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Init validates the periods and clears any state from a previous run.
func (s *SMACross) Init(_ context.Context) error {
	if s.shortPeriod <= 0 {
		return fmt.Errorf("sma-cross: short period must be positive, got %d", s.shortPeriod)
	}
	if s.longPeriod <= s.shortPeriod {
		return fmt.Errorf("sma-cross: long period %d must exceed short period %d",
			s.longPeriod, s.shortPeriod)
	}
	s.closes = s.closes[:0]
	s.havePrev = false
	return nil
}

// OnBar appends the close, recomputes both averages, and signals when their
// ordering flips relative to the previous bar.
func (s *SMACross) OnBar(_ context.Context, bar domain.Bar) ([]domain.Signal, error) {
	s.closes = append(s.closes, bar.Close)
	if len(s.closes) > s.longPeriod {
		s.closes = s.closes[len(s.closes)-s.longPeriod:]
	}
	if len(s.closes) < s.longPeriod {
		return nil, nil
	}

	short, err := indicator.SMA(s.closes, s.shortPeriod)
	if err != nil {
		return nil, err
	}
	long, err := indicator.SMA(s.closes, s.longPeriod)
	if err != nil {
		return nil, err
	}

	cross := 0
	if s.havePrev {
		switch {
		case s.prevShort <= s.prevLong && short > long:
			cross = 1
		case s.prevShort >= s.prevLong && short < long:
			cross = -1
		}
	}
	s.prevShort, s.prevLong, s.havePrev = short, long, true

	switch cross {
	case 1:
		return []domain.Signal{{
			Strategy: s.Name(),
			Side:     domain.SideBuy,
			Price:    bar.Close,
			Reason:   fmt.Sprintf("SMA %d crossed above SMA %d", s.shortPeriod, s.longPeriod),
		}}, nil
	case -1:
		return []domain.Signal{{
			Strategy: s.Name(),
			Side:     domain.SideSell,
			Price:    bar.Close,
			Reason:   fmt.Sprintf("SMA %d crossed below SMA %d", s.shortPeriod, s.longPeriod),
		}}, nil
	}
	return nil, nil
}

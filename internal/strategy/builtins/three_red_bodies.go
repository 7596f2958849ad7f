package builtins

import (
	"context"
	"fmt"
	"math"

	"callisto/internal/domain"
	"callisto/internal/indicator"
	"callisto/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*ThreeRedBodies)(nil)

// ThreeRedBodies is a short-term mean-reversion short. It enters when three
// consecutive bars close lower than the last while their candle bodies grow,
// and the inverse Fisher transform of the RSI sits below a threshold. The
// position is covered one bar after entry.
type ThreeRedBodies struct {
	rsiPeriod int
	threshold float64

	opens       []float64
	closes      []float64
	pendingExit bool
}

// NewThreeRedBodies creates the strategy with the given RSI period and
// inverse Fisher threshold. Entries require the transformed RSI to be below
// the threshold; values land in (-1, 1), so 0 means "RSI under 50".
func NewThreeRedBodies(rsiPeriod int, threshold float64) *ThreeRedBodies {
	return &ThreeRedBodies{
		rsiPeriod: rsiPeriod,
		threshold: threshold,
	}
}

// Name returns "three-red-bodies".
func (s *ThreeRedBodies) Name() string {
	return "three-red-bodies"
}

// Init validates the RSI period and clears any state from a previous run.
func (s *ThreeRedBodies) Init(_ context.Context) error {
	if s.rsiPeriod <= 0 {
		return fmt.Errorf("three-red-bodies: RSI period must be positive, got %d", s.rsiPeriod)
	}
	s.opens = s.opens[:0]
	s.closes = s.closes[:0]
	s.pendingExit = false
	return nil
}

// OnBar emits the cover for the previous bar's entry first, then checks the
// pattern on the bar just received. Both can fire on the same bar, in which
// case the cover precedes the new entry.
func (s *ThreeRedBodies) OnBar(_ context.Context, bar domain.Bar) ([]domain.Signal, error) {
	s.opens = append(s.opens, bar.Open)
	s.closes = append(s.closes, bar.Close)

	var sigs []domain.Signal
	if s.pendingExit {
		s.pendingExit = false
		sigs = append(sigs, domain.Signal{
			Strategy: s.Name(),
			Side:     domain.SideBuy,
			Price:    bar.Close,
			Reason:   "cover one bar after entry",
		})
	}

	if !s.pattern() {
		return sigs, nil
	}
	ift, ok, err := s.confirm()
	if err != nil {
		return nil, err
	}
	if !ok || ift >= s.threshold {
		return sigs, nil
	}

	s.pendingExit = true
	sigs = append(sigs, domain.Signal{
		Strategy: s.Name(),
		Side:     domain.SideSell,
		Price:    bar.Close,
		Reason: fmt.Sprintf("three red bodies with inverse Fisher RSI %.2f below %.2f",
			ift, s.threshold),
	})
	return sigs, nil
}

// pattern reports whether the last three bars closed successively lower with
// strictly growing bodies.
func (s *ThreeRedBodies) pattern() bool {
	n := len(s.closes)
	if n < 3 {
		return false
	}
	if !(s.closes[n-1] < s.closes[n-2] && s.closes[n-2] < s.closes[n-3]) {
		return false
	}
	b2 := math.Abs(s.closes[n-1] - s.opens[n-1])
	b1 := math.Abs(s.closes[n-2] - s.opens[n-2])
	b0 := math.Abs(s.closes[n-3] - s.opens[n-3])
	return b2 > b1 && b1 > b0
}

// confirm returns the latest inverse Fisher RSI value. ok is false while the
// series is still warming up.
func (s *ThreeRedBodies) confirm() (ift float64, ok bool, err error) {
	series, err := indicator.InverseFisherRSI(s.closes, s.rsiPeriod)
	if err != nil {
		return 0, false, err
	}
	last := series[len(series)-1]
	if math.IsNaN(last) {
		return 0, false, nil
	}
	return last, true, nil
}

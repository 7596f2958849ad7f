// Package screen periodically evaluates watchlist symbols against indicator
// thresholds and records the signals that trip.
package screen

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"callisto/internal/domain"
	"callisto/internal/indicator"
	"callisto/internal/relay"
	"callisto/internal/store"
)

// SMA periods compared for trend crosses.
const (
	smaShort = 20
	smaLong  = 50
)

// Config holds the screener thresholds.
type Config struct {
	Interval      time.Duration
	RSIPeriod     int
	RSIOversold   float64
	RSIOverbought float64
	// NearRangePct is how close to the 52-week low or high the last close
	// must be, as a percentage of the whole range.
	NearRangePct float64
}

// Publisher pushes screener signals to connected dashboards. *relay.Hub
// satisfies it.
type Publisher interface {
	Publish(v any) error
}

// Screener sweeps the watchlist on a fixed interval. A condition fires once
// when it trips and stays silent until it releases and trips again.
type Screener struct {
	bars      store.BarStore
	watchlist store.WatchlistStore
	signals   store.SignalStore
	pub       Publisher
	cfg       Config
	log       *slog.Logger

	// fired holds symbol/condition keys that already signalled and are
	// still tripped.
	fired map[string]bool
}

// New creates a Screener. pub may be nil; zero config fields get defaults.
func New(bars store.BarStore, watchlist store.WatchlistStore, signals store.SignalStore, pub Publisher, cfg Config, log *slog.Logger) *Screener {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = 14
	}
	if cfg.RSIOversold <= 0 {
		cfg.RSIOversold = 30
	}
	if cfg.RSIOverbought <= 0 {
		cfg.RSIOverbought = 70
	}
	if cfg.NearRangePct <= 0 {
		cfg.NearRangePct = 2
	}
	if log == nil {
		log = slog.Default()
	}
	return &Screener{
		bars:      bars,
		watchlist: watchlist,
		signals:   signals,
		pub:       pub,
		cfg:       cfg,
		log:       log.With("component", "screen"),
		fired:     make(map[string]bool),
	}
}

// Run sweeps immediately and then on every interval tick until ctx is
// cancelled. Sweep errors are logged, not fatal.
func (s *Screener) Run(ctx context.Context) error {
	s.log.Info("screener started",
		"interval", s.cfg.Interval,
		"rsiOversold", s.cfg.RSIOversold,
		"rsiOverbought", s.cfg.RSIOverbought)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error("sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// trip is one tripped condition. kind is stable across sweeps so repeat
// trips can be suppressed; the reason carries the current values.
type trip struct {
	kind string
	sig  domain.Signal
}

// Sweep evaluates every watchlist symbol once and returns the newly emitted
// signals.
func (s *Screener) Sweep(ctx context.Context) ([]domain.Signal, error) {
	symbols, err := s.watchlist.Symbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading watchlist: %w", err)
	}

	var emitted []domain.Signal
	tripped := make(map[string]bool)
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return emitted, err
		}
		bars, err := s.bars.ReadAllBars(ctx, domain.Timeframe1Day, symbol)
		if err != nil {
			s.log.Warn("reading bars", "symbol", symbol, "error", err)
			continue
		}
		for _, tr := range s.evaluate(symbol, bars) {
			key := symbol + "/" + tr.kind
			tripped[key] = true
			if s.fired[key] {
				continue
			}
			sig := tr.sig
			if err := s.signals.SaveSignal(ctx, &sig); err != nil {
				s.log.Warn("saving signal", "symbol", symbol, "error", err)
			}
			if s.pub != nil {
				if err := s.pub.Publish(relay.Event{Type: "signal", Data: sig}); err != nil {
					s.log.Warn("publishing signal", "symbol", symbol, "error", err)
				}
			}
			s.log.Info("signal",
				"symbol", sig.Symbol, "side", sig.Side, "price", sig.Price, "reason", sig.Reason)
			emitted = append(emitted, sig)
		}
	}
	s.fired = tripped
	return emitted, nil
}

// evaluate returns every condition currently tripped for the symbol.
// Symbols with too little history are skipped per condition.
func (s *Screener) evaluate(symbol string, bars []domain.Bar) []trip {
	if len(bars) == 0 {
		return nil
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	last := closes[len(closes)-1]
	now := time.Now().UTC()

	var trips []trip
	add := func(kind, side, reason string) {
		trips = append(trips, trip{kind: kind, sig: domain.Signal{
			Strategy:  "screen",
			Symbol:    symbol,
			Side:      side,
			Price:     last,
			Reason:    reason,
			CreatedAt: now,
		}})
	}

	if rsi, err := indicator.RSI(closes, s.cfg.RSIPeriod); err == nil {
		switch {
		case rsi <= s.cfg.RSIOversold:
			add("rsi-oversold", domain.SideBuy,
				fmt.Sprintf("RSI(%d) %.1f at or below %.0f", s.cfg.RSIPeriod, rsi, s.cfg.RSIOversold))
		case rsi >= s.cfg.RSIOverbought:
			add("rsi-overbought", domain.SideSell,
				fmt.Sprintf("RSI(%d) %.1f at or above %.0f", s.cfg.RSIPeriod, rsi, s.cfg.RSIOverbought))
		}
	}

	if _, _, pos, err := indicator.WeekRange52(bars); err == nil {
		frac := s.cfg.NearRangePct / 100
		switch {
		case pos <= frac:
			add("near-52w-low", domain.SideBuy,
				fmt.Sprintf("price within %.1f%% of 52-week low", s.cfg.NearRangePct))
		case pos >= 1-frac:
			add("near-52w-high", domain.SideSell,
				fmt.Sprintf("price within %.1f%% of 52-week high", s.cfg.NearRangePct))
		}
	}

	short, errS := indicator.RollingSMA(closes, smaShort)
	long, errL := indicator.RollingSMA(closes, smaLong)
	if errS == nil && errL == nil {
		i := len(closes) - 1
		switch {
		case indicator.Crossover(short, long, i):
			add("sma-cross-up", domain.SideBuy,
				fmt.Sprintf("SMA%d crossed above SMA%d", smaShort, smaLong))
		case indicator.Crossover(long, short, i):
			add("sma-cross-down", domain.SideSell,
				fmt.Sprintf("SMA%d crossed below SMA%d", smaShort, smaLong))
		}
	}

	return trips
}

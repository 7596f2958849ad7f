package screen

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"callisto/internal/domain"
	"callisto/internal/relay"
	"callisto/internal/store"
)

type fakePublisher struct {
	events []any
}

func (f *fakePublisher) Publish(v any) error {
	f.events = append(f.events, v)
	return nil
}

type fixture struct {
	bars    *store.ParquetStore
	sqlite  *store.SQLiteStore
	pub     *fakePublisher
	scr     *Screener
	nextDay time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	bars := store.NewParquetStore(t.TempDir())
	sq, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "screen.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	pub := &fakePublisher{}
	return &fixture{
		bars:    bars,
		sqlite:  sq,
		pub:     pub,
		scr:     New(bars, sq, sq, pub, cfg, nil),
		nextDay: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

// addCloses appends one daily bar per close. Lows sit well under the close so
// a falling series does not also pin the 52-week range position to zero.
func (f *fixture) addCloses(t *testing.T, symbol string, closes ...float64) {
	t.Helper()
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Time:   f.nextDay.Unix(),
			Open:   c,
			High:   c + 1,
			Low:    c - 5,
			Close:  c,
			Volume: 1000,
		}
		f.nextDay = f.nextDay.AddDate(0, 0, 1)
	}
	err := f.bars.WriteBars(context.Background(), domain.Timeframe1Day, map[string][]domain.Bar{symbol: bars})
	if err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
}

func ramp(from, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + step*float64(i)
	}
	return out
}

func TestSweepOversold(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	if err := f.sqlite.Add(ctx, "AAPL"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	// 30 straight losing days pin RSI to zero.
	f.addCloses(t, "AAPL", ramp(100, -1, 30)...)

	sigs, err := f.scr.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("emitted %d signals, want 1: %+v", len(sigs), sigs)
	}
	sig := sigs[0]
	if sig.Symbol != "AAPL" || sig.Side != domain.SideBuy || sig.Strategy != "screen" {
		t.Errorf("signal = %+v, want screen/AAPL/buy", sig)
	}
	if !strings.Contains(sig.Reason, "RSI") {
		t.Errorf("reason = %q, want an RSI reason", sig.Reason)
	}

	// Persisted and published.
	stored, err := f.sqlite.ListSignals(ctx, "screen", 10)
	if err != nil {
		t.Fatalf("ListSignals: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("stored %d signals, want 1", len(stored))
	}
	if len(f.pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(f.pub.events))
	}
	ev, ok := f.pub.events[0].(relay.Event)
	if !ok || ev.Type != "signal" {
		t.Errorf("published event = %+v, want relay.Event type signal", f.pub.events[0])
	}
}

func TestSweepSuppressesUntilRearmed(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	if err := f.sqlite.Add(ctx, "TSLA"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	sweep := func(wantSignals int, phase string) {
		t.Helper()
		sigs, err := f.scr.Sweep(ctx)
		if err != nil {
			t.Fatalf("%s: Sweep: %v", phase, err)
		}
		if len(sigs) != wantSignals {
			t.Fatalf("%s: emitted %d signals, want %d: %+v", phase, len(sigs), wantSignals, sigs)
		}
	}

	// Trip: 30 losing days.
	f.addCloses(t, "TSLA", ramp(100, -1, 30)...)
	sweep(1, "initial trip")

	// Still tripped, already signalled.
	sweep(0, "repeat sweep")

	// Release: ten winning days lift RSI back over the oversold line.
	f.addCloses(t, "TSLA", ramp(71.5, 0.5, 10)...)
	sweep(0, "released")

	// Trip again: twenty more losing days.
	f.addCloses(t, "TSLA", ramp(75, -1, 20)...)
	sweep(1, "re-trip")
}

func TestSweepOverboughtAndNearHigh(t *testing.T) {
	f := newFixture(t, Config{NearRangePct: 5})
	ctx := context.Background()

	if err := f.sqlite.Add(ctx, "NVDA"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	// 30 straight winning days: RSI pegged at 100, close near the range top.
	f.addCloses(t, "NVDA", ramp(70, 1, 30)...)

	sigs, err := f.scr.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(sigs) != 2 {
		t.Fatalf("emitted %d signals, want 2: %+v", len(sigs), sigs)
	}
	var sawRSI, sawRange bool
	for _, sig := range sigs {
		if sig.Side != domain.SideSell {
			t.Errorf("signal side = %q, want sell: %+v", sig.Side, sig)
		}
		if strings.Contains(sig.Reason, "RSI") {
			sawRSI = true
		}
		if strings.Contains(sig.Reason, "52-week high") {
			sawRange = true
		}
	}
	if !sawRSI || !sawRange {
		t.Errorf("signals = %+v, want one RSI and one 52-week-high reason", sigs)
	}
}

func TestEvaluateSMACross(t *testing.T) {
	f := newFixture(t, Config{})

	// Flat for 51 bars, then one surge: SMA20 steps over SMA50 on the last
	// bar.
	closes := append(ramp(100, 0, 51), 130)
	bars := make([]domain.Bar, len(closes))
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = domain.Bar{Time: day.Unix(), Open: c, High: c + 1, Low: c - 5, Close: c, Volume: 1}
		day = day.AddDate(0, 0, 1)
	}

	trips := f.scr.evaluate("SPY", bars)
	var cross *domain.Signal
	for i := range trips {
		if trips[i].kind == "sma-cross-up" {
			cross = &trips[i].sig
		}
	}
	if cross == nil {
		t.Fatalf("trips = %+v, want an sma-cross-up", trips)
	}
	if cross.Side != domain.SideBuy {
		t.Errorf("cross side = %q, want buy", cross.Side)
	}
	if cross.Price != 130 {
		t.Errorf("cross price = %v, want last close 130", cross.Price)
	}
}

func TestSweepSkipsThinHistory(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	// One symbol with no bars at all, one with too few for any indicator.
	if err := f.sqlite.Add(ctx, "EMPTY"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := f.sqlite.Add(ctx, "THIN"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	f.addCloses(t, "THIN", 10, 9)

	sigs, err := f.scr.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(sigs) != 0 {
		t.Errorf("emitted %d signals from thin history, want 0: %+v", len(sigs), sigs)
	}
}

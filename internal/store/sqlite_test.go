package store

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"callisto/internal/domain"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestSQLiteStoreOpenTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := s.Add(context.Background(), "AAPL"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen runs migrations again; they must be idempotent and the data
	// must survive.
	s, err = NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore (reopen): %v", err)
	}
	defer s.Close()
	symbols, err := s.Symbols(context.Background())
	if err != nil {
		t.Fatalf("Symbols: %v", err)
	}
	if !reflect.DeepEqual(symbols, []string{"AAPL"}) {
		t.Errorf("symbols after reopen = %v, want [AAPL]", symbols)
	}
}

func TestSQLiteWatchlist(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	for _, sym := range []string{"tsla", "AAPL", "NVDA"} {
		if err := s.Add(ctx, sym); err != nil {
			t.Fatalf("Add(%s): %v", sym, err)
		}
	}
	// Duplicate add is a no-op and must not reorder.
	if err := s.Add(ctx, "TSLA"); err != nil {
		t.Fatalf("Add duplicate: %v", err)
	}

	symbols, err := s.Symbols(ctx)
	if err != nil {
		t.Fatalf("Symbols: %v", err)
	}
	if !reflect.DeepEqual(symbols, []string{"TSLA", "AAPL", "NVDA"}) {
		t.Errorf("symbols = %v, want insertion order [TSLA AAPL NVDA]", symbols)
	}

	if err := s.Remove(ctx, "aapl"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	symbols, _ = s.Symbols(ctx)
	if !reflect.DeepEqual(symbols, []string{"TSLA", "NVDA"}) {
		t.Errorf("symbols after remove = %v, want [TSLA NVDA]", symbols)
	}

	// Add after remove appends at the end.
	if err := s.Add(ctx, "AAPL"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	symbols, _ = s.Symbols(ctx)
	if !reflect.DeepEqual(symbols, []string{"TSLA", "NVDA", "AAPL"}) {
		t.Errorf("symbols after re-add = %v, want [TSLA NVDA AAPL]", symbols)
	}
}

func TestSQLiteWatchlistReplace(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if err := s.Add(ctx, "AAPL"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Replace(ctx, []string{"nvda", "SPY", "NVDA", " ", "QQQ"}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	symbols, err := s.Symbols(ctx)
	if err != nil {
		t.Fatalf("Symbols: %v", err)
	}
	// Duplicates and blanks are dropped; first occurrence keeps its slot.
	if !reflect.DeepEqual(symbols, []string{"NVDA", "SPY", "QQQ"}) {
		t.Errorf("symbols = %v, want [NVDA SPY QQQ]", symbols)
	}
}

func TestSQLiteOrders(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	price := 1.25
	orders := []domain.Order{
		{
			Name:   "TSLA 250117C00300000",
			Symbol: "TSLA250117C00300000",
			Side:   domain.OrderSideBuy, Status: domain.OrderFilled,
			Filled: 2, TotalQty: 2, Price: &price,
			TimeInForce: "DAY",
			PlacedTime:  "01/10/2025 09:31:00 EST",
			FilledTime:  "01/10/2025 09:31:02 EST",
		},
		{
			Name:   "AAPL",
			Symbol: "AAPL",
			Side:   domain.OrderSideSell, Status: "Cancelled",
			Filled: 0, TotalQty: 10,
		},
	}
	if err := s.SaveOrders(ctx, orders); err != nil {
		t.Fatalf("SaveOrders: %v", err)
	}

	got, err := s.ListOrders(ctx, "")
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListOrders returned %d orders, want 2", len(got))
	}
	if got[0].Price == nil || *got[0].Price != 1.25 {
		t.Errorf("first order Price = %v, want 1.25", got[0].Price)
	}
	if got[1].Price != nil {
		t.Errorf("second order Price = %v, want nil", *got[1].Price)
	}

	got, err = s.ListOrders(ctx, "AAPL")
	if err != nil {
		t.Fatalf("ListOrders(AAPL): %v", err)
	}
	if len(got) != 1 || got[0].Symbol != "AAPL" {
		t.Errorf("ListOrders(AAPL) = %+v, want the single AAPL order", got)
	}
}

func TestSQLiteSignals(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	first := &domain.Signal{
		Strategy: "rsi-screen", Symbol: "AAPL", Side: domain.SideBuy,
		Price: 185.5, Reason: "RSI 27.1 below 30",
		CreatedAt: time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC),
	}
	if err := s.SaveSignal(ctx, first); err != nil {
		t.Fatalf("SaveSignal: %v", err)
	}
	if first.ID == 0 {
		t.Error("SaveSignal did not set ID")
	}

	second := &domain.Signal{Strategy: "sma-cross", Symbol: "TSLA", Side: domain.SideSell, Price: 310.0}
	if err := s.SaveSignal(ctx, second); err != nil {
		t.Fatalf("SaveSignal: %v", err)
	}
	if second.CreatedAt.IsZero() {
		t.Error("SaveSignal did not default CreatedAt")
	}

	got, err := s.ListSignals(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListSignals: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListSignals returned %d signals, want 2", len(got))
	}
	// Most recent first.
	if got[0].Symbol != "TSLA" || got[1].Symbol != "AAPL" {
		t.Errorf("signal order = [%s %s], want [TSLA AAPL]", got[0].Symbol, got[1].Symbol)
	}
	if !got[1].CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt round trip = %v, want %v", got[1].CreatedAt, first.CreatedAt)
	}

	got, err = s.ListSignals(ctx, "rsi-screen", 10)
	if err != nil {
		t.Fatalf("ListSignals(rsi-screen): %v", err)
	}
	if len(got) != 1 || got[0].Strategy != "rsi-screen" {
		t.Errorf("ListSignals(rsi-screen) = %+v, want the single rsi-screen signal", got)
	}

	got, err = s.ListSignals(ctx, "", 1)
	if err != nil {
		t.Fatalf("ListSignals limit: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("ListSignals with limit 1 returned %d signals", len(got))
	}
}

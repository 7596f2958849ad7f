// Package store persists and retrieves domain objects: bar history in
// Parquet files, watchlist, orders, and signals in SQLite.
package store

import (
	"context"
	"time"

	"callisto/internal/domain"
)

// BarStore persists and retrieves OHLCV bar history.
type BarStore interface {
	// WriteBars persists bars per symbol, merging with existing data.
	WriteBars(ctx context.Context, tf domain.Timeframe, bars map[string][]domain.Bar) error

	// ReadBars returns bars for the symbol within [start, end).
	ReadBars(ctx context.Context, tf domain.Timeframe, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ReadAllBars returns the full stored history for the symbol.
	ReadAllBars(ctx context.Context, tf domain.Timeframe, symbol string) ([]domain.Bar, error)

	// HasSymbol reports whether any bars are stored for the symbol.
	HasSymbol(ctx context.Context, tf domain.Timeframe, symbol string) (bool, error)

	// ListSymbols returns all distinct symbols stored for the timeframe.
	ListSymbols(ctx context.Context, tf domain.Timeframe) ([]string, error)

	// RemoveSymbol deletes all stored bars for the symbol.
	RemoveSymbol(ctx context.Context, tf domain.Timeframe, symbol string) error
}

// WatchlistStore persists the ordered set of tracked symbols.
type WatchlistStore interface {
	// Symbols returns the watchlist in stored order.
	Symbols(ctx context.Context) ([]string, error)

	// Add appends a symbol to the watchlist if not already present.
	Add(ctx context.Context, symbol string) error

	// Remove deletes a symbol from the watchlist.
	Remove(ctx context.Context, symbol string) error

	// Replace swaps the whole watchlist for the given symbols in one transaction.
	Replace(ctx context.Context, symbols []string) error
}

// OrderStore persists parsed broker order records.
type OrderStore interface {
	// SaveOrders inserts a batch of orders.
	SaveOrders(ctx context.Context, orders []domain.Order) error

	// ListOrders returns stored orders, filtered by symbol when non-empty.
	ListOrders(ctx context.Context, symbol string) ([]domain.Order, error)
}

// SignalStore persists trading signals emitted by the screener and strategies.
type SignalStore interface {
	// SaveSignal inserts a new signal and sets its ID.
	SaveSignal(ctx context.Context, sig *domain.Signal) error

	// ListSignals returns the most recent signals, filtered by strategy
	// when non-empty, up to limit.
	ListSignals(ctx context.Context, strategy string, limit int) ([]domain.Signal, error)
}

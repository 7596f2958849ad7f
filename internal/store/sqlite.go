package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"callisto/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ WatchlistStore = (*SQLiteStore)(nil)
var _ OrderStore = (*SQLiteStore)(nil)
var _ SignalStore = (*SQLiteStore)(nil)

// SQLiteStore implements WatchlistStore, OrderStore, and SignalStore backed
// by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, enables WAL,
// and runs schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrate creates tables if they do not exist. Statements are idempotent so
// migrate is safe to run on every open.
func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS watchlist (
			symbol   TEXT PRIMARY KEY,
			position INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			name          TEXT NOT NULL DEFAULT '',
			symbol        TEXT NOT NULL,
			side          TEXT NOT NULL,
			status        TEXT NOT NULL,
			filled        REAL NOT NULL DEFAULT 0,
			total_qty     REAL NOT NULL DEFAULT 0,
			price         REAL,
			avg_price     REAL,
			time_in_force TEXT NOT NULL DEFAULT '',
			placed_time   TEXT NOT NULL DEFAULT '',
			filled_time   TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol)`,
		`CREATE TABLE IF NOT EXISTS signals (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			strategy   TEXT NOT NULL,
			symbol     TEXT NOT NULL,
			side       TEXT NOT NULL,
			price      REAL NOT NULL,
			reason     TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_strategy ON signals(strategy, id)`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// WatchlistStore implementation
// ---------------------------------------------------------------------------

// Symbols returns the watchlist in stored order.
func (s *SQLiteStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol FROM watchlist ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// Add appends a symbol at the end of the watchlist. Adding an existing symbol
// is a no-op.
func (s *SQLiteStore) Add(ctx context.Context, symbol string) error {
	sym := normalizeSymbol(symbol)
	if sym == "" {
		return fmt.Errorf("empty symbol")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO watchlist (symbol, position)
		 SELECT ?, COALESCE(MAX(position), 0) + 1 FROM watchlist`, sym)
	return err
}

// Remove deletes a symbol from the watchlist. Removing an absent symbol is a
// no-op.
func (s *SQLiteStore) Remove(ctx context.Context, symbol string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM watchlist WHERE symbol = ?`, normalizeSymbol(symbol))
	return err
}

// Replace swaps the whole watchlist for the given symbols, preserving their
// order and dropping duplicates, in one transaction.
func (s *SQLiteStore) Replace(ctx context.Context, symbols []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM watchlist`); err != nil {
		return err
	}
	seen := make(map[string]bool, len(symbols))
	pos := 0
	for _, symbol := range symbols {
		sym := normalizeSymbol(symbol)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		pos++
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO watchlist (symbol, position) VALUES (?, ?)`, sym, pos); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ---------------------------------------------------------------------------
// OrderStore implementation
// ---------------------------------------------------------------------------

// SaveOrders inserts a batch of orders in one transaction.
func (s *SQLiteStore) SaveOrders(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO orders (name, symbol, side, status, filled, total_qty,
			price, avg_price, time_in_force, placed_time, filled_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, o := range orders {
		_, err := stmt.ExecContext(ctx, o.Name, o.Symbol, o.Side, o.Status,
			o.Filled, o.TotalQty, nullFloat(o.Price), nullFloat(o.AvgPrice),
			o.TimeInForce, o.PlacedTime, o.FilledTime)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListOrders returns stored orders in insertion order, filtered by symbol
// when non-empty.
func (s *SQLiteStore) ListOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	query := `SELECT name, symbol, side, status, filled, total_qty,
		price, avg_price, time_in_force, placed_time, filled_time FROM orders`
	var args []any
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		var price, avg sql.NullFloat64
		err := rows.Scan(&o.Name, &o.Symbol, &o.Side, &o.Status, &o.Filled,
			&o.TotalQty, &price, &avg, &o.TimeInForce, &o.PlacedTime, &o.FilledTime)
		if err != nil {
			return nil, err
		}
		if price.Valid {
			v := price.Float64
			o.Price = &v
		}
		if avg.Valid {
			v := avg.Float64
			o.AvgPrice = &v
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

// ---------------------------------------------------------------------------
// SignalStore implementation
// ---------------------------------------------------------------------------

// SaveSignal inserts a new signal and sets its ID and CreatedAt.
func (s *SQLiteStore) SaveSignal(ctx context.Context, sig *domain.Signal) error {
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO signals (strategy, symbol, side, price, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sig.Strategy, sig.Symbol, sig.Side, sig.Price, sig.Reason,
		sig.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	sig.ID = id
	return nil
}

// ListSignals returns the most recent signals first, filtered by strategy
// when non-empty, up to limit.
func (s *SQLiteStore) ListSignals(ctx context.Context, strategy string, limit int) ([]domain.Signal, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, strategy, symbol, side, price, reason, created_at FROM signals`
	var args []any
	if strategy != "" {
		query += ` WHERE strategy = ?`
		args = append(args, strategy)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []domain.Signal
	for rows.Next() {
		var sig domain.Signal
		var createdAt string
		err := rows.Scan(&sig.ID, &sig.Strategy, &sig.Symbol, &sig.Side,
			&sig.Price, &sig.Reason, &createdAt)
		if err != nil {
			return nil, err
		}
		sig.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing signal %d created_at: %w", sig.ID, err)
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"callisto/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record type (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for bar history.
type BarRecord struct {
	Symbol    string  `parquet:"symbol,snappy"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond),snappy"` // Unix ms
	Open      float64 `parquet:"open,snappy"`
	High      float64 `parquet:"high,snappy"`
	Low       float64 `parquet:"low,snappy"`
	Close     float64 `parquet:"close,snappy"`
	Volume    float64 `parquet:"volume,snappy"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by timeframe, symbol,
// and year. Each combination produces a separate file at:
//
//	<DataDir>/bars/<tf>/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteBars(_ context.Context, tf domain.Timeframe, bars map[string][]domain.Bar) error {
	for symbol, sb := range bars {
		if len(sb) == 0 {
			continue
		}
		sym := strings.ToUpper(symbol)

		// Group by year.
		groups := make(map[int][]BarRecord)
		for _, b := range sb {
			y := b.Timestamp().Year()
			groups[y] = append(groups[y], BarRecord{
				Symbol:    sym,
				Timestamp: b.Time * 1000,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    b.Volume,
			})
		}

		for year, records := range groups {
			path := s.barPath(tf, sym, year)

			// Read existing records to merge.
			existing, _ := readParquetFile[BarRecord](path)
			merged := mergeBarRecords(existing, records)

			if err := writeParquetFile(path, merged); err != nil {
				return fmt.Errorf("writing bars for %s/%d: %w", sym, year, err)
			}
		}
	}
	return nil
}

// ReadBars reads bar data for the given symbol within [start, end).
func (s *ParquetStore) ReadBars(_ context.Context, tf domain.Timeframe, symbol string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.Year(); year <= end.Year(); year++ {
		records, err := readParquetFile[BarRecord](s.barPath(tf, symbol, year))
		if err != nil {
			// File doesn't exist for this year. Skip.
			continue
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp)
			if !ts.Before(start) && ts.Before(end) {
				bars = append(bars, recordBar(r))
			}
		}
	}
	domain.SortBars(bars)
	return bars, nil
}

// ReadAllBars reads the full stored history for the symbol.
func (s *ParquetStore) ReadAllBars(_ context.Context, tf domain.Timeframe, symbol string) ([]domain.Bar, error) {
	dir := s.symbolDir(tf, symbol)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var bars []domain.Bar
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".parquet") {
			continue
		}
		records, err := readParquetFile[BarRecord](filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		for _, r := range records {
			bars = append(bars, recordBar(r))
		}
	}
	domain.SortBars(bars)
	return bars, nil
}

// HasSymbol reports whether any bar files exist for the symbol.
func (s *ParquetStore) HasSymbol(_ context.Context, tf domain.Timeframe, symbol string) (bool, error) {
	entries, err := os.ReadDir(s.symbolDir(tf, symbol))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".parquet") {
			return true, nil
		}
	}
	return false, nil
}

// ListSymbols lists all symbols that have bar data for the timeframe.
func (s *ParquetStore) ListSymbols(_ context.Context, tf domain.Timeframe) ([]string, error) {
	dir := filepath.Join(s.DataDir, "bars", tf.String())
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// RemoveSymbol deletes all stored bars for the symbol.
func (s *ParquetStore) RemoveSymbol(_ context.Context, tf domain.Timeframe, symbol string) error {
	return os.RemoveAll(s.symbolDir(tf, symbol))
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// symbolDir returns the directory holding a symbol's year files.
// Layout: <dataDir>/bars/<tf>/<SYMBOL>
func (s *ParquetStore) symbolDir(tf domain.Timeframe, symbol string) string {
	return filepath.Join(s.DataDir, "bars", tf.String(), strings.ToUpper(symbol))
}

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/bars/<tf>/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(tf domain.Timeframe, symbol string, year int) string {
	return filepath.Join(s.symbolDir(tf, symbol), strconv.Itoa(year)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func recordBar(r BarRecord) domain.Bar {
	return domain.Bar{
		Time:   r.Timestamp / 1000,
		Open:   r.Open,
		High:   r.High,
		Low:    r.Low,
		Close:  r.Close,
		Volume: r.Volume,
	}
}

// mergeBarRecords deduplicates bar records by timestamp. Existing records win
// on conflict. Results are sorted by timestamp.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}
	for _, r := range existing {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}

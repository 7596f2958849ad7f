package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"callisto/internal/domain"
)

// ImportMode selects how imported rows combine with existing bar files.
type ImportMode string

const (
	// ImportAppend merges imported rows with existing files.
	ImportAppend ImportMode = "append"
	// ImportReplace deletes existing files for a symbol before importing.
	ImportReplace ImportMode = "replace"
)

// ImportOptions configure a CSV archive import.
type ImportOptions struct {
	Mode       ImportMode
	LimitFiles int // 0 = no limit
}

// ImportStats summarizes a CSV archive import.
type ImportStats struct {
	Files int
	Bars  int
}

// csvFileRE matches the legacy downloader layout: <SYMBOL>_<interval>m.csv.
var csvFileRE = regexp.MustCompile(`^(.+)_(\d+)m\.csv$`)

// intervalTimeframes maps legacy interval minutes to timeframes.
var intervalTimeframes = map[int]domain.Timeframe{
	1:    domain.Timeframe1Min,
	5:    domain.Timeframe5Min,
	15:   domain.Timeframe15Min,
	60:   domain.Timeframe1Hour,
	1440: domain.Timeframe1Day,
}

// ImportCSV walks dir for legacy CSV archives named <SYMBOL>_<interval>m.csv
// and writes their bars into bs. Files that fail to parse are skipped with a
// warning; storage errors abort the import.
func ImportCSV(ctx context.Context, bs BarStore, dir string, opts ImportOptions, log *slog.Logger) (ImportStats, error) {
	if log == nil {
		log = slog.Default()
	}
	if opts.Mode == "" {
		opts.Mode = ImportAppend
	}

	var stats ImportStats
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		m := csvFileRE.FindStringSubmatch(d.Name())
		if m == nil {
			return nil
		}
		symbol := strings.ToUpper(m[1])
		interval, _ := strconv.Atoi(m[2])
		tf, ok := intervalTimeframes[interval]
		if !ok {
			log.Warn("skipping unknown interval", "path", path, "interval", interval)
			return nil
		}

		bars, err := readCSVBars(path)
		if err != nil {
			log.Warn("skipping unreadable file", "path", path, "error", err)
			return nil
		}
		if opts.Mode == ImportReplace {
			if err := bs.RemoveSymbol(ctx, tf, symbol); err != nil {
				return fmt.Errorf("removing %s %s: %w", symbol, tf, err)
			}
		}
		if err := bs.WriteBars(ctx, tf, map[string][]domain.Bar{symbol: bars}); err != nil {
			return fmt.Errorf("importing %s: %w", path, err)
		}
		log.Info("imported file", "path", path, "symbol", symbol, "timeframe", tf, "bars", len(bars))

		stats.Files++
		stats.Bars += len(bars)
		if opts.LimitFiles > 0 && stats.Files >= opts.LimitFiles {
			return fs.SkipAll
		}
		return nil
	})
	return stats, err
}

// readCSVBars parses one legacy CSV file. The header must name timestamp,
// open, high, low, close, and volume columns; extra columns are ignored.
func readCSVBars(path string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	tsCol := -1
	for _, name := range []string{"timestamp", "time", "date"} {
		if i, ok := cols[name]; ok {
			tsCol = i
			break
		}
	}
	if tsCol < 0 {
		return nil, fmt.Errorf("no timestamp column in header %v", header)
	}
	need := func(name string) (int, error) {
		i, ok := cols[name]
		if !ok {
			return 0, fmt.Errorf("missing column %q in header %v", name, header)
		}
		return i, nil
	}
	openCol, err := need("open")
	if err != nil {
		return nil, err
	}
	highCol, err := need("high")
	if err != nil {
		return nil, err
	}
	lowCol, err := need("low")
	if err != nil {
		return nil, err
	}
	closeCol, err := need("close")
	if err != nil {
		return nil, err
	}
	volCol, err := need("volume")
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		ts, err := parseCSVTime(rec[tsCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b := domain.Bar{Time: ts}
		for _, fld := range []struct {
			col int
			dst *float64
		}{
			{openCol, &b.Open},
			{highCol, &b.High},
			{lowCol, &b.Low},
			{closeCol, &b.Close},
			{volCol, &b.Volume},
		} {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[fld.col]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			*fld.dst = v
		}
		bars = append(bars, b)
	}
	return bars, nil
}

var csvTimeFormats = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// parseCSVTime accepts the timestamp formats legacy archives used: naive
// datetimes, RFC3339, bare dates, and integer epochs in seconds or millis.
func parseCSVTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	for _, layout := range csvTimeFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.Unix(), nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1_000_000_000_000 { // epoch milliseconds
			return n / 1000, nil
		}
		return n, nil
	}
	return 0, fmt.Errorf("unrecognized timestamp %q", s)
}

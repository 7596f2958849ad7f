// Package us downloads US equity bar history from the Alpaca market-data
// API into the local bar store.
package us

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"callisto/internal/domain"
	"callisto/internal/gather"
	"callisto/internal/store"
	"callisto/internal/util"
)

// barFetcher is the slice of the market-data source the gatherer uses.
type barFetcher interface {
	FetchMultiBars(ctx context.Context, symbols []string, tf domain.Timeframe, start, end time.Time) (map[string][]domain.Bar, error)
}

// HistoryConfig tunes the bulk download.
type HistoryConfig struct {
	// Years of history to fetch, counted back from End.
	Years int
	// ChunkDays is the span of a single API request.
	ChunkDays int
	// BatchSize is how many symbols share one API request.
	BatchSize int
	// MaxWorkers bounds concurrent batches.
	MaxWorkers int
	// RatePerSec is the shared request budget across all workers.
	RatePerSec float64
	// SymbolLimit caps the number of symbols fetched; 0 means no cap.
	SymbolLimit int
	// Timeframe of the bars; defaults to daily.
	Timeframe domain.Timeframe
	// RetryBaseDelay seeds the per-chunk retry backoff.
	RetryBaseDelay time.Duration
}

func (c *HistoryConfig) applyDefaults() {
	if c.Years <= 0 {
		c.Years = 5
	}
	if c.ChunkDays <= 0 {
		c.ChunkDays = 30
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 4
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 4
	}
	if c.Timeframe == "" {
		c.Timeframe = domain.Timeframe1Day
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 2 * time.Second
	}
}

// HistoryGatherer downloads bar history for a fixed symbol list in chunked,
// rate-limited batches. Reruns skip symbols that are already stored or were
// tried and came back empty, and a finished end date short-circuits the whole
// run.
type HistoryGatherer struct {
	fetcher     barFetcher
	store       store.BarStore
	symbols     []string
	end         time.Time
	progressDir string
	cfg         HistoryConfig
	limiter     *util.RateLimiter
	log         *slog.Logger
}

var _ gather.Gatherer = (*HistoryGatherer)(nil)

// NewHistoryGatherer creates a gatherer for the given symbols. end is the
// last day worth fetching, normally the latest finished trading day.
// progressDir is where the dot-file markers live.
func NewHistoryGatherer(fetcher barFetcher, s store.BarStore, symbols []string, end time.Time, progressDir string, cfg HistoryConfig) *HistoryGatherer {
	cfg.applyDefaults()
	return &HistoryGatherer{
		fetcher:     fetcher,
		store:       s,
		symbols:     symbols,
		end:         end,
		progressDir: progressDir,
		cfg:         cfg,
		limiter:     util.NewRateLimiter(cfg.RatePerSec, 1),
		log:         slog.Default().With("gatherer", "us-history"),
	}
}

// Name returns the gatherer identifier.
func (g *HistoryGatherer) Name() string { return "us-history" }

// Run downloads the configured history for every pending symbol.
func (g *HistoryGatherer) Run(ctx context.Context) error {
	endDate := g.end.Format("2006-01-02")
	fetchRange := gather.DateRange{
		Start: g.end.AddDate(-g.cfg.Years, 0, 0),
		End:   g.end.AddDate(0, 0, 1), // half-open just past the last day
	}

	tracker, err := newProgressTracker(g.progressDir)
	if err != nil {
		return fmt.Errorf("creating progress tracker: %w", err)
	}
	defer tracker.Close()

	if tracker.IsCompleted(endDate) {
		g.log.Info("already completed", "endDate", endDate)
		return nil
	}
	// A different previous end date means the tried-empty markers are stale.
	if last := tracker.LastCompleted(); last != "" && last != endDate {
		if err := tracker.Reset(); err != nil {
			return fmt.Errorf("resetting tracker: %w", err)
		}
	}

	remaining, err := g.pendingSymbols(ctx, tracker)
	if err != nil {
		return err
	}

	batches := batchSymbols(remaining, g.cfg.BatchSize)
	g.log.Info("starting history download",
		"endDate", endDate,
		"range", fmt.Sprintf("%s..%s", fetchRange.Start.Format("2006-01-02"), endDate),
		"timeframe", g.cfg.Timeframe,
		"symbols", len(remaining),
		"batches", len(batches),
	)
	if len(batches) == 0 {
		if err := tracker.MarkCompleted(endDate); err != nil {
			return fmt.Errorf("marking completed: %w", err)
		}
		g.log.Info("nothing to fetch")
		return nil
	}

	batchCh := make(chan []string, len(batches))
	for _, b := range batches {
		batchCh <- b
	}
	close(batchCh)

	var (
		wg        sync.WaitGroup
		totalBars atomic.Int64
		totalHits atomic.Int64
		totalMiss atomic.Int64
		failed    atomic.Int64
		runStart  = time.Now()
		done      atomic.Int64
	)

	workers := min(g.cfg.MaxWorkers, len(batches))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batchCh {
				if ctx.Err() != nil {
					return
				}
				hits, miss, bars, err := g.fetchBatch(ctx, tracker, batch, fetchRange)
				n := done.Add(1)
				if err != nil {
					failed.Add(1)
					g.log.Error("batch failed",
						"batch", fmt.Sprintf("%d/%d", n, len(batches)),
						"error", err,
					)
					continue
				}
				totalHits.Add(hits)
				totalMiss.Add(miss)
				totalBars.Add(bars)
				g.log.Info("batch done",
					"batch", fmt.Sprintf("%d/%d", n, len(batches)),
					"hits", hits,
					"empty", miss,
					"bars", bars,
					"elapsed", time.Since(runStart).Round(time.Second),
				)
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	// A failed batch leaves those symbols pending for the next run, so the
	// end date must not be marked finished.
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d batches failed", n, len(batches))
	}
	if err := tracker.MarkCompleted(endDate); err != nil {
		return fmt.Errorf("marking completed: %w", err)
	}

	g.log.Info("history download complete",
		"symbols", totalHits.Load(),
		"empty", totalMiss.Load(),
		"bars", totalBars.Load(),
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	return nil
}

// pendingSymbols filters the configured list down to symbols not yet stored
// and not known to be empty, applying the symbol cap.
func (g *HistoryGatherer) pendingSymbols(ctx context.Context, tracker *progressTracker) ([]string, error) {
	existing, err := g.store.ListSymbols(ctx, g.cfg.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("listing stored symbols: %w", err)
	}
	stored := make(map[string]struct{}, len(existing))
	for _, sym := range existing {
		stored[sym] = struct{}{}
	}

	var remaining []string
	for _, sym := range g.symbols {
		if _, ok := stored[sym]; ok {
			continue
		}
		if tracker.IsTriedEmpty(sym) {
			continue
		}
		remaining = append(remaining, sym)
	}
	if g.cfg.SymbolLimit > 0 && len(remaining) > g.cfg.SymbolLimit {
		remaining = remaining[:g.cfg.SymbolLimit]
	}
	return remaining, nil
}

// fetchBatch downloads the whole range for one symbol batch, chunk by chunk,
// and writes the merged result. It returns the hit and empty symbol counts
// and the number of bars written.
func (g *HistoryGatherer) fetchBatch(ctx context.Context, tracker *progressTracker, batch []string, r gather.DateRange) (hits, miss, bars int64, err error) {
	collected := make(map[string][]domain.Bar, len(batch))
	for _, chunk := range r.Chunks(g.cfg.ChunkDays) {
		if err := g.limiter.Wait(ctx); err != nil {
			return 0, 0, 0, err
		}
		var part map[string][]domain.Bar
		err := util.Retry(ctx, 3, g.cfg.RetryBaseDelay, func() error {
			var fetchErr error
			part, fetchErr = g.fetcher.FetchMultiBars(ctx, batch, g.cfg.Timeframe, chunk.Start, chunk.End)
			return fetchErr
		})
		if err != nil {
			return 0, 0, 0, fmt.Errorf("fetching %s..%s: %w",
				chunk.Start.Format("2006-01-02"), chunk.End.Format("2006-01-02"), err)
		}
		for sym, b := range part {
			collected[sym] = append(collected[sym], b...)
		}
	}

	// Chunk edges can overlap; dedup before writing.
	write := make(map[string][]domain.Bar, len(collected))
	for sym, b := range collected {
		if len(b) == 0 {
			continue
		}
		clean := domain.DedupSort(b)
		write[sym] = clean
		bars += int64(len(clean))
	}

	if len(write) > 0 {
		if err := g.store.WriteBars(ctx, g.cfg.Timeframe, write); err != nil {
			return 0, 0, 0, fmt.Errorf("writing bars: %w", err)
		}
	}

	var empty []string
	for _, sym := range batch {
		if len(write[sym]) == 0 {
			empty = append(empty, sym)
		}
	}
	if len(empty) > 0 {
		if err := tracker.MarkEmpty(empty); err != nil {
			return 0, 0, 0, fmt.Errorf("marking empty: %w", err)
		}
	}
	return int64(len(write)), int64(len(empty)), bars, nil
}

// batchSymbols splits symbols into groups of at most size.
func batchSymbols(symbols []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	var out [][]string
	for i := 0; i < len(symbols); i += size {
		out = append(out, symbols[i:min(i+size, len(symbols))])
	}
	return out
}

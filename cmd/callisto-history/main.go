package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"callisto/internal/config"
	"callisto/internal/domain"
	"callisto/internal/gather/us"
	"callisto/internal/source"
	"callisto/internal/store"
	"callisto/internal/util"
)

func loadConfig(path string) *config.Config {
	if path == "" {
		path = os.Getenv("CALLISTO_CONFIG")
	}
	if path == "" {
		path = "config/callisto.yaml"
		if _, err := os.Stat(path); err != nil {
			return config.Default()
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	return cfg
}

// resolveSymbols picks the symbol universe: an explicit CSV file, a comma
// list, or the server watchlist as the default.
func resolveSymbols(ctx context.Context, cfg *config.Config, list, file string) ([]string, error) {
	if file != "" {
		return us.LoadCSVSymbols(file)
	}
	if list != "" {
		var symbols []string
		for _, s := range strings.Split(list, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				symbols = append(symbols, s)
			}
		}
		return symbols, nil
	}

	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	defer db.Close()
	symbols, err := db.Symbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading watchlist: %w", err)
	}
	return symbols, nil
}

func main() {
	cfgPath := flag.String("config", "", "config file (default $CALLISTO_CONFIG, then config/callisto.yaml)")
	symbolList := flag.String("symbols", "", "comma-separated symbols (default: the server watchlist)")
	symbolFile := flag.String("symbols-file", "", "CSV file with a symbol column; overrides -symbols")
	years := flag.Int("years", 0, "years of history to fetch (default from config)")
	limit := flag.Int("limit", 0, "cap the number of symbols this run")
	workers := flag.Int("workers", 0, "concurrent batches (default from config)")
	tradableOnly := flag.Bool("tradable-only", false, "drop symbols not listed as active and tradable on Alpaca")
	flag.Parse()

	cfg := loadConfig(*cfgPath)

	// Dual logger: stdout + /tmp log file.
	logFileName := fmt.Sprintf("/tmp/callisto-history-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.Create(logFileName)
	if err != nil {
		log.Fatalf("creating log file: %v", err)
	}
	defer logFile.Close()

	logger := util.NewLoggerTo(io.MultiWriter(os.Stdout, logFile), cfg.Logging.Level, "text")
	util.SetDefault(logger)

	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		log.Fatalf("alpaca credentials missing; set APCA_API_KEY_ID and APCA_API_SECRET_KEY")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	symbols, err := resolveSymbols(ctx, cfg, *symbolList, *symbolFile)
	if err != nil {
		log.Fatalf("resolving symbols: %v", err)
	}
	if len(symbols) == 0 {
		log.Fatalf("no symbols to fetch; pass -symbols or add watchlist entries first")
	}

	tradingClient := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.APISecret,
		BaseURL:   cfg.Alpaca.BaseURL,
	})

	if *tradableOnly {
		before := len(symbols)
		symbols, err = us.TradableSymbols(tradingClient, symbols)
		if err != nil {
			log.Fatalf("filtering tradable symbols: %v", err)
		}
		slog.Info("filtered to tradable symbols", "before", before, "after", len(symbols))
	}

	end, err := us.LatestFinishedTradingDay(tradingClient)
	if err != nil {
		log.Fatalf("determining latest finished trading day: %v", err)
	}

	gcfg := us.HistoryConfig{
		Years:       cfg.History.Years,
		ChunkDays:   cfg.History.ChunkDays,
		BatchSize:   cfg.History.BatchSize,
		MaxWorkers:  cfg.History.MaxWorkers,
		RatePerSec:  cfg.History.RateLimitPerSec,
		SymbolLimit: cfg.History.SymbolLimit,
	}
	if *years > 0 {
		gcfg.Years = *years
	}
	if *limit > 0 {
		gcfg.SymbolLimit = *limit
	}
	if *workers > 0 {
		gcfg.MaxWorkers = *workers
	}

	fetcher := source.NewAlpacaSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, logger)
	bars := store.NewParquetStore(cfg.Storage.DataDir)
	progressDir := filepath.Join(cfg.Storage.DataDir, "bars", string(domain.Timeframe1Day))

	gatherer := us.NewHistoryGatherer(fetcher, bars, symbols, end, progressDir, gcfg)

	slog.Info("starting callisto-history",
		"logFile", logFileName,
		"symbols", len(symbols),
		"end", end.Format("2006-01-02"),
		"years", gcfg.Years)
	if err := gatherer.Run(ctx); err != nil {
		log.Fatalf("history download failed: %v", err)
	}
}

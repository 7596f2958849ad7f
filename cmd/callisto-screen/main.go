package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callisto/internal/config"
	"callisto/internal/screen"
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

func main() {
	cfgPath := flag.String("config", "", "config file (default $CALLISTO_CONFIG, then config/callisto.yaml)")
	interval := flag.Duration("interval", 0, "sweep interval (default from config)")
	once := flag.Bool("once", false, "run a single sweep, print the signals, and exit")
	flag.Parse()

	cfg := loadConfig(*cfgPath)

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening sqlite store: %v", err)
	}
	defer db.Close()

	scfg := screen.Config{
		Interval:      time.Duration(cfg.Screen.IntervalMinutes) * time.Minute,
		RSIOversold:   cfg.Screen.RSIOversold,
		RSIOverbought: cfg.Screen.RSIOverbought,
		NearRangePct:  cfg.Screen.NearRangePct,
	}
	if *interval > 0 {
		scfg.Interval = *interval
	}

	// Standalone daemon: signals go to the store only, no relay fan-out.
	scr := screen.New(bars, db, db, nil, scfg, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		signals, err := scr.Sweep(ctx)
		if err != nil {
			log.Fatalf("sweep failed: %v", err)
		}
		for _, sig := range signals {
			fmt.Printf("%-6s %-4s %10.2f  %s\n", sig.Symbol, sig.Side, sig.Price, sig.Reason)
		}
		logger.Info("sweep complete", "signals", len(signals))
		return
	}

	if err := scr.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("screener error: %v", err)
	}
}

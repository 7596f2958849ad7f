package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callisto/internal/config"
	"callisto/internal/httpapi"
	"callisto/internal/relay"
	"callisto/internal/screen"
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

func main() {
	cfgPath := flag.String("config", "", "config file (default $CALLISTO_CONFIG, then config/callisto.yaml)")
	withScreen := flag.Bool("screen", false, "run the watchlist screener inside the server")
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

	// Optional upstream fallback for symbols not yet stored locally.
	var upstream httpapi.BarFetcher
	if cfg.Alpaca.APIKey != "" {
		upstream = source.NewAlpacaSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, logger)
		logger.Info("alpaca upstream fallback enabled")
	} else {
		logger.Info("no alpaca credentials; serving stored bars only")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := relay.NewHub(logger)
	go hub.Run(ctx)

	if *withScreen || cfg.Screen.Enabled {
		scr := screen.New(bars, db, db, hub, screen.Config{
			Interval:      time.Duration(cfg.Screen.IntervalMinutes) * time.Minute,
			RSIOversold:   cfg.Screen.RSIOversold,
			RSIOverbought: cfg.Screen.RSIOverbought,
			NearRangePct:  cfg.Screen.NearRangePct,
		}, logger)
		go func() {
			if err := scr.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("screener stopped", "error", err)
			}
		}()
	}

	api := httpapi.NewServer(bars, db, upstream, hub, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("callisto server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

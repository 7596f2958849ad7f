package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"callisto/internal/config"
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
	dir := flag.String("dir", "", "directory holding legacy <SYMBOL>_<interval>m.csv archives")
	mode := flag.String("mode", "append", "append (merge with existing bars) or replace (delete first)")
	limitFiles := flag.Int("limit-files", 0, "stop after importing this many files (0 = all)")
	flag.Parse()

	if *dir == "" {
		log.Fatalf("-dir is required")
	}

	cfg := loadConfig(*cfgPath)

	logger := util.NewLogger(cfg.Logging.Level, "text")
	util.SetDefault(logger)

	var importMode store.ImportMode
	switch *mode {
	case "append":
		importMode = store.ImportAppend
	case "replace":
		importMode = store.ImportReplace
	default:
		log.Fatalf("unknown -mode %q, want append or replace", *mode)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	stats, err := store.ImportCSV(ctx, bars, *dir, store.ImportOptions{
		Mode:       importMode,
		LimitFiles: *limitFiles,
	}, logger)
	if err != nil {
		log.Fatalf("import failed after %d files: %v", stats.Files, err)
	}

	logger.Info("import complete", "files", stats.Files, "bars", stats.Bars, "dataDir", cfg.Storage.DataDir)
}

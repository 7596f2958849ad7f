package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"callisto/internal/config"
	"callisto/internal/domain"
	"callisto/internal/orders"
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
	file := flag.String("file", "", "broker order export CSV")
	schwab := flag.Bool("schwab", false, "input is a Schwab option export; convert before analysis")
	timezone := flag.String("timezone", "America/New_York", "timezone for Schwab timestamps")
	out := flag.String("out", "", "write the parsed orders as canonical CSV to this path")
	symbol := flag.String("symbol", "", "only analyze orders whose symbol starts with this prefix")
	scale := flag.Float64("scale", 1, "multiply order quantities, e.g. 0.5 for half-sized fills")
	by := flag.String("by", "symbol", "aggregate PnL per underlying symbol or per contract")
	save := flag.Bool("save", false, "persist the parsed orders to the sqlite store")
	flag.Parse()

	if *file == "" {
		log.Fatalf("-file is required")
	}

	cfg := loadConfig(*cfgPath)
	logger := util.NewLogger(cfg.Logging.Level, "text")
	util.SetDefault(logger)

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("opening %s: %v", *file, err)
	}
	defer f.Close()

	var parsed []domain.Order
	if *schwab {
		parsed, err = orders.ConvertSchwab(f, *timezone)
	} else {
		parsed, err = orders.ParseCSV(f)
	}
	if err != nil {
		log.Fatalf("parsing %s: %v", *file, err)
	}
	logger.Info("parsed orders", "file", *file, "orders", len(parsed))

	if *symbol != "" {
		parsed = orders.Filter(parsed, *symbol)
	}
	if *scale != 1 {
		parsed = orders.Scale(parsed, *scale)
	}

	if *out != "" {
		w, err := os.Create(*out)
		if err != nil {
			log.Fatalf("creating %s: %v", *out, err)
		}
		if err := orders.WriteCSV(w, parsed); err != nil {
			w.Close()
			log.Fatalf("writing %s: %v", *out, err)
		}
		if err := w.Close(); err != nil {
			log.Fatalf("closing %s: %v", *out, err)
		}
		logger.Info("wrote canonical CSV", "path", *out, "orders", len(parsed))
	}

	if *save {
		db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("opening sqlite store: %v", err)
		}
		if err := db.SaveOrders(context.Background(), parsed); err != nil {
			db.Close()
			log.Fatalf("saving orders: %v", err)
		}
		db.Close()
		logger.Info("saved orders", "db", cfg.Storage.SQLitePath, "orders", len(parsed))
	}

	pnl := orders.ContractPnL(parsed)
	if *by == "symbol" {
		pnl = orders.SymbolPnL(pnl)
	} else if *by != "contract" {
		log.Fatalf("unknown -by %q, want symbol or contract", *by)
	}

	if len(pnl) == 0 {
		fmt.Println("no filled orders with usable prices")
		return
	}
	fmt.Println(orders.RenderPnLChart(pnl))
}

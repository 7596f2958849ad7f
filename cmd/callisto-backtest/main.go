package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"callisto/internal/config"
	"callisto/internal/domain"
	"callisto/internal/store"
	"callisto/internal/strategy"
	"callisto/internal/strategy/builtins"
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
	stratName := flag.String("strategy", "", "strategy to run (see -list)")
	list := flag.Bool("list", false, "list registered strategies and exit")
	symbol := flag.String("symbol", "", "ticker to backtest")
	timeframe := flag.String("timeframe", "1d", "bar timeframe")
	startDate := flag.String("start", "", "first day YYYY-MM-DD (default one year before -end)")
	endDate := flag.String("end", "", "day after the last bar YYYY-MM-DD (default today)")
	cash := flag.Float64("cash", strategy.DefaultInitialCapital, "initial capital")
	flag.Parse()

	registry := strategy.NewRegistry()
	builtins.Register(registry)

	if *list {
		for _, name := range registry.List() {
			fmt.Println(name)
		}
		return
	}
	if *stratName == "" || *symbol == "" {
		log.Fatalf("-strategy and -symbol are required (use -list for strategy names)")
	}

	cfg := loadConfig(*cfgPath)
	logger := util.NewLogger(cfg.Logging.Level, "text")
	util.SetDefault(logger)

	tf, err := domain.ParseTimeframe(*timeframe)
	if err != nil {
		log.Fatalf("%v", err)
	}

	end := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1)
	if *endDate != "" {
		if end, err = time.Parse("2006-01-02", *endDate); err != nil {
			log.Fatalf("invalid -end: %v", err)
		}
	}
	start := end.AddDate(-1, 0, 0)
	if *startDate != "" {
		if start, err = time.Parse("2006-01-02", *startDate); err != nil {
			log.Fatalf("invalid -start: %v", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	bt := strategy.NewBacktester(bars, registry, filepath.Join(cfg.Storage.DataDir, "results"))

	params := strategy.RunParams{
		Strategy:       *stratName,
		Symbol:         *symbol,
		Timeframe:      tf,
		Start:          start,
		End:            end,
		InitialCapital: *cash,
	}
	res, err := bt.Run(ctx, params)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	path, err := bt.SaveResult(params, res)
	if err != nil {
		log.Fatalf("saving result: %v", err)
	}

	fmt.Printf("%s on %s (%s) %s..%s\n",
		*stratName, strings.ToUpper(*symbol), tf,
		start.Format("2006-01-02"), end.Format("2006-01-02"))
	fmt.Printf("  total return:  %+.2f%%\n", res.TotalReturn*100)
	fmt.Printf("  final equity:  %.2f\n", res.FinalEquity)
	fmt.Printf("  max drawdown:  %.2f%%\n", res.MaxDrawdown*100)
	fmt.Printf("  trades:        %d\n", res.TotalTrades)
	fmt.Printf("  win rate:      %.1f%%\n", res.WinRate*100)
	fmt.Printf("  profit factor: %.2f\n", res.ProfitFactor)
	fmt.Printf("  sharpe:        %.3f\n", res.SharpeRatio)
	fmt.Printf("result saved to %s\n", path)
}

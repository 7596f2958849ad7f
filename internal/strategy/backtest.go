package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"callisto/internal/domain"
	"callisto/internal/store"
)

// DefaultInitialCapital is used when RunParams.InitialCapital is zero.
const DefaultInitialCapital = 100_000

// BacktestResult holds the summary metrics produced by a backtest run.
type BacktestResult struct {
	TotalReturn  float64 `json:"total_return"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	TotalTrades  int     `json:"total_trades"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	FinalEquity  float64 `json:"final_equity"`
}

// RunParams describes a single backtest run: one strategy over one symbol's
// bars in [Start, End). A zero InitialCapital means DefaultInitialCapital.
type RunParams struct {
	Strategy       string
	Symbol         string
	Timeframe      domain.Timeframe
	Start          time.Time
	End            time.Time
	InitialCapital float64
}

// Backtester replays historical bar data through a strategy and computes
// performance metrics.
type Backtester struct {
	store      store.BarStore
	registry   *Registry
	resultsDir string
}

// NewBacktester creates a Backtester that reads bars from the given store,
// looks up strategies in the provided registry, and persists run results
// under resultsDir.
func NewBacktester(barStore store.BarStore, registry *Registry, resultsDir string) *Backtester {
	return &Backtester{
		store:      barStore,
		registry:   registry,
		resultsDir: resultsDir,
	}
}

// Run executes a backtest. Signals raised on a bar are filled at the next
// bar's open, so a signal on the final bar never executes. Equity is marked
// to market at every close.
func (bt *Backtester) Run(ctx context.Context, p RunParams) (*BacktestResult, error) {
	strat, ok := bt.registry.Get(p.Strategy)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", p.Strategy)
	}
	if p.InitialCapital <= 0 {
		p.InitialCapital = DefaultInitialCapital
	}
	symbol := strings.ToUpper(strings.TrimSpace(p.Symbol))

	bars, err := bt.store.ReadBars(ctx, p.Timeframe, symbol, p.Start, p.End)
	if err != nil {
		return nil, fmt.Errorf("read bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no %s bars stored for %s between %s and %s",
			p.Timeframe, symbol, p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"))
	}
	if err := strat.Init(ctx); err != nil {
		return nil, fmt.Errorf("init strategy %s: %w", p.Strategy, err)
	}

	acct := newAccount(p.InitialCapital)
	equity := make([]float64, 0, len(bars))
	var pending []domain.Signal
	for i, bar := range bars {
		for _, sig := range pending {
			acct.execute(sig.Side, bar.Open)
		}
		pending = pending[:0]

		sigs, err := strat.OnBar(ctx, bar)
		if err != nil {
			return nil, fmt.Errorf("strategy %s at %s: %w",
				p.Strategy, bar.Timestamp().Format(time.RFC3339), err)
		}
		if i < len(bars)-1 {
			pending = append(pending, sigs...)
		}
		equity = append(equity, acct.markToMarket(bar.Close))
	}
	return computeMetrics(p.InitialCapital, equity, acct.pnls), nil
}

// ---------------------------------------------------------------------------
// Simulated account

// account tracks cash and a single signed position. Every entry commits all
// available equity at the fill price, with fractional quantities allowed.
type account struct {
	cash  float64
	qty   float64 // positive long, negative short
	entry float64
	pnls  []float64 // realized profit per closed round trip
}

func newAccount(cash float64) *account {
	return &account{cash: cash}
}

// execute applies a signal at the given fill price. A buy covers an open
// short, or opens a long when flat. A sell closes an open long, or opens a
// short when flat. Signals that would add to an existing position are
// ignored.
func (a *account) execute(side string, price float64) {
	if price <= 0 {
		return
	}
	switch side {
	case domain.SideBuy:
		switch {
		case a.qty < 0:
			a.close(price)
		case a.qty == 0:
			a.open(price, 1)
		}
	case domain.SideSell:
		switch {
		case a.qty > 0:
			a.close(price)
		case a.qty == 0:
			a.open(price, -1)
		}
	}
}

func (a *account) open(price, direction float64) {
	qty := a.cash / price * direction
	if qty == 0 {
		return
	}
	a.cash -= qty * price
	a.qty = qty
	a.entry = price
}

func (a *account) close(price float64) {
	a.pnls = append(a.pnls, (price-a.entry)*a.qty)
	a.cash += a.qty * price
	a.qty = 0
	a.entry = 0
}

func (a *account) markToMarket(price float64) float64 {
	return a.cash + a.qty*price
}

// ---------------------------------------------------------------------------
// Metrics

func computeMetrics(initial float64, equity, pnls []float64) *BacktestResult {
	final := equity[len(equity)-1]
	res := &BacktestResult{
		TotalReturn: (final - initial) / initial,
		TotalTrades: len(pnls),
		FinalEquity: final,
	}

	peak := initial
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			if dd := (peak - e) / peak; dd > res.MaxDrawdown {
				res.MaxDrawdown = dd
			}
		}
	}

	wins := 0
	var grossProfit, grossLoss float64
	for _, p := range pnls {
		if p > 0 {
			wins++
			grossProfit += p
		} else {
			grossLoss -= p
		}
	}
	if len(pnls) > 0 {
		res.WinRate = float64(wins) / float64(len(pnls))
	}
	// Undefined without losing trades; reported as zero rather than infinity
	// so results stay JSON-encodable.
	if grossLoss > 0 {
		res.ProfitFactor = grossProfit / grossLoss
	}

	res.SharpeRatio = sharpe(equity)
	return res
}

// sharpe computes the per-bar Sharpe ratio of the equity curve, with no
// annualization and no risk-free rate.
func sharpe(equity []float64) float64 {
	var rets []float64
	for i := 1; i < len(equity); i++ {
		if equity[i-1] != 0 {
			rets = append(rets, equity[i]/equity[i-1]-1)
		}
	}
	if len(rets) < 2 {
		return 0
	}
	var sum float64
	for _, r := range rets {
		sum += r
	}
	mean := sum / float64(len(rets))
	var ss float64
	for _, r := range rets {
		d := r - mean
		ss += d * d
	}
	sd := math.Sqrt(ss / float64(len(rets)-1))
	if sd == 0 {
		return 0
	}
	return mean / sd
}

// ---------------------------------------------------------------------------
// Result persistence

// RunInfo is the JSON document persisted for each completed backtest run.
type RunInfo struct {
	StrategyName   string          `json:"strategy_name"`
	Ticker         string          `json:"ticker"`
	StartDate      string          `json:"start_date"`
	EndDate        string          `json:"end_date"`
	Timeframe      string          `json:"timeframe"`
	RunCount       int             `json:"run_count"`
	Timestamp      time.Time       `json:"timestamp"`
	InitialCapital float64         `json:"initial_capital"`
	Results        *BacktestResult `json:"results"`
}

// SaveResult writes a completed run to the results directory as
// <strategy>-<ticker>-<start>-<end>-<timeframe>-<n>.json, where n is the
// first unused run count starting at 1. It returns the path written.
func (bt *Backtester) SaveResult(p RunParams, res *BacktestResult) (string, error) {
	if err := os.MkdirAll(bt.resultsDir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}
	if p.InitialCapital <= 0 {
		p.InitialCapital = DefaultInitialCapital
	}
	symbol := strings.ToUpper(strings.TrimSpace(p.Symbol))
	base := fmt.Sprintf("%s-%s-%s-%s-%s",
		p.Strategy, symbol, p.Start.Format("20060102"), p.End.Format("20060102"), p.Timeframe)

	run := 1
	var path string
	for {
		path = filepath.Join(bt.resultsDir, fmt.Sprintf("%s-%d.json", base, run))
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("stat result file: %w", err)
		}
		run++
	}

	info := RunInfo{
		StrategyName:   p.Strategy,
		Ticker:         symbol,
		StartDate:      p.Start.Format("20060102"),
		EndDate:        p.End.Format("20060102"),
		Timeframe:      string(p.Timeframe),
		RunCount:       run,
		Timestamp:      time.Now().UTC(),
		InitialCapital: p.InitialCapital,
		Results:        res,
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write result: %w", err)
	}
	return path, nil
}

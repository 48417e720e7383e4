// Command backtest is a thin runner: load a JSON config (§6), seed the Bar
// Store from a local CSV directory or a synthetic source, drive a strategy
// through the Strategy Executor, and persist the resulting portfolio-value
// and orders artifacts. Adapted from the teacher's cmd/option-replay/main.go
// wiring shape (flag-parsed config path, provider selection, report
// writing), generalized from the teacher's fixed covered-call planner to a
// CLI that drives whatever Strategy implementation main.go registers.
package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumicore/backtest/internal/asset"
	"github.com/lumicore/backtest/internal/barstore"
	"github.com/lumicore/backtest/internal/calendar"
	"github.com/lumicore/backtest/internal/config"
	"github.com/lumicore/backtest/internal/datasource"
	"github.com/lumicore/backtest/internal/executor"
	"github.com/lumicore/backtest/internal/fillengine"
	"github.com/lumicore/backtest/internal/logger"
	"github.com/lumicore/backtest/internal/orders"
	"github.com/lumicore/backtest/internal/report"
	"github.com/lumicore/backtest/internal/strategy"
)

func main() {
	configPath := flag.String("config", "backtest.json", "path to JSON config")
	csvDir := flag.String("data-dir", "", "directory of per-symbol CSV bar files (falls back to synthetic data if empty)")
	symbolFlag := flag.String("symbol", "SPY", "underlying symbol to trade")
	verbosity := flag.String("verbosity", "info", "log verbosity: error|info|debug|trace")
	flag.Parse()

	logger.SetVerbosity(int(parseVerbosity(*verbosity)))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	logger.SetQuiet(cfg.BacktestingQuietLogs)

	start, err := time.Parse("2006-01-02", cfg.BacktestingStart)
	if err != nil {
		log.Fatalf("invalid backtesting_start: %v", err)
	}
	end, err := time.Parse("2006-01-02", cfg.BacktestingEnd)
	if err != nil {
		log.Fatalf("invalid backtesting_end: %v", err)
	}

	var cal *calendar.Calendar
	if cfg.Market == "US_FUTURES" {
		cal = calendar.NewUSFutures(start, end, nil)
	} else {
		cal, err = calendar.NewNYSE(start, end, nil)
		if err != nil {
			log.Fatalf("building calendar: %v", err)
		}
	}

	store := barstore.New(cfg.MaxStorageBytes)

	sym := asset.NewStock(*symbolFlag)
	usd := asset.NewStock("USD")
	var src datasource.Source = datasource.NewSyntheticSource(1, 100)
	if *csvDir != "" {
		src = datasource.NewCSVSource(*csvDir, src)
		logger.Infof("cmd/backtest: using CSV data from %s, falling back to synthetic", *csvDir)
	} else {
		logger.Infof("cmd/backtest: using synthetic data source")
	}
	sleeptime := cfg.ParsedSleeptime()
	if err := datasource.LoadInto(store, src, sym, usd, sleeptime, start.AddDate(0, -1, 0), end); err != nil {
		log.Fatalf("loading bars: %v", err)
	}

	book := orders.NewBook()
	fill := fillengine.NewEngine(book, store, feeSchedule(cfg))

	strat := &buyAndHold{symbol: sym, quote: usd}
	book.SetObserver(strategy.HookObserver{Hooks: strat})
	execCfg := executor.Config{
		StrategyID:           cfg.StrategyID,
		Sleeptime:            sleeptime,
		MinutesBeforeClosing: cfg.MinutesBeforeClosing,
		BacktestStart:        start,
		BacktestEnd:          end,
		IsBacktesting:        true,
		QuoteAsset:           usd,
		QuietLogs:            cfg.BacktestingQuietLogs,
	}
	exec := executor.New(execCfg, cal, fill, strat)

	ctx := strategy.NewContext(cfg.StrategyID, book, store, fill, usd, func() int64 { return exec.Now().Unix() })
	strat.ctx = ctx
	exec.MarkPortfolioValue = func() float64 {
		mark := func(a asset.Asset) (decimal.Decimal, bool) { return store.GetLastPrice(a, usd, exec.Now().Unix()) }
		v, _ := fill.Portfolio(cfg.StrategyID, decimal.NewFromFloat(cfg.Budget)).PortfolioValue(mark).Float64()
		return v
	}

	if err := exec.Run(cfg.Budget); err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ReportDir, 0755); err != nil {
		log.Printf("could not create report dir %s: %v", cfg.ReportDir, err)
	}
	run := &report.Run{StrategyID: cfg.StrategyID, Stats: exec.Stats, Orders: book.AllForStrategy(cfg.StrategyID)}
	if err := report.WriteJSON(run, cfg.ReportDir); err != nil {
		log.Printf("writing run.json: %v", err)
	}
	if err := report.WritePortfolioCSV(exec.Stats, cfg.ReportDir); err != nil {
		log.Printf("writing portfolio_value.csv: %v", err)
	}
	if err := report.WriteOrdersCSV(run.Orders, cfg.ReportDir); err != nil {
		log.Printf("writing orders.csv: %v", err)
	}
	logger.Infof("cmd/backtest: finished, wrote %d orders and %d snapshots to %s", len(run.Orders), len(exec.Stats), cfg.ReportDir)
}

func feeSchedule(cfg *config.Config) fillengine.Schedule {
	toSpec := func(row config.FeeRow) fillengine.FeeSpec {
		var spec fillengine.FeeSpec
		if row.Flat != nil {
			f := decimal.NewFromFloat(*row.Flat)
			spec.Flat = &f
		}
		if row.Percent != nil {
			p := decimal.NewFromFloat(*row.Percent)
			spec.Percent = &p
		}
		return spec
	}
	return fillengine.Schedule{Buy: toSpec(cfg.BuyTradingFees), Sell: toSpec(cfg.SellTradingFees)}
}

func parseVerbosity(s string) logger.Level {
	switch s {
	case "error":
		return logger.Error
	case "debug":
		return logger.Debug
	case "trace":
		return logger.Trace
	default:
		return logger.Info
	}
}

// buyAndHold is a minimal built-in strategy demonstrating the Strategy/
// Context wiring: buys on the first trading iteration and holds.
type buyAndHold struct {
	strategy.DefaultHooks
	ctx     *strategy.Context
	symbol  asset.Asset
	quote   asset.Asset
	bought  bool
}

func (b *buyAndHold) Initialize() {}

func (b *buyAndHold) OnTradingIteration() {
	if b.bought {
		return
	}
	o := b.ctx.CreateOrder(b.symbol, decimal.NewFromInt(10), orders.Buy, orders.Market)
	if _, err := b.ctx.SubmitOrder(o); err != nil {
		logger.Errorf("buyAndHold: submit failed: %v", err)
		return
	}
	b.bought = true
}

func (b *buyAndHold) ShouldContinue() bool { return true }

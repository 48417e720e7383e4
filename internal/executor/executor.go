// Package executor implements the Strategy Executor / Clock (C5): the
// virtual-clock loop that advances a strategy through a backtest, invoking
// lifecycle hooks in order and dispatching fill-engine ticks.
//
// Grounded on the teacher's engine/executor.go Run() loop (package engine),
// generalized from its single fixed-cadence option-replay loop into the
// calendar-aware, sleeptime-driven clock in §4.5 — including the
// market-closed fast-forward fix for the "infinite restart" failure mode
// the teacher's scheduler never had to handle (it only ever ran during
// market hours).
package executor

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumicore/backtest/internal/asset"
	"github.com/lumicore/backtest/internal/calendar"
	"github.com/lumicore/backtest/internal/fillengine"
	"github.com/lumicore/backtest/internal/lmerr"
	"github.com/lumicore/backtest/internal/logger"
)

// Strategy is the capability set exposed to user code (§6), reduced to the
// lifecycle hooks the executor drives directly. Order submission, position
// queries etc. are exposed separately via the Context passed to each hook
// (see strategy.Context in the sibling internal/strategy package); this
// interface only needs to be imported by the executor.
type Strategy interface {
	Initialize()
	OnTradingIteration()
	BeforeMarketOpens()
	BeforeMarketClosing()
	AfterMarketCloses()
	OnAbruptClosing()
	OnBotCrash(err error)
	ShouldContinue() bool
}

// StatsPoint is one checkpointed portfolio-value snapshot (§6 persisted
// artifacts).
type StatsPoint struct {
	Ts             int64
	PortfolioValue float64
}

// Config bundles the executor's per-run settings (§6's configuration
// table). IsBacktesting selects the error-propagation policy of §4.5/§7.
type Config struct {
	StrategyID           string
	Sleeptime            asset.Timestep
	MinutesBeforeClosing int
	BacktestStart        time.Time
	BacktestEnd          time.Time
	IsBacktesting        bool
	QuoteAsset           asset.Asset // settlement currency for option expiration (§4.4)
	QuietLogs            bool        // BACKTESTING_QUIET_LOGS; gates per-iteration Infof, not Progress
}

// Executor drives one strategy through a backtest from Config.BacktestStart
// to Config.BacktestEnd at its configured cadence.
type Executor struct {
	cfg      Config
	cal      *calendar.Calendar
	fill     *fillengine.Engine
	strategy Strategy

	now              int64
	lastBeforeOpenDay string
	lastBeforeCloseDay string
	lastAfterCloseDay  string
	lastExpirationDay  string
	iteration          int64
	Stats              []StatsPoint

	// MarkPortfolioValue, if set, is called once per tick to snapshot
	// portfolio value for Stats.
	MarkPortfolioValue func() float64
}

// New constructs an Executor bound to a calendar, fill engine, and
// strategy implementation.
func New(cfg Config, cal *calendar.Calendar, fill *fillengine.Engine, strategy Strategy) *Executor {
	return &Executor{
		cfg:      cfg,
		cal:      cal,
		fill:     fill,
		strategy: strategy,
		now:      cfg.BacktestStart.Unix(),
	}
}

// Now returns the current virtual clock time.
func (e *Executor) Now() time.Time { return time.Unix(e.now, 0).UTC() }

// Run drives the core loop from §4.5 until backtest_end or
// strategy.ShouldContinue() returns false. Exceptions from user strategy
// code during backtesting propagate (process terminates non-zero, per §7);
// during live trading they would be logged and swallowed instead — that
// branch is exercised via Config.IsBacktesting for symmetry with the
// source's IS_BACKTESTING_BROKER flag, even though this core only ever
// drives backtests.
func (e *Executor) Run(startingCash float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			crashErr := fmt.Errorf("%v", r)
			e.invokeHook("on_bot_crash", func() { e.strategy.OnBotCrash(crashErr) })
			e.invokeHook("on_abrupt_closing", e.strategy.OnAbruptClosing)
			if e.cfg.IsBacktesting {
				err = &lmerr.StrategyException{Backtesting: true, Hook: "run", Err: crashErr}
			} else {
				logger.Errorf("executor: recovered panic in live mode: %v", r)
			}
		}
	}()

	e.invokeHook("initialize", e.strategy.Initialize)

	end := e.cfg.BacktestEnd.Unix()
	cash := decimal.NewFromFloat(startingCash)
	for e.now < end && e.strategy.ShouldContinue() {
		e.fill.ProcessPendingOrders(e.cfg.StrategyID, e.now, cash)
		e.settleExpiredOptionsOnce()

		if e.cal.IsOpen(e.Now()) {
			e.fireBeforeMarketOpensOnce()
			e.invokeHook("on_trading_iteration", e.strategy.OnTradingIteration)
			e.fireBeforeMarketClosingIfDue()
			e.advanceBySleeptime()
		} else {
			delta, ok := e.cal.TimeToOpen(e.Now())
			if !ok {
				break
			}
			e.fireAfterMarketClosesOnce()
			e.now += int64(delta.Seconds())
			e.fireBeforeMarketOpensOnce()
		}
		e.checkpoint()
	}
	if e.now < end {
		// Loop exited early (no more sessions, or ShouldContinue() turned
		// false) rather than reaching backtest_end naturally.
		e.invokeHook("on_abrupt_closing", e.strategy.OnAbruptClosing)
	}
	return nil
}

// invokeHook calls a lifecycle hook, applying §4.5/§7's propagation policy:
// in backtest mode the panic/error is allowed to propagate out of Run (via
// the deferred recover above); in live mode it would be logged and
// execution would continue.
func (e *Executor) invokeHook(name string, fn func()) {
	if e.cfg.IsBacktesting {
		fn()
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("executor: %s panicked, continuing (live mode): %v", name, r)
		}
	}()
	fn()
}

func (e *Executor) fireBeforeMarketOpensOnce() {
	day := e.Now().Format("2006-01-02")
	if e.lastBeforeOpenDay == day {
		return
	}
	e.lastBeforeOpenDay = day
	e.invokeHook("before_market_opens", e.strategy.BeforeMarketOpens)
}

func (e *Executor) fireBeforeMarketClosingIfDue() {
	toClose, ok := e.cal.TimeToClose(e.Now())
	if !ok {
		return
	}
	day := e.Now().Format("2006-01-02")
	if e.lastBeforeCloseDay == day {
		return
	}
	if toClose.Minutes() <= float64(e.cfg.MinutesBeforeClosing) {
		e.lastBeforeCloseDay = day
		e.invokeHook("before_market_closes", e.strategy.BeforeMarketClosing)
	}
}

func (e *Executor) fireAfterMarketClosesOnce() {
	day := e.Now().Format("2006-01-02")
	if e.lastAfterCloseDay == day {
		return
	}
	e.lastAfterCloseDay = day
	e.invokeHook("after_market_closes", e.strategy.AfterMarketCloses)
}

// settleExpiredOptionsOnce auto-settles options expiring on a session's
// date, once, on the tick where that session closes (§4.4). A calendar
// with no session table (24/7) settles on the first tick of each UTC date.
func (e *Executor) settleExpiredOptionsOnce() {
	day := e.Now().Format("2006-01-02")
	if sess, ok := e.cal.CurrentOrNextSession(time.Unix(e.now-1, 0)); ok {
		if sess.MarketClose > e.now {
			return // the session containing or following now has not closed yet
		}
		day = sess.Date
	}
	if e.lastExpirationDay == day {
		return
	}
	e.lastExpirationDay = day
	e.fill.SettleExpiredOptions(e.cfg.StrategyID, e.now, day, e.cfg.QuoteAsset)
}

// advanceBySleeptime advances the virtual clock by the configured
// sleeptime, clamped so it never overshoots the current session's close
// (§4.5). If time_to_close is already 0 or negative, advance 1 second to
// avoid an infinite loop.
func (e *Executor) advanceBySleeptime() {
	step := e.cfg.Sleeptime.Duration()
	if step <= 0 {
		step = time.Second
	}
	toClose, ok := e.cal.TimeToClose(e.Now())
	if !ok {
		// No session close to clamp against (24/7 calendar).
		e.now += int64(step.Seconds())
		return
	}
	if toClose <= 0 {
		e.now++
		return
	}
	if step > toClose {
		e.now += int64(toClose.Seconds())
		return
	}
	e.now += int64(step.Seconds())
}

// checkpoint records a portfolio-value snapshot via the caller-supplied
// MarkPortfolioValue hook, if set, so cmd/backtest can persist the per-run
// CSV (§6) without this package depending on a specific DataSource. It also
// advances the iteration counter and, in quiet mode, prints the progress
// indicator that replaces the per-iteration Infof quiet mode suppresses.
func (e *Executor) checkpoint() {
	e.iteration++
	if e.cfg.QuietLogs {
		logger.Progress("%s iteration=%d", e.Now().Format("2006-01-02 15:04:05"), e.iteration)
	}
	if e.MarkPortfolioValue == nil {
		return
	}
	e.Stats = append(e.Stats, StatsPoint{Ts: e.now, PortfolioValue: e.MarkPortfolioValue()})
}


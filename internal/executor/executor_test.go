package executor

import (
	"testing"
	"time"

	"github.com/lumicore/backtest/internal/asset"
	"github.com/lumicore/backtest/internal/barstore"
	"github.com/lumicore/backtest/internal/calendar"
	"github.com/lumicore/backtest/internal/fillengine"
	"github.com/lumicore/backtest/internal/orders"
)

type fakeStrategy struct {
	iterations int
	opens      int
	closes     int
}

func (f *fakeStrategy) Initialize()           {}
func (f *fakeStrategy) OnTradingIteration()    { f.iterations++ }
func (f *fakeStrategy) BeforeMarketOpens()     { f.opens++ }
func (f *fakeStrategy) BeforeMarketClosing()   { f.closes++ }
func (f *fakeStrategy) AfterMarketCloses()     {}
func (f *fakeStrategy) OnAbruptClosing()       {}
func (f *fakeStrategy) OnBotCrash(err error)   {}
func (f *fakeStrategy) ShouldContinue() bool   { return true }

func TestExecutorSkipsOvernightInOneJump(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	day1 := time.Date(2024, 1, 3, 0, 0, 0, 0, loc)
	day2 := time.Date(2024, 1, 4, 0, 0, 0, 0, loc)
	cal, err := calendar.NewNYSE(day1, day2, nil)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}

	book := orders.NewBook()
	store := barstore.New(0)
	fill := fillengine.NewEngine(book, store, fillengine.Schedule{})

	sleeptime, _ := asset.ParseTimestep("1H")
	cfg := Config{
		StrategyID:           "strat1",
		Sleeptime:            sleeptime,
		MinutesBeforeClosing: 15,
		BacktestStart:        time.Date(2024, 1, 3, 9, 0, 0, 0, loc),
		BacktestEnd:          time.Date(2024, 1, 4, 10, 0, 0, 0, loc),
		IsBacktesting:        true,
	}
	strat := &fakeStrategy{}
	exec := New(cfg, cal, fill, strat)

	ticks := 0
	for exec.now < cfg.BacktestEnd.Unix() && ticks < 500 {
		if cal.IsOpen(exec.Now()) {
			exec.advanceBySleeptime()
		} else {
			delta, ok := cal.TimeToOpen(exec.Now())
			if !ok {
				break
			}
			exec.now += int64(delta.Seconds())
		}
		ticks++
	}

	if ticks > 30 {
		t.Fatalf("expected overnight gap to be a single jump, got %d ticks", ticks)
	}
}

func TestExecutorClampsSleeptimeToClose(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	day := time.Date(2024, 1, 3, 0, 0, 0, 0, loc)
	cal, err := calendar.NewNYSE(day, day, nil)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	book := orders.NewBook()
	store := barstore.New(0)
	fill := fillengine.NewEngine(book, store, fillengine.Schedule{})

	sleeptime, _ := asset.ParseTimestep("1H")
	cfg := Config{
		StrategyID:    "strat1",
		Sleeptime:     sleeptime,
		BacktestStart: time.Date(2024, 1, 3, 15, 30, 0, 0, loc),
		BacktestEnd:   time.Date(2024, 1, 3, 17, 0, 0, 0, loc),
		IsBacktesting: true,
	}
	exec := New(cfg, cal, fill, &fakeStrategy{})

	before := exec.now
	exec.advanceBySleeptime()
	closeTs := time.Date(2024, 1, 3, 16, 0, 0, 0, loc).Unix()
	if exec.now != closeTs {
		t.Fatalf("expected clamp to market close %d, got %d (before=%d)", closeTs, exec.now, before)
	}
}

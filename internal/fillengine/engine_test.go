package fillengine

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/lumicore/backtest/internal/asset"
	"github.com/lumicore/backtest/internal/barstore"
	"github.com/lumicore/backtest/internal/orders"
)

func decf(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func newTestEngine() (*Engine, *orders.Book, *barstore.Store) {
	book := orders.NewBook()
	store := barstore.New(0)
	eng := NewEngine(book, store, Schedule{})
	eng.BarTimeshiftSeconds = 0 // tests seed bars directly at the fill tick
	return eng, book, store
}

// S1. Equity buy-and-hold one day.
func TestScenarioEquityBuyAndHold(t *testing.T) {
	eng, book, store := newTestEngine()
	spy := asset.NewStock("SPY")
	usd := asset.NewStock("USD")
	now := int64(0)
	store.Seed(spy, usd, asset.OneMinute, []asset.Bar{
		{Ts: now, Open: decf(100), High: decf(101), Low: decf(99), Close: decf(100.5), Volume: decf(1000)},
	})

	o := orders.NewOrder("strat1", spy, usd, decimal.NewFromInt(10), orders.Buy, orders.Market)
	if _, err := book.Submit(orders.CompositeSpec{Parent: o}, now); err != nil {
		t.Fatalf("submit: %v", err)
	}
	eng.ProcessPendingOrders("strat1", now, decf(100000))

	p := eng.Portfolio("strat1", decf(100000))
	if !p.Cash.Equal(decf(99000)) {
		t.Fatalf("expected cash 99000, got %v", p.Cash)
	}
	pos := p.Position(spy)
	if pos == nil || !pos.Quantity.Equal(decimal.NewFromInt(10)) || !pos.AvgFillPrice.Equal(decf(100)) {
		t.Fatalf("expected position 10 SPY @ 100, got %+v", pos)
	}
	val := p.PortfolioValue(func(a asset.Asset) (decimal.Decimal, bool) { return decf(100), true })
	if !val.Equal(decf(100000)) {
		t.Fatalf("expected portfolio value 100000, got %v", val)
	}
}

// S3. OCO one-cancels-other.
func TestScenarioOCO(t *testing.T) {
	eng, book, store := newTestEngine()
	aapl := asset.NewStock("AAPL")
	usd := asset.NewStock("USD")
	now := int64(0)
	store.Seed(aapl, usd, asset.OneMinute, []asset.Bar{
		{Ts: now, Open: decf(148), High: decf(151), Low: decf(147.5), Close: decf(149.5), Volume: decf(1000)},
	})

	qty := decimal.NewFromInt(5)
	stopPx := decf(150)
	limitPx := decf(200)
	stop := orders.NewOrder("strat1", aapl, usd, qty, orders.Sell, orders.Stop)
	stop.Prices.Stop = &stopPx
	limit := orders.NewOrder("strat1", aapl, usd, qty, orders.Sell, orders.Limit)
	limit.Prices.Limit = &limitPx
	parent := orders.NewOrder("strat1", aapl, usd, qty, orders.Sell, orders.Market)
	parent.Class = orders.OCO

	if _, err := book.Submit(orders.CompositeSpec{Parent: parent, Children: []*orders.Order{stop, limit}}, now); err != nil {
		t.Fatalf("submit OCO: %v", err)
	}

	eng.Portfolio("strat1", decf(100000)).applyFill(aapl, "seed", qty, decf(140))

	eng.ProcessPendingOrders("strat1", now, decf(100000))

	if stop.Status != orders.Filled {
		t.Fatalf("expected stop FILLED, got %v", stop.Status)
	}
	if limit.Status != orders.Canceled {
		t.Fatalf("expected limit CANCELED, got %v", limit.Status)
	}
	// Per the §4.4 fill-rule table, SELL STOP gaps (stop >= bar.open) fill
	// at bar.open rather than the stop price itself; here open=148 is
	// already through the 150 stop.
	if !stop.AvgFillPrice.Equal(decf(148)) {
		t.Fatalf("expected gap fill at bar open 148, got %v", stop.AvgFillPrice)
	}
	p := eng.Portfolio("strat1", decf(100000))
	if pos := p.Position(aapl); pos != nil {
		t.Fatalf("expected flat position after stop sell, got %+v", pos)
	}
}

// S4. Option expiration cash settlement.
func TestScenarioOptionExpiration(t *testing.T) {
	eng, _, store := newTestEngine()
	spy := asset.NewStock("SPY")
	usd := asset.NewStock("USD")
	now := int64(0)
	store.Seed(spy, usd, asset.OneMinute, []asset.Bar{
		{Ts: now, Open: decf(410), High: decf(411), Low: decf(409), Close: decf(410), Volume: decf(1000)},
	})
	call := asset.NewOption("SPY", "2024-01-19", 400, asset.Call)

	p := eng.Portfolio("strat1", decf(100000))
	p.applyFill(call, "seed", decimal.NewFromInt(1), decf(5))

	eng.SettleExpiredOptions("strat1", now, "2024-01-19", usd)

	if got := p.Position(call); got != nil {
		t.Fatalf("expected position removed after settlement, got %+v", got)
	}
	want := decf(100000).Add(decf(1000))
	if !p.Cash.Equal(want) {
		t.Fatalf("expected cash %v after $1000 settlement credit, got %v", want, p.Cash)
	}
}

// S5. LIMIT gap-through.
func TestScenarioLimitGapThrough(t *testing.T) {
	eng, book, store := newTestEngine()
	xyz := asset.NewStock("XYZ")
	usd := asset.NewStock("USD")
	now := int64(0)
	store.Seed(xyz, usd, asset.OneMinute, []asset.Bar{
		{Ts: now, Open: decf(112), High: decf(113), Low: decf(111), Close: decf(112.5), Volume: decf(1000)},
	})

	limitPx := decf(110)
	o := orders.NewOrder("strat1", xyz, usd, decimal.NewFromInt(1), orders.Sell, orders.Limit)
	o.Prices.Limit = &limitPx
	if _, err := book.Submit(orders.CompositeSpec{Parent: o}, now); err != nil {
		t.Fatalf("submit: %v", err)
	}
	eng.ProcessPendingOrders("strat1", now, decf(100000))

	if o.Status != orders.Filled {
		t.Fatalf("expected filled, got %v", o.Status)
	}
	if !o.AvgFillPrice.Equal(decf(112)) {
		t.Fatalf("expected gap fill at bar open 112, got %v", o.AvgFillPrice)
	}
}

// S2. MES futures single trade with mark-to-market.
func TestScenarioFuturesMarginAndMTM(t *testing.T) {
	eng, book, store := newTestEngine()
	mes := asset.NewFuture("MES", "2024-03-15")
	usd := asset.NewStock("USD")
	eng.MarginPerContract["MES"] = decf(1300)
	flatFee := decf(0.50)
	eng.Fees = Schedule{Buy: FeeSpec{Flat: &flatFee}, Sell: FeeSpec{Flat: &flatFee}}

	now := int64(0)
	store.Seed(mes, usd, asset.OneMinute, []asset.Bar{
		{Ts: now, Open: decf(4700), High: decf(4701), Low: decf(4699), Close: decf(4700), Volume: decf(100)},
	})
	buy := orders.NewOrder("strat1", mes, usd, decimal.NewFromInt(1), orders.Buy, orders.Market)
	if _, err := book.Submit(orders.CompositeSpec{Parent: buy}, now); err != nil {
		t.Fatalf("submit buy: %v", err)
	}
	eng.ProcessPendingOrders("strat1", now, decf(100000))

	p := eng.Portfolio("strat1", decf(100000))
	wantCash := decf(100000).Sub(decf(1300)).Sub(flatFee)
	if !p.Cash.Equal(wantCash) {
		t.Fatalf("expected cash %v after open, got %v", wantCash, p.Cash)
	}

	markAt4705 := func(asset.Asset) (decimal.Decimal, bool) { return decf(4705), true }
	val := p.PortfolioValue(markAt4705)
	wantVal := decf(100024.50)
	if !val.Equal(wantVal) {
		t.Fatalf("expected portfolio value %v with unrealized PnL, got %v", wantVal, val)
	}

	now2 := int64(2 * 3600)
	store.Seed(mes, usd, asset.OneMinute, []asset.Bar{
		{Ts: now2, Open: decf(4706), High: decf(4707), Low: decf(4705), Close: decf(4706), Volume: decf(100)},
	})
	sell := orders.NewOrder("strat1", mes, usd, decimal.NewFromInt(1), orders.Sell, orders.Market)
	if _, err := book.Submit(orders.CompositeSpec{Parent: sell}, now2); err != nil {
		t.Fatalf("submit sell: %v", err)
	}
	eng.ProcessPendingOrders("strat1", now2, decf(100000))

	wantFinalCash := decf(100029.00)
	if !p.Cash.Equal(wantFinalCash) {
		t.Fatalf("expected final cash %v, got %v", wantFinalCash, p.Cash)
	}
	if pos := p.Position(mes); pos != nil {
		t.Fatalf("expected flat futures position, got %+v", pos)
	}
}

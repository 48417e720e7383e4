package strategy

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/lumicore/backtest/internal/asset"
	"github.com/lumicore/backtest/internal/barstore"
	"github.com/lumicore/backtest/internal/fillengine"
	"github.com/lumicore/backtest/internal/orders"
)

func newTestContext() (*Context, *orders.Book) {
	book := orders.NewBook()
	store := barstore.New(0)
	fill := fillengine.NewEngine(book, store, fillengine.Schedule{})
	usd := asset.NewStock("USD")
	ctx := NewContext("strat1", book, store, fill, usd, func() int64 { return 0 })
	return ctx, book
}

// TestSubmitMultilegRelativeStrike exercises a two-leg vertical spread where
// the short leg's strike is expressed relative to the long leg's resolved
// strike ({LEG1.STRIKE}+10), mirroring a real strategy's call spread
// construction rather than only the order-book test harness.
func TestSubmitMultilegRelativeStrike(t *testing.T) {
	ctx, book := newTestContext()
	spy := asset.NewStock("SPY")
	longLeg := asset.NewOption("SPY", "2024-06-21", 400, asset.Call)
	ctx.Store.Seed(longLeg, ctx.Quote, asset.OneMinute, []asset.Bar{
		{Ts: 0, Open: decimal.NewFromFloat(5), High: decimal.NewFromFloat(5), Low: decimal.NewFromFloat(5), Close: decimal.NewFromFloat(5)},
	})

	parent := orders.NewOrder("strat1", spy, ctx.Quote, decimal.Zero, orders.Buy, orders.Market)
	legs := []LegSpec{
		{Underlying: spy, Expiration: "2024-06-21", Right: asset.Call, Side: orders.Buy, Quantity: decimal.NewFromInt(1), Strike: 400},
		{Underlying: spy, Expiration: "2024-06-21", Right: asset.Call, Side: orders.Sell, Quantity: decimal.NewFromInt(1), StrikeExpr: "{LEG1.STRIKE}+10"},
	}

	id, err := ctx.SubmitMultileg(parent, legs)
	if err != nil {
		t.Fatalf("submit multileg: %v", err)
	}
	p, ok := book.Get(id)
	if !ok {
		t.Fatalf("parent not found")
	}
	if len(p.ChildIDs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(p.ChildIDs))
	}
	short, _ := book.Get(p.ChildIDs[1])
	if short.Asset.Strike != 410 {
		t.Fatalf("expected short leg strike 410 resolved from {LEG1.STRIKE}+10, got %v", short.Asset.Strike)
	}
}

// TestSubmitMultilegDeltaStrike exercises a leg whose strike is a DELTA:
// target instead of a relative-strike expression.
func TestSubmitMultilegDeltaStrike(t *testing.T) {
	ctx, book := newTestContext()
	spy := asset.NewStock("SPY")
	parent := orders.NewOrder("strat1", spy, ctx.Quote, decimal.Zero, orders.Sell, orders.Market)
	legs := []LegSpec{
		{
			Underlying: spy, Expiration: "2024-06-21", Right: asset.Call, Side: orders.Sell, Quantity: decimal.NewFromInt(1),
			StrikeExpr: "DELTA:0.30",
			Delta: &DeltaParams{Spot: 400, ATMStrike: 400, DaysToExpiry: 30, RiskFreeRate: 0.02, ATMCall: 8, ATMPut: 7.5},
		},
	}

	id, err := ctx.SubmitMultileg(parent, legs)
	if err != nil {
		t.Fatalf("submit multileg: %v", err)
	}
	p, _ := book.Get(id)
	leg, _ := book.Get(p.ChildIDs[0])
	if leg.Asset.Strike <= 0 {
		t.Fatalf("expected a resolved positive strike, got %v", leg.Asset.Strike)
	}
}

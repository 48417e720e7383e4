package orders

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/lumicore/backtest/internal/asset"
	"github.com/lumicore/backtest/internal/testutil"
)

func TestEvaluateLegExpressionGolden(t *testing.T) {
	legs := []ResolvedLeg{{Strike: 100, OpenPremium: 2.5}}

	sum, err := EvaluateLegExpression("{LEG1.STRIKE}+{LEG1.PREMIUM}", legs)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	doubled, err := EvaluateLegExpression("{LEG1.PREMIUM}*2", legs)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	testutil.CompareWithGolden(t, "leg_expressions", []float64{sum, doubled})
}

func TestSubmitSimpleOrder(t *testing.T) {
	book := NewBook()
	spy := asset.NewStock("SPY")
	o := NewOrder("strat1", spy, asset.NewStock("USD"), decimal.NewFromInt(10), Buy, Market)
	id, err := book.Submit(CompositeSpec{Parent: o}, 0)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	got, ok := book.Get(id)
	if !ok || got.Status != Submitted {
		t.Fatalf("expected SUBMITTED, got %v ok=%v", got.Status, ok)
	}
}

func TestOCOMutualCancellation(t *testing.T) {
	book := NewBook()
	spy := asset.NewStock("SPY")
	usd := asset.NewStock("USD")
	qty := decimal.NewFromInt(5)

	stop := NewOrder("strat1", spy, usd, qty, Sell, Stop)
	limit := NewOrder("strat1", spy, usd, qty, Sell, Limit)
	parent := NewOrder("strat1", spy, usd, qty, Sell, Market)
	parent.Class = OCO

	_, err := book.Submit(CompositeSpec{Parent: parent, Children: []*Order{stop, limit}}, 0)
	if err != nil {
		t.Fatalf("submit OCO failed: %v", err)
	}

	if err := stop.Transition(Filled, "fill"); err != nil {
		t.Fatalf("fill stop: %v", err)
	}
	if err := book.HandleFill(stop.ID); err != nil {
		t.Fatalf("handle fill: %v", err)
	}
	if limit.Status != Canceled {
		t.Fatalf("expected sibling limit canceled, got %v", limit.Status)
	}
	if err := book.SettleParentStatus(parent.ID); err != nil {
		t.Fatalf("settle parent: %v", err)
	}
	p, _ := book.Get(parent.ID)
	if p.Status != Filled {
		t.Fatalf("expected parent to mirror winning child FILLED, got %v", p.Status)
	}
}

func TestBracketChildrenQueuedUntilParentFills(t *testing.T) {
	book := NewBook()
	spy := asset.NewStock("SPY")
	usd := asset.NewStock("USD")
	qty := decimal.NewFromInt(5)

	parent := NewOrder("strat1", spy, usd, qty, Buy, Market)
	parent.Class = Bracket
	stopLoss := NewOrder("strat1", spy, usd, qty, Sell, Stop)
	takeProfit := NewOrder("strat1", spy, usd, qty, Sell, Limit)

	_, err := book.Submit(CompositeSpec{Parent: parent, Children: []*Order{stopLoss, takeProfit}}, 0)
	if err != nil {
		t.Fatalf("submit bracket failed: %v", err)
	}
	if stopLoss.Status != New || takeProfit.Status != New {
		t.Fatalf("expected children NEW until parent fills, got %v %v", stopLoss.Status, takeProfit.Status)
	}

	if err := parent.Transition(Filled, "fill"); err != nil {
		t.Fatalf("fill parent: %v", err)
	}
	if err := book.HandleFill(parent.ID); err != nil {
		t.Fatalf("handle parent fill: %v", err)
	}
	if stopLoss.Status != Submitted || takeProfit.Status != Submitted {
		t.Fatalf("expected children submitted after parent fill, got %v %v", stopLoss.Status, takeProfit.Status)
	}
}

func TestMultilegParentAggregation(t *testing.T) {
	book := NewBook()
	underlying := asset.NewStock("SPY")
	usd := asset.NewStock("USD")
	legA := asset.NewOption("SPY", "2024-01-19", 400, asset.Call)
	legB := asset.NewOption("SPY", "2024-01-19", 410, asset.Call)

	parent := NewOrder("strat1", underlying, usd, decimal.Zero, Buy, Market)
	parent.Class = Multileg
	l1 := NewOrder("strat1", legA, usd, decimal.NewFromInt(1), Buy, Market)
	l2 := NewOrder("strat1", legB, usd, decimal.NewFromInt(1), Sell, Market)

	_, err := book.Submit(CompositeSpec{Parent: parent, Children: []*Order{l1, l2}}, 0)
	if err != nil {
		t.Fatalf("submit multileg failed: %v", err)
	}

	l1.FilledQty = decimal.NewFromInt(1)
	l1.AvgFillPrice = decimal.NewFromFloat(5.0)
	_ = l1.Transition(Filled, "fill")
	l2.FilledQty = decimal.NewFromInt(1)
	l2.AvgFillPrice = decimal.NewFromFloat(2.0)
	_ = l2.Transition(Filled, "fill")

	if err := book.SettleParentStatus(parent.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}
	p, _ := book.Get(parent.ID)
	if p.Status != Filled {
		t.Fatalf("expected parent FILLED when all legs filled, got %v", p.Status)
	}
	want := decimal.NewFromFloat(5.0).Sub(decimal.NewFromFloat(2.0))
	if !p.AvgFillPrice.Equal(want) {
		t.Fatalf("expected avg fill price %v, got %v", want, p.AvgFillPrice)
	}
	if !p.FilledQty.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected qty sum of absolute leg qtys, got %v", p.FilledQty)
	}
}

func TestEvaluateLegExpression(t *testing.T) {
	legs := []ResolvedLeg{{Strike: 400, OpenPremium: 5.5}}
	v, err := EvaluateLegExpression("{LEG1.STRIKE}+{LEG1.PREMIUM}", legs)
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	if v != 405.5 {
		t.Fatalf("expected 405.5, got %v", v)
	}
}

package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/lumicore/backtest/internal/asset"
	"github.com/lumicore/backtest/internal/executor"
	"github.com/lumicore/backtest/internal/orders"
)

func TestWriteJSONAndCSVs(t *testing.T) {
	dir := t.TempDir()
	spy := asset.NewStock("SPY")
	usd := asset.NewStock("USD")
	o := orders.NewOrder("strat1", spy, usd, decimal.NewFromInt(10), orders.Buy, orders.Market)
	o.Status = orders.Filled
	o.AvgFillPrice = decimal.NewFromInt(100)
	o.FilledQty = decimal.NewFromInt(10)

	run := &Run{
		StrategyID: "strat1",
		Stats:      []executor.StatsPoint{{Ts: 0, PortfolioValue: 100000}, {Ts: 60, PortfolioValue: 100500}},
		Orders:     []*orders.Order{o},
	}

	if err := WriteJSON(run, dir); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if err := WritePortfolioCSV(run.Stats, dir); err != nil {
		t.Fatalf("WritePortfolioCSV: %v", err)
	}
	if err := WriteOrdersCSV(run.Orders, dir); err != nil {
		t.Fatalf("WriteOrdersCSV: %v", err)
	}

	for _, name := range []string{"run.json", "portfolio_value.csv", "orders.csv"} {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("reading %s: %v", name, err)
		}
		if len(b) == 0 {
			t.Fatalf("%s is empty", name)
		}
	}

	ordersCSV, _ := os.ReadFile(filepath.Join(dir, "orders.csv"))
	if !strings.Contains(string(ordersCSV), "FILLED") {
		t.Fatalf("expected orders.csv to contain filled order, got:\n%s", ordersCSV)
	}
}

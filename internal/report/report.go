// Package report persists run artifacts (§6): portfolio-value snapshots and
// the orders/fills ledger. Adapted from the teacher's internal/report/
// report.go (WriteJSON/WriteCSV for a trade ledger), generalized from
// single-position option trades to the full order lifecycle and
// per-iteration portfolio value this module tracks.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lumicore/backtest/internal/executor"
	"github.com/lumicore/backtest/internal/orders"
)

// Run bundles everything a single backtest run persists.
type Run struct {
	StrategyID string               `json:"strategy_id"`
	Stats      []executor.StatsPoint `json:"stats"`
	Orders     []*orders.Order      `json:"orders"`
}

// WriteJSON writes the full run (stats + orders) as indented JSON to
// "<outdir>/run.json", matching the teacher's WriteJSON(res, outdir)
// shape.
func WriteJSON(run *Run, outdir string) error {
	b, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outdir, "run.json"), b, 0644)
}

// WritePortfolioCSV writes one row per checkpointed portfolio-value
// snapshot to "<outdir>/portfolio_value.csv".
func WritePortfolioCSV(stats []executor.StatsPoint, outdir string) error {
	f, err := os.Create(filepath.Join(outdir, "portfolio_value.csv"))
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"timestamp", "portfolio_value"}); err != nil {
		return err
	}
	for _, s := range stats {
		row := []string{fmt.Sprintf("%d", s.Ts), fmt.Sprintf("%.2f", s.PortfolioValue)}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteOrdersCSV writes one row per order (its final lifecycle state and
// fill details) to "<outdir>/orders.csv".
func WriteOrdersCSV(ordersList []*orders.Order, outdir string) error {
	f, err := os.Create(filepath.Join(outdir, "orders.csv"))
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()

	headers := []string{"id", "strategy_id", "asset", "side", "type", "class", "status", "quantity", "avg_fill_price", "filled_qty", "created_at", "filled_at"}
	if err := w.Write(headers); err != nil {
		return err
	}
	for _, o := range ordersList {
		filledAt := ""
		if o.FilledAt != nil {
			filledAt = fmt.Sprintf("%d", *o.FilledAt)
		}
		row := []string{
			o.ID,
			o.StrategyID,
			o.Asset.String(),
			string(o.Side),
			string(o.Type),
			string(o.Class),
			string(o.Status),
			o.Quantity.String(),
			o.AvgFillPrice.String(),
			o.FilledQty.String(),
			fmt.Sprintf("%d", o.CreatedAt),
			filledAt,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

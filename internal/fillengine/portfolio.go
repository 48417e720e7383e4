// Package fillengine implements the Fill Engine (C4): given a new bar and
// the open orders for a strategy, decide which orders fill this tick, apply
// fees, and update cash/positions/margin accordingly.
//
// Grounded on the teacher's engine/executor.go simCloseTrade/checkExits bar
// iteration shape, generalized from single-option-position exits to the
// full order-type/asset-type matrix in §4.4. Quantities, cash, and prices
// are shopspring/decimal throughout, per the pack's precedent
// (s2ungeda-cexoms's decimal-typed Portfolio).
package fillengine

import (
	"github.com/shopspring/decimal"

	"github.com/lumicore/backtest/internal/asset"
)

// Position is one strategy's holding in one asset. Quantity may be
// negative (short). Positions at zero quantity are removed from the
// registry entirely (§3).
type Position struct {
	StrategyID   string
	Asset        asset.Asset
	Quantity     decimal.Decimal
	AvgFillPrice decimal.Decimal
	OrderIDs     []string
}

// FuturesLot is one FIFO lot of a futures position, used for margin release
// on partial/flip closes.
type FuturesLot struct {
	EntryTs int64
	Qty     decimal.Decimal // signed: positive long, negative short
	Price   decimal.Decimal
	Margin  decimal.Decimal // total margin posted for this lot
}

// Portfolio holds one strategy's cash, positions, and futures lot ledgers.
type Portfolio struct {
	StrategyID string
	Cash       decimal.Decimal
	positions  map[asset.Asset]*Position
	lots       map[asset.Asset][]*FuturesLot
}

// NewPortfolio creates a portfolio seeded with the given starting cash
// (§6's "budget", default 100000).
func NewPortfolio(strategyID string, startingCash decimal.Decimal) *Portfolio {
	return &Portfolio{
		StrategyID: strategyID,
		Cash:       startingCash,
		positions:  make(map[asset.Asset]*Position),
		lots:       make(map[asset.Asset][]*FuturesLot),
	}
}

// Position returns the current position for an asset, or nil if flat.
func (p *Portfolio) Position(a asset.Asset) *Position {
	return p.positions[a]
}

// Positions returns every currently-open (non-zero quantity) position.
func (p *Portfolio) Positions() []*Position {
	out := make([]*Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos)
	}
	return out
}

// applyFill updates (or creates/removes) the position for a cash-settled
// (stock/option/crypto-forex-quote) fill: signed quantity accumulates,
// average fill price is quantity-weighted across same-direction adds, and
// the position is removed once quantity returns to zero.
func (p *Portfolio) applyFill(a asset.Asset, orderID string, signedQty, price decimal.Decimal) {
	pos, ok := p.positions[a]
	if !ok {
		pos = &Position{StrategyID: p.StrategyID, Asset: a}
		p.positions[a] = pos
	}
	newQty := pos.Quantity.Add(signedQty)

	sameDirectionAdd := pos.Quantity.IsZero() ||
		(pos.Quantity.Sign() == signedQty.Sign() && signedQty.Sign() != 0)
	if sameDirectionAdd {
		totalCost := pos.AvgFillPrice.Mul(pos.Quantity.Abs()).Add(price.Mul(signedQty.Abs()))
		totalQty := pos.Quantity.Abs().Add(signedQty.Abs())
		if !totalQty.IsZero() {
			pos.AvgFillPrice = totalCost.Div(totalQty)
		}
	} else if newQty.Sign() != 0 && newQty.Sign() != pos.Quantity.Sign() {
		// Flipped through zero: the new leg sets a fresh average price.
		pos.AvgFillPrice = price
	}
	pos.Quantity = newQty
	pos.OrderIDs = append(pos.OrderIDs, orderID)

	if pos.Quantity.IsZero() {
		delete(p.positions, a)
	}
}

// Lots returns the FIFO futures lots open for an asset.
func (p *Portfolio) Lots(a asset.Asset) []*FuturesLot {
	return p.lots[a]
}

// setLots replaces the FIFO lot ledger for a futures asset and recomputes
// its Position from the new ledger: Quantity is the signed sum of lot
// quantities, AvgFillPrice is lot-size-weighted. A position that nets to
// zero is removed, matching the cash-settled asset classes (§3).
func (p *Portfolio) setLots(a asset.Asset, orderID string, lots []*FuturesLot) {
	if len(lots) == 0 {
		delete(p.lots, a)
		delete(p.positions, a)
		return
	}
	p.lots[a] = lots

	qty := decimal.Zero
	weighted := decimal.Zero
	for _, l := range lots {
		qty = qty.Add(l.Qty)
		weighted = weighted.Add(l.Price.Mul(l.Qty.Abs()))
	}
	pos, ok := p.positions[a]
	if !ok {
		pos = &Position{StrategyID: p.StrategyID, Asset: a}
		p.positions[a] = pos
	}
	pos.Quantity = qty
	if !qty.Abs().IsZero() {
		pos.AvgFillPrice = weighted.Div(qty.Abs())
	}
	pos.OrderIDs = append(pos.OrderIDs, orderID)
}

// MarginHeld sums margin currently posted across all futures lots, used by
// PortfolioValue.
func (p *Portfolio) MarginHeld() decimal.Decimal {
	total := decimal.Zero
	for _, lots := range p.lots {
		for _, l := range lots {
			total = total.Add(l.Margin)
		}
	}
	return total
}

package fillengine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lumicore/backtest/internal/asset"
	"github.com/lumicore/backtest/internal/barstore"
	"github.com/lumicore/backtest/internal/logger"
	"github.com/lumicore/backtest/internal/orders"
)

// Engine ties the order book and bar store together to process fills once
// per cadence tick, per §4.4.
type Engine struct {
	Book  *orders.Book
	Store *barstore.Store
	Fees  Schedule

	// MarginPerContract maps a futures symbol to its per-contract initial
	// margin. Symbols absent here fall back to DefaultMargin.
	MarginPerContract map[string]decimal.Decimal
	DefaultMargin      decimal.Decimal

	// BarTimeshiftSeconds is the negative offset applied to `now` before
	// reading the fill bar (§4.4 "Bar selection by source"): -60 for
	// minute-aligned vendors. The fill bar is always read from the asset's
	// 1-minute series; an asset seeded only with daily bars gets no bar
	// fill, whatever the offset.
	BarTimeshiftSeconds int64

	// CancelOnEmptyBar selects the pandas-source policy (cancel the order
	// when its bar query returns nothing) instead of the default
	// leave-pending policy used by the other vendor sources (Open Question
	// 4). With it unset, an order with no bar stays pending indefinitely;
	// time_in_force does not expire orders anywhere in this core.
	CancelOnEmptyBar bool

	portfolios map[string]*Portfolio
}

// NewEngine constructs a Fill Engine bound to an order book and bar store.
func NewEngine(book *orders.Book, store *barstore.Store, fees Schedule) *Engine {
	return &Engine{
		Book:                book,
		Store:               store,
		Fees:                fees,
		MarginPerContract:   make(map[string]decimal.Decimal),
		DefaultMargin:       decimal.Zero,
		BarTimeshiftSeconds: -60,
		portfolios:          make(map[string]*Portfolio),
	}
}

// Portfolio returns (creating if necessary) a strategy's portfolio, seeded
// with startingCash the first time it's requested.
func (e *Engine) Portfolio(strategyID string, startingCash decimal.Decimal) *Portfolio {
	p, ok := e.portfolios[strategyID]
	if !ok {
		p = NewPortfolio(strategyID, startingCash)
		e.portfolios[strategyID] = p
	}
	return p
}

// ProcessPendingOrders runs one fill-engine tick for a strategy: every
// active order, in submission order, is evaluated against the bar at `now`
// (shifted per BarTimeshiftSeconds) and filled, canceled, or left pending.
// Per-order errors are isolated so one bad order never blocks the rest of
// the tick (§7 propagation policy).
func (e *Engine) ProcessPendingOrders(strategyID string, now int64, startingCash decimal.Decimal) {
	portfolio := e.Portfolio(strategyID, startingCash)
	active := e.Book.ListActive(strategyID)

	for _, o := range active {
		if err := e.processOne(portfolio, o, now); err != nil {
			logger.Errorf("fillengine: order %s: %v", o.ID, err)
		}
	}
}

func (e *Engine) processOne(p *Portfolio, o *orders.Order, now int64) error {
	bar, ok := e.Store.GetHistoricalPrices(o.Asset, o.Quote, 1, asset.OneMinute, now, e.BarTimeshiftSeconds)
	if !ok || bar.Len() == 0 {
		if quotePrice, quoteOK := e.tryQuoteFallback(o, now); quoteOK {
			return e.settleFill(p, o, quotePrice, now)
		}
		if e.CancelOnEmptyBar {
			logger.Debugf("fillengine: empty bar for %s, canceling (pandas policy)", o.Asset)
			return e.Book.Cancel(o.ID)
		}
		logger.Debugf("fillengine: no bar available for %s, order %s stays pending", o.Asset, o.ID)
		return nil
	}
	last, _ := bar.Last()

	var price decimal.Decimal
	var filled bool
	if o.Type == orders.StopLimit {
		price, filled = evaluateStopLimit(o, last)
	} else {
		price, filled = evaluateFill(o, last)
	}
	if !filled {
		return nil
	}
	return e.settleFill(p, o, price, now)
}

// tryQuoteFallback implements the quote-fallback fill path (§4.4 Failure
// semantics): option MARKET orders may fill at ask (BUY) or bid (SELL) when
// OHLC is missing but a bid/ask quote exists, bounded by any limit price.
// Never used for get_last_price.
func (e *Engine) tryQuoteFallback(o *orders.Order, now int64) (decimal.Decimal, bool) {
	if !o.Asset.IsOption() || o.Type != orders.Market {
		return decimal.Decimal{}, false
	}
	q, ok := e.Store.GetQuote(o.Asset, o.Quote, now)
	if !ok || !q.HasQuote() {
		return decimal.Decimal{}, false
	}
	price := q.Ask
	if !o.Side.IsBuySide() {
		price = q.Bid
	}
	if o.Prices.Limit != nil {
		if o.Side.IsBuySide() && price.GreaterThan(*o.Prices.Limit) {
			price = *o.Prices.Limit
		}
		if !o.Side.IsBuySide() && price.LessThan(*o.Prices.Limit) {
			price = *o.Prices.Limit
		}
	}
	return price, true
}

// settleFill executes the fixed sequence from §4.4: OCO/OTO consequences,
// trade-cost computation, the FILLED_ORDER position/cash update, and fee
// application.
func (e *Engine) settleFill(p *Portfolio, o *orders.Order, price decimal.Decimal, now int64) error {
	if err := e.Book.HandleFill(o.ID); err != nil {
		return fmt.Errorf("handle fill consequences: %w", err)
	}

	o.FilledQty = o.Quantity
	o.AvgFillPrice = price
	filledAt := now
	o.FilledAt = &filledAt
	if err := o.Transition(orders.Filled, "fill"); err != nil {
		return fmt.Errorf("transition to filled: %w", err)
	}
	e.Book.NotifyFilled(o)

	// §6 exposes the fee schedule as buy/sell_trading_fees (per side), so
	// the maker/taker split §4.4 describes for the source broker's own fee
	// tiers isn't a separate axis here; Schedule keys on side only.
	notional := price.Mul(o.Quantity).Mul(decimal.NewFromFloat(o.Asset.Multiplier))
	fee := e.Fees.Compute(o.Side.IsBuySide(), notional)

	if o.Asset.IsFutures() {
		e.applyFuturesFill(p, o, price, fee, now)
	} else {
		e.applyCashSettledFill(p, o, price, fee)
	}

	if o.ParentID != "" {
		if err := e.Book.SettleParentStatus(o.ParentID); err != nil {
			return fmt.Errorf("settle parent: %w", err)
		}
	}

	if pos := p.Position(o.Asset); pos == nil {
		// Position closed to flat: cascade-cancel remaining active orders
		// on this asset, excluding the order that just triggered the close.
		if err := e.Book.ForceClosePositionOrders(o.StrategyID, o.Asset, o.ID); err != nil {
			return fmt.Errorf("cascade cancel: %w", err)
		}
	}
	return nil
}

// applyCashSettledFill handles stocks, options, and crypto per §4.4's cash
// accounting rule. A crypto traded against a forex quote (e.g. BTC/USD)
// settles like any other cash instrument: cash -= side_sign*price*qty*
// multiplier - fees, position accumulates signed with a quantity-weighted
// average price. A crypto traded against another crypto quote (e.g.
// ETH/BTC) has no cash leg at all — both sides are positions, so the fill
// posts the quote-asset leg as its own position move instead of touching
// Cash.
func (e *Engine) applyCashSettledFill(p *Portfolio, o *orders.Order, price, fee decimal.Decimal) {
	sign := decimal.NewFromInt(-1)
	if o.Side.IsBuySide() {
		sign = decimal.NewFromInt(1)
	}
	notional := price.Mul(o.Quantity).Mul(decimal.NewFromFloat(o.Asset.Multiplier))

	if o.Asset.Type == asset.Crypto && o.Quote.Type == asset.Crypto {
		p.Cash = p.Cash.Sub(fee)
		p.applyFill(o.Asset, o.ID, sign.Mul(o.Quantity), price)
		p.applyFill(o.Quote, o.ID, sign.Neg().Mul(notional), decimal.NewFromInt(1))
		return
	}
	p.Cash = p.Cash.Sub(sign.Mul(notional)).Sub(fee)
	p.applyFill(o.Asset, o.ID, sign.Mul(o.Quantity), price)
}

// applyFuturesFill implements the futures open/close/flip lot accounting
// in §4.4, the only asset class where the position quantity does not move
// the notional value in/out of cash — only margin and realized P&L do.
func (e *Engine) applyFuturesFill(p *Portfolio, o *orders.Order, price, fee decimal.Decimal, now int64) {
	margin := e.marginFor(o.Asset)
	sign := decimal.NewFromInt(-1)
	if o.Side.IsBuySide() {
		sign = decimal.NewFromInt(1)
	}
	signedQty := sign.Mul(o.Quantity)

	lots := p.Lots(o.Asset)
	existingSign := 0
	if len(lots) > 0 {
		existingSign = lots[0].Qty.Sign()
	}

	switch {
	case len(lots) == 0 || existingSign == signedQty.Sign():
		// Pure open: add a new lot, post margin.
		totalMargin := margin.Mul(o.Quantity)
		p.Cash = p.Cash.Sub(totalMargin).Sub(fee)
		lots = append(lots, &FuturesLot{EntryTs: now, Qty: signedQty, Price: price, Margin: totalMargin})
		p.setLots(o.Asset, o.ID, lots)
	default:
		e.closeOrFlip(p, o, price, fee, signedQty, margin, now)
	}
}

// closeOrFlip handles futures fills that reduce, exactly flatten, or flip
// through an existing position: FIFO-close existing lots releasing their
// margin and realizing P&L, then (on a flip) open the remainder fresh in
// the new direction with its own margin.
func (e *Engine) closeOrFlip(p *Portfolio, o *orders.Order, price, fee, signedQty, margin decimal.Decimal, now int64) {
	lots := p.Lots(o.Asset)
	direction := decimal.NewFromInt(1)
	if lots[0].Qty.Sign() < 0 {
		direction = decimal.NewFromInt(-1)
	}
	remainingToClose := signedQty.Abs()
	var releasedMargin, realizedPnL decimal.Decimal
	var remainingLots []*FuturesLot

	for _, lot := range lots {
		if remainingToClose.IsZero() {
			remainingLots = append(remainingLots, lot)
			continue
		}
		lotQtyAbs := lot.Qty.Abs()
		closeQty := decimal.Min(lotQtyAbs, remainingToClose)
		lotMarginPerUnit := lot.Margin.Div(lotQtyAbs)
		releasedMargin = releasedMargin.Add(lotMarginPerUnit.Mul(closeQty))
		realizedPnL = realizedPnL.Add(price.Sub(lot.Price).Mul(closeQty).Mul(direction).Mul(decimal.NewFromFloat(o.Asset.Multiplier)))
		remainingToClose = remainingToClose.Sub(closeQty)

		if closeQty.LessThan(lotQtyAbs) {
			rem := lotQtyAbs.Sub(closeQty)
			remainingLots = append(remainingLots, &FuturesLot{
				EntryTs: lot.EntryTs,
				Qty:     rem.Mul(direction),
				Price:   lot.Price,
				Margin:  lotMarginPerUnit.Mul(rem),
			})
		}
	}

	p.Cash = p.Cash.Add(releasedMargin).Add(realizedPnL).Sub(fee)

	if !remainingToClose.IsZero() {
		// Flip: open the remainder in the new direction with fresh margin.
		flipQty := decimal.NewFromInt(int64(signedQty.Sign())).Mul(remainingToClose)
		totalMargin := margin.Mul(remainingToClose)
		p.Cash = p.Cash.Sub(totalMargin)
		remainingLots = append(remainingLots, &FuturesLot{EntryTs: now, Qty: flipQty, Price: price, Margin: totalMargin})
	}
	p.setLots(o.Asset, o.ID, remainingLots)
}

func (e *Engine) marginFor(a asset.Asset) decimal.Decimal {
	if m, ok := e.MarginPerContract[a.Symbol]; ok {
		return m
	}
	return e.DefaultMargin
}

// UnrealizedPnL sums mark-to-market unrealized P&L across a strategy's open
// futures lots at the given mark price lookup. markPrice is supplied by the
// caller (typically the last traded price from the bar store) per asset.
func (p *Portfolio) UnrealizedPnL(markPrice func(asset.Asset) (decimal.Decimal, bool)) decimal.Decimal {
	total := decimal.Zero
	for a, lots := range p.lots {
		mark, ok := markPrice(a)
		if !ok {
			continue
		}
		for _, l := range lots {
			direction := decimal.NewFromInt(1)
			if l.Qty.Sign() < 0 {
				direction = decimal.NewFromInt(-1)
			}
			total = total.Add(mark.Sub(l.Price).Mul(l.Qty.Abs()).Mul(direction).Mul(decimal.NewFromFloat(a.Multiplier)))
		}
	}
	return total
}

// PortfolioValue computes cash + Σposition_value (stocks/options/crypto) +
// Σmargin_held + Σunrealized_pnl (futures), per §4.4 and testable property
// 1. markPrice resolves a last/mark price for non-futures positions.
func (p *Portfolio) PortfolioValue(markPrice func(asset.Asset) (decimal.Decimal, bool)) decimal.Decimal {
	total := p.Cash
	for a, pos := range p.positions {
		if a.IsFutures() {
			continue // futures contribute margin + unrealized PnL only, not notional.
		}
		mark, ok := markPrice(a)
		if !ok {
			mark = pos.AvgFillPrice
		}
		total = total.Add(mark.Mul(pos.Quantity).Mul(decimal.NewFromFloat(a.Multiplier)))
	}
	total = total.Add(p.MarginHeld())
	total = total.Add(p.UnrealizedPnL(markPrice))
	return total
}

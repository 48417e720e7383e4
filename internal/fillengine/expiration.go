package fillengine

import (
	"github.com/shopspring/decimal"

	"github.com/lumicore/backtest/internal/asset"
	"github.com/lumicore/backtest/internal/logger"
)

// SettleExpiredOptions auto-settles every expired, in-the-money option
// position held by the strategy as of `now` (expected to be called at
// market close on the expiration date, after the minutes-before-close
// buffer has elapsed, per §4.4). Long positions floor negative intrinsic
// value at zero; short positions cap positive intrinsic value at zero —
// neither side can gain/lose more than the premium already exchanged at
// entry.
func (e *Engine) SettleExpiredOptions(strategyID string, now int64, today string, quote asset.Asset) {
	p, ok := e.portfolios[strategyID]
	if !ok {
		return
	}
	for _, pos := range p.Positions() {
		a := pos.Asset
		if !a.IsOption() || a.Expiration != today {
			continue
		}
		underlying := a.UnderlyingAsset()
		last, found := e.Store.GetLastPrice(underlying, quote, now)
		if !found {
			// Retry as an index lookup, per §4.4's fallback when the stock
			// lookup yields no price.
			idx := asset.NewIndex(underlying.Symbol)
			last, found = e.Store.GetLastPrice(idx, quote, now)
			if !found {
				logger.Debugf("fillengine: no settlement price for expiring %s", a)
				continue
			}
		}

		raw := intrinsicValue(a, last)
		long := pos.Quantity.Sign() > 0
		var effective decimal.Decimal
		if long {
			// Can't lose more than the premium already paid: floor at zero.
			effective = decimal.Max(raw, decimal.Zero)
		} else {
			// Can't gain more than the premium already collected: the
			// short's own P&L is -raw, capped above at zero.
			effective = decimal.Min(raw.Neg(), decimal.Zero)
		}
		credit := effective.Mul(pos.Quantity.Abs()).Mul(decimal.NewFromFloat(a.Multiplier))
		p.Cash = p.Cash.Add(credit)
		delete(p.positions, a)
		logger.Infof("fillengine: settled expired option %s, credit=%s", a, credit)

		if err := e.Book.ForceClosePositionOrders(strategyID, a, ""); err != nil {
			logger.Errorf("fillengine: cascade cancel on expiration for %s: %v", a, err)
		}
	}
}

// intrinsicValue computes an option's intrinsic value at expiration given
// the underlying's settlement price, signed from the long holder's
// perspective (negative for OTM).
func intrinsicValue(a asset.Asset, underlyingPrice decimal.Decimal) decimal.Decimal {
	if a.Right == asset.Call {
		return underlyingPrice.Sub(decimal.NewFromFloat(a.Strike))
	}
	return decimal.NewFromFloat(a.Strike).Sub(underlyingPrice)
}

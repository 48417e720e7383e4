package fillengine

import "github.com/shopspring/decimal"

// FeeSpec is one side's (buy or sell) flat+percent trade-cost schedule.
// Nil fields mean "not configured", following the teacher's habit of
// optional pointer fields on its Config/ExitSpec structs rather than a
// zero-value-means-absent convention that would be ambiguous for a
// genuinely-zero fee.
type FeeSpec struct {
	Flat    *decimal.Decimal
	Percent *decimal.Decimal // e.g. 0.001 = 10 bps
}

// Schedule is the per-order trade-cost schedule keyed by order side (buy
// or sell), backing §6's buy/sell_trading_fees. The order type plays no
// part: there is no separate maker (LIMIT/STOP_LIMIT) or taker
// (MARKET/STOP) schedule.
type Schedule struct {
	Buy  FeeSpec
	Sell FeeSpec
}

// Compute returns the trade cost for a fill of the given notional
// (price*qty*multiplier), selecting the buy or sell side of the schedule.
func (s Schedule) Compute(isBuy bool, notional decimal.Decimal) decimal.Decimal {
	spec := s.Sell
	if isBuy {
		spec = s.Buy
	}
	total := decimal.Zero
	if spec.Flat != nil {
		total = total.Add(*spec.Flat)
	}
	if spec.Percent != nil {
		total = total.Add(notional.Abs().Mul(*spec.Percent))
	}
	return total
}

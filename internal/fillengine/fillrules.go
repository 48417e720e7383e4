package fillengine

import (
	"github.com/shopspring/decimal"

	"github.com/lumicore/backtest/internal/asset"
	"github.com/lumicore/backtest/internal/orders"
)

// evaluateFill decides whether an order fills against bar, and at what
// price, per the per-order-type rules in §4.4. STOP_LIMIT is handled
// separately by the caller since it spans two phases across potentially
// different ticks.
func evaluateFill(o *orders.Order, bar asset.Bar) (price decimal.Decimal, filled bool) {
	buy := o.Side.IsBuySide()
	switch o.Type {
	case orders.Market:
		return bar.Open, true
	case orders.Limit:
		return evaluateLimit(*o.Prices.Limit, bar, buy)
	case orders.Stop:
		return evaluateStop(*o.Prices.Stop, bar, buy)
	case orders.Trail:
		return evaluateTrail(o, bar, buy)
	default:
		return decimal.Zero, false
	}
}

// evaluateLimit implements the LIMIT BUY/SELL rules: gap-through fills at
// the bar open; an in-bar touch fills at the limit price itself.
func evaluateLimit(limit decimal.Decimal, bar asset.Bar, buy bool) (decimal.Decimal, bool) {
	return evaluateLimitAt(limit, bar.Open, bar, buy)
}

// evaluateLimitAt is evaluateLimit with the gap-check reference price
// supplied explicitly instead of always being bar.Open — used by
// evaluateStopLimit's same-bar limit phase, where the reference is the
// triggered stop price rather than the bar's real open.
func evaluateLimitAt(limit, refOpen decimal.Decimal, bar asset.Bar, buy bool) (decimal.Decimal, bool) {
	if buy {
		if limit.GreaterThanOrEqual(refOpen) {
			return refOpen, true
		}
		if bar.Low.LessThanOrEqual(limit) && limit.LessThanOrEqual(bar.High) {
			return limit, true
		}
		return decimal.Zero, false
	}
	if limit.LessThanOrEqual(refOpen) {
		return refOpen, true
	}
	if bar.Low.LessThanOrEqual(limit) && limit.LessThanOrEqual(bar.High) {
		return limit, true
	}
	return decimal.Zero, false
}

// evaluateStop implements the STOP BUY/SELL rules: gap-through fills at the
// bar open; an in-bar touch fills at the stop price itself.
func evaluateStop(stop decimal.Decimal, bar asset.Bar, buy bool) (decimal.Decimal, bool) {
	if buy {
		if stop.LessThanOrEqual(bar.Open) {
			return bar.Open, true
		}
		if bar.Low.LessThanOrEqual(stop) && stop.LessThanOrEqual(bar.High) {
			return stop, true
		}
		return decimal.Zero, false
	}
	if stop.GreaterThanOrEqual(bar.Open) {
		return bar.Open, true
	}
	if bar.Low.LessThanOrEqual(stop) && stop.LessThanOrEqual(bar.High) {
		return stop, true
	}
	return decimal.Zero, false
}

// evaluateTrail implements the TRAIL BUY/SELL rules. The live trail_stop is
// carried on the order (initialized on first tick) and ratcheted after each
// bar regardless of whether this bar filled.
func evaluateTrail(o *orders.Order, bar asset.Bar, buy bool) (decimal.Decimal, bool) {
	amt := *o.Prices.TrailAmount
	if o.Prices.TrailStop == nil {
		var init decimal.Decimal
		if buy {
			init = bar.Low.Add(amt)
		} else {
			init = bar.High.Sub(amt)
		}
		o.Prices.TrailStop = &init
		return decimal.Zero, false
	}

	trail := *o.Prices.TrailStop
	var price decimal.Decimal
	var filled bool
	if buy {
		if trail.LessThanOrEqual(bar.Open) {
			price, filled = bar.Open, true
		} else if bar.Low.LessThanOrEqual(trail) && trail.LessThanOrEqual(bar.High) {
			price, filled = trail, true
		}
		next := bar.Low.Add(amt)
		if next.LessThan(trail) {
			trail = next
		}
	} else {
		if trail.GreaterThanOrEqual(bar.Open) {
			price, filled = bar.Open, true
		} else if bar.Low.LessThanOrEqual(trail) && trail.LessThanOrEqual(bar.High) {
			price, filled = trail, true
		}
		next := bar.High.Sub(amt)
		if next.GreaterThan(trail) {
			trail = next
		}
	}
	o.Prices.TrailStop = &trail
	return price, filled
}

// evaluateStopLimit advances a STOP_LIMIT order's two phases: the stop
// phase triggers exactly like a STOP order (its fill price becomes the
// limit leg's reference on the triggering bar, per §4.4's "stop-phase:
// triggered price", and the limit price itself when none was set), after
// which the order behaves as a LIMIT order at its limit price until it
// fills or is canceled.
func evaluateStopLimit(o *orders.Order, bar asset.Bar) (decimal.Decimal, bool) {
	buy := o.Side.IsBuySide()
	if !o.Prices.StopTriggered {
		triggerPrice, triggered := evaluateStop(*o.Prices.Stop, bar, buy)
		if !triggered {
			return decimal.Zero, false
		}
		o.Prices.StopTriggered = true
		if o.Prices.Limit == nil {
			o.Prices.Limit = &triggerPrice
		}
		// Fall through: the same bar may also satisfy the limit phase. The
		// gap-check reference is the stop phase's fill price (the stop on an
		// in-bar touch, the bar open on a gap), not the bar's real open —
		// the limit leg only exists from the moment the stop triggered.
		return evaluateLimitAt(*o.Prices.Limit, triggerPrice, bar, buy)
	}
	return evaluateLimit(*o.Prices.Limit, bar, buy)
}

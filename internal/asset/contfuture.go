package asset

import "time"

// rollCycle is the quarterly futures expiration cycle (March/June/
// September/December), keyed by CME/CBOT month-code convention.
var rollCycle = []time.Month{time.March, time.June, time.September, time.December}

// ActiveSymbol resolves which dated contract a continuous future currently
// points to, rolling rollDays before the front contract's quarterly
// expiration (the third Friday of its expiration month), per Open Question
// 3's chosen resolution (b): the roll swaps the resolved contract without
// touching any open position in the ContFuture itself — callers that hold a
// position in the dated contract are unaffected until they explicitly close
// it.
//
// This only resolves a symbol/expiration pair for quoting and bar lookups;
// it never auto-closes or auto-flips a position.
func (a Asset) ActiveSymbol(now time.Time, rollDays int) Asset {
	if a.Type != ContFuture {
		return a
	}

	month, year := frontMonth(now, rollDays)
	expiration := thirdFriday(year, month)
	return Asset{
		Symbol:     a.Symbol,
		Type:       Future,
		Multiplier: a.Multiplier,
		Expiration: expiration.Format("2006-01-02"),
	}
}

// frontMonth finds the nearest quarterly cycle month at or after `now`,
// advancing to the next cycle month once within rollDays of its expiration.
func frontMonth(now time.Time, rollDays int) (time.Month, int) {
	year := now.Year()
	for i := 0; i < 8; i++ { // bounded: at most eight yearly cycles ahead
		for _, m := range rollCycle {
			candidate := thirdFriday(year, m)
			if candidate.Before(now) {
				continue
			}
			rollPoint := candidate.AddDate(0, 0, -rollDays)
			if now.Before(rollPoint) {
				return m, year
			}
		}
		year++
	}
	return rollCycle[0], year
}

// thirdFriday returns the third Friday of the given month/year at midnight
// UTC, the standard CME quarterly equity-index future expiration date.
func thirdFriday(year int, month time.Month) time.Time {
	d := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	fridays := 0
	for {
		if d.Weekday() == time.Friday {
			fridays++
			if fridays == 3 {
				return d
			}
		}
		d = d.AddDate(0, 0, 1)
	}
}

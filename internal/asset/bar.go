package asset

import "github.com/shopspring/decimal"

// Bar is one OHLCV record at a Timestep bucket. Missing reports whether no
// trade actually printed in this bucket and the OHLC values are
// forward-filled placeholders from the prior close (§3, §4.2).
type Bar struct {
	Ts     int64 // unix seconds, bucket start, UTC
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal

	// Bid/Ask are populated only by quote-capable sources (options chains);
	// zero-value Decimal means "absent", distinguished via HasQuote().
	Bid decimal.Decimal
	Ask decimal.Decimal

	Missing bool
}

// HasQuote reports whether this bar carries a bid/ask pair.
func (b Bar) HasQuote() bool {
	return !b.Bid.IsZero() || !b.Ask.IsZero()
}

// Mid returns (bid+ask)/2. Caller must check HasQuote first.
func (b Bar) Mid() decimal.Decimal {
	return b.Bid.Add(b.Ask).Div(decimal.NewFromInt(2))
}

// BarSeries is an ordered, strictly-monotonic-in-Ts sequence of Bars for one
// (Asset, QuoteAsset, Timestep) key.
type BarSeries struct {
	Asset    Asset
	Quote    Asset
	Timestep Timestep
	Bars     []Bar
}

// Len returns the number of bars held.
func (s *BarSeries) Len() int { return len(s.Bars) }

// Last returns the most recent bar and true, or the zero Bar and false if
// empty.
func (s *BarSeries) Last() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// indexAtOrBefore returns the index of the last bar with Ts <= ts via binary
// search, or -1 if none qualify. Bars are assumed sorted ascending by Ts.
func (s *BarSeries) indexAtOrBefore(ts int64) int {
	lo, hi := 0, len(s.Bars)-1
	result := -1
	for lo <= hi {
		mid := (lo + hi) / 2
		if s.Bars[mid].Ts <= ts {
			result = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return result
}

// indexAt returns the index of the bar with Ts == ts exactly, or -1.
func (s *BarSeries) indexAt(ts int64) int {
	i := s.indexAtOrBefore(ts)
	if i >= 0 && s.Bars[i].Ts == ts {
		return i
	}
	return -1
}

// Append inserts a bar, keeping the series sorted and free of duplicate
// timestamps (last write wins on a duplicate Ts).
func (s *BarSeries) Append(b Bar) {
	n := len(s.Bars)
	if n == 0 || s.Bars[n-1].Ts < b.Ts {
		s.Bars = append(s.Bars, b)
		return
	}
	if s.Bars[n-1].Ts == b.Ts {
		s.Bars[n-1] = b
		return
	}
	i := s.indexAtOrBefore(b.Ts)
	if i >= 0 && s.Bars[i].Ts == b.Ts {
		s.Bars[i] = b
		return
	}
	s.Bars = append(s.Bars, Bar{})
	copy(s.Bars[i+2:], s.Bars[i+1:n])
	s.Bars[i+1] = b
}

// SizeBytes estimates in-memory footprint for the Bar Store's memory cap
// accounting. Each Bar is ~7 decimals plus an int64 and a bool; decimal.Decimal
// itself is a small struct, so a flat per-bar estimate is adequate for a
// budget check, not exact accounting.
const bytesPerBar = 96

func (s *BarSeries) SizeBytes() int64 {
	return int64(len(s.Bars)) * bytesPerBar
}

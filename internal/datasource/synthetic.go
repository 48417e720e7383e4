package datasource

import (
	"math"
	"math/rand"
	"time"

	"github.com/lumicore/backtest/internal/asset"
	"github.com/lumicore/backtest/internal/pricing"
)

// SyntheticSource generates a deterministic (given its Seed) random-walk
// price series, used to exercise the core without a live data vendor.
// Mirrors the teacher's synthDataProvider, generalized from daily-only
// equity bars to any Timestep and to option premium bars priced via
// Black-Scholes against the synthesized underlying path.
type SyntheticSource struct {
	Seed         int64
	StartPrice   float64
	DailyVolPct  float64 // daily return stdev, e.g. 0.01 for 1%
	RiskFreeRate float64
	secondary    Source
}

// NewSyntheticSource builds a SyntheticSource with the teacher's default
// shape (±1% daily moves, no secondary fallback).
func NewSyntheticSource(seed int64, startPrice float64) *SyntheticSource {
	return &SyntheticSource{Seed: seed, StartPrice: startPrice, DailyVolPct: 0.01, RiskFreeRate: 0.02}
}

func (s *SyntheticSource) Secondary() Source { return s.secondary }

// GetBars synthesizes a random-walk OHLCV path at the requested timestep.
// Options get a premium path derived from Black-Scholes against the
// underlying's synthesized spot, using a fixed plausible IV rather than a
// fitted one (this is a test-data generator, not a pricing oracle).
func (s *SyntheticSource) GetBars(a asset.Asset, quote asset.Asset, ts asset.Timestep, from, to time.Time) ([]asset.Bar, error) {
	rng := rand.New(rand.NewSource(s.Seed ^ int64(hashSymbol(a.Symbol))))
	step := ts.Duration()
	if step <= 0 {
		step = 24 * time.Hour
	}

	var underlyingPath []float64
	price := s.StartPrice
	if price == 0 {
		price = 100
	}

	var out []asset.Bar
	for cur := from; !cur.After(to); cur = cur.Add(step) {
		if ts.Unit == asset.UnitDay && (cur.Weekday() == time.Saturday || cur.Weekday() == time.Sunday) {
			continue
		}
		delta := rng.NormFloat64() * s.DailyVolPct * price
		open := price
		close := math.Max(price+delta, 0.01)
		high := math.Max(open, close) + math.Abs(rng.NormFloat64()*s.DailyVolPct*price*0.3)
		low := math.Max(math.Min(open, close)-math.Abs(rng.NormFloat64()*s.DailyVolPct*price*0.3), 0.01)
		vol := float64(1000 + rng.Intn(5000))
		price = close
		underlyingPath = append(underlyingPath, close)

		bar := asset.Bar{
			Ts:     cur.Unix(),
			Open:   decimalOf(open),
			High:   decimalOf(high),
			Low:    decimalOf(low),
			Close:  decimalOf(close),
			Volume: decimalOf(vol),
		}
		if a.IsOption() {
			bar = s.optionBar(a, cur, bar.Ts, close, to)
		}
		out = append(out, bar)
	}
	return out, nil
}

// optionBar prices an option bar off the synthesized underlying spot at
// `spot` using a fixed plausible implied vol, and derives a tight synthetic
// bid/ask around the model price.
func (s *SyntheticSource) optionBar(a asset.Asset, at time.Time, ts int64, spot float64, expiry time.Time) asset.Bar {
	const fixedIV = 0.25
	yearsToExpiry := expiry.Sub(at).Hours() / 24 / 365.25
	if yearsToExpiry <= 0 {
		yearsToExpiry = 1.0 / 365.25
	}
	isCall := a.Right == asset.Call
	price := pricing.BlackScholesPrice(isCall, spot, a.Strike, yearsToExpiry, s.RiskFreeRate, fixedIV)
	spread := math.Max(price*0.02, 0.01)
	return asset.Bar{
		Ts:    ts,
		Open:  decimalOf(price),
		High:  decimalOf(price + spread/2),
		Low:   decimalOf(math.Max(price-spread/2, 0)),
		Close: decimalOf(price),
		Bid:   decimalOf(math.Max(price-spread/2, 0)),
		Ask:   decimalOf(price + spread/2),
	}
}

func hashSymbol(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

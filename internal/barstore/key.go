package barstore

import "github.com/lumicore/backtest/internal/asset"

// key identifies one stored or aggregated-cached BarSeries by
// (Asset, QuoteAsset, Timestep), matching §4.2's storage contract.
type key struct {
	a asset.Asset
	q asset.Asset
	t asset.Timestep
}

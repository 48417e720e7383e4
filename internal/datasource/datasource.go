// Package datasource supplies the bar data that seeds the Bar Store (C2)
// before a backtest runs. Grounded on the teacher's internal/data.Provider
// chain-of-responsibility pattern (each implementation holds an optional
// Secondary() fallback), generalized from the teacher's options-only
// GetATMOptionPrices/GetContracts surface to the plain OHLCV bars the Bar
// Store actually stores (§3 data model) plus a thin synthetic option-premium
// generator for exercising option strategies without a live vendor.
package datasource

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumicore/backtest/internal/asset"
)

// Source supplies historical OHLCV bars for an asset over a date range, with
// an optional Secondary fallback chained in front of it (teacher's
// Secondary() pattern: try this source, fall back to the next on miss).
type Source interface {
	Secondary() Source
	GetBars(a asset.Asset, quote asset.Asset, ts asset.Timestep, from, to time.Time) ([]asset.Bar, error)
}

// LoadInto fetches bars for an asset from src (following its Secondary
// chain on a miss) and seeds them into the store.
func LoadInto(store barStoreSeeder, src Source, a asset.Asset, quote asset.Asset, ts asset.Timestep, from, to time.Time) error {
	bars, err := src.GetBars(a, quote, ts, from, to)
	if err != nil && src.Secondary() != nil {
		bars, err = src.Secondary().GetBars(a, quote, ts, from, to)
	}
	if err != nil {
		return err
	}
	store.Seed(a, quote, ts, bars)
	return nil
}

// barStoreSeeder is the subset of barstore.Store that LoadInto needs,
// defined locally so this package doesn't need to import barstore just to
// accept its *Store by value/pointer in a test double.
type barStoreSeeder interface {
	Seed(a asset.Asset, quote asset.Asset, ts asset.Timestep, bars []asset.Bar)
}

// decimalOf is a small float64->decimal.Decimal convenience used by the
// synthetic provider when building bars.
func decimalOf(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

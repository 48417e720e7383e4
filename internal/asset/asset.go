// Package asset defines the tradable-instrument identifiers shared by the
// rest of the backtesting core: the Bar Store keys bar series on Asset, the
// Order Book keys orders on Asset, and the Fill Engine branches its
// cash/position accounting on Asset.Type.
package asset

import "fmt"

// Type enumerates the kinds of tradable instruments the core understands.
type Type string

const (
	Stock     Type = "STOCK"
	Option    Type = "OPTION"
	Future    Type = "FUTURE"
	ContFuture Type = "CONT_FUTURE"
	Crypto    Type = "CRYPTO"
	Forex     Type = "FOREX"
	Index     Type = "INDEX"
)

// Right is the option side: call or put.
type Right string

const (
	Call Right = "CALL"
	Put  Right = "PUT"
)

// defaultMultipliers mirrors known contract-size conventions. Equities and
// most everything else default to 1; this table only needs entries that
// differ.
var defaultMultipliers = map[string]float64{
	"MES": 5,
	"ES":  50,
	"MNQ": 2,
	"NQ":  20,
	"GC":  100,
}

// Asset identifies a tradable instrument. Equality is structural: two Assets
// with the same Type and identifying fields are the same instrument, so
// Asset is safe to use as a map key directly.
type Asset struct {
	Symbol     string
	Type       Type
	Multiplier float64

	// Option fields.
	Expiration string // YYYY-MM-DD, UTC trading-calendar date
	Strike     float64
	Right      Right

	// Future fields. Expiration is empty for ContFuture.
	// Underlying carries the resolved Stock/Index for an Option; empty for
	// everything else.
	Underlying string
}

// NewStock builds a Stock asset with multiplier 1.
func NewStock(symbol string) Asset {
	return Asset{Symbol: symbol, Type: Stock, Multiplier: 1}
}

// NewIndex builds an Index asset with multiplier 1.
func NewIndex(symbol string) Asset {
	return Asset{Symbol: symbol, Type: Index, Multiplier: 1}
}

// NewOption builds an Option asset. Per the data model, an Option must carry
// an expiration and must resolve to an underlying Stock/Index; callers
// supply that underlying symbol explicitly since the core never guesses it.
func NewOption(underlying string, expiration string, strike float64, right Right) Asset {
	return Asset{
		Symbol:     underlying,
		Type:       Option,
		Multiplier: 100,
		Expiration: expiration,
		Strike:     strike,
		Right:      right,
		Underlying: underlying,
	}
}

// NewFuture builds a dated Future asset, applying the known multiplier table
// when the symbol is recognized.
func NewFuture(symbol string, expiration string) Asset {
	return Asset{Symbol: symbol, Type: Future, Multiplier: multiplierFor(symbol), Expiration: expiration}
}

// NewContFuture builds a continuous (auto-rolled) future.
func NewContFuture(symbol string) Asset {
	return Asset{Symbol: symbol, Type: ContFuture, Multiplier: multiplierFor(symbol)}
}

// NewCrypto builds a Crypto asset; multiplier is always 1.
func NewCrypto(symbol string) Asset {
	return Asset{Symbol: symbol, Type: Crypto, Multiplier: 1}
}

// NewForex builds a Forex pair asset; multiplier is always 1.
func NewForex(symbol string) Asset {
	return Asset{Symbol: symbol, Type: Forex, Multiplier: 1}
}

func multiplierFor(symbol string) float64 {
	if m, ok := defaultMultipliers[symbol]; ok {
		return m
	}
	return 1
}

// UnderlyingAsset resolves the Stock/Index this Option settles against. If
// Underlying was never set, it synthesizes one from the option's own symbol
// — the fill engine retries this as an Index lookup if the Stock lookup
// yields no price (per the expiration-settlement fallback).
func (a Asset) UnderlyingAsset() Asset {
	sym := a.Underlying
	if sym == "" {
		sym = a.Symbol
	}
	return NewStock(sym)
}

// String renders a human-readable identifier, used in logs and error
// messages.
func (a Asset) String() string {
	switch a.Type {
	case Option:
		return fmt.Sprintf("%s %s %.2f%s %s", a.Symbol, a.Expiration, a.Strike, string(a.Right)[:1], a.Type)
	case Future:
		return fmt.Sprintf("%s %s %s", a.Symbol, a.Expiration, a.Type)
	default:
		return fmt.Sprintf("%s %s", a.Symbol, a.Type)
	}
}

// IsOption reports whether this asset is an options contract.
func (a Asset) IsOption() bool { return a.Type == Option }

// IsFutures reports whether this asset is a dated or continuous future.
func (a Asset) IsFutures() bool { return a.Type == Future || a.Type == ContFuture }

// Package orders implements the Order Book & Lifecycle (C3): order state,
// composite flattening (OCO/OTO/BRACKET/MULTILEG), and the state machine
// governing transitions.
//
// The state-machine shape (a precomputed transition table built once in
// init, looked up via a nested map) is grounded on
// eddiefleurent-scranton_strangler's internal/models/state_machine.go
// (ValidTransitions / transitionLookup). Order quantities are
// shopspring/decimal per the data model; IDs are google/uuid, matching the
// sibling repos in the pack.
package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lumicore/backtest/internal/asset"
)

// Side is the order direction. Quantity is always positive; direction is
// carried here, per the data model's tagged-union redesign guidance.
type Side string

const (
	Buy          Side = "BUY"
	Sell         Side = "SELL"
	BuyToOpen    Side = "BUY_TO_OPEN"
	BuyToCover   Side = "BUY_TO_COVER"
	SellToOpen   Side = "SELL_TO_OPEN"
	SellToClose  Side = "SELL_TO_CLOSE"
	SellShort    Side = "SELL_SHORT"
)

// IsBuySide reports whether side is a buy-direction variant, used by the
// fill engine to select BUY vs SELL fill rules.
func (s Side) IsBuySide() bool {
	switch s {
	case Buy, BuyToOpen, BuyToCover:
		return true
	default:
		return false
	}
}

// Type is the order pricing mechanism.
type Type string

const (
	Market    Type = "MARKET"
	Limit     Type = "LIMIT"
	Stop      Type = "STOP"
	StopLimit Type = "STOP_LIMIT"
	Trail     Type = "TRAIL"
)

// Class is the composite-order family.
type Class string

const (
	Simple   Class = "SIMPLE"
	OCO      Class = "OCO"
	OTO      Class = "OTO"
	Bracket  Class = "BRACKET"
	Multileg Class = "MULTILEG"
)

// Status is the order lifecycle state.
type Status string

const (
	New         Status = "NEW"
	Submitted   Status = "SUBMITTED"
	PartialFill Status = "PARTIAL_FILL"
	Filled      Status = "FILLED"
	Canceled    Status = "CANCELED"
	Expired     Status = "EXPIRED"
	Rejected    Status = "REJECTED"
)

// TimeInForce is the order's time-in-force label. It is stored only; no
// component expires an order by it.
type TimeInForce string

const (
	DAY TimeInForce = "DAY"
	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
)

// Prices holds the pricing payload for whichever Type the order is. Only
// the fields relevant to Type are meaningful; this flat struct replaces the
// source's dynamic-attribute-bag pattern per the design notes (tagged-union
// would be more precise, but a flat struct keeps the fill engine's
// type-switch simple and mirrors the teacher's plain-struct style).
type Prices struct {
	Limit      *decimal.Decimal
	Stop       *decimal.Decimal
	TrailAmount *decimal.Decimal // absolute trail distance

	// TrailStop is the live trailing-stop level, updated by the fill engine
	// each tick per §4.4's TRAIL rule. Nil until first computed.
	TrailStop *decimal.Decimal

	// StopTriggered marks a STOP_LIMIT order that has entered its limit
	// phase.
	StopTriggered bool
}

// Order is one order in the book.
type Order struct {
	ID         string
	StrategyID string
	Asset      asset.Asset
	Quote      asset.Asset
	Quantity   decimal.Decimal
	Side       Side
	Type       Type
	Class      Class
	Status     Status
	Prices     Prices

	ParentID    string // empty for top-level orders
	ChildIDs    []string
	DependentID string // OCO sibling, for mutual cancellation

	TimeInForce TimeInForce
	CreatedAt   int64 // unix seconds, virtual clock

	FilledAt      *int64
	AvgFillPrice  decimal.Decimal
	FilledQty     decimal.Decimal

	// DependentOrderFilled marks that this order's OCO sibling already
	// filled, per §4.4 step 1.
	DependentOrderFilled bool

	// submitSeq preserves within-tick submission order for tie-breaking
	// (§4.3 "orders submitted in the same iteration process in submission
	// order").
	submitSeq int64
}

// NewOrder constructs an order in state NEW with a fresh id.
func NewOrder(strategyID string, a, quote asset.Asset, qty decimal.Decimal, side Side, typ Type) *Order {
	return &Order{
		ID:          uuid.NewString(),
		StrategyID:  strategyID,
		Asset:       a,
		Quote:       quote,
		Quantity:    qty,
		Side:        side,
		Type:        typ,
		Class:       Simple,
		Status:      New,
		TimeInForce: DAY,
		FilledQty:   decimal.Zero,
	}
}

// IsActive reports whether the order can still fill or be canceled.
func (o *Order) IsActive() bool {
	switch o.Status {
	case New, Submitted, PartialFill:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the order has reached an end state.
func (o *Order) IsTerminal() bool {
	return !o.IsActive()
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQty)
}

// Package strategy exposes the capability set (§6) that user strategy code
// is driven through: order submission, position/cash queries, and the full
// lifecycle hook set. There is no single teacher file this generalizes
// directly — it is assembled from the wiring shape of the teacher's
// cmd/option-replay/main.go (constructing providers/engine and driving a
// run) and internal/backtest/strategy/planner.go (the strategy-facing
// entry points a user's trading logic would call).
package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lumicore/backtest/internal/asset"
	"github.com/lumicore/backtest/internal/barstore"
	"github.com/lumicore/backtest/internal/fillengine"
	"github.com/lumicore/backtest/internal/lmerr"
	"github.com/lumicore/backtest/internal/logger"
	"github.com/lumicore/backtest/internal/orders"
)

// Hooks is the full lifecycle hook set a Strategy implementation may
// define. Embed DefaultHooks to get no-op defaults for any hook not
// overridden.
type Hooks interface {
	Initialize()
	OnTradingIteration()
	BeforeMarketOpens()
	BeforeMarketClosing()
	AfterMarketCloses()
	OnFilledOrder(o *orders.Order)
	OnCanceledOrder(o *orders.Order)
	OnNewOrder(o *orders.Order)
	OnAbruptClosing()
	OnBotCrash(err error)
	ShouldContinue() bool
}

// DefaultHooks supplies no-op implementations for every Hooks method so a
// concrete strategy only needs to override what it cares about.
type DefaultHooks struct{}

func (DefaultHooks) Initialize()                      {}
func (DefaultHooks) OnTradingIteration()              {}
func (DefaultHooks) BeforeMarketOpens()                {}
func (DefaultHooks) BeforeMarketClosing()              {}
func (DefaultHooks) AfterMarketCloses()                {}
func (DefaultHooks) OnFilledOrder(o *orders.Order)     {}
func (DefaultHooks) OnCanceledOrder(o *orders.Order)   {}
func (DefaultHooks) OnNewOrder(o *orders.Order)        {}
func (DefaultHooks) OnAbruptClosing()                  {}
func (DefaultHooks) OnBotCrash(err error)              {}
func (DefaultHooks) ShouldContinue() bool              { return true }

// HookObserver adapts a Hooks implementation to orders.OrderObserver,
// wiring OnNewOrder/OnFilledOrder/OnCanceledOrder into the order book. It
// lives here rather than in internal/orders since internal/orders cannot
// import this package back (strategy already imports orders).
type HookObserver struct {
	Hooks Hooks
}

func (h HookObserver) OnNewOrder(o *orders.Order)      { h.Hooks.OnNewOrder(o) }
func (h HookObserver) OnFilledOrder(o *orders.Order)   { h.Hooks.OnFilledOrder(o) }
func (h HookObserver) OnCanceledOrder(o *orders.Order) { h.Hooks.OnCanceledOrder(o) }

// Context is the capability set (§6) passed to strategy code: order
// submission/cancellation, position/cash queries, bar access, and logging.
type Context struct {
	StrategyID string
	Book       *orders.Book
	Store      *barstore.Store
	Fill       *fillengine.Engine
	Quote      asset.Asset
	now        func() int64
}

// NewContext builds a Context bound to the shared book/store/fill engine
// for one strategy, with nowFn resolving the current virtual clock time.
func NewContext(strategyID string, book *orders.Book, store *barstore.Store, fill *fillengine.Engine, quote asset.Asset, nowFn func() int64) *Context {
	return &Context{StrategyID: strategyID, Book: book, Store: store, Fill: fill, Quote: quote, now: nowFn}
}

// CreateOrder builds a simple order for this strategy; the caller still
// calls SubmitOrder to place it.
func (c *Context) CreateOrder(a asset.Asset, qty decimal.Decimal, side orders.Side, typ orders.Type) *orders.Order {
	return orders.NewOrder(c.StrategyID, a, c.Quote, qty, side, typ)
}

// SubmitOrder submits a simple (non-composite) order.
func (c *Context) SubmitOrder(o *orders.Order) (string, error) {
	return c.Book.Submit(orders.CompositeSpec{Parent: o}, c.now())
}

// SubmitComposite submits a composite order (OCO/OTO/BRACKET/MULTILEG).
func (c *Context) SubmitComposite(spec orders.CompositeSpec) (string, error) {
	return c.Book.Submit(spec, c.now())
}

// DeltaParams carries the observed option-chain inputs ResolveDeltaStrike
// needs to invert Black-Scholes for a "DELTA:0.30" leg.
type DeltaParams struct {
	Spot         float64
	ATMStrike    float64
	DaysToExpiry float64
	RiskFreeRate float64
	ATMCall      float64
	ATMPut       float64
}

// LegSpec describes one MULTILEG leg before its strike is resolved. Strike
// is used verbatim when StrikeExpr is empty; otherwise StrikeExpr is either
// a "{LEGn.FIELD}" relative-strike expression (resolved against already-
// resolved prior legs) or a "DELTA:x" target (resolved via DeltaParams).
type LegSpec struct {
	Underlying asset.Asset
	Expiration string
	Right      asset.Right
	Side       orders.Side
	Quantity   decimal.Decimal
	Strike     float64
	StrikeExpr string
	Delta      *DeltaParams
}

// SubmitMultileg resolves each leg's strike in order — relative-strike and
// delta-target expressions per §4.3 — builds the leg orders, and submits
// the whole spread as one MULTILEG composite.
func (c *Context) SubmitMultileg(parent *orders.Order, legs []LegSpec) (string, error) {
	parent.Class = orders.Multileg
	resolved := make([]orders.ResolvedLeg, 0, len(legs))
	children := make([]*orders.Order, 0, len(legs))
	for _, spec := range legs {
		strike := spec.Strike
		switch {
		case spec.StrikeExpr != "" && orders.IsDeltaExpression(spec.StrikeExpr):
			if spec.Delta == nil {
				return "", fmt.Errorf("%w: delta leg %s missing DeltaParams", lmerr.ErrConfigError, spec.StrikeExpr)
			}
			d := spec.Delta
			s, err := orders.ResolveDeltaStrike(spec.StrikeExpr, d.Spot, d.ATMStrike, d.DaysToExpiry, d.RiskFreeRate, d.ATMCall, d.ATMPut, spec.Right == asset.Call)
			if err != nil {
				return "", err
			}
			strike = s
		case spec.StrikeExpr != "":
			s, err := orders.EvaluateLegExpression(spec.StrikeExpr, resolved)
			if err != nil {
				return "", err
			}
			strike = s
		}

		a := asset.NewOption(spec.Underlying.Symbol, spec.Expiration, strike, spec.Right)
		premium, _ := c.GetLastPrice(a)
		resolved = append(resolved, orders.ResolvedLeg{Strike: strike, OpenPremium: premium.InexactFloat64()})
		children = append(children, orders.NewOrder(c.StrategyID, a, c.Quote, spec.Quantity, spec.Side, orders.Market))
	}
	return c.Book.Submit(orders.CompositeSpec{Parent: parent, Children: children}, c.now())
}

// CancelOrder cancels a single order by id.
func (c *Context) CancelOrder(orderID string) error {
	return c.Book.Cancel(orderID)
}

// CancelOpenOrders cancels every active order this strategy holds.
func (c *Context) CancelOpenOrders() error {
	for _, o := range c.Book.ListActive(c.StrategyID) {
		if err := c.Book.Cancel(o.ID); err != nil {
			return err
		}
	}
	return nil
}

// GetPosition returns the current position for an asset, or nil if flat.
func (c *Context) GetPosition(a asset.Asset) *fillengine.Position {
	return c.Fill.Portfolio(c.StrategyID, decimal.Zero).Position(a)
}

// GetPositions returns every open position for this strategy.
func (c *Context) GetPositions() []*fillengine.Position {
	return c.Fill.Portfolio(c.StrategyID, decimal.Zero).Positions()
}

// GetLastPrice returns the asset's last trade-based price at the current
// virtual time.
func (c *Context) GetLastPrice(a asset.Asset) (decimal.Decimal, bool) {
	return c.Store.GetLastPrice(a, c.Quote, c.now())
}

// GetHistoricalPrices returns up to length bars at the given timestep
// ending at-or-before the current virtual time.
func (c *Context) GetHistoricalPrices(a asset.Asset, length int, ts asset.Timestep) (*asset.BarSeries, bool) {
	return c.Store.GetHistoricalPrices(a, c.Quote, length, ts, c.now(), 0)
}

// GetCash returns the strategy's current cash balance.
func (c *Context) GetCash() decimal.Decimal {
	return c.Fill.Portfolio(c.StrategyID, decimal.Zero).Cash
}

// GetPortfolioValue computes the strategy's current portfolio value using
// markPrice to resolve a mark for each open position.
func (c *Context) GetPortfolioValue(markPrice func(asset.Asset) (decimal.Decimal, bool)) decimal.Decimal {
	return c.Fill.Portfolio(c.StrategyID, decimal.Zero).PortfolioValue(markPrice)
}

// LogMessage logs an informational message tagged with the strategy id.
func (c *Context) LogMessage(msg string) {
	logger.Infof("[%s] %s", c.StrategyID, msg)
}

package orders

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/lumicore/backtest/internal/asset"
	"github.com/lumicore/backtest/internal/lmerr"
	"github.com/lumicore/backtest/internal/logger"
)

// Book stores all orders by id and enforces state transitions. A single
// mutex guards every collection access — backtesting runs single-threaded,
// but the same lock keeps the code path safe for a live-trading mode where a
// broker stream thread dispatches order events concurrently (§5).
type Book struct {
	mu sync.Mutex

	byID       map[string]*Order
	byStrategy map[string][]string // strategyID -> order ids, insertion order
	submitSeq  int64

	observer OrderObserver
}

// OrderObserver receives order-lifecycle notifications corresponding to
// §6's OnNewOrder/OnFilledOrder/OnCanceledOrder strategy hooks. Defined
// here, rather than importing internal/strategy, since internal/strategy
// already imports this package — the executor wires the concrete Hooks
// implementation in via SetObserver.
type OrderObserver interface {
	OnNewOrder(o *Order)
	OnFilledOrder(o *Order)
	OnCanceledOrder(o *Order)
}

// NewBook creates an empty order book.
func NewBook() *Book {
	return &Book{
		byID:       make(map[string]*Order),
		byStrategy: make(map[string][]string),
	}
}

// SetObserver registers the order-lifecycle hook sink. A nil observer (the
// zero value) is valid and simply means no hooks fire.
func (b *Book) SetObserver(obs OrderObserver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observer = obs
}

// NotifyFilled invokes the registered observer's OnFilledOrder hook. The
// fill engine calls this after transitioning an order to FILLED, since that
// transition happens outside the order book.
func (b *Book) NotifyFilled(o *Order) {
	b.mu.Lock()
	obs := b.observer
	b.mu.Unlock()
	if obs != nil {
		obs.OnFilledOrder(o)
	}
}

// CompositeSpec describes a composite order before flattening: the parent
// plus its configured children, keyed by role. Fields not relevant to the
// given Class are ignored.
type CompositeSpec struct {
	Parent   *Order
	Children []*Order // OCO: both children submitted immediately.
	                   // OTO/BRACKET: queued, submitted on parent fill.
	                   // MULTILEG: each leg submitted immediately, independent.
}

// Submit records the orders (ids come from NewOrder), sets status
// NEW->SUBMITTED, flattens composites into
// children per §4.3, and returns the parent's order id.
func (b *Book) Submit(spec CompositeSpec, now int64) (string, error) {
	id, notify, err := b.submitLocked(spec, now)
	if err != nil {
		return "", err
	}
	for _, o := range notify {
		b.notifyNew(o)
	}
	return id, nil
}

func (b *Book) notifyNew(o *Order) {
	if b.observer != nil {
		b.observer.OnNewOrder(o)
	}
}

func (b *Book) submitLocked(spec CompositeSpec, now int64) (string, []*Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var notify []*Order
	parent := spec.Parent
	parent.CreatedAt = now
	b.submitSeq++
	parent.submitSeq = b.submitSeq
	b.insert(parent)

	switch parent.Class {
	case Simple:
		if err := parent.Transition(Submitted, "submit"); err != nil {
			return "", nil, err
		}
		notify = append(notify, parent)
	case OCO:
		// Parent is a placeholder; both children submit immediately and
		// reference each other as DependentID for mutual cancellation.
		if len(spec.Children) != 2 {
			return "", nil, lmerr.ErrConfigError
		}
		c0, c1 := spec.Children[0], spec.Children[1]
		c0.ParentID, c1.ParentID = parent.ID, parent.ID
		c0.DependentID, c1.DependentID = c1.ID, c0.ID
		parent.ChildIDs = []string{c0.ID, c1.ID}
		for _, c := range spec.Children {
			b.submitSeq++
			c.submitSeq = b.submitSeq
			b.insert(c)
			if err := c.Transition(Submitted, "submit"); err != nil {
				return "", nil, err
			}
			notify = append(notify, c)
		}
		if err := parent.Transition(Submitted, "submit"); err != nil {
			return "", nil, err
		}
		notify = append(notify, parent)
	case OTO, Bracket:
		// Parent is a normal order; children are queued (kept in ChildIDs
		// but left in status NEW) until the parent fills.
		if err := parent.Transition(Submitted, "submit"); err != nil {
			return "", nil, err
		}
		notify = append(notify, parent)
		for _, c := range spec.Children {
			c.ParentID = parent.ID
			c.Status = New
			b.submitSeq++
			c.submitSeq = b.submitSeq
			b.insert(c)
			parent.ChildIDs = append(parent.ChildIDs, c.ID)
		}
		if parent.Class == Bracket && len(spec.Children) == 2 {
			spec.Children[0].DependentID = spec.Children[1].ID
			spec.Children[1].DependentID = spec.Children[0].ID
		}
	case Multileg:
		// Synthetic parent; each leg submits and fills independently.
		if err := parent.Transition(Submitted, "submit"); err != nil {
			return "", nil, err
		}
		notify = append(notify, parent)
		for _, c := range spec.Children {
			c.ParentID = parent.ID
			b.submitSeq++
			c.submitSeq = b.submitSeq
			b.insert(c)
			if err := c.Transition(Submitted, "submit"); err != nil {
				return "", nil, err
			}
			notify = append(notify, c)
			parent.ChildIDs = append(parent.ChildIDs, c.ID)
		}
	}
	return parent.ID, notify, nil
}

func (b *Book) insert(o *Order) {
	b.byID[o.ID] = o
	b.byStrategy[o.StrategyID] = append(b.byStrategy[o.StrategyID], o.ID)
}

// SubmitQueuedChildren submits an OTO/BRACKET parent's queued children after
// the parent fills (§4.4 step 2).
func (b *Book) SubmitQueuedChildren(parentID string) error {
	notify, err := b.submitQueuedChildrenLocked(parentID)
	if err != nil {
		return err
	}
	for _, o := range notify {
		b.notifyNew(o)
	}
	return nil
}

func (b *Book) submitQueuedChildrenLocked(parentID string) ([]*Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	parent, ok := b.byID[parentID]
	if !ok {
		return nil, lmerr.ErrInvariantViolated
	}
	var notify []*Order
	for _, cid := range parent.ChildIDs {
		child := b.byID[cid]
		if child.Status == New {
			if err := child.Transition(Submitted, "submit"); err != nil {
				return nil, err
			}
			notify = append(notify, child)
		}
	}
	return notify, nil
}

// Cancel transitions an order to CANCELED and cascades to all descendants.
func (b *Book) Cancel(orderID string) error {
	b.mu.Lock()
	var notify []*Order
	err := b.cancelLocked(orderID, &notify)
	b.mu.Unlock()
	if err != nil {
		return err
	}
	for _, o := range notify {
		if b.observer != nil {
			b.observer.OnCanceledOrder(o)
		}
	}
	return nil
}

func (b *Book) cancelLocked(orderID string, notify *[]*Order) error {
	o, ok := b.byID[orderID]
	if !ok {
		return lmerr.ErrInvariantViolated
	}
	if o.IsTerminal() {
		return nil
	}
	if err := o.Transition(Canceled, "cancel"); err != nil {
		return err
	}
	*notify = append(*notify, o)
	for _, cid := range o.ChildIDs {
		if err := b.cancelLocked(cid, notify); err != nil {
			return err
		}
	}
	return nil
}

// HandleFill applies the OCO/cascade consequences of an order filling:
// cancels its DependentID sibling, and if the order is an OTO/BRACKET
// parent, submits its queued children. The fill engine calls this before
// computing trade cost, per §4.4 steps 1-2.
func (b *Book) HandleFill(orderID string) error {
	b.mu.Lock()
	o, ok := b.byID[orderID]
	if !ok {
		b.mu.Unlock()
		return lmerr.ErrInvariantViolated
	}
	dep := o.DependentID
	b.mu.Unlock()

	if dep != "" {
		b.mu.Lock()
		sibling, ok := b.byID[dep]
		b.mu.Unlock()
		if ok && sibling.IsActive() {
			sibling.DependentOrderFilled = true
			if err := b.Cancel(dep); err != nil {
				return err
			}
		}
	}
	if o.Class == OTO || o.Class == Bracket {
		if err := b.SubmitQueuedChildren(orderID); err != nil {
			return err
		}
	}
	return nil
}

// SettleParentStatus mirrors a composite parent's status to its children's
// collective outcome: OCO placeholder mirrors the winning child's terminal
// state (Open Question 2); MULTILEG parent is FILLED only when every leg is
// FILLED, and its quantity/avg price are recomputed from the legs.
func (b *Book) SettleParentStatus(parentID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	parent, ok := b.byID[parentID]
	if !ok {
		return lmerr.ErrInvariantViolated
	}
	switch parent.Class {
	case OCO:
		// A FILLED child wins over a CANCELED one, whatever their order.
		var winner *Order
		for _, cid := range parent.ChildIDs {
			if child := b.byID[cid]; child.Status == Filled || (child.Status == Canceled && winner == nil) {
				winner = child
			}
		}
		if winner != nil {
			cond, target := "fill", Filled
			if winner.Status == Canceled {
				cond, target = "cancel", Canceled
			}
			if parent.Status != target {
				_ = parent.Transition(target, cond)
			}
		}
	case Multileg:
		allFilled := true
		avgSum, qtySum := decimal.Zero, decimal.Zero
		for _, cid := range parent.ChildIDs {
			child := b.byID[cid]
			if child.Status != Filled {
				allFilled = false
			}
			sign := decimal.NewFromInt(-1)
			if child.Side.IsBuySide() {
				sign = decimal.NewFromInt(1)
			}
			avgSum = avgSum.Add(sign.Mul(child.AvgFillPrice))
			qtySum = qtySum.Add(child.FilledQty.Abs())
		}
		parent.AvgFillPrice = avgSum
		parent.FilledQty = qtySum
		if allFilled && parent.Status != Filled {
			_ = parent.Transition(Filled, "fill")
		}
	}
	return nil
}

// Get returns an order by id.
func (b *Book) Get(orderID string) (*Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.byID[orderID]
	return o, ok
}

// ListActive returns every active (non-terminal) order for a strategy, in
// submission order.
func (b *Book) ListActive(strategyID string) []*Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*Order
	for _, id := range b.byStrategy[strategyID] {
		o := b.byID[id]
		if o.IsActive() {
			out = append(out, o)
		}
	}
	return out
}

// AllForStrategy returns every order (any status) for a strategy, in
// submission order. Used by the report package to persist the full
// orders/fills ledger at the end of a run.
func (b *Book) AllForStrategy(strategyID string) []*Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Order, 0, len(b.byStrategy[strategyID]))
	for _, id := range b.byStrategy[strategyID] {
		out = append(out, b.byID[id])
	}
	return out
}

// ListByAsset returns every order (active or not) on the given asset.
func (b *Book) ListByAsset(a asset.Asset) []*Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*Order
	for _, o := range b.byID {
		if o.Asset == a {
			out = append(out, o)
		}
	}
	return out
}

// Modify changes a LIMIT/STOP order's price(s); a nil argument leaves that
// price unchanged. No side or quantity changes are permitted.
func (b *Book) Modify(orderID string, limit, stop *decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.byID[orderID]
	if !ok {
		return lmerr.ErrInvariantViolated
	}
	if !o.IsActive() {
		return lmerr.ErrInvariantViolated
	}
	if limit != nil {
		o.Prices.Limit = limit
	}
	if stop != nil {
		o.Prices.Stop = stop
	}
	return nil
}

// ForceClosePositionOrders cancels every still-active order for (strategyID,
// a) except keepOrderID, per the cascade invariant that a position reaching
// zero cancels its remaining child orders.
func (b *Book) ForceClosePositionOrders(strategyID string, a asset.Asset, keepOrderID string) error {
	b.mu.Lock()
	var toCancel []string
	for _, id := range b.byStrategy[strategyID] {
		o := b.byID[id]
		if o.Asset == a && o.IsActive() && o.ID != keepOrderID {
			toCancel = append(toCancel, id)
		}
	}
	b.mu.Unlock()
	for _, id := range toCancel {
		if err := b.Cancel(id); err != nil {
			logger.Errorf("order book: force-close cancel failed for %s: %v", id, err)
			return err
		}
	}
	return nil
}

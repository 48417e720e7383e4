package orders

import "fmt"

// Transition defines one allowed order-status transition along with the
// condition that triggers it. The shape and the precomputed-lookup
// construction below are grounded directly on
// eddiefleurent-scranton_strangler's position state machine
// (ValidTransitions / transitionLookup / init()).
type Transition struct {
	From      Status
	To        Status
	Condition string
}

// ValidTransitions enumerates every allowed order-status transition per the
// state diagram in §4.3.
var ValidTransitions = []Transition{
	{New, Submitted, "submit"},
	{Submitted, PartialFill, "partial_fill"},
	{Submitted, Filled, "fill"},
	{PartialFill, PartialFill, "partial_fill"},
	{PartialFill, Filled, "fill"},
	{Submitted, Canceled, "cancel"},
	{PartialFill, Canceled, "cancel"},
	{New, Canceled, "cancel"},
	{Submitted, Expired, "expire"},
	{PartialFill, Expired, "expire"},
	{New, Rejected, "reject"},
	{Submitted, Rejected, "reject"},
}

// transitionLookup gives O(1) validity checks: map[from][to][condition].
var transitionLookup map[Status]map[Status]map[string]bool

func init() {
	transitionLookup = make(map[Status]map[Status]map[string]bool)
	for _, t := range ValidTransitions {
		if transitionLookup[t.From] == nil {
			transitionLookup[t.From] = make(map[Status]map[string]bool)
		}
		if transitionLookup[t.From][t.To] == nil {
			transitionLookup[t.From][t.To] = make(map[string]bool)
		}
		transitionLookup[t.From][t.To][t.Condition] = true
	}
}

// IsValidTransition reports whether moving an order from `from` to `to`
// under `condition` is allowed by the state diagram.
func IsValidTransition(from, to Status, condition string) bool {
	byTo, ok := transitionLookup[from]
	if !ok {
		return false
	}
	conds, ok := byTo[to]
	if !ok {
		return false
	}
	return conds[condition]
}

// Transition applies a state transition to the order, returning an error if
// the transition isn't valid from the order's current status. The book and
// the fill engine route status changes through it; the one direct
// assignment is Book.Submit resetting a queued OTO/BRACKET child to NEW.
func (o *Order) Transition(to Status, condition string) error {
	if !IsValidTransition(o.Status, to, condition) {
		return fmt.Errorf("invalid order transition from %s to %s (condition=%s)", o.Status, to, condition)
	}
	o.Status = to
	return nil
}

// Package lmerr holds the typed error kinds used across the backtesting
// core, following the teacher's style of sentinel errors wrapped with
// fmt.Errorf("...: %w", ...) rather than ad-hoc string errors.
package lmerr

import "errors"

// Sentinel kinds. Callers wrap these with context via fmt.Errorf("%w: ...").
var (
	// ErrDataMissing indicates a requested bar or price was not available.
	// Handled locally: callers return nil/false and log at debug.
	ErrDataMissing = errors.New("data missing")

	// ErrLookAhead indicates an attempted read at ts > now. This is a bug in
	// caller code; it is asserted against in development and otherwise
	// degrades to ErrDataMissing semantics.
	ErrLookAhead = errors.New("look-ahead read")

	// ErrInvariantViolated indicates corrupted internal state: a position
	// sign mismatch, a negative quantity, an unknown order state. Fatal in
	// backtest mode.
	ErrInvariantViolated = errors.New("invariant violated")

	// ErrConfigError indicates invalid configuration: unknown sleeptime,
	// unknown market, missing credentials. Fatal at startup.
	ErrConfigError = errors.New("configuration error")

	// ErrFillImpossible indicates a data source returned nothing for an
	// order's asset; the order is canceled and the backtest continues.
	ErrFillImpossible = errors.New("fill impossible")
)

// StrategyException wraps a panic or error recovered from user strategy
// code. Backtesting carries Backtesting=true so the executor knows to
// propagate and terminate the run rather than log and continue.
type StrategyException struct {
	Backtesting bool
	Hook        string // where it was raised; Executor.Run records "run" for any recovered panic
	Err         error
}

func (e *StrategyException) Error() string {
	return "strategy exception in " + e.Hook + ": " + e.Err.Error()
}

func (e *StrategyException) Unwrap() error { return e.Err }

// Is supports errors.Is(err, lmerr.ErrDataMissing) style checks against the
// sentinel kinds above.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}

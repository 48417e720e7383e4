package orders

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/lumicore/backtest/internal/lmerr"
	"github.com/lumicore/backtest/internal/pricing"
)

// ErrInvalidStrikeExpression and ErrLegIndexOutOfRange mirror the teacher's
// typed-error style in its strategy planner: callers can branch on error
// kind instead of matching strings.
var (
	ErrInvalidStrikeExpression = errors.New("invalid strike expression")
	ErrLegIndexOutOfRange      = errors.New("leg index out of range")
)

// ResolvedLeg is one already-priced MULTILEG component, carrying just
// enough to resolve a later leg's relative-strike expression.
type ResolvedLeg struct {
	Strike      float64
	OpenPremium float64
}

var legExprPattern = regexp.MustCompile(`\{LEG(\d)\.(STRIKE|PREMIUM)\}`)

// EvaluateLegExpression evaluates a MULTILEG relative-strike expression like
// "{LEG1.STRIKE}+{LEG1.PREMIUM}" against already-resolved prior legs,
// substituting each {LEGn.FIELD} reference with its numeric value and then
// evaluating the resulting arithmetic expression via govaluate.
func EvaluateLegExpression(expr string, legs []ResolvedLeg) (float64, error) {
	matches := legExprPattern.FindAllStringSubmatch(expr, -1)
	if matches == nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidStrikeExpression, expr)
	}

	evalStr := expr
	for _, match := range matches {
		idx, _ := strconv.Atoi(match[1])
		idx-- // LEG1 -> index 0
		if idx < 0 || idx >= len(legs) {
			return 0, fmt.Errorf("%w: %s", ErrLegIndexOutOfRange, match[0])
		}
		var value float64
		if match[2] == "STRIKE" {
			value = legs[idx].Strike
		} else {
			value = legs[idx].OpenPremium
		}
		evalStr = strings.Replace(evalStr, match[0], fmt.Sprintf("%f", value), 1)
	}

	evalExpr, err := govaluate.NewEvaluableExpression(evalStr)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", lmerr.ErrConfigError, err)
	}
	result, err := evalExpr.Evaluate(nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", lmerr.ErrConfigError, err)
	}
	f, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: non-numeric result", ErrInvalidStrikeExpression)
	}
	return f, nil
}

var deltaLegPattern = regexp.MustCompile(`^DELTA:(-?[0-9]*\.?[0-9]+)$`)

// IsDeltaExpression reports whether a strike expression is a "DELTA:0.30"
// style reference rather than a {LEGn.FIELD} relative-strike expression.
func IsDeltaExpression(expr string) bool {
	return deltaLegPattern.MatchString(expr)
}

// ResolveDeltaStrike resolves a "DELTA:0.30" leg expression to a concrete
// strike, inverting Black-Scholes via pricing.StrikeFromDelta against the
// implied volatility backed out from observed ATM call/put premiums. This
// keeps the teacher's pricing dependency exercised by the order layer
// without the Fill Engine itself ever pricing from a model (§4.4 only fills
// from bar OHLC).
func ResolveDeltaStrike(expr string, spot, atmStrike, daysToExpiry, riskFreeRate, atmCall, atmPut float64, isCall bool) (float64, error) {
	m := deltaLegPattern.FindStringSubmatch(expr)
	if m == nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidStrikeExpression, expr)
	}
	targetDelta, _ := strconv.ParseFloat(m[1], 64)

	yearsToExpiry := daysToExpiry / 365.25
	iv, err := pricing.ImpliedVolATM(spot, atmStrike, yearsToExpiry, riskFreeRate, atmCall, atmPut)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", lmerr.ErrConfigError, err)
	}
	return pricing.StrikeFromDelta(spot, targetDelta, riskFreeRate, 0.0, iv, yearsToExpiry, isCall), nil
}

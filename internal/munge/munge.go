// Package munge rounds and validates prices and quantities against a
// venue's per-symbol filters. Everything here is pure: no I/O, no clock,
// decimal arithmetic only.
package munge

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"trading-engine/pkg/exchanges/common"
)

// ErrBelowMinimum is wrapped by every rejection in this package so callers
// can treat all constraint violations uniformly.
var ErrBelowMinimum = errors.New("below exchange minimum")

// Price rounds price down to the symbol's tick size. A zero price passes
// through unchanged; it is the market-order sentinel and carries no
// granularity. A nonzero price that truncates to zero is rejected: it
// must never turn into the sentinel. Rounding is always truncation toward
// zero so orders never overshoot the allowed granularity upward.
func Price(rules common.SymbolRules, price decimal.Decimal) (decimal.Decimal, error) {
	if price.IsZero() {
		return price, nil
	}
	munged := roundToStep(price, rules.TickSize)
	if munged.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: price %s rounds to zero at tick %s for %s",
			ErrBelowMinimum, price, rules.TickSize, rules.Symbol)
	}
	if munged.LessThan(rules.MinPrice) {
		return decimal.Zero, fmt.Errorf("%w: price %s under min price %s for %s",
			ErrBelowMinimum, munged, rules.MinPrice, rules.Symbol)
	}
	return munged, nil
}

// Quantity rounds qty down to the symbol's lot step size and rejects
// quantities under the symbol minimum.
func Quantity(rules common.SymbolRules, qty decimal.Decimal) (decimal.Decimal, error) {
	munged := roundToStep(qty, rules.StepSize)
	if munged.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: quantity %s rounds to zero at step %s for %s",
			ErrBelowMinimum, qty, rules.StepSize, rules.Symbol)
	}
	if munged.LessThan(rules.MinQty) {
		return decimal.Zero, fmt.Errorf("%w: quantity %s under min quantity %s for %s",
			ErrBelowMinimum, munged, rules.MinQty, rules.Symbol)
	}
	return munged, nil
}

// CheckNotional rejects orders whose price*qty is under the symbol's
// minimum notional. A zero price is exempt: market orders execute at the
// book price, which the venue checks itself.
func CheckNotional(rules common.SymbolRules, price, qty decimal.Decimal) error {
	if price.IsZero() {
		return nil
	}
	notional := price.Mul(qty)
	if notional.LessThan(rules.MinNotional) {
		return fmt.Errorf("%w: notional %s under min notional %s for %s",
			ErrBelowMinimum, notional, rules.MinNotional, rules.Symbol)
	}
	return nil
}

// AmountAndCheckNotionals munges qty once and then validates it against
// every supplied reference price, so a single base amount is guaranteed
// tradeable at each price it may execute at (entry, stop, target, limit).
func AmountAndCheckNotionals(rules common.SymbolRules, qty decimal.Decimal, prices ...decimal.Decimal) (decimal.Decimal, error) {
	munged, err := Quantity(rules, qty)
	if err != nil {
		return decimal.Zero, err
	}
	for _, p := range prices {
		if err := CheckNotional(rules, p, munged); err != nil {
			return decimal.Zero, err
		}
	}
	return munged, nil
}

// roundToStep truncates v to the largest multiple of step not exceeding v.
// A zero step leaves v untouched (venue publishes no granularity).
func roundToStep(v, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}

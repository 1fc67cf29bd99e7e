package discount

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Subtotal returns the sum of unit price times quantity across all lines.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

// ComputeAmount calculates the monetary contribution of a discount against
// the given cart snapshot. For PRODUCT-scoped discounts the calculation is
// restricted to lines in the discount's product set. The result is rounded
// to 2 decimal places, clamped at zero, and capped at the subtotal it was
// computed against.
func ComputeAmount(d *Discount, lines []Line, subtotal decimal.Decimal) decimal.Decimal {
	base := subtotal
	if d.Scope == ScopeProduct {
		base = eligibleSubtotal(d, lines)
	}

	var amount decimal.Decimal
	switch d.Type {
	case TypePercentage:
		amount = base.Mul(d.Value).Div(hundred)
	case TypeFixed:
		amount = decimal.Min(d.Value, base)
	default:
		return decimal.Zero
	}

	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(base) {
		amount = base
	}
	return amount.Round(2)
}

// eligibleSubtotal sums lines whose product is in the discount's set.
func eligibleSubtotal(d *Discount, lines []Line) decimal.Decimal {
	eligible := make(map[string]struct{}, len(d.ProductIDs))
	for _, id := range d.ProductIDs {
		eligible[id] = struct{}{}
	}

	sum := decimal.Zero
	for _, l := range lines {
		if _, ok := eligible[l.ProductID]; ok {
			sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
		}
	}
	return sum
}

// CheckGates runs the shared eligibility gates in their fixed order:
// not-yet-active, expired, usage limit, order minimum. The first failing
// gate wins. Called both on code entry and during order commit.
func CheckGates(d *Discount, subtotal decimal.Decimal, now time.Time) error {
	if d.StartsAt != nil && d.StartsAt.After(now) {
		return ErrNotYetActive
	}
	if d.ExpiresAt != nil && d.ExpiresAt.Before(now) {
		return ErrExpired
	}
	if d.MaxUses != nil && d.UsedCount >= *d.MaxUses {
		return ErrUsageLimit
	}
	if d.MinOrder != nil && subtotal.LessThan(*d.MinOrder) {
		return &MinOrderError{Min: *d.MinOrder}
	}
	return nil
}

// newApplied builds the Applied result for a discount and computed amount.
func newApplied(d *Discount, amount decimal.Decimal) Applied {
	return Applied{
		DiscountID:  d.ID,
		Code:        d.Code,
		Type:        d.Type,
		Scope:       d.Scope,
		Method:      d.Method,
		Stackable:   d.Stackable,
		Value:       d.Value,
		Amount:      amount,
		Description: d.Description,
	}
}

// selectAuto picks the winning set among qualifying AUTO discounts: all
// stackable ones when their combined amount beats (or ties) the best
// non-stackable candidate, otherwise the single best non-stackable one.
// Ties between non-stackable candidates go to the first seen.
func selectAuto(candidates []Applied) []Applied {
	var (
		stackable    []Applied
		stackableSum = decimal.Zero
		best         *Applied
	)
	for i := range candidates {
		c := candidates[i]
		if c.Stackable {
			stackable = append(stackable, c)
			stackableSum = stackableSum.Add(c.Amount)
			continue
		}
		if best == nil || c.Amount.GreaterThan(best.Amount) {
			best = &candidates[i]
		}
	}

	switch {
	case len(stackable) > 0 && (best == nil || stackableSum.GreaterThanOrEqual(best.Amount)):
		return stackable
	case best != nil:
		return []Applied{*best}
	default:
		return nil
	}
}

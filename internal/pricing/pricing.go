package pricing

import (
	"errors"

	"cart-sync-service/internal/models"
)

// Discount validation errors
var (
	ErrDiscountNotFound  = errors.New("discount code not found")
	ErrDiscountDuplicate = errors.New("discount code already applied")
	ErrDiscountExcluded  = errors.New("discount code excluded by an applied code")
)

// ComputeTotals computes subtotal, stacked discount amount and total for a
// cart, in minor units. Discounts are applied in slice order; each one is
// clamped to the subtotal remaining after prior codes so stacking can never
// drive the total negative. This is an optimistic approximation of the
// authoritative server computation and must match it exactly for the same
// inputs.
func ComputeTotals(items []models.LineItem, discounts []models.DiscountCode) models.Totals {
	var subtotal int64
	for i := range items {
		subtotal += items[i].UnitPrice * int64(items[i].Quantity)
	}

	var discountAmount int64
	remaining := subtotal
	for i := range discounts {
		nominal := nominalAmount(&discounts[i], remaining)
		if nominal > remaining {
			nominal = remaining
		}
		if nominal < 0 {
			nominal = 0
		}
		discountAmount += nominal
		remaining -= nominal
	}

	total := subtotal - discountAmount
	if total < 0 {
		total = 0
	}

	return models.Totals{
		Subtotal:       subtotal,
		DiscountAmount: discountAmount,
		Total:          total,
	}
}

// nominalAmount computes a discount's raw value before clamping. Percent
// codes apply to the remaining subtotal, rounded half-up.
func nominalAmount(d *models.DiscountCode, remaining int64) int64 {
	switch d.Kind {
	case models.DiscountKindPercent:
		return (remaining*d.Amount + 50) / 100
	case models.DiscountKindFixedAmount:
		return d.Amount
	default:
		return 0
	}
}

// ValidateApply checks whether a code can be added to the applied set.
// found reports whether the code exists in the catalog at all; callers pass
// the catalog row (or nil) plus the currently applied codes.
func ValidateApply(code *models.DiscountCode, applied []models.DiscountCode) error {
	if code == nil {
		return ErrDiscountNotFound
	}
	for i := range applied {
		if applied[i].NormalizedCode() == code.NormalizedCode() {
			return ErrDiscountDuplicate
		}
		if code.ExclusionGroup != "" && applied[i].ExclusionGroup == code.ExclusionGroup {
			return ErrDiscountExcluded
		}
		if !applied[i].Stackable || !code.Stackable {
			return ErrDiscountExcluded
		}
	}
	return nil
}

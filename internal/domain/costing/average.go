// Package costing computes the moving weighted-average unit cost.
package costing

import (
	"stockledger/internal/core/entity"
	"stockledger/internal/core/types"
)

// ApplyEntry folds a cost-affecting entry of quantityIn units at unitCost
// into the balance average and returns the updated balance.
//
// Only AvgCost changes; the caller adds the quantity. Non-positive entries
// leave the balance untouched. When the balance held nothing (or was
// negative) the entry cost becomes the new average.
func ApplyEntry(b entity.Balance, quantityIn types.Quantity, unitCost types.Money) entity.Balance {
	if !quantityIn.IsPositive() {
		return b
	}

	if !b.Quantity.IsPositive() {
		b.AvgCost = types.RoundCost(unitCost)
		return b
	}

	total := b.Quantity.Add(quantityIn)
	if total.IsZero() {
		return b
	}

	value := b.Quantity.Mul(b.AvgCost).Add(quantityIn.Mul(unitCost))
	b.AvgCost = types.RoundCost(value.Div(total))
	return b
}

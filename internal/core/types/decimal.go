// Package types provides the numeric and calendar helpers shared by the ledger.
package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a monetary amount (unit cost, line total, stock value).
type Money = decimal.Decimal

// Quantity is a stock quantity. Fractional quantities are allowed (kg, m, l).
type Quantity = decimal.Decimal

const (
	// CostPlaces is the precision kept for moving-average unit costs.
	CostPlaces int32 = 6
	// QuantityPlaces is the precision of stored quantities.
	QuantityPlaces int32 = 4
)

// Zero returns the zero decimal.
func Zero() decimal.Decimal {
	return decimal.Zero
}

// MustDecimal parses s and panics on error.
// Use only for constants and tests.
func MustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ParseQuantity parses a decimal quantity from user input.
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty quantity")
	}
	q, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	return q, nil
}

// ClampZero returns q, or zero when q is negative.
func ClampZero(q Quantity) Quantity {
	if q.IsNegative() {
		return decimal.Zero
	}
	return q
}

// RoundCost rounds a unit cost to CostPlaces.
func RoundCost(c Money) Money {
	return c.Round(CostPlaces)
}

// Sum adds all values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// NullOf wraps d into a valid NullDecimal.
func NullOf(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

package costing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/types"
)

func balance(qty, avg string) entity.Balance {
	return entity.Balance{Quantity: types.MustDecimal(qty), AvgCost: types.MustDecimal(avg)}
}

func TestApplyEntry(t *testing.T) {
	tests := []struct {
		name     string
		balance  entity.Balance
		qtyIn    string
		unitCost string
		wantAvg  string
	}{
		{"weighted average", balance("100", "4.00"), "20", "5.00", "4.166667"},
		{"empty balance takes entry cost", balance("0", "0"), "10", "7.25", "7.25"},
		{"negative balance takes entry cost", balance("-5", "3.00"), "10", "6.00", "6"},
		{"zero entry is a no-op", balance("10", "2.00"), "0", "9.00", "2"},
		{"negative entry is a no-op", balance("10", "2.00"), "-3", "9.00", "2"},
		{"free goods dilute the average", balance("10", "2.00"), "10", "0", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyEntry(tt.balance, types.MustDecimal(tt.qtyIn), types.MustDecimal(tt.unitCost))
			assert.True(t, types.MustDecimal(tt.wantAvg).Equal(got.AvgCost), "avg = %s", got.AvgCost)
			assert.True(t, tt.balance.Quantity.Equal(got.Quantity), "quantity must not change")
		})
	}
}

func TestApplyEntry_RoundsToFourPlacesForDisplay(t *testing.T) {
	got := ApplyEntry(balance("100", "4.00"), types.MustDecimal("20"), types.MustDecimal("5.00"))
	assert.Equal(t, "4.1667", got.AvgCost.StringFixed(4))
}

func TestApplyEntry_SplitEntriesMatchSingleEntry(t *testing.T) {
	start := balance("100", "4.00")

	single := ApplyEntry(start, types.MustDecimal("20"), types.MustDecimal("5.00"))

	half := types.MustDecimal("10")
	split := ApplyEntry(start, half, types.MustDecimal("5.00"))
	split.Quantity = split.Quantity.Add(half)
	split = ApplyEntry(split, half, types.MustDecimal("5.00"))

	diff := single.AvgCost.Sub(split.AvgCost).Abs()
	assert.True(t, diff.LessThanOrEqual(decimal.New(1, -5)), "diff = %s", diff)
}

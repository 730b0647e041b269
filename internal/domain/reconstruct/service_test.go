package reconstruct_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/reconstruct"
	"stockledger/internal/infrastructure/storage/memory"
)

var now = time.Date(2025, 2, 1, 15, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memory.Store
	ledger  *ledger.Service
	svc     *reconstruct.Service
	product id.ID
	shelfA  id.ID
	shelfB  id.ID
	receipt id.ID
	issue   id.ID
	count   id.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   memory.NewStore(),
		product: id.New(),
		shelfA:  id.New(),
		shelfB:  id.New(),
		receipt: id.New(),
		issue:   id.New(),
		count:   id.New(),
	}
	f.store.PutProduct(entity.Product{ID: f.product, Code: "P-1", Name: "Bolt"})
	f.store.PutMovementType(entity.MovementType{ID: f.receipt, Code: "RECEIPT", Direction: entity.DirectionIn, AffectsCost: true})
	f.store.PutMovementType(entity.MovementType{ID: f.issue, Code: "ISSUE", Direction: entity.DirectionOut})
	f.store.PutMovementType(entity.MovementType{ID: f.count, Code: "COUNT", Direction: entity.DirectionIn})

	balances := balance.NewStore(f.store.Balances(), f.store.Movements(), f.store, balance.Options{})
	f.ledger = ledger.NewService(f.store.Movements(), f.store.Catalog(), balances, f.store, 3)
	f.svc = reconstruct.NewService(f.store.Movements(), f.store.Balances(), f.store.Catalog(), f.store,
		reconstruct.Options{Now: func() time.Time { return now }})
	return f
}

func day(s string) time.Time {
	d, err := types.ParseDate(s, time.UTC)
	if err != nil {
		panic(err)
	}
	return d
}

func (f *fixture) record(t *testing.T, typeID id.ID, loc id.ID, on, qty, cost string, reset bool) {
	t.Helper()
	in := ledger.AppendInput{
		OccurredAt: day(on).Add(9 * time.Hour),
		TypeID:     typeID,
		ProductID:  f.product,
		Quantity:   types.MustDecimal(qty),
		IsReset:    reset,
	}
	if typeID == f.issue {
		in.OriginID = id.Some(loc)
	} else {
		in.DestinationID = id.Some(loc)
	}
	if cost != "" {
		in.UnitCost = types.NullOf(types.MustDecimal(cost))
	}
	_, err := f.ledger.Append(context.Background(), in)
	require.NoError(t, err)
}

func (f *fixture) quantityAt(t *testing.T, on string) *reconstruct.Result {
	t.Helper()
	res, err := f.svc.QuantityAt(context.Background(), reconstruct.Query{ProductID: f.product, Date: day(on)})
	require.NoError(t, err)
	return res
}

func assertQty(t *testing.T, want string, got types.Quantity) {
	t.Helper()
	assert.True(t, types.MustDecimal(want).Equal(got), "want %s, got %s", want, got)
}

func TestQuantityAt_AnchoredOnCount(t *testing.T) {
	f := newFixture(t)
	f.record(t, f.count, f.shelfA, "2025-01-01", "100", "4", true)
	f.record(t, f.receipt, f.shelfA, "2025-01-10", "20", "5", false)
	f.record(t, f.issue, f.shelfA, "2025-01-20", "30", "", false)

	mid := f.quantityAt(t, "2025-01-15")
	assertQty(t, "120", mid.Quantity)
	assert.Equal(t, reconstruct.BasisAnchor, mid.Basis)
	require.Len(t, mid.Keys, 1)
	require.NotNil(t, mid.Keys[0].AnchorAt)
	assertQty(t, "4", mid.Keys[0].UnitCost)
	assertQty(t, "480", mid.Value)

	late := f.quantityAt(t, "2025-01-25")
	assertQty(t, "90", late.Quantity)
	assert.Equal(t, reconstruct.BasisAnchor, late.Basis)

	// the count happened during the day, so the day before has nothing
	before := f.quantityAt(t, "2024-12-31")
	assertQty(t, "0", before.Quantity)
	assert.Equal(t, reconstruct.BasisBackward, before.Basis)

	sameDay := f.quantityAt(t, "2025-01-01")
	assertQty(t, "100", sameDay.Quantity)
}

func TestQuantityAt_Backward(t *testing.T) {
	f := newFixture(t)
	f.record(t, f.receipt, f.shelfA, "2025-01-05", "50", "2", false)
	f.record(t, f.issue, f.shelfA, "2025-01-12", "10", "", false)

	res := f.quantityAt(t, "2025-01-10")
	assertQty(t, "50", res.Quantity)
	assert.Equal(t, reconstruct.BasisBackward, res.Basis)
	assertQty(t, "100", res.Value)

	assertQty(t, "0", f.quantityAt(t, "2025-01-04").Quantity)
	assertQty(t, "40", f.quantityAt(t, "2025-01-31").Quantity)
}

func TestQuantityAt_LaterCountIsUndoneWithBookQuantity(t *testing.T) {
	f := newFixture(t)
	f.record(t, f.receipt, f.shelfA, "2025-01-05", "50", "2", false)
	f.record(t, f.count, f.shelfA, "2025-01-20", "40", "", true)

	assertQty(t, "50", f.quantityAt(t, "2025-01-10").Quantity)
	assertQty(t, "40", f.quantityAt(t, "2025-01-25").Quantity)
}

func TestQuantityAt_ClampsNegativeToZero(t *testing.T) {
	f := newFixture(t)
	f.record(t, f.issue, f.shelfA, "2025-01-05", "10", "", false)
	f.record(t, f.receipt, f.shelfA, "2025-01-10", "10", "1", false)

	// the raw replay gives -10 on the 7th
	assertQty(t, "0", f.quantityAt(t, "2025-01-07").Quantity)
}

func TestQuantityAt_ClampsEachLocationBeforeSumming(t *testing.T) {
	f := newFixture(t)
	f.record(t, f.receipt, f.shelfB, "2025-01-03", "6", "1", false)
	f.record(t, f.issue, f.shelfA, "2025-01-05", "10", "", false)
	f.record(t, f.receipt, f.shelfA, "2025-01-10", "10", "1", false)

	// shelf A replays to -10 on the 7th and must not eat shelf B's 6
	res := f.quantityAt(t, "2025-01-07")
	assertQty(t, "6", res.Quantity)
	require.Len(t, res.Keys, 2)
	for _, k := range res.Keys {
		if k.Key.LocationID == f.shelfA {
			assertQty(t, "0", k.Quantity)
		}
	}
}

func TestQuantityAt_Today(t *testing.T) {
	f := newFixture(t)
	f.record(t, f.receipt, f.shelfA, "2025-01-05", "7", "3", false)

	res, err := f.svc.QuantityAt(context.Background(), reconstruct.Query{ProductID: f.product, Date: now})
	require.NoError(t, err)
	assertQty(t, "7", res.Quantity)
	assert.Equal(t, reconstruct.BasisCurrent, res.Basis)
	assertQty(t, "21", res.Value)
}

func TestQuantityAt_NoMovementsAtAll(t *testing.T) {
	f := newFixture(t)

	res := f.quantityAt(t, "2025-01-10")
	assertQty(t, "0", res.Quantity)
	assert.Empty(t, res.Keys)
}

func TestQuantityAt_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.QuantityAt(ctx, reconstruct.Query{ProductID: f.product, Date: day("2025-02-02")})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidDateRange), "got %v", err)

	_, err = f.svc.QuantityAt(ctx, reconstruct.Query{ProductID: id.New(), Date: day("2025-01-02")})
	assert.True(t, apperror.HasCode(err, apperror.CodeUnknownProduct), "got %v", err)
}

func TestQuantityAt_AcrossLocations(t *testing.T) {
	f := newFixture(t)
	f.record(t, f.count, f.shelfA, "2025-01-02", "30", "1", true)
	f.record(t, f.receipt, f.shelfB, "2025-01-03", "12", "1", false)
	f.record(t, f.issue, f.shelfB, "2025-01-20", "2", "", false)

	all := f.quantityAt(t, "2025-01-10")
	assertQty(t, "42", all.Quantity)
	assert.Equal(t, reconstruct.BasisMixed, all.Basis)
	assert.Len(t, all.Keys, 2)
	assert.True(t, all.AnchoredSince(day("2025-01-01")))
	assert.False(t, all.AnchoredSince(day("2025-01-03")))

	onlyB, err := f.svc.QuantityAt(context.Background(), reconstruct.Query{
		ProductID:  f.product,
		LocationID: &f.shelfB,
		Date:       day("2025-01-10"),
	})
	require.NoError(t, err)
	assertQty(t, "12", onlyB.Quantity)
	assert.Equal(t, reconstruct.BasisBackward, onlyB.Basis)
}

func TestQuantityAt_LatestCountBeforeDateWins(t *testing.T) {
	f := newFixture(t)
	f.record(t, f.count, f.shelfA, "2025-01-01", "100", "4", true)
	f.record(t, f.receipt, f.shelfA, "2025-01-05", "20", "5", false)
	f.record(t, f.count, f.shelfA, "2025-01-09", "50", "", true)
	f.record(t, f.issue, f.shelfA, "2025-01-13", "5", "", false)

	tests := []struct {
		on       string
		want     string
		anchorOn string
	}{
		{on: "2025-01-07", want: "120", anchorOn: "2025-01-01"},
		{on: "2025-01-09", want: "50", anchorOn: "2025-01-09"},
		{on: "2025-01-11", want: "50", anchorOn: "2025-01-09"},
		{on: "2025-01-15", want: "45", anchorOn: "2025-01-09"},
	}
	for _, tt := range tests {
		t.Run(tt.on, func(t *testing.T) {
			res := f.quantityAt(t, tt.on)
			assertQty(t, tt.want, res.Quantity)
			assert.Equal(t, reconstruct.BasisAnchor, res.Basis)
			require.Len(t, res.Keys, 1)
			require.NotNil(t, res.Keys[0].AnchorAt)
			assert.Equal(t, day(tt.anchorOn).Add(9*time.Hour), res.Keys[0].AnchorAt.UTC())
		})
	}
}

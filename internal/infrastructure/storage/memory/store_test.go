package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/ledger"
)

func sample(productID id.ID, key string) *entity.Movement {
	m := &entity.Movement{
		ID:         id.New(),
		OccurredAt: time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC),
		Direction:  entity.DirectionIn,
		ProductID:  productID,
		Quantity:   types.MustDecimal("1"),
	}
	if key != "" {
		m.IdempotencyKey = &key
	}
	return m
}

func TestRunInTransaction_RollsBackOnError(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	pid := id.New()
	boom := errors.New("boom")

	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Movements().Append(ctx, sample(pid, "")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	list, err := s.Movements().List(ctx, ledger.MovementFilter{ProductID: pid})
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, s.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.Movements().Append(ctx, sample(pid, ""))
	}))
	list, err = s.Movements().List(ctx, ledger.MovementFilter{ProductID: pid})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].Seq, "rolled back sequence numbers are reused")
}

func TestReadOnly_RejectsWrites(t *testing.T) {
	s := NewStore()
	err := s.ReadOnly(context.Background(), func(ctx context.Context) error {
		return s.Movements().Append(ctx, sample(id.New(), ""))
	})
	assert.ErrorIs(t, err, errReadOnly)
}

func TestAppend_DuplicateIdempotencyKey(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	pid := id.New()

	require.NoError(t, s.Movements().Append(ctx, sample(pid, "k1")))
	err := s.Movements().Append(ctx, sample(pid, "k1"))
	assert.ErrorIs(t, err, ledger.ErrDuplicateIdempotencyKey)

	found, err := s.Movements().GetByIdempotencyKey(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, found)

	missing, err := s.Movements().GetByIdempotencyKey(ctx, "k2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestBalanceSave_VersionCheck(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	b := entity.NewBalance(entity.BalanceKey{ProductID: id.New()})
	b.Version = 1

	require.NoError(t, s.Balances().Save(ctx, b, 0))
	assert.ErrorIs(t, s.Balances().Save(ctx, b, 0), balance.ErrStaleBalance)

	b.Version = 2
	require.NoError(t, s.Balances().Save(ctx, b, 1))
}

func TestLatestSeeds(t *testing.T) {
	s := NewStore()
	pid := id.New()
	d := func(day int) time.Time { return time.Date(2024, 12, day, 0, 0, 0, 0, time.UTC) }

	s.PutSeed(entity.SeedBalance{ProductID: pid, SeedDate: d(20), Quantity: types.MustDecimal("3")})
	s.PutSeed(entity.SeedBalance{ProductID: pid, SeedDate: d(1), Quantity: types.MustDecimal("1")})
	s.PutSeed(entity.SeedBalance{ProductID: pid, SeedDate: d(10), Quantity: types.MustDecimal("2")})

	seeds, err := s.Catalog().LatestSeeds(context.Background(), []id.ID{pid}, d(15))
	require.NoError(t, err)
	assert.True(t, types.MustDecimal("2").Equal(seeds[pid].Quantity))

	seeds, err = s.Catalog().LatestSeeds(context.Background(), []id.ID{pid}, time.Date(2024, 11, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, seeds)
}

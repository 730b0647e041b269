package balance_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/balance"
	"stockledger/internal/infrastructure/storage/memory"
)

func TestStore_Sweep(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore()
	s := balance.NewStore(mem.Balances(), mem.Movements(), mem, balance.Options{})

	// two healthy products applied through the store
	for i := 0; i < 2; i++ {
		m := movement(entity.DirectionIn, "7", t0)
		m.ProductID = id.New()
		require.NoError(t, mem.Movements().Append(ctx, m))
		prior, err := s.Current(ctx, m.Key())
		require.NoError(t, err)
		_, err = s.Apply(ctx, prior, m)
		require.NoError(t, err)
	}

	// one product whose row disagrees with its ledger
	require.NoError(t, mem.Movements().Append(ctx, movement(entity.DirectionIn, "10", t0)))
	wrong := entity.NewBalance(key)
	wrong.Quantity = dec("3")
	wrong.Version = 1
	require.NoError(t, mem.Balances().Save(ctx, wrong, 0))

	res, err := s.Sweep(ctx, false, 1)
	require.NoError(t, err)
	assert.Equal(t, balance.SweepResult{Products: 3, Drifted: 1}, res)

	res, err = s.Sweep(ctx, true, 2)
	require.NoError(t, err)
	assert.Equal(t, balance.SweepResult{Products: 3, Drifted: 1, Repaired: 1}, res)

	res, err = s.Sweep(ctx, false, 0)
	require.NoError(t, err)
	assert.Equal(t, balance.SweepResult{Products: 3}, res)
}

func TestStore_Sweep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mem := memory.NewStore()
	s := balance.NewStore(mem.Balances(), mem.Movements(), mem, balance.Options{})
	_, err := s.Sweep(ctx, false, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

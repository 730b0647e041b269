package register_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
)

func TestListQuery(t *testing.T) {
	r := NewMovementRepo(nil)
	loc := id.New()
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	sql, args, err := r.listQuery(ledger.MovementFilter{
		ProductID:     id.New(),
		LocationID:    &loc,
		From:          &from,
		ExcludeResets: true,
		Limit:         50,
		Offset:        100,
	}).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "FROM stock_movements WHERE product_id = $1 AND location_id = $2 AND occurred_at >= $3 AND is_reset = $4")
	assert.Contains(t, sql, "ORDER BY occurred_at, seq LIMIT 50 OFFSET 100")
	assert.Len(t, args, 4)
}

func TestListQuery_Minimal(t *testing.T) {
	r := NewMovementRepo(nil)

	sql, args, err := r.listQuery(ledger.MovementFilter{ProductID: id.New()}).ToSql()
	require.NoError(t, err)
	assert.NotContains(t, sql, "LIMIT")
	assert.NotContains(t, sql, "is_reset =")
	assert.Len(t, args, 1)
}

func TestSaveQuery(t *testing.T) {
	r := NewBalanceRepo(nil)
	b := entity.NewBalance(entity.BalanceKey{ProductID: id.New(), LocationID: id.New(), LotID: "L1"})
	b.Version = 1

	sql, _, err := r.saveQuery(b, 0).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "INSERT INTO stock_balances")
	assert.Contains(t, sql, "ON CONFLICT (product_id, location_id, lot_id) DO NOTHING")

	b.Version = 4
	sql, args, err := r.saveQuery(b, 3).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "UPDATE stock_balances SET")
	assert.Contains(t, sql, "WHERE lot_id = $7 AND location_id = $8 AND product_id = $9")
	assert.Contains(t, sql, "AND version = ")
	assert.NotContains(t, sql, "SET product_id")
	assert.Equal(t, int64(3), args[len(args)-1])
}

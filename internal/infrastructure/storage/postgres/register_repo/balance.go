package register_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/reconstruct"
	"stockledger/internal/infrastructure/storage/postgres"
)

var balanceColumns = postgres.ExtractDBColumns[entity.Balance]()

// BalanceRepo persists the balance projection with optimistic versions.
type BalanceRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var (
	_ balance.Repository        = (*BalanceRepo)(nil)
	_ reconstruct.BalanceReader = (*BalanceRepo)(nil)
)

// NewBalanceRepo creates a balance repository.
func NewBalanceRepo(txm *postgres.TxManager) *BalanceRepo {
	return &BalanceRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *BalanceRepo) Get(ctx context.Context, key entity.BalanceKey) (entity.Balance, error) {
	sql, args, err := r.builder.Select(balanceColumns...).
		From(balancesTable).
		Where(keyWhere(key)).
		Limit(1).
		ToSql()
	if err != nil {
		return entity.Balance{}, fmt.Errorf("build query: %w", err)
	}

	var b entity.Balance
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity.NewBalance(key), nil
		}
		return entity.Balance{}, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

// saveQuery builds the conditional write: an insert for a new row,
// an update guarded by the version for an existing one.
func (r *BalanceRepo) saveQuery(b entity.Balance, expectedVersion int64) squirrel.Sqlizer {
	data := postgres.StructToMap(b)

	if expectedVersion == 0 {
		return r.builder.Insert(balancesTable).
			SetMap(data).
			Suffix("ON CONFLICT (product_id, location_id, lot_id) DO NOTHING")
	}

	for _, k := range []string{"product_id", "location_id", "lot_id"} {
		delete(data, k)
	}
	return r.builder.Update(balancesTable).
		SetMap(data).
		Where(keyWhere(b.Key())).
		Where(squirrel.Eq{"version": expectedVersion})
}

func (r *BalanceRepo) Save(ctx context.Context, b entity.Balance, expectedVersion int64) error {
	sql, args, err := r.saveQuery(b, expectedVersion).ToSql()
	if err != nil {
		return fmt.Errorf("build save: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("save balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s expected version %d", balance.ErrStaleBalance, b.Key(), expectedVersion)
	}
	return nil
}

func (r *BalanceRepo) ListByProduct(ctx context.Context, productID id.ID, locationID *id.ID) ([]entity.Balance, error) {
	q := r.builder.Select(balanceColumns...).
		From(balancesTable).
		Where(squirrel.Eq{"product_id": productID})
	if locationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *locationID})
	}

	sql, args, err := q.OrderBy("location_id", "lot_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []entity.Balance
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	return rows, nil
}

func (r *BalanceRepo) ListProductIDs(ctx context.Context, after id.ID, limit int) ([]id.ID, error) {
	q := r.builder.Select("product_id").
		Distinct().
		From(balancesTable).
		Where("product_id > ?", after).
		OrderBy("product_id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var ids []id.ID
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &ids, sql, args...); err != nil {
		return nil, fmt.Errorf("list balance products: %w", err)
	}
	return ids, nil
}

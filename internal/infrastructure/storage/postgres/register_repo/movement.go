// Package register_repo provides the PostgreSQL movement ledger and balance projection.
package register_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/reconciliation"
	"stockledger/internal/domain/reconstruct"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	movementsTable = "stock_movements"
	balancesTable  = "stock_balances"

	idempotencyConstraint  = "stock_movements_idempotency_key_uq"
	compensationConstraint = "stock_movements_compensates_uq"
)

var movementColumns = postgres.ExtractDBColumns[entity.Movement]()

// signedQuantity is the SQL twin of Movement.SignedQuantity.
const signedQuantity = "CASE WHEN direction = 'IN' THEN quantity ELSE -quantity END"

// netEffect is the SQL twin of Movement.NetEffect.
const netEffect = "CASE WHEN is_reset THEN quantity - COALESCE(book_quantity, 0) " +
	"WHEN direction = 'IN' THEN quantity ELSE -quantity END"

// MovementRepo stores the append-only movement ledger.
type MovementRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var (
	_ ledger.Repository             = (*MovementRepo)(nil)
	_ balance.MovementSource        = (*MovementRepo)(nil)
	_ reconstruct.MovementReader    = (*MovementRepo)(nil)
	_ reconciliation.MovementReader = (*MovementRepo)(nil)
)

// NewMovementRepo creates a movement repository.
func NewMovementRepo(txm *postgres.TxManager) *MovementRepo {
	return &MovementRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func keyWhere(key entity.BalanceKey) squirrel.Eq {
	return squirrel.Eq{
		"product_id":  key.ProductID,
		"location_id": key.LocationID,
		"lot_id":      key.LotID,
	}
}

// Append inserts m; the database assigns seq and created_at.
func (r *MovementRepo) Append(ctx context.Context, m *entity.Movement) error {
	data := postgres.StructToMap(m)
	delete(data, "seq")
	delete(data, "created_at")

	sql, args, err := r.builder.Insert(movementsTable).
		SetMap(data).
		Suffix("RETURNING seq, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	err = r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&m.Seq, &m.CreatedAt)
	switch {
	case err == nil:
		return nil
	case postgres.IsUniqueViolation(err, idempotencyConstraint):
		return ledger.ErrDuplicateIdempotencyKey
	case postgres.IsUniqueViolation(err, compensationConstraint):
		return apperror.NewConflict("Movement was already compensated").WithCause(err)
	default:
		return fmt.Errorf("insert movement: %w", err)
	}
}

func (r *MovementRepo) getOne(ctx context.Context, where squirrel.Sqlizer) (*entity.Movement, error) {
	sql, args, err := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var m entity.Movement
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &m, sql, args...); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MovementRepo) GetByID(ctx context.Context, movementID id.ID) (*entity.Movement, error) {
	m, err := r.getOne(ctx, squirrel.Eq{"id": movementID})
	if pgxscan.NotFound(err) {
		return nil, apperror.NewNotFound("movement", movementID.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get movement: %w", err)
	}
	return m, nil
}

func (r *MovementRepo) GetByIdempotencyKey(ctx context.Context, key string) (*entity.Movement, error) {
	m, err := r.getOne(ctx, squirrel.Eq{"idempotency_key": key})
	if pgxscan.NotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get movement by idempotency key: %w", err)
	}
	return m, nil
}

func (r *MovementRepo) FindCompensation(ctx context.Context, movementID id.ID) (*entity.Movement, error) {
	m, err := r.getOne(ctx, squirrel.Eq{"compensates_id": movementID})
	if pgxscan.NotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find compensation: %w", err)
	}
	return m, nil
}

// listQuery builds the history query; split out so its SQL shape can be tested.
func (r *MovementRepo) listQuery(f ledger.MovementFilter) squirrel.SelectBuilder {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"product_id": f.ProductID})

	if f.LocationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *f.LocationID})
	}
	if f.From != nil {
		q = q.Where(squirrel.GtOrEq{"occurred_at": *f.From})
	}
	if f.To != nil {
		q = q.Where(squirrel.Lt{"occurred_at": *f.To})
	}
	if f.ExcludeResets {
		q = q.Where(squirrel.Eq{"is_reset": false})
	}

	q = q.OrderBy("occurred_at", "seq")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q
}

func (r *MovementRepo) List(ctx context.Context, f ledger.MovementFilter) ([]entity.Movement, error) {
	sql, args, err := r.listQuery(f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	movements := []entity.Movement{}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return movements, nil
}

// ForEachMovement streams a product's movements in seq order without
// loading the whole ledger into memory.
func (r *MovementRepo) ForEachMovement(ctx context.Context, productID id.ID, fn func(m *entity.Movement) error) error {
	sql, args, err := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("seq").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	rows, err := r.txm.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	rs := pgxscan.NewRowScanner(rows)
	for rows.Next() {
		var m entity.Movement
		if err := rs.Scan(&m); err != nil {
			return fmt.Errorf("scan movement: %w", err)
		}
		if err := fn(&m); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *MovementRepo) LatestReset(ctx context.Context, key entity.BalanceKey, cutoff time.Time) (*entity.Movement, error) {
	sql, args, err := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(keyWhere(key)).
		Where(squirrel.Eq{"is_reset": true}).
		Where(squirrel.Lt{"occurred_at": cutoff}).
		OrderBy("occurred_at DESC", "seq DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var m entity.Movement
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &m, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest reset: %w", err)
	}
	return &m, nil
}

func (r *MovementRepo) sum(ctx context.Context, expr string, where ...squirrel.Sqlizer) (types.Quantity, error) {
	q := r.builder.Select("COALESCE(SUM(" + expr + "), 0)").From(movementsTable)
	for _, w := range where {
		q = q.Where(w)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return decimal.Zero, fmt.Errorf("build query: %w", err)
	}

	var total decimal.Decimal
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("sum movements: %w", err)
	}
	return total, nil
}

func (r *MovementRepo) NetBetween(ctx context.Context, key entity.BalanceKey, after, before time.Time) (types.Quantity, error) {
	return r.sum(ctx, signedQuantity,
		keyWhere(key),
		squirrel.Eq{"is_reset": false},
		squirrel.Gt{"occurred_at": after},
		squirrel.Lt{"occurred_at": before},
	)
}

func (r *MovementRepo) NetSince(ctx context.Context, key entity.BalanceKey, from time.Time) (types.Quantity, error) {
	return r.sum(ctx, netEffect,
		keyWhere(key),
		squirrel.GtOrEq{"occurred_at": from},
	)
}

func (r *MovementRepo) ProductsWithMovements(ctx context.Context, from, to time.Time) ([]id.ID, error) {
	sql, args, err := r.builder.Select("product_id").
		Distinct().
		From(movementsTable).
		Where(squirrel.Eq{"is_reset": false}).
		Where(squirrel.GtOrEq{"occurred_at": from}).
		Where(squirrel.Lt{"occurred_at": to}).
		OrderBy("product_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var ids []id.ID
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &ids, sql, args...); err != nil {
		return nil, fmt.Errorf("select products with movements: %w", err)
	}
	return ids, nil
}

func (r *MovementRepo) MovementsInRange(ctx context.Context, productIDs []id.ID, from, to time.Time) ([]entity.Movement, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	sql, args, err := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"product_id": productIDs}).
		Where(squirrel.Eq{"is_reset": false}).
		Where(squirrel.GtOrEq{"occurred_at": from}).
		Where(squirrel.Lt{"occurred_at": to}).
		OrderBy("occurred_at", "seq").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []entity.Movement
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements in range: %w", err)
	}
	return movements, nil
}

type productCost struct {
	ProductID id.ID       `db:"product_id"`
	Cost      types.Money `db:"resulting_avg_cost"`
}

func (r *MovementRepo) LatestAvgCosts(ctx context.Context, productIDs []id.ID, before time.Time) (map[id.ID]types.Money, error) {
	costs := make(map[id.ID]types.Money, len(productIDs))
	if len(productIDs) == 0 {
		return costs, nil
	}

	sql, args, err := r.builder.Select("product_id", "resulting_avg_cost").
		Options("DISTINCT ON (product_id)").
		From(movementsTable).
		Where(squirrel.Eq{"product_id": productIDs}).
		Where(squirrel.Lt{"occurred_at": before}).
		OrderBy("product_id", "occurred_at DESC", "seq DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []productCost
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select latest costs: %w", err)
	}
	for _, row := range rows {
		costs[row.ProductID] = row.Cost
	}
	return costs, nil
}

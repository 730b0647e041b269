// Package catalog_repo reads catalog data (products, locations, movement
// types and cut-over seeds) from PostgreSQL.
package catalog_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/reconciliation"
	"stockledger/internal/domain/reconstruct"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	productsTable      = "products"
	movementTypesTable = "movement_types"
	seedsTable         = "seed_balances"
)

var (
	productColumns      = postgres.ExtractDBColumns[entity.Product]()
	movementTypeColumns = postgres.ExtractDBColumns[entity.MovementType]()
	seedColumns         = postgres.ExtractDBColumns[entity.SeedBalance]()
)

// CatalogRepo implements catalog.Repository.
type CatalogRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var (
	_ catalog.Repository           = (*CatalogRepo)(nil)
	_ reconciliation.CatalogReader = (*CatalogRepo)(nil)
	_ reconstruct.ProductReader    = (*CatalogRepo)(nil)
)

// NewCatalogRepo creates a catalog repository.
func NewCatalogRepo(txm *postgres.TxManager) *CatalogRepo {
	return &CatalogRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *CatalogRepo) GetProduct(ctx context.Context, productID id.ID) (*entity.Product, error) {
	sql, args, err := r.builder.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"id": productID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var p entity.Product
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewUnknownProduct(productID.String())
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

func (r *CatalogRepo) GetProducts(ctx context.Context, ids []id.ID) (map[id.ID]entity.Product, error) {
	out := make(map[id.ID]entity.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	sql, args, err := r.builder.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var products []entity.Product
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &products, sql, args...); err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (r *CatalogRepo) getMovementType(ctx context.Context, where squirrel.Eq, ref string) (*entity.MovementType, error) {
	sql, args, err := r.builder.Select(movementTypeColumns...).
		From(movementTypesTable).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var mt entity.MovementType
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &mt, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("movement type", ref)
		}
		return nil, fmt.Errorf("get movement type: %w", err)
	}
	return &mt, nil
}

func (r *CatalogRepo) GetMovementType(ctx context.Context, typeID id.ID) (*entity.MovementType, error) {
	return r.getMovementType(ctx, squirrel.Eq{"id": typeID}, typeID.String())
}

func (r *CatalogRepo) GetMovementTypeByCode(ctx context.Context, code string) (*entity.MovementType, error) {
	return r.getMovementType(ctx, squirrel.Eq{"code": code}, code)
}

// LatestSeeds picks, per product, the newest seed dated on or before day.
func (r *CatalogRepo) LatestSeeds(ctx context.Context, ids []id.ID, day time.Time) (map[id.ID]entity.SeedBalance, error) {
	out := make(map[id.ID]entity.SeedBalance, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	sql, args, err := r.builder.Select(seedColumns...).
		Options("DISTINCT ON (product_id)").
		From(seedsTable).
		Where(squirrel.Eq{"product_id": ids}).
		Where(squirrel.LtOrEq{"seed_date": time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)}).
		OrderBy("product_id", "seed_date DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var seeds []entity.SeedBalance
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &seeds, sql, args...); err != nil {
		return nil, fmt.Errorf("select seeds: %w", err)
	}
	for _, s := range seeds {
		out[s.ProductID] = s
	}
	return out, nil
}

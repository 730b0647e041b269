// Package catalog exposes the read-only catalog data the ledger depends on.
// Products, locations and movement types are maintained elsewhere.
package catalog

import (
	"context"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// Repository reads catalog records.
type Repository interface {
	// GetProduct returns apperror UnknownProduct when the id does not exist.
	GetProduct(ctx context.Context, productID id.ID) (*entity.Product, error)

	// GetProducts returns the products found among ids. Missing ids are omitted.
	GetProducts(ctx context.Context, ids []id.ID) (map[id.ID]entity.Product, error)

	GetMovementType(ctx context.Context, typeID id.ID) (*entity.MovementType, error)
	GetMovementTypeByCode(ctx context.Context, code string) (*entity.MovementType, error)

	// LatestSeeds returns, per product, the newest seed balance dated on or before day.
	LatestSeeds(ctx context.Context, ids []id.ID, day time.Time) (map[id.ID]entity.SeedBalance, error)
}

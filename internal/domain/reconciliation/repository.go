// Package reconciliation compares the fiscal stream (invoice lines) with the
// physical stream (ledger movements) per product and period.
package reconciliation

import (
	"context"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/reconstruct"
)

// MovementReader reads the physical stream. Ranges are [from, to).
type MovementReader interface {
	// ProductsWithMovements lists products with non-reset movements in range.
	ProductsWithMovements(ctx context.Context, from, to time.Time) ([]id.ID, error)

	// MovementsInRange returns non-reset movements of the given products.
	MovementsInRange(ctx context.Context, productIDs []id.ID, from, to time.Time) ([]entity.Movement, error)

	// LatestAvgCosts returns the resulting average cost of each product's
	// newest movement before the cutoff.
	LatestAvgCosts(ctx context.Context, productIDs []id.ID, before time.Time) (map[id.ID]types.Money, error)
}

// FiscalReader reads the fiscal stream. Cancelled documents are never returned.
type FiscalReader interface {
	// ProductsWithLines lists products referenced by invoice lines issued in range.
	ProductsWithLines(ctx context.Context, from, to time.Time) ([]id.ID, error)

	// LinesInRange returns invoice lines of the given products issued in range.
	LinesInRange(ctx context.Context, productIDs []id.ID, from, to time.Time) ([]entity.FiscalEntry, error)

	// CountUnattributedLines counts lines in range that reference no product.
	CountUnattributedLines(ctx context.Context, from, to time.Time) (int, error)
}

// CatalogReader reads products and cut-over seeds.
type CatalogReader interface {
	GetProduct(ctx context.Context, productID id.ID) (*entity.Product, error)
	GetProducts(ctx context.Context, ids []id.ID) (map[id.ID]entity.Product, error)
	LatestSeeds(ctx context.Context, ids []id.ID, day time.Time) (map[id.ID]entity.SeedBalance, error)
}

// Reconstructor provides opening balances.
type Reconstructor interface {
	QuantityAt(ctx context.Context, q reconstruct.Query) (*reconstruct.Result, error)
}

// Package balance maintains the materialized current-balance projection.
package balance

import (
	"context"
	"errors"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// ErrStaleBalance is returned by Repository.Save when the stored version
// no longer matches the version the caller read.
var ErrStaleBalance = errors.New("balance version changed")

// Repository persists balance rows.
type Repository interface {
	// Get returns the stored balance, or an empty balance with Version 0.
	Get(ctx context.Context, key entity.BalanceKey) (entity.Balance, error)

	// Save writes b if the stored version equals expectedVersion
	// (0 means the row must not exist yet). Otherwise ErrStaleBalance.
	Save(ctx context.Context, b entity.Balance, expectedVersion int64) error

	// ListByProduct returns all balance rows of a product, optionally one location only.
	ListByProduct(ctx context.Context, productID id.ID, locationID *id.ID) ([]entity.Balance, error)

	// ListProductIDs pages through products that have balances, ordered by id.
	ListProductIDs(ctx context.Context, after id.ID, limit int) ([]id.ID, error)
}

// MovementSource streams a product's ledger in append order.
type MovementSource interface {
	ForEachMovement(ctx context.Context, productID id.ID, fn func(m *entity.Movement) error) error
}

// Package reconstruct answers "how much stock was there on day D".
package reconstruct

import (
	"context"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// MovementReader runs the ledger range queries reconstruction needs.
type MovementReader interface {
	// LatestReset returns the newest reset at key strictly before cutoff, or nil.
	LatestReset(ctx context.Context, key entity.BalanceKey, cutoff time.Time) (*entity.Movement, error)

	// NetBetween sums IN minus OUT of non-reset movements at key with after < occurred_at < before.
	NetBetween(ctx context.Context, key entity.BalanceKey, after, before time.Time) (types.Quantity, error)

	// NetSince sums the net effect of every movement at key with occurred_at >= from,
	// resets included as (quantity - book_quantity).
	NetSince(ctx context.Context, key entity.BalanceKey, from time.Time) (types.Quantity, error)
}

// BalanceReader lists materialized balances.
type BalanceReader interface {
	ListByProduct(ctx context.Context, productID id.ID, locationID *id.ID) ([]entity.Balance, error)
}

// ProductReader checks products exist.
type ProductReader interface {
	GetProduct(ctx context.Context, productID id.ID) (*entity.Product, error)
}

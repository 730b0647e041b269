// Package ledger records stock movements in the append-only ledger.
package ledger

import (
	"context"
	"errors"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// ErrDuplicateIdempotencyKey is returned by Repository.Append when another
// movement already carries the same idempotency key.
var ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")

// Repository stores movements. There is no update or delete.
type Repository interface {
	// Append inserts m and fills Seq and CreatedAt.
	Append(ctx context.Context, m *entity.Movement) error

	GetByID(ctx context.Context, movementID id.ID) (*entity.Movement, error)

	// GetByIdempotencyKey returns nil, nil when the key is unused.
	GetByIdempotencyKey(ctx context.Context, key string) (*entity.Movement, error)

	// FindCompensation returns the movement compensating movementID, or nil.
	FindCompensation(ctx context.Context, movementID id.ID) (*entity.Movement, error)

	// LatestReset returns the newest reset at key strictly before cutoff, or nil.
	LatestReset(ctx context.Context, key entity.BalanceKey, cutoff time.Time) (*entity.Movement, error)

	// List returns movements matching filter ordered by occurred_at, seq.
	List(ctx context.Context, filter MovementFilter) ([]entity.Movement, error)
}

// MovementFilter selects movements of one product.
type MovementFilter struct {
	ProductID  id.ID
	LocationID *id.ID
	// From is inclusive, To is exclusive.
	From *time.Time
	To   *time.Time
	// ExcludeResets drops physical counts from the result.
	ExcludeResets bool
	Limit         int
	Offset        int
}

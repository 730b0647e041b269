// Package tx defines the transaction contract used by domain services.
// Implementations live in infrastructure/storage (postgres and memory).
package tx

import (
	"context"
)

// Manager runs a unit of work atomically.
type Manager interface {
	// RunInTransaction executes fn within a transaction.
	// If fn returns an error, everything fn wrote is discarded.
	//
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager extends Manager with snapshot reads.
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn against one consistent snapshot.
	// Every read made through ctx inside fn observes the same state.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}

package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/costing"
	"stockledger/pkg/logger"
)

// Store applies movements to the balance projection.
type Store struct {
	repo      Repository
	movements MovementSource
	txm       tx.ReadOnlyManager
	strict    bool
	now       func() time.Time
}

// Options configures a Store.
type Options struct {
	// Strict rejects exits that would drive a balance below zero.
	Strict bool
	// Now overrides the clock used for UpdatedAt.
	Now func() time.Time
}

// NewStore creates a balance store.
func NewStore(repo Repository, movements MovementSource, txm tx.ReadOnlyManager, opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		repo:      repo,
		movements: movements,
		txm:       txm,
		strict:    opts.Strict,
		now:       now,
	}
}

// Current returns the materialized balance for key (empty if none yet).
func (s *Store) Current(ctx context.Context, key entity.BalanceKey) (entity.Balance, error) {
	b, err := s.repo.Get(ctx, key)
	if err != nil {
		return entity.Balance{}, fmt.Errorf("get balance %s: %w", key, err)
	}
	return b, nil
}

// List returns current balances of a product.
func (s *Store) List(ctx context.Context, productID id.ID, locationID *id.ID) ([]entity.Balance, error) {
	return s.repo.ListByProduct(ctx, productID, locationID)
}

// Apply projects m onto prior and saves the result, conditional on prior.Version.
// It must run inside the transaction that appends m.
func (s *Store) Apply(ctx context.Context, prior entity.Balance, m *entity.Movement) (entity.Balance, error) {
	if m.Direction == entity.DirectionIn && m.AffectsCost && !m.IsReset {
		if _, ok := m.EffectiveUnitCost(); !ok {
			logger.Warn(ctx, "cost-affecting entry without unit cost, average kept",
				"product_id", m.ProductID,
				"movement_id", m.ID,
			)
		}
	}

	next := Project(prior, m)

	if next.Quantity.IsNegative() && !m.IsReset && m.Direction == entity.DirectionOut {
		if s.strict {
			return entity.Balance{}, apperror.NewInsufficientStock(
				m.ProductID.String(),
				m.Quantity.String(),
				prior.Quantity.String(),
			).WithDetail("location_id", m.LocationID.String()).
				WithDetail("lot_id", m.LotID)
		}
		logger.Warn(ctx, "balance went negative",
			"product_id", m.ProductID,
			"location_id", m.LocationID,
			"lot_id", m.LotID,
			"quantity", next.Quantity.String(),
		)
	}

	next.Version = prior.Version + 1
	next.UpdatedAt = s.now().UTC()

	if err := s.repo.Save(ctx, next, prior.Version); err != nil {
		return entity.Balance{}, fmt.Errorf("save balance %s: %w", next.Key(), err)
	}
	return next, nil
}

// Project is the pure balance transition for one movement.
//   - entries add quantity and, when they affect cost, fold into the average
//   - exits subtract quantity and never touch the average
//   - resets overwrite quantity with the counted value
func Project(b entity.Balance, m *entity.Movement) entity.Balance {
	switch {
	case m.IsReset:
		if !b.AvgCost.IsPositive() {
			if c, ok := m.EffectiveUnitCost(); ok {
				b.AvgCost = types.RoundCost(c)
			}
		}
		b.Quantity = m.Quantity
	case m.Direction == entity.DirectionIn:
		if m.AffectsCost {
			if c, ok := m.EffectiveUnitCost(); ok {
				b = costing.ApplyEntry(b, m.Quantity, c)
			}
		}
		b.Quantity = b.Quantity.Add(m.Quantity)
	default:
		b.Quantity = b.Quantity.Sub(m.Quantity)
	}

	if m.OccurredAt.After(b.LastMovementAt) {
		b.LastMovementAt = m.OccurredAt
	}
	return b
}

// Drift is a balance row whose projection disagrees with a ledger replay.
type Drift struct {
	Key              entity.BalanceKey `json:"key"`
	StoredQuantity   types.Quantity    `json:"storedQuantity"`
	ReplayedQuantity types.Quantity    `json:"replayedQuantity"`
	StoredAvgCost    types.Money       `json:"storedAvgCost"`
	ReplayedAvgCost  types.Money       `json:"replayedAvgCost"`

	replayed entity.Balance
}

// Verify replays the ledger of a product and reports rows that drifted.
func (s *Store) Verify(ctx context.Context, productID id.ID) ([]Drift, error) {
	var drifts []Drift
	err := s.txm.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		drifts, _, err = s.diff(ctx, productID)
		return err
	})
	return drifts, err
}

// rebuildAttempts bounds how often Rebuild restarts after an append
// changed a balance row under it.
const rebuildAttempts = 3

// Rebuild regenerates a product's balances from its ledger and returns what changed.
// Saves are conditional on the versions read before the replay, so an append
// committed meanwhile makes the attempt restart instead of being overwritten.
func (s *Store) Rebuild(ctx context.Context, productID id.ID) ([]Drift, error) {
	var (
		drifts []Drift
		err    error
	)
	for attempt := 1; attempt <= rebuildAttempts; attempt++ {
		drifts, err = s.rebuildOnce(ctx, productID)
		if !errors.Is(err, ErrStaleBalance) {
			break
		}
		logger.Warn(ctx, "balance changed during rebuild, retrying",
			"product_id", productID,
			"attempt", attempt,
		)
	}
	switch {
	case errors.Is(err, ErrStaleBalance):
		return nil, apperror.NewConcurrentUpdateConflict(productID.String(), rebuildAttempts).WithCause(err)
	case err != nil:
		return nil, err
	}

	if len(drifts) > 0 {
		logger.Info(ctx, "balances rebuilt from ledger",
			"product_id", productID,
			"rows", len(drifts),
		)
	}
	return drifts, nil
}

func (s *Store) rebuildOnce(ctx context.Context, productID id.ID) ([]Drift, error) {
	var drifts []Drift
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var (
			stored map[entity.BalanceKey]entity.Balance
			err    error
		)
		drifts, stored, err = s.diff(ctx, productID)
		if err != nil {
			return err
		}
		for _, d := range drifts {
			cur := stored[d.Key]
			next := d.replayed
			next.ReservedQuantity = cur.ReservedQuantity
			next.Version = cur.Version + 1
			next.UpdatedAt = s.now().UTC()
			if err := s.repo.Save(ctx, next, cur.Version); err != nil {
				return fmt.Errorf("save rebuilt balance %s: %w", d.Key, err)
			}
		}
		return nil
	})
	return drifts, err
}

// diff compares stored rows with a ledger replay. The rows are read first:
// their versions guard the saves of Rebuild.
func (s *Store) diff(ctx context.Context, productID id.ID) ([]Drift, map[entity.BalanceKey]entity.Balance, error) {
	rows, err := s.repo.ListByProduct(ctx, productID, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("list balances: %w", err)
	}
	stored := make(map[entity.BalanceKey]entity.Balance, len(rows))
	for _, r := range rows {
		stored[r.Key()] = r
	}

	replayed := make(map[entity.BalanceKey]entity.Balance)
	var order []entity.BalanceKey

	err = s.movements.ForEachMovement(ctx, productID, func(m *entity.Movement) error {
		key := m.Key()
		b, ok := replayed[key]
		if !ok {
			b = entity.NewBalance(key)
			order = append(order, key)
		}
		replayed[key] = Project(b, m)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("replay ledger: %w", err)
	}

	for _, r := range rows {
		if _, ok := replayed[r.Key()]; !ok {
			replayed[r.Key()] = entity.NewBalance(r.Key())
			order = append(order, r.Key())
		}
	}

	var drifts []Drift
	for _, key := range order {
		want := replayed[key]
		have, ok := stored[key]
		if !ok {
			have = entity.NewBalance(key)
		}
		if have.Quantity.Equal(want.Quantity) && have.AvgCost.Equal(want.AvgCost) {
			continue
		}
		drifts = append(drifts, Drift{
			Key:              key,
			StoredQuantity:   have.Quantity,
			ReplayedQuantity: want.Quantity,
			StoredAvgCost:    have.AvgCost,
			ReplayedAvgCost:  want.AvgCost,
			replayed:         want,
		})
		if !ok {
			stored[key] = have
		}
	}
	return drifts, stored, nil
}

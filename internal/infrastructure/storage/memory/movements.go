package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/reconciliation"
	"stockledger/internal/domain/reconstruct"
)

// MovementRepo is the in-memory movement ledger.
type MovementRepo struct {
	s *Store
}

// Movements returns the movement repository.
func (s *Store) Movements() *MovementRepo {
	return &MovementRepo{s: s}
}

var (
	_ ledger.Repository             = (*MovementRepo)(nil)
	_ balance.MovementSource        = (*MovementRepo)(nil)
	_ reconstruct.MovementReader    = (*MovementRepo)(nil)
	_ reconciliation.MovementReader = (*MovementRepo)(nil)
)

// Append adds m to the ledger and assigns its sequence number.
func (r *MovementRepo) Append(ctx context.Context, m *entity.Movement) error {
	return r.s.write(ctx, func(st *state) error {
		if m.IdempotencyKey != nil {
			if _, ok := st.byKey[*m.IdempotencyKey]; ok {
				return ledger.ErrDuplicateIdempotencyKey
			}
		}
		st.seq++
		m.Seq = st.seq
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		st.movements = append(st.movements, *m)
		if m.IdempotencyKey != nil {
			st.byKey[*m.IdempotencyKey] = len(st.movements) - 1
		}
		return nil
	})
}

func (r *MovementRepo) GetByID(ctx context.Context, movementID id.ID) (*entity.Movement, error) {
	var found *entity.Movement
	err := r.s.read(ctx, func(st *state) error {
		for i := range st.movements {
			if st.movements[i].ID == movementID {
				m := st.movements[i]
				found = &m
				return nil
			}
		}
		return apperror.NewNotFound("movement", movementID.String())
	})
	return found, err
}

func (r *MovementRepo) GetByIdempotencyKey(ctx context.Context, key string) (*entity.Movement, error) {
	var found *entity.Movement
	err := r.s.read(ctx, func(st *state) error {
		if i, ok := st.byKey[key]; ok {
			m := st.movements[i]
			found = &m
		}
		return nil
	})
	return found, err
}

func (r *MovementRepo) FindCompensation(ctx context.Context, movementID id.ID) (*entity.Movement, error) {
	var found *entity.Movement
	err := r.s.read(ctx, func(st *state) error {
		for i := range st.movements {
			c := st.movements[i].CompensatesID
			if c.Valid && c.UUID == movementID {
				m := st.movements[i]
				found = &m
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r *MovementRepo) List(ctx context.Context, f ledger.MovementFilter) ([]entity.Movement, error) {
	var out []entity.Movement
	err := r.s.read(ctx, func(st *state) error {
		for _, m := range st.movements {
			if m.ProductID != f.ProductID {
				continue
			}
			if f.LocationID != nil && m.LocationID != *f.LocationID {
				continue
			}
			if f.From != nil && m.OccurredAt.Before(*f.From) {
				continue
			}
			if f.To != nil && !m.OccurredAt.Before(*f.To) {
				continue
			}
			if f.ExcludeResets && m.IsReset {
				continue
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortChronologically(out)
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []entity.Movement{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// ForEachMovement visits a product's movements in append order.
func (r *MovementRepo) ForEachMovement(ctx context.Context, productID id.ID, fn func(m *entity.Movement) error) error {
	return r.s.read(ctx, func(st *state) error {
		for i := range st.movements {
			if st.movements[i].ProductID != productID {
				continue
			}
			m := st.movements[i]
			if err := fn(&m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *MovementRepo) LatestReset(ctx context.Context, key entity.BalanceKey, cutoff time.Time) (*entity.Movement, error) {
	var found *entity.Movement
	err := r.s.read(ctx, func(st *state) error {
		for i := range st.movements {
			m := &st.movements[i]
			if !m.IsReset || m.Key() != key || !m.OccurredAt.Before(cutoff) {
				continue
			}
			if found == nil || m.OccurredAt.After(found.OccurredAt) ||
				(m.OccurredAt.Equal(found.OccurredAt) && m.Seq > found.Seq) {
				c := *m
				found = &c
			}
		}
		return nil
	})
	return found, err
}

func (r *MovementRepo) NetBetween(ctx context.Context, key entity.BalanceKey, after, before time.Time) (types.Quantity, error) {
	net := decimal.Zero
	err := r.s.read(ctx, func(st *state) error {
		for i := range st.movements {
			m := &st.movements[i]
			if m.IsReset || m.Key() != key {
				continue
			}
			if m.OccurredAt.After(after) && m.OccurredAt.Before(before) {
				net = net.Add(m.SignedQuantity())
			}
		}
		return nil
	})
	return net, err
}

func (r *MovementRepo) NetSince(ctx context.Context, key entity.BalanceKey, from time.Time) (types.Quantity, error) {
	net := decimal.Zero
	err := r.s.read(ctx, func(st *state) error {
		for i := range st.movements {
			m := &st.movements[i]
			if m.Key() != key || m.OccurredAt.Before(from) {
				continue
			}
			net = net.Add(m.NetEffect())
		}
		return nil
	})
	return net, err
}

func (r *MovementRepo) ProductsWithMovements(ctx context.Context, from, to time.Time) ([]id.ID, error) {
	var ids []id.ID
	err := r.s.read(ctx, func(st *state) error {
		seen := make(map[id.ID]struct{})
		for i := range st.movements {
			m := &st.movements[i]
			if m.IsReset || !inRange(m.OccurredAt, from, to) {
				continue
			}
			if _, ok := seen[m.ProductID]; !ok {
				seen[m.ProductID] = struct{}{}
				ids = append(ids, m.ProductID)
			}
		}
		return nil
	})
	sortIDs(ids)
	return ids, err
}

func (r *MovementRepo) MovementsInRange(ctx context.Context, productIDs []id.ID, from, to time.Time) ([]entity.Movement, error) {
	var out []entity.Movement
	err := r.s.read(ctx, func(st *state) error {
		for _, m := range st.movements {
			if m.IsReset || !inRange(m.OccurredAt, from, to) || !containsID(productIDs, m.ProductID) {
				continue
			}
			out = append(out, m)
		}
		return nil
	})
	sortChronologically(out)
	return out, err
}

func (r *MovementRepo) LatestAvgCosts(ctx context.Context, productIDs []id.ID, before time.Time) (map[id.ID]types.Money, error) {
	latest := make(map[id.ID]entity.Movement)
	err := r.s.read(ctx, func(st *state) error {
		for _, m := range st.movements {
			if !m.OccurredAt.Before(before) || !containsID(productIDs, m.ProductID) {
				continue
			}
			cur, ok := latest[m.ProductID]
			if !ok || m.OccurredAt.After(cur.OccurredAt) ||
				(m.OccurredAt.Equal(cur.OccurredAt) && m.Seq > cur.Seq) {
				latest[m.ProductID] = m
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	costs := make(map[id.ID]types.Money, len(latest))
	for pid, m := range latest {
		costs[pid] = m.ResultingAvgCost
	}
	return costs, nil
}

func sortChronologically(ms []entity.Movement) {
	sort.SliceStable(ms, func(i, j int) bool {
		if !ms[i].OccurredAt.Equal(ms[j].OccurredAt) {
			return ms[i].OccurredAt.Before(ms[j].OccurredAt)
		}
		return ms[i].Seq < ms[j].Seq
	})
}

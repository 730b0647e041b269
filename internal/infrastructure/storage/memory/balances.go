package memory

import (
	"context"
	"fmt"
	"sort"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/reconstruct"
)

// BalanceRepo is the in-memory balance projection.
type BalanceRepo struct {
	s *Store
}

// Balances returns the balance repository.
func (s *Store) Balances() *BalanceRepo {
	return &BalanceRepo{s: s}
}

var (
	_ balance.Repository        = (*BalanceRepo)(nil)
	_ reconstruct.BalanceReader = (*BalanceRepo)(nil)
)

func (r *BalanceRepo) Get(ctx context.Context, key entity.BalanceKey) (entity.Balance, error) {
	b := entity.NewBalance(key)
	err := r.s.read(ctx, func(st *state) error {
		if stored, ok := st.balances[key]; ok {
			b = stored
		}
		return nil
	})
	return b, err
}

func (r *BalanceRepo) Save(ctx context.Context, b entity.Balance, expectedVersion int64) error {
	return r.s.write(ctx, func(st *state) error {
		cur, ok := st.balances[b.Key()]
		var have int64
		if ok {
			have = cur.Version
		}
		if have != expectedVersion {
			return fmt.Errorf("%w: %s has version %d, expected %d", balance.ErrStaleBalance, b.Key(), have, expectedVersion)
		}
		st.balances[b.Key()] = b
		return nil
	})
}

func (r *BalanceRepo) ListByProduct(ctx context.Context, productID id.ID, locationID *id.ID) ([]entity.Balance, error) {
	var out []entity.Balance
	err := r.s.read(ctx, func(st *state) error {
		for k, b := range st.balances {
			if k.ProductID != productID {
				continue
			}
			if locationID != nil && k.LocationID != *locationID {
				continue
			}
			out = append(out, b)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].LocationID != out[j].LocationID {
			return out[i].LocationID.String() < out[j].LocationID.String()
		}
		return out[i].LotID < out[j].LotID
	})
	return out, err
}

func (r *BalanceRepo) ListProductIDs(ctx context.Context, after id.ID, limit int) ([]id.ID, error) {
	var ids []id.ID
	err := r.s.read(ctx, func(st *state) error {
		seen := make(map[id.ID]struct{})
		for k := range st.balances {
			if k.ProductID.String() <= after.String() {
				continue
			}
			if _, ok := seen[k.ProductID]; !ok {
				seen[k.ProductID] = struct{}{}
				ids = append(ids, k.ProductID)
			}
		}
		return nil
	})
	sortIDs(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, err
}

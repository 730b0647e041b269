package memory

import (
	"context"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/reconciliation"
	"stockledger/internal/domain/reconstruct"
)

// CatalogRepo reads products, movement types and seeds.
type CatalogRepo struct {
	s *Store
}

// Catalog returns the catalog repository.
func (s *Store) Catalog() *CatalogRepo {
	return &CatalogRepo{s: s}
}

var (
	_ catalog.Repository           = (*CatalogRepo)(nil)
	_ reconciliation.CatalogReader = (*CatalogRepo)(nil)
	_ reconstruct.ProductReader    = (*CatalogRepo)(nil)
)

func (r *CatalogRepo) GetProduct(ctx context.Context, productID id.ID) (*entity.Product, error) {
	var p *entity.Product
	err := r.s.read(ctx, func(st *state) error {
		found, ok := st.products[productID]
		if !ok {
			return apperror.NewUnknownProduct(productID.String())
		}
		p = &found
		return nil
	})
	return p, err
}

func (r *CatalogRepo) GetProducts(ctx context.Context, ids []id.ID) (map[id.ID]entity.Product, error) {
	out := make(map[id.ID]entity.Product, len(ids))
	err := r.s.read(ctx, func(st *state) error {
		for _, pid := range ids {
			if p, ok := st.products[pid]; ok {
				out[pid] = p
			}
		}
		return nil
	})
	return out, err
}

func (r *CatalogRepo) GetMovementType(ctx context.Context, typeID id.ID) (*entity.MovementType, error) {
	var mt *entity.MovementType
	err := r.s.read(ctx, func(st *state) error {
		found, ok := st.types[typeID]
		if !ok {
			return apperror.NewNotFound("movement type", typeID.String())
		}
		mt = &found
		return nil
	})
	return mt, err
}

func (r *CatalogRepo) GetMovementTypeByCode(ctx context.Context, code string) (*entity.MovementType, error) {
	var mt *entity.MovementType
	err := r.s.read(ctx, func(st *state) error {
		for _, t := range st.types {
			if t.Code == code {
				found := t
				mt = &found
				return nil
			}
		}
		return apperror.NewNotFound("movement type", code)
	})
	return mt, err
}

func (r *CatalogRepo) LatestSeeds(ctx context.Context, ids []id.ID, day time.Time) (map[id.ID]entity.SeedBalance, error) {
	out := make(map[id.ID]entity.SeedBalance)
	err := r.s.read(ctx, func(st *state) error {
		for _, pid := range ids {
			// seeds are ordered by date; keep the last one not after day
			for _, seed := range st.seeds[pid] {
				if seed.SeedDate.After(day) {
					break
				}
				out[pid] = seed
			}
		}
		return nil
	})
	return out, err
}

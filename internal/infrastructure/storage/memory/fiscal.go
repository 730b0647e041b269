package memory

import (
	"context"
	"sort"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/reconciliation"
)

// FiscalRepo reads invoice lines.
type FiscalRepo struct {
	s *Store
}

// Fiscal returns the fiscal repository.
func (s *Store) Fiscal() *FiscalRepo {
	return &FiscalRepo{s: s}
}

var _ reconciliation.FiscalReader = (*FiscalRepo)(nil)

// entries walks non-cancelled lines issued in [from, to).
func (st *state) entries(from, to time.Time, fn func(e entity.FiscalEntry)) {
	for _, l := range st.lines {
		doc, ok := st.documents[l.DocumentID]
		if !ok || doc.Cancelled || !inRange(doc.IssuedAt, from, to) {
			continue
		}
		fn(entity.FiscalEntry{
			FiscalLine:     l,
			DocumentNumber: doc.Number,
			Kind:           doc.Kind,
			IssuedAt:       doc.IssuedAt,
			Counterparty:   doc.Counterparty,
		})
	}
}

func (r *FiscalRepo) ProductsWithLines(ctx context.Context, from, to time.Time) ([]id.ID, error) {
	var ids []id.ID
	err := r.s.read(ctx, func(st *state) error {
		seen := make(map[id.ID]struct{})
		st.entries(from, to, func(e entity.FiscalEntry) {
			if !e.ProductID.Valid || id.IsNil(e.ProductID.UUID) {
				return
			}
			if _, ok := seen[e.ProductID.UUID]; !ok {
				seen[e.ProductID.UUID] = struct{}{}
				ids = append(ids, e.ProductID.UUID)
			}
		})
		return nil
	})
	sortIDs(ids)
	return ids, err
}

func (r *FiscalRepo) LinesInRange(ctx context.Context, productIDs []id.ID, from, to time.Time) ([]entity.FiscalEntry, error) {
	var out []entity.FiscalEntry
	err := r.s.read(ctx, func(st *state) error {
		st.entries(from, to, func(e entity.FiscalEntry) {
			if e.ProductID.Valid && containsID(productIDs, e.ProductID.UUID) {
				out = append(out, e)
			}
		})
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].IssuedAt.Before(out[j].IssuedAt)
		}
		if out[i].DocumentNumber != out[j].DocumentNumber {
			return out[i].DocumentNumber < out[j].DocumentNumber
		}
		return out[i].LineNo < out[j].LineNo
	})
	return out, err
}

func (r *FiscalRepo) CountUnattributedLines(ctx context.Context, from, to time.Time) (int, error) {
	n := 0
	err := r.s.read(ctx, func(st *state) error {
		st.entries(from, to, func(e entity.FiscalEntry) {
			if !e.ProductID.Valid || id.IsNil(e.ProductID.UUID) {
				n++
			}
		})
		return nil
	})
	return n, err
}

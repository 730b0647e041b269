package balance

import (
	"context"

	"stockledger/internal/core/id"
	"stockledger/pkg/logger"
)

const defaultSweepPage = 200

// SweepResult summarizes one pass over every product with balances.
type SweepResult struct {
	Products int
	Drifted  int
	Repaired int
	Failed   int
}

// Sweep verifies every product's balances against its ledger, page by page.
// With repair set, drifted products are rebuilt. A failing product is logged
// and counted; the sweep goes on with the next one.
func (s *Store) Sweep(ctx context.Context, repair bool, pageSize int) (SweepResult, error) {
	if pageSize <= 0 {
		pageSize = defaultSweepPage
	}

	var res SweepResult
	after := id.Nil()
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		ids, err := s.repo.ListProductIDs(ctx, after, pageSize)
		if err != nil {
			return res, err
		}

		for _, productID := range ids {
			res.Products++

			var drifts []Drift
			if repair {
				drifts, err = s.Rebuild(ctx, productID)
			} else {
				drifts, err = s.Verify(ctx, productID)
			}
			if err != nil {
				res.Failed++
				logger.Error(ctx, "balance check failed", "product_id", productID, "error", err)
				continue
			}
			if len(drifts) == 0 {
				continue
			}

			res.Drifted++
			if repair {
				res.Repaired++
			}
			logger.Warn(ctx, "balance projection drifted from ledger",
				"product_id", productID,
				"rows", len(drifts),
				"repaired", repair,
			)
		}

		if len(ids) < pageSize {
			return res, nil
		}
		after = ids[len(ids)-1]
	}
}

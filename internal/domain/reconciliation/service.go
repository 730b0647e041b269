package reconciliation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/reconstruct"
	"stockledger/pkg/logger"
)

var tracer = otel.Tracer("stockledger/reconciliation")

const defaultBatchSize = 500

// Options configures the service.
type Options struct {
	Location  *time.Location
	Now       func() time.Time
	BatchSize int
}

// Service builds reconciliation reports.
type Service struct {
	movements     MovementReader
	fiscal        FiscalReader
	catalog       CatalogReader
	reconstructor Reconstructor
	txm           tx.ReadOnlyManager
	loc           *time.Location
	now           func() time.Time
	batchSize     int
}

// NewService creates a reconciliation service.
func NewService(
	movements MovementReader,
	fiscal FiscalReader,
	catalog CatalogReader,
	reconstructor Reconstructor,
	txm tx.ReadOnlyManager,
	opts Options,
) *Service {
	s := &Service{
		movements:     movements,
		fiscal:        fiscal,
		catalog:       catalog,
		reconstructor: reconstructor,
		txm:           txm,
		loc:           opts.Location,
		now:           opts.Now,
		batchSize:     opts.BatchSize,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	return s
}

// ComparePeriod reconciles every product touched by either stream in the period.
// Items are ordered by absolute quantity divergence, then closing quantity, descending.
func (s *Service) ComparePeriod(ctx context.Context, q Query) (*Report, error) {
	ctx, span := tracer.Start(ctx, "ComparePeriod", trace.WithAttributes(
		attribute.String("start", q.Start.Format(types.DateLayout)),
		attribute.String("end", q.End.Format(types.DateLayout)),
	))
	defer span.End()

	asOf := s.now()
	start, end, err := s.period(q.Start, q.End, asOf)
	if err != nil {
		return nil, err
	}
	if q.ProductID != nil {
		if _, err := s.catalog.GetProduct(ctx, *q.ProductID); err != nil {
			return nil, err
		}
	}

	from, to := start, types.DayCutoff(end, s.loc)
	report := &Report{Start: start, End: end, AsOf: asOf, Items: []Item{}}

	err = s.txm.ReadOnly(ctx, func(ctx context.Context) error {
		ids, err := s.productsInScope(ctx, q.ProductID, from, to)
		if err != nil {
			return err
		}

		if q.ProductID == nil {
			n, err := s.fiscal.CountUnattributedLines(ctx, from, to)
			if err != nil {
				return fmt.Errorf("count unattributed lines: %w", err)
			}
			report.UnparsedRecords += n
		}

		for lo := 0; lo < len(ids); lo += s.batchSize {
			hi := min(lo+s.batchSize, len(ids))
			items, unparsed, err := s.compareBatch(ctx, ids[lo:hi], start, from, to, asOf)
			if err != nil {
				return err
			}
			report.Items = append(report.Items, items...)
			report.UnparsedRecords += unparsed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortItems(report.Items)

	if report.UnparsedRecords > 0 {
		logger.Warn(ctx, "reconciliation skipped malformed source records",
			"start", start.Format(types.DateLayout),
			"end", end.Format(types.DateLayout),
			"unparsed", report.UnparsedRecords,
		)
	}
	logger.Info(ctx, "reconciliation computed",
		"start", start.Format(types.DateLayout),
		"end", end.Format(types.DateLayout),
		"products", len(report.Items),
	)
	return report, nil
}

// Detail returns the source records composing one tally of ComparePeriod.
func (s *Service) Detail(ctx context.Context, q DetailQuery) ([]SourceRecord, error) {
	if !q.Stream.Valid() {
		return nil, apperror.NewValidation("stream must be fiscal or physical").WithDetail("field", "stream")
	}
	if !q.Direction.Valid() {
		return nil, apperror.NewValidation("direction must be IN or OUT").WithDetail("field", "direction")
	}
	start, end, err := s.period(q.Start, q.End, s.now())
	if err != nil {
		return nil, err
	}
	if _, err := s.catalog.GetProduct(ctx, q.ProductID); err != nil {
		return nil, err
	}

	from, to := start, types.DayCutoff(end, s.loc)
	ids := []id.ID{q.ProductID}
	records := []SourceRecord{}

	err = s.txm.ReadOnly(ctx, func(ctx context.Context) error {
		if q.Stream == StreamFiscal {
			lines, err := s.fiscal.LinesInRange(ctx, ids, from, to)
			if err != nil {
				return fmt.Errorf("list fiscal lines: %w", err)
			}
			for _, l := range lines {
				if !l.Parsed() || l.Kind.Direction() != q.Direction {
					continue
				}
				records = append(records, SourceRecord{
					Stream:       StreamFiscal,
					Direction:    q.Direction,
					OccurredAt:   l.IssuedAt,
					Reference:    l.DocumentNumber,
					Counterparty: l.Counterparty,
					Quantity:     l.Quantity.Decimal,
					UnitPrice:    l.UnitPrice,
					Total:        l.Value(),
					DocumentID:   id.Some(l.DocumentID),
					LineNo:       l.LineNo,
				})
			}
			return nil
		}

		costs, err := s.movements.LatestAvgCosts(ctx, ids, to)
		if err != nil {
			return fmt.Errorf("reference costs: %w", err)
		}
		movements, err := s.movements.MovementsInRange(ctx, ids, from, to)
		if err != nil {
			return fmt.Errorf("list movements: %w", err)
		}
		for i := range movements {
			m := &movements[i]
			if m.IsReset || m.Direction != q.Direction {
				continue
			}
			records = append(records, SourceRecord{
				Stream:     StreamPhysical,
				Direction:  m.Direction,
				OccurredAt: m.OccurredAt,
				Reference:  m.SourceDocument,
				Quantity:   m.Quantity,
				UnitPrice:  m.UnitCost,
				Total:      movementValue(m, costs[q.ProductID]),
				MovementID: id.Some(m.ID),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].OccurredAt.Before(records[j].OccurredAt)
	})
	return records, nil
}

func (s *Service) period(startDay, endDay, asOf time.Time) (time.Time, time.Time, error) {
	if startDay.IsZero() || endDay.IsZero() {
		return time.Time{}, time.Time{}, apperror.NewValidation("start and end are required")
	}
	start := types.StartOfDay(startDay, s.loc)
	end := types.StartOfDay(endDay, s.loc)
	if start.After(end) {
		return time.Time{}, time.Time{}, apperror.NewInvalidDateRange("start must not be after end").
			WithDetail("start", start.Format(types.DateLayout)).
			WithDetail("end", end.Format(types.DateLayout))
	}
	today := types.StartOfDay(asOf, s.loc)
	if start.After(today) {
		return time.Time{}, time.Time{}, apperror.NewInvalidDateRange("period starts in the future").
			WithDetail("start", start.Format(types.DateLayout))
	}
	if end.After(today) {
		return time.Time{}, time.Time{}, apperror.NewInvalidDateRange("period ends in the future").
			WithDetail("end", end.Format(types.DateLayout)).
			WithDetail("today", today.Format(types.DateLayout))
	}
	return start, end, nil
}

func (s *Service) productsInScope(ctx context.Context, only *id.ID, from, to time.Time) ([]id.ID, error) {
	if only != nil {
		return []id.ID{*only}, nil
	}

	physical, err := s.movements.ProductsWithMovements(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("products with movements: %w", err)
	}
	fiscal, err := s.fiscal.ProductsWithLines(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("products with fiscal lines: %w", err)
	}

	seen := make(map[id.ID]struct{}, len(physical)+len(fiscal))
	ids := make([]id.ID, 0, len(physical)+len(fiscal))
	for _, list := range [][]id.ID{physical, fiscal} {
		for _, pid := range list {
			if _, ok := seen[pid]; ok {
				continue
			}
			seen[pid] = struct{}{}
			ids = append(ids, pid)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

// compareBatch tallies one batch of products. The reference costs fetched
// here serve every product of the batch.
func (s *Service) compareBatch(ctx context.Context, batch []id.ID, start, from, to, asOf time.Time) ([]Item, int, error) {
	products, err := s.catalog.GetProducts(ctx, batch)
	if err != nil {
		return nil, 0, fmt.Errorf("load products: %w", err)
	}

	costs, err := s.movements.LatestAvgCosts(ctx, batch, to)
	if err != nil {
		return nil, 0, fmt.Errorf("reference costs: %w", err)
	}

	items := make(map[id.ID]*Item, len(batch))
	for _, pid := range batch {
		p, ok := products[pid]
		if !ok {
			continue
		}
		it := newItem(p)
		if c, ok := costs[pid]; ok {
			it.ReferenceCost = c
		} else {
			it.ReferenceCost = p.CurrentUnitCost
		}
		items[pid] = &it
	}

	unparsed := 0

	lines, err := s.fiscal.LinesInRange(ctx, batch, from, to)
	if err != nil {
		return nil, 0, fmt.Errorf("list fiscal lines: %w", err)
	}
	for i := range lines {
		l := &lines[i]
		if !l.Parsed() {
			unparsed++
			continue
		}
		it, ok := items[l.ProductID.UUID]
		if !ok {
			// line points at a product the catalog does not know
			unparsed++
			continue
		}
		if l.Kind.Direction() == entity.DirectionIn {
			it.FiscalIn = it.FiscalIn.Add(l.Quantity.Decimal)
			it.FiscalInValue = it.FiscalInValue.Add(l.Value())
		} else {
			it.FiscalOut = it.FiscalOut.Add(l.Quantity.Decimal)
			it.FiscalOutValue = it.FiscalOutValue.Add(l.Value())
		}
	}

	movements, err := s.movements.MovementsInRange(ctx, batch, from, to)
	if err != nil {
		return nil, 0, fmt.Errorf("list movements: %w", err)
	}
	for i := range movements {
		m := &movements[i]
		if m.IsReset {
			continue
		}
		it, ok := items[m.ProductID]
		if !ok || !m.Quantity.IsPositive() {
			unparsed++
			continue
		}
		value := movementValue(m, it.ReferenceCost)
		if m.Direction == entity.DirectionIn {
			it.PhysicalIn = it.PhysicalIn.Add(m.Quantity)
			it.PhysicalInValue = it.PhysicalInValue.Add(value)
		} else {
			it.PhysicalOut = it.PhysicalOut.Add(m.Quantity)
			it.PhysicalOutValue = it.PhysicalOutValue.Add(value)
		}
	}

	openingDay := start.AddDate(0, 0, -1)
	seeds, err := s.catalog.LatestSeeds(ctx, batch, openingDay)
	if err != nil {
		return nil, 0, fmt.Errorf("load seeds: %w", err)
	}

	out := make([]Item, 0, len(items))
	for _, pid := range batch {
		it, ok := items[pid]
		if !ok {
			continue
		}
		res, err := s.reconstructor.QuantityAt(ctx, reconstruct.Query{
			ProductID: pid,
			Date:      openingDay,
			AsOf:      asOf,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("opening balance of %s: %w", pid, err)
		}
		it.Opening = res.Quantity

		// a count taken on or after cut-over already includes the seeded stock
		if seed, ok := seeds[pid]; ok && !res.AnchoredSince(types.CalendarDate(seed.SeedDate, s.loc)) {
			it.SeedQuantity = seed.Quantity
			it.Opening = it.Opening.Add(seed.Quantity)
		}

		it.finish()
		out = append(out, *it)
	}
	return out, unparsed, nil
}

func movementValue(m *entity.Movement, referenceCost types.Money) types.Money {
	if m.TotalValue.Valid {
		return m.TotalValue.Decimal
	}
	if m.UnitCost.Valid {
		return m.Quantity.Mul(m.UnitCost.Decimal)
	}
	return m.Quantity.Mul(referenceCost)
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].DivergenceQty.Abs(), items[j].DivergenceQty.Abs()
		if c := a.Cmp(b); c != 0 {
			return c > 0
		}
		if c := items[i].Closing.Cmp(items[j].Closing); c != 0 {
			return c > 0
		}
		return items[i].ProductID.String() < items[j].ProductID.String()
	})
}

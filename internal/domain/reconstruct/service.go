package reconstruct

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/pkg/logger"
)

var tracer = otel.Tracer("stockledger/reconstruct")

// Basis tells how a quantity was obtained.
type Basis string

const (
	// BasisAnchor: replayed forward from the latest physical count.
	BasisAnchor Basis = "anchor"
	// BasisBackward: current balance minus everything after the date.
	BasisBackward Basis = "backward"
	// BasisCurrent: the date is today, the live projection is returned.
	BasisCurrent Basis = "current"
	// BasisMixed: balance keys of one product used different methods.
	BasisMixed Basis = "mixed"
)

// Query selects what to reconstruct.
type Query struct {
	ProductID id.ID
	// LocationID restricts to one location; nil means all locations.
	LocationID *id.ID
	// Date is a calendar day.
	Date time.Time
	// AsOf fixes "now"; zero means the service clock.
	AsOf time.Time
}

// KeyResult is the reconstruction of one balance key.
type KeyResult struct {
	Key      entity.BalanceKey `json:"key"`
	Quantity types.Quantity    `json:"quantity"`
	UnitCost types.Money       `json:"unitCost"`
	Value    types.Money       `json:"value"`
	Basis    Basis             `json:"basis"`
	// AnchorAt is the time of the count used as anchor.
	AnchorAt *time.Time `json:"anchorAt,omitempty"`
}

// Result is the reconstructed stock of a product on a day.
type Result struct {
	ProductID id.ID          `json:"productId"`
	Date      time.Time      `json:"date"`
	Quantity  types.Quantity `json:"quantity"`
	Value     types.Money    `json:"value"`
	Basis     Basis          `json:"basis"`
	Keys      []KeyResult    `json:"keys"`
}

// AnchoredSince reports whether any key was anchored on a count taken at or after t.
func (r *Result) AnchoredSince(t time.Time) bool {
	for _, k := range r.Keys {
		if k.AnchorAt != nil && !k.AnchorAt.Before(t) {
			return true
		}
	}
	return false
}

// Options configures the service.
type Options struct {
	// Location decides where calendar days start.
	Location *time.Location
	Now      func() time.Time
}

// Service reconstructs historical balances.
type Service struct {
	movements MovementReader
	balances  BalanceReader
	products  ProductReader
	txm       tx.ReadOnlyManager
	loc       *time.Location
	now       func() time.Time
}

// NewService creates a reconstruction service.
func NewService(movements MovementReader, balances BalanceReader, products ProductReader, txm tx.ReadOnlyManager, opts Options) *Service {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		movements: movements,
		balances:  balances,
		products:  products,
		txm:       txm,
		loc:       loc,
		now:       now,
	}
}

// QuantityAt returns the on-hand quantity of a product at the end of q.Date.
// Negative reconstructions are clamped to zero per balance key.
func (s *Service) QuantityAt(ctx context.Context, q Query) (*Result, error) {
	ctx, span := tracer.Start(ctx, "QuantityAt", trace.WithAttributes(
		attribute.String("product_id", q.ProductID.String()),
		attribute.String("date", q.Date.Format(types.DateLayout)),
	))
	defer span.End()

	if _, err := s.products.GetProduct(ctx, q.ProductID); err != nil {
		return nil, err
	}

	asOf := q.AsOf
	if asOf.IsZero() {
		asOf = s.now()
	}
	today := types.StartOfDay(asOf, s.loc)
	target := types.StartOfDay(q.Date, s.loc)
	if target.After(today) {
		return nil, apperror.NewInvalidDateRange("date is in the future").
			WithDetail("date", target.Format(types.DateLayout)).
			WithDetail("today", today.Format(types.DateLayout))
	}

	res := &Result{
		ProductID: q.ProductID,
		Date:      target,
		Quantity:  decimal.Zero,
		Value:     decimal.Zero,
	}

	err := s.txm.ReadOnly(ctx, func(ctx context.Context) error {
		rows, err := s.balances.ListByProduct(ctx, q.ProductID, q.LocationID)
		if err != nil {
			return fmt.Errorf("list balances: %w", err)
		}

		if target.Equal(today) {
			for _, b := range rows {
				res.Keys = append(res.Keys, KeyResult{
					Key:      b.Key(),
					Quantity: b.Quantity,
					UnitCost: b.AvgCost,
					Value:    b.Value(),
					Basis:    BasisCurrent,
				})
			}
			return nil
		}

		cutoff := types.DayCutoff(target, s.loc)
		for _, b := range rows {
			kr, err := s.reconstructKey(ctx, b, cutoff)
			if err != nil {
				return err
			}
			res.Keys = append(res.Keys, kr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if target.Equal(today) {
		res.Basis = BasisCurrent
	} else {
		res.Basis = BasisBackward
	}
	for i, k := range res.Keys {
		res.Quantity = res.Quantity.Add(k.Quantity)
		res.Value = res.Value.Add(k.Value)
		if i == 0 {
			res.Basis = k.Basis
		} else if res.Basis != k.Basis {
			res.Basis = BasisMixed
		}
	}

	logger.Debug(ctx, "stock reconstructed",
		"product_id", q.ProductID,
		"date", target.Format(types.DateLayout),
		"quantity", res.Quantity.String(),
		"basis", res.Basis,
	)
	return res, nil
}

// ValueAt is QuantityAt valued at the average cost of the anchor each key
// used, or the current average when no anchor applied.
func (s *Service) ValueAt(ctx context.Context, q Query) (*Result, error) {
	return s.QuantityAt(ctx, q)
}

func (s *Service) reconstructKey(ctx context.Context, b entity.Balance, cutoff time.Time) (KeyResult, error) {
	key := b.Key()
	kr := KeyResult{Key: key}

	anchor, err := s.movements.LatestReset(ctx, key, cutoff)
	if err != nil {
		return kr, fmt.Errorf("latest reset %s: %w", key, err)
	}

	var raw types.Quantity
	if anchor != nil {
		net, err := s.movements.NetBetween(ctx, key, anchor.OccurredAt, cutoff)
		if err != nil {
			return kr, fmt.Errorf("net since anchor %s: %w", key, err)
		}
		raw = anchor.Quantity.Add(net)
		at := anchor.OccurredAt
		kr.AnchorAt = &at
		kr.UnitCost = anchor.ResultingAvgCost
		kr.Basis = BasisAnchor
	} else {
		net, err := s.movements.NetSince(ctx, key, cutoff)
		if err != nil {
			return kr, fmt.Errorf("net after date %s: %w", key, err)
		}
		raw = b.Quantity.Sub(net)
		kr.UnitCost = b.AvgCost
		kr.Basis = BasisBackward
	}

	kr.Quantity = types.ClampZero(raw)
	kr.Value = kr.Quantity.Mul(kr.UnitCost)
	return kr, nil
}

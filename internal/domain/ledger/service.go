package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/catalog"
	"stockledger/pkg/logger"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// AppendInput describes a movement to record.
type AppendInput struct {
	OccurredAt time.Time
	// TypeID or TypeCode selects the movement type.
	TypeID   id.ID
	TypeCode string

	ProductID     id.ID
	LotID         string
	OriginID      id.Optional
	DestinationID id.Optional

	Quantity   types.Quantity
	UnitCost   decimal.NullDecimal
	TotalValue decimal.NullDecimal

	SourceDocument string
	Note           string
	IsReset        bool
	IdempotencyKey string
}

// Validate checks the input without touching storage.
func (in *AppendInput) Validate() error {
	if in.OccurredAt.IsZero() {
		return apperror.NewValidation("occurredAt is required").WithDetail("field", "occurredAt")
	}
	if id.IsNil(in.ProductID) {
		return apperror.NewValidation("productId is required").WithDetail("field", "productId")
	}
	if id.IsNil(in.TypeID) && strings.TrimSpace(in.TypeCode) == "" {
		return apperror.NewValidation("movement type is required").WithDetail("field", "typeId")
	}
	// a count of zero is a legitimate observation
	if in.IsReset {
		if in.Quantity.IsNegative() {
			return apperror.NewValidation("counted quantity cannot be negative").WithDetail("field", "quantity")
		}
	} else if !in.Quantity.IsPositive() {
		return apperror.NewValidation("quantity must be positive").WithDetail("field", "quantity")
	}
	if in.UnitCost.Valid && in.UnitCost.Decimal.IsNegative() {
		return apperror.NewValidation("unit cost cannot be negative").WithDetail("field", "unitCost")
	}
	if in.TotalValue.Valid && in.TotalValue.Decimal.IsNegative() {
		return apperror.NewValidation("total value cannot be negative").WithDetail("field", "totalValue")
	}
	return nil
}

// CompensateInput describes the reversal of a movement.
type CompensateInput struct {
	Reason         string
	IdempotencyKey string
	// OccurredAt defaults to the original movement's time so history is corrected in place.
	OccurredAt *time.Time
}

// Service is the single writer of the ledger and the balance projection.
type Service struct {
	repo       Repository
	catalog    catalog.Repository
	balances   *balance.Store
	txm        tx.Manager
	maxRetries int
}

// NewService creates a ledger service. maxRetries bounds optimistic-lock retries.
func NewService(repo Repository, catalog catalog.Repository, balances *balance.Store, txm tx.Manager, maxRetries int) *Service {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Service{
		repo:       repo,
		catalog:    catalog,
		balances:   balances,
		txm:        txm,
		maxRetries: maxRetries,
	}
}

// Append validates and records one movement, updating the balance projection
// in the same transaction.
func (s *Service) Append(ctx context.Context, in AppendInput) (*entity.Movement, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	if in.IdempotencyKey != "" {
		existing, err := s.repo.GetByIdempotencyKey(ctx, in.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("lookup idempotency key: %w", err)
		}
		if existing != nil {
			logger.Debug(ctx, "movement replayed by idempotency key", "movement_id", existing.ID)
			return existing, nil
		}
	}

	if _, err := s.catalog.GetProduct(ctx, in.ProductID); err != nil {
		return nil, err
	}

	mt, err := s.movementType(ctx, in)
	if err != nil {
		return nil, err
	}

	m := entity.Movement{
		ID:             id.New(),
		OccurredAt:     in.OccurredAt.UTC(),
		TypeID:         mt.ID,
		Direction:      mt.Direction,
		AffectsCost:    mt.AffectsCost,
		ProductID:      in.ProductID,
		LotID:          in.LotID,
		OriginID:       in.OriginID,
		DestinationID:  in.DestinationID,
		LocationID:     entity.ResolveLocation(mt.Direction, in.OriginID, in.DestinationID),
		Quantity:       in.Quantity,
		UnitCost:       in.UnitCost,
		TotalValue:     in.TotalValue,
		SourceDocument: in.SourceDocument,
		Note:           in.Note,
		IsReset:        in.IsReset,
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		m.IdempotencyKey = &key
	}

	return s.record(ctx, m)
}

// Compensate appends the reversal of movementID. Resets are never compensated;
// a new count supersedes them.
func (s *Service) Compensate(ctx context.Context, movementID id.ID, in CompensateInput) (*entity.Movement, error) {
	if in.IdempotencyKey != "" {
		existing, err := s.repo.GetByIdempotencyKey(ctx, in.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("lookup idempotency key: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	original, err := s.repo.GetByID(ctx, movementID)
	if err != nil {
		return nil, err
	}
	if original.IsReset {
		return nil, apperror.NewBusinessRule(apperror.CodeNotCompensable,
			"Physical counts cannot be compensated; record a new count instead").
			WithDetail("movement_id", movementID.String())
	}
	if original.CompensatesID.Valid {
		return nil, apperror.NewBusinessRule(apperror.CodeNotCompensable,
			"A compensating movement cannot itself be compensated").
			WithDetail("movement_id", movementID.String())
	}

	done, err := s.repo.FindCompensation(ctx, movementID)
	if err != nil {
		return nil, fmt.Errorf("find compensation: %w", err)
	}
	if done != nil {
		return nil, apperror.NewAlreadyCompensated(movementID.String(), done.ID.String())
	}

	occurredAt := original.OccurredAt
	if in.OccurredAt != nil {
		occurredAt = in.OccurredAt.UTC()
	}

	m := entity.Movement{
		ID:         id.New(),
		OccurredAt: occurredAt,
		TypeID:     original.TypeID,
		Direction:  original.Direction.Opposite(),
		// a reversal never re-averages cost
		AffectsCost:    false,
		ProductID:      original.ProductID,
		LotID:          original.LotID,
		OriginID:       original.DestinationID,
		DestinationID:  original.OriginID,
		LocationID:     original.LocationID,
		Quantity:       original.Quantity,
		UnitCost:       original.UnitCost,
		TotalValue:     original.TotalValue,
		SourceDocument: original.SourceDocument,
		Note:           in.Reason,
		CompensatesID:  id.Some(original.ID),
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		m.IdempotencyKey = &key
	}

	recorded, err := s.record(ctx, m)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "movement compensated",
		"movement_id", original.ID,
		"compensation_id", recorded.ID,
	)
	return recorded, nil
}

// History lists movements of a product.
func (s *Service) History(ctx context.Context, filter MovementFilter) ([]entity.Movement, error) {
	if id.IsNil(filter.ProductID) {
		return nil, apperror.NewValidation("productId is required").WithDetail("field", "productId")
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, apperror.NewInvalidDateRange("from must not be after to")
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	if _, err := s.catalog.GetProduct(ctx, filter.ProductID); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, filter)
}

// Get returns one movement.
func (s *Service) Get(ctx context.Context, movementID id.ID) (*entity.Movement, error) {
	return s.repo.GetByID(ctx, movementID)
}

// record runs the append transaction, retrying when the balance row changed
// between read and write.
func (s *Service) record(ctx context.Context, base entity.Movement) (*entity.Movement, error) {
	var (
		m   entity.Movement
		err error
	)
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		m = base
		err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
			return s.apply(ctx, &m)
		})
		if !errors.Is(err, balance.ErrStaleBalance) {
			break
		}
		logger.Warn(ctx, "balance changed concurrently, retrying",
			"product_id", m.ProductID,
			"attempt", attempt,
		)
	}

	switch {
	case err == nil:
	case errors.Is(err, balance.ErrStaleBalance):
		return nil, apperror.NewConcurrentUpdateConflict(base.Key().String(), s.maxRetries).WithCause(err)
	case errors.Is(err, ErrDuplicateIdempotencyKey) && base.IdempotencyKey != nil:
		existing, lookupErr := s.repo.GetByIdempotencyKey(ctx, *base.IdempotencyKey)
		if lookupErr != nil || existing == nil {
			return nil, apperror.NewConflict("Idempotency key already used").WithCause(err)
		}
		return existing, nil
	default:
		return nil, err
	}

	logger.Info(ctx, "movement recorded",
		"movement_id", m.ID,
		"product_id", m.ProductID,
		"direction", m.Direction,
		"quantity", m.Quantity.String(),
		"is_reset", m.IsReset,
	)
	return &m, nil
}

func (s *Service) apply(ctx context.Context, m *entity.Movement) error {
	if err := s.checkAfterLatestCount(ctx, m); err != nil {
		return err
	}

	prior, err := s.balances.Current(ctx, m.Key())
	if err != nil {
		return err
	}

	if m.IsReset {
		m.BookQuantity = types.NullOf(prior.Quantity)
	}

	next, err := s.balances.Apply(ctx, prior, m)
	if err != nil {
		return err
	}
	m.ResultingAvgCost = next.AvgCost

	if err := s.repo.Append(ctx, m); err != nil {
		return fmt.Errorf("append movement: %w", err)
	}
	return nil
}

// endOfTime bounds LatestReset lookups that must see every count.
var endOfTime = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// checkAfterLatestCount rejects m when it is dated at or before the latest
// count at its key. The live balance would absorb it while every
// reconstruction anchored on that count would not.
func (s *Service) checkAfterLatestCount(ctx context.Context, m *entity.Movement) error {
	last, err := s.repo.LatestReset(ctx, m.Key(), endOfTime)
	if err != nil {
		return fmt.Errorf("latest count: %w", err)
	}
	if last == nil || m.OccurredAt.After(last.OccurredAt) {
		return nil
	}
	return apperror.NewBusinessRule(apperror.CodeBeforeLatestCount,
		"Movement is dated at or before the latest count at its location").
		WithDetail("occurred_at", m.OccurredAt.UTC().Format(time.RFC3339)).
		WithDetail("count_at", last.OccurredAt.UTC().Format(time.RFC3339)).
		WithDetail("count_id", last.ID.String())
}

func (s *Service) movementType(ctx context.Context, in AppendInput) (*entity.MovementType, error) {
	var (
		mt  *entity.MovementType
		err error
	)
	if !id.IsNil(in.TypeID) {
		mt, err = s.catalog.GetMovementType(ctx, in.TypeID)
	} else {
		mt, err = s.catalog.GetMovementTypeByCode(ctx, in.TypeCode)
	}
	if err != nil {
		return nil, err
	}
	if !mt.Direction.Valid() {
		return nil, apperror.NewValidation("movement type has no valid direction").
			WithDetail("type_id", mt.ID.String())
	}
	return mt, nil
}

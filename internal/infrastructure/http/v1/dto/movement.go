package dto

import (
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/domain/ledger"
)

// --- Request DTOs ---

// AppendMovementRequest records one movement.
// Quantities and costs travel as decimal strings.
type AppendMovementRequest struct {
	OccurredAt     time.Time `json:"occurredAt" binding:"required"`
	TypeID         string    `json:"typeId,omitempty"`
	TypeCode       string    `json:"typeCode,omitempty"`
	ProductID      string    `json:"productId" binding:"required"`
	LotID          string    `json:"lotId,omitempty"`
	OriginID       *string   `json:"originId,omitempty"`
	DestinationID  *string   `json:"destinationId,omitempty"`
	Quantity       string    `json:"quantity" binding:"required"`
	UnitCost       *string   `json:"unitCost,omitempty"`
	TotalValue     *string   `json:"totalValue,omitempty"`
	SourceDocument string    `json:"sourceDocument,omitempty"`
	Note           string    `json:"note,omitempty"`
	IsReset        bool      `json:"isReset,omitempty"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
}

// ToInput converts the request to ledger input.
func (r *AppendMovementRequest) ToInput() (ledger.AppendInput, error) {
	in := ledger.AppendInput{
		OccurredAt:     r.OccurredAt,
		TypeCode:       r.TypeCode,
		LotID:          r.LotID,
		SourceDocument: r.SourceDocument,
		Note:           r.Note,
		IsReset:        r.IsReset,
		IdempotencyKey: r.IdempotencyKey,
	}

	var err error
	if in.ProductID, err = parseID("productId", r.ProductID); err != nil {
		return in, err
	}
	if r.TypeID != "" {
		if in.TypeID, err = parseID("typeId", r.TypeID); err != nil {
			return in, err
		}
	}
	if in.OriginID, err = parseOptionalID("originId", r.OriginID); err != nil {
		return in, err
	}
	if in.DestinationID, err = parseOptionalID("destinationId", r.DestinationID); err != nil {
		return in, err
	}
	if in.Quantity, err = parseQuantity("quantity", r.Quantity); err != nil {
		return in, err
	}
	if in.UnitCost, err = parseOptionalDecimal("unitCost", r.UnitCost); err != nil {
		return in, err
	}
	if in.TotalValue, err = parseOptionalDecimal("totalValue", r.TotalValue); err != nil {
		return in, err
	}
	return in, nil
}

// CompensateMovementRequest reverses a movement.
type CompensateMovementRequest struct {
	Reason         string     `json:"reason,omitempty"`
	OccurredAt     *time.Time `json:"occurredAt,omitempty"`
	IdempotencyKey string     `json:"idempotencyKey,omitempty"`
}

// ToInput converts the request to ledger input.
func (r *CompensateMovementRequest) ToInput() ledger.CompensateInput {
	return ledger.CompensateInput{
		Reason:         r.Reason,
		OccurredAt:     r.OccurredAt,
		IdempotencyKey: r.IdempotencyKey,
	}
}

// --- Response DTOs ---

// MovementResponse represents a ledger movement in API responses.
type MovementResponse struct {
	ID               string    `json:"id"`
	Seq              int64     `json:"seq"`
	OccurredAt       time.Time `json:"occurredAt"`
	TypeID           string    `json:"typeId"`
	Direction        string    `json:"direction"`
	AffectsCost      bool      `json:"affectsCost"`
	ProductID        string    `json:"productId"`
	LotID            string    `json:"lotId,omitempty"`
	OriginID         *string   `json:"originId,omitempty"`
	DestinationID    *string   `json:"destinationId,omitempty"`
	LocationID       string    `json:"locationId"`
	Quantity         string    `json:"quantity"`
	UnitCost         *string   `json:"unitCost,omitempty"`
	TotalValue       *string   `json:"totalValue,omitempty"`
	SourceDocument   string    `json:"sourceDocument,omitempty"`
	Note             string    `json:"note,omitempty"`
	IsReset          bool      `json:"isReset"`
	BookQuantity     *string   `json:"bookQuantity,omitempty"`
	ResultingAvgCost string    `json:"resultingAvgCost"`
	CompensatesID    *string   `json:"compensatesId,omitempty"`
	IdempotencyKey   *string   `json:"idempotencyKey,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// FromMovement converts entity to response DTO.
func FromMovement(m *entity.Movement) MovementResponse {
	return MovementResponse{
		ID:               m.ID.String(),
		Seq:              m.Seq,
		OccurredAt:       m.OccurredAt,
		TypeID:           m.TypeID.String(),
		Direction:        string(m.Direction),
		AffectsCost:      m.AffectsCost,
		ProductID:        m.ProductID.String(),
		LotID:            m.LotID,
		OriginID:         optionalString(m.OriginID),
		DestinationID:    optionalString(m.DestinationID),
		LocationID:       m.LocationID.String(),
		Quantity:         m.Quantity.String(),
		UnitCost:         nullString(m.UnitCost),
		TotalValue:       nullString(m.TotalValue),
		SourceDocument:   m.SourceDocument,
		Note:             m.Note,
		IsReset:          m.IsReset,
		BookQuantity:     nullString(m.BookQuantity),
		ResultingAvgCost: m.ResultingAvgCost.String(),
		CompensatesID:    optionalString(m.CompensatesID),
		IdempotencyKey:   m.IdempotencyKey,
		CreatedAt:        m.CreatedAt,
	}
}

// FromMovements converts a slice of movements.
func FromMovements(ms []entity.Movement) []MovementResponse {
	out := make([]MovementResponse, len(ms))
	for i := range ms {
		out[i] = FromMovement(&ms[i])
	}
	return out
}

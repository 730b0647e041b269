// Package entity provides the ledger's core records.
package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Direction of a movement relative to stock on hand.
type Direction string

const (
	// DirectionIn increases on-hand quantity.
	DirectionIn Direction = "IN"
	// DirectionOut decreases on-hand quantity.
	DirectionOut Direction = "OUT"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction {
	if d == DirectionIn {
		return DirectionOut
	}
	return DirectionIn
}

// MovementType classifies movements (purchase receipt, sale issue, transfer, count).
type MovementType struct {
	ID          id.ID     `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Name        string    `db:"name" json:"name"`
	Direction   Direction `db:"direction" json:"direction"`
	AffectsCost bool      `db:"affects_cost" json:"affectsCost"`
}

// Movement is one immutable ledger entry.
// Movements are never updated or deleted; corrections are compensating movements.
type Movement struct {
	ID  id.ID `db:"id" json:"id"`
	Seq int64 `db:"seq" json:"seq"`

	OccurredAt time.Time `db:"occurred_at" json:"occurredAt"`

	// TypeID references MovementType. Direction and AffectsCost are copied from
	// the type when the movement is appended.
	TypeID      id.ID     `db:"type_id" json:"typeId"`
	Direction   Direction `db:"direction" json:"direction"`
	AffectsCost bool      `db:"affects_cost" json:"affectsCost"`

	ProductID     id.ID       `db:"product_id" json:"productId"`
	LotID         string      `db:"lot_id" json:"lotId,omitempty"`
	OriginID      id.Optional `db:"origin_id" json:"originId"`
	DestinationID id.Optional `db:"destination_id" json:"destinationId"`

	// LocationID is the location whose balance the movement changes.
	LocationID id.ID `db:"location_id" json:"locationId"`

	Quantity   types.Quantity      `db:"quantity" json:"quantity"`
	UnitCost   decimal.NullDecimal `db:"unit_cost" json:"unitCost"`
	TotalValue decimal.NullDecimal `db:"total_value" json:"totalValue"`

	SourceDocument string `db:"source_document" json:"sourceDocument,omitempty"`
	Note           string `db:"note" json:"note,omitempty"`

	// IsReset marks a physical count: Quantity is the absolute observed balance.
	IsReset bool `db:"is_reset" json:"isReset"`

	// BookQuantity is the projected quantity right before a reset was applied.
	BookQuantity decimal.NullDecimal `db:"book_quantity" json:"bookQuantity"`

	// ResultingAvgCost is the balance average cost right after this movement.
	ResultingAvgCost types.Money `db:"resulting_avg_cost" json:"resultingAvgCost"`

	CompensatesID  id.Optional `db:"compensates_id" json:"compensatesId"`
	IdempotencyKey *string     `db:"idempotency_key" json:"idempotencyKey,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// ResolveLocation picks the location a movement affects:
// destination for entries, origin for exits, Nil when absent.
func ResolveLocation(dir Direction, origin, destination id.Optional) id.ID {
	if dir == DirectionIn {
		return id.OrNil(destination)
	}
	return id.OrNil(origin)
}

// Key returns the balance key this movement applies to.
func (m *Movement) Key() BalanceKey {
	return BalanceKey{ProductID: m.ProductID, LocationID: m.LocationID, LotID: m.LotID}
}

// SignedQuantity returns +quantity for entries and -quantity for exits.
// Resets have no signed quantity; see NetEffect.
func (m *Movement) SignedQuantity() types.Quantity {
	if m.IsReset {
		return decimal.Zero
	}
	if m.Direction == DirectionOut {
		return m.Quantity.Neg()
	}
	return m.Quantity
}

// NetEffect is the change the movement made to on-hand quantity.
// For a reset it is the jump from the book quantity to the counted one.
func (m *Movement) NetEffect() types.Quantity {
	if m.IsReset {
		return m.Quantity.Sub(m.BookQuantity.Decimal)
	}
	return m.SignedQuantity()
}

// EffectiveUnitCost returns the unit cost carried by the movement,
// derived from TotalValue when only a total was recorded.
func (m *Movement) EffectiveUnitCost() (types.Money, bool) {
	if m.UnitCost.Valid {
		return m.UnitCost.Decimal, true
	}
	if m.TotalValue.Valid && m.Quantity.IsPositive() {
		return m.TotalValue.Decimal.Div(m.Quantity), true
	}
	return decimal.Zero, false
}

// BalanceKey identifies one materialized balance row.
type BalanceKey struct {
	ProductID  id.ID  `db:"product_id" json:"productId"`
	LocationID id.ID  `db:"location_id" json:"locationId"`
	LotID      string `db:"lot_id" json:"lotId"`
}

func (k BalanceKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.ProductID, k.LocationID, k.LotID)
}

// Balance is the materialized current state of one (product, location, lot).
// Rows are created lazily on the first movement and never deleted.
type Balance struct {
	ProductID  id.ID  `db:"product_id" json:"productId"`
	LocationID id.ID  `db:"location_id" json:"locationId"`
	LotID      string `db:"lot_id" json:"lotId"`

	Quantity         types.Quantity `db:"quantity" json:"quantity"`
	ReservedQuantity types.Quantity `db:"reserved_quantity" json:"reservedQuantity"`
	AvgCost          types.Money    `db:"avg_cost" json:"avgCost"`

	LastMovementAt time.Time `db:"last_movement_at" json:"lastMovementAt"`

	// Version is bumped on every write; zero means the row does not exist yet.
	Version   int64     `db:"version" json:"version"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewBalance returns the empty balance for key.
func NewBalance(key BalanceKey) Balance {
	return Balance{
		ProductID:        key.ProductID,
		LocationID:       key.LocationID,
		LotID:            key.LotID,
		Quantity:         decimal.Zero,
		ReservedQuantity: decimal.Zero,
		AvgCost:          decimal.Zero,
	}
}

// Key returns the balance key.
func (b *Balance) Key() BalanceKey {
	return BalanceKey{ProductID: b.ProductID, LocationID: b.LocationID, LotID: b.LotID}
}

// Value is quantity valued at the moving average cost.
func (b *Balance) Value() types.Money {
	return b.Quantity.Mul(b.AvgCost)
}

// Available is quantity not reserved by orders.
func (b *Balance) Available() types.Quantity {
	return b.Quantity.Sub(b.ReservedQuantity)
}

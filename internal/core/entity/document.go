package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/id"
)

// FiscalKind is the kind of fiscal document.
type FiscalKind string

const (
	// FiscalPurchase is an incoming invoice: goods entering stock.
	FiscalPurchase FiscalKind = "purchase"
	// FiscalSale is an outgoing invoice: goods leaving stock.
	FiscalSale FiscalKind = "sale"
)

// Direction maps the document kind to the stock direction it implies.
func (k FiscalKind) Direction() Direction {
	if k == FiscalSale {
		return DirectionOut
	}
	return DirectionIn
}

// FiscalDocument is an issued purchase or sale invoice.
type FiscalDocument struct {
	ID           id.ID      `db:"id" json:"id"`
	Number       string     `db:"number" json:"number"`
	Kind         FiscalKind `db:"kind" json:"kind"`
	IssuedAt     time.Time  `db:"issued_at" json:"issuedAt"`
	Counterparty string     `db:"counterparty" json:"counterparty"`
	Cancelled    bool       `db:"cancelled" json:"cancelled"`
}

// FiscalLine is one invoice line. Columns are nullable because lines come
// from external documents and may be incomplete.
type FiscalLine struct {
	DocumentID id.ID               `db:"document_id" json:"documentId"`
	LineNo     int                 `db:"line_no" json:"lineNo"`
	ProductID  id.Optional         `db:"product_id" json:"productId"`
	Quantity   decimal.NullDecimal `db:"quantity" json:"quantity"`
	UnitPrice  decimal.NullDecimal `db:"unit_price" json:"unitPrice"`
	Total      decimal.NullDecimal `db:"total" json:"total"`
}

// FiscalEntry is a line joined with its document header.
type FiscalEntry struct {
	FiscalLine
	DocumentNumber string     `db:"number" json:"documentNumber"`
	Kind           FiscalKind `db:"kind" json:"kind"`
	IssuedAt       time.Time  `db:"issued_at" json:"issuedAt"`
	Counterparty   string     `db:"counterparty" json:"counterparty"`
}

// Parsed reports whether the line carries enough data to be tallied.
func (e *FiscalEntry) Parsed() bool {
	if !e.ProductID.Valid || id.IsNil(e.ProductID.UUID) {
		return false
	}
	if !e.Quantity.Valid || !e.Quantity.Decimal.IsPositive() {
		return false
	}
	if e.UnitPrice.Valid && e.UnitPrice.Decimal.IsNegative() {
		return false
	}
	if e.Kind != FiscalPurchase && e.Kind != FiscalSale {
		return false
	}
	return true
}

// Value returns the line total, or quantity times unit price when no total was recorded.
func (e *FiscalEntry) Value() decimal.Decimal {
	if e.Total.Valid {
		return e.Total.Decimal
	}
	if e.UnitPrice.Valid {
		return e.Quantity.Decimal.Mul(e.UnitPrice.Decimal)
	}
	return decimal.Zero
}

package reconciliation

import (
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Stream names a source of stock flows.
type Stream string

const (
	StreamFiscal   Stream = "fiscal"
	StreamPhysical Stream = "physical"
)

// Valid reports whether s is a known stream.
func (s Stream) Valid() bool {
	return s == StreamFiscal || s == StreamPhysical
}

// Query selects the period to reconcile. Start and End are inclusive calendar days.
type Query struct {
	Start     time.Time
	End       time.Time
	ProductID *id.ID
}

// Item is the reconciliation of one product.
type Item struct {
	ProductID   id.ID  `json:"productId"`
	ProductCode string `json:"productCode"`
	ProductName string `json:"productName"`

	Opening types.Quantity `json:"opening"`
	// SeedQuantity is the cut-over stock included in Opening.
	SeedQuantity types.Quantity `json:"seedQuantity"`

	FiscalIn       types.Quantity `json:"fiscalIn"`
	FiscalOut      types.Quantity `json:"fiscalOut"`
	FiscalInValue  types.Money    `json:"fiscalInValue"`
	FiscalOutValue types.Money    `json:"fiscalOutValue"`

	PhysicalIn       types.Quantity `json:"physicalIn"`
	PhysicalOut      types.Quantity `json:"physicalOut"`
	PhysicalInValue  types.Money    `json:"physicalInValue"`
	PhysicalOutValue types.Money    `json:"physicalOutValue"`

	Closing types.Quantity `json:"closing"`

	ReferenceCost   types.Money    `json:"referenceCost"`
	DivergenceQty   types.Quantity `json:"divergenceQty"`
	DivergenceValue types.Money    `json:"divergenceValue"`
}

func newItem(p entity.Product) Item {
	return Item{
		ProductID:        p.ID,
		ProductCode:      p.Code,
		ProductName:      p.Name,
		Opening:          decimal.Zero,
		SeedQuantity:     decimal.Zero,
		FiscalIn:         decimal.Zero,
		FiscalOut:        decimal.Zero,
		FiscalInValue:    decimal.Zero,
		FiscalOutValue:   decimal.Zero,
		PhysicalIn:       decimal.Zero,
		PhysicalOut:      decimal.Zero,
		PhysicalInValue:  decimal.Zero,
		PhysicalOutValue: decimal.Zero,
		Closing:          decimal.Zero,
		ReferenceCost:    decimal.Zero,
		DivergenceQty:    decimal.Zero,
		DivergenceValue:  decimal.Zero,
	}
}

// finish derives closing and divergence from the tallies.
func (it *Item) finish() {
	it.Closing = it.Opening.Add(it.PhysicalIn).Sub(it.PhysicalOut)
	fiscalNet := it.FiscalIn.Sub(it.FiscalOut)
	physicalNet := it.PhysicalIn.Sub(it.PhysicalOut)
	it.DivergenceQty = fiscalNet.Sub(physicalNet)
	it.DivergenceValue = it.DivergenceQty.Mul(it.ReferenceCost)
}

// Report is the outcome of ComparePeriod.
type Report struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	AsOf  time.Time `json:"asOf"`
	Items []Item    `json:"items"`
	// UnparsedRecords counts source rows skipped as malformed.
	UnparsedRecords int `json:"unparsedRecords"`
}

// DetailQuery selects the source records behind one tally cell.
type DetailQuery struct {
	ProductID id.ID
	Stream    Stream
	Direction entity.Direction
	Start     time.Time
	End       time.Time
}

// SourceRecord is one invoice line or ledger movement.
type SourceRecord struct {
	Stream       Stream              `json:"stream"`
	Direction    entity.Direction    `json:"direction"`
	OccurredAt   time.Time           `json:"occurredAt"`
	Reference    string              `json:"reference"`
	Counterparty string              `json:"counterparty,omitempty"`
	Quantity     types.Quantity      `json:"quantity"`
	UnitPrice    decimal.NullDecimal `json:"unitPrice"`
	Total        types.Money         `json:"total"`
	DocumentID   id.Optional         `json:"documentId"`
	LineNo       int                 `json:"lineNo,omitempty"`
	MovementID   id.Optional         `json:"movementId"`
}

package dto

import (
	"time"

	"stockledger/internal/core/types"
	"stockledger/internal/domain/reconciliation"
)

// ReconciliationItemResponse compares fiscal and physical flows of one product.
type ReconciliationItemResponse struct {
	ProductID   string `json:"productId"`
	ProductCode string `json:"productCode"`
	ProductName string `json:"productName"`

	Opening      string `json:"opening"`
	SeedQuantity string `json:"seedQuantity"`

	FiscalIn       string `json:"fiscalIn"`
	FiscalOut      string `json:"fiscalOut"`
	FiscalInValue  string `json:"fiscalInValue"`
	FiscalOutValue string `json:"fiscalOutValue"`

	PhysicalIn       string `json:"physicalIn"`
	PhysicalOut      string `json:"physicalOut"`
	PhysicalInValue  string `json:"physicalInValue"`
	PhysicalOutValue string `json:"physicalOutValue"`

	Closing         string `json:"closing"`
	ReferenceCost   string `json:"referenceCost"`
	DivergenceQty   string `json:"divergenceQty"`
	DivergenceValue string `json:"divergenceValue"`
}

// ReconciliationResponse is the period report.
type ReconciliationResponse struct {
	Start           string                       `json:"start"`
	End             string                       `json:"end"`
	AsOf            time.Time                    `json:"asOf"`
	UnparsedRecords int                          `json:"unparsedRecords"`
	Items           []ReconciliationItemResponse `json:"items"`
}

// FromReport converts a reconciliation report.
func FromReport(r *reconciliation.Report) ReconciliationResponse {
	items := make([]ReconciliationItemResponse, len(r.Items))
	for i, it := range r.Items {
		items[i] = ReconciliationItemResponse{
			ProductID:        it.ProductID.String(),
			ProductCode:      it.ProductCode,
			ProductName:      it.ProductName,
			Opening:          it.Opening.String(),
			SeedQuantity:     it.SeedQuantity.String(),
			FiscalIn:         it.FiscalIn.String(),
			FiscalOut:        it.FiscalOut.String(),
			FiscalInValue:    it.FiscalInValue.String(),
			FiscalOutValue:   it.FiscalOutValue.String(),
			PhysicalIn:       it.PhysicalIn.String(),
			PhysicalOut:      it.PhysicalOut.String(),
			PhysicalInValue:  it.PhysicalInValue.String(),
			PhysicalOutValue: it.PhysicalOutValue.String(),
			Closing:          it.Closing.String(),
			ReferenceCost:    it.ReferenceCost.String(),
			DivergenceQty:    it.DivergenceQty.String(),
			DivergenceValue:  it.DivergenceValue.String(),
		}
	}
	return ReconciliationResponse{
		Start:           r.Start.Format(types.DateLayout),
		End:             r.End.Format(types.DateLayout),
		AsOf:            r.AsOf,
		UnparsedRecords: r.UnparsedRecords,
		Items:           items,
	}
}

// SourceRecordResponse is one invoice line or ledger movement behind a tally.
type SourceRecordResponse struct {
	Stream       string    `json:"stream"`
	Direction    string    `json:"direction"`
	OccurredAt   time.Time `json:"occurredAt"`
	Reference    string    `json:"reference"`
	Counterparty string    `json:"counterparty,omitempty"`
	Quantity     string    `json:"quantity"`
	UnitPrice    *string   `json:"unitPrice,omitempty"`
	Total        string    `json:"total"`
	DocumentID   *string   `json:"documentId,omitempty"`
	LineNo       int       `json:"lineNo,omitempty"`
	MovementID   *string   `json:"movementId,omitempty"`
}

// FromSourceRecords converts drill-down rows.
func FromSourceRecords(records []reconciliation.SourceRecord) []SourceRecordResponse {
	out := make([]SourceRecordResponse, len(records))
	for i, r := range records {
		out[i] = SourceRecordResponse{
			Stream:       string(r.Stream),
			Direction:    string(r.Direction),
			OccurredAt:   r.OccurredAt,
			Reference:    r.Reference,
			Counterparty: r.Counterparty,
			Quantity:     r.Quantity.String(),
			UnitPrice:    nullString(r.UnitPrice),
			Total:        r.Total.String(),
			DocumentID:   optionalString(r.DocumentID),
			LineNo:       r.LineNo,
			MovementID:   optionalString(r.MovementID),
		}
	}
	return out
}

package dto

import (
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/reconstruct"
)

// BalanceResponse represents one projected balance row.
type BalanceResponse struct {
	ProductID        string     `json:"productId"`
	LocationID       string     `json:"locationId"`
	LotID            string     `json:"lotId,omitempty"`
	Quantity         string     `json:"quantity"`
	ReservedQuantity string     `json:"reservedQuantity"`
	Available        string     `json:"available"`
	AvgCost          string     `json:"avgCost"`
	Value            string     `json:"value"`
	LastMovementAt   *time.Time `json:"lastMovementAt,omitempty"`
	Version          int64      `json:"version"`
}

// FromBalance converts entity to response DTO.
func FromBalance(b entity.Balance) BalanceResponse {
	// zero time renders as an absent field, not "0001-01-01"
	var lastMovement *time.Time
	if !b.LastMovementAt.IsZero() {
		val := b.LastMovementAt
		lastMovement = &val
	}

	return BalanceResponse{
		ProductID:        b.ProductID.String(),
		LocationID:       b.LocationID.String(),
		LotID:            b.LotID,
		Quantity:         b.Quantity.String(),
		ReservedQuantity: b.ReservedQuantity.String(),
		Available:        b.Available().String(),
		AvgCost:          b.AvgCost.String(),
		Value:            b.Value().String(),
		LastMovementAt:   lastMovement,
		Version:          b.Version,
	}
}

// FromBalances converts a slice of balances.
func FromBalances(bs []entity.Balance) []BalanceResponse {
	out := make([]BalanceResponse, len(bs))
	for i, b := range bs {
		out[i] = FromBalance(b)
	}
	return out
}

// StockAtKeyResponse is the reconstruction of one balance key.
type StockAtKeyResponse struct {
	LocationID string     `json:"locationId"`
	LotID      string     `json:"lotId,omitempty"`
	Quantity   string     `json:"quantity"`
	UnitCost   string     `json:"unitCost"`
	Value      string     `json:"value"`
	Basis      string     `json:"basis"`
	AnchorAt   *time.Time `json:"anchorAt,omitempty"`
}

// StockAtResponse is the reconstructed stock of a product on a day.
type StockAtResponse struct {
	ProductID string               `json:"productId"`
	Date      string               `json:"date"`
	Quantity  string               `json:"quantity"`
	Value     string               `json:"value"`
	Basis     string               `json:"basis"`
	Keys      []StockAtKeyResponse `json:"keys"`
}

// FromStockAt converts a reconstruction result.
func FromStockAt(r *reconstruct.Result) StockAtResponse {
	keys := make([]StockAtKeyResponse, len(r.Keys))
	for i, k := range r.Keys {
		keys[i] = StockAtKeyResponse{
			LocationID: k.Key.LocationID.String(),
			LotID:      k.Key.LotID,
			Quantity:   k.Quantity.String(),
			UnitCost:   k.UnitCost.String(),
			Value:      k.Value.String(),
			Basis:      string(k.Basis),
			AnchorAt:   k.AnchorAt,
		}
	}
	return StockAtResponse{
		ProductID: r.ProductID.String(),
		Date:      r.Date.Format(types.DateLayout),
		Quantity:  r.Quantity.String(),
		Value:     r.Value.String(),
		Basis:     string(r.Basis),
		Keys:      keys,
	}
}

// DriftResponse reports a balance row that differs from a ledger replay.
type DriftResponse struct {
	LocationID       string `json:"locationId"`
	LotID            string `json:"lotId,omitempty"`
	StoredQuantity   string `json:"storedQuantity"`
	ReplayedQuantity string `json:"replayedQuantity"`
	StoredAvgCost    string `json:"storedAvgCost"`
	ReplayedAvgCost  string `json:"replayedAvgCost"`
}

// BalanceCheckResponse is the outcome of a verify or rebuild.
type BalanceCheckResponse struct {
	ProductID string          `json:"productId"`
	Repaired  bool            `json:"repaired"`
	Drifts    []DriftResponse `json:"drifts"`
}

// FromDrifts converts verify/rebuild output.
func FromDrifts(productID string, repaired bool, drifts []balance.Drift) BalanceCheckResponse {
	out := make([]DriftResponse, len(drifts))
	for i, d := range drifts {
		out[i] = DriftResponse{
			LocationID:       d.Key.LocationID.String(),
			LotID:            d.Key.LotID,
			StoredQuantity:   d.StoredQuantity.String(),
			ReplayedQuantity: d.ReplayedQuantity.String(),
			StoredAvgCost:    d.StoredAvgCost.String(),
			ReplayedAvgCost:  d.ReplayedAvgCost.String(),
		}
	}
	return BalanceCheckResponse{ProductID: productID, Repaired: repaired, Drifts: out}
}

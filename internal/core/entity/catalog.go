package entity

import (
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Product is the catalog view the ledger reads. The catalog owns it.
type Product struct {
	ID               id.ID          `db:"id" json:"id"`
	Code             string         `db:"code" json:"code"`
	Name             string         `db:"name" json:"name"`
	CurrentQuantity  types.Quantity `db:"current_quantity" json:"currentQuantity"`
	CurrentUnitCost  types.Money    `db:"current_unit_cost" json:"currentUnitCost"`
	Active           bool           `db:"active" json:"active"`
	LotControlled    bool           `db:"lot_controlled" json:"lotControlled"`
	ExpiryControlled bool           `db:"expiry_controlled" json:"expiryControlled"`
}

// StockLocation is a warehouse, shelf or bin.
type StockLocation struct {
	ID   id.ID  `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}

// SeedBalance is the stock a product had at system cut-over,
// before the ledger started recording movements.
type SeedBalance struct {
	ProductID id.ID          `db:"product_id" json:"productId"`
	SeedDate  time.Time      `db:"seed_date" json:"seedDate"`
	Quantity  types.Quantity `db:"quantity" json:"quantity"`
	UnitCost  types.Money    `db:"unit_cost" json:"unitCost"`
}

package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/reconstruct"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// StockHandler serves current and historical stock.
type StockHandler struct {
	*BaseHandler
	balances    *balance.Store
	reconstruct *reconstruct.Service
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(base *BaseHandler, balances *balance.Store, rec *reconstruct.Service) *StockHandler {
	return &StockHandler{
		BaseHandler: base,
		balances:    balances,
		reconstruct: rec,
	}
}

// GetBalances handles GET /balances?product_id[&location_id]
func (h *StockHandler) GetBalances(c *gin.Context) {
	productID, ok := h.RequireID(c, "product_id")
	if !ok {
		return
	}
	locationID, ok := h.OptionalID(c, "location_id")
	if !ok {
		return
	}

	rows, err := h.balances.List(c.Request.Context(), productID, locationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	List(c, dto.FromBalances(rows), 0, 0)
}

// GetStockAt handles GET /stock-at?product_id&date[&location_id]
func (h *StockHandler) GetStockAt(c *gin.Context) {
	productID, ok := h.RequireID(c, "product_id")
	if !ok {
		return
	}
	date, ok := h.RequireDate(c, "date")
	if !ok {
		return
	}
	locationID, ok := h.OptionalID(c, "location_id")
	if !ok {
		return
	}

	res, err := h.reconstruct.ValueAt(c.Request.Context(), reconstruct.Query{
		ProductID:  productID,
		LocationID: locationID,
		Date:       date,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromStockAt(res))
}

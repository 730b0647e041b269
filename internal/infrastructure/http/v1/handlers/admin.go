package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/balance"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// AdminHandler exposes projection maintenance.
type AdminHandler struct {
	*BaseHandler
	balances *balance.Store
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(base *BaseHandler, balances *balance.Store) *AdminHandler {
	return &AdminHandler{BaseHandler: base, balances: balances}
}

// VerifyBalances handles GET /admin/balances/verify?product_id
func (h *AdminHandler) VerifyBalances(c *gin.Context) {
	productID, ok := h.RequireID(c, "product_id")
	if !ok {
		return
	}

	drifts, err := h.balances.Verify(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromDrifts(productID.String(), false, drifts))
}

// RebuildBalances handles POST /admin/balances/rebuild?product_id
func (h *AdminHandler) RebuildBalances(c *gin.Context) {
	productID, ok := h.RequireID(c, "product_id")
	if !ok {
		return
	}

	drifts, err := h.balances.Rebuild(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromDrifts(productID.String(), len(drifts) > 0, drifts))
}

package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// MovementHandler handles HTTP requests for the movement ledger.
type MovementHandler struct {
	*BaseHandler
	ledger *ledger.Service
}

// NewMovementHandler creates a new movement handler.
func NewMovementHandler(base *BaseHandler, svc *ledger.Service) *MovementHandler {
	return &MovementHandler{BaseHandler: base, ledger: svc}
}

// Append handles POST /movements
func (h *MovementHandler) Append(c *gin.Context) {
	var req dto.AppendMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = h.IdempotencyKey(c)
	}

	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	m, err := h.ledger.Append(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromMovement(m))
}

// Compensate handles POST /movements/:id/compensate
func (h *MovementHandler) Compensate(c *gin.Context) {
	movementID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	var req dto.CompensateMovementRequest
	// the body is optional
	if c.Request.ContentLength > 0 && !h.BindJSON(c, &req) {
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = h.IdempotencyKey(c)
	}

	m, err := h.ledger.Compensate(c.Request.Context(), movementID, req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromMovement(m))
}

// Get handles GET /movements/:id
func (h *MovementHandler) Get(c *gin.Context) {
	movementID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	m, err := h.ledger.Get(c.Request.Context(), movementID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromMovement(m))
}

// List handles GET /movements?product_id&location_id&from&to&limit&offset
// from and to are inclusive calendar days.
func (h *MovementHandler) List(c *gin.Context) {
	productID, ok := h.RequireID(c, "product_id")
	if !ok {
		return
	}
	locationID, ok := h.OptionalID(c, "location_id")
	if !ok {
		return
	}
	from, ok := h.OptionalDate(c, "from")
	if !ok {
		return
	}
	to, ok := h.OptionalDate(c, "to")
	if !ok {
		return
	}

	filter := ledger.MovementFilter{
		ProductID:     productID,
		LocationID:    locationID,
		From:          from,
		ExcludeResets: c.Query("exclude_resets") == "true",
		Limit:         h.ParseIntQuery(c, "limit", 100),
		Offset:        h.ParseIntQuery(c, "offset", 0),
	}
	if to != nil {
		next := to.AddDate(0, 0, 1)
		filter.To = &next
	}

	movements, err := h.ledger.History(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	List(c, dto.FromMovements(movements), filter.Limit, filter.Offset)
}

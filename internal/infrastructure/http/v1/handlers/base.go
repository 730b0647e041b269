package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// ContextKeyIdempotency is the gin context key holding the X-Idempotency-Key header.
const ContextKeyIdempotency = "idempotency_key"

// BaseHandler provides common handler utilities.
type BaseHandler struct {
	// loc decides which calendar day a YYYY-MM-DD parameter names.
	loc *time.Location
}

// NewBaseHandler creates a new base handler.
func NewBaseHandler(loc *time.Location) *BaseHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &BaseHandler{loc: loc}
}

// BindJSON binds and validates JSON request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// Error registers err on the gin context and aborts the request.
// The JSON body is produced by middleware.ErrorHandler.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ParseIntQuery parses integer query parameter with default value.
func (h *BaseHandler) ParseIntQuery(c *gin.Context, key string, defaultVal int) int {
	val := c.Query(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// RequireID parses a mandatory uuid query parameter.
func (h *BaseHandler) RequireID(c *gin.Context, key string) (id.ID, bool) {
	raw := c.Query(key)
	if raw == "" {
		h.Error(c, apperror.NewValidation(key+" is required").WithDetail("field", key))
		return id.Nil(), false
	}
	return h.parseID(c, key, raw)
}

// OptionalID parses a uuid query parameter that may be absent.
func (h *BaseHandler) OptionalID(c *gin.Context, key string) (*id.ID, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	v, ok := h.parseID(c, key, raw)
	if !ok {
		return nil, false
	}
	return &v, true
}

// PathID parses a uuid path parameter.
func (h *BaseHandler) PathID(c *gin.Context, key string) (id.ID, bool) {
	return h.parseID(c, key, c.Param(key))
}

func (h *BaseHandler) parseID(c *gin.Context, key, raw string) (id.ID, bool) {
	v, err := id.Parse(raw)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid "+key+" format").WithDetail("field", key))
		return id.Nil(), false
	}
	return v, true
}

// RequireDate parses a mandatory YYYY-MM-DD query parameter.
func (h *BaseHandler) RequireDate(c *gin.Context, key string) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		h.Error(c, apperror.NewValidation(key+" is required").WithDetail("field", key))
		return time.Time{}, false
	}
	d, err := types.ParseDate(raw, h.loc)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid "+key+", expected YYYY-MM-DD").
			WithDetail("field", key).
			WithDetail("value", raw))
		return time.Time{}, false
	}
	return d, true
}

// OptionalDate parses a YYYY-MM-DD query parameter that may be absent.
func (h *BaseHandler) OptionalDate(c *gin.Context, key string) (*time.Time, bool) {
	if c.Query(key) == "" {
		return nil, true
	}
	d, ok := h.RequireDate(c, key)
	if !ok {
		return nil, false
	}
	return &d, true
}

// IdempotencyKey returns the key captured by middleware.IdempotencyKey.
func (h *BaseHandler) IdempotencyKey(c *gin.Context) string {
	return c.GetString(ContextKeyIdempotency)
}

// Created sends 201 response with data.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// List sends 200 response with a list body.
func List[T any](c *gin.Context, items []T, limit, offset int) {
	c.JSON(http.StatusOK, dto.NewListResponse(items, limit, offset))
}

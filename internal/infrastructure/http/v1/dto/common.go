// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// NewListResponse never renders a nil slice as null.
func NewListResponse[T any](items []T, limit, offset int) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Limit: limit, Offset: offset}
}

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func parseID(field, s string) (id.ID, error) {
	v, err := id.Parse(s)
	if err != nil {
		return id.Nil(), apperror.NewValidation("invalid "+field+" format").WithDetail("field", field)
	}
	return v, nil
}

func parseOptionalID(field string, s *string) (id.Optional, error) {
	if s == nil || *s == "" {
		return id.None(), nil
	}
	v, err := parseID(field, *s)
	if err != nil {
		return id.None(), err
	}
	return id.Some(v), nil
}

func parseQuantity(field, s string) (types.Quantity, error) {
	q, err := types.ParseQuantity(s)
	if err != nil {
		return decimal.Zero, apperror.NewValidation("invalid "+field).
			WithDetail("field", field).
			WithDetail("value", s)
	}
	return q, nil
}

func parseOptionalDecimal(field string, s *string) (decimal.NullDecimal, error) {
	if s == nil || *s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := parseQuantity(field, *s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return types.NullOf(d), nil
}

func nullString(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func optionalString(o id.Optional) *string {
	if !o.Valid {
		return nil
	}
	s := o.UUID.String()
	return &s
}

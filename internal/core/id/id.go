// Package id provides UUIDv7 identifiers for ledger entities.
// UUIDv7 is time-ordered, so movement ids sort in insertion order.
package id

import (
	"github.com/google/uuid"
)

// ID is the identifier type used by all entities.
type ID = uuid.UUID

// Optional is a nullable ID (origin/destination locations, compensation links).
type Optional = uuid.NullUUID

// New generates a new UUIDv7.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse converts string to ID, panics on error.
// Use only for constants and tests.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil returns zero-value UUID. It stands for "no location" in balance keys.
func Nil() ID {
	return uuid.Nil
}

// IsNil checks if ID is zero-value.
func IsNil(v ID) bool {
	return v == uuid.Nil
}

// Some wraps v into a valid Optional.
func Some(v ID) Optional {
	return uuid.NullUUID{UUID: v, Valid: true}
}

// None returns an empty Optional.
func None() Optional {
	return uuid.NullUUID{}
}

// OrNil returns the wrapped ID or Nil.
func OrNil(o Optional) ID {
	if !o.Valid {
		return uuid.Nil
	}
	return o.UUID
}

package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

func TestExtractDBColumns_Movement(t *testing.T) {
	cols := ExtractDBColumns[entity.Movement]()

	for _, expected := range []string{
		"id", "seq", "occurred_at", "direction", "location_id",
		"quantity", "is_reset", "book_quantity", "resulting_avg_cost", "idempotency_key",
	} {
		assert.Contains(t, cols, expected)
	}
	assert.Equal(t, "id", cols[0])
}

func TestExtractDBColumns_EmbeddedLine(t *testing.T) {
	cols := ExtractDBColumns[entity.FiscalEntry]()

	assert.Equal(t, []string{
		"document_id", "line_no", "product_id", "quantity", "unit_price", "total",
		"number", "kind", "issued_at", "counterparty",
	}, cols)
}

func TestStructToMap_Movement(t *testing.T) {
	key := "k-1"
	m := entity.Movement{
		ID:             id.New(),
		OccurredAt:     time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Direction:      entity.DirectionOut,
		Quantity:       types.MustDecimal("2.5"),
		IsReset:        true,
		BookQuantity:   types.NullOf(types.MustDecimal("7")),
		IdempotencyKey: &key,
	}

	got := StructToMap(&m)

	assert.Equal(t, m.ID, got["id"])
	assert.Equal(t, entity.DirectionOut, got["direction"])
	assert.Equal(t, true, got["is_reset"])
	assert.Equal(t, &key, got["idempotency_key"])
	assert.Len(t, got, len(ExtractDBColumns[entity.Movement]()))
}

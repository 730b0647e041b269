package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

type columnKind int

const (
	kindText columnKind = iota
	kindID               // required uuid
	kindNewID            // uuid, generated when blank
	kindOptionalID       // uuid or NULL
	kindDecimal          // decimal, zero when blank
	kindOptionalDecimal  // decimal or NULL
	kindBool
	kindInt
	kindDate      // YYYY-MM-DD
	kindTimestamp // RFC 3339
	kindDirection
	kindFiscalKind
)

type column struct {
	name     string
	kind     columnKind
	required bool
	// def is used for a blank bool cell or a missing bool column.
	def bool
}

// table maps one CSV file onto one table. Tables are listed in foreign key order.
type table struct {
	file    string
	name    string
	columns []column
}

var tables = []table{
	{
		file: "products.csv",
		name: "products",
		columns: []column{
			{name: "id", kind: kindNewID},
			{name: "code", kind: kindText, required: true},
			{name: "name", kind: kindText, required: true},
			{name: "current_unit_cost", kind: kindDecimal},
			{name: "active", kind: kindBool, def: true},
			{name: "lot_controlled", kind: kindBool},
			{name: "expiry_controlled", kind: kindBool},
		},
	},
	{
		file: "locations.csv",
		name: "stock_locations",
		columns: []column{
			{name: "id", kind: kindNewID},
			{name: "code", kind: kindText, required: true},
			{name: "name", kind: kindText},
		},
	},
	{
		file: "movement_types.csv",
		name: "movement_types",
		columns: []column{
			{name: "id", kind: kindNewID},
			{name: "code", kind: kindText, required: true},
			{name: "name", kind: kindText},
			{name: "direction", kind: kindDirection, required: true},
			{name: "affects_cost", kind: kindBool},
		},
	},
	{
		file: "seed_balances.csv",
		name: "seed_balances",
		columns: []column{
			{name: "product_id", kind: kindID, required: true},
			{name: "seed_date", kind: kindDate, required: true},
			{name: "quantity", kind: kindDecimal, required: true},
			{name: "unit_cost", kind: kindDecimal},
		},
	},
	{
		file: "fiscal_documents.csv",
		name: "fiscal_documents",
		columns: []column{
			{name: "id", kind: kindID, required: true},
			{name: "number", kind: kindText, required: true},
			{name: "kind", kind: kindFiscalKind, required: true},
			{name: "issued_at", kind: kindTimestamp, required: true},
			{name: "counterparty", kind: kindText},
			{name: "cancelled", kind: kindBool},
		},
	},
	{
		file: "fiscal_lines.csv",
		name: "fiscal_lines",
		columns: []column{
			{name: "document_id", kind: kindID, required: true},
			{name: "line_no", kind: kindInt, required: true},
			{name: "product_id", kind: kindOptionalID},
			{name: "quantity", kind: kindOptionalDecimal},
			{name: "unit_price", kind: kindOptionalDecimal},
			{name: "total", kind: kindOptionalDecimal},
		},
	},
}

func (t table) columnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.name
	}
	return names
}

// streamTable parses a CSV file with a header row and sends one row per
// record, values in t.columns order. It stops at the first bad record.
func streamTable(r io.Reader, t table, out chan<- []any) error {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: read header: %w", t.file, err)
	}

	// position of each column in the file, -1 when absent
	pos := make([]int, len(t.columns))
	for i, c := range t.columns {
		pos[i] = -1
		for j, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), c.name) {
				pos[i] = j
				break
			}
		}
		if pos[i] < 0 && c.required {
			return fmt.Errorf("%s: missing column %q", t.file, c.name)
		}
	}

	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("%s:%d: %w", t.file, line, err)
		}

		row := make([]any, len(t.columns))
		for i, c := range t.columns {
			cell := ""
			if pos[i] >= 0 && pos[i] < len(rec) {
				cell = strings.TrimSpace(rec[pos[i]])
			}
			v, err := convert(c, cell)
			if err != nil {
				return fmt.Errorf("%s:%d: column %s: %w", t.file, line, c.name, err)
			}
			row[i] = v
		}
		out <- row
	}
}

func convert(c column, cell string) (any, error) {
	if cell == "" && c.required {
		return nil, errors.New("value is required")
	}

	switch c.kind {
	case kindText:
		return cell, nil
	case kindID:
		return id.Parse(cell)
	case kindNewID:
		if cell == "" {
			return id.New(), nil
		}
		return id.Parse(cell)
	case kindOptionalID:
		if cell == "" {
			return nil, nil
		}
		return id.Parse(cell)
	case kindDecimal:
		if cell == "" {
			return decimal.Zero, nil
		}
		return types.ParseQuantity(cell)
	case kindOptionalDecimal:
		if cell == "" {
			return nil, nil
		}
		return types.ParseQuantity(cell)
	case kindBool:
		if cell == "" {
			return c.def, nil
		}
		return strconv.ParseBool(cell)
	case kindInt:
		return strconv.Atoi(cell)
	case kindDate:
		return types.ParseDate(cell, time.UTC)
	case kindTimestamp:
		return time.Parse(time.RFC3339, cell)
	case kindDirection:
		d := entity.Direction(strings.ToUpper(cell))
		if !d.Valid() {
			return nil, fmt.Errorf("unknown direction %q", cell)
		}
		return string(d), nil
	case kindFiscalKind:
		k := entity.FiscalKind(strings.ToLower(cell))
		if k != entity.FiscalPurchase && k != entity.FiscalSale {
			return nil, fmt.Errorf("unknown document kind %q", cell)
		}
		return string(k), nil
	default:
		return nil, fmt.Errorf("unsupported column kind %d", c.kind)
	}
}

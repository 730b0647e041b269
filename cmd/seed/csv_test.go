package main

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableByFile(t *testing.T, file string) table {
	t.Helper()
	for _, tb := range tables {
		if tb.file == file {
			return tb
		}
	}
	t.Fatalf("no table for %s", file)
	return table{}
}

func collect(t *testing.T, data string, tb table) ([][]any, error) {
	t.Helper()
	out := make(chan []any, 16)
	err := streamTable(strings.NewReader(data), tb, out)
	close(out)
	var rows [][]any
	for r := range out {
		rows = append(rows, r)
	}
	return rows, err
}

func TestStreamTable_Products(t *testing.T) {
	tb := tableByFile(t, "products.csv")
	data := "Name, CODE ,current_unit_cost\n" +
		"Bolt M8,B-8,0.25\n" +
		"Nut M8,N-8,\n"

	rows, err := collect(t, data, tb)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	names := tb.columnNames()
	col := func(row []any, name string) any {
		for i, n := range names {
			if n == name {
				return row[i]
			}
		}
		t.Fatalf("no column %s", name)
		return nil
	}

	first := rows[0]
	generated, ok := col(first, "id").(uuid.UUID)
	require.True(t, ok)
	assert.NotEqual(t, uuid.Nil, generated)
	assert.Equal(t, "B-8", col(first, "code"))
	assert.Equal(t, "Bolt M8", col(first, "name"))
	assert.True(t, decimal.RequireFromString("0.25").Equal(col(first, "current_unit_cost").(decimal.Decimal)))
	assert.Equal(t, true, col(first, "active"))
	assert.Equal(t, false, col(first, "lot_controlled"))

	assert.True(t, col(rows[1], "current_unit_cost").(decimal.Decimal).IsZero())
	assert.NotEqual(t, generated, col(rows[1], "id"))
}

func TestStreamTable_EmptyFile(t *testing.T) {
	rows, err := collect(t, "", tableByFile(t, "products.csv"))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStreamTable_MissingRequiredColumn(t *testing.T) {
	_, err := collect(t, "code\nB-8\n", tableByFile(t, "products.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing column "name"`)
}

func TestStreamTable_BadRecords(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
		want string
	}{
		{
			name: "unknown direction",
			file: "movement_types.csv",
			data: "code,direction\nGRN,SIDEWAYS\n",
			want: "unknown direction",
		},
		{
			name: "blank required value",
			file: "seed_balances.csv",
			data: "product_id,seed_date,quantity\n" + uuid.NewString() + ",2025-01-01,\n",
			want: "value is required",
		},
		{
			name: "bad date",
			file: "seed_balances.csv",
			data: "product_id,seed_date,quantity\n" + uuid.NewString() + ",01/01/2025,5\n",
			want: "seed_balances.csv:2",
		},
		{
			name: "unknown fiscal kind",
			file: "fiscal_documents.csv",
			data: "id,number,kind,issued_at\n" + uuid.NewString() + ",INV-1,refund,2025-01-10T10:00:00Z\n",
			want: "unknown document kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := collect(t, tt.data, tableByFile(t, tt.file))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStreamTable_FiscalLines(t *testing.T) {
	doc := uuid.New()
	product := uuid.New()
	data := "document_id,line_no,product_id,quantity,unit_price,total\n" +
		doc.String() + ",1," + product.String() + ",10,2.5,25\n" +
		doc.String() + ",2,,,,\n"

	rows, err := collect(t, data, tableByFile(t, "fiscal_lines.csv"))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, doc, rows[0][0])
	assert.Equal(t, 1, rows[0][1])
	assert.Equal(t, product, rows[0][2])

	// unparsed line: NULL product and amounts
	assert.Nil(t, rows[1][2])
	assert.Nil(t, rows[1][3])
	assert.Nil(t, rows[1][5])
}

func TestConvert(t *testing.T) {
	v, err := convert(column{name: "d", kind: kindDirection}, "out")
	require.NoError(t, err)
	assert.Equal(t, "OUT", v)

	v, err = convert(column{name: "k", kind: kindFiscalKind}, "Purchase")
	require.NoError(t, err)
	assert.Equal(t, "purchase", v)

	v, err = convert(column{name: "ts", kind: kindTimestamp}, "2025-01-10T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC), v)

	v, err = convert(column{name: "d", kind: kindDate}, "2025-01-10")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), v)

	_, err = convert(column{name: "id", kind: kindID}, "not-a-uuid")
	assert.Error(t, err)
}

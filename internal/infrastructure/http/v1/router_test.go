package v1_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/reconciliation"
	"stockledger/internal/domain/reconstruct"
	v1 "stockledger/internal/infrastructure/http/v1"
	"stockledger/internal/infrastructure/http/v1/dto"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/pkg/logger"
)

var now = time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)

type api struct {
	t         *testing.T
	router    http.Handler
	store     *memory.Store
	product   id.ID
	warehouse id.ID
}

func newAPI(t *testing.T) *api {
	t.Helper()
	a := &api{t: t, store: memory.NewStore(), product: id.New(), warehouse: id.New()}

	a.store.PutProduct(entity.Product{ID: a.product, Code: "WIDGET", Name: "Widget", Active: true,
		CurrentUnitCost: types.MustDecimal("2")})
	a.store.PutMovementType(entity.MovementType{ID: id.New(), Code: "RECEIPT", Direction: entity.DirectionIn, AffectsCost: true})
	a.store.PutMovementType(entity.MovementType{ID: id.New(), Code: "ISSUE", Direction: entity.DirectionOut})
	a.store.PutMovementType(entity.MovementType{ID: id.New(), Code: "COUNT", Direction: entity.DirectionIn})

	clock := func() time.Time { return now }
	balances := balance.NewStore(a.store.Balances(), a.store.Movements(), a.store, balance.Options{Now: clock})
	rec := reconstruct.NewService(a.store.Movements(), a.store.Balances(), a.store.Catalog(), a.store,
		reconstruct.Options{Now: clock})

	a.router = v1.NewRouter(v1.RouterConfig{
		Logger:         logger.NewNop(),
		Location:       time.UTC,
		DB:             a.store,
		AppName:        "stockledger",
		Version:        "test",
		Ledger:         ledger.NewService(a.store.Movements(), a.store.Catalog(), balances, a.store, 3),
		Balances:       balances,
		Reconstruct:    rec,
		Reconciliation: reconciliation.NewService(a.store.Movements(), a.store.Fiscal(), a.store.Catalog(), rec, a.store, reconciliation.Options{Now: clock}),
	})
	return a
}

func (a *api) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func day(s string) time.Time {
	d, err := types.ParseDate(s, time.UTC)
	if err != nil {
		panic(err)
	}
	return d
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (a *api) move(typeCode, on, qty string, cost string, reset bool) dto.MovementResponse {
	a.t.Helper()
	wh := a.warehouse.String()
	req := dto.AppendMovementRequest{
		OccurredAt: day(on).Add(14 * time.Hour),
		TypeCode:   typeCode,
		ProductID:  a.product.String(),
		Quantity:   qty,
		IsReset:    reset,
	}
	if typeCode == "ISSUE" {
		req.OriginID = &wh
	} else {
		req.DestinationID = &wh
	}
	if cost != "" {
		req.UnitCost = &cost
	}
	w := a.do(http.MethodPost, "/api/v1/movements", req)
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[dto.MovementResponse](a.t, w)
}

func TestHealth(t *testing.T) {
	a := newAPI(t)

	w := a.do(http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestMovements_AppendAndStock(t *testing.T) {
	a := newAPI(t)

	reset := a.move("COUNT", "2025-01-10", "100", "4", true)
	assert.True(t, reset.IsReset)
	require.NotNil(t, reset.BookQuantity)
	assert.Equal(t, "0", *reset.BookQuantity)

	a.move("RECEIPT", "2025-01-20", "20", "5", false)
	a.move("ISSUE", "2025-01-22", "30", "", false)

	w := a.do(http.MethodGet, "/api/v1/balances?product_id="+a.product.String(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	balances := decode[dto.ListResponse[dto.BalanceResponse]](t, w)
	require.Len(t, balances.Items, 1)
	assert.Equal(t, "90", balances.Items[0].Quantity)
	assert.Equal(t, "4.166667", balances.Items[0].AvgCost)

	w = a.do(http.MethodGet, "/api/v1/stock-at?product_id="+a.product.String()+"&date=2025-01-21", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	at := decode[dto.StockAtResponse](t, w)
	assert.Equal(t, "120", at.Quantity)
	assert.Equal(t, "anchor", at.Basis)
	assert.Equal(t, "2025-01-21", at.Date)

	w = a.do(http.MethodGet, "/api/v1/movements?product_id="+a.product.String()+"&from=2025-01-20&to=2025-01-22", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	list := decode[dto.ListResponse[dto.MovementResponse]](t, w)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "IN", list.Items[0].Direction)
	assert.Equal(t, "OUT", list.Items[1].Direction)
}

func TestMovements_IdempotencyHeader(t *testing.T) {
	a := newAPI(t)
	wh := a.warehouse.String()
	req := dto.AppendMovementRequest{
		OccurredAt:    now.Add(-time.Hour),
		TypeCode:      "RECEIPT",
		ProductID:     a.product.String(),
		DestinationID: &wh,
		Quantity:      "5",
	}

	first := a.do(http.MethodPost, "/api/v1/movements", req, "X-Idempotency-Key", "grn-42")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := a.do(http.MethodPost, "/api/v1/movements", req, "X-Idempotency-Key", "grn-42")
	require.Equal(t, http.StatusCreated, second.Code, second.Body.String())

	m1 := decode[dto.MovementResponse](t, first)
	m2 := decode[dto.MovementResponse](t, second)
	assert.Equal(t, m1.ID, m2.ID)
	require.NotNil(t, m1.IdempotencyKey)
	assert.Equal(t, "grn-42", *m1.IdempotencyKey)

	w := a.do(http.MethodGet, "/api/v1/balances?product_id="+a.product.String(), nil)
	balances := decode[dto.ListResponse[dto.BalanceResponse]](t, w)
	require.Len(t, balances.Items, 1)
	assert.Equal(t, "5", balances.Items[0].Quantity)
}

func TestMovements_Compensate(t *testing.T) {
	a := newAPI(t)
	a.move("RECEIPT", "2025-01-20", "20", "5", false)
	issue := a.move("ISSUE", "2025-01-22", "8", "", false)

	w := a.do(http.MethodPost, "/api/v1/movements/"+issue.ID+"/compensate", map[string]string{"reason": "wrong product"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	comp := decode[dto.MovementResponse](t, w)
	assert.Equal(t, "IN", comp.Direction)
	require.NotNil(t, comp.CompensatesID)
	assert.Equal(t, issue.ID, *comp.CompensatesID)

	// no body at all
	w = a.do(http.MethodPost, "/api/v1/movements/"+issue.ID+"/compensate", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperror.CodeAlreadyCompensated, decode[dto.ErrorResponse](t, w).Code)

	w = a.do(http.MethodGet, "/api/v1/movements/"+comp.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, comp.ID, decode[dto.MovementResponse](t, w).ID)
}

func TestErrors(t *testing.T) {
	a := newAPI(t)
	pid := a.product.String()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"missing product", http.MethodGet, "/api/v1/balances", nil, http.StatusBadRequest, apperror.CodeValidation},
		{"bad uuid", http.MethodGet, "/api/v1/balances?product_id=nope", nil, http.StatusBadRequest, apperror.CodeValidation},
		{"bad date", http.MethodGet, "/api/v1/stock-at?product_id=" + pid + "&date=21/01/2025", nil, http.StatusBadRequest, apperror.CodeValidation},
		{"future date", http.MethodGet, "/api/v1/stock-at?product_id=" + pid + "&date=2025-03-01", nil, http.StatusBadRequest, apperror.CodeInvalidDateRange},
		{"unknown product", http.MethodGet, "/api/v1/stock-at?product_id=" + id.New().String() + "&date=2025-01-01", nil, http.StatusNotFound, apperror.CodeUnknownProduct},
		{"inverted period", http.MethodGet, "/api/v1/reconciliation?start=2025-02-01&end=2025-01-01", nil, http.StatusBadRequest, apperror.CodeInvalidDateRange},
		{"period ends in the future", http.MethodGet, "/api/v1/reconciliation?start=2025-02-01&end=2025-03-01", nil, http.StatusBadRequest, apperror.CodeInvalidDateRange},
		{"bad stream", http.MethodGet, "/api/v1/reconciliation/detail?product_id=" + pid + "&start=2025-01-01&end=2025-01-31&stream=x&direction=IN", nil, http.StatusBadRequest, apperror.CodeValidation},
		{"bad quantity", http.MethodPost, "/api/v1/movements", map[string]any{
			"occurredAt": now.Add(-time.Hour), "typeCode": "RECEIPT", "productId": pid, "quantity": "ten",
		}, http.StatusBadRequest, apperror.CodeValidation},
		{"unknown movement", http.MethodGet, "/api/v1/movements/" + id.New().String(), nil, http.StatusNotFound, apperror.CodeNotFound},
		{"long idempotency key", http.MethodPost, "/api/v1/movements", map[string]any{}, http.StatusBadRequest, apperror.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers []string
			if tt.name == "long idempotency key" {
				headers = []string{"X-Idempotency-Key", string(bytes.Repeat([]byte("k"), 200))}
			}
			w := a.do(tt.method, tt.path, tt.body, headers...)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[dto.ErrorResponse](t, w).Code)
		})
	}
}

func TestReconciliation(t *testing.T) {
	a := newAPI(t)
	a.move("COUNT", "2024-12-15", "1000", "2", true)
	a.move("RECEIPT", "2025-01-06", "480", "3", false)
	a.move("ISSUE", "2025-01-21", "300", "", false)

	doc := entity.FiscalDocument{ID: id.New(), Number: "NF-100", Kind: entity.FiscalPurchase,
		IssuedAt: time.Date(2025, 1, 5, 11, 0, 0, 0, time.UTC)}
	a.store.PutFiscalDocument(doc, entity.FiscalLine{LineNo: 1, ProductID: id.Some(a.product),
		Quantity: types.NullOf(types.MustDecimal("500")), UnitPrice: types.NullOf(types.MustDecimal("3"))})
	sale := entity.FiscalDocument{ID: id.New(), Number: "NF-200", Kind: entity.FiscalSale,
		IssuedAt: time.Date(2025, 1, 20, 11, 0, 0, 0, time.UTC)}
	a.store.PutFiscalDocument(sale, entity.FiscalLine{LineNo: 1, ProductID: id.Some(a.product),
		Quantity: types.NullOf(types.MustDecimal("300")), UnitPrice: types.NullOf(types.MustDecimal("4"))})

	period := "start=2025-01-01&end=2025-01-31"

	w := a.do(http.MethodGet, "/api/v1/reconciliation?"+period, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode[dto.ReconciliationResponse](t, w)
	assert.Equal(t, "2025-01-01", report.Start)
	require.Len(t, report.Items, 1)
	assert.Equal(t, "1000", report.Items[0].Opening)
	assert.Equal(t, "1180", report.Items[0].Closing)
	assert.Equal(t, "20", report.Items[0].DivergenceQty)

	w = a.do(http.MethodGet, "/api/v1/reconciliation/detail?"+period+"&product_id="+a.product.String()+"&stream=fiscal&direction=IN", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	detail := decode[dto.ListResponse[dto.SourceRecordResponse]](t, w)
	require.Len(t, detail.Items, 1)
	assert.Equal(t, "NF-100", detail.Items[0].Reference)

	w = a.do(http.MethodGet, "/api/v1/reconciliation/export?"+period, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zstd", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "reconciliation_2025-01-01_2025-01-31")
	header, items, err := reconciliation.ReadExport(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 1, header.Products)
	require.Len(t, items, 1)
	assert.True(t, types.MustDecimal("20").Equal(items[0].DivergenceQty))
}

func TestAdminBalances(t *testing.T) {
	a := newAPI(t)
	a.move("RECEIPT", "2025-01-06", "10", "3", false)

	w := a.do(http.MethodGet, "/api/v1/admin/balances/verify?product_id="+a.product.String(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	check := decode[dto.BalanceCheckResponse](t, w)
	assert.Empty(t, check.Drifts)
	assert.False(t, check.Repaired)

	w = a.do(http.MethodPost, "/api/v1/admin/balances/rebuild?product_id="+a.product.String(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, decode[dto.BalanceCheckResponse](t, w).Repaired)
}

//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/reconciliation"
	"stockledger/internal/domain/reconstruct"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/catalog_repo"
	"stockledger/internal/infrastructure/storage/postgres/document_repo"
	"stockledger/internal/infrastructure/storage/postgres/register_repo"
)

func startPostgres(t *testing.T) *postgres.TxManager {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("stockledger_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, postgres.Migrate(ctx, dsn))

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dsn))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return postgres.NewTxManager(pool, 0)
}

var (
	now       = time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)
	clock     = func() time.Time { return now }
	widget    = id.New()
	warehouse = id.New()
	receipt   = id.New()
	issue     = id.New()
	count     = id.New()
)

func loadFixtures(t *testing.T, txm *postgres.TxManager) {
	t.Helper()
	ctx := context.Background()
	copier := postgres.NewBatchInserter(txm)

	purchase, sale := id.New(), id.New()
	issuedAt := func(day int) time.Time { return time.Date(2025, 1, day, 11, 0, 0, 0, time.UTC) }

	err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
		steps := []struct {
			table   string
			columns []string
			rows    [][]any
		}{
			{"products", []string{"id", "code", "name", "current_unit_cost"},
				[][]any{{widget, "WIDGET", "Widget", types.MustDecimal("1")}}},
			{"stock_locations", []string{"id", "code", "name"},
				[][]any{{warehouse, "WH", "Main warehouse"}}},
			{"movement_types", []string{"id", "code", "name", "direction", "affects_cost"}, [][]any{
				{receipt, "RECEIPT", "Receipt", "IN", true},
				{issue, "ISSUE", "Issue", "OUT", false},
				{count, "COUNT", "Physical count", "IN", false},
			}},
			{"fiscal_documents", []string{"id", "number", "kind", "issued_at", "counterparty", "cancelled"}, [][]any{
				{purchase, "NF-100", "purchase", issuedAt(5), "ACME", false},
				{sale, "NF-200", "sale", issuedAt(20), "Buyer", false},
			}},
			{"fiscal_lines", []string{"document_id", "line_no", "product_id", "quantity", "unit_price"}, [][]any{
				{purchase, 1, widget, types.MustDecimal("500"), types.MustDecimal("3")},
				{sale, 1, widget, types.MustDecimal("300"), types.MustDecimal("4")},
				{sale, 2, nil, types.MustDecimal("1"), nil},
			}},
		}
		for _, s := range steps {
			if _, err := copier.CopyFromSlice(ctx, s.table, s.columns, s.rows); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestPostgres_LedgerAndReconciliation(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx := context.Background()
	txm := startPostgres(t)
	loadFixtures(t, txm)

	movements := register_repo.NewMovementRepo(txm)
	balances := register_repo.NewBalanceRepo(txm)
	catalog := catalog_repo.NewCatalogRepo(txm)
	fiscal := document_repo.NewFiscalRepo(txm)

	store := balance.NewStore(balances, movements, txm, balance.Options{Now: clock})
	ledgerSvc := ledger.NewService(movements, catalog, store, txm, 3)
	rec := reconstruct.NewService(movements, balances, catalog, txm, reconstruct.Options{Now: clock})
	recon := reconciliation.NewService(movements, fiscal, catalog, rec, txm, reconciliation.Options{Now: clock})

	at := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 14, 0, 0, 0, time.UTC) }
	record := func(in ledger.AppendInput) *entity.Movement {
		in.ProductID = widget
		if in.TypeID == issue {
			in.OriginID = id.Some(warehouse)
		} else {
			in.DestinationID = id.Some(warehouse)
		}
		m, err := ledgerSvc.Append(ctx, in)
		require.NoError(t, err)
		return m
	}

	first := record(ledger.AppendInput{OccurredAt: at(2024, 12, 15), TypeID: count, IsReset: true,
		Quantity: types.MustDecimal("1000"), UnitCost: types.NullOf(types.MustDecimal("2"))})
	assert.True(t, first.BookQuantity.Valid)

	in := ledger.AppendInput{OccurredAt: at(2025, 1, 6), TypeID: receipt, Quantity: types.MustDecimal("480"),
		UnitCost: types.NullOf(types.MustDecimal("3")), IdempotencyKey: "grn-1"}
	rcv := record(in)
	again := record(in)
	assert.Equal(t, rcv.ID, again.ID)

	out := record(ledger.AppendInput{OccurredAt: at(2025, 1, 21), TypeID: issue, Quantity: types.MustDecimal("300")})

	mistake := record(ledger.AppendInput{OccurredAt: at(2025, 1, 22), TypeID: issue, Quantity: types.MustDecimal("5")})
	_, err := ledgerSvc.Compensate(ctx, mistake.ID, ledger.CompensateInput{Reason: "typo"})
	require.NoError(t, err)
	_, err = ledgerSvc.Compensate(ctx, mistake.ID, ledger.CompensateInput{})
	assert.True(t, apperror.HasCode(err, apperror.CodeAlreadyCompensated), "got %v", err)

	// stock on a past day
	mid, err := rec.QuantityAt(ctx, reconstruct.Query{ProductID: widget, Date: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.True(t, types.MustDecimal("1480").Equal(mid.Quantity), "got %s", mid.Quantity)
	assert.Equal(t, reconstruct.BasisAnchor, mid.Basis)

	report, err := recon.ComparePeriod(ctx, reconciliation.Query{
		Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Equal(t, 1, report.UnparsedRecords)

	it := report.Items[0]
	assert.True(t, types.MustDecimal("1000").Equal(it.Opening), "opening %s", it.Opening)
	assert.True(t, types.MustDecimal("1180").Equal(it.Closing), "closing %s", it.Closing)
	assert.True(t, types.MustDecimal("20").Equal(it.DivergenceQty), "divergence %s", it.DivergenceQty)

	detail, err := recon.Detail(ctx, reconciliation.DetailQuery{
		ProductID: widget, Stream: reconciliation.StreamPhysical, Direction: entity.DirectionOut,
		Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, detail, 2)
	assert.Equal(t, id.Some(out.ID), detail[0].MovementID)

	drifts, err := store.Verify(ctx, widget)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

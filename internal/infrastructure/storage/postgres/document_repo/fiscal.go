// Package document_repo reads fiscal documents (purchase and sale invoices).
package document_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/reconciliation"
	"stockledger/internal/infrastructure/storage/postgres"
)

var entryColumns = []string{
	"l.document_id", "l.line_no", "l.product_id", "l.quantity", "l.unit_price", "l.total",
	"d.number", "d.kind", "d.issued_at", "d.counterparty",
}

// FiscalRepo implements reconciliation.FiscalReader.
type FiscalRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ reconciliation.FiscalReader = (*FiscalRepo)(nil)

// NewFiscalRepo creates a fiscal document repository.
func NewFiscalRepo(txm *postgres.TxManager) *FiscalRepo {
	return &FiscalRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// issued selects the non-cancelled lines issued in [from, to).
func (r *FiscalRepo) issued(columns []string, from, to time.Time) squirrel.SelectBuilder {
	return r.builder.Select(columns...).
		From("fiscal_lines l").
		Join("fiscal_documents d ON d.id = l.document_id").
		Where(squirrel.Eq{"d.cancelled": false}).
		Where(squirrel.GtOrEq{"d.issued_at": from}).
		Where(squirrel.Lt{"d.issued_at": to})
}

func attributed() squirrel.Sqlizer {
	return squirrel.And{
		squirrel.NotEq{"l.product_id": nil},
		squirrel.Expr("l.product_id <> ?", id.Nil()),
	}
}

func (r *FiscalRepo) ProductsWithLines(ctx context.Context, from, to time.Time) ([]id.ID, error) {
	sql, args, err := r.issued([]string{"l.product_id"}, from, to).
		Distinct().
		Where(attributed()).
		OrderBy("l.product_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var ids []id.ID
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &ids, sql, args...); err != nil {
		return nil, fmt.Errorf("select products with fiscal lines: %w", err)
	}
	return ids, nil
}

func (r *FiscalRepo) LinesInRange(ctx context.Context, productIDs []id.ID, from, to time.Time) ([]entity.FiscalEntry, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	sql, args, err := r.issued(entryColumns, from, to).
		Where(squirrel.Eq{"l.product_id": productIDs}).
		OrderBy("d.issued_at", "d.number", "l.line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entries []entity.FiscalEntry
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("select fiscal lines: %w", err)
	}
	return entries, nil
}

func (r *FiscalRepo) CountUnattributedLines(ctx context.Context, from, to time.Time) (int, error) {
	sql, args, err := r.issued([]string{"COUNT(*)"}, from, to).
		Where(squirrel.Or{
			squirrel.Eq{"l.product_id": nil},
			squirrel.Expr("l.product_id = ?", id.Nil()),
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var n int
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unattributed lines: %w", err)
	}
	return n, nil
}

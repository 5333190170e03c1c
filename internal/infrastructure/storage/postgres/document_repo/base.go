// Package document_repo provides PostgreSQL implementations of the workflow
// document repositories: orders, shipments, receipts and returns.
package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"storeflow/internal/core/apperror"
	"storeflow/internal/core/id"
	"storeflow/internal/infrastructure/storage/postgres"
)

// immutable columns are written on insert only; version is managed by Update.
var immutableCols = map[string]struct{}{
	"id":         {},
	"number":     {},
	"created_at": {},
	"created_by": {},
	"version":    {},
}

// BaseDocumentRepo provides header CRUD for a document table. R is the row
// struct whose db tags name the table's columns.
type BaseDocumentRepo[R any] struct {
	txm        *postgres.TxManager
	entity     string
	tableName  string
	selectCols []string
}

// NewBaseDocumentRepo creates a new base document repository.
func NewBaseDocumentRepo[R any](txm *postgres.TxManager, entity, tableName string) *BaseDocumentRepo[R] {
	return &BaseDocumentRepo[R]{
		txm:        txm,
		entity:     entity,
		tableName:  tableName,
		selectCols: postgres.Columns[R](),
	}
}

// Builder returns a new squirrel builder.
func (r *BaseDocumentRepo[R]) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *BaseDocumentRepo[R]) querier(ctx context.Context) postgres.Querier {
	return r.txm.GetQuerier(ctx)
}

// Insert writes a new header row.
func (r *BaseDocumentRepo[R]) Insert(ctx context.Context, row *R) error {
	data := postgres.ColumnMap(row)
	if len(data) == 0 {
		return fmt.Errorf("no db tags found in %T", row)
	}

	sql, args, err := r.Builder().Insert(r.tableName).SetMap(data).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		if constraint, ok := postgres.UniqueViolation(err); ok {
			return apperror.NewDuplicate(r.entity, constraint, fmt.Sprint(data["number"]))
		}
		return fmt.Errorf("insert %s: %w", r.tableName, err)
	}
	return nil
}

// Update writes the mutable columns of row if its version still matches, and
// returns the new version.
func (r *BaseDocumentRepo[R]) Update(ctx context.Context, row *R) (int, error) {
	data := postgres.ColumnMap(row)
	docID, ok := data["id"].(id.ID)
	if !ok {
		return 0, fmt.Errorf("%T has no id column", row)
	}
	version, ok := data["version"].(int)
	if !ok {
		return 0, fmt.Errorf("%T has no int version column", row)
	}

	set := make(map[string]any, len(data))
	for col, val := range data {
		if _, skip := immutableCols[col]; !skip {
			set[col] = val
		}
	}

	sql, args, err := r.Builder().
		Update(r.tableName).
		SetMap(set).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": docID}).
		Where(squirrel.Eq{"version": version}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", r.tableName, err)
	}
	if result.RowsAffected() == 0 {
		// either gone or changed since it was read
		if _, err := r.Get(ctx, docID, false); err != nil {
			return 0, err
		}
		return 0, apperror.NewConcurrentModification(r.entity, docID)
	}
	return version + 1, nil
}

// Select starts a SELECT of all header columns.
func (r *BaseDocumentRepo[R]) Select() squirrel.SelectBuilder {
	return r.Builder().Select(r.selectCols...).From(r.tableName)
}

// Get loads one header row, optionally locking it until the transaction ends.
func (r *BaseDocumentRepo[R]) Get(ctx context.Context, docID id.ID, forUpdate bool) (*R, error) {
	q := r.Select().Where(squirrel.Eq{"id": docID})
	if forUpdate {
		if r.txm.GetTx(ctx) == nil {
			return nil, fmt.Errorf("get %s for update: no active transaction", r.entity)
		}
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	row := new(R)
	if err := pgxscan.Get(ctx, r.querier(ctx), row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(r.entity, docID)
		}
		return nil, fmt.Errorf("get %s: %w", r.entity, err)
	}
	return row, nil
}

// List runs q (built from Select) with a total count and one page, newest first.
func (r *BaseDocumentRepo[R]) List(ctx context.Context, q squirrel.SelectBuilder, limit, offset int) ([]R, int64, error) {
	querier := r.querier(ctx)

	countSQL, countArgs, err := r.Builder().Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int64
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", r.tableName, err)
	}

	q = q.OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query: %w", err)
	}

	var rows []R
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", r.tableName, err)
	}
	return rows, total, nil
}

// SelectLines loads line rows of parentCol IN parents ordered by line_no.
func SelectLines[L any](ctx context.Context, q postgres.Querier, table, parentCol string, parents []id.ID) ([]L, error) {
	if len(parents) == 0 {
		return nil, nil
	}
	sql, args, err := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select(postgres.Columns[L]()...).
		From(table).
		Where(squirrel.Eq{parentCol: parents}).
		OrderBy(parentCol, "line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lines query: %w", err)
	}

	var lines []L
	if err := pgxscan.Select(ctx, q, &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return lines, nil
}

// InsertRows writes rows into table with one multi-row INSERT.
func InsertRows[L any](ctx context.Context, q postgres.Querier, table string, rows []L) error {
	if len(rows) == 0 {
		return nil
	}
	cols := postgres.Columns[L]()
	ins := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).Insert(table).Columns(cols...)
	for i := range rows {
		ins = ins.Values(postgres.ColumnValues(&rows[i])...)
	}

	sql, args, err := ins.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := q.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

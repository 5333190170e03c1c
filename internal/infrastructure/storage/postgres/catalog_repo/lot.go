// Package catalog_repo provides the PostgreSQL lot catalog.
package catalog_repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"storeflow/internal/core/apperror"
	"storeflow/internal/core/id"
	"storeflow/internal/domain/lots"
	"storeflow/internal/infrastructure/storage/postgres"
)

const lotsTable = "cat_lots"

type lotRow struct {
	ID        id.ID      `db:"id"`
	ItemID    id.ID      `db:"item_id"`
	LotCode   string     `db:"lot_code"`
	MfgDate   time.Time  `db:"mfg_date"`
	ExpDate   *time.Time `db:"exp_date"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
}

func (r lotRow) toDomain() lots.Lot {
	return lots.Lot(r)
}

// LotRepo implements lots.Repository.
type LotRepo struct {
	txm        *postgres.TxManager
	builder    squirrel.StatementBuilderType
	selectCols []string
}

var _ lots.Repository = (*LotRepo)(nil)

// NewLotRepo creates a new lot repository.
func NewLotRepo(txm *postgres.TxManager) *LotRepo {
	return &LotRepo{
		txm:        txm,
		builder:    squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		selectCols: postgres.Columns[lotRow](),
	}
}

func (r *LotRepo) mapWriteErr(err error, lot *lots.Lot) error {
	if _, ok := postgres.UniqueViolation(err); ok {
		return apperror.NewDuplicate("lot", "lot_code", lot.LotCode)
	}
	return err
}

// Create implements lots.Repository.
func (r *LotRepo) Create(ctx context.Context, lot *lots.Lot) error {
	row := lotRow(*lot)
	sql, args, err := r.builder.Insert(lotsTable).SetMap(postgres.ColumnMap(&row)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return r.mapWriteErr(fmt.Errorf("insert lot: %w", err), lot)
	}
	return nil
}

// Update implements lots.Repository.
func (r *LotRepo) Update(ctx context.Context, lot *lots.Lot) error {
	sql, args, err := r.builder.Update(lotsTable).
		Set("item_id", lot.ItemID).
		Set("lot_code", lot.LotCode).
		Set("mfg_date", lot.MfgDate).
		Set("exp_date", lot.ExpDate).
		Set("updated_at", lot.UpdatedAt).
		Where(squirrel.Eq{"id": lot.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return r.mapWriteErr(fmt.Errorf("update lot: %w", err), lot)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("lot", lot.ID)
	}
	return nil
}

func (r *LotRepo) getOne(ctx context.Context, where squirrel.Sqlizer, key any) (*lots.Lot, error) {
	sql, args, err := r.builder.Select(r.selectCols...).From(lotsTable).Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row lotRow
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("lot", key)
		}
		return nil, fmt.Errorf("get lot: %w", err)
	}
	l := row.toDomain()
	return &l, nil
}

// GetByID implements lots.Repository.
func (r *LotRepo) GetByID(ctx context.Context, lotID id.ID) (*lots.Lot, error) {
	return r.getOne(ctx, squirrel.Eq{"id": lotID}, lotID)
}

// GetByCode implements lots.Repository.
func (r *LotRepo) GetByCode(ctx context.Context, code string) (*lots.Lot, error) {
	return r.getOne(ctx, squirrel.Eq{"lot_code": code}, code)
}

// GetMany implements lots.Repository.
func (r *LotRepo) GetMany(ctx context.Context, ids []id.ID) (map[id.ID]lots.Lot, error) {
	out := make(map[id.ID]lots.Lot, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	sql, args, err := r.builder.Select(r.selectCols...).From(lotsTable).Where(squirrel.Eq{"id": ids}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []lotRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("get lots: %w", err)
	}
	for _, row := range rows {
		out[row.ID] = row.toDomain()
	}
	return out, nil
}

// List implements lots.Repository. Lots are ordered by expiry date, undated last.
func (r *LotRepo) List(ctx context.Context, f lots.ListFilter) ([]lots.Lot, int64, error) {
	q := r.builder.Select(r.selectCols...).From(lotsTable)
	if f.ItemID != nil {
		q = q.Where(squirrel.Eq{"item_id": *f.ItemID})
	}
	if f.Code != "" {
		q = q.Where(squirrel.Like{"lot_code": escapeLike(f.Code) + "%"})
	}
	if f.ExpiresBefore != nil {
		q = q.Where(squirrel.Lt{"exp_date": *f.ExpiresBefore})
	}

	querier := r.txm.GetQuerier(ctx)

	countSQL, countArgs, err := r.builder.Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int64
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count lots: %w", err)
	}

	q = q.OrderBy("exp_date ASC NULLS LAST", "lot_code")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query: %w", err)
	}

	var rows []lotRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("list lots: %w", err)
	}
	out := make([]lots.Lot, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, total, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

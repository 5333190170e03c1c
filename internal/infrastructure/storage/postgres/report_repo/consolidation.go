// Package report_repo provides the PostgreSQL store of consolidation summaries.
package report_repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"storeflow/internal/core/id"
	"storeflow/internal/core/types"
	"storeflow/internal/domain/consolidation"
	"storeflow/internal/infrastructure/storage/postgres"
)

const summariesTable = "rep_consolidation_summaries"

var summaryCols = []string{
	"id", "batch_id", "consolidation_date", "delivery_date", "item_id", "uom",
	"total_ordered", "stores", "available_inventory", "need_to_produce", "status", "created_by",
}

type summaryRow struct {
	ID                 id.ID                `db:"id"`
	BatchID            id.ID                `db:"batch_id"`
	ConsolidationDate  time.Time            `db:"consolidation_date"`
	DeliveryDate       time.Time            `db:"delivery_date"`
	ItemID             id.ID                `db:"item_id"`
	UOM                string               `db:"uom"`
	TotalOrdered       int64                `db:"total_ordered"`
	Stores             []byte               `db:"stores"`
	AvailableInventory int64                `db:"available_inventory"`
	NeedToProduce      int64                `db:"need_to_produce"`
	Status             consolidation.Status `db:"status"`
	CreatedBy          string               `db:"created_by"`
}

func (r summaryRow) toDomain() (consolidation.Summary, error) {
	var stores []consolidation.StoreDemand
	if len(r.Stores) > 0 {
		if err := json.Unmarshal(r.Stores, &stores); err != nil {
			return consolidation.Summary{}, fmt.Errorf("decode stores of summary %s: %w", r.ID, err)
		}
	}
	return consolidation.Summary{
		ID:                 r.ID,
		BatchID:            r.BatchID,
		ConsolidationDate:  r.ConsolidationDate,
		DeliveryDate:       r.DeliveryDate.UTC(),
		ItemID:             r.ItemID,
		UOM:                r.UOM,
		TotalOrdered:       types.Quantity(r.TotalOrdered),
		Stores:             stores,
		AvailableInventory: types.Quantity(r.AvailableInventory),
		NeedToProduce:      types.Quantity(r.NeedToProduce),
		Status:             r.Status,
		CreatedBy:          r.CreatedBy,
	}, nil
}

// SummaryRepo implements consolidation.Repository.
type SummaryRepo struct {
	txm     *postgres.TxManager
	bulk    *postgres.Bulk
	builder squirrel.StatementBuilderType
}

var _ consolidation.Repository = (*SummaryRepo)(nil)

// NewSummaryRepo creates a new consolidation summary repository.
func NewSummaryRepo(txm *postgres.TxManager) *SummaryRepo {
	return &SummaryRepo{
		txm:     txm,
		bulk:    postgres.NewBulk(txm),
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// InsertSummaries implements consolidation.Repository using COPY.
func (r *SummaryRepo) InsertSummaries(ctx context.Context, summaries []consolidation.Summary) error {
	if len(summaries) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(summaries))
	for _, s := range summaries {
		stores, err := json.Marshal(s.Stores)
		if err != nil {
			return fmt.Errorf("encode stores: %w", err)
		}
		rows = append(rows, []any{
			s.ID, s.BatchID, s.ConsolidationDate, s.DeliveryDate, s.ItemID, s.UOM,
			s.TotalOrdered.Int64Scaled(), stores, s.AvailableInventory.Int64Scaled(),
			s.NeedToProduce.Int64Scaled(), string(s.Status), s.CreatedBy,
		})
	}
	if err := r.bulk.Copy(ctx, summariesTable, summaryCols, rows); err != nil {
		return fmt.Errorf("copy summaries: %w", err)
	}
	return nil
}

// List implements consolidation.Repository.
func (r *SummaryRepo) List(ctx context.Context, f consolidation.ListFilter) ([]consolidation.Summary, int64, error) {
	q := r.builder.Select(summaryCols...).From(summariesTable)
	if f.DeliveryDate != nil {
		q = q.Where(squirrel.Eq{"delivery_date": f.DeliveryDate.UTC().Truncate(24 * time.Hour)})
	}
	if f.ItemID != nil {
		q = q.Where(squirrel.Eq{"item_id": *f.ItemID})
	}
	if f.BatchID != nil {
		q = q.Where(squirrel.Eq{"batch_id": *f.BatchID})
	}

	querier := r.txm.GetQuerier(ctx)

	countSQL, countArgs, err := r.builder.Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int64
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count summaries: %w", err)
	}

	q = q.OrderBy("batch_id DESC", "item_id")
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

	var rows []summaryRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("list summaries: %w", err)
	}
	out := make([]consolidation.Summary, 0, len(rows))
	for _, row := range rows {
		s, err := row.toDomain()
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, nil
}

package document_repo

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"

	"storeflow/internal/core/entity"
	"storeflow/internal/core/id"
	"storeflow/internal/core/types"
	"storeflow/internal/domain/returns"
	"storeflow/internal/infrastructure/storage/postgres"
)

const (
	returnsTable     = "doc_return_requests"
	returnLinesTable = "doc_return_request_lines"
)

type returnRow struct {
	entity.BaseDocument
	StoreID         id.ID          `db:"store_id"`
	DestinationID   *id.ID         `db:"destination_id"`
	ShipmentID      *id.ID         `db:"shipment_id"`
	Status          returns.Status `db:"status"`
	Reason          string         `db:"reason"`
	ApprovedBy      string         `db:"approved_by"`
	ApprovedAt      *time.Time     `db:"approved_at"`
	RejectionReason string         `db:"rejection_reason"`
	ProcessedAt     *time.Time     `db:"processed_at"`
}

type returnLineRow struct {
	ID          id.ID               `db:"id"`
	ReturnID    id.ID               `db:"return_id"`
	LineNo      int                 `db:"line_no"`
	ItemID      id.ID               `db:"item_id"`
	LotID       *id.ID              `db:"lot_id"`
	Quantity    int64               `db:"quantity"`
	UOM         string              `db:"uom"`
	Reason      string              `db:"reason"`
	DefectType  returns.DefectType  `db:"defect_type"`
	Disposition returns.Disposition `db:"disposition"`
}

func toReturnRow(rr *returns.ReturnRequest) *returnRow {
	return &returnRow{
		BaseDocument:    rr.BaseDocument,
		StoreID:         rr.StoreID,
		DestinationID:   rr.DestinationID,
		ShipmentID:      rr.ShipmentID,
		Status:          rr.Status,
		Reason:          rr.Reason,
		ApprovedBy:      rr.ApprovedBy,
		ApprovedAt:      rr.ApprovedAt,
		RejectionReason: rr.RejectionReason,
		ProcessedAt:     rr.ProcessedAt,
	}
}

func (r *returnRow) toDomain() returns.ReturnRequest {
	return returns.ReturnRequest{
		BaseDocument:    r.BaseDocument,
		StoreID:         r.StoreID,
		DestinationID:   r.DestinationID,
		ShipmentID:      r.ShipmentID,
		Status:          r.Status,
		Reason:          r.Reason,
		ApprovedBy:      r.ApprovedBy,
		ApprovedAt:      r.ApprovedAt,
		RejectionReason: r.RejectionReason,
		ProcessedAt:     r.ProcessedAt,
	}
}

// ReturnRepo implements returns.Repository.
type ReturnRepo struct {
	*BaseDocumentRepo[returnRow]
}

var _ returns.Repository = (*ReturnRepo)(nil)

// NewReturnRepo creates a new return request repository.
func NewReturnRepo(txm *postgres.TxManager) *ReturnRepo {
	return &ReturnRepo{BaseDocumentRepo: NewBaseDocumentRepo[returnRow](txm, "return request", returnsTable)}
}

// Create implements returns.Repository.
func (r *ReturnRepo) Create(ctx context.Context, rr *returns.ReturnRequest) error {
	if err := r.Insert(ctx, toReturnRow(rr)); err != nil {
		return err
	}
	lines := make([]returnLineRow, len(rr.Lines))
	for i, l := range rr.Lines {
		lines[i] = returnLineRow{
			ID:          l.ID,
			ReturnID:    rr.ID,
			LineNo:      l.LineNo,
			ItemID:      l.ItemID,
			LotID:       l.LotID,
			Quantity:    l.Quantity.Int64Scaled(),
			UOM:         l.UOM,
			Reason:      l.Reason,
			DefectType:  l.DefectType,
			Disposition: l.Disposition,
		}
	}
	return InsertRows(ctx, r.querier(ctx), returnLinesTable, lines)
}

// Update implements returns.Repository.
func (r *ReturnRepo) Update(ctx context.Context, rr *returns.ReturnRequest) error {
	version, err := r.BaseDocumentRepo.Update(ctx, toReturnRow(rr))
	if err != nil {
		return err
	}
	rr.Version = version
	return nil
}

// GetByID implements returns.Repository.
func (r *ReturnRepo) GetByID(ctx context.Context, returnID id.ID) (*returns.ReturnRequest, error) {
	return r.load(ctx, returnID, false)
}

// GetForUpdate implements returns.Repository.
func (r *ReturnRepo) GetForUpdate(ctx context.Context, returnID id.ID) (*returns.ReturnRequest, error) {
	return r.load(ctx, returnID, true)
}

func (r *ReturnRepo) load(ctx context.Context, returnID id.ID, forUpdate bool) (*returns.ReturnRequest, error) {
	row, err := r.Get(ctx, returnID, forUpdate)
	if err != nil {
		return nil, err
	}
	lines, err := SelectLines[returnLineRow](ctx, r.querier(ctx), returnLinesTable, "return_id", []id.ID{returnID})
	if err != nil {
		return nil, err
	}

	out := row.toDomain()
	for _, l := range lines {
		out.Lines = append(out.Lines, returns.Line{
			ID:          l.ID,
			ReturnID:    l.ReturnID,
			LineNo:      l.LineNo,
			ItemID:      l.ItemID,
			LotID:       l.LotID,
			Quantity:    types.Quantity(l.Quantity),
			UOM:         l.UOM,
			Reason:      l.Reason,
			DefectType:  l.DefectType,
			Disposition: l.Disposition,
		})
	}
	return &out, nil
}

// List implements returns.Repository. Headers only.
func (r *ReturnRepo) List(ctx context.Context, f returns.ListFilter) ([]returns.ReturnRequest, int64, error) {
	q := r.Select()
	if len(f.Statuses) > 0 {
		q = q.Where(squirrel.Eq{"status": f.Statuses})
	}
	if f.StoreID != nil {
		q = q.Where(squirrel.Eq{"store_id": *f.StoreID})
	}

	rows, total, err := r.BaseDocumentRepo.List(ctx, q, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]returns.ReturnRequest, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, total, nil
}

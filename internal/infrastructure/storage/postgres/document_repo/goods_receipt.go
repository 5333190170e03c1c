package document_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"storeflow/internal/core/entity"
	"storeflow/internal/core/id"
	"storeflow/internal/core/types"
	"storeflow/internal/domain/receipts"
	"storeflow/internal/infrastructure/storage/postgres"
)

const (
	goodsReceiptsTable     = "doc_goods_receipts"
	goodsReceiptLinesTable = "doc_goods_receipt_lines"
)

type receiptRow struct {
	entity.BaseDocument
	ShipmentID   id.ID           `db:"shipment_id"`
	ReceivedDate time.Time       `db:"received_date"`
	Status       receipts.Status `db:"status"`
	ReceivedBy   string          `db:"received_by"`
	ConfirmedAt  *time.Time      `db:"confirmed_at"`
	Notes        string          `db:"notes"`
}

type receiptLineRow struct {
	ID              id.ID  `db:"id"`
	ReceiptID       id.ID  `db:"receipt_id"`
	LineNo          int    `db:"line_no"`
	ShipmentLineID  id.ID  `db:"shipment_line_id"`
	ItemID          id.ID  `db:"item_id"`
	QtyReceived     int64  `db:"qty_received"`
	QtyRejected     int64  `db:"qty_rejected"`
	RejectionReason string `db:"rejection_reason"`
}

func toReceiptRow(gr *receipts.GoodsReceipt) *receiptRow {
	return &receiptRow{
		BaseDocument: gr.BaseDocument,
		ShipmentID:   gr.ShipmentID,
		ReceivedDate: gr.ReceivedDate,
		Status:       gr.Status,
		ReceivedBy:   gr.ReceivedBy,
		ConfirmedAt:  gr.ConfirmedAt,
		Notes:        gr.Notes,
	}
}

func (r *receiptRow) toDomain() receipts.GoodsReceipt {
	return receipts.GoodsReceipt{
		BaseDocument: r.BaseDocument,
		ShipmentID:   r.ShipmentID,
		ReceivedDate: r.ReceivedDate,
		Status:       r.Status,
		ReceivedBy:   r.ReceivedBy,
		ConfirmedAt:  r.ConfirmedAt,
		Notes:        r.Notes,
	}
}

// GoodsReceiptRepo implements receipts.Repository.
type GoodsReceiptRepo struct {
	*BaseDocumentRepo[receiptRow]
}

var _ receipts.Repository = (*GoodsReceiptRepo)(nil)

// NewGoodsReceiptRepo creates a new goods receipt repository.
func NewGoodsReceiptRepo(txm *postgres.TxManager) *GoodsReceiptRepo {
	return &GoodsReceiptRepo{
		BaseDocumentRepo: NewBaseDocumentRepo[receiptRow](txm, "goods receipt", goodsReceiptsTable),
	}
}

// Create implements receipts.Repository.
func (r *GoodsReceiptRepo) Create(ctx context.Context, gr *receipts.GoodsReceipt) error {
	if err := r.Insert(ctx, toReceiptRow(gr)); err != nil {
		return err
	}
	lines := make([]receiptLineRow, len(gr.Lines))
	for i, l := range gr.Lines {
		lines[i] = receiptLineRow{
			ID:              l.ID,
			ReceiptID:       gr.ID,
			LineNo:          l.LineNo,
			ShipmentLineID:  l.ShipmentLineID,
			ItemID:          l.ItemID,
			QtyReceived:     l.QtyReceived.Int64Scaled(),
			QtyRejected:     l.QtyRejected.Int64Scaled(),
			RejectionReason: l.RejectionReason,
		}
	}
	return InsertRows(ctx, r.querier(ctx), goodsReceiptLinesTable, lines)
}

// Update implements receipts.Repository.
func (r *GoodsReceiptRepo) Update(ctx context.Context, gr *receipts.GoodsReceipt) error {
	version, err := r.BaseDocumentRepo.Update(ctx, toReceiptRow(gr))
	if err != nil {
		return err
	}
	gr.Version = version
	return nil
}

// GetByID implements receipts.Repository.
func (r *GoodsReceiptRepo) GetByID(ctx context.Context, receiptID id.ID) (*receipts.GoodsReceipt, error) {
	return r.load(ctx, receiptID, false)
}

// GetForUpdate implements receipts.Repository.
func (r *GoodsReceiptRepo) GetForUpdate(ctx context.Context, receiptID id.ID) (*receipts.GoodsReceipt, error) {
	return r.load(ctx, receiptID, true)
}

func (r *GoodsReceiptRepo) load(ctx context.Context, receiptID id.ID, forUpdate bool) (*receipts.GoodsReceipt, error) {
	row, err := r.Get(ctx, receiptID, forUpdate)
	if err != nil {
		return nil, err
	}
	out, err := r.withLines(ctx, []receiptRow{*row})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

func (r *GoodsReceiptRepo) withLines(ctx context.Context, rows []receiptRow) ([]receipts.GoodsReceipt, error) {
	ids := make([]id.ID, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	lines, err := SelectLines[receiptLineRow](ctx, r.querier(ctx), goodsReceiptLinesTable, "receipt_id", ids)
	if err != nil {
		return nil, err
	}
	byReceipt := make(map[id.ID][]receipts.Line, len(rows))
	for _, l := range lines {
		byReceipt[l.ReceiptID] = append(byReceipt[l.ReceiptID], receipts.Line{
			ID:              l.ID,
			ReceiptID:       l.ReceiptID,
			LineNo:          l.LineNo,
			ShipmentLineID:  l.ShipmentLineID,
			ItemID:          l.ItemID,
			QtyReceived:     types.Quantity(l.QtyReceived),
			QtyRejected:     types.Quantity(l.QtyRejected),
			RejectionReason: l.RejectionReason,
		})
	}

	out := make([]receipts.GoodsReceipt, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
		out[i].Lines = byReceipt[rows[i].ID]
	}
	return out, nil
}

// List implements receipts.Repository. Headers only.
func (r *GoodsReceiptRepo) List(ctx context.Context, f receipts.ListFilter) ([]receipts.GoodsReceipt, int64, error) {
	q := r.Select()
	if len(f.Statuses) > 0 {
		q = q.Where(squirrel.Eq{"status": f.Statuses})
	}
	if f.ShipmentID != nil {
		q = q.Where(squirrel.Eq{"shipment_id": *f.ShipmentID})
	}

	rows, total, err := r.BaseDocumentRepo.List(ctx, q, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]receipts.GoodsReceipt, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, total, nil
}

// ListByShipment implements receipts.Repository.
func (r *GoodsReceiptRepo) ListByShipment(ctx context.Context, shipmentID id.ID) ([]receipts.GoodsReceipt, error) {
	sql, args, err := r.Select().
		Where(squirrel.Eq{"shipment_id": shipmentID}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []receiptRow
	if err := pgxscan.Select(ctx, r.querier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list receipts of shipment: %w", err)
	}
	return r.withLines(ctx, rows)
}

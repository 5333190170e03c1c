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
	"storeflow/internal/domain/shipments"
	"storeflow/internal/infrastructure/storage/postgres"
)

const (
	shipmentsTable        = "doc_shipments"
	shipmentLinesTable    = "doc_shipment_lines"
	shipmentLineLotsTable = "doc_shipment_line_lots"
)

type shipmentRow struct {
	entity.BaseDocument
	OrderID        id.ID            `db:"order_id"`
	FromLocationID id.ID            `db:"from_location_id"`
	ToLocationID   id.ID            `db:"to_location_id"`
	ShipDate       time.Time        `db:"ship_date"`
	Status         shipments.Status `db:"status"`
	DispatchedAt   *time.Time       `db:"dispatched_at"`
	Notes          string           `db:"notes"`
}

type shipmentLineRow struct {
	ID          id.ID  `db:"id"`
	ShipmentID  id.ID  `db:"shipment_id"`
	LineNo      int    `db:"line_no"`
	OrderLineID *id.ID `db:"order_line_id"`
	ItemID      id.ID  `db:"item_id"`
	Quantity    int64  `db:"quantity"`
	UOM         string `db:"uom"`
}

type shipmentLotRow struct {
	LineID   id.ID `db:"line_id"`
	Seq      int   `db:"seq"`
	LotID    id.ID `db:"lot_id"`
	Quantity int64 `db:"quantity"`
}

func toShipmentRow(s *shipments.Shipment) *shipmentRow {
	return &shipmentRow{
		BaseDocument:   s.BaseDocument,
		OrderID:        s.OrderID,
		FromLocationID: s.FromLocationID,
		ToLocationID:   s.ToLocationID,
		ShipDate:       s.ShipDate,
		Status:         s.Status,
		DispatchedAt:   s.DispatchedAt,
		Notes:          s.Notes,
	}
}

func (r *shipmentRow) toDomain() shipments.Shipment {
	return shipments.Shipment{
		BaseDocument:   r.BaseDocument,
		OrderID:        r.OrderID,
		FromLocationID: r.FromLocationID,
		ToLocationID:   r.ToLocationID,
		ShipDate:       r.ShipDate,
		Status:         r.Status,
		DispatchedAt:   r.DispatchedAt,
		Notes:          r.Notes,
	}
}

// ShipmentRepo implements shipments.Repository. Lot allocations are child rows of the lines.
type ShipmentRepo struct {
	*BaseDocumentRepo[shipmentRow]
	bulk *postgres.Bulk
}

var _ shipments.Repository = (*ShipmentRepo)(nil)

// NewShipmentRepo creates a new shipment repository.
func NewShipmentRepo(txm *postgres.TxManager) *ShipmentRepo {
	return &ShipmentRepo{
		BaseDocumentRepo: NewBaseDocumentRepo[shipmentRow](txm, "shipment", shipmentsTable),
		bulk:             postgres.NewBulk(txm),
	}
}

// Create implements shipments.Repository.
func (r *ShipmentRepo) Create(ctx context.Context, s *shipments.Shipment) error {
	if err := r.Insert(ctx, toShipmentRow(s)); err != nil {
		return err
	}

	lines := make([]shipmentLineRow, len(s.Lines))
	var lots []postgres.Stmt
	for i, l := range s.Lines {
		lines[i] = shipmentLineRow{
			ID:          l.ID,
			ShipmentID:  s.ID,
			LineNo:      l.LineNo,
			OrderLineID: l.OrderLineID,
			ItemID:      l.ItemID,
			Quantity:    l.Quantity.Int64Scaled(),
			UOM:         l.UOM,
		}
		for seq, a := range l.Lots {
			lots = append(lots, postgres.Stmt{
				SQL:  "INSERT INTO " + shipmentLineLotsTable + " (line_id, seq, lot_id, quantity) VALUES ($1, $2, $3, $4)",
				Args: []any{l.ID, seq, a.LotID, a.Quantity.Int64Scaled()},
			})
		}
	}
	if err := InsertRows(ctx, r.querier(ctx), shipmentLinesTable, lines); err != nil {
		return err
	}
	return r.bulk.Exec(ctx, lots)
}

// Update implements shipments.Repository.
func (r *ShipmentRepo) Update(ctx context.Context, s *shipments.Shipment) error {
	version, err := r.BaseDocumentRepo.Update(ctx, toShipmentRow(s))
	if err != nil {
		return err
	}
	s.Version = version
	return nil
}

// GetByID implements shipments.Repository.
func (r *ShipmentRepo) GetByID(ctx context.Context, shipmentID id.ID) (*shipments.Shipment, error) {
	return r.load(ctx, shipmentID, false)
}

// GetForUpdate implements shipments.Repository.
func (r *ShipmentRepo) GetForUpdate(ctx context.Context, shipmentID id.ID) (*shipments.Shipment, error) {
	return r.load(ctx, shipmentID, true)
}

func (r *ShipmentRepo) load(ctx context.Context, shipmentID id.ID, forUpdate bool) (*shipments.Shipment, error) {
	row, err := r.Get(ctx, shipmentID, forUpdate)
	if err != nil {
		return nil, err
	}
	out, err := r.withLines(ctx, []shipmentRow{*row})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

func (r *ShipmentRepo) withLines(ctx context.Context, rows []shipmentRow) ([]shipments.Shipment, error) {
	q := r.querier(ctx)
	ids := make([]id.ID, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	lineRows, err := SelectLines[shipmentLineRow](ctx, q, shipmentLinesTable, "shipment_id", ids)
	if err != nil {
		return nil, err
	}

	lineIDs := make([]id.ID, len(lineRows))
	for i := range lineRows {
		lineIDs[i] = lineRows[i].ID
	}
	lotsByLine, err := r.selectLots(ctx, lineIDs)
	if err != nil {
		return nil, err
	}

	byShipment := make(map[id.ID][]shipments.Line, len(rows))
	for _, l := range lineRows {
		byShipment[l.ShipmentID] = append(byShipment[l.ShipmentID], shipments.Line{
			ID:          l.ID,
			ShipmentID:  l.ShipmentID,
			LineNo:      l.LineNo,
			OrderLineID: l.OrderLineID,
			ItemID:      l.ItemID,
			Quantity:    types.Quantity(l.Quantity),
			UOM:         l.UOM,
			Lots:        lotsByLine[l.ID],
		})
	}

	out := make([]shipments.Shipment, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
		out[i].Lines = byShipment[rows[i].ID]
	}
	return out, nil
}

func (r *ShipmentRepo) selectLots(ctx context.Context, lineIDs []id.ID) (map[id.ID][]shipments.LotAllocation, error) {
	if len(lineIDs) == 0 {
		return nil, nil
	}
	sql, args, err := r.Builder().
		Select("line_id", "seq", "lot_id", "quantity").
		From(shipmentLineLotsTable).
		Where(squirrel.Eq{"line_id": lineIDs}).
		OrderBy("line_id", "seq").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lots query: %w", err)
	}

	var rows []shipmentLotRow
	if err := pgxscan.Select(ctx, r.querier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select shipment lots: %w", err)
	}
	out := make(map[id.ID][]shipments.LotAllocation)
	for _, l := range rows {
		out[l.LineID] = append(out[l.LineID], shipments.LotAllocation{LotID: l.LotID, Quantity: types.Quantity(l.Quantity)})
	}
	return out, nil
}

// List implements shipments.Repository. Headers only.
func (r *ShipmentRepo) List(ctx context.Context, f shipments.ListFilter) ([]shipments.Shipment, int64, error) {
	q := r.Select()
	if len(f.Statuses) > 0 {
		q = q.Where(squirrel.Eq{"status": f.Statuses})
	}
	if f.OrderID != nil {
		q = q.Where(squirrel.Eq{"order_id": *f.OrderID})
	}
	if f.FromLocationID != nil {
		q = q.Where(squirrel.Eq{"from_location_id": *f.FromLocationID})
	}
	if f.ToLocationID != nil {
		q = q.Where(squirrel.Eq{"to_location_id": *f.ToLocationID})
	}

	rows, total, err := r.BaseDocumentRepo.List(ctx, q, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]shipments.Shipment, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, total, nil
}

// ListByOrder implements shipments.Repository.
func (r *ShipmentRepo) ListByOrder(ctx context.Context, orderID id.ID) ([]shipments.Shipment, error) {
	sql, args, err := r.Select().
		Where(squirrel.Eq{"order_id": orderID}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []shipmentRow
	if err := pgxscan.Select(ctx, r.querier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list shipments of order: %w", err)
	}
	return r.withLines(ctx, rows)
}

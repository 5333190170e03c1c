package document_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"storeflow/internal/core/apperror"
	"storeflow/internal/core/entity"
	"storeflow/internal/core/id"
	"storeflow/internal/core/types"
	"storeflow/internal/domain/orders"
	"storeflow/internal/infrastructure/storage/postgres"
)

const (
	ordersTable     = "doc_internal_orders"
	orderLinesTable = "doc_internal_order_lines"
)

type orderRow struct {
	entity.BaseDocument
	StoreID     id.ID         `db:"store_id"`
	OrderDate   time.Time     `db:"order_date"`
	Status      orders.Status `db:"status"`
	IsUrgent    bool          `db:"is_urgent"`
	Currency    string        `db:"currency"`
	TotalAmount types.Money   `db:"total_amount"`
	Notes       string        `db:"notes"`
}

type orderLineRow struct {
	ID                   id.ID       `db:"id"`
	OrderID              id.ID       `db:"order_id"`
	LineNo               int         `db:"line_no"`
	ItemID               id.ID       `db:"item_id"`
	Quantity             int64       `db:"quantity"`
	UOM                  string      `db:"uom"`
	UnitPrice            types.Money `db:"unit_price"`
	LineTotal            types.Money `db:"line_total"`
	QtyShipped           int64       `db:"qty_shipped"`
	QtyReceived          int64       `db:"qty_received"`
	FulfillmentUpdatedAt time.Time   `db:"fulfillment_updated_at"`
}

func toOrderRow(o *orders.Order) *orderRow {
	return &orderRow{
		BaseDocument: o.BaseDocument,
		StoreID:      o.StoreID,
		OrderDate:    o.OrderDate,
		Status:       o.Status,
		IsUrgent:     o.IsUrgent,
		Currency:     o.Currency,
		TotalAmount:  o.TotalAmount,
		Notes:        o.Notes,
	}
}

func (r *orderRow) toDomain() orders.Order {
	return orders.Order{
		BaseDocument: r.BaseDocument,
		StoreID:      r.StoreID,
		OrderDate:    r.OrderDate,
		Status:       r.Status,
		IsUrgent:     r.IsUrgent,
		Currency:     r.Currency,
		TotalAmount:  r.TotalAmount,
		Notes:        r.Notes,
	}
}

func toOrderLineRow(l *orders.Line) orderLineRow {
	return orderLineRow{
		ID:                   l.ID,
		OrderID:              l.OrderID,
		LineNo:               l.LineNo,
		ItemID:               l.ItemID,
		Quantity:             l.Quantity.Int64Scaled(),
		UOM:                  l.UOM,
		UnitPrice:            l.UnitPrice,
		LineTotal:            l.LineTotal,
		QtyShipped:           l.Fulfillment.QtyShipped.Int64Scaled(),
		QtyReceived:          l.Fulfillment.QtyReceived.Int64Scaled(),
		FulfillmentUpdatedAt: l.Fulfillment.UpdatedAt,
	}
}

func (r orderLineRow) toDomain() orders.Line {
	return orders.Line{
		ID:        r.ID,
		OrderID:   r.OrderID,
		LineNo:    r.LineNo,
		ItemID:    r.ItemID,
		Quantity:  types.Quantity(r.Quantity),
		UOM:       r.UOM,
		UnitPrice: r.UnitPrice,
		LineTotal: r.LineTotal,
		Fulfillment: orders.Fulfillment{
			OrderLineID: r.ID,
			QtyShipped:  types.Quantity(r.QtyShipped),
			QtyReceived: types.Quantity(r.QtyReceived),
			UpdatedAt:   r.FulfillmentUpdatedAt,
		},
	}
}

// OrderRepo implements orders.Repository. Fulfillment counters live on the line rows.
type OrderRepo struct {
	*BaseDocumentRepo[orderRow]
}

var _ orders.Repository = (*OrderRepo)(nil)

// NewOrderRepo creates a new internal order repository.
func NewOrderRepo(txm *postgres.TxManager) *OrderRepo {
	return &OrderRepo{BaseDocumentRepo: NewBaseDocumentRepo[orderRow](txm, "order", ordersTable)}
}

// Create implements orders.Repository.
func (r *OrderRepo) Create(ctx context.Context, o *orders.Order) error {
	if err := r.Insert(ctx, toOrderRow(o)); err != nil {
		return err
	}
	lines := make([]orderLineRow, len(o.Lines))
	for i := range o.Lines {
		lines[i] = toOrderLineRow(&o.Lines[i])
	}
	return InsertRows(ctx, r.querier(ctx), orderLinesTable, lines)
}

// Update implements orders.Repository. Lines are not touched.
func (r *OrderRepo) Update(ctx context.Context, o *orders.Order) error {
	version, err := r.BaseDocumentRepo.Update(ctx, toOrderRow(o))
	if err != nil {
		return err
	}
	o.Version = version
	return nil
}

// InsertLine implements orders.Repository.
func (r *OrderRepo) InsertLine(ctx context.Context, l *orders.Line) error {
	err := InsertRows(ctx, r.querier(ctx), orderLinesTable, []orderLineRow{toOrderLineRow(l)})
	if _, ok := postgres.ForeignKeyViolation(err); ok {
		return apperror.NewNotFound("order", l.OrderID)
	}
	return err
}

// GetByID implements orders.Repository.
func (r *OrderRepo) GetByID(ctx context.Context, orderID id.ID) (*orders.Order, error) {
	return r.load(ctx, orderID, false)
}

// GetForUpdate implements orders.Repository.
func (r *OrderRepo) GetForUpdate(ctx context.Context, orderID id.ID) (*orders.Order, error) {
	return r.load(ctx, orderID, true)
}

func (r *OrderRepo) load(ctx context.Context, orderID id.ID, forUpdate bool) (*orders.Order, error) {
	row, err := r.Get(ctx, orderID, forUpdate)
	if err != nil {
		return nil, err
	}
	out, err := r.withLines(ctx, []orderRow{*row})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

func (r *OrderRepo) withLines(ctx context.Context, rows []orderRow) ([]orders.Order, error) {
	ids := make([]id.ID, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	lines, err := SelectLines[orderLineRow](ctx, r.querier(ctx), orderLinesTable, "order_id", ids)
	if err != nil {
		return nil, err
	}
	byOrder := make(map[id.ID][]orders.Line, len(rows))
	for _, l := range lines {
		byOrder[l.OrderID] = append(byOrder[l.OrderID], l.toDomain())
	}

	out := make([]orders.Order, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
		out[i].Lines = byOrder[rows[i].ID]
	}
	return out, nil
}

// List implements orders.Repository.
func (r *OrderRepo) List(ctx context.Context, f orders.ListFilter) ([]orders.Order, int64, error) {
	q := r.Select()
	if len(f.Statuses) > 0 {
		q = q.Where(squirrel.Eq{"status": f.Statuses})
	}
	if f.StoreID != nil {
		q = q.Where(squirrel.Eq{"store_id": *f.StoreID})
	}
	if f.DateFrom != nil {
		q = q.Where(squirrel.GtOrEq{"order_date": *f.DateFrom})
	}
	if f.DateTo != nil {
		q = q.Where(squirrel.LtOrEq{"order_date": *f.DateTo})
	}

	rows, total, err := r.BaseDocumentRepo.List(ctx, q, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]orders.Order, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, total, nil
}

// FindForConsolidation implements orders.Repository.
func (r *OrderRepo) FindForConsolidation(ctx context.Context, statuses []orders.Status, before time.Time) ([]orders.Order, error) {
	sql, args, err := r.Select().
		Where(squirrel.Eq{"status": statuses}).
		Where(squirrel.Lt{"order_date": before}).
		OrderBy("order_date", "number").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []orderRow
	if err := pgxscan.Select(ctx, r.querier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("find orders for consolidation: %w", err)
	}
	return r.withLines(ctx, rows)
}

// AddFulfillment implements orders.Repository.
func (r *OrderRepo) AddFulfillment(ctx context.Context, lineID id.ID, shipped, received types.Quantity) error {
	return r.setFulfillment(ctx, lineID,
		squirrel.Expr("qty_shipped + ?", shipped.Int64Scaled()),
		squirrel.Expr("qty_received + ?", received.Int64Scaled()))
}

// SetFulfillment implements orders.Repository.
func (r *OrderRepo) SetFulfillment(ctx context.Context, lineID id.ID, shipped, received types.Quantity) error {
	return r.setFulfillment(ctx, lineID, shipped.Int64Scaled(), received.Int64Scaled())
}

func (r *OrderRepo) setFulfillment(ctx context.Context, lineID id.ID, shipped, received any) error {
	sql, args, err := r.Builder().
		Update(orderLinesTable).
		Set("qty_shipped", shipped).
		Set("qty_received", received).
		Set("fulfillment_updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": lineID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update fulfillment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("order line", lineID)
	}
	return nil
}

package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"storeflow/internal/core/apperror"
	"storeflow/internal/core/id"
	"storeflow/internal/core/types"
	"storeflow/internal/domain/orders"
)

// OrderRepo implements orders.Repository.
type OrderRepo struct {
	s *Store
}

var _ orders.Repository = (*OrderRepo)(nil)

// Orders returns the order repository of the store.
func (s *Store) Orders() *OrderRepo { return &OrderRepo{s: s} }

func cloneOrder(o orders.Order) orders.Order {
	o.Lines = slices.Clone(o.Lines)
	return o
}

// Create implements orders.Repository.
func (r *OrderRepo) Create(ctx context.Context, o *orders.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.orders[o.ID]; ok {
		return apperror.NewDuplicate("order", "id", o.ID.String())
	}
	for _, existing := range r.s.orders {
		if existing.Number == o.Number {
			return apperror.NewDuplicate("order", "number", o.Number)
		}
	}
	putWithUndo(ctx, r.s.orders, o.ID, cloneOrder(*o))
	for _, l := range o.Lines {
		putWithUndo(ctx, r.s.lineOrder, l.ID, o.ID)
	}
	return nil
}

// Update implements orders.Repository. Stored lines are kept.
func (r *OrderRepo) Update(ctx context.Context, o *orders.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.orders[o.ID]
	if !ok {
		return apperror.NewNotFound("order", o.ID)
	}
	if stored.Version != o.Version {
		return apperror.NewConcurrentModification("order", o.ID)
	}
	next := cloneOrder(*o)
	next.Lines = stored.Lines
	next.Version++
	putWithUndo(ctx, r.s.orders, o.ID, next)
	o.Version = next.Version
	return nil
}

// InsertLine implements orders.Repository.
func (r *OrderRepo) InsertLine(ctx context.Context, l *orders.Line) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.orders[l.OrderID]
	if !ok {
		return apperror.NewNotFound("order", l.OrderID)
	}
	next := cloneOrder(stored)
	next.Lines = append(next.Lines, *l)
	putWithUndo(ctx, r.s.orders, next.ID, next)
	putWithUndo(ctx, r.s.lineOrder, l.ID, l.OrderID)
	return nil
}

// GetByID implements orders.Repository.
func (r *OrderRepo) GetByID(_ context.Context, orderID id.ID) (*orders.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	o, ok := r.s.orders[orderID]
	if !ok {
		return nil, apperror.NewNotFound("order", orderID)
	}
	out := cloneOrder(o)
	return &out, nil
}

// GetForUpdate implements orders.Repository.
func (r *OrderRepo) GetForUpdate(ctx context.Context, orderID id.ID) (*orders.Order, error) {
	if err := requireTx(ctx, "get order for update"); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, orderID)
}

// List implements orders.Repository.
func (r *OrderRepo) List(_ context.Context, f orders.ListFilter) ([]orders.Order, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []orders.Order
	for _, o := range r.s.orders {
		switch {
		case len(f.Statuses) > 0 && !slices.Contains(f.Statuses, o.Status):
			continue
		case f.StoreID != nil && o.StoreID != *f.StoreID:
			continue
		case f.DateFrom != nil && o.OrderDate.Before(*f.DateFrom):
			continue
		case f.DateTo != nil && o.OrderDate.After(*f.DateTo):
			continue
		}
		o.Lines = nil
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b orders.Order) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), id.Compare(b.ID, a.ID))
	})
	return page(out, f.Offset, f.Limit), int64(len(out)), nil
}

// FindForConsolidation implements orders.Repository.
func (r *OrderRepo) FindForConsolidation(_ context.Context, statuses []orders.Status, before time.Time) ([]orders.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []orders.Order
	for _, o := range r.s.orders {
		if slices.Contains(statuses, o.Status) && o.OrderDate.Before(before) {
			out = append(out, cloneOrder(o))
		}
	}
	slices.SortFunc(out, func(a, b orders.Order) int {
		return cmp.Or(a.OrderDate.Compare(b.OrderDate), cmp.Compare(a.Number, b.Number))
	})
	return out, nil
}

// AddFulfillment implements orders.Repository.
func (r *OrderRepo) AddFulfillment(ctx context.Context, lineID id.ID, shipped, received types.Quantity) error {
	return r.updateFulfillment(ctx, lineID, func(f *orders.Fulfillment) {
		f.QtyShipped += shipped
		f.QtyReceived += received
	})
}

// SetFulfillment implements orders.Repository.
func (r *OrderRepo) SetFulfillment(ctx context.Context, lineID id.ID, shipped, received types.Quantity) error {
	return r.updateFulfillment(ctx, lineID, func(f *orders.Fulfillment) {
		f.QtyShipped = shipped
		f.QtyReceived = received
	})
}

func (r *OrderRepo) updateFulfillment(ctx context.Context, lineID id.ID, fn func(*orders.Fulfillment)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	orderID, ok := r.s.lineOrder[lineID]
	if !ok {
		return apperror.NewNotFound("order line", lineID)
	}
	next := cloneOrder(r.s.orders[orderID])
	for i := range next.Lines {
		if next.Lines[i].ID == lineID {
			fn(&next.Lines[i].Fulfillment)
			next.Lines[i].Fulfillment.UpdatedAt = time.Now().UTC()
		}
	}
	putWithUndo(ctx, r.s.orders, orderID, next)
	return nil
}

package orders

import (
	"context"
	"time"

	"storeflow/internal/core/id"
	"storeflow/internal/core/types"
)

// Repository persists orders, their lines and fulfillment counters.
type Repository interface {
	// Create inserts header, lines and zeroed fulfillment rows.
	Create(ctx context.Context, o *Order) error
	// Update writes the header with optimistic locking on version.
	Update(ctx context.Context, o *Order) error
	// InsertLine adds a line and its fulfillment row to an existing order.
	InsertLine(ctx context.Context, l *Line) error
	// GetByID loads header, lines and fulfillment.
	GetByID(ctx context.Context, orderID id.ID) (*Order, error)
	// GetForUpdate is GetByID with the header row locked until the transaction ends.
	GetForUpdate(ctx context.Context, orderID id.ID) (*Order, error)
	// List returns headers only.
	List(ctx context.Context, filter ListFilter) ([]Order, int64, error)
	// FindForConsolidation returns orders with lines in statuses whose order date is before the cutoff.
	FindForConsolidation(ctx context.Context, statuses []Status, before time.Time) ([]Order, error)
	// AddFulfillment adds signed deltas to a line's counters.
	AddFulfillment(ctx context.Context, lineID id.ID, shipped, received types.Quantity) error
	// SetFulfillment overwrites a line's counters.
	SetFulfillment(ctx context.Context, lineID id.ID, shipped, received types.Quantity) error
}

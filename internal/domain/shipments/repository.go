package shipments

import (
	"context"

	"storeflow/internal/core/id"
)

// Repository persists shipments with their lines and lot allocations.
type Repository interface {
	Create(ctx context.Context, s *Shipment) error
	// Update writes header fields with optimistic locking on version. Lines are immutable.
	Update(ctx context.Context, s *Shipment) error
	GetByID(ctx context.Context, shipmentID id.ID) (*Shipment, error)
	// GetForUpdate locks the header row until the transaction ends.
	GetForUpdate(ctx context.Context, shipmentID id.ID) (*Shipment, error)
	List(ctx context.Context, filter ListFilter) ([]Shipment, int64, error)
	// ListByOrder returns every shipment of an order, lines included.
	ListByOrder(ctx context.Context, orderID id.ID) ([]Shipment, error)
}

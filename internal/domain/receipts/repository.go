package receipts

import (
	"context"

	"storeflow/internal/core/id"
)

// Repository persists goods receipts and their lines.
type Repository interface {
	Create(ctx context.Context, r *GoodsReceipt) error
	// Update writes header fields with optimistic locking on version.
	Update(ctx context.Context, r *GoodsReceipt) error
	GetByID(ctx context.Context, receiptID id.ID) (*GoodsReceipt, error)
	GetForUpdate(ctx context.Context, receiptID id.ID) (*GoodsReceipt, error)
	List(ctx context.Context, filter ListFilter) ([]GoodsReceipt, int64, error)
	// ListByShipment returns every receipt of a shipment, lines included.
	ListByShipment(ctx context.Context, shipmentID id.ID) ([]GoodsReceipt, error)
}

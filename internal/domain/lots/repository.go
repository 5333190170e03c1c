package lots

import (
	"context"

	"storeflow/internal/core/id"
)

// Repository persists lots.
type Repository interface {
	// Create inserts a lot; a taken lot code yields a DuplicateKey error.
	Create(ctx context.Context, lot *Lot) error
	Update(ctx context.Context, lot *Lot) error
	GetByID(ctx context.Context, lotID id.ID) (*Lot, error)
	// GetByCode returns NotFound when no lot has the code.
	GetByCode(ctx context.Context, code string) (*Lot, error)
	// GetMany returns the lots that exist among ids.
	GetMany(ctx context.Context, ids []id.ID) (map[id.ID]Lot, error)
	List(ctx context.Context, filter ListFilter) ([]Lot, int64, error)
}

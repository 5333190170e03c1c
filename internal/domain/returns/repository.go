package returns

import (
	"context"

	"storeflow/internal/core/id"
)

// Repository persists return requests and their lines.
type Repository interface {
	Create(ctx context.Context, r *ReturnRequest) error
	Update(ctx context.Context, r *ReturnRequest) error
	GetByID(ctx context.Context, returnID id.ID) (*ReturnRequest, error)
	GetForUpdate(ctx context.Context, returnID id.ID) (*ReturnRequest, error)
	List(ctx context.Context, filter ListFilter) ([]ReturnRequest, int64, error)
}

package consolidation

import (
	"context"
)

// Repository stores summaries. Rows are never updated.
type Repository interface {
	InsertSummaries(ctx context.Context, summaries []Summary) error
	// List returns summaries newest batch first, items ordered by id within a batch.
	List(ctx context.Context, filter ListFilter) ([]Summary, int64, error)
}

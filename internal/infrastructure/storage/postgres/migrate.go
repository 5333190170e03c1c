package postgres

import (
	"context"
	"fmt"

	"storeflow/migrations"
	"storeflow/pkg/logger"
)

// Migrate applies the embedded schema. Scripts are idempotent (IF NOT EXISTS),
// so running it on every start is safe.
func Migrate(ctx context.Context, pool *Pool) error {
	scripts, err := migrations.Scripts()
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	for i, script := range scripts {
		if _, err := pool.Exec(ctx, script); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
	}
	logger.Info(ctx, "schema migrated", "scripts", len(scripts))
	return nil
}

// Package tx lets domain services group repository calls into one unit of work
// without knowing the storage driver.
package tx

import "context"

// Manager runs fn as one unit of work: every write made through ctx commits
// together or not at all. A call made inside another unit joins it.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Func adapts a function to Manager.
type Func func(ctx context.Context, fn func(ctx context.Context) error) error

// RunInTransaction implements Manager.
func (f Func) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return f(ctx, fn)
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var errNoTx = errors.New("requires transaction context")

// Stmt is one statement of a pipelined batch.
type Stmt struct {
	SQL  string
	Args []any
}

// Bulk performs multi-row writes inside the unit of work carried by ctx.
type Bulk struct {
	txm *TxManager
}

func NewBulk(txm *TxManager) *Bulk { return &Bulk{txm: txm} }

// Copy streams rows into table with COPY. Values in each row follow columns.
func (b *Bulk) Copy(ctx context.Context, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	t := b.txm.GetTx(ctx)
	if t == nil {
		return fmt.Errorf("copy into %s: %w", table, errNoTx)
	}
	n, err := t.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	switch {
	case err != nil:
		return fmt.Errorf("copy into %s: %w", table, err)
	case n != int64(len(rows)):
		return fmt.Errorf("copy into %s: wrote %d of %d rows", table, n, len(rows))
	}
	return nil
}

// Exec pipelines stmts in one round trip and fails on the first error.
func (b *Bulk) Exec(ctx context.Context, stmts []Stmt) error {
	if len(stmts) == 0 {
		return nil
	}
	t := b.txm.GetTx(ctx)
	if t == nil {
		return fmt.Errorf("exec batch: %w", errNoTx)
	}
	var batch pgx.Batch
	for _, s := range stmts {
		batch.Queue(s.SQL, s.Args...)
	}
	res := t.SendBatch(ctx, &batch)
	for i := range stmts {
		if _, err := res.Exec(); err != nil {
			_ = res.Close()
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
	}
	return res.Close()
}

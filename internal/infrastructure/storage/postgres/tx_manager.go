package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"storeflow/internal/core/tx"
	"storeflow/pkg/logger"
)

var tracer = otel.Tracer("storeflow/postgres")

var _ tx.Manager = (*TxManager)(nil)

// DefaultStatementTimeout bounds every statement of a unit of work.
const DefaultStatementTimeout = 30 * time.Second

// Querier is satisfied by both pgx.Tx and the pool, so repos work inside and outside transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxManager runs ledger postings and document writes in one READ COMMITTED
// transaction carried by the context. Nested calls join the outer transaction,
// so a dispatch that posts to the ledger and updates an order commits once.
// Row locks (SELECT ... FOR UPDATE in key order) provide the isolation the
// ledger needs.
type TxManager struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewTxManager creates a transaction manager over pool.
func NewTxManager(pool *Pool) *TxManager {
	return &TxManager{pool: pool.Pool, timeout: DefaultStatementTimeout}
}

// WithStatementTimeout overrides the per-statement timeout. Zero disables it.
func (m *TxManager) WithStatementTimeout(d time.Duration) *TxManager {
	m.timeout = d
	return m
}

type txKey struct{}

// GetTx returns the transaction carried by ctx, or nil.
func (m *TxManager) GetTx(ctx context.Context) pgx.Tx {
	if t, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return t
	}
	return nil
}

// GetQuerier returns the transaction carried by ctx, or the pool.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if t := m.GetTx(ctx); t != nil {
		return t
	}
	return m.pool
}

// RunInTransaction implements tx.Manager. fn's error, or a panic, rolls the
// whole unit back.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if m.GetTx(ctx) != nil {
		return fn(ctx)
	}

	ctx, span := tracer.Start(ctx, "db.transaction")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "rolled back")
		}
		span.End()
	}()

	t, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if m.timeout > 0 {
		ms := strconv.FormatInt(m.timeout.Milliseconds(), 10)
		if _, err := t.Exec(ctx, "SELECT set_config('statement_timeout', $1, true)", ms); err != nil {
			rollback(ctx, t, err)
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	defer func() {
		if p := recover(); p != nil {
			rollback(ctx, t, fmt.Errorf("panic: %v", p))
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		rollback(ctx, t, err)
		return err
	}
	if err := t.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// rollback uses a fresh context so a cancelled request still releases its locks.
func rollback(ctx context.Context, t pgx.Tx, cause error) {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := t.Rollback(rbCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		logger.Error(ctx, "rollback failed", "error", err, "cause", cause)
	}
}

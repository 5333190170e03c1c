package ledger

import (
	"context"
)

// Repository persists balances and transactions.
// Write methods must be called inside tx.Manager.RunInTransaction.
type Repository interface {
	// LockBalance returns the balance of key locked against concurrent writers
	// until the surrounding transaction ends, creating a zero row if absent.
	LockBalance(ctx context.Context, key Key) (*Balance, error)

	// SaveBalance writes on_hand/reserved of a balance obtained from LockBalance.
	SaveBalance(ctx context.Context, b *Balance) error

	// InsertTransactions appends transactions to the log.
	InsertTransactions(ctx context.Context, txns []Transaction) error

	// GetBalance reads a balance without locking. Returns NotFound if the key never moved.
	GetBalance(ctx context.Context, key Key) (*Balance, error)

	// ListBalances reads balances matching the filter.
	ListBalances(ctx context.Context, filter BalanceFilter) ([]Balance, error)

	// QueryTransactions returns one page of transactions, newest first (txn_time DESC, id DESC).
	QueryTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
}

package memory

import (
	"cmp"
	"context"
	"slices"

	"storeflow/internal/core/apperror"
	"storeflow/internal/core/id"
	"storeflow/internal/domain/ledger"
)

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	s *Store
}

var _ ledger.Repository = (*LedgerRepo)(nil)

// Ledger returns the ledger repository of the store.
func (s *Store) Ledger() *LedgerRepo { return &LedgerRepo{s: s} }

// LockBalance returns a copy of the balance, creating a zero row if absent.
// The transaction's writer lock stands in for the row lock.
func (r *LedgerRepo) LockBalance(ctx context.Context, key ledger.Key) (*ledger.Balance, error) {
	if err := requireTx(ctx, "lock balance"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.balances[key]
	if !ok {
		b = ledger.Balance{Key: key}
		putWithUndo(ctx, r.s.balances, key, b)
	}
	return &b, nil
}

// SaveBalance implements ledger.Repository.
func (r *LedgerRepo) SaveBalance(ctx context.Context, b *ledger.Balance) error {
	if err := requireTx(ctx, "save balance"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	putWithUndo(ctx, r.s.balances, b.Key, *b)
	return nil
}

// InsertTransactions implements ledger.Repository.
func (r *LedgerRepo) InsertTransactions(ctx context.Context, txns []ledger.Transaction) error {
	if err := requireTx(ctx, "insert transactions"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := len(r.s.txns)
	r.s.txns = append(r.s.txns, txns...)
	onRollback(ctx, func() { r.s.txns = r.s.txns[:n] })
	return nil
}

// GetBalance implements ledger.Repository.
func (r *LedgerRepo) GetBalance(_ context.Context, key ledger.Key) (*ledger.Balance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.balances[key]
	if !ok {
		return nil, apperror.NewNotFound("balance", key.String())
	}
	return &b, nil
}

// ListBalances implements ledger.Repository.
func (r *LedgerRepo) ListBalances(_ context.Context, f ledger.BalanceFilter) ([]ledger.Balance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []ledger.Balance
	for _, b := range r.s.balances {
		if matchBalance(b, f) {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b ledger.Balance) int { return a.Key.Compare(b.Key) })
	return out, nil
}

func matchBalance(b ledger.Balance, f ledger.BalanceFilter) bool {
	switch {
	case f.LocationID != nil && b.LocationID != *f.LocationID:
		return false
	case f.ItemID != nil && b.ItemID != *f.ItemID:
		return false
	case len(f.ItemIDs) > 0 && !slices.Contains(f.ItemIDs, b.ItemID):
		return false
	case f.LotID != nil && b.LotID != *f.LotID:
		return false
	case f.OnlyLots && !b.HasLot():
		return false
	case f.NonZero && b.OnHand.IsZero():
		return false
	}
	return true
}

// QueryTransactions implements ledger.Repository.
func (r *LedgerRepo) QueryTransactions(_ context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []ledger.Transaction
	for _, t := range r.s.txns {
		if matchTransaction(t, f) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b ledger.Transaction) int {
		return cmp.Or(b.TxnTime.Compare(a.TxnTime), id.Compare(b.ID, a.ID))
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matchTransaction(t ledger.Transaction, f ledger.TransactionFilter) bool {
	switch {
	case f.LocationID != nil && t.LocationID != *f.LocationID:
		return false
	case f.ItemID != nil && t.ItemID != *f.ItemID:
		return false
	case f.LotID != nil && t.LotID != *f.LotID:
		return false
	case len(f.Kinds) > 0 && !slices.Contains(f.Kinds, t.Kind):
		return false
	case f.RefType != "" && t.RefType != f.RefType:
		return false
	case f.RefID != nil && (t.RefID == nil || *t.RefID != *f.RefID):
		return false
	case f.From != nil && t.TxnTime.Before(*f.From):
		return false
	case f.To != nil && !t.TxnTime.Before(*f.To):
		return false
	}
	if f.Before != nil {
		c := t.TxnTime.Compare(*f.Before)
		if c > 0 || (c == 0 && id.Compare(t.ID, f.BeforeID) >= 0) {
			return false
		}
	}
	return true
}

// Package memory is an in-process storage driver. It implements every repository
// of the workflow packages over maps guarded by one lock, with an undo journal so
// a failed transaction leaves no trace. Used for local runs and service tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"storeflow/internal/core/id"
	"storeflow/internal/core/tx"
	"storeflow/internal/domain/consolidation"
	"storeflow/internal/domain/events"
	"storeflow/internal/domain/ledger"
	"storeflow/internal/domain/lots"
	"storeflow/internal/domain/orders"
	"storeflow/internal/domain/receipts"
	"storeflow/internal/domain/returns"
	"storeflow/internal/domain/shipments"
	"storeflow/pkg/logger"
)

// Store holds all state of the memory driver.
//
// mu guards the maps. txMu admits one writing transaction at a time, which is
// the memory equivalent of row locks: reads outside a transaction may observe
// writes of a transaction that later rolls back.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	balances  map[ledger.Key]ledger.Balance
	txns      []ledger.Transaction
	lots      map[id.ID]lots.Lot
	orders    map[id.ID]orders.Order
	lineOrder map[id.ID]id.ID // order line -> order
	shipments map[id.ID]shipments.Shipment
	receipts  map[id.ID]receipts.GoodsReceipt
	returns   map[id.ID]returns.ReturnRequest
	summaries []consolidation.Summary
	idem      map[string]idemRecord

	events *events.Recorder
}

// New creates an empty store.
func New() *Store {
	return &Store{
		balances:  make(map[ledger.Key]ledger.Balance),
		lots:      make(map[id.ID]lots.Lot),
		orders:    make(map[id.ID]orders.Order),
		lineOrder: make(map[id.ID]id.ID),
		shipments: make(map[id.ID]shipments.Shipment),
		receipts:  make(map[id.ID]receipts.GoodsReceipt),
		returns:   make(map[id.ID]returns.ReturnRequest),
		idem:      make(map[string]idemRecord),
		events:    events.NewRecorder(),
	}
}

// Events returns the recorder holding committed events.
func (s *Store) Events() *events.Recorder { return s.events }

type txKey struct{}

type txState struct {
	undo []func()
}

// TxManager implements tx.Manager for the memory store.
type TxManager struct {
	store *Store
}

var _ tx.Manager = (*TxManager)(nil)

// TxManager returns the transaction manager of the store.
func (s *Store) TxManager() *TxManager { return &TxManager{store: s} }

// RunInTransaction runs fn under the store's writer lock. If fn fails or panics,
// every change it made is undone in reverse order. Nested calls join the outer
// transaction.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(ctx)
	}

	m.store.txMu.Lock()
	defer m.store.txMu.Unlock()

	st := &txState{}
	defer func() {
		if p := recover(); p != nil {
			m.store.rollback(st)
			logger.Error(ctx, "panic in transaction, rolled back", "panic", p)
			panic(p)
		}
		if err != nil {
			m.store.rollback(st)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, st))
}

func (s *Store) rollback(st *txState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(st.undo) - 1; i >= 0; i-- {
		st.undo[i]()
	}
	st.undo = nil
}

// onRollback registers undo when ctx carries a transaction. Callers hold mu.
func onRollback(ctx context.Context, undo func()) {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		st.undo = append(st.undo, undo)
	}
}

// putWithUndo stores v under k and registers the restore of the previous value.
func putWithUndo[K comparable, V any](ctx context.Context, m map[K]V, k K, v V) {
	prev, existed := m[k]
	m[k] = v
	onRollback(ctx, func() {
		if existed {
			m[k] = prev
		} else {
			delete(m, k)
		}
	})
}

func requireTx(ctx context.Context, op string) error {
	if _, ok := ctx.Value(txKey{}).(*txState); !ok {
		return fmt.Errorf("%s: no active transaction", op)
	}
	return nil
}

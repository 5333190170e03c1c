package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeflow/internal/core/apperror"
	"storeflow/internal/core/id"
	"storeflow/internal/core/tx"
	"storeflow/internal/core/types"
	"storeflow/internal/domain/ledger"
	"storeflow/internal/infrastructure/storage/memory"
)

func newLedger(t *testing.T) (*ledger.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return ledger.NewService(store.Ledger(), store.TxManager()), store
}

func qty(n int64) types.Quantity { return types.NewQuantity(n) }

func receipt(key ledger.Key, n int64) ledger.Posting {
	return ledger.Posting{Key: key, Quantity: qty(n), UOM: "kg", Kind: ledger.KindReceipt}
}

func issue(key ledger.Key, n int64) ledger.Posting {
	return ledger.Posting{Key: key, Quantity: qty(-n), UOM: "kg", Kind: ledger.KindIssue}
}

func TestPostTransaction_RefusesNegativeBalance(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t)
	key := ledger.NewKey(id.New(), id.New(), nil)

	_, err := svc.PostTransaction(ctx, receipt(key, 5))
	require.NoError(t, err)

	_, err = svc.PostTransaction(ctx, issue(key, 6))
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, "6.0000", appErr.Details["requested"])
	assert.Equal(t, "5.0000", appErr.Details["available"])

	b, err := svc.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, qty(5), b.OnHand)

	txns, err := svc.QueryTransactions(ctx, ledger.TransactionFilter{ItemID: &key.ItemID})
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

func TestPostBatch_BalanceEqualsSumOfTransactions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t)
	loc, item := id.New(), id.New()
	lotA, lotB := id.New(), id.New()
	keyA := ledger.NewKey(loc, item, &lotA)
	keyB := ledger.NewKey(loc, item, &lotB)

	batches := [][]ledger.Posting{
		{receipt(keyA, 10), receipt(keyB, 4)},
		{issue(keyA, 3)},
		{{Key: keyB, Quantity: qty(-1), Kind: ledger.KindAdjustment}},
		{receipt(keyA, 2), issue(keyA, 9)},
	}
	for _, b := range batches {
		_, err := svc.PostBatch(ctx, b)
		require.NoError(t, err)
	}

	for _, key := range []ledger.Key{keyA, keyB} {
		var sum types.Quantity
		for txn, err := range svc.Transactions(ctx, ledger.TransactionFilter{LotID: &key.LotID, Limit: 2}) {
			require.NoError(t, err)
			sum += txn.Quantity
		}
		b, err := svc.GetBalance(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, b.OnHand, sum, key.String())
	}
}

func TestPostBatch_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t)
	loc := id.New()
	k1 := ledger.NewKey(loc, id.New(), nil)
	k2 := ledger.NewKey(loc, id.New(), nil)
	k3 := ledger.NewKey(loc, id.New(), nil)

	_, err := svc.PostBatch(ctx, []ledger.Posting{receipt(k1, 10), receipt(k2, 1), receipt(k3, 10)})
	require.NoError(t, err)

	_, err = svc.PostBatch(ctx, []ledger.Posting{issue(k1, 5), issue(k2, 5), issue(k3, 5)})
	require.True(t, apperror.IsInsufficientStock(err))

	want := map[ledger.Key]types.Quantity{k1: qty(10), k2: qty(1), k3: qty(10)}
	for k, onHand := range want {
		b, err := svc.GetBalance(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, onHand, b.OnHand)
	}
	txns, err := svc.QueryTransactions(ctx, ledger.TransactionFilter{Kinds: []ledger.Kind{ledger.KindIssue}})
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestPostBatch_OneUnitOfWork(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	units := 0
	counting := tx.Func(func(ctx context.Context, fn func(ctx context.Context) error) error {
		units++
		return store.TxManager().RunInTransaction(ctx, fn)
	})
	svc := ledger.NewService(store.Ledger(), counting)
	loc := id.New()

	_, err := svc.PostBatch(ctx, []ledger.Posting{
		receipt(ledger.NewKey(loc, id.New(), nil), 3),
		receipt(ledger.NewKey(loc, id.New(), nil), 4),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, units)
}

func TestPosting_Validate(t *testing.T) {
	key := ledger.NewKey(id.New(), id.New(), nil)
	tests := []struct {
		name string
		p    ledger.Posting
	}{
		{"zero quantity", ledger.Posting{Key: key, Kind: ledger.KindAdjustment}},
		{"negative receipt", ledger.Posting{Key: key, Quantity: qty(-1), Kind: ledger.KindReceipt}},
		{"positive transfer out", ledger.Posting{Key: key, Quantity: qty(1), Kind: ledger.KindTransferOut}},
		{"unknown kind", ledger.Posting{Key: key, Quantity: qty(1), Kind: "GIFT"}},
		{"missing location", ledger.Posting{Key: ledger.Key{ItemID: id.New()}, Quantity: qty(1), Kind: ledger.KindReceipt}},
		{"unknown ref type", ledger.Posting{Key: key, Quantity: qty(1), Kind: ledger.KindReceipt, RefType: "INVOICE"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
		})
	}
}

func TestQueryTransactions_NewestFirstWithCursor(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t)
	key := ledger.NewKey(id.New(), id.New(), nil)
	for i := 1; i <= 5; i++ {
		_, err := svc.PostTransaction(ctx, receipt(key, int64(i)))
		require.NoError(t, err)
	}

	first, err := svc.QueryTransactions(ctx, ledger.TransactionFilter{ItemID: &key.ItemID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, qty(5), first[0].Quantity)
	assert.Equal(t, qty(4), first[1].Quantity)

	last := first[1]
	next, err := svc.QueryTransactions(ctx, ledger.TransactionFilter{
		ItemID: &key.ItemID, Limit: 10, Before: &last.TxnTime, BeforeID: last.ID,
	})
	require.NoError(t, err)
	require.Len(t, next, 3)
	assert.Equal(t, qty(3), next[0].Quantity)

	var seen int
	for txn, err := range svc.Transactions(ctx, ledger.TransactionFilter{ItemID: &key.ItemID, Limit: 2}) {
		require.NoError(t, err)
		seen++
		if txn.Quantity == qty(2) {
			break
		}
	}
	assert.Equal(t, 4, seen)
}

func TestReserveAndRelease(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t)
	key := ledger.NewKey(id.New(), id.New(), nil)
	_, err := svc.PostTransaction(ctx, receipt(key, 10))
	require.NoError(t, err)

	require.NoError(t, svc.Reserve(ctx, key, qty(8)))
	err = svc.Reserve(ctx, key, qty(3))
	assert.True(t, apperror.IsInsufficientStock(err))

	_, err = svc.PostTransaction(ctx, issue(key, 3))
	assert.True(t, apperror.IsInsufficientStock(err), "reserved stock cannot be issued")

	require.NoError(t, svc.Release(ctx, key, qty(8)))
	err = svc.Release(ctx, key, qty(1))
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	b, err := svc.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, qty(10), b.Available())
}

func TestReleaseUpTo(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t)
	key := ledger.NewKey(id.New(), id.New(), nil)
	_, err := svc.PostTransaction(ctx, receipt(key, 10))
	require.NoError(t, err)
	require.NoError(t, svc.Reserve(ctx, key, qty(4)))
	require.NoError(t, svc.Release(ctx, key, qty(3)))

	released, err := svc.ReleaseUpTo(ctx, key, qty(4))
	require.NoError(t, err)
	assert.Equal(t, qty(1), released)

	released, err = svc.ReleaseUpTo(ctx, key, qty(4))
	require.NoError(t, err)
	assert.True(t, released.IsZero())

	_, err = svc.ReleaseUpTo(ctx, key, 0)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	b, err := svc.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, b.Reserved.IsZero())
	assert.Equal(t, qty(10), b.Available())
}

func TestRecordProduction(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t)
	kitchen := id.New()
	flour, bread := id.New(), id.New()
	_, err := svc.PostTransaction(ctx, receipt(ledger.NewKey(kitchen, flour, nil), 20))
	require.NoError(t, err)

	txns, err := svc.RecordProduction(ctx, ledger.ProductionRequest{
		LocationID: kitchen,
		Outputs:    []ledger.ProductionLine{{ItemID: bread, Quantity: qty(30), UOM: "pcs"}},
		Consumed:   []ledger.ProductionLine{{ItemID: flour, Quantity: qty(12), UOM: "kg"}},
	})
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, *txns[0].RefID, *txns[1].RefID)

	b, err := svc.GetBalance(ctx, ledger.NewKey(kitchen, flour, nil))
	require.NoError(t, err)
	assert.Equal(t, qty(8), b.OnHand)

	_, err = svc.RecordProduction(ctx, ledger.ProductionRequest{
		LocationID: kitchen,
		Outputs:    []ledger.ProductionLine{{ItemID: bread, Quantity: qty(1)}},
		Consumed:   []ledger.ProductionLine{{ItemID: flour, Quantity: qty(100)}},
	})
	assert.True(t, apperror.IsInsufficientStock(err))
}

func TestAdjust(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t)
	key := ledger.NewKey(id.New(), id.New(), nil)

	_, err := svc.Adjust(ctx, ledger.AdjustRequest{Key: key, Quantity: qty(4), Reason: "count"})
	require.NoError(t, err)

	_, err = svc.Adjust(ctx, ledger.AdjustRequest{Key: key, Quantity: 0, Reason: "noop"})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = svc.Adjust(ctx, ledger.AdjustRequest{Key: key, Quantity: qty(-5), Reason: "spoilage"})
	assert.True(t, apperror.IsInsufficientStock(err))

	_, err = svc.Adjust(ctx, ledger.AdjustRequest{Key: key, Quantity: qty(1)})
	assert.Error(t, err, "reason is required")
}

func TestAvailableByItem(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t)
	item, other := id.New(), id.New()
	lot := id.New()
	l1, l2 := id.New(), id.New()

	_, err := svc.PostBatch(ctx, []ledger.Posting{
		receipt(ledger.NewKey(l1, item, nil), 10),
		receipt(ledger.NewKey(l2, item, &lot), 5),
	})
	require.NoError(t, err)
	require.NoError(t, svc.Reserve(ctx, ledger.NewKey(l1, item, nil), qty(3)))

	got, err := svc.AvailableByItem(ctx, []id.ID{item, other})
	require.NoError(t, err)
	assert.Equal(t, qty(12), got[item])
	assert.Equal(t, types.Quantity(0), got[other])
}

package shipments_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeflow/internal/app"
	"storeflow/internal/core/apperror"
	"storeflow/internal/core/id"
	"storeflow/internal/core/types"
	"storeflow/internal/domain/events"
	"storeflow/internal/domain/ledger"
	"storeflow/internal/domain/lots"
	"storeflow/internal/domain/orders"
	"storeflow/internal/domain/shipments"
	"storeflow/internal/infrastructure/storage/memory"
)

type fixture struct {
	svc     *app.Services
	store   *memory.Store
	kitchen id.ID
	shop    id.ID
	items   []id.ID
	order   *orders.Order
}

func qty(n int64) types.Quantity { return types.NewQuantity(n) }

// newFixture approves an order of 5 units of each of three items.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	svc, store, err := app.NewMemory(app.Options{})
	require.NoError(t, err)

	f := &fixture{svc: svc, store: store, kitchen: id.New(), shop: id.New()}
	var lines []orders.LineInput
	for range 3 {
		item := id.New()
		f.items = append(f.items, item)
		lines = append(lines, orders.LineInput{ItemID: item, Quantity: qty(5), UOM: "kg", UnitPrice: types.MustMoney("100")})
	}
	o, err := svc.Orders.Create(ctx, orders.CreateRequest{StoreID: f.shop, Lines: lines})
	require.NoError(t, err)
	_, err = svc.Orders.Submit(ctx, o.ID)
	require.NoError(t, err)
	f.order, err = svc.Orders.Approve(ctx, o.ID)
	require.NoError(t, err)
	return f
}

func (f *fixture) stock(t *testing.T, item id.ID, lot *id.ID, n int64) {
	t.Helper()
	_, err := f.svc.Ledger.PostTransaction(context.Background(), ledger.Posting{
		Key:      ledger.NewKey(f.kitchen, item, lot),
		Quantity: qty(n),
		UOM:      "kg",
		Kind:     ledger.KindReceipt,
	})
	require.NoError(t, err)
}

func (f *fixture) onHand(t *testing.T, loc, item id.ID, lot *id.ID) ledger.Balance {
	t.Helper()
	b, err := f.svc.Ledger.GetBalance(context.Background(), ledger.NewKey(loc, item, lot))
	require.NoError(t, err)
	return *b
}

func (f *fixture) create(t *testing.T, n int64) *shipments.Shipment {
	t.Helper()
	var lines []shipments.LineInput
	for _, item := range f.items {
		lines = append(lines, shipments.LineInput{ItemID: item, Quantity: qty(n)})
	}
	sh, err := f.svc.Shipments.Create(context.Background(), shipments.CreateRequest{
		OrderID:        f.order.ID,
		FromLocationID: f.kitchen,
		Lines:          lines,
	})
	require.NoError(t, err)
	return sh
}

func transferOuts(t *testing.T, f *fixture, ref id.ID) []ledger.Transaction {
	t.Helper()
	txns, err := f.svc.Ledger.QueryTransactions(context.Background(), ledger.TransactionFilter{
		Kinds: []ledger.Kind{ledger.KindTransferOut},
		RefID: &ref,
	})
	require.NoError(t, err)
	return txns
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	sh := f.create(t, 5)

	assert.Equal(t, shipments.StatusDraft, sh.Status)
	assert.Equal(t, f.shop, sh.ToLocationID)
	require.Len(t, sh.Lines, 3)
	for i, l := range sh.Lines {
		require.NotNil(t, l.OrderLineID)
		assert.Equal(t, f.order.Lines[i].ID, *l.OrderLineID)
		assert.Equal(t, "kg", l.UOM)
	}

	o, err := f.svc.Orders.Get(context.Background(), f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, o.Status)
}

func TestCreate_RejectsUnapprovedOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	draft, err := f.svc.Orders.Create(ctx, orders.CreateRequest{
		StoreID: f.shop,
		Lines:   []orders.LineInput{{ItemID: f.items[0], Quantity: qty(1)}},
	})
	require.NoError(t, err)

	_, err = f.svc.Shipments.Create(ctx, shipments.CreateRequest{
		OrderID:        draft.ID,
		FromLocationID: f.kitchen,
		Lines:          []shipments.LineInput{{ItemID: f.items[0], Quantity: qty(1)}},
	})
	assert.True(t, apperror.IsInvalidTransition(err))
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lot, err := f.svc.Lots.CreateLot(ctx, lots.CreateLotRequest{ItemID: f.items[0], LotCode: "K-1", MfgDate: time.Now()})
	require.NoError(t, err)

	cases := map[string]shipments.CreateRequest{
		"same source and destination": {
			OrderID: f.order.ID, FromLocationID: f.shop,
			Lines: []shipments.LineInput{{ItemID: f.items[0], Quantity: qty(1)}},
		},
		"no lines": {OrderID: f.order.ID, FromLocationID: f.kitchen},
		"item not on order": {
			OrderID: f.order.ID, FromLocationID: f.kitchen,
			Lines: []shipments.LineInput{{ItemID: id.New(), Quantity: qty(1)}},
		},
		"lot allocation does not add up": {
			OrderID: f.order.ID, FromLocationID: f.kitchen,
			Lines: []shipments.LineInput{{
				ItemID: f.items[0], Quantity: qty(3),
				Lots: []shipments.LotAllocation{{LotID: lot.ID, Quantity: qty(2)}},
			}},
		},
		"lot of another item": {
			OrderID: f.order.ID, FromLocationID: f.kitchen,
			Lines: []shipments.LineInput{{
				ItemID: f.items[1], Quantity: qty(2),
				Lots: []shipments.LotAllocation{{LotID: lot.ID, Quantity: qty(2)}},
			}},
		},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Shipments.Create(ctx, req)
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, apperror.CodeValidation), err.Error())
		})
	}
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, item := range f.items {
		f.stock(t, item, nil, 8)
	}
	sh := f.create(t, 5)

	sh, err := f.svc.Shipments.Dispatch(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, shipments.StatusShipped, sh.Status)
	assert.NotNil(t, sh.DispatchedAt)

	for _, item := range f.items {
		assert.Equal(t, qty(3), f.onHand(t, f.kitchen, item, nil).OnHand)
	}
	txns := transferOuts(t, f, sh.ID)
	require.Len(t, txns, 3)
	for _, txn := range txns {
		assert.Equal(t, qty(-5), txn.Quantity)
		assert.Equal(t, ledger.RefShipment, txn.RefType)
		assert.Equal(t, sh.Number, txn.Notes)
	}

	o, err := f.svc.Orders.Get(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusShipped, o.Status)
	for _, l := range o.Lines {
		assert.Equal(t, qty(5), l.Fulfillment.QtyShipped)
	}
	assert.Len(t, f.store.Events().OfType(events.ShipmentDispatched), 1)

	_, err = f.svc.Shipments.Dispatch(ctx, sh.ID)
	assert.True(t, apperror.IsInvalidTransition(err))
	assert.Len(t, transferOuts(t, f, sh.ID), 3)
}

func TestDispatch_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stock(t, f.items[0], nil, 10)
	f.stock(t, f.items[1], nil, 2)
	f.stock(t, f.items[2], nil, 10)
	sh := f.create(t, 5)
	eventsBefore := f.store.Events().Len()

	_, err := f.svc.Shipments.Dispatch(ctx, sh.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	assert.Empty(t, transferOuts(t, f, sh.ID))
	for i, want := range []int64{10, 2, 10} {
		assert.Equal(t, qty(want), f.onHand(t, f.kitchen, f.items[i], nil).OnHand)
	}

	got, err := f.svc.Shipments.Get(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, shipments.StatusDraft, got.Status)
	assert.Nil(t, got.DispatchedAt)

	o, err := f.svc.Orders.Get(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, o.Status)
	for _, l := range o.Lines {
		assert.True(t, l.Fulfillment.QtyShipped.IsZero())
	}
	assert.Equal(t, eventsBefore, f.store.Events().Len())
}

func TestPickThenDispatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, item := range f.items {
		f.stock(t, item, nil, 6)
	}
	sh := f.create(t, 4)

	_, err := f.svc.Shipments.Pick(ctx, sh.ID)
	require.NoError(t, err)
	b := f.onHand(t, f.kitchen, f.items[0], nil)
	assert.Equal(t, qty(6), b.OnHand)
	assert.Equal(t, qty(4), b.Reserved)

	// Reserved stock cannot be issued elsewhere.
	_, err = f.svc.Ledger.PostTransaction(ctx, ledger.Posting{
		Key: ledger.NewKey(f.kitchen, f.items[0], nil), Quantity: qty(-3), Kind: ledger.KindIssue,
	})
	assert.True(t, apperror.IsInsufficientStock(err))

	_, err = f.svc.Shipments.Dispatch(ctx, sh.ID)
	require.NoError(t, err)
	b = f.onHand(t, f.kitchen, f.items[0], nil)
	assert.Equal(t, qty(2), b.OnHand)
	assert.True(t, b.Reserved.IsZero())
}

func TestPickedShipmentSurvivesManualRelease(t *testing.T) {
	ctx := context.Background()

	for _, next := range []string{"dispatch", "cancel"} {
		t.Run(next, func(t *testing.T) {
			f := newFixture(t)
			for _, item := range f.items {
				f.stock(t, item, nil, 6)
			}
			sh := f.create(t, 4)
			_, err := f.svc.Shipments.Pick(ctx, sh.ID)
			require.NoError(t, err)
			require.NoError(t, f.svc.Ledger.Release(ctx, ledger.NewKey(f.kitchen, f.items[0], nil), qty(4)))

			var got *shipments.Shipment
			if next == "dispatch" {
				got, err = f.svc.Shipments.Dispatch(ctx, sh.ID)
			} else {
				got, err = f.svc.Shipments.Cancel(ctx, sh.ID, "")
			}
			require.NoError(t, err)
			assert.NotEqual(t, shipments.StatusPicked, got.Status)
			for _, item := range f.items {
				assert.True(t, f.onHand(t, f.kitchen, item, nil).Reserved.IsZero())
			}
		})
	}
}

func TestDispatch_LotAllocations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item := f.items[0]
	lotA, err := f.svc.Lots.CreateLot(ctx, lots.CreateLotRequest{ItemID: item, LotCode: "A", MfgDate: time.Now()})
	require.NoError(t, err)
	lotB, err := f.svc.Lots.CreateLot(ctx, lots.CreateLotRequest{ItemID: item, LotCode: "B", MfgDate: time.Now()})
	require.NoError(t, err)
	f.stock(t, item, &lotA.ID, 3)
	f.stock(t, item, &lotB.ID, 3)

	sh, err := f.svc.Shipments.Create(ctx, shipments.CreateRequest{
		OrderID:        f.order.ID,
		FromLocationID: f.kitchen,
		Lines: []shipments.LineInput{{
			ItemID:   item,
			Quantity: qty(5),
			Lots: []shipments.LotAllocation{
				{LotID: lotA.ID, Quantity: qty(3)},
				{LotID: lotB.ID, Quantity: qty(2)},
			},
		}},
	})
	require.NoError(t, err)

	_, err = f.svc.Shipments.Dispatch(ctx, sh.ID)
	require.NoError(t, err)
	assert.True(t, f.onHand(t, f.kitchen, item, &lotA.ID).OnHand.IsZero())
	assert.Equal(t, qty(1), f.onHand(t, f.kitchen, item, &lotB.ID).OnHand)
	assert.Len(t, transferOuts(t, f, sh.ID), 2)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("draft", func(t *testing.T) {
		f := newFixture(t)
		sh := f.create(t, 1)
		sh, err := f.svc.Shipments.Cancel(ctx, sh.ID, "")
		require.NoError(t, err)
		assert.Equal(t, shipments.StatusCancelled, sh.Status)
	})

	t.Run("picked releases reservations", func(t *testing.T) {
		f := newFixture(t)
		for _, item := range f.items {
			f.stock(t, item, nil, 5)
		}
		sh := f.create(t, 5)
		_, err := f.svc.Shipments.Pick(ctx, sh.ID)
		require.NoError(t, err)

		_, err = f.svc.Shipments.Cancel(ctx, sh.ID, "")
		require.NoError(t, err)
		for _, item := range f.items {
			assert.True(t, f.onHand(t, f.kitchen, item, nil).Reserved.IsZero())
		}
	})

	t.Run("dispatched is reversed", func(t *testing.T) {
		f := newFixture(t)
		for _, item := range f.items {
			f.stock(t, item, nil, 5)
		}
		sh := f.create(t, 5)
		_, err := f.svc.Shipments.Dispatch(ctx, sh.ID)
		require.NoError(t, err)

		_, err = f.svc.Shipments.Cancel(ctx, sh.ID, "truck broke down")
		require.NoError(t, err)
		for _, item := range f.items {
			assert.Equal(t, qty(5), f.onHand(t, f.kitchen, item, nil).OnHand)
		}
		reversals, err := f.svc.Ledger.QueryTransactions(ctx, ledger.TransactionFilter{
			Kinds: []ledger.Kind{ledger.KindTransferIn},
			RefID: &sh.ID,
		})
		require.NoError(t, err)
		require.Len(t, reversals, 3)
		assert.Contains(t, reversals[0].Notes, "truck broke down")

		o, err := f.svc.Orders.Get(ctx, f.order.ID)
		require.NoError(t, err)
		for _, l := range o.Lines {
			assert.True(t, l.Fulfillment.QtyShipped.IsZero())
		}
		assert.Len(t, f.store.Events().OfType(events.ShipmentCancelled), 1)
	})

	t.Run("last dispatched shipment reopens the order", func(t *testing.T) {
		f := newFixture(t)
		for _, item := range f.items {
			f.stock(t, item, nil, 10)
		}
		first := f.create(t, 2)
		second := f.create(t, 2)
		_, err := f.svc.Shipments.Dispatch(ctx, first.ID)
		require.NoError(t, err)
		_, err = f.svc.Shipments.Dispatch(ctx, second.ID)
		require.NoError(t, err)

		_, err = f.svc.Shipments.Cancel(ctx, first.ID, "")
		require.NoError(t, err)
		o, err := f.svc.Orders.Get(ctx, f.order.ID)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusShipped, o.Status)

		_, err = f.svc.Shipments.Cancel(ctx, second.ID, "")
		require.NoError(t, err)
		o, err = f.svc.Orders.Get(ctx, f.order.ID)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusProcessing, o.Status)

		// A replacement shipment can be created and dispatched.
		again := f.create(t, 2)
		_, err = f.svc.Shipments.Dispatch(ctx, again.ID)
		require.NoError(t, err)
		o, err = f.svc.Orders.Get(ctx, f.order.ID)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusShipped, o.Status)
		assert.Equal(t, qty(2), o.Lines[0].Fulfillment.QtyShipped)
	})

	t.Run("cancelled cannot be cancelled again", func(t *testing.T) {
		f := newFixture(t)
		sh := f.create(t, 1)
		_, err := f.svc.Shipments.Cancel(ctx, sh.ID, "")
		require.NoError(t, err)
		_, err = f.svc.Shipments.Cancel(ctx, sh.ID, "")
		assert.True(t, apperror.IsInvalidTransition(err))
	})
}

package receipts_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeflow/internal/app"
	"storeflow/internal/core/apperror"
	appctx "storeflow/internal/core/context"
	"storeflow/internal/core/id"
	"storeflow/internal/core/types"
	"storeflow/internal/domain/events"
	"storeflow/internal/domain/ledger"
	"storeflow/internal/domain/lots"
	"storeflow/internal/domain/orders"
	"storeflow/internal/domain/receipts"
	"storeflow/internal/domain/shipments"
	"storeflow/internal/infrastructure/storage/memory"
)

func qty(n int64) types.Quantity { return types.NewQuantity(n) }

type transfer struct {
	svc      *app.Services
	store    *memory.Store
	from, to id.ID
	item     id.ID
	lot      *lots.Lot
	order    *orders.Order
	shipment *shipments.Shipment
}

// dispatched ships 10 units of lot K from L1 to L2.
func dispatched(t *testing.T) *transfer {
	t.Helper()
	ctx := context.Background()
	svc, store, err := app.NewMemory(app.Options{})
	require.NoError(t, err)
	tr := &transfer{svc: svc, store: store, from: id.New(), to: id.New(), item: id.New()}

	tr.lot, err = svc.Lots.CreateLot(ctx, lots.CreateLotRequest{ItemID: tr.item, LotCode: "K", MfgDate: time.Now().Add(-24 * time.Hour)})
	require.NoError(t, err)
	_, err = svc.Ledger.PostTransaction(ctx, ledger.Posting{
		Key: ledger.NewKey(tr.from, tr.item, &tr.lot.ID), Quantity: qty(10), UOM: "kg", Kind: ledger.KindProductionIn,
	})
	require.NoError(t, err)

	o, err := svc.Orders.Create(ctx, orders.CreateRequest{
		StoreID: tr.to,
		Lines:   []orders.LineInput{{ItemID: tr.item, Quantity: qty(10), UOM: "kg"}},
	})
	require.NoError(t, err)
	_, err = svc.Orders.Submit(ctx, o.ID)
	require.NoError(t, err)
	tr.order, err = svc.Orders.Approve(ctx, o.ID)
	require.NoError(t, err)

	sh, err := svc.Shipments.Create(ctx, shipments.CreateRequest{
		OrderID:        o.ID,
		FromLocationID: tr.from,
		Lines: []shipments.LineInput{{
			ItemID: tr.item, Quantity: qty(10),
			Lots: []shipments.LotAllocation{{LotID: tr.lot.ID, Quantity: qty(10)}},
		}},
	})
	require.NoError(t, err)
	tr.shipment, err = svc.Shipments.Dispatch(ctx, sh.ID)
	require.NoError(t, err)
	return tr
}

func (tr *transfer) balance(t *testing.T, loc id.ID) ledger.Balance {
	t.Helper()
	b, err := tr.svc.Ledger.GetBalance(context.Background(), ledger.NewKey(loc, tr.item, &tr.lot.ID))
	require.NoError(t, err)
	return *b
}

func TestTransferRoundTrip(t *testing.T) {
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "store-manager"})
	tr := dispatched(t)

	r, err := tr.svc.Receipts.Create(ctx, receipts.CreateRequest{ShipmentID: tr.shipment.ID})
	require.NoError(t, err)
	assert.Equal(t, receipts.StatusDraft, r.Status)
	require.Len(t, r.Lines, 1)
	assert.Equal(t, qty(10), r.Lines[0].QtyReceived)

	r, err = tr.svc.Receipts.Confirm(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, receipts.StatusReceived, r.Status)
	assert.Equal(t, "store-manager", r.ReceivedBy)
	assert.NotNil(t, r.ConfirmedAt)

	assert.True(t, tr.balance(t, tr.from).OnHand.IsZero())
	assert.Equal(t, qty(10), tr.balance(t, tr.to).OnHand)

	legs, err := tr.svc.Ledger.QueryTransactions(ctx, ledger.TransactionFilter{RefID: &tr.shipment.ID})
	require.NoError(t, err)
	require.Len(t, legs, 2)
	kinds := map[ledger.Kind]ledger.Transaction{}
	for _, l := range legs {
		kinds[l.Kind] = l
		assert.Equal(t, ledger.RefShipment, l.RefType)
		assert.Equal(t, tr.lot.ID, l.LotID)
	}
	assert.Equal(t, qty(-10), kinds[ledger.KindTransferOut].Quantity)
	assert.Equal(t, qty(10), kinds[ledger.KindTransferIn].Quantity)
	assert.Equal(t, r.Number, kinds[ledger.KindTransferIn].Notes)

	sh, err := tr.svc.Shipments.Get(ctx, tr.shipment.ID)
	require.NoError(t, err)
	assert.Equal(t, shipments.StatusDelivered, sh.Status)

	o, err := tr.svc.Orders.Get(ctx, tr.order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusReceived, o.Status)
	assert.Equal(t, qty(10), o.Lines[0].Fulfillment.QtyShipped)
	assert.Equal(t, qty(10), o.Lines[0].Fulfillment.QtyReceived)

	assert.Len(t, tr.store.Events().OfType(events.ReceiptConfirmed), 1)
}

func TestConfirm_Twice(t *testing.T) {
	ctx := context.Background()
	tr := dispatched(t)
	r, err := tr.svc.Receipts.Create(ctx, receipts.CreateRequest{ShipmentID: tr.shipment.ID})
	require.NoError(t, err)
	_, err = tr.svc.Receipts.Confirm(ctx, r.ID)
	require.NoError(t, err)

	_, err = tr.svc.Receipts.Confirm(ctx, r.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsInvalidTransition(err))

	in, err := tr.svc.Ledger.QueryTransactions(ctx, ledger.TransactionFilter{Kinds: []ledger.Kind{ledger.KindTransferIn}})
	require.NoError(t, err)
	assert.Len(t, in, 1)
	assert.Equal(t, qty(10), tr.balance(t, tr.to).OnHand)
}

func TestConfirm_PartialWithRejection(t *testing.T) {
	ctx := context.Background()
	tr := dispatched(t)
	line := tr.shipment.Lines[0]

	r, err := tr.svc.Receipts.Create(ctx, receipts.CreateRequest{
		ShipmentID: tr.shipment.ID,
		Lines: []receipts.LineInput{{
			ShipmentLineID:  line.ID,
			QtyReceived:     qty(8),
			QtyRejected:     qty(2),
			RejectionReason: "crushed packaging",
		}},
	})
	require.NoError(t, err)
	_, err = tr.svc.Receipts.Confirm(ctx, r.ID)
	require.NoError(t, err)

	assert.Equal(t, qty(8), tr.balance(t, tr.to).OnHand)
	o, err := tr.svc.Orders.Get(ctx, tr.order.ID)
	require.NoError(t, err)
	assert.Equal(t, qty(8), o.Lines[0].Fulfillment.QtyReceived)
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	tr := dispatched(t)
	line := tr.shipment.Lines[0]

	_, err := tr.svc.Receipts.Create(ctx, receipts.CreateRequest{
		ShipmentID: tr.shipment.ID,
		Lines:      []receipts.LineInput{{ShipmentLineID: line.ID, QtyReceived: qty(9), QtyRejected: qty(2)}},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = tr.svc.Receipts.Create(ctx, receipts.CreateRequest{
		ShipmentID: tr.shipment.ID,
		Lines:      []receipts.LineInput{{ShipmentLineID: id.New(), QtyReceived: qty(1)}},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestCreate_ShipmentNotDispatched(t *testing.T) {
	ctx := context.Background()
	tr := dispatched(t)
	_, err := tr.svc.Shipments.Cancel(ctx, tr.shipment.ID, "")
	require.NoError(t, err)

	_, err = tr.svc.Receipts.Create(ctx, receipts.CreateRequest{ShipmentID: tr.shipment.ID})
	assert.True(t, apperror.IsInvalidTransition(err))
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	tr := dispatched(t)
	r, err := tr.svc.Receipts.Create(ctx, receipts.CreateRequest{ShipmentID: tr.shipment.ID})
	require.NoError(t, err)

	r, err = tr.svc.Receipts.Cancel(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, receipts.StatusCancelled, r.Status)

	_, err = tr.svc.Receipts.Confirm(ctx, r.ID)
	assert.True(t, apperror.IsInvalidTransition(err))
	assert.True(t, tr.balance(t, tr.to).OnHand.IsZero())
}

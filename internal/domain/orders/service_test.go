package orders_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeflow/internal/app"
	"storeflow/internal/core/apperror"
	"storeflow/internal/core/id"
	"storeflow/internal/core/types"
	"storeflow/internal/domain/events"
	"storeflow/internal/domain/orders"
)

func TestCreate(t *testing.T) {
	ctx := context.Background()
	svc, store, err := app.NewMemory(app.Options{})
	require.NoError(t, err)

	store1 := id.New()
	o, err := svc.Orders.Create(ctx, orders.CreateRequest{
		StoreID:  store1,
		IsUrgent: true,
		Lines: []orders.LineInput{
			{ItemID: id.New(), Quantity: types.NewQuantityFromFloat64(2.5), UOM: "kg", UnitPrice: types.MustMoney("12000")},
			{ItemID: id.New(), Quantity: types.NewQuantity(3), UOM: "pcs", UnitPrice: types.MustMoney("5000.50")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, orders.StatusDraft, o.Status)
	assert.Equal(t, fmt.Sprintf("SO-%d-00001", o.OrderDate.Year()), o.Number)
	assert.Equal(t, orders.DefaultCurrency, o.Currency)
	assert.True(t, types.MustMoney("45001.5").Equal(o.TotalAmount), o.TotalAmount.String())
	for _, l := range o.Lines {
		assert.True(t, l.Fulfillment.QtyShipped.IsZero())
		assert.Equal(t, l.ID, l.Fulfillment.OrderLineID)
	}

	created := store.Events().OfType(events.OrderCreated)
	require.Len(t, created, 1)
	assert.Equal(t, o.ID, created[0].AggregateID)
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _, err := app.NewMemory(app.Options{})
	require.NoError(t, err)

	_, err = svc.Orders.Create(ctx, orders.CreateRequest{StoreID: id.New()})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = svc.Orders.Create(ctx, orders.CreateRequest{
		StoreID: id.New(),
		Lines:   []orders.LineInput{{ItemID: id.New(), Quantity: 0}},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestTransitions(t *testing.T) {
	ctx := context.Background()
	svc, store, err := app.NewMemory(app.Options{})
	require.NoError(t, err)

	o, err := svc.Orders.Create(ctx, orders.CreateRequest{
		StoreID:   id.New(),
		OrderDate: time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
		Lines:     []orders.LineInput{{ItemID: id.New(), Quantity: types.NewQuantity(1)}},
	})
	require.NoError(t, err)

	_, err = svc.Orders.Approve(ctx, o.ID)
	assert.True(t, apperror.IsInvalidTransition(err), "DRAFT cannot be approved")

	o, err = svc.Orders.Submit(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusSubmitted, o.Status)

	o, err = svc.Orders.Approve(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusApproved, o.Status)

	o, err = svc.Orders.Cancel(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, o.Status)

	_, err = svc.Orders.Submit(ctx, o.ID)
	assert.True(t, apperror.IsInvalidTransition(err))

	assert.Len(t, store.Events().OfType(events.OrderStatusChanged), 3)

	got, err := svc.Orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)
}

func TestStatusTable(t *testing.T) {
	allowed := map[orders.Status][]orders.Status{
		orders.StatusDraft:      {orders.StatusSubmitted, orders.StatusCancelled},
		orders.StatusSubmitted:  {orders.StatusApproved, orders.StatusCancelled},
		orders.StatusApproved:   {orders.StatusProcessing, orders.StatusCancelled},
		orders.StatusProcessing: {orders.StatusShipped, orders.StatusCancelled},
		orders.StatusShipped:    {orders.StatusReceived, orders.StatusProcessing, orders.StatusCancelled},
		orders.StatusReceived:   nil,
		orders.StatusCancelled:  nil,
	}
	all := []orders.Status{
		orders.StatusDraft, orders.StatusSubmitted, orders.StatusApproved, orders.StatusProcessing,
		orders.StatusShipped, orders.StatusReceived, orders.StatusCancelled,
	}
	for from, targets := range allowed {
		for _, to := range all {
			want := false
			for _, t := range targets {
				want = want || t == to
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	assert.True(t, orders.StatusReceived.IsTerminal())
	assert.False(t, orders.StatusShipped.IsTerminal())
}

func TestAddLine(t *testing.T) {
	ctx := context.Background()
	svc, _, err := app.NewMemory(app.Options{})
	require.NoError(t, err)

	o, err := svc.Orders.Create(ctx, orders.CreateRequest{
		StoreID: id.New(),
		Lines:   []orders.LineInput{{ItemID: id.New(), Quantity: types.NewQuantity(2), UnitPrice: types.MustMoney("10")}},
	})
	require.NoError(t, err)

	o, err = svc.Orders.AddLine(ctx, o.ID, orders.LineInput{ItemID: id.New(), Quantity: types.NewQuantity(1), UnitPrice: types.MustMoney("5")})
	require.NoError(t, err)
	require.Len(t, o.Lines, 2)
	assert.Equal(t, 2, o.Lines[1].LineNo)
	assert.True(t, types.MustMoney("25").Equal(o.TotalAmount))

	stored, err := svc.Orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Lines, 2)
	assert.True(t, types.MustMoney("25").Equal(stored.TotalAmount))

	_, err = svc.Orders.Submit(ctx, o.ID)
	require.NoError(t, err)
	_, err = svc.Orders.AddLine(ctx, o.ID, orders.LineInput{ItemID: id.New(), Quantity: types.NewQuantity(1)})
	assert.True(t, apperror.IsInvalidTransition(err))
}

func TestList(t *testing.T) {
	ctx := context.Background()
	svc, _, err := app.NewMemory(app.Options{})
	require.NoError(t, err)

	storeA, storeB := id.New(), id.New()
	for _, s := range []id.ID{storeA, storeA, storeB} {
		_, err := svc.Orders.Create(ctx, orders.CreateRequest{
			StoreID: s,
			Lines:   []orders.LineInput{{ItemID: id.New(), Quantity: types.NewQuantity(1)}},
		})
		require.NoError(t, err)
	}

	res, err := svc.Orders.List(ctx, orders.ListFilter{StoreID: &storeA})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.TotalCount)

	res, err = svc.Orders.List(ctx, orders.ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.TotalCount)
	assert.Len(t, res.Items, 1)
}

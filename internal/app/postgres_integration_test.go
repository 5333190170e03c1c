//go:build integration

package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"storeflow/internal/app"
	"storeflow/internal/core/apperror"
	"storeflow/internal/core/id"
	"storeflow/internal/core/types"
	"storeflow/internal/domain/events"
	"storeflow/internal/domain/ledger"
	"storeflow/internal/domain/lots"
	"storeflow/internal/domain/orders"
	"storeflow/internal/domain/receipts"
	"storeflow/internal/domain/shipments"
	"storeflow/internal/infrastructure/storage/postgres"
)

type pgEnv struct {
	pool *postgres.Pool
	txm  *postgres.TxManager
	svc  *app.Services
}

func setupPostgres(t *testing.T) *pgEnv {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcPostgres.WithDatabase("storeflow_test"),
		tcPostgres.WithUsername("storeflow"),
		tcPostgres.WithPassword("storeflow"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := postgres.DefaultPoolConfig(dsn)
	cfg.MinConns = 1
	pool, err := postgres.NewPool(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.Migrate(ctx, pool))

	txm := postgres.NewTxManager(pool)
	svc, err := app.NewPostgres(txm, app.Options{DefaultCurrency: "RUB"})
	require.NoError(t, err)
	return &pgEnv{pool: pool, txm: txm, svc: svc}
}

func qty(n int64) types.Quantity { return types.NewQuantity(n) }

func (e *pgEnv) count(t *testing.T, sql string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, e.pool.QueryRow(context.Background(), sql, args...).Scan(&n))
	return n
}

func TestPostgres_TransferRoundTrip(t *testing.T) {
	env := setupPostgres(t)
	ctx := context.Background()
	kitchen, shop, item := id.New(), id.New(), id.New()

	lot, err := env.svc.Lots.CreateLot(ctx, lots.CreateLotRequest{ItemID: item, LotCode: "K-001", MfgDate: time.Now()})
	require.NoError(t, err)

	_, err = env.svc.Ledger.PostTransaction(ctx, ledger.Posting{
		Key:      ledger.NewKey(kitchen, item, &lot.ID),
		Quantity: qty(20),
		UOM:      "kg",
		Kind:     ledger.KindReceipt,
	})
	require.NoError(t, err)

	o, err := env.svc.Orders.Create(ctx, orders.CreateRequest{
		StoreID: shop,
		Lines:   []orders.LineInput{{ItemID: item, Quantity: qty(8), UOM: "kg", UnitPrice: types.MustMoney("12.50")}},
	})
	require.NoError(t, err)
	_, err = env.svc.Orders.Submit(ctx, o.ID)
	require.NoError(t, err)
	_, err = env.svc.Orders.Approve(ctx, o.ID)
	require.NoError(t, err)

	sh, err := env.svc.Shipments.Create(ctx, shipments.CreateRequest{
		OrderID:        o.ID,
		FromLocationID: kitchen,
		Lines: []shipments.LineInput{{
			ItemID:   item,
			Quantity: qty(8),
			Lots:     []shipments.LotAllocation{{LotID: lot.ID, Quantity: qty(8)}},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, shop, sh.ToLocationID)

	sh, err = env.svc.Shipments.Dispatch(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, shipments.StatusShipped, sh.Status)

	rc, err := env.svc.Receipts.Create(ctx, receipts.CreateRequest{ShipmentID: sh.ID})
	require.NoError(t, err)
	rc, err = env.svc.Receipts.Confirm(ctx, rc.ID)
	require.NoError(t, err)
	assert.Equal(t, receipts.StatusReceived, rc.Status)

	src, err := env.svc.Ledger.GetBalance(ctx, ledger.NewKey(kitchen, item, &lot.ID))
	require.NoError(t, err)
	assert.Equal(t, qty(12), src.OnHand)

	dst, err := env.svc.Ledger.GetBalance(ctx, ledger.NewKey(shop, item, &lot.ID))
	require.NoError(t, err)
	assert.Equal(t, qty(8), dst.OnHand)

	got, err := env.svc.Orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusReceived, got.Status)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, qty(8), got.Lines[0].Fulfillment.QtyShipped)
	assert.Equal(t, qty(8), got.Lines[0].Fulfillment.QtyReceived)

	txns, err := env.svc.Ledger.QueryTransactions(ctx, ledger.TransactionFilter{RefID: &sh.ID})
	require.NoError(t, err)
	kinds := map[ledger.Kind]int{}
	for _, txn := range txns {
		kinds[txn.Kind]++
	}
	assert.Equal(t, map[ledger.Kind]int{ledger.KindTransferOut: 1, ledger.KindTransferIn: 1}, kinds)

	assert.Equal(t, 1, env.count(t,
		`SELECT count(*) FROM sys_outbox WHERE event_type = $1 AND aggregate_id = $2`, events.ShipmentDispatched, sh.ID))

	trail, err := postgres.NewAuditTrail(env.txm)
	require.NoError(t, err)
	history, err := trail.History(ctx, events.AggregateShipment, sh.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, postgres.AuditPost, history[0].Action)
	assert.Equal(t, events.ShipmentDispatched, history[0].EventType)
	assert.Contains(t, string(history[0].Payload), sh.Number)
}

func TestPostgres_DispatchAllOrNothing(t *testing.T) {
	env := setupPostgres(t)
	ctx := context.Background()
	kitchen, shop := id.New(), id.New()
	itemA, itemB := id.New(), id.New()

	for item, n := range map[id.ID]int64{itemA: 10, itemB: 2} {
		_, err := env.svc.Ledger.PostTransaction(ctx, ledger.Posting{
			Key: ledger.NewKey(kitchen, item, nil), Quantity: qty(n), UOM: "pcs", Kind: ledger.KindReceipt,
		})
		require.NoError(t, err)
	}

	o, err := env.svc.Orders.Create(ctx, orders.CreateRequest{
		StoreID: shop,
		Lines: []orders.LineInput{
			{ItemID: itemA, Quantity: qty(5), UOM: "pcs", UnitPrice: types.MustMoney("1")},
			{ItemID: itemB, Quantity: qty(5), UOM: "pcs", UnitPrice: types.MustMoney("1")},
		},
	})
	require.NoError(t, err)
	_, err = env.svc.Orders.Submit(ctx, o.ID)
	require.NoError(t, err)
	_, err = env.svc.Orders.Approve(ctx, o.ID)
	require.NoError(t, err)

	sh, err := env.svc.Shipments.Create(ctx, shipments.CreateRequest{
		OrderID:        o.ID,
		FromLocationID: kitchen,
		Lines: []shipments.LineInput{
			{ItemID: itemA, Quantity: qty(5)},
			{ItemID: itemB, Quantity: qty(5)},
		},
	})
	require.NoError(t, err)
	outboxBefore := env.count(t, `SELECT count(*) FROM sys_outbox`)

	_, err = env.svc.Shipments.Dispatch(ctx, sh.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	a, err := env.svc.Ledger.GetBalance(ctx, ledger.NewKey(kitchen, itemA, nil))
	require.NoError(t, err)
	assert.Equal(t, qty(10), a.OnHand)

	txns, err := env.svc.Ledger.QueryTransactions(ctx, ledger.TransactionFilter{RefID: &sh.ID})
	require.NoError(t, err)
	assert.Empty(t, txns)

	got, err := env.svc.Shipments.Get(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, shipments.StatusDraft, got.Status)
	assert.Equal(t, outboxBefore, env.count(t, `SELECT count(*) FROM sys_outbox`))
}

func TestPostgres_ConcurrentIssuesNeverOverdraw(t *testing.T) {
	env := setupPostgres(t)
	ctx := context.Background()
	key := ledger.NewKey(id.New(), id.New(), nil)

	_, err := env.svc.Ledger.PostTransaction(ctx, ledger.Posting{Key: key, Quantity: qty(10), UOM: "kg", Kind: ledger.KindReceipt})
	require.NoError(t, err)

	const workers = 5
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Ledger.PostTransaction(ctx, ledger.Posting{Key: key, Quantity: qty(-6), UOM: "kg", Kind: ledger.KindIssue})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.True(t, apperror.IsInsufficientStock(err), err.Error())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	b, err := env.svc.Ledger.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, qty(4), b.OnHand)
}

func TestPostgres_RecomputeKeepsConcurrentDispatches(t *testing.T) {
	env := setupPostgres(t)
	ctx := context.Background()
	kitchen, shop, item := id.New(), id.New(), id.New()

	_, err := env.svc.Ledger.PostTransaction(ctx, ledger.Posting{
		Key: ledger.NewKey(kitchen, item, nil), Quantity: qty(100), UOM: "kg", Kind: ledger.KindReceipt,
	})
	require.NoError(t, err)
	o, err := env.svc.Orders.Create(ctx, orders.CreateRequest{
		StoreID: shop,
		Lines:   []orders.LineInput{{ItemID: item, Quantity: qty(50), UOM: "kg", UnitPrice: types.MustMoney("1")}},
	})
	require.NoError(t, err)
	_, err = env.svc.Orders.Submit(ctx, o.ID)
	require.NoError(t, err)
	_, err = env.svc.Orders.Approve(ctx, o.ID)
	require.NoError(t, err)

	const n = 8
	var list []*shipments.Shipment
	for range n {
		sh, err := env.svc.Shipments.Create(ctx, shipments.CreateRequest{
			OrderID: o.ID, FromLocationID: kitchen,
			Lines: []shipments.LineInput{{ItemID: item, Quantity: qty(5)}},
		})
		require.NoError(t, err)
		list = append(list, sh)
	}

	var wg sync.WaitGroup
	for _, sh := range list {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := env.svc.Shipments.Dispatch(ctx, sh.ID)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := env.svc.Fulfillment.Recompute(ctx, o.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := env.svc.Orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, qty(5*n), got.Lines[0].Fulfillment.QtyShipped)
}

func TestPostgres_OutboxRelay(t *testing.T) {
	env := setupPostgres(t)
	ctx := context.Background()

	_, err := env.svc.Orders.Create(ctx, orders.CreateRequest{
		StoreID: id.New(),
		Lines:   []orders.LineInput{{ItemID: id.New(), Quantity: qty(1), UOM: "kg", UnitPrice: types.MustMoney("3")}},
	})
	require.NoError(t, err)

	var seen []string
	relay := postgres.NewOutboxRelay(env.txm, 10, func(_ context.Context, msg postgres.OutboxMessage) error {
		seen = append(seen, msg.EventType)
		return nil
	})
	n, err := relay.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{events.OrderCreated}, seen)

	n, err = relay.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, env.count(t, `SELECT count(*) FROM sys_outbox WHERE status = 'published'`))
}

func TestPostgres_IdempotencyReplay(t *testing.T) {
	env := setupPostgres(t)
	ctx := context.Background()
	store := postgres.NewIdempotencyStore(env.txm, time.Hour)

	replay, err := store.AcquireKey(ctx, "key-1", "user-1", "POST /api/v1/orders", "hash-a")
	require.NoError(t, err)
	assert.Nil(t, replay)

	_, err = store.AcquireKey(ctx, "key-1", "user-1", "POST /api/v1/orders", "hash-a")
	assert.True(t, apperror.HasCode(err, apperror.CodeIdempotency))

	require.NoError(t, store.CompleteKey(ctx, "key-1", 201, "application/json", map[string]string{"id": "42"}))

	replay, err = store.AcquireKey(ctx, "key-1", "user-1", "POST /api/v1/orders", "hash-a")
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, 201, replay.StatusCode)
	assert.JSONEq(t, `{"id":"42"}`, string(replay.Body))

	_, err = store.AcquireKey(ctx, "key-1", "user-1", "POST /api/v1/orders", "hash-b")
	assert.True(t, apperror.HasCode(err, apperror.CodeIdempotency))
}

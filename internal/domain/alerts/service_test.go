package alerts_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeflow/internal/app"
	"storeflow/internal/core/id"
	"storeflow/internal/core/types"
	"storeflow/internal/domain/alerts"
	"storeflow/internal/domain/ledger"
	"storeflow/internal/domain/lots"
)

var asOf = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func qty(n int64) types.Quantity { return types.NewQuantity(n) }

func post(t *testing.T, svc *app.Services, loc, item id.ID, lot *id.ID, n int64) {
	t.Helper()
	_, err := svc.Ledger.PostTransaction(context.Background(), ledger.Posting{
		Key: ledger.NewKey(loc, item, lot), Quantity: qty(n), Kind: ledger.KindAdjustment,
	})
	require.NoError(t, err)
}

func TestExpiryAlerts(t *testing.T) {
	ctx := context.Background()
	svc, _, err := app.NewMemory(app.Options{})
	require.NoError(t, err)
	loc, item := id.New(), id.New()

	mkLot := func(code string, days int) *lots.Lot {
		exp := asOf.AddDate(0, 0, days)
		lot, err := svc.Lots.CreateLot(ctx, lots.CreateLotRequest{
			ItemID: item, LotCode: code, MfgDate: asOf.AddDate(0, -1, 0), ExpDate: &exp,
		})
		require.NoError(t, err)
		return lot
	}
	expired := mkLot("EXP", -1)
	critical := mkLot("CRIT", 2)
	high := mkLot("HIGH", 4)
	medium := mkLot("MED", 7)
	fine := mkLot("FINE", 30)
	empty := mkLot("EMPTY", 1)
	for _, l := range []*lots.Lot{medium, high, critical, expired, fine, empty} {
		post(t, svc, loc, item, &l.ID, 5)
	}
	_, err = svc.Ledger.PostTransaction(ctx, ledger.Posting{
		Key: ledger.NewKey(loc, item, &empty.ID), Quantity: qty(-5), Kind: ledger.KindConsumption,
	})
	require.NoError(t, err)

	got, err := svc.Alerts.ExpiryAlerts(ctx, alerts.ExpiryFilter{AsOf: asOf})
	require.NoError(t, err)
	require.Len(t, got, 4)

	wantCodes := []string{"EXP", "CRIT", "HIGH", "MED"}
	wantLevels := []lots.ExpiryLevel{lots.ExpiryExpired, lots.ExpiryCritical, lots.ExpiryHigh, lots.ExpiryMedium}
	for i, a := range got {
		assert.Equal(t, wantCodes[i], a.LotCode)
		assert.Equal(t, wantLevels[i], a.Severity)
		assert.Equal(t, qty(5), a.OnHand)
	}
	assert.Equal(t, -1, got[0].DaysUntilExpiry)

	only, err := svc.Alerts.ExpiryAlerts(ctx, alerts.ExpiryFilter{AsOf: asOf, Severity: lots.ExpiryHigh})
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, high.ID, only[0].LotID)
}

func TestExpiryAlerts_CustomThreshold(t *testing.T) {
	ctx := context.Background()
	svc, _, err := app.NewMemory(app.Options{ExpiryThresholdDays: 14})
	require.NoError(t, err)
	loc, item := id.New(), id.New()

	exp := asOf.AddDate(0, 0, 10)
	lot, err := svc.Lots.CreateLot(ctx, lots.CreateLotRequest{ItemID: item, LotCode: "L10", MfgDate: asOf, ExpDate: &exp})
	require.NoError(t, err)
	post(t, svc, loc, item, &lot.ID, 1)

	got, err := svc.Alerts.ExpiryAlerts(ctx, alerts.ExpiryFilter{AsOf: asOf})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, lots.ExpiryMedium, got[0].Severity)
}

func TestLowStockAlerts(t *testing.T) {
	ctx := context.Background()
	svc, _, err := app.NewMemory(app.Options{})
	require.NoError(t, err)
	loc := id.New()
	empty, low, short, plenty := id.New(), id.New(), id.New(), id.New()

	lotA, lotB := id.New(), id.New()
	post(t, svc, loc, low, &lotA, 1)
	post(t, svc, loc, low, &lotB, 1)
	post(t, svc, loc, short, nil, 9)
	post(t, svc, loc, plenty, nil, 40)
	post(t, svc, loc, empty, nil, 4)
	require.NoError(t, svc.Ledger.Reserve(ctx, ledger.NewKey(loc, empty, nil), qty(4)))

	got, err := svc.Alerts.LowStockAlerts(ctx, alerts.LowStockFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, empty, got[0].ItemID)
	assert.Equal(t, alerts.SeverityCritical, got[0].Severity)
	assert.Equal(t, qty(4), got[0].OnHand)
	assert.True(t, got[0].Available.IsZero())

	assert.Equal(t, low, got[1].ItemID)
	assert.Equal(t, alerts.SeverityHigh, got[1].Severity)
	assert.Equal(t, qty(2), got[1].Available)

	assert.Equal(t, short, got[2].ItemID)
	assert.Equal(t, alerts.SeverityMedium, got[2].Severity)
	assert.Equal(t, alerts.DefaultMinimum, got[2].Minimum)
}

func TestLowStockAlerts_CELPolicy(t *testing.T) {
	ctx := context.Background()
	svc, _, err := app.NewMemory(app.Options{LowStockPolicy: `on_hand >= 50.0 ? 100.0 : 1.0`})
	require.NoError(t, err)
	loc, big, small := id.New(), id.New(), id.New()
	post(t, svc, loc, big, nil, 60)
	post(t, svc, loc, small, nil, 5)

	got, err := svc.Alerts.LowStockAlerts(ctx, alerts.LowStockFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, big, got[0].ItemID)
	assert.Equal(t, qty(100), got[0].Minimum)
	assert.Equal(t, alerts.SeverityMedium, got[0].Severity)
}

func TestNewMemory_InvalidPolicy(t *testing.T) {
	_, _, err := app.NewMemory(app.Options{LowStockPolicy: `on_hand >`})
	assert.Error(t, err)
}

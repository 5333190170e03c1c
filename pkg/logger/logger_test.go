package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	appctx "storeflow/internal/core/context"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return &Logger{zap.New(core).Sugar()}, logs
}

func TestContextLoggerCarriesRequestAndUser(t *testing.T) {
	l, logs := observed()

	ctx := appctx.WithRequest(context.Background(), appctx.Request{ID: "r-1", TraceID: "t-1"})
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: "u-1"})
	ctx = WithLogger(ctx, l)

	Info(ctx, "posted", "kind", "RECEIPT")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "t-1", fields["trace_id"])
	assert.Equal(t, "r-1", fields["request_id"])
	assert.Equal(t, "u-1", fields["user_id"])
	assert.Equal(t, "RECEIPT", fields["kind"])
}

func TestSetDefaultIsUsedWithoutContextLogger(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	l, logs := observed()
	SetDefault(l)
	SetDefault(nil)

	Warn(context.Background(), "low stock", "item", "flour")

	require.Equal(t, 1, logs.Len())
	assert.Empty(t, logs.All()[0].ContextMap()["request_id"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	l, err := New(Config{Level: "warn", Service: "storeflow-test", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	assert.False(t, l.Desugar().Core().Enabled(zap.InfoLevel))
}

package numerator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corenumerator "storeflow/internal/core/numerator"
)

type fakeRow struct{ val int64 }

func (r fakeRow) Scan(dest ...any) error {
	*dest[0].(*int64) = r.val
	return nil
}

// fakeSequences emulates the sys_sequences upsert for any number of keys.
type fakeSequences struct {
	mu     sync.Mutex
	values map[string]int64
	calls  int
}

func newFakeSequences() *fakeSequences {
	return &fakeSequences{values: map[string]int64{}}
}

func (f *fakeSequences) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	key, v := args[0].(string), args[1].(int64)
	if strings.Contains(sql, "current_val + EXCLUDED") {
		f.values[key] += v
	} else {
		f.values[key] = v
	}
	return fakeRow{val: f.values[key]}
}

var march = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func TestSequences_Next(t *testing.T) {
	db := newFakeSequences()
	gen := New(db)
	ctx := context.Background()

	n, err := gen.Next(ctx, corenumerator.Orders, march)
	require.NoError(t, err)
	assert.Equal(t, "SO-2026-00001", n)

	n, err = gen.Next(ctx, corenumerator.Orders, march)
	require.NoError(t, err)
	assert.Equal(t, "SO-2026-00002", n)

	n, err = gen.Next(ctx, corenumerator.Shipments, march)
	require.NoError(t, err)
	assert.Equal(t, "SH-2026-00001", n, "series count independently")

	n, err = gen.Next(ctx, corenumerator.Orders, march.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, "SO-2027-00001", n, "yearly series restart")
	assert.Equal(t, 4, db.calls)
}

func TestSequences_Batch(t *testing.T) {
	db := newFakeSequences()
	gen := New(db)
	ctx := context.Background()
	series := corenumerator.Series{Prefix: "SH", Batch: 10}

	n, err := gen.Next(ctx, series, march)
	require.NoError(t, err)
	assert.Equal(t, "SH-2026-00001", n)
	assert.Equal(t, int64(10), db.values["SH_2026"])

	for i := 0; i < 9; i++ {
		_, err = gen.Next(ctx, series, march)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, db.calls, "batch served from memory")

	n, err = gen.Next(ctx, series, march)
	require.NoError(t, err)
	assert.Equal(t, "SH-2026-00011", n)
	assert.Equal(t, int64(20), db.values["SH_2026"])
}

func TestSequences_RestartDropsReservedRange(t *testing.T) {
	db := newFakeSequences()
	gen := New(db)
	ctx := context.Background()
	series := corenumerator.Series{Prefix: "GR", Batch: 10}

	_, err := gen.Next(ctx, series, march)
	require.NoError(t, err)

	require.NoError(t, gen.Restart(ctx, series, march, 100))

	n, err := gen.Next(ctx, series, march)
	require.NoError(t, err)
	assert.Equal(t, "GR-2026-00101", n)
}

func TestMemory_Concurrent(t *testing.T) {
	gen := NewMemory()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := gen.Next(context.Background(), corenumerator.Returns, march)
			assert.NoError(t, err)
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
	assert.True(t, seen["RR-2026-00050"])
}

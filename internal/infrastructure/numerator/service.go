// Package numerator allocates document numbers from the sys_sequences table,
// with an in-process variant for the memory storage driver.
package numerator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	corenumerator "storeflow/internal/core/numerator"
)

// Querier is the subset of pgx used for sequence allocation.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// QuerierFunc resolves the querier for a call, e.g. TxManager.GetQuerier.
type QuerierFunc func(ctx context.Context) Querier

type reserved struct {
	next, last int64
}

// Sequences allocates numbers with an UPSERT ... RETURNING on the series key.
// Series with a Batch reserve ranges and serve them from memory.
type Sequences struct {
	querier QuerierFunc

	mu     sync.Mutex
	ranges map[string]*reserved
}

var _ corenumerator.Generator = (*Sequences)(nil)

// New creates a generator bound to a single querier.
func New(q Querier) *Sequences {
	return NewWithResolver(func(context.Context) Querier { return q })
}

// NewWithResolver creates a generator resolving its querier per call.
func NewWithResolver(fn QuerierFunc) *Sequences {
	return &Sequences{querier: fn, ranges: make(map[string]*reserved)}
}

// Next implements corenumerator.Generator.
func (s *Sequences) Next(ctx context.Context, series corenumerator.Series, at time.Time) (string, error) {
	key := series.Key(at)

	var (
		n   int64
		err error
	)
	if series.Batch > 0 {
		n, err = s.fromRange(ctx, key, series.Batch)
	} else {
		n, err = s.bump(ctx, key, 1)
	}
	if err != nil {
		return "", fmt.Errorf("next %s number: %w", series.Prefix, err)
	}
	return series.Format(at, n), nil
}

// bump advances the counter by step and returns its new value.
func (s *Sequences) bump(ctx context.Context, key string, step int64) (int64, error) {
	var v int64
	err := s.querier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + EXCLUDED.current_val
		RETURNING current_val
	`, key, step).Scan(&v)
	return v, err
}

func (s *Sequences) fromRange(ctx context.Context, key string, batch int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.ranges[key]
	if r == nil || r.next > r.last {
		last, err := s.bump(ctx, key, batch)
		if err != nil {
			return 0, err
		}
		r = &reserved{next: last - batch + 1, last: last}
		s.ranges[key] = r
	}
	n := r.next
	r.next++
	return n, nil
}

// Restart makes value the last issued number of the series in the period
// containing at. Used when importing documents numbered elsewhere.
func (s *Sequences) Restart(ctx context.Context, series corenumerator.Series, at time.Time, value int64) error {
	key := series.Key(at)

	s.mu.Lock()
	delete(s.ranges, key)
	s.mu.Unlock()

	var v int64
	return s.querier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = EXCLUDED.current_val
		RETURNING current_val
	`, key, value).Scan(&v)
}

// Memory is a process-local generator for the memory storage driver.
type Memory struct {
	mu       sync.Mutex
	counters map[string]int64
}

var _ corenumerator.Generator = (*Memory)(nil)

// NewMemory creates an in-process generator.
func NewMemory() *Memory {
	return &Memory{counters: make(map[string]int64)}
}

// Next implements corenumerator.Generator.
func (m *Memory) Next(_ context.Context, series corenumerator.Series, at time.Time) (string, error) {
	key := series.Key(at)
	m.mu.Lock()
	m.counters[key]++
	n := m.counters[key]
	m.mu.Unlock()
	return series.Format(at, n), nil
}

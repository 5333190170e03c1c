package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"storeflow/internal/core/id"
	"storeflow/internal/domain/consolidation"
)

// SummaryRepo implements consolidation.Repository.
type SummaryRepo struct {
	s *Store
}

var _ consolidation.Repository = (*SummaryRepo)(nil)

// Summaries returns the consolidation summary repository of the store.
func (s *Store) Summaries() *SummaryRepo { return &SummaryRepo{s: s} }

// InsertSummaries implements consolidation.Repository.
func (r *SummaryRepo) InsertSummaries(ctx context.Context, summaries []consolidation.Summary) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := len(r.s.summaries)
	for _, sum := range summaries {
		sum.Stores = slices.Clone(sum.Stores)
		r.s.summaries = append(r.s.summaries, sum)
	}
	onRollback(ctx, func() { r.s.summaries = r.s.summaries[:n] })
	return nil
}

// List implements consolidation.Repository.
func (r *SummaryRepo) List(_ context.Context, f consolidation.ListFilter) ([]consolidation.Summary, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var day time.Time
	if f.DeliveryDate != nil {
		day = f.DeliveryDate.UTC().Truncate(24 * time.Hour)
	}
	var out []consolidation.Summary
	for _, sum := range r.s.summaries {
		switch {
		case f.DeliveryDate != nil && !sum.DeliveryDate.Equal(day):
			continue
		case f.ItemID != nil && sum.ItemID != *f.ItemID:
			continue
		case f.BatchID != nil && sum.BatchID != *f.BatchID:
			continue
		}
		sum.Stores = slices.Clone(sum.Stores)
		out = append(out, sum)
	}
	slices.SortFunc(out, func(a, b consolidation.Summary) int {
		return cmp.Or(id.Compare(b.BatchID, a.BatchID), id.Compare(a.ItemID, b.ItemID))
	})
	return page(out, f.Offset, f.Limit), int64(len(out)), nil
}

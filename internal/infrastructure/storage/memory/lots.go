package memory

import (
	"context"
	"slices"
	"strings"

	"storeflow/internal/core/apperror"
	"storeflow/internal/core/id"
	"storeflow/internal/domain/lots"
)

// LotRepo implements lots.Repository.
type LotRepo struct {
	s *Store
}

var _ lots.Repository = (*LotRepo)(nil)

// Lots returns the lot repository of the store.
func (s *Store) Lots() *LotRepo { return &LotRepo{s: s} }

func (r *LotRepo) codeTaken(code string, self id.ID) bool {
	for _, l := range r.s.lots {
		if l.LotCode == code && l.ID != self {
			return true
		}
	}
	return false
}

// Create implements lots.Repository.
func (r *LotRepo) Create(ctx context.Context, lot *lots.Lot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.codeTaken(lot.LotCode, lot.ID) {
		return apperror.NewDuplicate("lot", "lot_code", lot.LotCode)
	}
	putWithUndo(ctx, r.s.lots, lot.ID, *lot)
	return nil
}

// Update implements lots.Repository.
func (r *LotRepo) Update(ctx context.Context, lot *lots.Lot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.lots[lot.ID]; !ok {
		return apperror.NewNotFound("lot", lot.ID)
	}
	if r.codeTaken(lot.LotCode, lot.ID) {
		return apperror.NewDuplicate("lot", "lot_code", lot.LotCode)
	}
	putWithUndo(ctx, r.s.lots, lot.ID, *lot)
	return nil
}

// GetByID implements lots.Repository.
func (r *LotRepo) GetByID(_ context.Context, lotID id.ID) (*lots.Lot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	l, ok := r.s.lots[lotID]
	if !ok {
		return nil, apperror.NewNotFound("lot", lotID)
	}
	return &l, nil
}

// GetByCode implements lots.Repository.
func (r *LotRepo) GetByCode(_ context.Context, code string) (*lots.Lot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, l := range r.s.lots {
		if l.LotCode == code {
			return &l, nil
		}
	}
	return nil, apperror.NewNotFound("lot", code)
}

// GetMany implements lots.Repository.
func (r *LotRepo) GetMany(_ context.Context, ids []id.ID) (map[id.ID]lots.Lot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make(map[id.ID]lots.Lot, len(ids))
	for _, lotID := range ids {
		if l, ok := r.s.lots[lotID]; ok {
			out[lotID] = l
		}
	}
	return out, nil
}

// List implements lots.Repository. Lots are ordered by expiry date, undated last.
func (r *LotRepo) List(_ context.Context, f lots.ListFilter) ([]lots.Lot, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []lots.Lot
	for _, l := range r.s.lots {
		switch {
		case f.ItemID != nil && l.ItemID != *f.ItemID:
			continue
		case f.Code != "" && !strings.HasPrefix(l.LotCode, f.Code):
			continue
		case f.ExpiresBefore != nil && (l.ExpDate == nil || !l.ExpDate.Before(*f.ExpiresBefore)):
			continue
		}
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b lots.Lot) int {
		switch {
		case a.ExpDate == nil && b.ExpDate == nil:
			return strings.Compare(a.LotCode, b.LotCode)
		case a.ExpDate == nil:
			return 1
		case b.ExpDate == nil:
			return -1
		}
		if c := a.ExpDate.Compare(*b.ExpDate); c != 0 {
			return c
		}
		return strings.Compare(a.LotCode, b.LotCode)
	})
	return page(out, f.Offset, f.Limit), int64(len(out)), nil
}

// page slices items by offset and limit; limit <= 0 means no limit.
func page[T any](items []T, offset, limit int) []T {
	offset = max(0, min(offset, len(items)))
	end := len(items)
	if limit > 0 {
		end = min(offset+limit, end)
	}
	return items[offset:end]
}

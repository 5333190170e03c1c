package memory

import (
	"cmp"
	"context"
	"slices"

	"storeflow/internal/core/apperror"
	"storeflow/internal/core/id"
	"storeflow/internal/domain/receipts"
	"storeflow/internal/domain/returns"
)

// ReceiptRepo implements receipts.Repository.
type ReceiptRepo struct {
	s *Store
}

var _ receipts.Repository = (*ReceiptRepo)(nil)

// Receipts returns the goods receipt repository of the store.
func (s *Store) Receipts() *ReceiptRepo { return &ReceiptRepo{s: s} }

func cloneReceipt(r receipts.GoodsReceipt) receipts.GoodsReceipt {
	r.Lines = slices.Clone(r.Lines)
	return r
}

// Create implements receipts.Repository.
func (r *ReceiptRepo) Create(ctx context.Context, gr *receipts.GoodsReceipt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.receipts[gr.ID]; ok {
		return apperror.NewDuplicate("goods receipt", "id", gr.ID.String())
	}
	putWithUndo(ctx, r.s.receipts, gr.ID, cloneReceipt(*gr))
	return nil
}

// Update implements receipts.Repository.
func (r *ReceiptRepo) Update(ctx context.Context, gr *receipts.GoodsReceipt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.receipts[gr.ID]
	if !ok {
		return apperror.NewNotFound("goods receipt", gr.ID)
	}
	if stored.Version != gr.Version {
		return apperror.NewConcurrentModification("goods receipt", gr.ID)
	}
	next := cloneReceipt(*gr)
	next.Lines = stored.Lines
	next.Version++
	putWithUndo(ctx, r.s.receipts, gr.ID, next)
	gr.Version = next.Version
	return nil
}

// GetByID implements receipts.Repository.
func (r *ReceiptRepo) GetByID(_ context.Context, receiptID id.ID) (*receipts.GoodsReceipt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	gr, ok := r.s.receipts[receiptID]
	if !ok {
		return nil, apperror.NewNotFound("goods receipt", receiptID)
	}
	out := cloneReceipt(gr)
	return &out, nil
}

// GetForUpdate implements receipts.Repository.
func (r *ReceiptRepo) GetForUpdate(ctx context.Context, receiptID id.ID) (*receipts.GoodsReceipt, error) {
	if err := requireTx(ctx, "get receipt for update"); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, receiptID)
}

// List implements receipts.Repository.
func (r *ReceiptRepo) List(_ context.Context, f receipts.ListFilter) ([]receipts.GoodsReceipt, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []receipts.GoodsReceipt
	for _, gr := range r.s.receipts {
		switch {
		case len(f.Statuses) > 0 && !slices.Contains(f.Statuses, gr.Status):
			continue
		case f.ShipmentID != nil && gr.ShipmentID != *f.ShipmentID:
			continue
		}
		gr.Lines = nil
		out = append(out, gr)
	}
	slices.SortFunc(out, func(a, b receipts.GoodsReceipt) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), id.Compare(b.ID, a.ID))
	})
	return page(out, f.Offset, f.Limit), int64(len(out)), nil
}

// ListByShipment implements receipts.Repository.
func (r *ReceiptRepo) ListByShipment(_ context.Context, shipmentID id.ID) ([]receipts.GoodsReceipt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []receipts.GoodsReceipt
	for _, gr := range r.s.receipts {
		if gr.ShipmentID == shipmentID {
			out = append(out, cloneReceipt(gr))
		}
	}
	slices.SortFunc(out, func(a, b receipts.GoodsReceipt) int { return id.Compare(a.ID, b.ID) })
	return out, nil
}

// ReturnRepo implements returns.Repository.
type ReturnRepo struct {
	s *Store
}

var _ returns.Repository = (*ReturnRepo)(nil)

// Returns returns the return request repository of the store.
func (s *Store) Returns() *ReturnRepo { return &ReturnRepo{s: s} }

func cloneReturn(r returns.ReturnRequest) returns.ReturnRequest {
	r.Lines = slices.Clone(r.Lines)
	return r
}

// Create implements returns.Repository.
func (r *ReturnRepo) Create(ctx context.Context, rr *returns.ReturnRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.returns[rr.ID]; ok {
		return apperror.NewDuplicate("return request", "id", rr.ID.String())
	}
	putWithUndo(ctx, r.s.returns, rr.ID, cloneReturn(*rr))
	return nil
}

// Update implements returns.Repository.
func (r *ReturnRepo) Update(ctx context.Context, rr *returns.ReturnRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.returns[rr.ID]
	if !ok {
		return apperror.NewNotFound("return request", rr.ID)
	}
	if stored.Version != rr.Version {
		return apperror.NewConcurrentModification("return request", rr.ID)
	}
	next := cloneReturn(*rr)
	next.Lines = stored.Lines
	next.Version++
	putWithUndo(ctx, r.s.returns, rr.ID, next)
	rr.Version = next.Version
	return nil
}

// GetByID implements returns.Repository.
func (r *ReturnRepo) GetByID(_ context.Context, returnID id.ID) (*returns.ReturnRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rr, ok := r.s.returns[returnID]
	if !ok {
		return nil, apperror.NewNotFound("return request", returnID)
	}
	out := cloneReturn(rr)
	return &out, nil
}

// GetForUpdate implements returns.Repository.
func (r *ReturnRepo) GetForUpdate(ctx context.Context, returnID id.ID) (*returns.ReturnRequest, error) {
	if err := requireTx(ctx, "get return for update"); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, returnID)
}

// List implements returns.Repository.
func (r *ReturnRepo) List(_ context.Context, f returns.ListFilter) ([]returns.ReturnRequest, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []returns.ReturnRequest
	for _, rr := range r.s.returns {
		switch {
		case len(f.Statuses) > 0 && !slices.Contains(f.Statuses, rr.Status):
			continue
		case f.StoreID != nil && rr.StoreID != *f.StoreID:
			continue
		}
		rr.Lines = nil
		out = append(out, rr)
	}
	slices.SortFunc(out, func(a, b returns.ReturnRequest) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), id.Compare(b.ID, a.ID))
	})
	return page(out, f.Offset, f.Limit), int64(len(out)), nil
}

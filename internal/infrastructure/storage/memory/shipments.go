package memory

import (
	"cmp"
	"context"
	"slices"

	"storeflow/internal/core/apperror"
	"storeflow/internal/core/id"
	"storeflow/internal/domain/shipments"
)

// ShipmentRepo implements shipments.Repository.
type ShipmentRepo struct {
	s *Store
}

var _ shipments.Repository = (*ShipmentRepo)(nil)

// Shipments returns the shipment repository of the store.
func (s *Store) Shipments() *ShipmentRepo { return &ShipmentRepo{s: s} }

func cloneShipment(sh shipments.Shipment) shipments.Shipment {
	sh.Lines = slices.Clone(sh.Lines)
	for i := range sh.Lines {
		sh.Lines[i].Lots = slices.Clone(sh.Lines[i].Lots)
	}
	return sh
}

// Create implements shipments.Repository.
func (r *ShipmentRepo) Create(ctx context.Context, sh *shipments.Shipment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.shipments[sh.ID]; ok {
		return apperror.NewDuplicate("shipment", "id", sh.ID.String())
	}
	putWithUndo(ctx, r.s.shipments, sh.ID, cloneShipment(*sh))
	return nil
}

// Update implements shipments.Repository. Lines are immutable and kept as stored.
func (r *ShipmentRepo) Update(ctx context.Context, sh *shipments.Shipment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.shipments[sh.ID]
	if !ok {
		return apperror.NewNotFound("shipment", sh.ID)
	}
	if stored.Version != sh.Version {
		return apperror.NewConcurrentModification("shipment", sh.ID)
	}
	next := *sh
	next.Lines = stored.Lines
	next.Version++
	putWithUndo(ctx, r.s.shipments, sh.ID, next)
	sh.Version = next.Version
	return nil
}

// GetByID implements shipments.Repository.
func (r *ShipmentRepo) GetByID(_ context.Context, shipmentID id.ID) (*shipments.Shipment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	sh, ok := r.s.shipments[shipmentID]
	if !ok {
		return nil, apperror.NewNotFound("shipment", shipmentID)
	}
	out := cloneShipment(sh)
	return &out, nil
}

// GetForUpdate implements shipments.Repository.
func (r *ShipmentRepo) GetForUpdate(ctx context.Context, shipmentID id.ID) (*shipments.Shipment, error) {
	if err := requireTx(ctx, "get shipment for update"); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, shipmentID)
}

// List implements shipments.Repository.
func (r *ShipmentRepo) List(_ context.Context, f shipments.ListFilter) ([]shipments.Shipment, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []shipments.Shipment
	for _, sh := range r.s.shipments {
		switch {
		case len(f.Statuses) > 0 && !slices.Contains(f.Statuses, sh.Status):
			continue
		case f.OrderID != nil && sh.OrderID != *f.OrderID:
			continue
		case f.FromLocationID != nil && sh.FromLocationID != *f.FromLocationID:
			continue
		case f.ToLocationID != nil && sh.ToLocationID != *f.ToLocationID:
			continue
		}
		sh.Lines = nil
		out = append(out, sh)
	}
	slices.SortFunc(out, func(a, b shipments.Shipment) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), id.Compare(b.ID, a.ID))
	})
	return page(out, f.Offset, f.Limit), int64(len(out)), nil
}

// ListByOrder implements shipments.Repository.
func (r *ShipmentRepo) ListByOrder(_ context.Context, orderID id.ID) ([]shipments.Shipment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []shipments.Shipment
	for _, sh := range r.s.shipments {
		if sh.OrderID == orderID {
			out = append(out, cloneShipment(sh))
		}
	}
	slices.SortFunc(out, func(a, b shipments.Shipment) int { return id.Compare(a.ID, b.ID) })
	return out, nil
}

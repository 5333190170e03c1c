package lots

import (
	"context"
	"fmt"
	"time"

	"storeflow/internal/core/apperror"
	"storeflow/internal/core/id"
	"storeflow/pkg/logger"
)

// Service manages the lot registry.
type Service struct {
	repo Repository
}

// NewService creates a new lot service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateLotRequest carries the fields of a new lot.
type CreateLotRequest struct {
	ItemID  id.ID
	LotCode string
	MfgDate time.Time
	ExpDate *time.Time
}

// CreateLot registers a lot. Lot codes are globally unique.
func (s *Service) CreateLot(ctx context.Context, req CreateLotRequest) (*Lot, error) {
	now := time.Now().UTC()
	lot := &Lot{
		ID:        id.New(),
		ItemID:    req.ItemID,
		LotCode:   req.LotCode,
		MfgDate:   req.MfgDate,
		ExpDate:   req.ExpDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := lot.Validate(ctx); err != nil {
		return nil, err
	}
	if err := s.ensureCodeFree(ctx, lot.LotCode, id.Nil); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, lot); err != nil {
		return nil, err
	}

	logger.Info(ctx, "lot created", "lot_id", lot.ID, "lot_code", lot.LotCode, "item_id", lot.ItemID)
	return lot, nil
}

// UpdateLot applies a data-entry correction. The item of a lot cannot change.
func (s *Service) UpdateLot(ctx context.Context, lotID id.ID, code string, mfg time.Time, exp *time.Time) (*Lot, error) {
	lot, err := s.repo.GetByID(ctx, lotID)
	if err != nil {
		return nil, err
	}
	lot.LotCode = code
	lot.MfgDate = mfg
	lot.ExpDate = exp
	lot.UpdatedAt = time.Now().UTC()
	if err := lot.Validate(ctx); err != nil {
		return nil, err
	}
	if err := s.ensureCodeFree(ctx, lot.LotCode, lot.ID); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, lot); err != nil {
		return nil, err
	}
	return lot, nil
}

func (s *Service) ensureCodeFree(ctx context.Context, code string, self id.ID) error {
	existing, err := s.repo.GetByCode(ctx, code)
	switch {
	case apperror.IsNotFound(err):
		return nil
	case err != nil:
		return fmt.Errorf("lookup lot code: %w", err)
	case existing.ID != self:
		return apperror.NewDuplicate("lot", "lot_code", code)
	}
	return nil
}

// GetLot returns a lot by id.
func (s *Service) GetLot(ctx context.Context, lotID id.ID) (*Lot, error) {
	return s.repo.GetByID(ctx, lotID)
}

// GetMany returns the lots among ids that exist.
func (s *Service) GetMany(ctx context.Context, ids []id.ID) (map[id.ID]Lot, error) {
	if len(ids) == 0 {
		return map[id.ID]Lot{}, nil
	}
	return s.repo.GetMany(ctx, ids)
}

// ListLots returns lots matching the filter and the total count.
func (s *Service) ListLots(ctx context.Context, filter ListFilter) ([]Lot, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, filter)
}

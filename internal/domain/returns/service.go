package returns

import (
	"context"
	"fmt"
	"time"

	"storeflow/internal/core/apperror"
	appctx "storeflow/internal/core/context"
	"storeflow/internal/core/entity"
	"storeflow/internal/core/id"
	"storeflow/internal/core/numerator"
	"storeflow/internal/core/tx"
	"storeflow/internal/core/types"
	"storeflow/internal/domain"
	"storeflow/internal/domain/events"
	"storeflow/internal/domain/ledger"
	"storeflow/internal/domain/lots"
	"storeflow/pkg/logger"
)

// Service runs the return workflow.
type Service struct {
	repo      Repository
	ledger    *ledger.Service
	lots      *lots.Service
	numerator numerator.Generator
	txManager tx.Manager
	publisher events.Publisher
}

// NewService creates a new return service.
func NewService(
	repo Repository,
	ledgerSvc *ledger.Service,
	lotSvc *lots.Service,
	gen numerator.Generator,
	txManager tx.Manager,
	publisher events.Publisher,
) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		repo:      repo,
		ledger:    ledgerSvc,
		lots:      lotSvc,
		numerator: gen,
		txManager: txManager,
		publisher: publisher,
	}
}

// LineInput is one item to return.
type LineInput struct {
	ItemID      id.ID
	LotID       *id.ID
	Quantity    types.Quantity
	UOM         string
	Reason      string
	DefectType  DefectType
	Disposition Disposition
}

// CreateRequest carries a new return request.
type CreateRequest struct {
	StoreID       id.ID
	DestinationID *id.ID
	ShipmentID    *id.ID
	Reason        string
	Lines         []LineInput
}

// Create files a PENDING return request.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*ReturnRequest, error) {
	r := &ReturnRequest{
		BaseDocument:  entity.NewBaseDocument(),
		StoreID:       req.StoreID,
		DestinationID: req.DestinationID,
		ShipmentID:    req.ShipmentID,
		Status:        StatusPending,
		Reason:        req.Reason,
	}
	r.CreatedBy = appctx.GetActor(ctx)
	var lotIDs []id.ID
	for i, in := range req.Lines {
		l := Line{
			ID:          id.New(),
			ReturnID:    r.ID,
			LineNo:      i + 1,
			ItemID:      in.ItemID,
			LotID:       in.LotID,
			Quantity:    in.Quantity,
			UOM:         in.UOM,
			Reason:      in.Reason,
			DefectType:  in.DefectType,
			Disposition: in.Disposition,
		}
		if l.DefectType == "" {
			l.DefectType = DefectOther
		}
		if l.Disposition == "" {
			l.Disposition = DispositionDestroy
		}
		if l.LotID != nil {
			lotIDs = append(lotIDs, *l.LotID)
		}
		r.Lines = append(r.Lines, l)
	}
	if err := r.Validate(ctx); err != nil {
		return nil, err
	}

	found, err := s.lots.GetMany(ctx, lotIDs)
	if err != nil {
		return nil, fmt.Errorf("load lots: %w", err)
	}
	for _, l := range r.Lines {
		if l.LotID == nil {
			continue
		}
		lot, ok := found[*l.LotID]
		if !ok {
			return nil, apperror.NewNotFound("lot", *l.LotID)
		}
		if lot.ItemID != l.ItemID {
			return nil, apperror.NewValidation(fmt.Sprintf("line %d: lot %s belongs to another item", l.LineNo, lot.LotCode))
		}
	}

	number, err := s.numerator.Next(ctx, numerator.Returns, r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("generate number: %w", err)
	}
	r.Number = number

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, r)
	})
	if err != nil {
		return nil, fmt.Errorf("create return: %w", err)
	}

	logger.Info(ctx, "return request created", "return_id", r.ID, "number", r.Number, "store_id", r.StoreID)
	return r, nil
}

// Approve accepts a PENDING request.
func (s *Service) Approve(ctx context.Context, returnID id.ID) (*ReturnRequest, error) {
	return s.mutate(ctx, returnID, func(ctx context.Context, r *ReturnRequest) error {
		if err := r.TransitionTo(StatusApproved); err != nil {
			return err
		}
		now := time.Now().UTC()
		r.ApprovedBy = appctx.GetActor(ctx)
		r.ApprovedAt = &now
		return nil
	})
}

// Reject refuses a request that has not been processed.
func (s *Service) Reject(ctx context.Context, returnID id.ID, reason string) (*ReturnRequest, error) {
	return s.mutate(ctx, returnID, func(_ context.Context, r *ReturnRequest) error {
		if err := r.TransitionTo(StatusRejected); err != nil {
			return err
		}
		r.RejectionReason = reason
		return nil
	})
}

// Process moves the returned goods out of the store, and into the destination for
// RESTOCK lines when one is set. All lines post or none.
func (s *Service) Process(ctx context.Context, returnID id.ID) (*ReturnRequest, error) {
	return s.mutate(ctx, returnID, func(ctx context.Context, r *ReturnRequest) error {
		if err := r.TransitionTo(StatusCompleted); err != nil {
			return err
		}

		ref := id.ToPtr(r.ID)
		var postings []ledger.Posting
		for _, l := range r.Lines {
			postings = append(postings, ledger.Posting{
				Key:      ledger.NewKey(r.StoreID, l.ItemID, l.LotID),
				Quantity: l.Quantity.Neg(),
				UOM:      l.UOM,
				Kind:     ledger.KindReturnOut,
				RefType:  ledger.RefReturnRequest,
				RefID:    ref,
				Notes:    r.Number,
			})
			if l.Disposition == DispositionRestock && r.DestinationID != nil {
				postings = append(postings, ledger.Posting{
					Key:      ledger.NewKey(*r.DestinationID, l.ItemID, l.LotID),
					Quantity: l.Quantity,
					UOM:      l.UOM,
					Kind:     ledger.KindTransferIn,
					RefType:  ledger.RefReturnRequest,
					RefID:    ref,
					Notes:    r.Number,
				})
			}
		}
		if _, err := s.ledger.PostBatch(ctx, postings); err != nil {
			return err
		}

		now := time.Now().UTC()
		r.ProcessedAt = &now
		logger.Info(ctx, "return processed", "return_id", r.ID, "number", r.Number, "postings", len(postings))
		return s.publisher.Publish(ctx, events.New(events.AggregateReturn, r.ID, events.ReturnProcessed, map[string]any{
			"number":   r.Number,
			"store_id": r.StoreID,
			"lines":    len(r.Lines),
		}))
	})
}

func (s *Service) mutate(ctx context.Context, returnID id.ID, fn func(context.Context, *ReturnRequest) error) (*ReturnRequest, error) {
	var out *ReturnRequest
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		r, err := s.repo.GetForUpdate(ctx, returnID)
		if err != nil {
			return err
		}
		if err := fn(ctx, r); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

// Get returns a return request with lines.
func (s *Service) Get(ctx context.Context, returnID id.ID) (*ReturnRequest, error) {
	return s.repo.GetByID(ctx, returnID)
}

// List returns return request headers.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[ReturnRequest], error) {
	lf := domain.ListFilter{Limit: filter.Limit, Offset: filter.Offset}
	lf.Normalize()
	filter.Limit, filter.Offset = lf.Limit, lf.Offset

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return domain.ListResult[ReturnRequest]{}, fmt.Errorf("list returns: %w", err)
	}
	return domain.ListResult[ReturnRequest]{Items: items, TotalCount: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

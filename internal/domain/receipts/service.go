package receipts

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
	"storeflow/internal/domain/orders"
	"storeflow/internal/domain/shipments"
	"storeflow/pkg/logger"
)

// Service runs the goods receipt workflow.
type Service struct {
	repo      Repository
	ledger    *ledger.Service
	shipments *shipments.Service
	orders    *orders.Service
	numerator numerator.Generator
	txManager tx.Manager
	publisher events.Publisher
}

// NewService creates a new goods receipt service.
func NewService(
	repo Repository,
	ledgerSvc *ledger.Service,
	shipmentSvc *shipments.Service,
	orderSvc *orders.Service,
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
		shipments: shipmentSvc,
		orders:    orderSvc,
		numerator: gen,
		txManager: txManager,
		publisher: publisher,
	}
}

// LineInput reports what arrived for one shipment line.
type LineInput struct {
	ShipmentLineID  id.ID
	QtyReceived     types.Quantity
	QtyRejected     types.Quantity
	RejectionReason string
}

// CreateRequest carries a new receipt. Without lines every shipment line is taken as fully received.
type CreateRequest struct {
	ShipmentID   id.ID
	ReceivedDate time.Time
	Notes        string
	Lines        []LineInput
}

func receivable(s shipments.Status) bool {
	return s == shipments.StatusShipped || s == shipments.StatusInTransit
}

// Create drafts a receipt against a SHIPPED or IN_TRANSIT shipment.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*GoodsReceipt, error) {
	sh, err := s.shipments.Get(ctx, req.ShipmentID)
	if err != nil {
		return nil, err
	}
	if !receivable(sh.Status) {
		return nil, apperror.NewInvalidState("shipment", sh.Status, "receiving")
	}

	r := &GoodsReceipt{
		BaseDocument: entity.NewBaseDocument(),
		ShipmentID:   sh.ID,
		ReceivedDate: req.ReceivedDate,
		Status:       StatusDraft,
		Notes:        req.Notes,
	}
	r.CreatedBy = appctx.GetActor(ctx)
	if r.ReceivedDate.IsZero() {
		r.ReceivedDate = r.CreatedAt
	}

	inputs := req.Lines
	if len(inputs) == 0 {
		for _, sl := range sh.Lines {
			inputs = append(inputs, LineInput{ShipmentLineID: sl.ID, QtyReceived: sl.Quantity})
		}
	}
	for i, in := range inputs {
		sl, ok := sh.Line(in.ShipmentLineID)
		if !ok {
			return nil, apperror.NewValidation(fmt.Sprintf("line %d: shipment line does not belong to shipment %s", i+1, sh.Number)).
				WithDetail("shipment_line_id", in.ShipmentLineID)
		}
		if in.QtyReceived+in.QtyRejected > sl.Quantity {
			return nil, apperror.NewValidation(fmt.Sprintf("line %d: received and rejected exceed shipped quantity", i+1)).
				WithDetail("shipped", sl.Quantity.String()).
				WithDetail("received", in.QtyReceived.String()).
				WithDetail("rejected", in.QtyRejected.String())
		}
		r.Lines = append(r.Lines, Line{
			ID:              id.New(),
			ReceiptID:       r.ID,
			LineNo:          i + 1,
			ShipmentLineID:  sl.ID,
			ItemID:          sl.ItemID,
			QtyReceived:     in.QtyReceived,
			QtyRejected:     in.QtyRejected,
			RejectionReason: in.RejectionReason,
		})
	}
	if err := r.Validate(ctx); err != nil {
		return nil, err
	}

	number, err := s.numerator.Next(ctx, numerator.Receipts, r.ReceivedDate)
	if err != nil {
		return nil, fmt.Errorf("generate number: %w", err)
	}
	r.Number = number

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, r)
	})
	if err != nil {
		return nil, fmt.Errorf("create receipt: %w", err)
	}

	logger.Info(ctx, "goods receipt created", "receipt_id", r.ID, "number", r.Number, "shipment_id", r.ShipmentID)
	return r, nil
}

// Confirm books the received quantities into the destination and cascades the
// shipment to DELIVERED and the order to RECEIVED. A confirmed receipt cannot be
// confirmed again.
func (s *Service) Confirm(ctx context.Context, receiptID id.ID) (*GoodsReceipt, error) {
	var out *GoodsReceipt
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		r, err := s.repo.GetForUpdate(ctx, receiptID)
		if err != nil {
			return err
		}
		if r.Status != StatusDraft {
			return apperror.NewInvalidTransition("goods receipt", r.Status, StatusReceived).WithDetail("receipt_id", r.ID)
		}
		sh, err := s.shipments.Get(ctx, r.ShipmentID)
		if err != nil {
			return err
		}
		if !receivable(sh.Status) {
			return apperror.NewInvalidState("shipment", sh.Status, "receiving")
		}

		postings, err := s.postings(r, sh)
		if err != nil {
			return err
		}
		if len(postings) > 0 {
			if _, err := s.ledger.PostBatch(ctx, postings); err != nil {
				return err
			}
		}

		if err := s.shipments.MarkDelivered(ctx, sh.ID); err != nil {
			return err
		}
		if err := s.orders.MarkReceived(ctx, sh.OrderID); err != nil {
			return err
		}
		for _, l := range r.Lines {
			sl, _ := sh.Line(l.ShipmentLineID)
			if sl == nil || sl.OrderLineID == nil || l.QtyReceived.IsZero() {
				continue
			}
			if err := s.orders.RecordReceived(ctx, *sl.OrderLineID, l.QtyReceived); err != nil {
				return fmt.Errorf("record received: %w", err)
			}
		}

		now := time.Now().UTC()
		r.Status = StatusReceived
		r.ConfirmedAt = &now
		r.ReceivedBy = appctx.GetActor(ctx)
		r.Touch()
		if err := s.repo.Update(ctx, r); err != nil {
			return err
		}

		logger.Info(ctx, "goods receipt confirmed", "receipt_id", r.ID, "number", r.Number, "shipment", sh.Number)
		out = r
		return s.publisher.Publish(ctx, events.New(events.AggregateReceipt, r.ID, events.ReceiptConfirmed, map[string]any{
			"number":      r.Number,
			"shipment_id": sh.ID,
			"order_id":    sh.OrderID,
			"store_id":    sh.ToLocationID,
		}))
	})
	return out, err
}

// postings spreads each received quantity over the shipment line's lots in
// allocation order. The transfer references the shipment so both legs share it.
func (s *Service) postings(r *GoodsReceipt, sh *shipments.Shipment) ([]ledger.Posting, error) {
	ref := id.ToPtr(sh.ID)
	var out []ledger.Posting
	for _, l := range r.Lines {
		if l.QtyReceived.IsZero() {
			continue
		}
		sl, ok := sh.Line(l.ShipmentLineID)
		if !ok {
			return nil, apperror.NewValidation(fmt.Sprintf("line %d: shipment line not found", l.LineNo))
		}
		remaining := l.QtyReceived
		for _, p := range sl.Portions() {
			if remaining.IsZero() {
				break
			}
			qty := types.MinQuantity(remaining, p.Quantity)
			remaining -= qty
			out = append(out, ledger.Posting{
				Key:      ledger.NewKey(sh.ToLocationID, sl.ItemID, p.LotID),
				Quantity: qty,
				UOM:      sl.UOM,
				Kind:     ledger.KindTransferIn,
				RefType:  ledger.RefShipment,
				RefID:    ref,
				Notes:    r.Number,
			})
		}
	}
	return out, nil
}

// Cancel discards a DRAFT receipt.
func (s *Service) Cancel(ctx context.Context, receiptID id.ID) (*GoodsReceipt, error) {
	var out *GoodsReceipt
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		r, err := s.repo.GetForUpdate(ctx, receiptID)
		if err != nil {
			return err
		}
		if r.Status != StatusDraft {
			return apperror.NewInvalidTransition("goods receipt", r.Status, StatusCancelled)
		}
		r.Status = StatusCancelled
		r.Touch()
		if err := s.repo.Update(ctx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

// Get returns a receipt with lines.
func (s *Service) Get(ctx context.Context, receiptID id.ID) (*GoodsReceipt, error) {
	return s.repo.GetByID(ctx, receiptID)
}

// List returns receipt headers.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[GoodsReceipt], error) {
	lf := domain.ListFilter{Limit: filter.Limit, Offset: filter.Offset}
	lf.Normalize()
	filter.Limit, filter.Offset = lf.Limit, lf.Offset

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return domain.ListResult[GoodsReceipt]{}, fmt.Errorf("list receipts: %w", err)
	}
	return domain.ListResult[GoodsReceipt]{Items: items, TotalCount: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// ListByShipment returns every receipt of a shipment with lines.
func (s *Service) ListByShipment(ctx context.Context, shipmentID id.ID) ([]GoodsReceipt, error) {
	return s.repo.ListByShipment(ctx, shipmentID)
}

package shipments

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
	"storeflow/internal/domain/orders"
	"storeflow/pkg/logger"
)

// Service runs the shipment workflow. Stock moves only through the ledger.
type Service struct {
	repo      Repository
	ledger    *ledger.Service
	orders    *orders.Service
	lots      *lots.Service
	numerator numerator.Generator
	txManager tx.Manager
	publisher events.Publisher
}

// NewService creates a new shipment service.
func NewService(
	repo Repository,
	ledgerSvc *ledger.Service,
	orderSvc *orders.Service,
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
		orders:    orderSvc,
		lots:      lotSvc,
		numerator: gen,
		txManager: txManager,
		publisher: publisher,
	}
}

// LineInput is the caller-supplied part of a shipment line.
// Without OrderLineID the line is matched to the order line of the same item.
type LineInput struct {
	OrderLineID *id.ID
	ItemID      id.ID
	Quantity    types.Quantity
	UOM         string
	Lots        []LotAllocation
}

// CreateRequest carries a new shipment.
type CreateRequest struct {
	OrderID        id.ID
	FromLocationID id.ID
	ToLocationID   id.ID // defaults to the order's store
	ShipDate       time.Time
	Notes          string
	Lines          []LineInput
}

// Create drafts a shipment for an APPROVED or PROCESSING order and moves the order to PROCESSING.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Shipment, error) {
	order, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != orders.StatusApproved && order.Status != orders.StatusProcessing {
		return nil, apperror.NewInvalidState("order", order.Status, "shipment creation")
	}

	sh := &Shipment{
		BaseDocument:   entity.NewBaseDocument(),
		OrderID:        order.ID,
		FromLocationID: req.FromLocationID,
		ToLocationID:   req.ToLocationID,
		ShipDate:       req.ShipDate,
		Status:         StatusDraft,
		Notes:          req.Notes,
	}
	sh.CreatedBy = appctx.GetActor(ctx)
	if id.IsNil(sh.ToLocationID) {
		sh.ToLocationID = order.StoreID
	}
	if sh.ShipDate.IsZero() {
		sh.ShipDate = sh.CreatedAt
	}

	for i, in := range req.Lines {
		ol, err := resolveOrderLine(order, in)
		if err != nil {
			return nil, apperror.NewValidation(fmt.Sprintf("line %d: %s", i+1, err)).WithDetail("item_id", in.ItemID)
		}
		uom := in.UOM
		if uom == "" {
			uom = ol.UOM
		}
		sh.Lines = append(sh.Lines, Line{
			ID:          id.New(),
			ShipmentID:  sh.ID,
			LineNo:      i + 1,
			OrderLineID: id.ToPtr(ol.ID),
			ItemID:      ol.ItemID,
			Quantity:    in.Quantity,
			UOM:         uom,
			Lots:        in.Lots,
		})
	}
	if err := sh.Validate(ctx); err != nil {
		return nil, err
	}
	if err := s.checkLots(ctx, sh); err != nil {
		return nil, err
	}

	number, err := s.numerator.Next(ctx, numerator.Shipments, sh.ShipDate)
	if err != nil {
		return nil, fmt.Errorf("generate number: %w", err)
	}
	sh.Number = number

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, sh); err != nil {
			return fmt.Errorf("create shipment: %w", err)
		}
		return s.orders.MarkProcessing(ctx, sh.OrderID)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "shipment created", "shipment_id", sh.ID, "number", sh.Number, "order_id", sh.OrderID)
	return sh, nil
}

func resolveOrderLine(o *orders.Order, in LineInput) (*orders.Line, error) {
	if in.OrderLineID != nil {
		ol, ok := o.Line(*in.OrderLineID)
		if !ok {
			return nil, fmt.Errorf("order line %s does not belong to order %s", *in.OrderLineID, o.Number)
		}
		if !id.IsNil(in.ItemID) && in.ItemID != ol.ItemID {
			return nil, fmt.Errorf("item does not match order line %d", ol.LineNo)
		}
		return ol, nil
	}
	ol, ok := o.LineForItem(in.ItemID)
	if !ok {
		return nil, fmt.Errorf("item is not on order %s", o.Number)
	}
	return ol, nil
}

// checkLots verifies that every allocated lot exists and belongs to its line's item.
func (s *Service) checkLots(ctx context.Context, sh *Shipment) error {
	found, err := s.lots.GetMany(ctx, sh.LotIDs())
	if err != nil {
		return fmt.Errorf("load lots: %w", err)
	}
	for _, l := range sh.Lines {
		for _, a := range l.Lots {
			lot, ok := found[a.LotID]
			if !ok {
				return apperror.NewNotFound("lot", a.LotID)
			}
			if lot.ItemID != l.ItemID {
				return apperror.NewValidation(fmt.Sprintf("line %d: lot %s belongs to another item", l.LineNo, lot.LotCode)).
					WithDetail("lot_id", a.LotID)
			}
		}
	}
	return nil
}

// Pick reserves the shipment's stock at the source and moves it to PICKED.
func (s *Service) Pick(ctx context.Context, shipmentID id.ID) (*Shipment, error) {
	return s.mutate(ctx, shipmentID, func(ctx context.Context, sh *Shipment) error {
		if err := sh.TransitionTo(StatusPicked); err != nil {
			return err
		}
		for _, l := range sh.Lines {
			for _, p := range l.Portions() {
				if err := s.ledger.Reserve(ctx, ledger.NewKey(sh.FromLocationID, l.ItemID, p.LotID), p.Quantity); err != nil {
					return err
				}
			}
		}
		logger.Info(ctx, "shipment picked", "shipment_id", sh.ID, "number", sh.Number)
		return nil
	})
}

// Dispatch posts TRANSFER_OUT at the source for every line and lot, all or nothing.
func (s *Service) Dispatch(ctx context.Context, shipmentID id.ID) (*Shipment, error) {
	return s.mutate(ctx, shipmentID, func(ctx context.Context, sh *Shipment) error {
		from := sh.Status
		if err := sh.TransitionTo(StatusShipped); err != nil {
			return err
		}
		if from == StatusPicked {
			if err := s.releasePick(ctx, sh); err != nil {
				return err
			}
		}

		if _, err := s.ledger.PostBatch(ctx, s.postings(sh, ledger.KindTransferOut, -1, "")); err != nil {
			return err
		}
		now := time.Now().UTC()
		sh.DispatchedAt = &now

		if err := s.orders.MarkShipped(ctx, sh.OrderID); err != nil {
			return err
		}
		for _, l := range sh.Lines {
			if l.OrderLineID == nil {
				continue
			}
			if err := s.orders.RecordShipped(ctx, *l.OrderLineID, l.Quantity); err != nil {
				return fmt.Errorf("record shipped: %w", err)
			}
		}

		logger.Info(ctx, "shipment dispatched", "shipment_id", sh.ID, "number", sh.Number, "lines", len(sh.Lines))
		return s.publisher.Publish(ctx, events.New(events.AggregateShipment, sh.ID, events.ShipmentDispatched, map[string]any{
			"number":     sh.Number,
			"order_id":   sh.OrderID,
			"from":       sh.FromLocationID,
			"to":         sh.ToLocationID,
			"dispatched": now,
			"line_count": len(sh.Lines),
		}))
	})
}

// MarkInTransit moves a SHIPPED shipment to IN_TRANSIT.
func (s *Service) MarkInTransit(ctx context.Context, shipmentID id.ID) (*Shipment, error) {
	return s.mutate(ctx, shipmentID, func(_ context.Context, sh *Shipment) error {
		return sh.TransitionTo(StatusInTransit)
	})
}

// MarkDelivered moves a dispatched shipment to DELIVERED. Driven by receipt confirmation.
func (s *Service) MarkDelivered(ctx context.Context, shipmentID id.ID) error {
	_, err := s.mutate(ctx, shipmentID, func(_ context.Context, sh *Shipment) error {
		return sh.TransitionTo(StatusDelivered)
	})
	return err
}

// Cancel cancels a shipment that has not been delivered. A picked shipment gives its
// reservations back. A dispatched one is reversed with TRANSFER_IN at the source, its
// shipped quantities are taken off the order's fulfillment, and a SHIPPED order with
// no other dispatched shipment returns to PROCESSING.
func (s *Service) Cancel(ctx context.Context, shipmentID id.ID, reason string) (*Shipment, error) {
	return s.mutate(ctx, shipmentID, func(ctx context.Context, sh *Shipment) error {
		from := sh.Status
		if err := sh.TransitionTo(StatusCancelled); err != nil {
			return err
		}
		switch {
		case from == StatusPicked:
			if err := s.releasePick(ctx, sh); err != nil {
				return err
			}
		case from.Dispatched():
			notes := "shipment cancelled"
			if reason != "" {
				notes += ": " + reason
			}
			if _, err := s.orders.GetForUpdate(ctx, sh.OrderID); err != nil {
				return err
			}
			if _, err := s.ledger.PostBatch(ctx, s.postings(sh, ledger.KindTransferIn, 1, notes)); err != nil {
				return err
			}
			for _, l := range sh.Lines {
				if l.OrderLineID == nil {
					continue
				}
				if err := s.orders.RecordShipped(ctx, *l.OrderLineID, l.Quantity.Neg()); err != nil {
					return fmt.Errorf("reverse shipped: %w", err)
				}
			}
			if err := s.reopenOrder(ctx, sh); err != nil {
				return err
			}
		}

		logger.Info(ctx, "shipment cancelled", "shipment_id", sh.ID, "number", sh.Number, "from", from)
		return s.publisher.Publish(ctx, events.New(events.AggregateShipment, sh.ID, events.ShipmentCancelled, map[string]any{
			"number":   sh.Number,
			"order_id": sh.OrderID,
			"from":     from,
			"reversed": from.Dispatched(),
			"reason":   reason,
		}))
	})
}

// releasePick gives back what is still reserved of the shipment's pick.
func (s *Service) releasePick(ctx context.Context, sh *Shipment) error {
	for _, l := range sh.Lines {
		for _, p := range l.Portions() {
			key := ledger.NewKey(sh.FromLocationID, l.ItemID, p.LotID)
			released, err := s.ledger.ReleaseUpTo(ctx, key, p.Quantity)
			if err != nil {
				return err
			}
			if released < p.Quantity {
				logger.Warn(ctx, "pick reservation already released", "shipment_id", sh.ID, "key", key.String(),
					"picked", p.Quantity.String(), "released", released.String())
			}
		}
	}
	return nil
}

// reopenOrder moves the order back to PROCESSING when sh was its only dispatched shipment.
func (s *Service) reopenOrder(ctx context.Context, sh *Shipment) error {
	list, err := s.repo.ListByOrder(ctx, sh.OrderID)
	if err != nil {
		return fmt.Errorf("list shipments: %w", err)
	}
	for _, other := range list {
		if other.ID != sh.ID && other.Status.Dispatched() {
			return nil
		}
	}
	return s.orders.Reopen(ctx, sh.OrderID)
}

// postings builds one posting per line portion at the source location.
func (s *Service) postings(sh *Shipment, kind ledger.Kind, sign int, notes string) []ledger.Posting {
	ref := id.ToPtr(sh.ID)
	if notes == "" {
		notes = sh.Number
	}
	var out []ledger.Posting
	for _, l := range sh.Lines {
		for _, p := range l.Portions() {
			qty := p.Quantity
			if sign < 0 {
				qty = qty.Neg()
			}
			out = append(out, ledger.Posting{
				Key:      ledger.NewKey(sh.FromLocationID, l.ItemID, p.LotID),
				Quantity: qty,
				UOM:      l.UOM,
				Kind:     kind,
				RefType:  ledger.RefShipment,
				RefID:    ref,
				Notes:    notes,
			})
		}
	}
	return out
}

// mutate loads the shipment under lock, applies fn and saves the header, in one transaction.
func (s *Service) mutate(ctx context.Context, shipmentID id.ID, fn func(context.Context, *Shipment) error) (*Shipment, error) {
	var out *Shipment
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		sh, err := s.repo.GetForUpdate(ctx, shipmentID)
		if err != nil {
			return err
		}
		if err := fn(ctx, sh); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, sh); err != nil {
			return err
		}
		out = sh
		return nil
	})
	return out, err
}

// Get returns a shipment with lines.
func (s *Service) Get(ctx context.Context, shipmentID id.ID) (*Shipment, error) {
	return s.repo.GetByID(ctx, shipmentID)
}

// List returns shipment headers.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[Shipment], error) {
	lf := domain.ListFilter{Limit: filter.Limit, Offset: filter.Offset}
	lf.Normalize()
	filter.Limit, filter.Offset = lf.Limit, lf.Offset

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return domain.ListResult[Shipment]{}, fmt.Errorf("list shipments: %w", err)
	}
	return domain.ListResult[Shipment]{Items: items, TotalCount: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// ListByOrder returns every shipment of an order with lines.
func (s *Service) ListByOrder(ctx context.Context, orderID id.ID) ([]Shipment, error) {
	return s.repo.ListByOrder(ctx, orderID)
}

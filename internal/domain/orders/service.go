package orders

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
	"storeflow/pkg/logger"
)

// Service runs the order state machine.
type Service struct {
	repo      Repository
	numerator numerator.Generator
	txManager tx.Manager
	publisher events.Publisher
	currency  string
}

// NewService creates a new order service.
func NewService(repo Repository, gen numerator.Generator, txManager tx.Manager, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		repo:      repo,
		numerator: gen,
		txManager: txManager,
		publisher: publisher,
		currency:  DefaultCurrency,
	}
}

// WithDefaultCurrency sets the currency of orders created without one.
func (s *Service) WithDefaultCurrency(currency string) *Service {
	if currency != "" {
		s.currency = currency
	}
	return s
}

// LineInput is the caller-supplied part of an order line.
type LineInput struct {
	ItemID    id.ID
	Quantity  types.Quantity
	UOM       string
	UnitPrice types.Money
}

// CreateRequest carries a new order.
type CreateRequest struct {
	StoreID   id.ID
	OrderDate time.Time // defaults to now
	IsUrgent  bool
	Currency  string
	Notes     string
	Lines     []LineInput
}

// Create stores a new DRAFT order with its lines and zeroed fulfillment.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	o := &Order{
		BaseDocument: entity.NewBaseDocument(),
		StoreID:      req.StoreID,
		OrderDate:    req.OrderDate,
		Status:       StatusDraft,
		IsUrgent:     req.IsUrgent,
		Currency:     req.Currency,
		Notes:        req.Notes,
	}
	o.CreatedBy = appctx.GetActor(ctx)
	if o.OrderDate.IsZero() {
		o.OrderDate = o.CreatedAt
	}
	if o.Currency == "" {
		o.Currency = s.currency
	}
	for i, in := range req.Lines {
		l := NewLine(in.ItemID, in.Quantity, in.UOM, in.UnitPrice)
		l.OrderID = o.ID
		l.LineNo = i + 1
		o.Lines = append(o.Lines, l)
	}
	if err := o.Validate(ctx); err != nil {
		return nil, err
	}
	o.RecalcTotal()

	number, err := s.numerator.Next(ctx, numerator.Orders, o.OrderDate)
	if err != nil {
		return nil, fmt.Errorf("generate number: %w", err)
	}
	o.Number = number

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, o); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return s.publisher.Publish(ctx, events.New(events.AggregateOrder, o.ID, events.OrderCreated, map[string]any{
			"number":    o.Number,
			"store_id":  o.StoreID,
			"is_urgent": o.IsUrgent,
			"total":     o.TotalAmount.String(),
		}))
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "order created", "order_id", o.ID, "number", o.Number, "lines", len(o.Lines), "urgent", o.IsUrgent)
	return o, nil
}

// AddLine appends a line to a DRAFT order and recomputes its total.
func (s *Service) AddLine(ctx context.Context, orderID id.ID, in LineInput) (*Order, error) {
	var out *Order
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusDraft {
			return apperror.NewInvalidState("order", o.Status, "adding lines")
		}

		l := NewLine(in.ItemID, in.Quantity, in.UOM, in.UnitPrice)
		l.OrderID = o.ID
		l.LineNo = len(o.Lines) + 1
		if err := l.validate(len(o.Lines)); err != nil {
			return err
		}
		o.Lines = append(o.Lines, l)
		o.RecalcTotal()
		o.Touch()

		if err := s.repo.InsertLine(ctx, &o.Lines[len(o.Lines)-1]); err != nil {
			return fmt.Errorf("insert line: %w", err)
		}
		if err := s.repo.Update(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

// Submit moves a DRAFT order to SUBMITTED.
func (s *Service) Submit(ctx context.Context, orderID id.ID) (*Order, error) {
	return s.transition(ctx, orderID, StatusSubmitted)
}

// Approve moves a SUBMITTED order to APPROVED.
func (s *Service) Approve(ctx context.Context, orderID id.ID) (*Order, error) {
	return s.transition(ctx, orderID, StatusApproved)
}

// Cancel cancels a non-terminal order.
func (s *Service) Cancel(ctx context.Context, orderID id.ID) (*Order, error) {
	return s.transition(ctx, orderID, StatusCancelled)
}

// MarkProcessing is driven by shipment creation. Already PROCESSING is a no-op.
func (s *Service) MarkProcessing(ctx context.Context, orderID id.ID) error {
	return s.advance(ctx, orderID, StatusProcessing)
}

// MarkShipped is driven by dispatch. Already SHIPPED is a no-op.
func (s *Service) MarkShipped(ctx context.Context, orderID id.ID) error {
	return s.advance(ctx, orderID, StatusShipped)
}

// MarkReceived is driven by receipt confirmation. Already RECEIVED is a no-op.
func (s *Service) MarkReceived(ctx context.Context, orderID id.ID) error {
	return s.advance(ctx, orderID, StatusReceived)
}

// Reopen moves a SHIPPED order back to PROCESSING after its last dispatched
// shipment was cancelled. Orders in any other status are left alone.
func (s *Service) Reopen(ctx context.Context, orderID id.ID) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusShipped {
			return nil
		}
		return s.apply(ctx, o, StatusProcessing)
	})
}

func (s *Service) advance(ctx context.Context, orderID id.ID, to Status) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status == to {
			return nil
		}
		return s.apply(ctx, o, to)
	})
}

func (s *Service) transition(ctx context.Context, orderID id.ID, to Status) (*Order, error) {
	var out *Order
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := s.apply(ctx, o, to); err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

func (s *Service) apply(ctx context.Context, o *Order, to Status) error {
	from := o.Status
	if err := o.TransitionTo(to); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, o); err != nil {
		return err
	}
	logger.Info(ctx, "order status changed", "order_id", o.ID, "number", o.Number, "from", from, "to", to)
	return s.publisher.Publish(ctx, events.New(events.AggregateOrder, o.ID, events.OrderStatusChanged, map[string]any{
		"number":    o.Number,
		"from":      from,
		"to":        to,
		"is_urgent": o.IsUrgent,
	}))
}

// Get returns an order with lines and fulfillment.
func (s *Service) Get(ctx context.Context, orderID id.ID) (*Order, error) {
	return s.repo.GetByID(ctx, orderID)
}

// GetForUpdate returns an order with its header row locked until the caller's
// transaction ends. Fulfillment counters must only change under this lock.
func (s *Service) GetForUpdate(ctx context.Context, orderID id.ID) (*Order, error) {
	return s.repo.GetForUpdate(ctx, orderID)
}

// List returns order headers.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[Order], error) {
	lf := domain.ListFilter{Limit: filter.Limit, Offset: filter.Offset}
	lf.Normalize()
	filter.Limit, filter.Offset = lf.Limit, lf.Offset

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return domain.ListResult[Order]{}, fmt.Errorf("list orders: %w", err)
	}
	return domain.ListResult[Order]{Items: items, TotalCount: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// FindForConsolidation returns SUBMITTED/APPROVED-style demand placed before the cutoff.
func (s *Service) FindForConsolidation(ctx context.Context, statuses []Status, before time.Time) ([]Order, error) {
	return s.repo.FindForConsolidation(ctx, statuses, before)
}

// RecordShipped adds delta (may be negative on reversal) to a line's shipped counter.
func (s *Service) RecordShipped(ctx context.Context, lineID id.ID, delta types.Quantity) error {
	return s.repo.AddFulfillment(ctx, lineID, delta, 0)
}

// RecordReceived adds delta to a line's received counter.
func (s *Service) RecordReceived(ctx context.Context, lineID id.ID, delta types.Quantity) error {
	return s.repo.AddFulfillment(ctx, lineID, 0, delta)
}

// SetFulfillment overwrites a line's counters. Used when the projection is rebuilt.
func (s *Service) SetFulfillment(ctx context.Context, lineID id.ID, shipped, received types.Quantity) error {
	return s.repo.SetFulfillment(ctx, lineID, shipped, received)
}

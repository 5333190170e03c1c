// Package orders implements the internal order workflow: a store's demand from
// DRAFT to RECEIVED, with per-line fulfillment counters.
package orders

import (
	"context"
	"fmt"
	"time"

	"storeflow/internal/core/apperror"
	"storeflow/internal/core/entity"
	"storeflow/internal/core/id"
	"storeflow/internal/core/types"
)

// Status of an internal order.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusSubmitted  Status = "SUBMITTED"
	StatusApproved   Status = "APPROVED"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusReceived   Status = "RECEIVED"
	StatusCancelled  Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusDraft:      {StatusSubmitted, StatusCancelled},
	StatusSubmitted:  {StatusApproved, StatusCancelled},
	StatusApproved:   {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusReceived, StatusProcessing, StatusCancelled},
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok || s == StatusReceived || s == StatusCancelled
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool { return s == StatusReceived || s == StatusCancelled }

// CanTransitionTo reports whether s -> to is in the transition table.
func (s Status) CanTransitionTo(to Status) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// DefaultCurrency is used when an order does not name one.
const DefaultCurrency = "VND"

// Order is a store's internal order.
type Order struct {
	entity.BaseDocument

	StoreID     id.ID       `json:"storeId"`
	OrderDate   time.Time   `json:"orderDate"`
	Status      Status      `json:"status"`
	IsUrgent    bool        `json:"isUrgent"`
	Currency    string      `json:"currency"`
	TotalAmount types.Money `json:"totalAmount"`
	Notes       string      `json:"notes,omitempty"`

	Lines []Line `json:"lines"`
}

// Line is one ordered item.
type Line struct {
	ID        id.ID          `json:"id"`
	OrderID   id.ID          `json:"orderId"`
	LineNo    int            `json:"lineNo"`
	ItemID    id.ID          `json:"itemId"`
	Quantity  types.Quantity `json:"quantity"`
	UOM       string         `json:"uom"`
	UnitPrice types.Money    `json:"unitPrice"`
	LineTotal types.Money    `json:"lineTotal"`

	Fulfillment Fulfillment `json:"fulfillment"`
}

// Fulfillment counts what has been shipped and received against a line.
type Fulfillment struct {
	OrderLineID id.ID          `json:"orderLineId"`
	QtyShipped  types.Quantity `json:"qtyShipped"`
	QtyReceived types.Quantity `json:"qtyReceived"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// NewLine creates a line with a zeroed fulfillment record.
func NewLine(itemID id.ID, qty types.Quantity, uom string, price types.Money) Line {
	lineID := id.New()
	return Line{
		ID:        lineID,
		ItemID:    itemID,
		Quantity:  qty,
		UOM:       uom,
		UnitPrice: price,
		Fulfillment: Fulfillment{
			OrderLineID: lineID,
			UpdatedAt:   time.Now().UTC(),
		},
	}
}

func (l *Line) validate(i int) error {
	if id.IsNil(l.ItemID) {
		return apperror.NewValidation(fmt.Sprintf("line %d: item is required", i+1))
	}
	if !l.Quantity.IsPositive() {
		return apperror.NewValidation(fmt.Sprintf("line %d: quantity must be positive", i+1)).
			WithDetail("quantity", l.Quantity.String())
	}
	if l.UnitPrice.IsNegative() {
		return apperror.NewValidation(fmt.Sprintf("line %d: unit price must not be negative", i+1))
	}
	return nil
}

// Validate checks order invariants.
func (o *Order) Validate(_ context.Context) error {
	if id.IsNil(o.StoreID) {
		return apperror.NewValidation("store is required")
	}
	if len(o.Lines) == 0 {
		return apperror.NewValidation("order must have at least one line")
	}
	for i := range o.Lines {
		if err := o.Lines[i].validate(i); err != nil {
			return err
		}
	}
	return nil
}

// RecalcTotal recomputes line totals and the order total.
func (o *Order) RecalcTotal() {
	total := types.Zero()
	for i := range o.Lines {
		l := &o.Lines[i]
		l.LineTotal = l.Quantity.MulPrice(l.UnitPrice)
		total = total.Add(l.LineTotal)
	}
	o.TotalAmount = total
}

// TransitionTo moves the order to status to, or fails with InvalidTransition.
func (o *Order) TransitionTo(to Status) error {
	if !o.Status.CanTransitionTo(to) {
		return apperror.NewInvalidTransition("order", o.Status, to).WithDetail("order_id", o.ID)
	}
	o.Status = to
	o.Touch()
	return nil
}

// Line returns the line with lineID.
func (o *Order) Line(lineID id.ID) (*Line, bool) {
	for i := range o.Lines {
		if o.Lines[i].ID == lineID {
			return &o.Lines[i], true
		}
	}
	return nil, false
}

// LineForItem returns the first line ordering itemID.
func (o *Order) LineForItem(itemID id.ID) (*Line, bool) {
	for i := range o.Lines {
		if o.Lines[i].ItemID == itemID {
			return &o.Lines[i], true
		}
	}
	return nil, false
}

// ListFilter selects orders.
type ListFilter struct {
	Statuses []Status
	StoreID  *id.ID
	DateFrom *time.Time
	DateTo   *time.Time // inclusive
	Limit    int
	Offset   int
}

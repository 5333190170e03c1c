// Package shipments moves ordered goods out of the kitchen: create, pick, dispatch, cancel.
package shipments

import (
	"context"
	"fmt"
	"time"

	"storeflow/internal/core/apperror"
	"storeflow/internal/core/entity"
	"storeflow/internal/core/id"
	"storeflow/internal/core/types"
)

// Status of a shipment.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPicked    Status = "PICKED"
	StatusShipped   Status = "SHIPPED"
	StatusInTransit Status = "IN_TRANSIT"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusDraft:     {StatusPicked, StatusShipped, StatusCancelled},
	StatusPicked:    {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusInTransit, StatusDelivered, StatusCancelled},
	StatusInTransit: {StatusDelivered, StatusCancelled},
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok || s == StatusDelivered || s == StatusCancelled
}

// CanTransitionTo reports whether s -> to is in the transition table.
func (s Status) CanTransitionTo(to Status) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Dispatched reports whether stock has left the source location.
func (s Status) Dispatched() bool {
	return s == StatusShipped || s == StatusInTransit || s == StatusDelivered
}

// LotAllocation is the part of a line's quantity drawn from one lot.
type LotAllocation struct {
	LotID    id.ID          `json:"lotId"`
	Quantity types.Quantity `json:"quantity"`
}

// Line is one shipped item.
type Line struct {
	ID          id.ID           `json:"id"`
	ShipmentID  id.ID           `json:"shipmentId"`
	LineNo      int             `json:"lineNo"`
	OrderLineID *id.ID          `json:"orderLineId,omitempty"`
	ItemID      id.ID           `json:"itemId"`
	Quantity    types.Quantity  `json:"quantity"`
	UOM         string          `json:"uom"`
	Lots        []LotAllocation `json:"lots,omitempty"`
}

// Portion is a quantity of a line bound to one lot, or to no lot.
type Portion struct {
	LotID    *id.ID
	Quantity types.Quantity
}

// Portions splits the line into its lot allocations, or a single lot-less portion.
func (l Line) Portions() []Portion {
	if len(l.Lots) == 0 {
		return []Portion{{Quantity: l.Quantity}}
	}
	out := make([]Portion, 0, len(l.Lots))
	for _, a := range l.Lots {
		out = append(out, Portion{LotID: id.ToPtr(a.LotID), Quantity: a.Quantity})
	}
	return out
}

func (l *Line) validate(i int) error {
	if id.IsNil(l.ItemID) {
		return apperror.NewValidation(fmt.Sprintf("line %d: item is required", i+1))
	}
	if !l.Quantity.IsPositive() {
		return apperror.NewValidation(fmt.Sprintf("line %d: quantity must be positive", i+1)).
			WithDetail("quantity", l.Quantity.String())
	}
	if len(l.Lots) == 0 {
		return nil
	}
	var sum types.Quantity
	seen := make(map[id.ID]struct{}, len(l.Lots))
	for _, a := range l.Lots {
		if id.IsNil(a.LotID) {
			return apperror.NewValidation(fmt.Sprintf("line %d: lot is required in allocation", i+1))
		}
		if _, dup := seen[a.LotID]; dup {
			return apperror.NewValidation(fmt.Sprintf("line %d: lot allocated twice", i+1)).
				WithDetail("lot_id", a.LotID)
		}
		seen[a.LotID] = struct{}{}
		if !a.Quantity.IsPositive() {
			return apperror.NewValidation(fmt.Sprintf("line %d: lot quantity must be positive", i+1))
		}
		sum += a.Quantity
	}
	if sum != l.Quantity {
		return apperror.NewValidation(fmt.Sprintf("line %d: lot quantities do not add up to line quantity", i+1)).
			WithDetail("quantity", l.Quantity.String()).
			WithDetail("allocated", sum.String())
	}
	return nil
}

// Shipment is a transfer of goods from the kitchen to the ordering store.
type Shipment struct {
	entity.BaseDocument

	OrderID        id.ID      `json:"orderId"`
	FromLocationID id.ID      `json:"fromLocationId"`
	ToLocationID   id.ID      `json:"toLocationId"`
	ShipDate       time.Time  `json:"shipDate"`
	Status         Status     `json:"status"`
	DispatchedAt   *time.Time `json:"dispatchedAt,omitempty"`
	Notes          string     `json:"notes,omitempty"`

	Lines []Line `json:"lines"`
}

// Validate checks shipment invariants that do not need other aggregates.
func (s *Shipment) Validate(_ context.Context) error {
	if id.IsNil(s.OrderID) {
		return apperror.NewValidation("order is required")
	}
	if id.IsNil(s.FromLocationID) || id.IsNil(s.ToLocationID) {
		return apperror.NewValidation("source and destination locations are required")
	}
	if s.FromLocationID == s.ToLocationID {
		return apperror.NewValidation("source and destination must differ")
	}
	if len(s.Lines) == 0 {
		return apperror.NewValidation("shipment must have at least one line")
	}
	for i := range s.Lines {
		if err := s.Lines[i].validate(i); err != nil {
			return err
		}
	}
	return nil
}

// TransitionTo moves the shipment to status to, or fails with InvalidTransition.
func (s *Shipment) TransitionTo(to Status) error {
	if !s.Status.CanTransitionTo(to) {
		return apperror.NewInvalidTransition("shipment", s.Status, to).WithDetail("shipment_id", s.ID)
	}
	s.Status = to
	s.Touch()
	return nil
}

// Line returns the line with lineID.
func (s *Shipment) Line(lineID id.ID) (*Line, bool) {
	for i := range s.Lines {
		if s.Lines[i].ID == lineID {
			return &s.Lines[i], true
		}
	}
	return nil, false
}

// LotIDs returns every lot referenced by the shipment's allocations.
func (s *Shipment) LotIDs() []id.ID {
	var out []id.ID
	for _, l := range s.Lines {
		for _, a := range l.Lots {
			out = append(out, a.LotID)
		}
	}
	return out
}

// ListFilter selects shipments.
type ListFilter struct {
	Statuses       []Status
	OrderID        *id.ID
	FromLocationID *id.ID
	ToLocationID   *id.ID
	Limit          int
	Offset         int
}

// Package fulfillment rebuilds the per-line shipped/received counters of an order
// from its shipments and receipts.
package fulfillment

import (
	"context"
	"fmt"

	"storeflow/internal/core/id"
	"storeflow/internal/core/tx"
	"storeflow/internal/core/types"
	"storeflow/internal/domain/orders"
	"storeflow/internal/domain/receipts"
	"storeflow/internal/domain/shipments"
	"storeflow/pkg/logger"
)

// Service recomputes the fulfillment projection.
type Service struct {
	orders    *orders.Service
	shipments *shipments.Service
	receipts  *receipts.Service
	txManager tx.Manager
}

// NewService creates a new fulfillment service.
func NewService(orderSvc *orders.Service, shipmentSvc *shipments.Service, receiptSvc *receipts.Service, txManager tx.Manager) *Service {
	return &Service{
		orders:    orderSvc,
		shipments: shipmentSvc,
		receipts:  receiptSvc,
		txManager: txManager,
	}
}

// Counters are the recomputed totals of one order line.
type Counters struct {
	Shipped  types.Quantity
	Received types.Quantity
}

// Recompute sums dispatched shipment lines and confirmed receipt lines per order
// line and overwrites the stored counters. It returns the refreshed order.
// The order row is locked first; dispatch and receipt confirmation take the same
// lock before touching the counters.
func (s *Service) Recompute(ctx context.Context, orderID id.ID) (*orders.Order, error) {
	var out *orders.Order
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		order, err := s.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		counters, err := s.count(ctx, orderID)
		if err != nil {
			return err
		}

		changed := 0
		for i := range order.Lines {
			l := &order.Lines[i]
			c := counters[l.ID]
			if c.Shipped == l.Fulfillment.QtyShipped && c.Received == l.Fulfillment.QtyReceived {
				continue
			}
			if err := s.orders.SetFulfillment(ctx, l.ID, c.Shipped, c.Received); err != nil {
				return fmt.Errorf("set fulfillment: %w", err)
			}
			l.Fulfillment.QtyShipped = c.Shipped
			l.Fulfillment.QtyReceived = c.Received
			changed++
		}

		logger.Info(ctx, "fulfillment recomputed", "order_id", orderID, "lines", len(order.Lines), "changed", changed)
		out = order
		return nil
	})
	return out, err
}

func (s *Service) count(ctx context.Context, orderID id.ID) (map[id.ID]Counters, error) {
	list, err := s.shipments.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}

	counters := make(map[id.ID]Counters)
	for _, sh := range list {
		if !sh.Status.Dispatched() {
			continue
		}
		orderLine := make(map[id.ID]id.ID, len(sh.Lines))
		for _, l := range sh.Lines {
			if l.OrderLineID == nil {
				continue
			}
			orderLine[l.ID] = *l.OrderLineID
			c := counters[*l.OrderLineID]
			c.Shipped += l.Quantity
			counters[*l.OrderLineID] = c
		}

		recs, err := s.receipts.ListByShipment(ctx, sh.ID)
		if err != nil {
			return nil, fmt.Errorf("list receipts: %w", err)
		}
		for _, r := range recs {
			if r.Status != receipts.StatusReceived {
				continue
			}
			for _, rl := range r.Lines {
				olID, ok := orderLine[rl.ShipmentLineID]
				if !ok {
					continue
				}
				c := counters[olID]
				c.Received += rl.QtyReceived
				counters[olID] = c
			}
		}
	}
	return counters, nil
}

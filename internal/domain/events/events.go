// Package events defines domain events emitted by the workflows.
// Notification and reporting collaborators consume them; the core never waits for delivery.
package events

import (
	"context"
	"sync"
	"time"

	"storeflow/internal/core/id"
)

// Aggregate types.
const (
	AggregateOrder         = "InternalOrder"
	AggregateShipment      = "Shipment"
	AggregateReceipt       = "GoodsReceipt"
	AggregateReturn        = "ReturnRequest"
	AggregateConsolidation = "ConsolidationBatch"
)

// Event types.
const (
	OrderCreated           = "order.created"
	OrderStatusChanged     = "order.status_changed"
	ShipmentDispatched     = "shipment.dispatched"
	ShipmentCancelled      = "shipment.cancelled"
	ReceiptConfirmed       = "receipt.confirmed"
	ReturnProcessed        = "return.processed"
	ConsolidationGenerated = "consolidation.generated"
)

// Event is a fact about an aggregate, published in the same transaction as the change.
type Event struct {
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       any
	OccurredAt    time.Time
}

// New builds an event stamped with the current time.
func New(aggregateType string, aggregateID id.ID, eventType string, payload any) Event {
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		OccurredAt:    time.Now().UTC(),
	}
}

// Publisher records events. Implementations must join the caller's transaction when one is active.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, ...Event) error { return nil }

// Recorder keeps events in memory. Used by the memory storage driver and tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, events ...Event) error {
	r.mu.Lock()
	r.events = append(r.events, events...)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns recorded events with the given type.
func (r *Recorder) OfType(eventType string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Truncate drops recorded events from index n on. The memory store uses it to roll back.
func (r *Recorder) Truncate(n int) {
	r.mu.Lock()
	if n < len(r.events) {
		r.events = r.events[:n]
	}
	r.mu.Unlock()
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

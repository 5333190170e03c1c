package memory

import (
	"context"

	"storeflow/internal/domain/events"
)

// EventPublisher records events in the store and drops them again if the
// surrounding transaction rolls back.
type EventPublisher struct {
	s *Store
}

var _ events.Publisher = (*EventPublisher)(nil)

// Publisher returns the event publisher of the store.
func (s *Store) Publisher() *EventPublisher { return &EventPublisher{s: s} }

// Publish implements events.Publisher.
func (p *EventPublisher) Publish(ctx context.Context, evs ...events.Event) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	n := p.s.events.Len()
	if err := p.s.events.Publish(ctx, evs...); err != nil {
		return err
	}
	onRollback(ctx, func() { p.s.events.Truncate(n) })
	return nil
}

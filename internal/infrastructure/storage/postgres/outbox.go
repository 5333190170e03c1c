package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storeflow/internal/core/id"
	"storeflow/internal/domain/events"
	"storeflow/pkg/logger"
)

const (
	outboxPending   = "pending"
	outboxPublished = "published"
	outboxFailed    = "failed" // parked until MoveToDLQ

	outboxMaxAttempts = 5
	outboxMaxBackoff  = time.Hour
)

// OutboxMessage is a stored domain event awaiting delivery.
type OutboxMessage struct {
	ID            id.ID
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       json.RawMessage
	Attempts      int
	CreatedAt     time.Time
}

// OutboxPublisher appends events to sys_outbox inside the caller's
// transaction, so an event exists exactly when its stock movement does.
type OutboxPublisher struct {
	bulk *Bulk
}

var _ events.Publisher = (*OutboxPublisher)(nil)

func NewOutboxPublisher(txm *TxManager) *OutboxPublisher {
	return &OutboxPublisher{bulk: NewBulk(txm)}
}

func (p *OutboxPublisher) Publish(ctx context.Context, evs ...events.Event) error {
	stmts := make([]Stmt, 0, len(evs))
	for _, ev := range evs {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", ev.EventType, err)
		}
		at := ev.OccurredAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		stmts = append(stmts, Stmt{
			SQL: `INSERT INTO sys_outbox (id, aggregate_type, aggregate_id, event_type, payload, status, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			Args: []any{id.New(), ev.AggregateType, ev.AggregateID, ev.EventType, payload, outboxPending, at},
		})
	}
	if err := p.bulk.Exec(ctx, stmts); err != nil {
		return fmt.Errorf("append outbox: %w", err)
	}
	return nil
}

// Deliver hands one message to its consumer. An error schedules a retry.
type Deliver func(ctx context.Context, msg OutboxMessage) error

// LogDelivery writes each event to the structured log. The worker uses it
// while no broker is attached.
func LogDelivery(ctx context.Context, msg OutboxMessage) error {
	logger.Info(ctx, "domain event",
		"event_type", msg.EventType,
		"aggregate_type", msg.AggregateType,
		"aggregate_id", msg.AggregateID,
		"payload", string(msg.Payload),
	)
	return nil
}

// OutboxRelay moves pending messages to a consumer.
type OutboxRelay struct {
	txm       *TxManager
	batchSize int
	deliver   Deliver
}

func NewOutboxRelay(txm *TxManager, batchSize int, deliver Deliver) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{txm: txm, batchSize: batchSize, deliver: deliver}
}

// ProcessBatch claims up to batchSize due messages with SKIP LOCKED, delivers
// them in creation order and records the outcome in the same transaction.
// It returns how many were delivered.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	var delivered []id.ID
	err := r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		msgs, err := r.claim(ctx)
		if err != nil {
			return err
		}
		q := r.txm.GetQuerier(ctx)
		for _, m := range msgs {
			if derr := r.deliver(ctx, m); derr != nil {
				logger.Warn(ctx, "outbox delivery failed", "id", m.ID, "event_type", m.EventType, "attempt", m.Attempts+1, "error", derr)
				if err := r.scheduleRetry(ctx, q, m, derr); err != nil {
					return err
				}
				continue
			}
			delivered = append(delivered, m.ID)
		}
		if len(delivered) == 0 {
			return nil
		}
		_, err = q.Exec(ctx, `UPDATE sys_outbox SET status = $1, published_at = now() WHERE id = ANY($2)`,
			outboxPublished, delivered)
		if err != nil {
			return fmt.Errorf("mark outbox published: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(delivered), nil
}

func (r *OutboxRelay) claim(ctx context.Context) ([]OutboxMessage, error) {
	rows, err := r.txm.GetQuerier(ctx).Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, retry_count, created_at
		FROM sys_outbox
		WHERE status = $1 AND (next_retry_at IS NULL OR next_retry_at <= now())
		ORDER BY created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, outboxPending, r.batchSize)
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	defer rows.Close()

	var msgs []OutboxMessage
	for rows.Next() {
		var (
			m       OutboxMessage
			payload []byte
		)
		if err := rows.Scan(&m.ID, &m.AggregateType, &m.AggregateID, &m.EventType, &payload, &m.Attempts, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		m.Payload = payload
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// scheduleRetry backs off exponentially and parks the message as failed
// after outboxMaxAttempts.
func (r *OutboxRelay) scheduleRetry(ctx context.Context, q Querier, m OutboxMessage, cause error) error {
	status := outboxPending
	if m.Attempts+1 >= outboxMaxAttempts {
		status = outboxFailed
	}
	_, err := q.Exec(ctx, `
		UPDATE sys_outbox
		SET retry_count = retry_count + 1, last_error = $1, next_retry_at = $2, status = $3
		WHERE id = $4`, cause.Error(), time.Now().UTC().Add(retryBackoff(m.Attempts)), status, m.ID)
	if err != nil {
		return fmt.Errorf("schedule outbox retry: %w", err)
	}
	return nil
}

func retryBackoff(attempts int) time.Duration {
	return min(time.Duration(1<<min(attempts, 12))*30*time.Second, outboxMaxBackoff)
}

// MoveToDLQ moves parked messages to sys_outbox_dlq.
func (r *OutboxRelay) MoveToDLQ(ctx context.Context) (int64, error) {
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, `
		WITH moved AS (DELETE FROM sys_outbox WHERE status = $1 RETURNING *)
		INSERT INTO sys_outbox_dlq
		SELECT *, now(), last_error FROM moved`, outboxFailed)
	if err != nil {
		return 0, fmt.Errorf("move outbox to dlq: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Package postgres is the PostgreSQL storage driver: connection pool, unit of
// work, outbox, audit trail and idempotency keys. Repositories live in the
// subpackages.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	appctx "storeflow/internal/core/context"
	"storeflow/internal/core/id"
	"storeflow/internal/domain/events"
)

// AuditAction classifies what an event did to its document.
type AuditAction string

const (
	AuditCreate   AuditAction = "create"
	AuditUpdate   AuditAction = "update"
	AuditPost     AuditAction = "post"    // moved stock
	AuditReverse  AuditAction = "reverse" // compensated earlier stock movement
	AuditGenerate AuditAction = "generate"
)

const (
	compressionNone = "none"
	compressionZstd = "zstd"

	defaultCompressAbove = 8 << 10
)

// AuditRecord is one row of sys_audit with its payload already inflated.
type AuditRecord struct {
	ID         id.ID           `json:"id"`
	EntityType string          `json:"entityType"`
	EntityID   id.ID           `json:"entityId"`
	Action     AuditAction     `json:"action"`
	EventType  string          `json:"eventType"`
	Actor      string          `json:"actor"`
	ActorEmail string          `json:"actorEmail,omitempty"`
	RequestID  string          `json:"requestId,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	At         time.Time       `json:"at"`
}

// AuditTrail stores one record per domain event. Payloads above the
// threshold are stored zstd-compressed.
type AuditTrail struct {
	txm           *TxManager
	enc           *zstd.Encoder
	dec           *zstd.Decoder
	compressAbove int
}

func NewAuditTrail(txm *TxManager) (*AuditTrail, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &AuditTrail{txm: txm, enc: enc, dec: dec, compressAbove: defaultCompressAbove}, nil
}

// CompressAbove sets the payload size in bytes above which payloads are compressed.
func (a *AuditTrail) CompressAbove(n int) *AuditTrail {
	a.compressAbove = n
	return a
}

// Record writes ev to the trail in the caller's transaction.
func (a *AuditTrail) Record(ctx context.Context, ev events.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("encode audit payload: %w", err)
	}
	meta, err := json.Marshal(map[string]string{
		"event_type": ev.EventType,
		"request_id": appctx.RequestID(ctx),
	})
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}

	var email string
	if u := appctx.GetUser(ctx); u != nil {
		email = u.Email
	}
	at := ev.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var plain, packed []byte
	algo := compressionNone
	if len(payload) > a.compressAbove {
		packed, algo = a.enc.EncodeAll(payload, nil), compressionZstd
	} else {
		plain = payload
	}

	_, err = a.txm.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO sys_audit (id, entity_type, entity_id, action, user_id, user_email,
			changes, changes_compressed, compression_algo, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		id.New(), ev.AggregateType, ev.AggregateID, actionOf(ev.EventType), appctx.GetActor(ctx), email,
		plain, packed, algo, meta, at,
	)
	if err != nil {
		return fmt.Errorf("insert audit %s: %w", ev.EventType, err)
	}
	return nil
}

// History returns up to limit records for one document, newest first.
func (a *AuditTrail) History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]AuditRecord, error) {
	rows, err := a.txm.GetQuerier(ctx).Query(ctx, `
		SELECT id, entity_type, entity_id, action, user_id, user_email,
		       changes, changes_compressed, compression_algo, metadata, created_at
		FROM sys_audit
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3`, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit history: %w", err)
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var (
			r      AuditRecord
			plain  []byte
			packed []byte
			algo   string
			meta   []byte
		)
		if err := rows.Scan(&r.ID, &r.EntityType, &r.EntityID, &r.Action, &r.Actor, &r.ActorEmail,
			&plain, &packed, &algo, &meta, &r.At); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.Payload = plain
		if algo == compressionZstd {
			if r.Payload, err = a.dec.DecodeAll(packed, nil); err != nil {
				return nil, fmt.Errorf("inflate audit %s: %w", r.ID, err)
			}
		}
		var m struct {
			EventType string `json:"event_type"`
			RequestID string `json:"request_id"`
		}
		if len(meta) > 0 && json.Unmarshal(meta, &m) == nil {
			r.EventType, r.RequestID = m.EventType, m.RequestID
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func actionOf(eventType string) AuditAction {
	switch eventType {
	case events.ShipmentCancelled:
		return AuditReverse
	case events.ConsolidationGenerated:
		return AuditGenerate
	case events.ShipmentDispatched, events.ReceiptConfirmed, events.ReturnProcessed:
		return AuditPost
	}
	if strings.HasSuffix(eventType, ".created") {
		return AuditCreate
	}
	return AuditUpdate
}

// AuditedPublisher appends each event to the outbox and the audit trail in
// the transaction that raised it.
type AuditedPublisher struct {
	outbox *OutboxPublisher
	trail  *AuditTrail
}

var _ events.Publisher = (*AuditedPublisher)(nil)

func NewAuditedPublisher(outbox *OutboxPublisher, trail *AuditTrail) *AuditedPublisher {
	return &AuditedPublisher{outbox: outbox, trail: trail}
}

func (p *AuditedPublisher) Publish(ctx context.Context, evs ...events.Event) error {
	if err := p.outbox.Publish(ctx, evs...); err != nil {
		return err
	}
	for _, ev := range evs {
		if err := p.trail.Record(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

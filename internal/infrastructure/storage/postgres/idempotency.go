package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"storeflow/internal/core/idempotency"
)

// IdempotencyStore keeps idempotency keys in sys_idempotency.
type IdempotencyStore struct {
	txm *TxManager
	ttl time.Duration
}

var _ idempotency.Store = (*IdempotencyStore)(nil)

func NewIdempotencyStore(txm *TxManager, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{txm: txm, ttl: ttl}
}

// AcquireKey claims key in its own short transaction. A live row is locked
// and resolved; an expired row is overwritten as if it never existed.
func (s *IdempotencyStore) AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*idempotency.Replay, error) {
	var replay *idempotency.Replay
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		q := s.txm.GetQuerier(ctx)
		now := time.Now().UTC()

		tag, err := q.Exec(ctx, `
			INSERT INTO sys_idempotency (idempotency_key, user_id, operation, status, request_hash, created_at, updated_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
			ON CONFLICT (idempotency_key) DO NOTHING`,
			key, userID, operation, idempotency.StatusPending, requestHash, now, now.Add(s.ttl))
		if err != nil {
			return fmt.Errorf("insert idempotency key: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		var (
			e         idempotency.Entry
			expiresAt time.Time
		)
		err = q.QueryRow(ctx, `
			SELECT user_id, operation, request_hash, status, response,
			       COALESCE(response_status, 0), COALESCE(response_content_type, ''), updated_at, expires_at
			FROM sys_idempotency WHERE idempotency_key = $1 FOR UPDATE`, key).
			Scan(&e.UserID, &e.Operation, &e.RequestHash, &e.Status, &e.Response,
				&e.StatusCode, &e.ContentType, &e.UpdatedAt, &expiresAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("idempotency key %s vanished during acquire", key)
		}
		if err != nil {
			return fmt.Errorf("load idempotency key: %w", err)
		}

		if now.After(expiresAt) {
			_, err = q.Exec(ctx, `
				UPDATE sys_idempotency
				SET user_id = $2, operation = $3, request_hash = $4, status = $5, response = NULL,
				    response_status = NULL, response_content_type = NULL,
				    created_at = $6, updated_at = $6, expires_at = $7
				WHERE idempotency_key = $1`,
				key, userID, operation, requestHash, idempotency.StatusPending, now, now.Add(s.ttl))
			return err
		}

		var take bool
		replay, take, err = idempotency.Resolve(key, e, userID, operation, requestHash, now)
		if take {
			_, err = q.Exec(ctx, `UPDATE sys_idempotency SET updated_at = $2 WHERE idempotency_key = $1`, key, now)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return replay, nil
}

func (s *IdempotencyStore) CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	return s.finish(ctx, key, idempotency.StatusSuccess, statusCode, contentType, response)
}

func (s *IdempotencyStore) FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	return s.finish(ctx, key, idempotency.StatusFailed, statusCode, contentType, response)
}

func (s *IdempotencyStore) finish(ctx context.Context, key string, status idempotency.Status, statusCode int, contentType string, response any) error {
	body, err := idempotency.EncodeBody(response)
	if err != nil {
		return err
	}
	_, err = s.txm.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_idempotency
		SET status = $2, response = $3, response_status = $4, response_content_type = $5, updated_at = now()
		WHERE idempotency_key = $1`, key, status, body, statusCode, contentType)
	if err != nil {
		return fmt.Errorf("finish idempotency key: %w", err)
	}
	return nil
}

// CleanupExpired deletes keys past their TTL.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := s.txm.GetQuerier(ctx).Exec(ctx, `DELETE FROM sys_idempotency WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

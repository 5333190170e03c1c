package memory

import (
	"context"
	"time"

	"storeflow/internal/core/idempotency"
)

type idemRecord struct {
	idempotency.Entry
	expiresAt time.Time
}

// IdempotencyStore keeps idempotency keys in the Store's maps.
type IdempotencyStore struct {
	s   *Store
	ttl time.Duration
	now func() time.Time
}

var _ idempotency.Store = (*IdempotencyStore)(nil)

// Idempotency returns an idempotency store keeping keys for ttl.
func (s *Store) Idempotency(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{s: s, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

func (st *IdempotencyStore) AcquireKey(_ context.Context, key, userID, operation, requestHash string) (*idempotency.Replay, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	now := st.now()
	if rec, ok := st.s.idem[key]; ok && !now.After(rec.expiresAt) {
		replay, take, err := idempotency.Resolve(key, rec.Entry, userID, operation, requestHash, now)
		if take {
			rec.UpdatedAt = now
			st.s.idem[key] = rec
		}
		return replay, err
	}
	st.s.idem[key] = idemRecord{
		Entry: idempotency.Entry{
			UserID:      userID,
			Operation:   operation,
			RequestHash: requestHash,
			Status:      idempotency.StatusPending,
			UpdatedAt:   now,
		},
		expiresAt: now.Add(st.ttl),
	}
	return nil, nil
}

func (st *IdempotencyStore) CompleteKey(_ context.Context, key string, statusCode int, contentType string, response any) error {
	return st.finish(key, idempotency.StatusSuccess, statusCode, contentType, response)
}

func (st *IdempotencyStore) FailKey(_ context.Context, key string, statusCode int, contentType string, response any) error {
	return st.finish(key, idempotency.StatusFailed, statusCode, contentType, response)
}

func (st *IdempotencyStore) finish(key string, status idempotency.Status, statusCode int, contentType string, response any) error {
	body, err := idempotency.EncodeBody(response)
	if err != nil {
		return err
	}

	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	rec, ok := st.s.idem[key]
	if !ok {
		return nil
	}
	rec.Status, rec.Response, rec.StatusCode, rec.ContentType = status, body, statusCode, contentType
	rec.UpdatedAt = st.now()
	st.s.idem[key] = rec
	return nil
}

func (st *IdempotencyStore) CleanupExpired(_ context.Context) (int64, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	now := st.now()
	var n int64
	for k, rec := range st.s.idem {
		if now.After(rec.expiresAt) {
			delete(st.s.idem, k)
			n++
		}
	}
	return n, nil
}

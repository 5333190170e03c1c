// Package idempotency de-duplicates retried mutating requests. The HTTP
// middleware acquires a key per request; stores live in
// infrastructure/storage.
package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"storeflow/internal/core/apperror"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// StaleAfter is how long a pending key may sit before another request may
// take it over.
const StaleAfter = time.Minute

// Replay is a stored response sent again instead of re-running the request.
type Replay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Store manages idempotency keys.
type Store interface {
	// AcquireKey returns (nil, nil) when the caller now owns the key,
	// a Replay when the operation already finished, or an error when the
	// key is in flight or was used for a different request.
	AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*Replay, error)
	CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error
	FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error
	CleanupExpired(ctx context.Context) (int64, error)
}

// Entry is the stored state of a key that has not expired.
type Entry struct {
	UserID      string
	Operation   string
	RequestHash string
	Status      Status
	Response    []byte
	StatusCode  int
	ContentType string
	UpdatedAt   time.Time
}

// Resolve decides what a request presenting key gets when e is already
// stored. take is true when a stale pending entry passes to the caller.
func Resolve(key string, e Entry, userID, operation, requestHash string, now time.Time) (replay *Replay, take bool, err error) {
	if e.UserID != userID || e.Operation != operation || e.RequestHash != requestHash {
		return nil, false, apperror.NewIdempotencyMismatch(key).
			WithDetail("stored_operation", e.Operation).
			WithDetail("request_operation", operation)
	}
	switch e.Status {
	case StatusSuccess, StatusFailed:
		r := &Replay{StatusCode: e.StatusCode, ContentType: e.ContentType, Body: e.Response}
		if r.StatusCode == 0 {
			r.StatusCode = http.StatusOK
		}
		if r.ContentType == "" {
			r.ContentType = "application/json"
		}
		return r, false, nil
	}
	if now.Sub(e.UpdatedAt) > StaleAfter {
		return nil, true, nil
	}
	return nil, false, apperror.NewIdempotencyConflict(key)
}

// EncodeBody renders a handler response for storage. Raw bytes pass through.
func EncodeBody(response any) ([]byte, error) {
	switch v := response.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	}
	b, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("encode idempotent response: %w", err)
	}
	return b, nil
}

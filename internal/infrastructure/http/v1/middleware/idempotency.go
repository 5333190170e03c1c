package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"storeflow/internal/core/apperror"
	appctx "storeflow/internal/core/context"
	"storeflow/internal/core/idempotency"
	"storeflow/internal/infrastructure/http/v1/handlers"
)

const (
	HeaderIdempotencyKey = "X-Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"

	maxFingerprintBody = 1 << 20
)

// Idempotency replays the stored response when a mutating request repeats its
// X-Idempotency-Key with the same user, route and body. The response is
// recorded by the handler once it succeeds.
func Idempotency(store idempotency.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || !mutates(c.Request.Method) {
			c.Next()
			return
		}

		fingerprint, err := fingerprintBody(c.Request)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		replay, err := store.AcquireKey(ctx, key, appctx.GetUserID(ctx), c.Request.Method+" "+c.FullPath(), fingerprint)
		switch {
		case err != nil:
			if _, ok := apperror.AsAppError(err); !ok {
				err = apperror.NewInternal(err).WithDetail("component", "idempotency")
			}
			_ = c.Error(err)
			c.Abort()
		case replay != nil:
			c.Header(HeaderReplayed, "true")
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
		default:
			c.Set(handlers.CtxIdempotencyKey, key)
			c.Set(handlers.CtxIdempotencyStore, store)
			c.Next()
		}
	}
}

func mutates(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// fingerprintBody hashes the body and puts it back for the handler.
func fingerprintBody(r *http.Request) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFingerprintBody+1))
	if err != nil {
		return "", apperror.NewValidation("unreadable request body").WithCause(err)
	}
	if len(body) > maxFingerprintBody {
		tooLarge := apperror.NewValidation("request body too large for idempotency").WithDetail("max_bytes", maxFingerprintBody)
		tooLarge.HTTPStatus = http.StatusRequestEntityTooLarge
		return "", tooLarge
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}

package context

import "context"

// Request identifies one inbound call in logs, spans and the audit trail.
type Request struct {
	ID      string // X-Request-ID, echoed back to the caller
	TraceID string
	SpanID  string
}

type requestKey struct{}

// WithRequest stores the request identity in ctx.
func WithRequest(ctx context.Context, r Request) context.Context {
	return context.WithValue(ctx, requestKey{}, r)
}

// RequestFrom returns the request identity stored in ctx.
func RequestFrom(ctx context.Context) (Request, bool) {
	r, ok := ctx.Value(requestKey{}).(Request)
	return r, ok
}

// RequestID returns the request id, or "" outside a request (workers, tests).
func RequestID(ctx context.Context) string {
	r, _ := RequestFrom(ctx)
	return r.ID
}

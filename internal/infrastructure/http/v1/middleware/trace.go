package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	appctx "storeflow/internal/core/context"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"

	ctxRequestID = "request_id"
)

var tracer = otel.Tracer("storeflow/http")

// Trace opens a server span per request and puts trace and request ids into the
// request context. Without a configured tracer provider the ids fall back to the
// incoming headers or fresh UUIDs.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+c.FullPath(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", c.FullPath()),
				attribute.String("request.id", requestID),
			),
		)
		defer span.End()

		sc := span.SpanContext()
		traceID := c.GetHeader(HeaderTraceID)
		spanID := uuid.NewString()[:16]
		if sc.HasTraceID() {
			traceID = sc.TraceID().String()
			spanID = sc.SpanID().String()
		} else if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx = appctx.WithRequest(ctx, appctx.Request{ID: requestID, TraceID: traceID, SpanID: spanID})
		c.Request = c.Request.WithContext(ctx)

		c.Set(ctxRequestID, requestID)
		c.Header(HeaderRequestID, requestID)
		c.Header(HeaderTraceID, traceID)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}
	}
}

package grpcx

import (
	"context"

	"github.com/md-rashed-zaman/bookwell/libs/httpx"
)

type ctxKey struct{}

// RequestIDMetadataKey carries the request id over gRPC metadata. Metadata
// keys are lowercase on the wire.
const RequestIDMetadataKey = "x-request-id"

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// NewRequestID uses the same format as the HTTP edge so ids look alike in logs.
func NewRequestID() string {
	return httpx.NewRequestID()
}

// requestIDFrom prefers an id set by the HTTP middleware, then one carried in
// from an upstream gRPC call.
func requestIDFrom(ctx context.Context) string {
	if id := httpx.RequestIDFromContext(ctx); id != "" {
		return id
	}
	return RequestIDFromContext(ctx)
}

package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/rhuss/odin/pkg/api"
)

// RequestID returns middleware that makes sure every request carries an
// id. The HTTP adapter usually sets one from X-Request-ID already; batch
// operations and direct Processor callers get a fresh one here.
func RequestID() Middleware {
	return func(next Processor) Processor {
		return ProcessorFunc(func(ctx context.Context, req *api.Request) *api.Response {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, NewRequestID())
			}
			return next.Process(ctx, req)
		})
	}
}

// NewRequestID returns a random UUID string.
func NewRequestID() string {
	return uuid.NewString()
}

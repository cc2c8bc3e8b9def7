package transport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rhuss/odin/pkg/api"
)

// Recovery returns middleware that catches panics escaping the processor
// and answers them with the fixed fallback error body. The server continues
// to accept new requests after a panic is recovered.
func Recovery() Middleware {
	return func(next Processor) Processor {
		return ProcessorFunc(func(ctx context.Context, req *api.Request) (resp *api.Response) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic while processing request",
						slog.String("request_id", RequestIDFromContext(ctx)),
						slog.Any("panic", r),
					)
					resp = FallbackResponse()
				}
			}()
			return next.Process(ctx, req)
		})
	}
}

// FallbackResponse returns a 500 carrying api.FallbackErrorBody.
func FallbackResponse() *api.Response {
	resp := api.NewResponse()
	resp.StatusCode = http.StatusInternalServerError
	resp.Header.Set(api.HeaderContentType, "application/json")
	resp.Body = []byte(api.FallbackErrorBody)
	return resp
}

package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/odin/pkg/api"
)

// Logging returns middleware that writes one access log record per
// request. Responses with a 5xx status are logged at error level.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Processor) Processor {
		return ProcessorFunc(func(ctx context.Context, req *api.Request) *api.Response {
			start := time.Now()
			ctx, info := EnsureRequestInfo(ctx)

			resp := next.Process(ctx, req)

			status, size := 0, 0
			if resp != nil {
				status, size = resp.StatusCode, len(resp.Body)
			}
			kind := info.Kind
			if kind == "" {
				kind = "unknown"
			}
			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("method", req.Method),
				slog.String("path", req.RawPath),
				slog.Int("status", status),
				slog.String("kind", kind),
				slog.Int("bytes", size),
				slog.Duration("duration", time.Since(start)),
			}
			if req.RawQuery != "" {
				attrs = append(attrs, slog.String("query", req.RawQuery))
			}

			if status >= 500 {
				logger.LogAttrs(ctx, slog.LevelError, "request failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "request completed", attrs...)
			}
			return resp
		})
	}
}

package transport

import "context"

// Middleware wraps a Processor to add cross-cutting behavior.
// Middleware is applied in order: the first middleware in the chain is
// the outermost wrapper (executes first on the way in, last on the way out).
type Middleware func(Processor) Processor

// Chain composes multiple middleware into a single middleware.
// Middleware are applied in order: Chain(a, b, c) produces a(b(c(handler))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next Processor) Processor {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type (
	requestIDKeyType   struct{}
	transactionKeyType struct{}
	requestInfoKeyType struct{}
)

var (
	requestIDKey   = requestIDKeyType{}
	transactionKey = transactionKeyType{}
	requestInfoKey = requestInfoKeyType{}
)

// RequestIDFromContext extracts the request ID from the context.
// Returns an empty string if no request ID is set.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithRequestID returns a new context with the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextWithTransaction returns a context carrying the id of the
// changeset transaction the operations in it belong to.
func ContextWithTransaction(ctx context.Context, txID string) context.Context {
	return context.WithValue(ctx, transactionKey, txID)
}

// TransactionFromContext returns the changeset transaction id, or "".
func TransactionFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(transactionKey).(string); ok {
		return id
	}
	return ""
}

// RequestInfo collects facts about a request learned while processing it,
// for logging and metrics outside the dispatcher.
type RequestInfo struct {
	// Kind is the descriptor kind the request was classified as.
	Kind string
}

// EnsureRequestInfo returns ctx and its RequestInfo, attaching a new one
// when ctx has none.
func EnsureRequestInfo(ctx context.Context) (context.Context, *RequestInfo) {
	if info := RequestInfoFromContext(ctx); info != nil {
		return ctx, info
	}
	info := &RequestInfo{}
	return context.WithValue(ctx, requestInfoKey, info), info
}

// RequestInfoFromContext returns the RequestInfo of ctx, or nil.
func RequestInfoFromContext(ctx context.Context) *RequestInfo {
	info, _ := ctx.Value(requestInfoKey).(*RequestInfo)
	return info
}

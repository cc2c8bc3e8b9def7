// Package transport defines the Handler contract, the Processor interface
// and the processor middleware chain.
//
// The transport layer bridges HTTP clients and the dispatcher. The HTTP
// binding in pkg/transport/http reads a request into an *api.Request,
// hands it to a Processor and copies the resulting *api.Response onto the
// wire.
//
// # Handler
//
// Handler is the business logic SPI the dispatcher drives: one method per
// resource kind and verb, each receiving the classified request
// descriptor and the response sink it must write to. BaseHandler answers
// every method with a NOT_IMPLEMENTED error except the metadata and
// service documents, so implementations embed it and override what they
// support.
//
// # Middleware
//
// The middleware chain wraps a Processor with cross-cutting concerns.
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID), and structured logging via log/slog. Changeset
// transaction ids travel in the context (ContextWithTransaction).
package transport

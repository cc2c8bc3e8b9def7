// Package api defines the core protocol types for the odin OData service.
//
// This package provides the values that cross the boundaries between the
// transport binding, the dispatcher, the business-logic Handler and the
// serializers: the already-read inbound [Request], the [Response] a request
// commits to, the entity values ([Entity], [Property], [EntityCollection])
// exchanged with the Handler, and the structured error taxonomy.
//
// The package has no external dependencies (Go standard library only) and
// performs no I/O.
//
// Error types:
//   - [Error]: a classified protocol failure carrying an [ErrorKind] and a
//     message key (validation, URI syntax/semantics, content negotiation,
//     (de)serialization, batch, handler).
//   - [ApplicationError]: a failure raised by business logic, optionally
//     carrying its own HTTP status.
//   - [ServerError]: the protocol error payload built from either of the
//     above and serialized exactly once per failed request.
package api

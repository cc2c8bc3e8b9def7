// Package dispatch turns protocol requests into handler calls.
//
// The Dispatcher parses the resource path against the current metadata
// registry, visits the segments into a request.Descriptor, validates query
// options and verbs for the descriptor kind, negotiates the response
// content type and invokes the matching transport.Handler method with a
// response sink. $batch requests are split into their operations, which
// are dispatched through the same path; changesets run inside a handler
// transaction. Every failure is rendered by the ErrorHandler as an error
// document in a negotiated format.
package dispatch

// Package response implements the single-use response sinks a Handler
// writes its result to.
//
// There is one sink per representation kind: EntitySink, EntitySetSink,
// PropertySink, PrimitiveValueSink, CountSink, NoContentSink, StreamSink,
// MetadataSink and ServiceDocumentSink. All of them share the Base
// contract (WriteOK, WriteCreated, WriteNoContent, WriteNotFound,
// WriteBadRequest, WriteServerError, WriteHeader, Close).
//
// A sink fills an *api.Response. Bodies are serialized into memory before
// the status and headers are set, so a serializer failure turns into a
// plain 500 instead of a half-written payload. The kind-specific write
// operations close the sink as their last action. Close is one-way:
// calling it again is a no-op, while any other write after close panics
// with ErrSinkClosed.
package response

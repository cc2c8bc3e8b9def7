// Package request classifies a parsed request URI into a typed
// [Descriptor].
//
// A [Builder] is fed the resource path segments one at a time while the
// dispatcher visits them. Each segment either creates the descriptor kind
// (an entity set segment starts a data request), refines it (a key
// predicate narrows a collection to an entity) or replaces it ($count,
// $ref and $value switch the kind). Only [Builder.Build] produces a
// Descriptor, and a Descriptor never changes afterwards.
//
// The per-kind rules live in one table: which HTTP methods are legal, which
// representation kind the response negotiates, and which representation
// kind a request body must have. [ContextURL] derives the @odata.context
// value, [ParsePrefer] reads the Prefer header.
package request

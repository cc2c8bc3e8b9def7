// Package storage is the reference Handler of the dispatcher: entity-set
// CRUD, properties, media, navigation references and changeset
// transactions on top of a pluggable record Store.
//
// Backends (memory, postgres) implement Store. Records are scoped by the
// tenant found in the request context (WithTenant) and operations join the
// changeset transaction carried by transport.ContextWithTransaction.
package storage

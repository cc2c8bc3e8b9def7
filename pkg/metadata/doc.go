// Package metadata implements the schema registry: the service's own
// schemas, the registries of referenced documents and vocabulary annexes,
// with namespace and alias resolution and typed lookups over all of them.
//
// A Registry is assembled once (New, AddReference, AddVocabulary, or Load
// from a YAML schema document) and is read-only afterwards. Snapshot
// publishes registries atomically so a reload never disturbs in-flight
// requests.
package metadata

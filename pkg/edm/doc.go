// Package edm holds the Entity Data Model: the schema element types a
// service describes itself with (entity, complex and enum types, actions,
// functions, containers and their members), qualified names, container
// targets and primitive literal coercion.
//
// Model values are plain structs with yaml tags so schema documents can be
// decoded directly into them. They are treated as immutable once a
// registry has been assembled from them.
package edm

// Package uri turns a request path and query string into a resource path
// tree: the ordered, metadata-resolved segments plus the parsed query
// options. The Parser interface is the boundary the dispatcher depends
// on; DefaultParser covers resource paths, key predicates, operation
// parameters and system query options, and checks $filter and $orderby
// expressions structurally.
package uri

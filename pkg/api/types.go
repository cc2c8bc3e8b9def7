package api

import (
	"net/http"
	"strings"
)

// ---------------------------------------------------------------------------
// Request / Response
// ---------------------------------------------------------------------------

// Request is an inbound protocol request whose body has already been read
// by the transport. It is never mutated after construction; rewrites
// produce a copy via WithTarget.
type Request struct {
	Method string
	Header http.Header

	// RawPath is the resource path relative to the service root, with a
	// leading slash ("/Products(1)/Name"). The empty path and "/" both
	// address the service document.
	RawPath  string
	RawQuery string
	Body     []byte

	// ServiceRoot is the absolute service root URL including a trailing
	// slash ("http://host/odata/").
	ServiceRoot string
}

// WithTarget returns a copy of r addressing path and query instead.
func (r *Request) WithTarget(path, query string) *Request {
	c := *r
	c.RawPath = path
	c.RawQuery = query
	return &c
}

// HeaderValue returns the first value of the named header, or "".
func (r *Request) HeaderValue(name string) string {
	if r.Header == nil {
		return ""
	}
	return r.Header.Get(name)
}

// Response is the outcome a request commits to. Sinks fill it exactly
// once; the transport copies it onto the wire.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewResponse returns an empty response carrying the protocol version
// header.
func NewResponse() *Response {
	r := &Response{Header: make(http.Header)}
	r.Header.Set(HeaderODataVersion, ODataVersion)
	return r
}

// Reset discards any status, headers and body written so far. The
// protocol version header survives.
func (r *Response) Reset() {
	r.StatusCode = 0
	r.Body = nil
	r.Header = make(http.Header)
	r.Header.Set(HeaderODataVersion, ODataVersion)
}

// ---------------------------------------------------------------------------
// Entity values
// ---------------------------------------------------------------------------

// ValueType describes the shape of a Property value.
type ValueType int

const (
	ValuePrimitive ValueType = iota
	ValueEnum
	ValueComplex
	ValueCollectionPrimitive
	ValueCollectionEnum
	ValueCollectionComplex
)

// IsCollection reports whether v is one of the collection shapes.
func (v ValueType) IsCollection() bool {
	return v == ValueCollectionPrimitive || v == ValueCollectionEnum || v == ValueCollectionComplex
}

// Property is a named, typed value of an entity or complex value.
//
// Value holds a Go primitive (string, bool, int64, float64, []byte,
// time.Time, ...) for primitive and enum properties, a *ComplexValue for
// complex properties and []any for collections. A nil Value is null.
type Property struct {
	Name      string
	Type      string
	ValueType ValueType
	Value     any
}

// IsNull reports whether the property carries no value.
func (p *Property) IsNull() bool { return p == nil || p.Value == nil }

// ComplexValue is the value of a complex-typed property.
type ComplexValue struct {
	Properties []*Property
}

// Property returns the named member, or nil.
func (c *ComplexValue) Property(name string) *Property {
	return findProperty(c.Properties, name)
}

// Link is a navigation property of an entity: an inline entity or
// collection (expanded), or bindings to existing entities by id.
type Link struct {
	Name       string
	Entity     *Entity
	Entities   *EntityCollection
	BindingIDs []string
}

// Entity is a single entity instance exchanged with the Handler.
type Entity struct {
	// Type is the qualified entity type name.
	Type string

	// ID is the canonical entity id relative to the service root,
	// e.g. "Products(1)".
	ID   string
	ETag string

	Properties      []*Property
	NavigationLinks []*Link

	// Bindings carries @odata.bind references supplied on create or update.
	Bindings []*Link

	MediaContentType string
	MediaETag        string
}

// Property returns the named property, or nil.
func (e *Entity) Property(name string) *Property {
	return findProperty(e.Properties, name)
}

// SetProperty replaces the named property, or appends it.
func (e *Entity) SetProperty(p *Property) {
	for i, existing := range e.Properties {
		if existing.Name == p.Name {
			e.Properties[i] = p
			return
		}
	}
	e.Properties = append(e.Properties, p)
}

// NavigationLink returns the named navigation link, or nil.
func (e *Entity) NavigationLink(name string) *Link {
	for _, l := range e.NavigationLinks {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// EntityCollection is an ordered set of entities plus paging information.
type EntityCollection struct {
	Entities []*Entity
	Count    *int
	NextLink string
}

// Media is the raw payload of a media entity or stream property.
type Media struct {
	ContentType string
	Data        []byte
}

// Parameter is a named argument of an action or function invocation.
type Parameter struct {
	Name     string
	Property *Property
	Entity   *Entity
	Entities *EntityCollection
}

func findProperty(props []*Property, name string) *Property {
	for _, p := range props {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// EntityIDKey returns the key predicate part of an entity id, e.g. "1" for
// "Products(1)", or "" when id carries none.
func EntityIDKey(id string) string {
	open := strings.IndexByte(id, '(')
	if open < 0 || !strings.HasSuffix(id, ")") {
		return ""
	}
	return id[open+1 : len(id)-1]
}

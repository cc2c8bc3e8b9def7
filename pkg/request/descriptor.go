package request

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/edm"
	"github.com/rhuss/odin/pkg/uri"
)

// Descriptor is the classified form of one request. It is produced by
// Builder.Build and is read-only afterwards.
type Descriptor struct {
	kind   Kind
	method string
	info   *uri.Info

	entitySet   *edm.EntitySet
	singleton   *edm.Singleton
	entityType  *edm.EntityType
	navigation  *edm.NavigationProperty
	property    *edm.Property
	complexType *edm.ComplexType
	operation   *uri.Segment
	keys        []uri.KeyPredicate
	collection  bool
	hasStream   bool

	path     string
	entityID string
	parentID string

	prefs       Preferences
	conditions  Conditions
	header      http.Header
	body        []byte
	serviceRoot string
}

// Kind returns the resource kind.
func (d *Descriptor) Kind() Kind { return d.kind }

// Method returns the HTTP method.
func (d *Descriptor) Method() string { return d.method }

// Info returns the parsed URI.
func (d *Descriptor) Info() *uri.Info { return d.info }

// Segments returns the resolved resource path segments.
func (d *Descriptor) Segments() []*uri.Segment {
	if d.info == nil {
		return nil
	}
	return d.info.Segments
}

// Query returns the query options.
func (d *Descriptor) Query() *uri.QueryOptions {
	if d.info == nil {
		return &uri.QueryOptions{}
	}
	return &d.info.Query
}

// EntitySet is the entity set holding the addressed entities, nil when it
// cannot be determined from the path.
func (d *Descriptor) EntitySet() *edm.EntitySet { return d.entitySet }

// Singleton is the addressed singleton, if the path starts at one and has
// not navigated away from it.
func (d *Descriptor) Singleton() *edm.Singleton { return d.singleton }

// EntityType is the type of the addressed entities, or of the entity
// owning the addressed property.
func (d *Descriptor) EntityType() *edm.EntityType { return d.entityType }

// Navigation is the last navigation property on the path.
func (d *Descriptor) Navigation() *edm.NavigationProperty { return d.navigation }

// Property is the addressed structural property.
func (d *Descriptor) Property() *edm.Property { return d.property }

// ComplexType is the type of the addressed complex property or operation
// result.
func (d *Descriptor) ComplexType() *edm.ComplexType { return d.complexType }

// Keys returns the key predicate of the last keyed segment.
func (d *Descriptor) Keys() []uri.KeyPredicate { return d.keys }

// IsCollection reports whether the request addresses a collection.
func (d *Descriptor) IsCollection() bool { return d.collection }

// HasStream reports whether the addressed entity type is a media type.
func (d *Descriptor) HasStream() bool { return d.hasStream }

// ResourcePath is the canonical resource path without the trailing
// $count, $ref or $value segment, e.g. "Products(1)/Category".
func (d *Descriptor) ResourcePath() string { return d.path }

// EntityID is the canonical id of the addressed single entity ("Products(1)")
// when the path determines it, otherwise "".
func (d *Descriptor) EntityID() string { return d.entityID }

// ParentID is the resource path of the entity the last navigation starts
// from, e.g. "Products(1)" for Products(1)/Related/$ref.
func (d *Descriptor) ParentID() string { return d.parentID }

// Operation returns the action or function segment of an invocation.
func (d *Descriptor) Operation() *uri.Segment { return d.operation }

// Action returns the invoked action, or nil.
func (d *Descriptor) Action() *edm.Action {
	if d.operation == nil {
		return nil
	}
	return d.operation.Action
}

// Function returns the invoked function, or nil.
func (d *Descriptor) Function() *edm.Function {
	if d.operation == nil {
		return nil
	}
	return d.operation.Function
}

// ReturnType returns the declared result of the invoked operation.
func (d *Descriptor) ReturnType() *edm.ReturnType {
	switch {
	case d.operation == nil:
		return nil
	case d.operation.Action != nil:
		return d.operation.Action.ReturnType
	case d.operation.Function != nil:
		return d.operation.Function.ReturnType
	}
	return nil
}

// ActionParameters returns the declared parameters an action reads from
// the request body, excluding the binding parameter.
func (d *Descriptor) ActionParameters() []*edm.Parameter {
	a := d.Action()
	if a == nil {
		return nil
	}
	if a.IsBound && len(a.Parameters) > 0 {
		return a.Parameters[1:]
	}
	return a.Parameters
}

// CrossJoinSets lists the entity sets of a $crossjoin request.
func (d *Descriptor) CrossJoinSets() []*edm.EntitySet {
	if d.info == nil {
		return nil
	}
	return d.info.CrossJoinSets
}

// Preferences returns the parsed Prefer header.
func (d *Descriptor) Preferences() Preferences { return d.prefs }

// Conditions returns the conditional request headers.
func (d *Descriptor) Conditions() Conditions { return d.conditions }

// Header returns the request headers.
func (d *Descriptor) Header() http.Header { return d.header }

// Body returns the raw request body.
func (d *Descriptor) Body() []byte { return d.body }

// ServiceRoot returns the absolute service root with a trailing slash.
func (d *Descriptor) ServiceRoot() string { return d.serviceRoot }

func (d *Descriptor) isStream() bool {
	return d.property != nil && d.property.IsStream()
}

// ---------------------------------------------------------------------------
// Conditions
// ---------------------------------------------------------------------------

// Conditions holds the If-Match and If-None-Match entity tags.
type Conditions struct {
	IfMatch     []string
	IfNoneMatch []string
}

// ParseConditions reads the conditional headers of h.
func ParseConditions(h http.Header) Conditions {
	return Conditions{
		IfMatch:     etagList(h.Values(api.HeaderIfMatch)),
		IfNoneMatch: etagList(h.Values(api.HeaderIfNoneMatch)),
	}
}

func etagList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				out = append(out, tag)
			}
		}
	}
	return out
}

// HasIfMatch reports whether an If-Match header was sent.
func (c Conditions) HasIfMatch() bool { return len(c.IfMatch) > 0 }

// IfNoneMatchAny reports whether If-None-Match is "*".
func (c Conditions) IfNoneMatchAny() bool {
	for _, t := range c.IfNoneMatch {
		if t == "*" {
			return true
		}
	}
	return false
}

// Match reports whether etag satisfies If-Match. Without an If-Match
// header every entity matches.
func (c Conditions) Match(etag string) bool {
	if len(c.IfMatch) == 0 {
		return true
	}
	for _, t := range c.IfMatch {
		if t == "*" || t == etag {
			return true
		}
	}
	return false
}

// Upsert reports whether a PUT or PATCH should create the entity when it
// does not exist: If-None-Match: * without If-Match. When both headers are
// present the request is an update.
func (c Conditions) Upsert() bool {
	return c.IfNoneMatchAny() && !c.HasIfMatch()
}

// ---------------------------------------------------------------------------
// Builder
// ---------------------------------------------------------------------------

// ErrKindNotSet is returned by Build when no segment determined a kind.
var ErrKindNotSet = errors.New("request: descriptor kind not set")

// Builder accumulates a descriptor while the resource path is visited.
// Setting a kind replaces the previous one.
type Builder struct {
	d       Descriptor
	kindSet bool
}

// NewBuilder starts a descriptor for the given method and parsed URI.
func NewBuilder(method string, info *uri.Info) *Builder {
	return &Builder{d: Descriptor{method: method, info: info}}
}

// Kind returns the kind set so far.
func (b *Builder) Kind() Kind { return b.d.kind }

// SetKind replaces the descriptor kind.
func (b *Builder) SetKind(k Kind) *Builder {
	b.d.kind = k
	b.kindSet = true
	return b
}

// SetEntitySet sets the entity set of the addressed entities and leaves
// any singleton.
func (b *Builder) SetEntitySet(set *edm.EntitySet) *Builder {
	b.d.entitySet = set
	b.d.singleton = nil
	return b
}

// SetSingleton sets the addressed singleton.
func (b *Builder) SetSingleton(s *edm.Singleton) *Builder {
	b.d.singleton = s
	b.d.entitySet = nil
	return b
}

// SetEntityType sets the addressed entity type and whether it is a media
// type.
func (b *Builder) SetEntityType(et *edm.EntityType, hasStream bool) *Builder {
	b.d.entityType = et
	b.d.hasStream = hasStream
	return b
}

// SetNavigation records a navigation step. The current resource path
// becomes the parent of what follows.
func (b *Builder) SetNavigation(nav *edm.NavigationProperty) *Builder {
	b.d.navigation = nav
	b.d.parentID = b.d.path
	b.d.keys = nil
	b.d.entityID = ""
	return b
}

// SetProperty sets the addressed property; ct is its complex type, if any.
func (b *Builder) SetProperty(p *edm.Property, ct *edm.ComplexType) *Builder {
	b.d.property = p
	b.d.complexType = ct
	return b
}

// SetComplexType sets the complex result type of an operation.
func (b *Builder) SetComplexType(ct *edm.ComplexType) *Builder {
	b.d.complexType = ct
	return b
}

// SetKeys sets the key predicate of the addressed entity.
func (b *Builder) SetKeys(keys []uri.KeyPredicate) *Builder {
	b.d.keys = append([]uri.KeyPredicate(nil), keys...)
	return b
}

// SetCollection sets whether the request addresses a collection.
func (b *Builder) SetCollection(c bool) *Builder {
	b.d.collection = c
	return b
}

// SetOperation sets the invoked action or function segment.
func (b *Builder) SetOperation(seg *uri.Segment) *Builder {
	b.d.operation = seg
	return b
}

// AppendPath extends the canonical resource path with one segment.
func (b *Builder) AppendPath(segment string) *Builder {
	if b.d.path == "" {
		b.d.path = segment
	} else {
		b.d.path += "/" + segment
	}
	return b
}

// SetEntityID sets the canonical id of the addressed entity.
func (b *Builder) SetEntityID(id string) *Builder {
	b.d.entityID = id
	return b
}

// SetRequest copies headers, body and service root of the inbound request
// and parses the Prefer and conditional headers.
func (b *Builder) SetRequest(r *api.Request) *Builder {
	b.d.header = r.Header
	if b.d.header == nil {
		b.d.header = http.Header{}
	}
	b.d.body = r.Body
	b.d.serviceRoot = r.ServiceRoot
	b.d.prefs = ParsePrefer(b.d.header.Values(api.HeaderPrefer))
	b.d.conditions = ParseConditions(b.d.header)
	return b
}

// Build returns the finished descriptor.
func (b *Builder) Build() (*Descriptor, error) {
	if !b.kindSet {
		return nil, ErrKindNotSet
	}
	d := b.d
	d.keys = append([]uri.KeyPredicate(nil), b.d.keys...)
	return &d, nil
}

// KeyPredicate renders keys in canonical form: "(1)" for a single key,
// "(A=1,B='x')" for compound keys.
func KeyPredicate(keys []uri.KeyPredicate) string {
	switch len(keys) {
	case 0:
		return ""
	case 1:
		return "(" + keys[0].Raw + ")"
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.Name + "=" + k.Raw
	}
	return "(" + strings.Join(parts, ",") + ")"
}

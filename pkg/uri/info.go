package uri

import (
	"github.com/rhuss/odin/pkg/edm"
	"github.com/rhuss/odin/pkg/metadata"
)

// InfoKind classifies a request URI.
type InfoKind int

const (
	InfoResource InfoKind = iota
	InfoService
	InfoMetadata
	InfoBatch
	InfoCrossJoin
	InfoAll
	InfoEntityID
)

func (k InfoKind) String() string {
	switch k {
	case InfoResource:
		return "resource"
	case InfoService:
		return "service"
	case InfoMetadata:
		return "metadata"
	case InfoBatch:
		return "batch"
	case InfoCrossJoin:
		return "crossjoin"
	case InfoAll:
		return "all"
	case InfoEntityID:
		return "entity_id"
	default:
		return "unknown"
	}
}

// SegmentKind classifies one resource path segment.
type SegmentKind int

const (
	SegmentEntitySet SegmentKind = iota
	SegmentNavigation
	SegmentSingleton
	SegmentAction
	SegmentFunction
	SegmentPrimitiveProperty
	SegmentComplexProperty
	SegmentCount
	SegmentRef
	SegmentValue
	SegmentRoot
	SegmentIt
	SegmentLambdaAny
	SegmentLambdaAll
	SegmentLambdaVariable
	SegmentTypeCast
	SegmentCrossJoin
	SegmentAll
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentEntitySet:
		return "entity_set"
	case SegmentNavigation:
		return "navigation"
	case SegmentSingleton:
		return "singleton"
	case SegmentAction:
		return "action"
	case SegmentFunction:
		return "function"
	case SegmentPrimitiveProperty:
		return "primitive_property"
	case SegmentComplexProperty:
		return "complex_property"
	case SegmentCount:
		return "count"
	case SegmentRef:
		return "ref"
	case SegmentValue:
		return "value"
	case SegmentRoot:
		return "root"
	case SegmentIt:
		return "it"
	case SegmentLambdaAny:
		return "lambda_any"
	case SegmentLambdaAll:
		return "lambda_all"
	case SegmentLambdaVariable:
		return "lambda_variable"
	case SegmentTypeCast:
		return "type_cast"
	case SegmentCrossJoin:
		return "crossjoin"
	case SegmentAll:
		return "all"
	default:
		return "unknown"
	}
}

// KeyPredicate is one resolved key value.
type KeyPredicate struct {
	Name  string
	Raw   string
	Value any
}

// Parameter is one operation parameter from the path.
type Parameter struct {
	Name string
	Raw  string

	// Value is the parsed literal for primitive parameters, nil otherwise.
	Value any
}

// Segment is one resolved resource path segment.
type Segment struct {
	Kind SegmentKind
	Name string

	EntitySet      *edm.EntitySet
	Singleton      *edm.Singleton
	Navigation     *edm.NavigationProperty
	Property       *edm.Property
	Action         *edm.Action
	ActionImport   *edm.ActionImport
	Function       *edm.Function
	FunctionImport *edm.FunctionImport

	// EntityType or ComplexType is the structured type addressed after
	// this segment, if any. TypeName is the qualified result type.
	EntityType  *edm.EntityType
	ComplexType *edm.ComplexType
	TypeName    string

	Keys       []KeyPredicate
	Parameters []Parameter

	// Collection reports whether the segment, keys applied, addresses a
	// collection.
	Collection bool

	// TargetSet is the entity set holding the addressed entities, when it
	// is known from the container or navigation bindings.
	TargetSet *edm.EntitySet
}

// Info is the parsed form of a request URI.
type Info struct {
	Kind     InfoKind
	Segments []*Segment
	Query    QueryOptions

	// CrossJoinSets lists the entity sets of a $crossjoin.
	CrossJoinSets []*edm.EntitySet

	// Registry is the registry the URI was resolved against.
	Registry *metadata.Registry
}

// Last returns the last path segment, or nil.
func (i *Info) Last() *Segment {
	if len(i.Segments) == 0 {
		return nil
	}
	return i.Segments[len(i.Segments)-1]
}

// First returns the first path segment, or nil.
func (i *Info) First() *Segment {
	if len(i.Segments) == 0 {
		return nil
	}
	return i.Segments[0]
}

// Parser resolves a request URI against a registry.
type Parser interface {
	Parse(rawPath, rawQuery string, reg *metadata.Registry) (*Info, error)
}

package request

import (
	"net/http"

	"github.com/rhuss/odin/pkg/edm"
	"github.com/rhuss/odin/pkg/format"
)

// Kind is the resource shape a request addresses. The set is closed.
type Kind int

const (
	KindUnsupported Kind = iota
	KindEntitySet
	KindEntity
	KindSingleton
	KindCount
	KindReference
	KindProperty
	KindValue
	KindMedia
	KindMetadata
	KindServiceDocument
	KindBatch
	KindAction
	KindFunction
	KindCrossJoin

	kindCount
)

// String returns the kind name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindUnsupported:
		return "unsupported"
	case KindEntitySet:
		return "entity_set"
	case KindEntity:
		return "entity"
	case KindSingleton:
		return "singleton"
	case KindCount:
		return "count"
	case KindReference:
		return "reference"
	case KindProperty:
		return "property"
	case KindValue:
		return "value"
	case KindMedia:
		return "media"
	case KindMetadata:
		return "metadata"
	case KindServiceDocument:
		return "service_document"
	case KindBatch:
		return "batch"
	case KindAction:
		return "action"
	case KindFunction:
		return "function"
	case KindCrossJoin:
		return "crossjoin"
	default:
		return "unknown"
	}
}

// kindSpec holds the rules of one kind.
type kindSpec struct {
	// allowed reports whether method is legal for d.
	allowed func(d *Descriptor, method string) bool

	// response is the representation kind the response negotiates.
	response func(d *Descriptor) format.RepresentationKind

	// body is the representation kind a request body must have for the
	// descriptor's method; ok is false when no body is read.
	body func(d *Descriptor) (kind format.RepresentationKind, ok bool)
}

var kinds = [kindCount]kindSpec{
	KindUnsupported: {
		allowed:  func(*Descriptor, string) bool { return true },
		response: fixed(format.KindError),
		body:     noBody,
	},
	KindEntitySet: {
		allowed:  allMethods,
		response: fixed(format.KindCollectionEntity),
		body:     entityBody,
	},
	KindEntity: {
		allowed:  allMethods,
		response: fixed(format.KindEntity),
		body:     entityBody,
	},
	KindSingleton: {
		allowed:  only(http.MethodGet),
		response: fixed(format.KindEntity),
		body:     noBody,
	},
	KindCount: {
		allowed:  only(http.MethodGet),
		response: fixed(format.KindCount),
		body:     noBody,
	},
	KindReference: {
		allowed: func(d *Descriptor, method string) bool {
			switch method {
			case http.MethodGet, http.MethodPut, http.MethodDelete:
				return true
			case http.MethodPost:
				return d.collection
			}
			return false
		},
		response: func(d *Descriptor) format.RepresentationKind {
			if d.collection {
				return format.KindCollectionReference
			}
			return format.KindReference
		},
		body: func(d *Descriptor) (format.RepresentationKind, bool) {
			if d.method == http.MethodPost || d.method == http.MethodPut {
				return format.KindReference, true
			}
			return 0, false
		},
	},
	KindProperty: {
		allowed: func(d *Descriptor, method string) bool {
			switch method {
			case http.MethodGet, http.MethodPut, http.MethodDelete:
				return true
			case http.MethodPatch:
				return !d.collection && !d.isStream()
			}
			return false
		},
		response: propertyKind,
		body: func(d *Descriptor) (format.RepresentationKind, bool) {
			if d.method == http.MethodPut || d.method == http.MethodPatch {
				return propertyKind(d), true
			}
			return 0, false
		},
	},
	KindValue: {
		allowed:  only(http.MethodGet, http.MethodPut, http.MethodDelete),
		response: fixed(format.KindValue),
		body:     bodyOn(http.MethodPut, format.KindValue),
	},
	KindMedia: {
		allowed:  only(http.MethodGet, http.MethodPut, http.MethodDelete),
		response: fixed(format.KindBinary),
		body:     bodyOn(http.MethodPut, format.KindBinary),
	},
	KindMetadata: {
		allowed:  only(http.MethodGet),
		response: fixed(format.KindMetadata),
		body:     noBody,
	},
	KindServiceDocument: {
		allowed:  only(http.MethodGet),
		response: fixed(format.KindService),
		body:     noBody,
	},
	KindBatch: {
		allowed:  only(http.MethodPost),
		response: fixed(format.KindBatch),
		body:     bodyOn(http.MethodPost, format.KindBatch),
	},
	KindAction: {
		allowed:  only(http.MethodPost),
		response: operationKind,
		body: func(d *Descriptor) (format.RepresentationKind, bool) {
			if len(d.ActionParameters()) == 0 {
				return 0, false
			}
			return format.KindActionParameters, true
		},
	},
	KindFunction: {
		allowed:  only(http.MethodGet),
		response: operationKind,
		body:     noBody,
	},
	KindCrossJoin: {
		allowed:  only(http.MethodGet),
		response: fixed(format.KindCollectionComplex),
		body:     noBody,
	},
}

func allMethods(_ *Descriptor, method string) bool {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func only(methods ...string) func(*Descriptor, string) bool {
	return func(_ *Descriptor, method string) bool {
		for _, m := range methods {
			if m == method {
				return true
			}
		}
		return false
	}
}

func fixed(k format.RepresentationKind) func(*Descriptor) format.RepresentationKind {
	return func(*Descriptor) format.RepresentationKind { return k }
}

func noBody(*Descriptor) (format.RepresentationKind, bool) { return 0, false }

func bodyOn(method string, k format.RepresentationKind) func(*Descriptor) (format.RepresentationKind, bool) {
	return func(d *Descriptor) (format.RepresentationKind, bool) {
		return k, d.method == method
	}
}

func entityBody(d *Descriptor) (format.RepresentationKind, bool) {
	switch d.method {
	case http.MethodPost:
		if d.hasStream {
			return format.KindBinary, true
		}
		return format.KindEntity, true
	case http.MethodPut, http.MethodPatch:
		return format.KindEntity, true
	}
	return 0, false
}

func propertyKind(d *Descriptor) format.RepresentationKind {
	switch {
	case d.isStream():
		return format.KindBinary
	case d.complexType != nil && d.collection:
		return format.KindCollectionComplex
	case d.complexType != nil:
		return format.KindComplex
	case d.collection:
		return format.KindCollectionPrimitive
	default:
		return format.KindPrimitive
	}
}

func operationKind(d *Descriptor) format.RepresentationKind {
	rt := d.ReturnType()
	if rt == nil {
		return format.KindEntity
	}
	elem, coll := edm.ElementType(rt.Type)
	switch {
	case d.entityType != nil && coll:
		return format.KindCollectionEntity
	case d.entityType != nil:
		return format.KindEntity
	case d.complexType != nil && coll:
		return format.KindCollectionComplex
	case d.complexType != nil:
		return format.KindComplex
	case coll:
		return format.KindCollectionPrimitive
	case elem == edm.TypeStream:
		return format.KindBinary
	default:
		return format.KindPrimitive
	}
}

// Allowed reports whether the request method is legal for the
// descriptor's kind.
func (d *Descriptor) Allowed() bool {
	return kinds[d.kind].allowed(d, d.method)
}

// AllowedMethod reports whether method would be legal for the
// descriptor's kind.
func (d *Descriptor) AllowedMethod(method string) bool {
	return kinds[d.kind].allowed(d, method)
}

// ResponseKind is the representation kind the response negotiates.
func (d *Descriptor) ResponseKind() format.RepresentationKind {
	return kinds[d.kind].response(d)
}

// BodyKind is the representation kind the request body must have; ok is
// false when the request carries no body to read.
func (d *Descriptor) BodyKind() (format.RepresentationKind, bool) {
	return kinds[d.kind].body(d)
}

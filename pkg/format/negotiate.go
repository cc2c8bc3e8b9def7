package format

import (
	"strings"

	"github.com/munnerz/goautoneg"

	"github.com/rhuss/odin/pkg/api"
)

// RepresentationKind identifies the shape of a payload for negotiation.
type RepresentationKind int

const (
	KindEntity RepresentationKind = iota
	KindCollectionEntity
	KindPrimitive
	KindCollectionPrimitive
	KindComplex
	KindCollectionComplex
	KindReference
	KindCollectionReference
	KindValue
	KindBinary
	KindError
	KindMetadata
	KindService
	KindBatch
	KindCount
	KindActionParameters
)

func (k RepresentationKind) String() string {
	switch k {
	case KindEntity:
		return "entity"
	case KindCollectionEntity:
		return "collection_entity"
	case KindPrimitive:
		return "primitive"
	case KindCollectionPrimitive:
		return "collection_primitive"
	case KindComplex:
		return "complex"
	case KindCollectionComplex:
		return "collection_complex"
	case KindReference:
		return "reference"
	case KindCollectionReference:
		return "collection_reference"
	case KindValue:
		return "value"
	case KindBinary:
		return "binary"
	case KindError:
		return "error"
	case KindMetadata:
		return "metadata"
	case KindService:
		return "service"
	case KindBatch:
		return "batch"
	case KindCount:
		return "count"
	case KindActionParameters:
		return "action_parameters"
	default:
		return "unknown"
	}
}

// Negotiator selects content types.
type Negotiator interface {
	// Negotiate picks the response content type. formatOption is the raw
	// $format value, accept the raw Accept header; $format wins.
	Negotiate(formatOption, accept string, kind RepresentationKind) (ContentType, error)

	// CheckRequestContentType validates the content type of a request body
	// of the given kind.
	CheckRequestContentType(contentType string, kind RepresentationKind) (ContentType, error)
}

// DefaultNegotiator supports OData JSON for data, CSDL XML for $metadata,
// JSON or XML for error documents,
// text/plain for raw values, multipart/mixed for $batch and any media type
// for binary streams.
type DefaultNegotiator struct{}

// NewNegotiator returns the default negotiator.
func NewNegotiator() *DefaultNegotiator {
	return &DefaultNegotiator{}
}

// supported returns the candidate content types for a kind, preferred
// first.
func supported(kind RepresentationKind) []ContentType {
	switch kind {
	case KindMetadata:
		return []ContentType{{Type: "application", Subtype: "xml"}}
	case KindError:
		return []ContentType{JSON, {Type: "application", Subtype: "xml"}}
	case KindValue, KindCount:
		return []ContentType{{Type: "text", Subtype: "plain"}}
	case KindBinary:
		return []ContentType{{Type: "application", Subtype: "octet-stream"}}
	case KindBatch:
		return []ContentType{{Type: "multipart", Subtype: "mixed"}}
	default:
		return []ContentType{JSON}
	}
}

// Negotiate implements Negotiator.
func (n *DefaultNegotiator) Negotiate(formatOption, accept string, kind RepresentationKind) (ContentType, error) {
	candidates := supported(kind)

	if formatOption != "" {
		requested, ok := formatAlias(formatOption)
		if !ok {
			return ContentType{}, api.NewContentNegotiationError(api.KeyUnsupportedFormatOption,
				"unsupported $format "+formatOption)
		}
		for _, c := range candidates {
			if ct, ok := accepts(requested, c); ok {
				return ct, nil
			}
		}
		if kind == KindBinary {
			return requested, nil
		}
		return ContentType{}, api.NewContentNegotiationError(api.KeyUnsupportedFormatOption,
			"$format "+formatOption+" is not supported for this resource")
	}

	// Raw media streams are served in their own content type.
	if kind == KindBinary || strings.TrimSpace(accept) == "" {
		return candidates[0], nil
	}

	for _, clause := range goautoneg.ParseAccept(accept) {
		if clause.Q <= 0 {
			continue
		}
		requested := ContentType{Type: strings.ToLower(clause.Type), Subtype: strings.ToLower(clause.SubType)}
		if len(clause.Params) > 0 {
			requested.Params = make(map[string]string, len(clause.Params))
			for k, v := range clause.Params {
				requested.Params[strings.ToLower(k)] = v
			}
		}
		for _, c := range candidates {
			if ct, ok := accepts(requested, c); ok {
				return ct, nil
			}
		}
	}
	return ContentType{}, api.NewContentNegotiationError(api.KeyUnsupportedAcceptTypes,
		"none of the accepted content types is supported: "+accept)
}

// accepts matches a requested (possibly wildcard) type against a
// candidate and returns the candidate refined by the requested
// parameters.
func accepts(requested, candidate ContentType) (ContentType, bool) {
	switch {
	case requested.Type == "*" && requested.Subtype == "*":
	case strings.EqualFold(requested.Type, candidate.Type) && requested.Subtype == "*":
	case strings.EqualFold(requested.Type, candidate.Type) && strings.EqualFold(requested.Subtype, candidate.Subtype):
	default:
		return ContentType{}, false
	}
	if !candidate.Is(MediaJSON) {
		return candidate, true
	}
	if level := requested.Param(ParamMetadata); level != "" {
		switch strings.ToLower(level) {
		case MetadataMinimal, MetadataFull, MetadataNone:
			candidate = candidate.With(ParamMetadata, strings.ToLower(level))
		default:
			return ContentType{}, false
		}
	}
	if v := requested.Param(ParamIEEE754); v != "" {
		candidate = candidate.With(ParamIEEE754, strings.ToLower(v))
	}
	return candidate, true
}

func formatAlias(option string) (ContentType, bool) {
	switch strings.ToLower(option) {
	case "json":
		return JSON, true
	case "xml":
		return ContentType{Type: "application", Subtype: "xml"}, true
	case "atom":
		return ContentType{}, false
	}
	ct, err := ParseContentType(option)
	if err != nil {
		return ContentType{}, false
	}
	return ct, true
}

// CheckRequestContentType implements Negotiator.
func (n *DefaultNegotiator) CheckRequestContentType(contentType string, kind RepresentationKind) (ContentType, error) {
	if strings.TrimSpace(contentType) == "" {
		return ContentType{}, api.NewHandlerError(api.KeyMissingContentType, "request body requires a Content-Type header")
	}
	ct, err := ParseContentType(contentType)
	if err != nil {
		return ContentType{}, api.NewContentNegotiationError(api.KeyUnsupportedContentType, err.Error())
	}

	switch kind {
	case KindBinary:
		return ct, nil
	case KindValue:
		if ct.Is(MediaText) || ct.Is(MediaOctetStream) {
			return ct, nil
		}
	case KindBatch:
		if ct.Is(MediaMultipart) && ct.Param(ParamBoundary) != "" {
			return ct, nil
		}
		if ct.Is(MediaMultipart) {
			return ContentType{}, api.NewBatchDeserializationError(api.KeyInvalidBoundary, "multipart/mixed without boundary")
		}
	default:
		if ct.Is(MediaJSON) {
			return ct, nil
		}
	}
	return ContentType{}, api.NewContentNegotiationError(api.KeyUnsupportedContentType,
		"content type "+ct.MediaType()+" is not supported for "+kind.String()+" payloads")
}

package api

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies a protocol failure. The set is closed: every
// failure the dispatcher reports maps onto exactly one kind.
type ErrorKind int

const (
	ErrorKindUnknown ErrorKind = iota
	ErrorKindValidation
	ErrorKindURISemantic
	ErrorKindURISyntax
	ErrorKindURI
	ErrorKindContentNegotiation
	ErrorKindSerialization
	ErrorKindBatchDeserialization
	ErrorKindDeserialization
	ErrorKindHandler
	ErrorKindApplication
)

// String returns the kind name used in logs and metric labels.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindValidation:
		return "validation"
	case ErrorKindURISemantic:
		return "uri_semantic"
	case ErrorKindURISyntax:
		return "uri_syntax"
	case ErrorKindURI:
		return "uri"
	case ErrorKindContentNegotiation:
		return "content_negotiation"
	case ErrorKindSerialization:
		return "serialization"
	case ErrorKindBatchDeserialization:
		return "batch_deserialization"
	case ErrorKindDeserialization:
		return "deserialization"
	case ErrorKindHandler:
		return "handler"
	case ErrorKindApplication:
		return "application"
	default:
		return "unknown"
	}
}

// Message keys. A key identifies the failure within its kind and selects
// the HTTP status where a kind spans several.
const (
	// Handler
	KeyMethodNotAllowed            = "HTTP_METHOD_NOT_ALLOWED"
	KeyProcessorNotImplemented     = "PROCESSOR_NOT_IMPLEMENTED"
	KeyFunctionalityNotImplemented = "FUNCTIONALITY_NOT_IMPLEMENTED"
	KeyMissingContentType          = "MISSING_CONTENT_TYPE"
	KeyUnsupportedContentType      = "UNSUPPORTED_CONTENT_TYPE"
	KeyInvalidContentType          = "INVALID_CONTENT_TYPE"
	KeyVersionNotSupported         = "ODATA_VERSION_NOT_SUPPORTED"
	KeyInvalidPreferHeader         = "INVALID_PREFER_HEADER"
	KeyIncompleteResponse          = "INCOMPLETE_RESPONSE"

	// URI syntax
	KeySyntax                   = "SYNTAX"
	KeyUnknownSystemQueryOption = "UNKNOWN_SYSTEM_QUERY_OPTION"
	KeyDoubleSystemQueryOption  = "DOUBLE_SYSTEM_QUERY_OPTION"
	KeyWrongValueForQueryOption = "WRONG_VALUE_FOR_SYSTEM_QUERY_OPTION"
	KeyMissingIDOption          = "MISSING_ID_OPTION"
	KeyMustBeLastSegment        = "MUST_BE_LAST_SEGMENT"

	// URI semantic
	KeyResourceNotFound       = "RESOURCE_NOT_FOUND"
	KeyPropertyNotFound       = "PROPERTY_NOT_FOUND"
	KeyWrongNumberOfKeys      = "WRONG_NUMBER_OF_KEY_PROPERTIES"
	KeyInvalidKeyValue        = "INVALID_KEY_VALUE"
	KeyOnlyForCollections     = "ONLY_FOR_COLLECTIONS"
	KeyOnlyForTypedParts      = "ONLY_FOR_TYPED_PARTS"
	KeyKeyNotAllowed          = "KEY_NOT_ALLOWED"
	KeyPreviousPartNotSingle  = "PREVIOUS_PART_NOT_SINGLE"
	KeySemanticNotImplemented = "NOT_IMPLEMENTED"

	// Validation
	KeySystemQueryOptionNotAllowed = "SYSTEM_QUERY_OPTION_NOT_ALLOWED"
	KeySystemQueryOptionForMethod  = "SYSTEM_QUERY_OPTION_NOT_ALLOWED_FOR_HTTP_METHOD"
	KeyUnsupportedOperation        = "UNSUPPORTED_OPERATION"

	// Content negotiation
	KeyUnsupportedFormatOption = "UNSUPPORTED_FORMAT_OPTION"
	KeyUnsupportedAcceptTypes  = "UNSUPPORTED_ACCEPT_TYPES"

	// (De)serialization
	KeyIOError                    = "IO_EXCEPTION"
	KeyNullInput                  = "NULL_INPUT"
	KeyUnsupportedFormat          = "UNSUPPORTED_FORMAT"
	KeyUnsupportedPropertyType    = "UNSUPPORTED_PROPERTY_TYPE"
	KeyJSONSyntax                 = "JSON_SYNTAX_EXCEPTION"
	KeyUnknownContent             = "UNKNOWN_CONTENT"
	KeyInvalidValueForProperty    = "INVALID_VALUE_FOR_PROPERTY"
	KeyInvalidNullProperty        = "INVALID_NULL_PROPERTY"
	KeyNavigationPropertyNotFound = "NAVIGATION_PROPERTY_NOT_FOUND"
	KeyMissingValue               = "MISSING_VALUE"

	// Batch
	KeyInvalidBoundary          = "INVALID_BOUNDARY"
	KeyMissingBoundaryDelimiter = "MISSING_BOUNDARY_DELIMITER"
	KeyInvalidBatchPart         = "INVALID_BATCH_PART"
	KeyInvalidChangeSetNesting  = "INVALID_CHANGESET_NESTING"
	KeyInvalidChangeSetMethod   = "INVALID_CHANGESET_METHOD"
	KeyDuplicateContentID       = "DUPLICATE_CONTENT_ID"
	KeyPreconditionFailed       = "PRECONDITION_FAILED"
)

// Error is a classified protocol failure raised by the dispatcher and its
// collaborators (URI parser, validator, negotiator, serializers).
type Error struct {
	Kind    ErrorKind
	Key     string
	Message string
	Target  string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s: %s: %s (target: %s)", e.Kind, e.Key, e.Message, e.Target)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Key, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status the error is reported with.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case ErrorKindValidation, ErrorKindURISyntax, ErrorKindURI,
		ErrorKindDeserialization, ErrorKindBatchDeserialization:
		return http.StatusBadRequest
	case ErrorKindURISemantic:
		switch e.Key {
		case KeyResourceNotFound:
			return http.StatusNotFound
		case KeySemanticNotImplemented:
			return http.StatusNotImplemented
		}
		return http.StatusBadRequest
	case ErrorKindContentNegotiation:
		if e.Key == KeyUnsupportedContentType {
			return http.StatusUnsupportedMediaType
		}
		return http.StatusNotAcceptable
	case ErrorKindSerialization:
		if e.Key == KeyUnsupportedFormat {
			return http.StatusNotAcceptable
		}
		return http.StatusInternalServerError
	case ErrorKindHandler:
		switch e.Key {
		case KeyMethodNotAllowed:
			return http.StatusMethodNotAllowed
		case KeyProcessorNotImplemented, KeyFunctionalityNotImplemented:
			return http.StatusNotImplemented
		case KeyUnsupportedContentType, KeyInvalidContentType:
			return http.StatusUnsupportedMediaType
		case KeyIncompleteResponse:
			return http.StatusInternalServerError
		case KeyPreconditionFailed:
			return http.StatusPreconditionFailed
		}
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func newError(kind ErrorKind, key, message string) *Error {
	return &Error{Kind: kind, Key: key, Message: message}
}

// NewValidationError creates an Error for a request that parsed but
// violates protocol rules (query options, verbs per resource shape).
func NewValidationError(key, message string) *Error {
	return newError(ErrorKindValidation, key, message)
}

// NewURISyntaxError creates an Error for a malformed resource path or
// query option.
func NewURISyntaxError(key, message string) *Error {
	return newError(ErrorKindURISyntax, key, message)
}

// NewURISemanticError creates an Error for a well-formed URI that does not
// match the service metadata.
func NewURISemanticError(key, message string) *Error {
	return newError(ErrorKindURISemantic, key, message)
}

// NewURIError creates an Error for URI failures that are neither syntax nor
// semantics, such as an unresolvable entity-id.
func NewURIError(key, message string) *Error {
	return newError(ErrorKindURI, key, message)
}

// NewContentNegotiationError creates an Error for an unsatisfiable $format,
// Accept or Content-Type.
func NewContentNegotiationError(key, message string) *Error {
	return newError(ErrorKindContentNegotiation, key, message)
}

// NewSerializationError creates an Error for a payload that could not be
// written.
func NewSerializationError(key, message string, err error) *Error {
	e := newError(ErrorKindSerialization, key, message)
	e.Err = err
	return e
}

// NewDeserializationError creates an Error for a request body that could
// not be read into typed values.
func NewDeserializationError(key, message string) *Error {
	return newError(ErrorKindDeserialization, key, message)
}

// NewBatchDeserializationError creates an Error for a malformed $batch body.
func NewBatchDeserializationError(key, message string) *Error {
	return newError(ErrorKindBatchDeserialization, key, message)
}

// NewHandlerError creates an Error raised by the dispatcher itself while
// executing a request (method legality, versions, content types).
func NewHandlerError(key, message string) *Error {
	return newError(ErrorKindHandler, key, message)
}

// NewNotImplementedError creates the Error reported for request shapes and
// Handler operations that are not supported.
func NewNotImplementedError(message string) *Error {
	return newError(ErrorKindHandler, KeyProcessorNotImplemented, message)
}

// ApplicationError is raised by business logic. Its StatusCode is honored
// when set; otherwise the failure is reported as 500.
type ApplicationError struct {
	Code       string
	Message    string
	Target     string
	StatusCode int
	Details    []ErrorDetail
	Err        error
}

// Error implements the error interface.
func (e *ApplicationError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("application: %s: %s", e.Code, e.Message)
	}
	return "application: " + e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *ApplicationError) Unwrap() error { return e.Err }

// NewApplicationError creates an ApplicationError with the given status.
func NewApplicationError(status int, message string) *ApplicationError {
	return &ApplicationError{
		Code:       fmt.Sprintf("%d", status),
		Message:    message,
		StatusCode: status,
	}
}

// ErrorDetail is one entry of a ServerError's details list.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Target  string `json:"target,omitempty"`
}

// ServerError is the protocol error payload. It is built once per failed
// request and serialized exactly once.
type ServerError struct {
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	Target     string        `json:"target,omitempty"`
	Details    []ErrorDetail `json:"details,omitempty"`
	StatusCode int           `json:"-"`
	Cause      error         `json:"-"`
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Message)
}

// ErrorResponse wraps a ServerError for JSON serialization as the top-level
// error document.
type ErrorResponse struct {
	Error *ServerError `json:"error"`
}

// FallbackErrorBody is written when the negotiated error payload itself
// cannot be produced. It is a constant so that writing it cannot fail.
const FallbackErrorBody = `{"error":{"code":"500","message":"An error occurred while reporting an error."}}`

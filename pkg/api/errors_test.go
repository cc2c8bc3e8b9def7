package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorInterface(t *testing.T) {
	var _ error = &Error{}
	var _ error = &ApplicationError{}
	var _ error = &ServerError{}
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			"with target",
			&Error{Kind: ErrorKindURISemantic, Key: KeyPropertyNotFound, Message: "no such property", Target: "Foo"},
			"uri_semantic: PROPERTY_NOT_FOUND: no such property (target: Foo)",
		},
		{
			"without target",
			NewHandlerError(KeyMethodNotAllowed, "PATCH not allowed"),
			"handler: HTTP_METHOD_NOT_ALLOWED: PATCH not allowed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"validation", NewValidationError(KeySystemQueryOptionNotAllowed, "x"), http.StatusBadRequest},
		{"uri syntax", NewURISyntaxError(KeySyntax, "x"), http.StatusBadRequest},
		{"uri", NewURIError(KeyMissingIDOption, "x"), http.StatusBadRequest},
		{"uri semantic not found", NewURISemanticError(KeyResourceNotFound, "x"), http.StatusNotFound},
		{"uri semantic not implemented", NewURISemanticError(KeySemanticNotImplemented, "x"), http.StatusNotImplemented},
		{"uri semantic other", NewURISemanticError(KeyPropertyNotFound, "x"), http.StatusBadRequest},
		{"negotiation accept", NewContentNegotiationError(KeyUnsupportedAcceptTypes, "x"), http.StatusNotAcceptable},
		{"negotiation format", NewContentNegotiationError(KeyUnsupportedFormatOption, "x"), http.StatusNotAcceptable},
		{"negotiation content type", NewContentNegotiationError(KeyUnsupportedContentType, "x"), http.StatusUnsupportedMediaType},
		{"serialization", NewSerializationError(KeyIOError, "x", nil), http.StatusInternalServerError},
		{"serialization format", NewSerializationError(KeyUnsupportedFormat, "x", nil), http.StatusNotAcceptable},
		{"deserialization", NewDeserializationError(KeyJSONSyntax, "x"), http.StatusBadRequest},
		{"batch", NewBatchDeserializationError(KeyInvalidChangeSetNesting, "x"), http.StatusBadRequest},
		{"method", NewHandlerError(KeyMethodNotAllowed, "x"), http.StatusMethodNotAllowed},
		{"not implemented", NewNotImplementedError("x"), http.StatusNotImplemented},
		{"content type", NewHandlerError(KeyUnsupportedContentType, "x"), http.StatusUnsupportedMediaType},
		{"precondition", NewHandlerError(KeyPreconditionFailed, "x"), http.StatusPreconditionFailed},
		{"version", NewHandlerError(KeyVersionNotSupported, "x"), http.StatusBadRequest},
		{"unknown", &Error{Kind: ErrorKindUnknown}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.StatusCode(); got != tt.want {
				t.Errorf("StatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := fmt.Errorf("writing: %w", NewSerializationError(KeyIOError, "write failed", cause))

	var apiErr *Error
	if !errors.As(wrapped, &apiErr) {
		t.Fatal("errors.As did not find *Error")
	}
	if apiErr.Kind != ErrorKindSerialization {
		t.Errorf("Kind = %v, want %v", apiErr.Kind, ErrorKindSerialization)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is did not reach the cause")
	}
}

func TestApplicationError(t *testing.T) {
	err := NewApplicationError(http.StatusConflict, "already exists")
	if err.StatusCode != http.StatusConflict {
		t.Errorf("StatusCode = %d, want %d", err.StatusCode, http.StatusConflict)
	}
	if err.Code != "409" {
		t.Errorf("Code = %q, want %q", err.Code, "409")
	}
	if got, want := err.Error(), "application: 409: already exists"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorKindString(t *testing.T) {
	seen := make(map[string]ErrorKind)
	for k := ErrorKindUnknown; k <= ErrorKindApplication; k++ {
		s := k.String()
		if prev, dup := seen[s]; dup {
			t.Errorf("kinds %d and %d share name %q", prev, k, s)
		}
		seen[s] = k
	}
}

func TestErrorResponseJSON(t *testing.T) {
	resp := ErrorResponse{Error: &ServerError{
		Code:       "404",
		Message:    "not found",
		StatusCode: http.StatusNotFound,
		Details:    []ErrorDetail{{Code: "k", Message: "m", Target: "Products"}},
	}}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"error":{"code":"404","message":"not found","details":[{"code":"k","message":"m","target":"Products"}]}}`
	if string(data) != want {
		t.Errorf("JSON = %s, want %s", data, want)
	}
}

func TestFallbackErrorBodyIsJSON(t *testing.T) {
	var v ErrorResponse
	if err := json.Unmarshal([]byte(FallbackErrorBody), &v); err != nil {
		t.Fatalf("fallback body is not valid JSON: %v", err)
	}
	if v.Error == nil || v.Error.Code != "500" {
		t.Errorf("fallback error = %+v, want code 500", v.Error)
	}
}

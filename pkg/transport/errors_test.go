package transport

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/rhuss/odin/pkg/api"
)

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", api.NewValidationError(api.KeySystemQueryOptionNotAllowed, "x"), http.StatusBadRequest},
		{"method", api.NewHandlerError(api.KeyMethodNotAllowed, "x"), http.StatusMethodNotAllowed},
		{"not implemented", api.NewNotImplementedError("x"), http.StatusNotImplemented},
		{"wrapped protocol error", fmt.Errorf("dispatch: %w", api.NewHandlerError(api.KeyPreconditionFailed, "x")), http.StatusPreconditionFailed},
		{"application with status", api.NewApplicationError(http.StatusConflict, "taken"), http.StatusConflict},
		{"application without status", &api.ApplicationError{Message: "oops"}, http.StatusInternalServerError},
		{"server error", &api.ServerError{Code: "404", StatusCode: http.StatusNotFound}, http.StatusNotFound},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFromError(tt.err); got != tt.wantStatus {
				t.Errorf("StatusFromError = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

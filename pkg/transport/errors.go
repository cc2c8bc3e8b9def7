package transport

import (
	"errors"
	"net/http"

	"github.com/rhuss/odin/pkg/api"
)

// StatusFromError maps an error returned by the dispatcher or a Handler to
// an HTTP status code. Protocol errors carry their own mapping,
// application errors their declared status; anything else is 500.
func StatusFromError(err error) int {
	var protoErr *api.Error
	if errors.As(err, &protoErr) {
		return protoErr.StatusCode()
	}
	var appErr *api.ApplicationError
	if errors.As(err, &appErr) {
		if appErr.StatusCode >= 400 && appErr.StatusCode < 600 {
			return appErr.StatusCode
		}
		return http.StatusInternalServerError
	}
	var srvErr *api.ServerError
	if errors.As(err, &srvErr) && srvErr.StatusCode != 0 {
		return srvErr.StatusCode
	}
	return http.StatusInternalServerError
}

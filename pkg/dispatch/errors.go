package dispatch

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/debug"
	"github.com/rhuss/odin/pkg/format"
	"github.com/rhuss/odin/pkg/observability"
	"github.com/rhuss/odin/pkg/serializer"
	"github.com/rhuss/odin/pkg/transport"
	"github.com/rhuss/odin/pkg/uri"
)

// ErrorHandler renders a failed request as a protocol error document in a
// content type negotiated for the error representation.
type ErrorHandler struct {
	negotiator format.Negotiator
	logger     *slog.Logger
}

// NewErrorHandler creates an ErrorHandler.
func NewErrorHandler(n format.Negotiator, logger *slog.Logger) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{negotiator: n, logger: logger}
}

// NewServerError classifies err and builds the error payload for it.
// Causes that are neither protocol nor application errors are reported as
// 500 without exposing their text.
func NewServerError(err error) *api.ServerError {
	status := transport.StatusFromError(err)
	se := &api.ServerError{
		Code:       strconv.Itoa(status),
		Message:    http.StatusText(status),
		StatusCode: status,
		Cause:      err,
	}

	var (
		srvErr   *api.ServerError
		protoErr *api.Error
		appErr   *api.ApplicationError
	)
	switch {
	case errors.As(err, &srvErr):
		c := *srvErr
		if c.StatusCode == 0 {
			c.StatusCode = http.StatusInternalServerError
		}
		if c.Code == "" {
			c.Code = strconv.Itoa(c.StatusCode)
		}
		c.Cause = err
		return &c
	case errors.As(err, &protoErr):
		se.Code = protoErr.Key
		se.Message = protoErr.Message
		se.Target = protoErr.Target
	case errors.As(err, &appErr):
		if appErr.Code != "" {
			se.Code = appErr.Code
		}
		se.Message = appErr.Message
		se.Target = appErr.Target
		se.Details = appErr.Details
	}
	return se
}

// Response builds the error response for req. When the negotiated error
// document cannot be written the fixed fallback body is returned with 500.
func (h *ErrorHandler) Response(req *api.Request, err error) *api.Response {
	se := NewServerError(err)
	observability.ErrorsTotal.WithLabelValues(errorKind(err)).Inc()

	if se.StatusCode >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("method", req.Method),
			slog.String("path", req.RawPath),
			slog.Int("status", se.StatusCode),
			slog.String("error", err.Error()),
		)
	} else {
		debug.Log(debug.Dispatch, "request rejected", "status", se.StatusCode, "code", se.Code, "message", se.Message)
	}

	resp := api.NewResponse()
	resp.StatusCode = se.StatusCode

	ct, nerr := h.negotiator.Negotiate(formatOption(req), req.HeaderValue(api.HeaderAccept), format.KindError)
	if nerr != nil {
		ct = format.JSON
	}
	s, serr := serializer.For(ct)
	var body []byte
	if serr == nil {
		body, serr = s.Error(se)
	}
	if serr != nil {
		h.logger.Error("writing error document failed", slog.String("error", serr.Error()))
		return transport.FallbackResponse()
	}

	resp.Header.Set(api.HeaderContentType, ct.String())
	resp.Body = body
	return resp
}

// formatOption extracts $format from the request query without failing on
// a query that did not parse.
func formatOption(req *api.Request) string {
	q, err := uri.ParseQuery(req.RawQuery)
	if err != nil {
		return ""
	}
	return q.Format
}

// errorKind returns the metric label for err.
func errorKind(err error) string {
	var protoErr *api.Error
	if errors.As(err, &protoErr) {
		return protoErr.Kind.String()
	}
	var appErr *api.ApplicationError
	if errors.As(err, &appErr) {
		return "application"
	}
	return "unknown"
}

package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/debug"
	"github.com/rhuss/odin/pkg/dispatch"
	"github.com/rhuss/odin/pkg/format"
	"github.com/rhuss/odin/pkg/transport"
)

// Adapter serves the protocol over HTTP. Every request below the service
// path is read into an *api.Request and handed to the Processor; the
// returned *api.Response is copied onto the wire.
type Adapter struct {
	processor transport.Processor
	inflight  *transport.InFlightRegistry
	mux       *http.ServeMux
	config    Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	Addr            string
	MaxBodySize     int64
	ShutdownTimeout int // seconds

	// ServicePath is the path prefix the service is mounted under,
	// with leading and trailing slash ("/odata/").
	ServicePath string

	// Errors renders failures that happen before a request reaches the
	// processor. Defaults to a dispatch.ErrorHandler.
	Errors ErrorResponder
}

// ErrorResponder builds the error response for a request.
type ErrorResponder interface {
	Response(req *api.Request, err error) *api.Response
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		MaxBodySize:     10 << 20, // 10 MB
		ShutdownTimeout: 30,
		ServicePath:     "/odata/",
	}
}

// NewAdapter creates an HTTP adapter for the given Processor. Middleware
// is applied to the processor in the given order.
func NewAdapter(processor transport.Processor, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		processor = transport.Chain(middlewares...)(processor)
	}
	cfg.ServicePath = normalizeServicePath(cfg.ServicePath)
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}
	if cfg.Errors == nil {
		cfg.Errors = dispatch.NewErrorHandler(format.NewNegotiator(), nil)
	}

	a := &Adapter{
		processor: processor,
		inflight:  transport.NewInFlightRegistry(),
		mux:       http.NewServeMux(),
		config:    cfg,
	}

	a.mux.HandleFunc(cfg.ServicePath, a.handleService)
	if root := strings.TrimSuffix(cfg.ServicePath, "/"); root != "" {
		a.mux.HandleFunc(root, a.handleService)
	}

	return a
}

func normalizeServicePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest. The returned handler includes
// HTTP-level middleware for request ID propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// InFlight returns the registry of requests currently being processed.
func (a *Adapter) InFlight() *transport.InFlightRegistry { return a.inflight }

// httpRequestIDMiddleware is HTTP-level middleware that propagates the
// X-Request-ID header. The client's value is kept when present, otherwise
// a new ID is generated. The ID is stored in the context and echoed in
// the response headers before the first write.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = transport.RequestIDFromContext(r.Context())
		}
		if id == "" {
			id = transport.NewRequestID()
		}
		r = r.WithContext(transport.ContextWithRequestID(r.Context(), id))
		rw := &requestIDResponseWriter{ResponseWriter: w, r: r}
		next.ServeHTTP(rw, r)
	})
}

// requestIDResponseWriter wraps http.ResponseWriter to inject the
// X-Request-ID header before the first write.
type requestIDResponseWriter struct {
	http.ResponseWriter
	r           *http.Request
	headersSent bool
}

func (w *requestIDResponseWriter) WriteHeader(statusCode int) {
	w.ensureRequestIDHeader()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *requestIDResponseWriter) Write(b []byte) (int, error) {
	w.ensureRequestIDHeader()
	return w.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *requestIDResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *requestIDResponseWriter) ensureRequestIDHeader() {
	if w.headersSent {
		return
	}
	w.headersSent = true
	if id := transport.RequestIDFromContext(w.r.Context()); id != "" {
		w.ResponseWriter.Header().Set("X-Request-ID", id)
	}
}

// handleService handles every request below the service path.
func (a *Adapter) handleService(w http.ResponseWriter, r *http.Request) {
	req := &api.Request{
		Method:      r.Method,
		Header:      r.Header.Clone(),
		RawPath:     a.resourcePath(r),
		RawQuery:    r.URL.RawQuery,
		ServiceRoot: a.serviceRoot(r),
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			err = api.NewApplicationError(http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize))
		} else {
			err = api.NewApplicationError(http.StatusBadRequest, "reading request body: "+err.Error())
		}
		writeResponse(w, r, a.config.Errors.Response(req, err))
		return
	}
	req.Body = body

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	id := transport.RequestIDFromContext(ctx)
	if id != "" {
		a.inflight.Register(id, req.Method+" "+req.RawPath, cancel)
		defer a.inflight.Remove(id)
	}

	debug.Log(debug.Transport, "dispatching", "method", req.Method, "path", req.RawPath, "query", req.RawQuery)
	resp := a.processor.Process(ctx, req)
	if resp == nil {
		resp = transport.FallbackResponse()
	}
	writeResponse(w, r, resp)
}

// resourcePath returns the escaped path below the service path with a
// leading slash.
func (a *Adapter) resourcePath(r *http.Request) string {
	p := r.URL.EscapedPath()
	p = strings.TrimPrefix(p, strings.TrimSuffix(a.config.ServicePath, "/"))
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// serviceRoot returns the absolute service root URL with a trailing slash.
func (a *Adapter) serviceRoot(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := forwardedProto(r.Header.Get("X-Forwarded-Proto")); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host + a.config.ServicePath
}

// forwardedProto returns the first scheme of an X-Forwarded-Proto value
// when it is http or https, and "" otherwise.
func forwardedProto(v string) string {
	first, _, _ := strings.Cut(v, ",")
	switch p := strings.ToLower(strings.TrimSpace(first)); p {
	case "http", "https":
		return p
	}
	return ""
}

// writeResponse copies resp onto w.
func writeResponse(w http.ResponseWriter, r *http.Request, resp *api.Response) {
	h := w.Header()
	for name, values := range resp.Header {
		for _, v := range values {
			h.Add(name, v)
		}
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	bodyAllowed := status != http.StatusNoContent && status != http.StatusNotModified && r.Method != http.MethodHead
	if bodyAllowed {
		h.Set(api.HeaderContentLength, strconv.Itoa(len(resp.Body)))
	}
	w.WriteHeader(status)
	if bodyAllowed && len(resp.Body) > 0 {
		w.Write(resp.Body)
	}
}

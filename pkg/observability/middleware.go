package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rhuss/odin/pkg/transport"
)

// MetricsMiddleware records odin_requests_total, the request duration and
// response size histograms and the in-flight gauge for every request.
//
// The kind label is the descriptor kind the dispatcher reports through
// transport.RequestInfo, "unknown" when the request was answered before
// reaching it (authentication failures, paths outside the service).
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		InFlightRequests.Inc()
		defer InFlightRequests.Dec()

		start := time.Now()
		ctx, info := transport.EnsureRequestInfo(r.Context())
		rec := &recorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))

		kind := info.Kind
		if kind == "" {
			kind = "unknown"
		}
		RequestsTotal.WithLabelValues(r.Method, statusClass(rec.statusCode()), kind).Inc()
		RequestDuration.WithLabelValues(r.Method, kind).Observe(time.Since(start).Seconds())
		ResponseSize.WithLabelValues(kind).Observe(float64(rec.bytes))
	})
}

// statusClass maps 404 to "4xx".
func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

// recorder captures the status code and body size written through it.
type recorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *recorder) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *recorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *recorder) statusCode() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *recorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

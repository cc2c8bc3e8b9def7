package transport

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/rhuss/odin/pkg/api"
)

func statusProcessor(status int) Processor {
	return ProcessorFunc(func(ctx context.Context, req *api.Request) *api.Response {
		resp := api.NewResponse()
		resp.StatusCode = status
		return resp
	})
}

func getRequest(path string) *api.Request {
	return &api.Request{Method: http.MethodGet, RawPath: path, Header: http.Header{}}
}

func TestChainOrder(t *testing.T) {
	var order []string
	trace := func(name string) Middleware {
		return func(next Processor) Processor {
			return ProcessorFunc(func(ctx context.Context, req *api.Request) *api.Response {
				order = append(order, name+">")
				defer func() { order = append(order, "<"+name) }()
				return next.Process(ctx, req)
			})
		}
	}
	handler := ProcessorFunc(func(ctx context.Context, req *api.Request) *api.Response {
		order = append(order, "handler")
		return api.NewResponse()
	})

	Chain(trace("outer"), trace("inner"))(handler).Process(context.Background(), getRequest("/"))

	want := []string{"outer>", "inner>", "handler", "<inner", "<outer"}
	if !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestRecovery(t *testing.T) {
	panicking := ProcessorFunc(func(ctx context.Context, req *api.Request) *api.Response {
		panic("handler bug")
	})

	resp := Recovery()(panicking).Process(context.Background(), getRequest("/Products"))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	if string(resp.Body) != api.FallbackErrorBody {
		t.Errorf("body = %q", resp.Body)
	}
	if resp.Header.Get(api.HeaderODataVersion) != api.ODataVersion {
		t.Error("fallback response lacks OData-Version")
	}

	if resp := Recovery()(statusProcessor(http.StatusOK)).Process(context.Background(), getRequest("/")); resp.StatusCode != http.StatusOK {
		t.Errorf("status without panic = %d", resp.StatusCode)
	}
}

func TestRequestID(t *testing.T) {
	var seen []string
	capture := ProcessorFunc(func(ctx context.Context, req *api.Request) *api.Response {
		seen = append(seen, RequestIDFromContext(ctx))
		return api.NewResponse()
	})
	p := RequestID()(capture)

	p.Process(ContextWithRequestID(context.Background(), "from-header"), getRequest("/"))
	for range 50 {
		p.Process(context.Background(), getRequest("/"))
	}

	if seen[0] != "from-header" {
		t.Errorf("existing id replaced by %q", seen[0])
	}
	unique := map[string]bool{}
	for _, id := range seen[1:] {
		if _, err := uuid.Parse(id); err != nil {
			t.Fatalf("generated id %q is not a UUID: %v", id, err)
		}
		unique[id] = true
	}
	if len(unique) != 50 {
		t.Errorf("%d unique ids for 50 requests", len(unique))
	}
}

func TestLogging(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   string
		query  string
		want   []string
	}{
		{
			name:   "success",
			status: http.StatusOK,
			kind:   "entity_set",
			query:  "$top=2",
			want:   []string{"level=INFO", "request completed", "request_id=req-1", "status=200", "kind=entity_set", `query="$top=2"`},
		},
		{
			name:   "client error",
			status: http.StatusNotFound,
			want:   []string{"level=INFO", "status=404", "kind=unknown"},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			want:   []string{"level=ERROR", "request failed", "status=500"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			handler := ProcessorFunc(func(ctx context.Context, req *api.Request) *api.Response {
				if tt.kind != "" {
					RequestInfoFromContext(ctx).Kind = tt.kind
				}
				return statusProcessor(tt.status).Process(ctx, req)
			})

			req := getRequest("/Products")
			req.RawQuery = tt.query
			Logging(logger)(handler).Process(ContextWithRequestID(context.Background(), "req-1"), req)

			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("log output missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestContextValues(t *testing.T) {
	ctx, first := EnsureRequestInfo(context.Background())
	if again, second := EnsureRequestInfo(ctx); again != ctx || first != second {
		t.Error("EnsureRequestInfo replaced an existing RequestInfo")
	}
	if RequestInfoFromContext(context.Background()) != nil {
		t.Error("empty context carries a RequestInfo")
	}

	if TransactionFromContext(context.Background()) != "" {
		t.Error("empty context carries a transaction")
	}
	if got := TransactionFromContext(ContextWithTransaction(ctx, "tx-1")); got != "tx-1" {
		t.Errorf("TransactionFromContext = %q", got)
	}
}

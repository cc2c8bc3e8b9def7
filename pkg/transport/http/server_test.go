package http

import (
	"context"
	"errors"
	"io"
	"net"
	gohttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/transport"
)

func okResponse() *api.Response {
	resp := api.NewResponse()
	resp.StatusCode = gohttp.StatusOK
	resp.Body = []byte("ok")
	return resp
}

func TestServerStartsAndAcceptsRequests(t *testing.T) {
	srv := NewServer(&recordingProcessor{response: okResponse()}, WithAddr("127.0.0.1:0"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	addr := ln.Addr().String()

	go srv.ServeOn(ln)
	time.Sleep(50 * time.Millisecond)

	resp, err := gohttp.Get("http://" + addr + "/odata/Products")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != gohttp.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, gohttp.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

func TestServerGracefulShutdown(t *testing.T) {
	slow := transport.ProcessorFunc(func(ctx context.Context, req *api.Request) *api.Response {
		select {
		case <-time.After(200 * time.Millisecond):
			return okResponse()
		case <-ctx.Done():
			return transport.FallbackResponse()
		}
	})

	srv := NewServer(slow,
		WithAddr("127.0.0.1:0"),
		WithShutdownTimeout(5*time.Second),
	)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	addr := ln.Addr().String()

	go srv.ServeOn(ln)
	time.Sleep(50 * time.Millisecond)

	responseCh := make(chan int, 1)
	go func() {
		resp, err := gohttp.Get("http://" + addr + "/odata/Products")
		if err != nil {
			responseCh <- 0
			return
		}
		defer resp.Body.Close()
		responseCh <- resp.StatusCode
	}()

	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)

	status := <-responseCh
	if status != gohttp.StatusOK {
		t.Errorf("slow request status = %d, want %d", status, gohttp.StatusOK)
	}
}

func TestServerHealthAndReadiness(t *testing.T) {
	ready := errors.New("database down")
	srv := NewServer(&recordingProcessor{},
		WithReadinessCheck(func(context.Context) error { return ready }),
		WithMetrics("/metrics", gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
			w.Write([]byte("odin_requests_total 1\n"))
		})),
	)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(gohttp.MethodGet, path, nil))
		return rec
	}

	if rec := get("/healthz"); rec.Code != gohttp.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
	if rec := get("/readyz"); rec.Code != gohttp.StatusServiceUnavailable {
		t.Errorf("readyz with failing check = %d", rec.Code)
	}
	ready = nil
	if rec := get("/readyz"); rec.Code != gohttp.StatusOK {
		t.Errorf("readyz = %d", rec.Code)
	}
	if rec := get("/metrics"); rec.Code != gohttp.StatusOK || rec.Body.String() != "odin_requests_total 1\n" {
		t.Errorf("metrics = %d %q", rec.Code, rec.Body.String())
	}
}

func TestServerHTTPMiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(name string) func(gohttp.Handler) gohttp.Handler {
		return func(next gohttp.Handler) gohttp.Handler {
			return gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	srv := NewServer(&recordingProcessor{}, WithHTTPMiddleware(mw("auth"), mw("metrics")))
	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(gohttp.MethodGet, "/odata/", nil))

	if len(order) != 2 || order[0] != "auth" || order[1] != "metrics" {
		t.Errorf("middleware order = %v", order)
	}

	order = nil
	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(gohttp.MethodGet, "/healthz", nil))
	if len(order) != 0 {
		t.Errorf("health endpoint passed through service middleware: %v", order)
	}
}

func TestServerFunctionalOptions(t *testing.T) {
	srv := NewServer(&recordingProcessor{},
		WithAddr(":9999"),
		WithMaxBodySize(1024),
		WithShutdownTimeout(10*time.Second),
		WithServicePath("/svc"),
	)

	if srv.config.Addr != ":9999" {
		t.Errorf("addr = %q, want %q", srv.config.Addr, ":9999")
	}
	if srv.config.MaxBodySize != 1024 {
		t.Errorf("max body size = %d, want %d", srv.config.MaxBodySize, 1024)
	}
	if srv.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown timeout = %v, want %v", srv.config.ShutdownTimeout, 10*time.Second)
	}
	if srv.adapter.config.ServicePath != "/svc/" {
		t.Errorf("service path = %q", srv.adapter.config.ServicePath)
	}
}

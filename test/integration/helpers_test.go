// Package integration runs the odin service end to end over HTTP.
//
// The server is assembled the way cmd/server assembles it (memory store,
// reference handler, API key authentication, rate limiting and metrics)
// and started in-process with net/http/httptest.
package integration

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/odin/pkg/auth"
	"github.com/rhuss/odin/pkg/auth/apikey"
	"github.com/rhuss/odin/pkg/dispatch"
	"github.com/rhuss/odin/pkg/metadata/metadatatest"
	"github.com/rhuss/odin/pkg/observability"
	"github.com/rhuss/odin/pkg/storage"
	"github.com/rhuss/odin/pkg/storage/memory"
	transporthttp "github.com/rhuss/odin/pkg/transport/http"
)

// API keys known to the test server.
const (
	keyAdmin    = "admin-key"
	keyReader   = "reader-key"
	keyTenantB  = "tenant-b-key"
	keyThrottle = "throttled-key"
)

// testEnv holds the shared server for all integration tests.
var testEnv *TestEnvironment

// TestEnvironment holds the odin server under test.
type TestEnvironment struct {
	Server *httptest.Server
}

// TestMain starts the odin server before running tests.
func TestMain(m *testing.M) {
	testEnv = setupTestEnvironment()
	code := m.Run()
	testEnv.Teardown()
	os.Exit(code)
}

func setupTestEnvironment() *TestEnvironment {
	handler := storage.NewHandler(memory.New(), storage.WithMaxPageSize(50))
	dispatcher := dispatch.New(metadatatest.Snapshot(), handler)

	keys := apikey.New([]apikey.Key{
		{Key: keyAdmin, Identity: auth.Identity{Subject: "admin"}},
		{Key: keyReader, Identity: auth.Identity{Subject: "reader", Scopes: []string{auth.ScopeRead}}},
		{Key: keyTenantB, Identity: auth.Identity{Subject: "bob", Tenant: "b"}},
		{Key: keyThrottle, Identity: auth.Identity{Subject: "trial-user", Tier: "trial"}},
	})
	chain := &auth.Chain{Authenticators: []auth.Authenticator{keys}, Default: auth.No}
	limiter := auth.NewTokenBucketLimiter(
		map[string]auth.TierConfig{"trial": {RequestsPerSecond: 0.001, Burst: 1}},
		auth.TierConfig{},
	)

	srv := transporthttp.NewServer(dispatcher,
		transporthttp.WithServicePath("/odata/"),
		transporthttp.WithMetrics("/metrics", promhttp.Handler()),
		transporthttp.WithHTTPMiddleware(
			observability.MetricsMiddleware,
			auth.Middleware(chain, limiter, auth.DefaultBypassPaths),
		),
	)

	return &TestEnvironment{Server: httptest.NewServer(srv.Handler())}
}

// Teardown stops the server.
func (env *TestEnvironment) Teardown() {
	if env.Server != nil {
		env.Server.Close()
	}
}

// BaseURL returns the server base URL.
func (env *TestEnvironment) BaseURL() string {
	return env.Server.URL
}

// ServiceURL returns the URL of path below the service root.
func (env *TestEnvironment) ServiceURL(path string) string {
	return env.Server.URL + "/odata/" + strings.TrimPrefix(path, "/")
}

// --- HTTP helpers ---

// do sends a request authenticated with key. An empty key sends no
// credentials. kv are additional header name/value pairs.
func do(t *testing.T, method, url, key, body string, kv ...string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("creating %s request: %v", method, err)
	}
	if key != "" {
		req.Header.Set(apikey.HeaderAPIKey, key)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(kv); i += 2 {
		req.Header.Set(kv[i], kv[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

// getURL sends an unauthenticated GET request.
func getURL(t *testing.T, url string) *http.Response {
	t.Helper()
	return do(t, http.MethodGet, url, "", "")
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	return string(body)
}

// expectStatus reads the body and fails the test unless resp has the
// wanted status.
func expectStatus(t *testing.T, resp *http.Response, want int) string {
	t.Helper()
	body := readBody(t, resp)
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d, body=%s", resp.StatusCode, want, body)
	}
	return body
}

package dispatch

import (
	"net/http"
	"slices"
	"strings"
	"testing"

	"github.com/rhuss/odin/pkg/api"
)

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func batchHeader(prefer string) http.Header {
	h := http.Header{}
	h.Set(api.HeaderContentType, "multipart/mixed;boundary=batch_1")
	if prefer != "" {
		h.Set(api.HeaderPrefer, prefer)
	}
	return h
}

const changeSetBatch = `--batch_1
Content-Type: application/http
Content-Transfer-Encoding: binary

GET Products(1) HTTP/1.1
Accept: application/json


--batch_1
Content-Type: multipart/mixed; boundary=changeset_1

--changeset_1
Content-Type: application/http
Content-ID: 1

POST Products HTTP/1.1
Content-Type: application/json

{"ID":5,"Name":"Tofu"}
--changeset_1
Content-Type: application/http
Content-ID: 2

PATCH $1 HTTP/1.1
Content-Type: application/json

{"Name":"Silken Tofu"}
--changeset_1--

--batch_1--
`

func TestBatchChangeSetCommits(t *testing.T) {
	h := newRecorder()
	resp := serve(t, h, http.MethodPost, "/$batch", batchHeader(""), crlf(changeSetBatch))

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
	}
	if ct := resp.Header.Get(api.HeaderContentType); !strings.HasPrefix(ct, "multipart/mixed;boundary=") {
		t.Errorf("content type = %q", ct)
	}

	body := string(resp.Body)
	for _, status := range []string{"HTTP/1.1 200 OK", "HTTP/1.1 201 Created", "HTTP/1.1 204 No Content"} {
		if !strings.Contains(body, status) {
			t.Errorf("batch response lacks %q:\n%s", status, body)
		}
	}

	want := []string{"Read", "StartTransaction", "CreateEntity", "UpdateEntity", "Commit"}
	if got := h.called(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if got := h.last.EntityID(); got != "Products(5)" {
		t.Errorf("$1 resolved to %q", got)
	}
}

func TestBatchChangeSetRollsBack(t *testing.T) {
	h := newRecorder()
	h.fail["UpdateEntity"] = &api.ApplicationError{Code: "NOT_FOUND", Message: "no such product", StatusCode: http.StatusNotFound}
	resp := serve(t, h, http.MethodPost, "/$batch", batchHeader(""), crlf(changeSetBatch))

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
	}
	body := string(resp.Body)
	if !strings.Contains(body, "HTTP/1.1 404 Not Found") {
		t.Errorf("failed operation missing:\n%s", body)
	}
	if strings.Contains(body, "HTTP/1.1 201 Created") {
		t.Errorf("rolled back changeset reports its create:\n%s", body)
	}

	got := h.called()
	if !slices.Contains(got, "Rollback") || slices.Contains(got, "Commit") {
		t.Errorf("calls = %v", got)
	}
}

const rolledBackReferenceBatch = `--batch_1
Content-Type: multipart/mixed; boundary=changeset_1

--changeset_1
Content-Type: application/http
Content-ID: 1

POST Products HTTP/1.1
Content-Type: application/json

{"ID":5,"Name":"Tofu"}
--changeset_1
Content-Type: application/http
Content-ID: 2

PATCH $1 HTTP/1.1
Content-Type: application/json

{"Name":"Silken Tofu"}
--changeset_1--

--batch_1
Content-Type: application/http

GET $1/Name HTTP/1.1


--batch_1--
`

func TestRolledBackContentIDIsForgotten(t *testing.T) {
	h := newRecorder()
	h.fail["UpdateEntity"] = &api.ApplicationError{Code: "CONFLICT", Message: "busy", StatusCode: http.StatusConflict}
	resp := serve(t, h, http.MethodPost, "/$batch", batchHeader("odata.continue-on-error"), crlf(rolledBackReferenceBatch))

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
	}
	if got := strings.Count(string(resp.Body), "HTTP/1.1 "); got != 2 {
		t.Fatalf("responses = %d, want 2:\n%s", got, resp.Body)
	}
	if strings.Contains(string(resp.Body), "HTTP/1.1 200 OK") {
		t.Errorf("$1 of a rolled back changeset still resolves:\n%s", resp.Body)
	}
	if slices.Contains(h.called(), "Read") {
		t.Errorf("calls = %v, the reference must not reach Read", h.called())
	}
}

func TestBatchContentIDsAfterCommit(t *testing.T) {
	b := &batch{ids: map[string]string{}}
	b.pending = map[string]string{}
	b.remember("1", "Products(5)")
	if _, ok := b.ids["1"]; ok {
		t.Fatal("changeset id visible before commit")
	}
	if id, ok := b.lookup("1"); !ok || id != "Products(5)" {
		t.Errorf("lookup inside changeset = %q, %v", id, ok)
	}
	b.pending = nil
	b.remember("2", "Products(6)")
	if id, ok := b.lookup("2"); !ok || id != "Products(6)" {
		t.Errorf("lookup of top-level id = %q, %v", id, ok)
	}
}

const failingFirstBatch = `--batch_1
Content-Type: application/http

GET Nope(1) HTTP/1.1


--batch_1
Content-Type: application/http

GET Products(1) HTTP/1.1


--batch_1--
`

func TestBatchStopsAfterFailure(t *testing.T) {
	tests := []struct {
		name      string
		prefer    string
		responses int
		applied   string
	}{
		{"default", "", 1, ""},
		{"continue on error", "odata.continue-on-error", 2, "odata.continue-on-error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRecorder()
			resp := serve(t, h, http.MethodPost, "/$batch", batchHeader(tt.prefer), crlf(failingFirstBatch))
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
			}
			if got := strings.Count(string(resp.Body), "HTTP/1.1 "); got != tt.responses {
				t.Errorf("responses = %d, want %d:\n%s", got, tt.responses, resp.Body)
			}
			if got := resp.Header.Get(api.HeaderPreferenceApplied); got != tt.applied {
				t.Errorf("Preference-Applied = %q", got)
			}
		})
	}
}

const nestedBatch = `--batch_1
Content-Type: application/http

POST $batch HTTP/1.1
Content-Type: multipart/mixed;boundary=inner


--batch_1--
`

func TestNestedBatchRejected(t *testing.T) {
	h := newRecorder()
	resp := serve(t, h, http.MethodPost, "/$batch", batchHeader(""), crlf(nestedBatch))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
	}
	if !strings.Contains(string(resp.Body), "HTTP/1.1 400 Bad Request") {
		t.Errorf("nested batch not rejected:\n%s", resp.Body)
	}
}

func TestBatchWithoutBoundary(t *testing.T) {
	header := http.Header{}
	header.Set(api.HeaderContentType, "multipart/mixed")
	resp := serve(t, newRecorder(), http.MethodPost, "/$batch", header, crlf(failingFirstBatch))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
	}
}

func TestBatchTarget(t *testing.T) {
	b := &batch{ids: map[string]string{"1": "Products(5)"}}
	tests := []struct {
		target  string
		path    string
		query   string
		wantErr bool
	}{
		{"Products(1)?$select=Name", "/Products(1)", "$select=Name", false},
		{"/svc/Products(1)", "/Products(1)", "", false},
		{serviceRoot + "Categories(1)/Products", "/Categories(1)/Products", "", false},
		{"$1", "/Products(5)", "", false},
		{"$1/Name", "/Products(5)/Name", "", false},
		{"$metadata", "/$metadata", "", false},
		{"http://other/svc/Products", "", "", true},
		{"/elsewhere/Products", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			path, query, err := b.target(tt.target, serviceRoot)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if tt.wantErr {
				return
			}
			if path != tt.path || query != tt.query {
				t.Errorf("target = %q ? %q, want %q ? %q", path, query, tt.path, tt.query)
			}
		})
	}
}

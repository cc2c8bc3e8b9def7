package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/edm"
	"github.com/rhuss/odin/pkg/metadata"
	"github.com/rhuss/odin/pkg/metadata/metadatatest"
	"github.com/rhuss/odin/pkg/request"
	"github.com/rhuss/odin/pkg/response"
	"github.com/rhuss/odin/pkg/transport"
)

const serviceRoot = "http://localhost/svc/"

// recorder is a Handler that records the calls it receives and answers
// with fixed demo data.
type recorder struct {
	transport.BaseHandler

	mu    sync.Mutex
	calls []string
	last  *request.Descriptor
	merge bool

	// fail makes the named call return err.
	fail    map[string]error
	panicOn string
	// incomplete leaves the sink of Read open.
	incomplete bool
	// missing makes Read find no entity.
	missing   bool
	isolation bool
}

func newRecorder() *recorder {
	return &recorder{fail: map[string]error{}}
}

func (r *recorder) record(name string, d *request.Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
	if d != nil {
		r.last = d
	}
	if r.panicOn == name {
		panic("boom")
	}
	return r.fail[name]
}

func (r *recorder) called() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func product(id int64) *api.Entity {
	return &api.Entity{
		Type: "Demo.Product",
		ID:   "Products(" + strconv.FormatInt(id, 10) + ")",
		ETag: `W/"1"`,
		Properties: []*api.Property{
			{Name: "ID", Type: edm.TypeInt32, Value: id},
			{Name: "Name", Type: edm.TypeString, Value: "Chai"},
		},
	}
}

func (r *recorder) Read(_ context.Context, d *request.Descriptor, s response.Sink) error {
	if err := r.record("Read", d); err != nil {
		return err
	}
	if r.incomplete {
		return nil
	}
	switch s := s.(type) {
	case *response.EntitySink:
		if r.missing {
			s.WriteReadEntity(nil)
			break
		}
		s.WriteReadEntity(product(1))
	case *response.EntitySetSink:
		s.WriteReadEntitySet(&api.EntityCollection{Entities: []*api.Entity{product(1), product(2)}})
	case *response.CountSink:
		s.WriteCount(2)
	case *response.PropertySink:
		s.WriteProperty(&api.Property{Name: "Name", Type: edm.TypeString, Value: "Chai"})
	case *response.PrimitiveValueSink:
		s.WriteValue(&api.Property{Name: "Name", Type: edm.TypeString, Value: "Chai"})
	default:
		s.WriteServerError()
		s.Close()
	}
	return nil
}

func (r *recorder) CreateEntity(_ context.Context, d *request.Descriptor, e *api.Entity, s *response.EntitySink) error {
	if err := r.record("CreateEntity", d); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = "Products(" + fmt.Sprint(e.Property("ID").Value) + ")"
	}
	s.WriteCreatedEntity(e)
	return nil
}

func (r *recorder) CreateMediaEntity(_ context.Context, d *request.Descriptor, m *api.Media, s *response.EntitySink) error {
	if err := r.record("CreateMediaEntity", d); err != nil {
		return err
	}
	s.WriteCreatedEntity(&api.Entity{Type: "Demo.Photo", ID: "Photos(1)", MediaContentType: m.ContentType})
	return nil
}

func (r *recorder) UpdateEntity(_ context.Context, d *request.Descriptor, e *api.Entity, merge bool, s *response.EntitySink) error {
	if err := r.record("UpdateEntity", d); err != nil {
		return err
	}
	r.mu.Lock()
	r.merge = merge
	r.mu.Unlock()
	e.ID = d.EntityID()
	e.ETag = `W/"2"`
	s.WriteUpdatedEntity(e)
	return nil
}

func (r *recorder) DeleteEntity(_ context.Context, d *request.Descriptor, s *response.EntitySink) error {
	if err := r.record("DeleteEntity", d); err != nil {
		return err
	}
	s.WriteDeletedEntityOrReference()
	return nil
}

func (r *recorder) UpdateProperty(_ context.Context, d *request.Descriptor, p *api.Property, _ bool, s *response.PropertySink) error {
	if err := r.record("UpdateProperty", d); err != nil {
		return err
	}
	s.WritePropertyUpdated(p)
	return nil
}

func (r *recorder) DeleteReference(_ context.Context, d *request.Descriptor, _ string, s *response.NoContentSink) error {
	if err := r.record("DeleteReference", d); err != nil {
		return err
	}
	s.WriteDone()
	return nil
}

func (r *recorder) StartTransaction(context.Context) (string, error) {
	return "tx-1", r.record("StartTransaction", nil)
}

func (r *recorder) Commit(context.Context, string) error { return r.record("Commit", nil) }

func (r *recorder) Rollback(context.Context, string) error { return r.record("Rollback", nil) }

func (r *recorder) SupportsDataIsolation() bool { return r.isolation }

// serve dispatches one request against the demo registry.
func serve(t *testing.T, h transport.Handler, method, target string, header http.Header, body string) *api.Response {
	t.Helper()
	path, query, _ := strings.Cut(target, "?")
	if header == nil {
		header = http.Header{}
	}
	req := &api.Request{
		Method:      method,
		Header:      header,
		RawPath:     path,
		RawQuery:    query,
		Body:        []byte(body),
		ServiceRoot: serviceRoot,
	}
	return New(metadatatest.Snapshot(), h).Process(context.Background(), req)
}

func jsonHeader(kv ...string) http.Header {
	h := http.Header{}
	h.Set(api.HeaderContentType, "application/json")
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}

func errorCode(resp *api.Response) string {
	return gjson.GetBytes(resp.Body, "error.code").String()
}

func TestReadEntity(t *testing.T) {
	h := newRecorder()
	resp := serve(t, h, http.MethodGet, "/Products(1)", nil, "")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
	}
	if got := gjson.GetBytes(resp.Body, "Name").String(); got != "Chai" {
		t.Errorf("Name = %q", got)
	}
	if got := gjson.GetBytes(resp.Body, "@odata\\.context").String(); got != serviceRoot+"$metadata#Products/$entity" {
		t.Errorf("context = %q", got)
	}
	if h.last.Kind() != request.KindEntity || h.last.EntityID() != "Products(1)" {
		t.Errorf("descriptor = %s %s", h.last.Kind(), h.last.EntityID())
	}
}

func TestReadMissingEntity(t *testing.T) {
	h := newRecorder()
	h.missing = true
	resp := serve(t, h, http.MethodGet, "/Products(42)", nil, "")

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if len(resp.Body) != 0 {
		t.Errorf("body = %q, want none", resp.Body)
	}
	if ct := resp.Header.Get(api.HeaderContentType); ct != "" {
		t.Errorf("Content-Type = %q on an empty 404", ct)
	}
	if v := resp.Header.Get(api.HeaderODataVersion); v != api.ODataVersion {
		t.Errorf("OData-Version = %q", v)
	}
}

func TestReadKinds(t *testing.T) {
	tests := []struct {
		name   string
		target string
		kind   request.Kind
		status int
	}{
		{"entity set", "/Products", request.KindEntitySet, http.StatusOK},
		{"count", "/Products/$count", request.KindCount, http.StatusOK},
		{"property", "/Products(1)/Name", request.KindProperty, http.StatusOK},
		{"value", "/Products(1)/Name/$value", request.KindValue, http.StatusOK},
		{"navigation entity", "/Products(1)/Category", request.KindEntity, http.StatusOK},
		{"navigation set", "/Categories(1)/Products", request.KindEntitySet, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRecorder()
			resp := serve(t, h, http.MethodGet, tt.target, nil, "")
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
			}
			if h.last == nil || h.last.Kind() != tt.kind {
				t.Fatalf("descriptor = %+v", h.last)
			}
		})
	}
}

func TestServiceAndMetadataDocuments(t *testing.T) {
	h := newRecorder()

	resp := serve(t, h, http.MethodGet, "/", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("service document status = %d body=%s", resp.StatusCode, resp.Body)
	}
	if !gjson.GetBytes(resp.Body, "value").IsArray() {
		t.Errorf("service document = %s", resp.Body)
	}

	resp = serve(t, h, http.MethodGet, "/$metadata", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metadata status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get(api.HeaderContentType); !strings.HasPrefix(ct, "application/xml") {
		t.Errorf("metadata content type = %q", ct)
	}
}

func TestCreateEntity(t *testing.T) {
	h := newRecorder()
	resp := serve(t, h, http.MethodPost, "/Products", jsonHeader(), `{"ID":5,"Name":"Tofu"}`)

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
	}
	if got := resp.Header.Get(api.HeaderLocation); got != serviceRoot+"Products(5)" {
		t.Errorf("Location = %q", got)
	}
	if got := h.called(); len(got) != 1 || got[0] != "CreateEntity" {
		t.Errorf("calls = %v", got)
	}
}

func TestCreateEntityReturnMinimal(t *testing.T) {
	h := newRecorder()
	resp := serve(t, h, http.MethodPost, "/Products",
		jsonHeader(api.HeaderPrefer, "return=minimal"), `{"ID":5,"Name":"Tofu"}`)

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
	}
	if got := resp.Header.Get(api.HeaderLocation); got != serviceRoot+"Products(5)" {
		t.Errorf("Location = %q", got)
	}
	if got := resp.Header.Get(api.HeaderPreferenceApplied); got != "return=minimal" {
		t.Errorf("Preference-Applied = %q", got)
	}
	if len(resp.Body) != 0 {
		t.Errorf("body = %q", resp.Body)
	}
}

func TestCreateMediaEntity(t *testing.T) {
	h := newRecorder()
	header := http.Header{}
	header.Set(api.HeaderContentType, "image/png")
	resp := serve(t, h, http.MethodPost, "/Photos", header, "\x89PNG")

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
	}
	if got := h.called(); len(got) != 1 || got[0] != "CreateMediaEntity" {
		t.Errorf("calls = %v", got)
	}
}

func TestConditionalUpdateRouting(t *testing.T) {
	tests := []struct {
		name   string
		method string
		header http.Header
		call   string
		merge  bool
	}{
		{"put", http.MethodPut, jsonHeader(), "UpdateEntity", false},
		{"patch", http.MethodPatch, jsonHeader(), "UpdateEntity", true},
		{"if-match", http.MethodPatch, jsonHeader(api.HeaderIfMatch, `W/"1"`), "UpdateEntity", true},
		{"if-none-match any", http.MethodPut, jsonHeader(api.HeaderIfNoneMatch, "*"), "CreateEntity", false},
		{"both headers", http.MethodPut, jsonHeader(api.HeaderIfMatch, "*", api.HeaderIfNoneMatch, "*"), "UpdateEntity", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRecorder()
			resp := serve(t, h, tt.method, "/Products(1)", tt.header, `{"ID":1,"Name":"Chai"}`)
			if resp.StatusCode >= http.StatusBadRequest {
				t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
			}
			got := h.called()
			if len(got) != 1 || got[0] != tt.call {
				t.Fatalf("calls = %v, want [%s]", got, tt.call)
			}
			if tt.call == "UpdateEntity" && h.merge != tt.merge {
				t.Errorf("merge = %v, want %v", h.merge, tt.merge)
			}
		})
	}
}

func TestUpdateReturnsETag(t *testing.T) {
	h := newRecorder()
	resp := serve(t, h, http.MethodPatch, "/Products(1)", jsonHeader(), `{"Name":"Chai"}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
	}
	if got := resp.Header.Get(api.HeaderETag); got != `W/"2"` {
		t.Errorf("ETag = %q", got)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
	}{
		{"patch reference", http.MethodPatch, "/Products(1)/Category/$ref"},
		{"patch collection property", http.MethodPatch, "/Products(1)/Tags"},
		{"post count", http.MethodPost, "/Products/$count"},
		{"delete metadata", http.MethodDelete, "/$metadata"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRecorder()
			resp := serve(t, h, tt.method, tt.target, jsonHeader(), "")
			if resp.StatusCode != http.StatusMethodNotAllowed {
				t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
			}
			if len(h.called()) != 0 {
				t.Errorf("handler called: %v", h.called())
			}
		})
	}
}

func TestPatchSingleValuedProperty(t *testing.T) {
	h := newRecorder()
	resp := serve(t, h, http.MethodPatch, "/Products(1)/Address", jsonHeader(), `{"City":"Berlin"}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
	}
	if got := h.called(); len(got) != 1 || got[0] != "UpdateProperty" {
		t.Errorf("calls = %v", got)
	}
}

func TestInvalidQueryNeverReachesHandler(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"bad filter", "/Products?$filter=Name eq"},
		{"unknown option", "/Products?$bogus=1"},
		{"top on entity", "/Products(1)?$top=1"},
		{"negative top", "/Products?$top=-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRecorder()
			resp := serve(t, h, http.MethodGet, tt.target, nil, "")
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
			}
			if len(h.called()) != 0 {
				t.Errorf("handler called: %v", h.called())
			}
			if errorCode(resp) == "" {
				t.Errorf("missing error code: %s", resp.Body)
			}
		})
	}
}

func TestUnknownResourceIsNotFound(t *testing.T) {
	resp := serve(t, newRecorder(), http.MethodGet, "/Nope", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
	}
	if got := errorCode(resp); got != api.KeyResourceNotFound {
		t.Errorf("code = %q", got)
	}
}

func TestEntityRewrite(t *testing.T) {
	h := newRecorder()
	resp := serve(t, h, http.MethodGet, "/$entity?$id="+serviceRoot+"Products(1)&$select=Name", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
	}
	viaEntity := h.last

	direct := newRecorder()
	serve(t, direct, http.MethodGet, "/Products(1)?$select=Name", nil, "")

	if viaEntity.Kind() != direct.last.Kind() ||
		viaEntity.EntityID() != direct.last.EntityID() ||
		viaEntity.ResourcePath() != direct.last.ResourcePath() {
		t.Errorf("$entity = %s %s %s, direct = %s %s %s",
			viaEntity.Kind(), viaEntity.EntityID(), viaEntity.ResourcePath(),
			direct.last.Kind(), direct.last.EntityID(), direct.last.ResourcePath())
	}
	if len(viaEntity.Query().Select) != 1 {
		t.Errorf("$select lost in rewrite: %+v", viaEntity.Query().Select)
	}
}

func TestEntityRewriteOutsideService(t *testing.T) {
	resp := serve(t, newRecorder(), http.MethodGet, "/$entity?$id=http://elsewhere/Products(1)", nil, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
	}
}

func TestMaxVersion(t *testing.T) {
	tests := []struct {
		value  string
		status int
	}{
		{"", http.StatusOK},
		{"4.0", http.StatusOK},
		{"4.01", http.StatusOK},
		{"3.0", http.StatusBadRequest},
		{"four", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			header := http.Header{}
			if tt.value != "" {
				header.Set(api.HeaderODataMaxVersion, tt.value)
			}
			resp := serve(t, newRecorder(), http.MethodGet, "/Products(1)", header, "")
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
			}
		})
	}
}

func TestIsolationSnapshot(t *testing.T) {
	header := http.Header{}
	header.Set(api.HeaderODataIsolation, "snapshot")

	resp := serve(t, newRecorder(), http.MethodGet, "/Products(1)", header, "")
	if resp.StatusCode != http.StatusPreconditionFailed {
		t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
	}

	h := newRecorder()
	h.isolation = true
	resp = serve(t, h, http.MethodGet, "/Products(1)", header, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status with isolation = %d", resp.StatusCode)
	}
}

func TestUnsupportedRequest(t *testing.T) {
	h := newRecorder()
	resp := serve(t, h, http.MethodGet, "/$all", nil, "")
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
	}
}

func TestHandlerErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{
			name:   "application error",
			err:    &api.ApplicationError{Code: "OUT_OF_STOCK", Message: "gone", StatusCode: http.StatusConflict},
			status: http.StatusConflict,
			code:   "OUT_OF_STOCK",
		},
		{
			name:   "plain error",
			err:    context.DeadlineExceeded,
			status: http.StatusInternalServerError,
			code:   "500",
		},
		{
			name:   "not implemented",
			err:    api.NewNotImplementedError("later"),
			status: http.StatusNotImplemented,
			code:   api.KeyProcessorNotImplemented,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRecorder()
			h.fail["Read"] = tt.err
			resp := serve(t, h, http.MethodGet, "/Products(1)", nil, "")
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
			}
			if got := errorCode(resp); got != tt.code {
				t.Errorf("code = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestPlainErrorTextIsHidden(t *testing.T) {
	h := newRecorder()
	h.fail["Read"] = &secretError{}
	resp := serve(t, h, http.MethodGet, "/Products(1)", nil, "")
	if strings.Contains(string(resp.Body), "password") {
		t.Errorf("error body leaks cause: %s", resp.Body)
	}
}

type secretError struct{}

func (*secretError) Error() string { return "password=hunter2" }

func TestHandlerPanic(t *testing.T) {
	h := newRecorder()
	h.panicOn = "Read"
	resp := serve(t, h, http.MethodGet, "/Products(1)", nil, "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
	}
	if errorCode(resp) == "" {
		t.Errorf("missing error document: %s", resp.Body)
	}
}

func TestIncompleteResponse(t *testing.T) {
	h := newRecorder()
	h.incomplete = true
	resp := serve(t, h, http.MethodGet, "/Products(1)", nil, "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := errorCode(resp); got != api.KeyIncompleteResponse {
		t.Errorf("code = %q", got)
	}
}

func TestErrorContentNegotiation(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		accept   string
		wantType string
		wantBody string
	}{
		{"default", "/Nope", "", "application/json", `"error":`},
		{"xml accepted", "/Nope", "application/xml", "application/xml", "<error"},
		{"format xml", "/Nope?$format=xml", "", "application/xml", "<error"},
		{"unsupported accept falls back", "/Nope", "image/png", "application/json", `"error":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.accept != "" {
				header.Set(api.HeaderAccept, tt.accept)
			}
			resp := serve(t, newRecorder(), http.MethodGet, tt.target, header, "")

			if resp.StatusCode != http.StatusNotFound {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			if ct := resp.Header.Get(api.HeaderContentType); !strings.HasPrefix(ct, tt.wantType) {
				t.Errorf("error content type = %q, want %s", ct, tt.wantType)
			}
			if !strings.Contains(string(resp.Body), tt.wantBody) {
				t.Errorf("body = %s", resp.Body)
			}
			if got := resp.Header.Get(api.HeaderODataVersion); got != api.ODataVersion {
				t.Errorf("OData-Version = %q", got)
			}
		})
	}
}

func TestUnacceptableResponseFormat(t *testing.T) {
	h := newRecorder()
	resp := serve(t, h, http.MethodGet, "/Products(1)?$format=atom", nil, "")
	if resp.StatusCode != http.StatusNotAcceptable {
		t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
	}
	if len(h.called()) != 0 {
		t.Errorf("handler called: %v", h.called())
	}
}

func TestUnsupportedRequestContentType(t *testing.T) {
	header := http.Header{}
	header.Set(api.HeaderContentType, "text/csv")
	resp := serve(t, newRecorder(), http.MethodPost, "/Products", header, "ID\n5")
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
	}
}

func TestNoMetadataLoaded(t *testing.T) {
	p := New(metadata.NewSnapshot(nil), newRecorder())
	resp := p.Process(context.Background(), &api.Request{
		Method: http.MethodGet, Header: http.Header{}, RawPath: "/Products", ServiceRoot: serviceRoot,
	})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestReloadedRegistryIsServed(t *testing.T) {
	snap := metadata.NewSnapshot(nil)
	p := New(snap, newRecorder())
	req := &api.Request{Method: http.MethodGet, Header: http.Header{}, RawPath: "/Products(1)", ServiceRoot: serviceRoot}

	if resp := p.Process(context.Background(), req); resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status before load = %d", resp.StatusCode)
	}
	snap.Store(metadatatest.Registry())
	if resp := p.Process(context.Background(), req); resp.StatusCode != http.StatusOK {
		t.Fatalf("status after load = %d body=%s", resp.StatusCode, resp.Body)
	}
}

func TestProcessReportsKind(t *testing.T) {
	ctx, info := transport.EnsureRequestInfo(context.Background())
	req := &api.Request{Method: http.MethodGet, Header: http.Header{}, RawPath: "/Products", ServiceRoot: serviceRoot}
	New(metadatatest.Snapshot(), newRecorder()).Process(ctx, req)
	if info.Kind != "entity_set" {
		t.Errorf("kind = %q", info.Kind)
	}
}

func TestDeleteReferenceRequiresID(t *testing.T) {
	h := newRecorder()
	resp := serve(t, h, http.MethodDelete, "/Products(1)/Related/$ref", nil, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
	}

	resp = serve(t, h, http.MethodDelete, "/Products(1)/Related/$ref?$id=Products(2)", nil, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d body=%s", resp.StatusCode, resp.Body)
	}
	if got := h.called(); len(got) != 1 || got[0] != "DeleteReference" {
		t.Errorf("calls = %v", got)
	}
}

func TestCheckMaxVersion(t *testing.T) {
	for _, v := range []string{"", "4.0", " 4.01 ", "5"} {
		if err := checkMaxVersion(v); err != nil {
			t.Errorf("checkMaxVersion(%q) = %v", v, err)
		}
	}
	for _, v := range []string{"3.0", "x", "4.x"} {
		if err := checkMaxVersion(v); err == nil {
			t.Errorf("checkMaxVersion(%q) succeeded", v)
		}
	}
}

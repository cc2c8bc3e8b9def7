package response

import (
	"errors"
	"net/http"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/debug"
	"github.com/rhuss/odin/pkg/edm"
	"github.com/rhuss/odin/pkg/format"
	"github.com/rhuss/odin/pkg/request"
	"github.com/rhuss/odin/pkg/serializer"
	"github.com/rhuss/odin/pkg/uri"
)

// ErrSinkClosed is the panic value of a write to a closed sink.
var ErrSinkClosed = errors.New("response: write to closed sink")

// Sink is the contract shared by all sinks.
type Sink interface {
	WriteOK(ct format.ContentType)
	WriteCreated()
	WriteNoContent()
	WriteNotFound()
	WriteBadRequest()
	WriteServerError()
	WriteHeader(name, value string)
	Close()
	Closed() bool
	Response() *api.Response
}

// Config carries the negotiated settings of one response.
type Config struct {
	// ContentType is the negotiated response content type.
	ContentType format.ContentType

	// Serializer writes bodies in ContentType. Sinks that never emit a
	// structured body may leave it nil.
	Serializer serializer.Serializer

	// Options are handed to the serializer unchanged.
	Options serializer.Options

	Preferences request.Preferences

	// ServiceRoot prefixes entity ids in Location and OData-EntityId.
	ServiceRoot string

	// EntitySet and Keys name the collection and key properties of the
	// addressed type. They derive the canonical id of a created entity
	// the handler left without one.
	EntitySet string
	Keys      []*edm.Property

	// ReferencesOnly marks a $ref response. Entity and entity set sinks
	// cannot represent it and answer 500.
	ReferencesOnly bool
}

// Base implements Sink. The concrete sinks embed it.
type Base struct {
	resp   *api.Response
	cfg    Config
	closed bool
}

func newBase(resp *api.Response, cfg Config) Base {
	if resp == nil {
		resp = api.NewResponse()
	}
	return Base{resp: resp, cfg: cfg}
}

// Response returns the response the sink fills.
func (b *Base) Response() *api.Response { return b.resp }

// Closed reports whether the sink has been closed.
func (b *Base) Closed() bool { return b.closed }

// Close closes the sink. A second call is a no-op.
func (b *Base) Close() { b.closed = true }

func (b *Base) mustBeOpen() {
	if b.closed {
		panic(ErrSinkClosed)
	}
}

// WriteOK sets 200 with the given content type.
func (b *Base) WriteOK(ct format.ContentType) {
	b.mustBeOpen()
	b.resp.StatusCode = http.StatusOK
	if !ct.IsZero() {
		b.resp.Header.Set(api.HeaderContentType, ct.String())
	}
}

// WriteCreated sets 201.
func (b *Base) WriteCreated() {
	b.mustBeOpen()
	b.resp.StatusCode = http.StatusCreated
}

// WriteNoContent sets 204 and drops any body.
func (b *Base) WriteNoContent() {
	b.mustBeOpen()
	b.resp.StatusCode = http.StatusNoContent
	b.resp.Body = nil
	b.resp.Header.Del(api.HeaderContentType)
}

// WriteNotFound sets 404.
func (b *Base) WriteNotFound() { b.writeStatus(http.StatusNotFound) }

// WriteBadRequest sets 400.
func (b *Base) WriteBadRequest() { b.writeStatus(http.StatusBadRequest) }

// WriteServerError sets 500.
func (b *Base) WriteServerError() { b.writeStatus(http.StatusInternalServerError) }

func (b *Base) writeStatus(status int) {
	b.mustBeOpen()
	b.resp.StatusCode = status
	b.resp.Body = nil
	b.resp.Header.Del(api.HeaderContentType)
	b.resp.Header.Del(api.HeaderETag)
}

// WriteHeader sets a response header.
func (b *Base) WriteHeader(name, value string) {
	b.mustBeOpen()
	b.resp.Header.Set(name, value)
}

// finish closes the sink with the given status and no body.
func (b *Base) finish(status int) {
	b.writeStatus(status)
	b.Close()
}

// commit writes a fully serialized body and closes the sink.
func (b *Base) commit(status int, ct format.ContentType, body []byte) {
	b.mustBeOpen()
	b.resp.StatusCode = status
	if !ct.IsZero() {
		b.resp.Header.Set(api.HeaderContentType, ct.String())
	}
	b.resp.Body = body
	b.Close()
}

// serialize runs fn and degrades to 500 when it fails. It reports whether
// a body was produced.
func (b *Base) serialize(fn func(s serializer.Serializer) ([]byte, error)) ([]byte, bool) {
	b.mustBeOpen()
	if b.cfg.Serializer == nil {
		debug.Log(debug.Dispatch, "no serializer configured for sink")
		b.finish(http.StatusInternalServerError)
		return nil, false
	}
	body, err := fn(b.cfg.Serializer)
	if err != nil {
		debug.Log(debug.Dispatch, "serialization failed", "error", err)
		b.finish(http.StatusInternalServerError)
		return nil, false
	}
	return body, true
}

func (b *Base) setETag(etag string) {
	if etag != "" {
		b.resp.Header.Set(api.HeaderETag, etag)
	}
}

func (b *Base) applyPreference(r request.Return) {
	if r != request.ReturnDefault {
		b.resp.Header.Set(api.HeaderPreferenceApplied, r.String())
	}
}

func (b *Base) entityURL(id string) string {
	return b.cfg.ServiceRoot + id
}

// canonicalID returns e.ID, or the id built from the configured entity
// set and the key values of e. It is empty when neither is available.
func (b *Base) canonicalID(e *api.Entity) string {
	if e.ID != "" {
		return e.ID
	}
	if b.cfg.EntitySet == "" || len(b.cfg.Keys) == 0 {
		return ""
	}
	keys := make([]uri.KeyPredicate, 0, len(b.cfg.Keys))
	for _, kp := range b.cfg.Keys {
		p := e.Property(kp.Name)
		if p.IsNull() {
			return ""
		}
		raw, err := edm.FormatLiteral(kp.Type, p.Value)
		if err != nil {
			return ""
		}
		keys = append(keys, uri.KeyPredicate{Name: kp.Name, Raw: raw, Value: p.Value})
	}
	return b.cfg.EntitySet + request.KeyPredicate(keys)
}

package response

import (
	"net/http"
	"strconv"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/edm"
	"github.com/rhuss/odin/pkg/format"
	"github.com/rhuss/odin/pkg/metadata"
	"github.com/rhuss/odin/pkg/request"
	"github.com/rhuss/odin/pkg/serializer"
)

// PropertySink receives a structural property or an operation result
// that is not an entity.
type PropertySink struct {
	Base
}

// NewPropertySink returns a sink filling resp.
func NewPropertySink(resp *api.Response, cfg Config) *PropertySink {
	return &PropertySink{Base: newBase(resp, cfg)}
}

// WriteProperty writes p with 200. A nil property is 404, a null value
// is 204.
func (s *PropertySink) WriteProperty(p *api.Property) {
	s.mustBeOpen()
	switch {
	case p == nil:
		s.finish(http.StatusNotFound)
		return
	case p.IsNull():
		s.WriteNoContent()
		s.Close()
		return
	}
	body, ok := s.serialize(func(ser serializer.Serializer) ([]byte, error) {
		return ser.Property(p, s.cfg.Options)
	})
	if !ok {
		return
	}
	s.commit(http.StatusOK, s.cfg.ContentType, body)
}

// WritePropertyUpdated answers a property update or delete: 204, or 200
// with the new value when return=representation was requested.
func (s *PropertySink) WritePropertyUpdated(p *api.Property) {
	s.mustBeOpen()
	if p != nil && !p.IsNull() && s.cfg.Preferences.Return == request.ReturnRepresentation {
		s.applyPreference(request.ReturnRepresentation)
		s.WriteProperty(p)
		return
	}
	s.WriteNoContent()
	s.Close()
}

// PrimitiveValueSink receives the raw value of a primitive property.
type PrimitiveValueSink struct {
	Base
}

// NewPrimitiveValueSink returns a sink filling resp.
func NewPrimitiveValueSink(resp *api.Response, cfg Config) *PrimitiveValueSink {
	return &PrimitiveValueSink{Base: newBase(resp, cfg)}
}

// WriteValue writes the raw value of p: binary values as they are, all
// others as text. A nil property is 404, a null value 204.
func (s *PrimitiveValueSink) WriteValue(p *api.Property) {
	s.mustBeOpen()
	switch {
	case p == nil:
		s.finish(http.StatusNotFound)
		return
	case p.IsNull():
		s.WriteNoContent()
		s.Close()
		return
	}
	ct := s.cfg.ContentType
	var body []byte
	switch v := p.Value.(type) {
	case []byte:
		body = v
		if ct.IsZero() || ct.Is(format.MediaText) {
			ct = format.MustParse(format.MediaOctetStream)
		}
	case string:
		body = []byte(v)
	default:
		text, err := edm.FormatLiteral(p.Type, v)
		if err != nil {
			s.finish(http.StatusInternalServerError)
			return
		}
		body = []byte(text)
	}
	if ct.IsZero() {
		ct = format.MustParse(format.MediaText)
	}
	s.commit(http.StatusOK, ct, body)
}

// CountSink receives the result of a $count request.
type CountSink struct {
	Base
}

// NewCountSink returns a sink filling resp.
func NewCountSink(resp *api.Response, cfg Config) *CountSink {
	return &CountSink{Base: newBase(resp, cfg)}
}

// WriteCount writes n as text/plain.
func (s *CountSink) WriteCount(n int) {
	s.mustBeOpen()
	ct := s.cfg.ContentType
	if ct.IsZero() {
		ct = format.MustParse(format.MediaText)
	}
	s.commit(http.StatusOK, ct, []byte(strconv.Itoa(n)))
}

// NoContentSink receives the outcome of operations without a response
// body.
type NoContentSink struct {
	Base
}

// NewNoContentSink returns a sink filling resp.
func NewNoContentSink(resp *api.Response, cfg Config) *NoContentSink {
	return &NoContentSink{Base: newBase(resp, cfg)}
}

// WriteDone writes 204 and closes the sink.
func (s *NoContentSink) WriteDone() {
	s.mustBeOpen()
	s.WriteNoContent()
	s.Close()
}

// StreamSink receives a media resource or stream property.
type StreamSink struct {
	Base
}

// NewStreamSink returns a sink filling resp.
func NewStreamSink(resp *api.Response, cfg Config) *StreamSink {
	return &StreamSink{Base: newBase(resp, cfg)}
}

// WriteStream writes m in its own content type with the media ETag. A nil
// media is 404.
func (s *StreamSink) WriteStream(m *api.Media, etag string) {
	s.mustBeOpen()
	if m == nil {
		s.finish(http.StatusNotFound)
		return
	}
	ct := s.cfg.ContentType
	if m.ContentType != "" {
		if parsed, err := format.ParseContentType(m.ContentType); err == nil {
			ct = parsed
		}
	}
	if ct.IsZero() {
		ct = format.MustParse(format.MediaOctetStream)
	}
	s.setETag(etag)
	s.commit(http.StatusOK, ct, m.Data)
}

// MetadataSink receives the metadata document.
type MetadataSink struct {
	Base
}

// NewMetadataSink returns a sink filling resp.
func NewMetadataSink(resp *api.Response, cfg Config) *MetadataSink {
	return &MetadataSink{Base: newBase(resp, cfg)}
}

// WriteMetadata serializes the CSDL document of reg.
func (s *MetadataSink) WriteMetadata(reg *metadata.Registry) {
	s.mustBeOpen()
	if reg == nil {
		s.finish(http.StatusNotFound)
		return
	}
	body, ok := s.serialize(func(ser serializer.Serializer) ([]byte, error) {
		return ser.Metadata(reg)
	})
	if !ok {
		return
	}
	s.commit(http.StatusOK, s.cfg.ContentType, body)
}

// ServiceDocumentSink receives the service document.
type ServiceDocumentSink struct {
	Base
}

// NewServiceDocumentSink returns a sink filling resp.
func NewServiceDocumentSink(resp *api.Response, cfg Config) *ServiceDocumentSink {
	return &ServiceDocumentSink{Base: newBase(resp, cfg)}
}

// WriteServiceDocument serializes the entity container of reg.
func (s *ServiceDocumentSink) WriteServiceDocument(reg *metadata.Registry) {
	s.mustBeOpen()
	if reg == nil {
		s.finish(http.StatusNotFound)
		return
	}
	body, ok := s.serialize(func(ser serializer.Serializer) ([]byte, error) {
		return ser.ServiceDocument(reg, s.cfg.Options)
	})
	if !ok {
		return
	}
	s.commit(http.StatusOK, s.cfg.ContentType, body)
}

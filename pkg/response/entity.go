package response

import (
	"net/http"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/request"
	"github.com/rhuss/odin/pkg/serializer"
)

// EntitySink receives a single entity.
type EntitySink struct {
	Base
}

// NewEntitySink returns a sink filling resp.
func NewEntitySink(resp *api.Response, cfg Config) *EntitySink {
	return &EntitySink{Base: newBase(resp, cfg)}
}

// WriteReadEntity writes e with 200, or 404 when e is nil.
func (s *EntitySink) WriteReadEntity(e *api.Entity) {
	s.writeEntity(http.StatusOK, e)
}

// WriteCreatedEntity answers a successful create. With return=minimal the
// response is 204 with Location and OData-EntityId and no body; otherwise
// it is 201 carrying the entity.
func (s *EntitySink) WriteCreatedEntity(e *api.Entity) {
	s.mustBeOpen()
	if e == nil {
		s.finish(http.StatusNotFound)
		return
	}
	if s.cfg.ReferencesOnly {
		s.finish(http.StatusInternalServerError)
		return
	}
	if s.cfg.Preferences.Return == request.ReturnMinimal {
		s.WriteNoContent()
		s.applyPreference(request.ReturnMinimal)
		if id := s.canonicalID(e); id != "" {
			s.resp.Header.Set(api.HeaderLocation, s.entityURL(id))
			s.resp.Header.Set(api.HeaderODataEntityID, s.entityURL(id))
		}
		s.setETag(e.ETag)
		s.Close()
		return
	}
	body, ok := s.serialize(func(ser serializer.Serializer) ([]byte, error) {
		return ser.Entity(e, s.cfg.Options)
	})
	if !ok {
		return
	}
	s.applyPreference(s.cfg.Preferences.Return)
	if id := s.canonicalID(e); id != "" {
		s.resp.Header.Set(api.HeaderLocation, s.entityURL(id))
	}
	s.setETag(e.ETag)
	s.commit(http.StatusCreated, s.cfg.ContentType, body)
}

// WriteUpdatedEntity answers a successful update: 204 with the new ETag,
// or 200 with the entity when return=representation was requested.
func (s *EntitySink) WriteUpdatedEntity(e *api.Entity) {
	s.mustBeOpen()
	if e == nil {
		s.finish(http.StatusNotFound)
		return
	}
	if s.cfg.Preferences.Return == request.ReturnRepresentation {
		s.applyPreference(request.ReturnRepresentation)
		s.writeEntity(http.StatusOK, e)
		return
	}
	s.WriteNoContent()
	s.applyPreference(s.cfg.Preferences.Return)
	s.setETag(e.ETag)
	s.Close()
}

// WriteDeletedEntityOrReference answers a successful delete with 204.
func (s *EntitySink) WriteDeletedEntityOrReference() {
	s.mustBeOpen()
	s.WriteNoContent()
	s.Close()
}

func (s *EntitySink) writeEntity(status int, e *api.Entity) {
	s.mustBeOpen()
	if e == nil {
		s.finish(http.StatusNotFound)
		return
	}
	if s.cfg.ReferencesOnly {
		s.finish(http.StatusInternalServerError)
		return
	}
	body, ok := s.serialize(func(ser serializer.Serializer) ([]byte, error) {
		return ser.Entity(e, s.cfg.Options)
	})
	if !ok {
		return
	}
	s.setETag(e.ETag)
	s.commit(status, s.cfg.ContentType, body)
}

// EntitySetSink receives a collection of entities.
type EntitySetSink struct {
	Base
}

// NewEntitySetSink returns a sink filling resp.
func NewEntitySetSink(resp *api.Response, cfg Config) *EntitySetSink {
	return &EntitySetSink{Base: newBase(resp, cfg)}
}

// WriteReadEntitySet writes c with 200, or 404 when c is nil.
func (s *EntitySetSink) WriteReadEntitySet(c *api.EntityCollection) {
	s.mustBeOpen()
	if c == nil {
		s.finish(http.StatusNotFound)
		return
	}
	if s.cfg.ReferencesOnly {
		s.finish(http.StatusInternalServerError)
		return
	}
	body, ok := s.serialize(func(ser serializer.Serializer) ([]byte, error) {
		return ser.EntityCollection(c, s.cfg.Options)
	})
	if !ok {
		return
	}
	s.commit(http.StatusOK, s.cfg.ContentType, body)
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/edm"
	"github.com/rhuss/odin/pkg/metadata"
	"github.com/rhuss/odin/pkg/request"
	"github.com/rhuss/odin/pkg/response"
)

// draft is a record about to be inserted.
type draft struct {
	set    string
	et     *edm.EntityType
	entity *api.Entity

	// id overrides the id derived from the key properties.
	id    string
	media *api.Media

	// backlink is set on the new record before it is stored: the partner
	// navigation of the link that created it and the id of its parent.
	backlinkNav string
	backlinkID  string
}

// create inserts d and its deep-inserted children and returns the
// stored record.
func (h *Handler) create(ctx context.Context, reg *metadata.Registry, root string, d draft) (*Record, error) {
	if d.et == nil {
		return nil, fmt.Errorf("storage: no entity type for %s", d.set)
	}
	id := d.id
	if id == "" {
		if err := h.generateKey(ctx, reg, d.set, d.et, d.entity); err != nil {
			return nil, err
		}
		key, err := keyOf(reg, d.et, d.entity)
		if err != nil {
			return nil, err
		}
		id = entityID(d.set, key)
	}

	data, err := encodeProperties(d.entity.Properties)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	rec := &Record{
		ID:        id,
		Set:       d.set,
		ETag:      newETag(),
		Data:      data,
		Links:     make(map[string][]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if d.media != nil {
		rec.Media = cloneMedia(d.media)
		rec.MediaETag = newETag()
	}
	if d.backlinkNav != "" {
		rec.Links[d.backlinkNav] = []string{d.backlinkID}
	}

	for _, b := range d.entity.Bindings {
		if err := h.bind(ctx, reg, rec, b, root); err != nil {
			return nil, err
		}
	}

	if err := h.insert(ctx, rec); err != nil {
		return nil, protocolError(err, id)
	}

	for nav, ids := range rec.Links {
		if nav == d.backlinkNav {
			continue
		}
		for _, target := range ids {
			if err := h.partner(ctx, reg, rec, nav, target, true); err != nil {
				return nil, err
			}
		}
	}
	for _, l := range d.entity.NavigationLinks {
		if err := h.deepInsert(ctx, reg, root, rec, l); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// generateKey assigns the next free value to a single integral key
// property the payload left out.
func (h *Handler) generateKey(ctx context.Context, reg *metadata.Registry, set string, et *edm.EntityType, e *api.Entity) error {
	keys := reg.KeyProperties(et)
	if len(keys) != 1 || !edm.IsIntegral(keys[0].Type) || !e.Property(keys[0].Name).IsNull() {
		return nil
	}
	recs, err := h.list(ctx, set)
	if err != nil {
		return err
	}
	var next int64 = 1
	for _, rec := range recs {
		raw := strings.TrimSuffix(strings.TrimPrefix(rec.ID, set+"("), ")")
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n >= next {
			next = n + 1
		}
	}
	e.SetProperty(&api.Property{Name: keys[0].Name, Type: keys[0].Type, Value: next})
	return nil
}

// bind links rec to the existing entities of a Nav@odata.bind member.
func (h *Handler) bind(ctx context.Context, reg *metadata.Registry, rec *Record, b *api.Link, root string) error {
	nav := reg.NavigationProperty(typeOf(reg, rec.Set), b.Name)
	if nav == nil {
		return api.NewDeserializationError(api.KeyNavigationPropertyNotFound, "navigation property "+b.Name+" not found")
	}
	if !nav.IsCollection() && len(b.BindingIDs) > 1 {
		return api.NewDeserializationError(api.KeyInvalidValueForProperty, b.Name+" binds a single entity")
	}
	ids := make([]string, 0, len(b.BindingIDs))
	for _, raw := range b.BindingIDs {
		id := relativeID(raw, root)
		if _, err := h.get(ctx, id); err != nil {
			if errors.Is(err, ErrNotFound) {
				return &api.ApplicationError{Code: "BINDING_TARGET_NOT_FOUND", Message: "bound entity " + id + " not found",
					Target: b.Name, StatusCode: http.StatusBadRequest, Err: err}
			}
			return err
		}
		ids = append(ids, id)
	}
	if nav.IsCollection() {
		for _, id := range ids {
			rec.Links[b.Name] = appendUnique(rec.Links[b.Name], id)
		}
	} else {
		rec.Links[b.Name] = ids
	}
	return nil
}

// deepInsert creates the inline entities of l and links them to parent.
func (h *Handler) deepInsert(ctx context.Context, reg *metadata.Registry, root string, parent *Record, l *api.Link) error {
	et := typeOf(reg, parent.Set)
	nav := reg.NavigationProperty(et, l.Name)
	set := targetSet(reg, parent.Set, l.Name)
	if nav == nil || set == "" {
		return api.NewNotImplementedError("deep insert along " + l.Name + " has no target entity set")
	}
	var children []*api.Entity
	switch {
	case l.Entity != nil:
		children = []*api.Entity{l.Entity}
	case l.Entities != nil:
		children = l.Entities.Entities
	}

	d := draft{set: set, et: typeOf(reg, set), backlinkNav: nav.Partner, backlinkID: parent.ID}
	for _, child := range children {
		d.entity = child
		rec, err := h.create(ctx, reg, root, d)
		if err != nil {
			return err
		}
		parent.Links[l.Name] = appendUnique(parent.Links[l.Name], rec.ID)
	}
	if err := h.update(ctx, parent, parent.ETag); err != nil {
		return protocolError(err, parent.ID)
	}
	return nil
}

// CreateEntity implements transport.Handler. POST on a collection
// inserts a new entity, linking it to the parent of a navigation; PUT or
// PATCH with If-None-Match: * inserts the addressed entity.
func (h *Handler) CreateEntity(ctx context.Context, d *request.Descriptor, e *api.Entity, s *response.EntitySink) error {
	reg, err := registry(d)
	if err != nil {
		return err
	}

	var rec *Record
	err = h.atomic(ctx, func(ctx context.Context) error {
		if !d.IsCollection() {
			rec, err = h.upsert(ctx, d, reg, e)
			return err
		}
		rec, err = h.createInCollection(ctx, d, reg, draft{entity: e})
		return err
	})
	if err != nil {
		return err
	}
	out, err := h.entity(ctx, reg, rec, nil)
	if err != nil {
		return err
	}
	s.WriteCreatedEntity(out)
	return nil
}

// CreateMediaEntity implements transport.Handler.
func (h *Handler) CreateMediaEntity(ctx context.Context, d *request.Descriptor, m *api.Media, s *response.EntitySink) error {
	reg, err := registry(d)
	if err != nil {
		return err
	}
	var rec *Record
	err = h.atomic(ctx, func(ctx context.Context) error {
		rec, err = h.createInCollection(ctx, d, reg, draft{entity: &api.Entity{}, media: m})
		return err
	})
	if err != nil {
		return err
	}
	out, err := h.entity(ctx, reg, rec, nil)
	if err != nil {
		return err
	}
	s.WriteCreatedEntity(out)
	return nil
}

func (h *Handler) createInCollection(ctx context.Context, d *request.Descriptor, reg *metadata.Registry, dr draft) (*Record, error) {
	set := d.EntitySet()
	if set == nil {
		return nil, api.NewNotImplementedError("collection " + d.ResourcePath() + " has no entity set")
	}
	dr.set = set.Name
	dr.et = typeOf(reg, set.Name)

	var parent *Record
	if nav := d.Navigation(); nav != nil {
		var err error
		if parent, err = h.resolve(ctx, reg, d.ParentID()); err != nil {
			return nil, protocolError(err, d.ParentID())
		}
		dr.backlinkNav = nav.Partner
		dr.backlinkID = parent.ID
	}

	rec, err := h.create(ctx, reg, d.ServiceRoot(), dr)
	if err != nil {
		return nil, err
	}
	if parent != nil {
		next := parent.Clone()
		if next.Links == nil {
			next.Links = make(map[string][]string)
		}
		name := d.Navigation().Name
		next.Links[name] = appendUnique(next.Links[name], rec.ID)
		if err := h.save(ctx, next, parent); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// upsert creates the entity a PUT or PATCH addressed. The entity must
// not exist yet.
func (h *Handler) upsert(ctx context.Context, d *request.Descriptor, reg *metadata.Registry, e *api.Entity) (*Record, error) {
	_, err := h.record(ctx, d, reg)
	switch {
	case err == nil:
		return nil, api.NewHandlerError(api.KeyPreconditionFailed, d.ResourcePath()+" already exists")
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	if d.EntitySet() == nil || d.Navigation() != nil {
		return nil, api.NewNotImplementedError("upsert through navigation " + d.ResourcePath())
	}

	dr := draft{entity: e, set: d.EntitySet().Name, id: d.EntityID()}
	dr.et = typeOf(reg, dr.set)
	applyKeys(reg, dr.et, e, d.Keys())
	return h.create(ctx, reg, d.ServiceRoot(), dr)
}

// UpdateEntity implements transport.Handler. PATCH merges the payload
// into the stored entity, PUT replaces it. Key properties never change.
func (h *Handler) UpdateEntity(ctx context.Context, d *request.Descriptor, e *api.Entity, merge bool, s *response.EntitySink) error {
	reg, err := registry(d)
	if err != nil {
		return err
	}

	var next *Record
	err = h.atomic(ctx, func(ctx context.Context) error {
		rec, err := h.record(ctx, d, reg)
		if err != nil {
			return protocolError(err, d.ResourcePath())
		}
		if !d.Conditions().Match(rec.ETag) {
			return api.NewHandlerError(api.KeyPreconditionFailed, "the ETag of "+rec.ID+" does not match")
		}
		et := typeOf(reg, rec.Set)

		payload, err := encodeProperties(e.Properties)
		if err != nil {
			return err
		}
		keys := keyData(reg, et, rec.Data)
		base := rec.Data
		if !merge {
			base = keys
		}
		data, err := mergeData(base, payload, merge)
		if err == nil {
			data, err = mergeData(data, keys, false)
		}
		if err != nil {
			return fmt.Errorf("storage: merging %s: %w", rec.ID, err)
		}

		next = rec.Clone()
		next.Data = data
		next.ETag = newETag()
		next.UpdatedAt = time.Now().UTC()
		if next.Links == nil {
			next.Links = make(map[string][]string)
		}
		for _, b := range e.Bindings {
			old := next.Links[b.Name]
			if err := h.bind(ctx, reg, next, b, d.ServiceRoot()); err != nil {
				return err
			}
			if err := h.relink(ctx, reg, next, b.Name, old); err != nil {
				return err
			}
		}
		return h.save(ctx, next, rec)
	})
	if err != nil {
		return err
	}
	out, err := h.entity(ctx, reg, next, nil)
	if err != nil {
		return err
	}
	s.WriteUpdatedEntity(out)
	return nil
}

// save writes next over prev.
func (h *Handler) save(ctx context.Context, next, prev *Record) error {
	if err := h.update(ctx, next, prev.ETag); err != nil {
		return protocolError(err, next.ID)
	}
	return nil
}

// keyData extracts the key members of data.
func keyData(reg *metadata.Registry, et *edm.EntityType, data []byte) []byte {
	out := []byte("{}")
	if et == nil {
		return out
	}
	for _, kp := range reg.KeyProperties(et) {
		path := memberPath(kp.Name)
		if v := gjson.GetBytes(data, path); v.Exists() {
			if b, err := sjson.SetRawBytes(out, path, []byte(v.Raw)); err == nil {
				out = b
			}
		}
	}
	return out
}

// DeleteEntity implements transport.Handler.
func (h *Handler) DeleteEntity(ctx context.Context, d *request.Descriptor, s *response.EntitySink) error {
	reg, err := registry(d)
	if err != nil {
		return err
	}
	err = h.atomic(ctx, func(ctx context.Context) error {
		rec, err := h.record(ctx, d, reg)
		if err != nil {
			return protocolError(err, d.ResourcePath())
		}
		if !d.Conditions().Match(rec.ETag) {
			return api.NewHandlerError(api.KeyPreconditionFailed, "the ETag of "+rec.ID+" does not match")
		}
		if err := h.delete(ctx, rec.ID, rec.ETag); err != nil {
			return protocolError(err, rec.ID)
		}
		for nav, ids := range rec.Links {
			for _, target := range ids {
				if err := h.partner(ctx, reg, rec, nav, target, false); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.WriteDeletedEntityOrReference()
	return nil
}

// UpdateProperty implements transport.Handler. A nil property sets the
// value to null, which non-nullable properties refuse.
func (h *Handler) UpdateProperty(ctx context.Context, d *request.Descriptor, p *api.Property, merge bool, s *response.PropertySink) error {
	reg, err := registry(d)
	if err != nil {
		return err
	}
	prop := d.Property()
	path := propertyPath(d)
	if prop == nil || len(path) == 0 {
		return api.NewNotImplementedError("property update on " + d.ResourcePath())
	}

	var next *Record
	err = h.atomic(ctx, func(ctx context.Context) error {
		rec, err := h.record(ctx, d, reg)
		if err != nil {
			return protocolError(err, d.ResourcePath())
		}
		if !d.Conditions().Match(rec.ETag) {
			return api.NewHandlerError(api.KeyPreconditionFailed, "the ETag of "+rec.ID+" does not match")
		}
		if len(path) == 1 && isKey(reg, typeOf(reg, rec.Set), path[0]) {
			return api.NewDeserializationError(api.KeyInvalidValueForProperty, "key property "+path[0]+" cannot be changed")
		}

		raw := []byte("null")
		if p.IsNull() {
			if !prop.IsNullable() {
				return api.NewDeserializationError(api.KeyInvalidNullProperty, "property "+prop.Name+" is not nullable")
			}
		} else {
			v := *p
			v.Name = prop.Name
			enc, err := encodeProperties([]*api.Property{&v})
			if err != nil {
				return err
			}
			raw = []byte(gjson.GetBytes(enc, memberPath(prop.Name)).Raw)
		}

		parts := make([]string, len(path))
		for i, name := range path {
			parts[i] = memberPath(name)
		}
		full := strings.Join(parts, ".")
		if merge {
			if cur := gjson.GetBytes(rec.Data, full); cur.IsObject() && gjson.ParseBytes(raw).IsObject() {
				if raw, err = mergeData([]byte(cur.Raw), raw, true); err != nil {
					return err
				}
			}
		}
		data := rec.Data
		if len(data) == 0 {
			data = []byte("{}")
		}
		if data, err = sjson.SetRawBytes(data, full, raw); err != nil {
			return fmt.Errorf("storage: setting %s of %s: %w", full, rec.ID, err)
		}

		next = rec.Clone()
		next.Data = data
		next.ETag = newETag()
		next.UpdatedAt = time.Now().UTC()
		return h.save(ctx, next, rec)
	})
	if err != nil {
		return err
	}

	out, err := h.entity(ctx, reg, next, nil)
	if err != nil {
		return err
	}
	s.WriteHeader(api.HeaderETag, next.ETag)
	s.WritePropertyUpdated(walk(out, path, prop))
	return nil
}

func isKey(reg *metadata.Registry, et *edm.EntityType, name string) bool {
	if et == nil {
		return false
	}
	for _, k := range reg.Key(et) {
		if k.Name == name {
			return true
		}
	}
	return false
}

// UpdateMediaStream implements transport.Handler. On a media entity
// If-Match is checked against the media ETag.
func (h *Handler) UpdateMediaStream(ctx context.Context, d *request.Descriptor, m *api.Media, s *response.NoContentSink) error {
	reg, err := registry(d)
	if err != nil {
		return err
	}
	var etag string
	err = h.atomic(ctx, func(ctx context.Context) error {
		rec, err := h.record(ctx, d, reg)
		if err != nil {
			return protocolError(err, d.ResourcePath())
		}
		next := rec.Clone()
		next.UpdatedAt = time.Now().UTC()

		if d.Kind() == request.KindMedia {
			if !d.Conditions().Match(rec.MediaETag) {
				return api.NewHandlerError(api.KeyPreconditionFailed, "the media ETag of "+rec.ID+" does not match")
			}
			next.Media = cloneMedia(m)
			next.MediaETag = ""
			if m != nil {
				next.MediaETag = newETag()
			}
			etag = next.MediaETag
		} else {
			if !d.Conditions().Match(rec.ETag) {
				return api.NewHandlerError(api.KeyPreconditionFailed, "the ETag of "+rec.ID+" does not match")
			}
			if next.Streams == nil {
				next.Streams = make(map[string]*api.Media)
			}
			if m == nil {
				delete(next.Streams, d.Property().Name)
			} else {
				next.Streams[d.Property().Name] = cloneMedia(m)
			}
			next.ETag = newETag()
			etag = next.ETag
		}
		return h.save(ctx, next, rec)
	})
	if err != nil {
		return err
	}
	if etag != "" {
		s.WriteHeader(api.HeaderETag, etag)
	}
	s.WriteDone()
	return nil
}

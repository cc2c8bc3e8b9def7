package serializer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/edm"
	"github.com/rhuss/odin/pkg/format"
	"github.com/rhuss/odin/pkg/metadata"
)

// Control information member names.
const (
	annotationContext          = "@odata.context"
	annotationCount            = "@odata.count"
	annotationNextLink         = "@odata.nextLink"
	annotationType             = "@odata.type"
	annotationID               = "@odata.id"
	annotationEditLink         = "@odata.editLink"
	annotationETag             = "@odata.etag"
	annotationMediaContentType = "@odata.mediaContentType"
	annotationMediaETag        = "@odata.mediaEtag"
	annotationMediaReadLink    = "@odata.mediaReadLink"
)

// JSON writes the OData JSON format.
type JSON struct{}

// NewJSON returns a JSON serializer.
func NewJSON() *JSON { return &JSON{} }

// object builds a JSON object member by member, keeping insertion order.
type object struct {
	buf []byte
	err error
}

func newObject() *object {
	return &object{buf: []byte("{}")}
}

// escapePath turns a member name into an sjson path matching that name
// literally.
func escapePath(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		switch c := name[i]; c {
		case '.', '*', '?', '@', '\\', '|', '#', ':':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func (o *object) raw(name string, value []byte) {
	if o.err != nil {
		return
	}
	o.buf, o.err = sjson.SetRawBytes(o.buf, escapePath(name), value)
}

func (o *object) set(name string, value any) {
	if o.err != nil {
		return
	}
	b, err := json.Marshal(value)
	if err != nil {
		o.err = err
		return
	}
	o.raw(name, b)
}

func (o *object) bytes() ([]byte, error) {
	if o.err != nil {
		return nil, api.NewSerializationError(api.KeyIOError, "writing JSON", o.err)
	}
	return o.buf, nil
}

// Entity implements Serializer.
func (s *JSON) Entity(e *api.Entity, o Options) ([]byte, error) {
	if e == nil {
		return nil, api.NewSerializationError(api.KeyNullInput, "entity is nil", nil)
	}
	obj := newObject()
	if o.ContextURL != "" && o.Metadata != format.MetadataNone {
		obj.set(annotationContext, o.ContextURL)
	}
	s.writeEntity(obj, e, o)
	return obj.bytes()
}

// EntityCollection implements Serializer.
func (s *JSON) EntityCollection(c *api.EntityCollection, o Options) ([]byte, error) {
	if c == nil {
		return nil, api.NewSerializationError(api.KeyNullInput, "entity collection is nil", nil)
	}
	obj := newObject()
	if o.ContextURL != "" && o.Metadata != format.MetadataNone {
		obj.set(annotationContext, o.ContextURL)
	}
	if c.Count != nil {
		obj.set(annotationCount, *c.Count)
	}
	items, err := s.entityArray(c.Entities, o)
	if err != nil {
		return nil, err
	}
	obj.raw("value", items)
	if c.NextLink != "" {
		obj.set(annotationNextLink, c.NextLink)
	}
	return obj.bytes()
}

func (s *JSON) entityArray(entities []*api.Entity, o Options) ([]byte, error) {
	parts := make([]string, 0, len(entities))
	for _, e := range entities {
		obj := newObject()
		s.writeEntity(obj, e, o)
		b, err := obj.bytes()
		if err != nil {
			return nil, err
		}
		parts = append(parts, string(b))
	}
	return []byte("[" + strings.Join(parts, ",") + "]"), nil
}

func (s *JSON) writeEntity(obj *object, e *api.Entity, o Options) {
	full := o.Metadata == format.MetadataFull
	if full {
		if e.Type != "" {
			obj.set(annotationType, "#"+e.Type)
		}
		if e.ID != "" {
			obj.set(annotationID, o.ServiceRoot+e.ID)
			obj.set(annotationEditLink, e.ID)
		}
	}
	if e.ETag != "" && o.Metadata != format.MetadataNone {
		obj.set(annotationETag, e.ETag)
	}
	if e.MediaContentType != "" && o.Metadata != format.MetadataNone {
		obj.set(annotationMediaContentType, e.MediaContentType)
		if e.MediaETag != "" {
			obj.set(annotationMediaETag, e.MediaETag)
		}
	}

	for _, p := range e.Properties {
		if !selected(o.Select, p.Name) {
			continue
		}
		if p.Type == edm.TypeStream {
			if full && e.ID != "" {
				obj.set(p.Name+annotationMediaReadLink, e.ID+"/"+p.Name)
			}
			continue
		}
		if obj.err != nil {
			return
		}
		v, err := propertyValue(p, o)
		if err != nil {
			obj.err = err
			return
		}
		obj.raw(p.Name, v)
	}

	for _, l := range e.NavigationLinks {
		switch {
		case l.Entity != nil:
			inner := newObject()
			s.writeEntity(inner, l.Entity, o.nested())
			b, err := inner.bytes()
			if err != nil {
				obj.err = err
				return
			}
			obj.raw(l.Name, b)
		case l.Entities != nil:
			if l.Entities.Count != nil {
				obj.set(l.Name+annotationCount, *l.Entities.Count)
			}
			b, err := s.entityArray(l.Entities.Entities, o.nested())
			if err != nil {
				obj.err = err
				return
			}
			obj.raw(l.Name, b)
		}
	}
}

// nested drops the $select of the outer level for expanded entities.
func (o Options) nested() Options {
	o.Select = nil
	return o
}

// Property implements Serializer.
func (s *JSON) Property(p *api.Property, o Options) ([]byte, error) {
	if p == nil {
		return nil, api.NewSerializationError(api.KeyNullInput, "property is nil", nil)
	}
	obj := newObject()
	if o.ContextURL != "" && o.Metadata != format.MetadataNone {
		obj.set(annotationContext, o.ContextURL)
	}
	if p.ValueType == api.ValueComplex && p.Value != nil {
		cv, ok := p.Value.(*api.ComplexValue)
		if !ok {
			return nil, api.NewSerializationError(api.KeyUnsupportedPropertyType,
				fmt.Sprintf("complex property %s holds %T", p.Name, p.Value), nil)
		}
		for _, m := range cv.Properties {
			if !selected(o.Select, m.Name) {
				continue
			}
			v, err := propertyValue(m, o)
			if err != nil {
				return nil, err
			}
			obj.raw(m.Name, v)
		}
		return obj.bytes()
	}
	v, err := propertyValue(p, o)
	if err != nil {
		return nil, err
	}
	obj.raw("value", v)
	return obj.bytes()
}

// ServiceDocument implements Serializer.
func (s *JSON) ServiceDocument(reg *metadata.Registry, o Options) ([]byte, error) {
	obj := newObject()
	if o.Metadata != format.MetadataNone {
		obj.set(annotationContext, o.ServiceRoot+"$metadata")
	}
	type entry struct {
		Name string `json:"name"`
		Kind string `json:"kind"`
		URL  string `json:"url"`
	}
	entries := []entry{}
	if c := reg.EntityContainer(); c != nil {
		for _, es := range c.EntitySets {
			if es.InServiceDocument() {
				entries = append(entries, entry{Name: es.Name, Kind: "EntitySet", URL: es.Name})
			}
		}
		for _, sg := range c.Singletons {
			entries = append(entries, entry{Name: sg.Name, Kind: "Singleton", URL: sg.Name})
		}
		for _, fi := range c.FunctionImports {
			if fi.IncludeInServiceDocument {
				entries = append(entries, entry{Name: fi.Name, Kind: "FunctionImport", URL: fi.Name})
			}
		}
	}
	obj.set("value", entries)
	return obj.bytes()
}

// Metadata implements Serializer. The JSON CSDL form is not offered.
func (s *JSON) Metadata(*metadata.Registry) ([]byte, error) {
	return nil, unsupported("JSON", "the metadata document")
}

// Error implements Serializer.
func (s *JSON) Error(e *api.ServerError) ([]byte, error) {
	b, err := json.Marshal(api.ErrorResponse{Error: e})
	if err != nil {
		return nil, api.NewSerializationError(api.KeyIOError, "writing error document", err)
	}
	return b, nil
}

// propertyValue renders the JSON value of a property.
func propertyValue(p *api.Property, o Options) ([]byte, error) {
	if p.IsNull() {
		return []byte("null"), nil
	}
	switch p.ValueType {
	case api.ValueComplex:
		cv, ok := p.Value.(*api.ComplexValue)
		if !ok {
			return nil, api.NewSerializationError(api.KeyUnsupportedPropertyType,
				fmt.Sprintf("complex property %s holds %T", p.Name, p.Value), nil)
		}
		return complexValue(cv, o)
	case api.ValueCollectionPrimitive, api.ValueCollectionEnum, api.ValueCollectionComplex:
		items, ok := p.Value.([]any)
		if !ok {
			return nil, api.NewSerializationError(api.KeyUnsupportedPropertyType,
				fmt.Sprintf("collection property %s holds %T", p.Name, p.Value), nil)
		}
		elem, _ := edm.ElementType(p.Type)
		parts := make([]string, 0, len(items))
		for _, it := range items {
			var b []byte
			var err error
			if p.ValueType == api.ValueCollectionComplex {
				cv, ok := it.(*api.ComplexValue)
				if !ok {
					return nil, api.NewSerializationError(api.KeyUnsupportedPropertyType,
						fmt.Sprintf("collection %s holds %T", p.Name, it), nil)
				}
				b, err = complexValue(cv, o)
			} else {
				b, err = primitiveValue(elem, it, o.IEEE754)
			}
			if err != nil {
				return nil, err
			}
			parts = append(parts, string(b))
		}
		return []byte("[" + strings.Join(parts, ",") + "]"), nil
	default:
		return primitiveValue(p.Type, p.Value, o.IEEE754)
	}
}

func complexValue(cv *api.ComplexValue, o Options) ([]byte, error) {
	obj := newObject()
	for _, m := range cv.Properties {
		v, err := propertyValue(m, o)
		if err != nil {
			return nil, err
		}
		obj.raw(m.Name, v)
	}
	return obj.bytes()
}

func primitiveValue(typeName string, v any, ieee754 bool) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	jv := edm.ToJSON(typeName, v)
	if ieee754 && (typeName == edm.TypeInt64 || typeName == edm.TypeDecimal) {
		jv = fmt.Sprint(jv)
	}
	b, err := json.Marshal(jv)
	if err != nil {
		return nil, api.NewSerializationError(api.KeyUnsupportedPropertyType,
			fmt.Sprintf("value of type %s: %v", typeName, err), err)
	}
	return b, nil
}

func selected(sel []string, name string) bool {
	if len(sel) == 0 {
		return true
	}
	for _, s := range sel {
		if s == "*" || s == name || strings.HasPrefix(s, name+"/") {
			return true
		}
	}
	return false
}

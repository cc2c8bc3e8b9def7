package storage

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/edm"
	"github.com/rhuss/odin/pkg/format"
	"github.com/rhuss/odin/pkg/metadata"
	"github.com/rhuss/odin/pkg/request"
	"github.com/rhuss/odin/pkg/serializer"
	"github.com/rhuss/odin/pkg/uri"
)

var codecJSON = serializer.NewJSON()

// memberPath turns a property name into an sjson path matching it
// literally.
func memberPath(name string) string {
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

// encodeProperties renders the structural properties of e as a JSON
// object. Stream properties have no JSON value and are skipped.
func encodeProperties(props []*api.Property) ([]byte, error) {
	structural := make([]*api.Property, 0, len(props))
	for _, p := range props {
		if p.Type != edm.TypeStream {
			structural = append(structural, p)
		}
	}
	return codecJSON.Entity(&api.Entity{Properties: structural}, serializer.Options{Metadata: format.MetadataNone})
}

// mergeData copies the top-level members of src into dst. With deep set,
// object members are merged recursively, which is how PATCH treats
// complex values.
func mergeData(dst, src []byte, deep bool) ([]byte, error) {
	if len(dst) == 0 {
		dst = []byte("{}")
	}
	var err error
	gjson.ParseBytes(src).ForEach(func(k, v gjson.Result) bool {
		path := memberPath(k.String())
		if deep && v.IsObject() {
			cur := gjson.GetBytes(dst, path)
			if cur.IsObject() {
				var merged []byte
				if merged, err = mergeData([]byte(cur.Raw), []byte(v.Raw), true); err != nil {
					return false
				}
				dst, err = sjson.SetRawBytes(dst, path, merged)
				return err == nil
			}
		}
		dst, err = sjson.SetRawBytes(dst, path, []byte(v.Raw))
		return err == nil
	})
	return dst, err
}

// pruneData drops the members et no longer declares, so records written
// under an older schema still decode after a metadata reload.
func pruneData(reg *metadata.Registry, et *edm.EntityType, data []byte) []byte {
	if et.OpenType {
		return data
	}
	out := data
	gjson.ParseBytes(data).ForEach(func(k, _ gjson.Result) bool {
		if reg.Property(et, k.String()) == nil {
			if pruned, err := sjson.DeleteBytes(out, memberPath(k.String())); err == nil {
				out = pruned
			}
		}
		return true
	})
	return out
}

// decode turns rec into the entity handed to a response sink.
func decode(reg *metadata.Registry, et *edm.EntityType, rec *Record) (*api.Entity, error) {
	data := rec.Data
	if len(data) == 0 {
		data = []byte("{}")
	}
	e, err := serializer.NewDeserializer(reg).Entity(pruneData(reg, et, data), et)
	if err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", rec.ID, err)
	}
	e.ID = rec.ID
	e.ETag = rec.ETag
	if rec.Media != nil {
		e.MediaContentType = rec.Media.ContentType
		e.MediaETag = rec.MediaETag
	}
	return e, nil
}

// keyOf builds the key predicate of e from its key property values.
func keyOf(reg *metadata.Registry, et *edm.EntityType, e *api.Entity) (string, error) {
	keyProps := reg.KeyProperties(et)
	keys := make([]uri.KeyPredicate, 0, len(keyProps))
	for _, kp := range keyProps {
		p := e.Property(kp.Name)
		if p.IsNull() {
			return "", api.NewDeserializationError(api.KeyInvalidNullProperty, "key property "+kp.Name+" is missing")
		}
		raw, err := edm.FormatLiteral(kp.Type, p.Value)
		if err != nil {
			return "", api.NewDeserializationError(api.KeyInvalidValueForProperty,
				fmt.Sprintf("key property %s: %v", kp.Name, err))
		}
		keys = append(keys, uri.KeyPredicate{Name: kp.Name, Raw: raw, Value: p.Value})
	}
	return request.KeyPredicate(keys), nil
}

// applyKeys overwrites the key properties of e with the values addressed
// in the URL.
func applyKeys(reg *metadata.Registry, et *edm.EntityType, e *api.Entity, keys []uri.KeyPredicate) {
	keyProps := reg.KeyProperties(et)
	for i, k := range keys {
		name := k.Name
		if name == "" && i < len(keyProps) {
			name = keyProps[i].Name
		}
		prop := reg.Property(et, name)
		if prop == nil {
			continue
		}
		e.SetProperty(&api.Property{Name: name, Type: prop.Type, Value: k.Value})
	}
}

// entityID qualifies a key predicate with its set.
func entityID(set, key string) string {
	return set + key
}

// relativeID strips the service root and surrounding slashes from an id
// taken from a payload.
func relativeID(id, serviceRoot string) string {
	if serviceRoot != "" {
		id = strings.TrimPrefix(id, serviceRoot)
	}
	return strings.Trim(id, "/")
}

// setOf returns the entity set or singleton name of a canonical id.
func setOf(id string) string {
	if i := strings.IndexByte(id, '('); i >= 0 {
		return id[:i]
	}
	return id
}

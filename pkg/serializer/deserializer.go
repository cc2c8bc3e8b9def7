package serializer

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/edm"
	"github.com/rhuss/odin/pkg/metadata"
)

const annotationBind = "@odata.bind"

// Deserializer reads OData JSON request bodies.
type Deserializer struct {
	reg *metadata.Registry
}

// NewDeserializer returns a deserializer resolving types against reg.
func NewDeserializer(reg *metadata.Registry) *Deserializer {
	return &Deserializer{reg: reg}
}

func parseBody(body []byte) (gjson.Result, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return gjson.Result{}, api.NewDeserializationError(api.KeyNullInput, "request body is empty")
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, api.NewDeserializationError(api.KeyJSONSyntax, "request body is not valid JSON")
	}
	return gjson.ParseBytes(body), nil
}

// Entity reads an entity of type et. Control information other than
// @odata.type is ignored; Nav@odata.bind members become bindings.
func (d *Deserializer) Entity(body []byte, et *edm.EntityType) (*api.Entity, error) {
	root, err := parseBody(body)
	if err != nil {
		return nil, err
	}
	if !root.IsObject() {
		return nil, api.NewDeserializationError(api.KeyUnknownContent, "entity payload must be a JSON object")
	}
	return d.entity(root, et)
}

func (d *Deserializer) entity(obj gjson.Result, et *edm.EntityType) (*api.Entity, error) {
	e := &api.Entity{Type: d.qualifiedName(et)}
	var ferr error
	obj.ForEach(func(k, v gjson.Result) bool {
		name := k.String()
		switch {
		case strings.HasSuffix(name, annotationBind):
			nav := strings.TrimSuffix(name, annotationBind)
			if d.reg.NavigationProperty(et, nav) == nil {
				ferr = api.NewDeserializationError(api.KeyNavigationPropertyNotFound, "navigation property "+nav+" not found")
				return false
			}
			link := &api.Link{Name: nav}
			if v.IsArray() {
				v.ForEach(func(_, id gjson.Result) bool {
					link.BindingIDs = append(link.BindingIDs, id.String())
					return true
				})
			} else {
				link.BindingIDs = []string{v.String()}
			}
			e.Bindings = append(e.Bindings, link)
		case strings.HasPrefix(name, "@") || strings.Contains(name, "@"):
			// Instance and property annotations carry no data.
		default:
			if nav := d.reg.NavigationProperty(et, name); nav != nil {
				link, err := d.deepInsert(nav, v)
				if err != nil {
					ferr = err
					return false
				}
				e.NavigationLinks = append(e.NavigationLinks, link)
				return true
			}
			prop := d.reg.Property(et, name)
			if prop == nil {
				if et.OpenType {
					e.Properties = append(e.Properties, &api.Property{Name: name, Type: edm.TypeString, Value: v.String()})
					return true
				}
				ferr = api.NewDeserializationError(api.KeyUnknownContent, "unknown property "+name)
				return false
			}
			p, err := d.property(prop, v)
			if err != nil {
				ferr = err
				return false
			}
			e.Properties = append(e.Properties, p)
		}
		return true
	})
	if ferr != nil {
		return nil, ferr
	}
	return e, nil
}

func (d *Deserializer) deepInsert(nav *edm.NavigationProperty, v gjson.Result) (*api.Link, error) {
	target := d.reg.EntityType(mustFQN(nav.TargetType()))
	if target == nil {
		return nil, api.NewDeserializationError(api.KeyNavigationPropertyNotFound, "target type of "+nav.Name+" not found")
	}
	link := &api.Link{Name: nav.Name}
	if nav.IsCollection() {
		if !v.IsArray() {
			return nil, api.NewDeserializationError(api.KeyInvalidValueForProperty, nav.Name+" must be an array")
		}
		coll := &api.EntityCollection{}
		var ferr error
		v.ForEach(func(_, item gjson.Result) bool {
			child, err := d.entity(item, target)
			if err != nil {
				ferr = err
				return false
			}
			coll.Entities = append(coll.Entities, child)
			return true
		})
		if ferr != nil {
			return nil, ferr
		}
		link.Entities = coll
		return link, nil
	}
	if !v.IsObject() {
		return nil, api.NewDeserializationError(api.KeyInvalidValueForProperty, nav.Name+" must be an object")
	}
	child, err := d.entity(v, target)
	if err != nil {
		return nil, err
	}
	link.Entity = child
	return link, nil
}

// Property reads a property payload: {"value": ...} for primitive and
// collection properties, the object itself for complex ones.
func (d *Deserializer) Property(body []byte, prop *edm.Property) (*api.Property, error) {
	root, err := parseBody(body)
	if err != nil {
		return nil, err
	}
	v := root
	if !d.isComplex(prop.ElementType()) || prop.IsCollection() {
		v = root.Get("value")
		if !v.Exists() {
			return nil, api.NewDeserializationError(api.KeyMissingValue, "property payload requires a value member")
		}
	}
	return d.property(prop, v)
}

// PrimitiveValue reads a raw $value body of a primitive property.
func (d *Deserializer) PrimitiveValue(body []byte, prop *edm.Property) (*api.Property, error) {
	raw := string(body)
	if prop.Type == edm.TypeString {
		return &api.Property{Name: prop.Name, Type: prop.Type, Value: raw}, nil
	}
	v, err := edm.ParseLiteral(prop.Type, strings.TrimSpace(raw))
	if err != nil {
		return nil, api.NewDeserializationError(api.KeyInvalidValueForProperty,
			fmt.Sprintf("invalid value for %s: %v", prop.Name, err))
	}
	return &api.Property{Name: prop.Name, Type: prop.Type, Value: v}, nil
}

// References reads an entity reference payload: a single {"@odata.id": ...}
// object or a {"value": [...]} collection of them.
func (d *Deserializer) References(body []byte) ([]string, error) {
	root, err := parseBody(body)
	if err != nil {
		return nil, err
	}
	var ids []string
	collect := func(r gjson.Result) {
		if id := r.Get(`@odata\.id`); id.Exists() {
			ids = append(ids, id.String())
		}
	}
	if value := root.Get("value"); value.IsArray() {
		value.ForEach(func(_, item gjson.Result) bool {
			collect(item)
			return true
		})
	} else {
		collect(root)
	}
	if len(ids) == 0 {
		return nil, api.NewDeserializationError(api.KeyMissingValue, "reference payload carries no @odata.id")
	}
	return ids, nil
}

// Parameters reads the body of an action invocation against the declared
// non-binding parameters.
func (d *Deserializer) Parameters(body []byte, declared []*edm.Parameter) ([]api.Parameter, error) {
	if len(declared) == 0 {
		return nil, nil
	}
	root, err := parseBody(body)
	if err != nil {
		return nil, err
	}
	if !root.IsObject() {
		return nil, api.NewDeserializationError(api.KeyUnknownContent, "action parameters must be a JSON object")
	}
	var out []api.Parameter
	for _, p := range declared {
		v := root.Get(escapePath(p.Name))
		if !v.Exists() {
			if p.Nullable != nil && !*p.Nullable {
				return nil, api.NewDeserializationError(api.KeyMissingValue, "missing parameter "+p.Name)
			}
			continue
		}
		param := api.Parameter{Name: p.Name}
		elem, _ := edm.ElementType(p.Type)
		if et := d.reg.EntityType(mustFQN(elem)); et != nil {
			if p.IsCollection() {
				coll := &api.EntityCollection{}
				var ferr error
				v.ForEach(func(_, item gjson.Result) bool {
					e, err := d.entity(item, et)
					if err != nil {
						ferr = err
						return false
					}
					coll.Entities = append(coll.Entities, e)
					return true
				})
				if ferr != nil {
					return nil, ferr
				}
				param.Entities = coll
			} else {
				e, err := d.entity(v, et)
				if err != nil {
					return nil, err
				}
				param.Entity = e
			}
		} else {
			prop, err := d.property(&edm.Property{Name: p.Name, Type: p.Type, Nullable: p.Nullable}, v)
			if err != nil {
				return nil, err
			}
			param.Property = prop
		}
		out = append(out, param)
	}
	return out, nil
}

func (d *Deserializer) property(prop *edm.Property, v gjson.Result) (*api.Property, error) {
	elem := prop.ElementType()
	p := &api.Property{Name: prop.Name, Type: prop.Type}

	if v.Type == gjson.Null {
		if !prop.IsNullable() {
			return nil, api.NewDeserializationError(api.KeyInvalidNullProperty, "property "+prop.Name+" must not be null")
		}
		p.ValueType = d.valueType(elem, prop.IsCollection())
		return p, nil
	}

	if prop.IsCollection() {
		if !v.IsArray() {
			return nil, api.NewDeserializationError(api.KeyInvalidValueForProperty, "property "+prop.Name+" must be an array")
		}
		p.ValueType = d.valueType(elem, true)
		items := []any{}
		var ferr error
		v.ForEach(func(_, item gjson.Result) bool {
			val, err := d.scalar(prop.Name, elem, item)
			if err != nil {
				ferr = err
				return false
			}
			items = append(items, val)
			return true
		})
		if ferr != nil {
			return nil, ferr
		}
		p.Value = items
		return p, nil
	}

	p.ValueType = d.valueType(elem, false)
	val, err := d.scalar(prop.Name, elem, v)
	if err != nil {
		return nil, err
	}
	p.Value = val
	return p, nil
}

// scalar converts one non-collection JSON value of the given type.
func (d *Deserializer) scalar(name, typeName string, v gjson.Result) (any, error) {
	if edm.IsPrimitive(typeName) {
		raw := v.Value()
		if edm.IsIntegral(typeName) && v.Type == gjson.Number {
			raw = v.Int()
		}
		val, err := edm.FromJSON(typeName, raw)
		if err != nil {
			return nil, api.NewDeserializationError(api.KeyInvalidValueForProperty,
				fmt.Sprintf("invalid value for %s: %v", name, err))
		}
		return val, nil
	}
	fqn := mustFQN(typeName)
	if en := d.reg.EnumType(fqn); en != nil {
		if v.Type != gjson.String {
			return nil, api.NewDeserializationError(api.KeyInvalidValueForProperty, "enum "+name+" must be a string")
		}
		for _, member := range strings.Split(v.String(), ",") {
			if _, ok := en.Member(strings.TrimSpace(member)); !ok {
				return nil, api.NewDeserializationError(api.KeyInvalidValueForProperty,
					fmt.Sprintf("%q is not a member of %s", member, typeName))
			}
		}
		return v.String(), nil
	}
	if ct := d.reg.ComplexType(fqn); ct != nil {
		if !v.IsObject() {
			return nil, api.NewDeserializationError(api.KeyInvalidValueForProperty, "complex "+name+" must be an object")
		}
		cv := &api.ComplexValue{}
		var ferr error
		v.ForEach(func(k, mv gjson.Result) bool {
			member := k.String()
			if strings.Contains(member, "@") {
				return true
			}
			mp := d.reg.ComplexProperty(ct, member)
			if mp == nil {
				ferr = api.NewDeserializationError(api.KeyUnknownContent, "unknown property "+name+"/"+member)
				return false
			}
			prop, err := d.property(mp, mv)
			if err != nil {
				ferr = err
				return false
			}
			cv.Properties = append(cv.Properties, prop)
			return true
		})
		if ferr != nil {
			return nil, ferr
		}
		return cv, nil
	}
	if td := d.reg.TypeDefinition(fqn); td != nil {
		return d.scalar(name, td.UnderlyingType, v)
	}
	return nil, api.NewDeserializationError(api.KeyUnsupportedPropertyType, "unknown type "+typeName)
}

func (d *Deserializer) valueType(typeName string, collection bool) api.ValueType {
	fqn := mustFQN(typeName)
	switch {
	case !edm.IsPrimitive(typeName) && d.reg.ComplexType(fqn) != nil:
		if collection {
			return api.ValueCollectionComplex
		}
		return api.ValueComplex
	case !edm.IsPrimitive(typeName) && d.reg.EnumType(fqn) != nil:
		if collection {
			return api.ValueCollectionEnum
		}
		return api.ValueEnum
	default:
		if collection {
			return api.ValueCollectionPrimitive
		}
		return api.ValuePrimitive
	}
}

func (d *Deserializer) isComplex(typeName string) bool {
	return !edm.IsPrimitive(typeName) && d.reg.ComplexType(mustFQN(typeName)) != nil
}

func (d *Deserializer) qualifiedName(et *edm.EntityType) string {
	for _, s := range d.reg.Schemas() {
		for _, t := range s.EntityTypes {
			if t == et {
				return s.Namespace + "." + et.Name
			}
		}
	}
	return et.Name
}

func mustFQN(name string) edm.FullQualifiedName {
	fqn, _ := edm.ParseFQN(name)
	return fqn
}

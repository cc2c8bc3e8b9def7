package request

import (
	"strings"

	"github.com/rhuss/odin/pkg/edm"
)

const metadataFragment = "$metadata#"

// ContextURL returns the @odata.context value of a response to d relative
// to the service root, or "" for kinds whose responses carry none (count,
// value, media, batch, metadata).
func ContextURL(d *Descriptor) string {
	switch d.kind {
	case KindEntitySet, KindEntity, KindSingleton:
		return metadataFragment + entityContext(d)
	case KindProperty:
		return metadataFragment + propertyContext(d)
	case KindReference:
		if d.collection {
			return metadataFragment + "Collection($ref)"
		}
		return metadataFragment + "$ref"
	case KindAction, KindFunction:
		return operationContext(d)
	case KindCrossJoin:
		return metadataFragment + "Collection(Edm.ComplexType)"
	case KindServiceDocument:
		return "$metadata"
	}
	return ""
}

func entityContext(d *Descriptor) string {
	sel := selectList(d.Query().Select)
	switch {
	case d.singleton != nil:
		return d.singleton.Name + sel
	case d.entitySet != nil:
		if d.collection {
			return d.entitySet.Name + sel
		}
		return d.entitySet.Name + sel + "/$entity"
	}
	typeName := qualifiedType(d)
	if d.collection {
		return "Collection(" + typeName + ")" + sel
	}
	return typeName + sel
}

func propertyContext(d *Descriptor) string {
	var sel string
	if d.complexType != nil {
		sel = selectList(d.Query().Select)
	}
	if d.entitySet != nil || d.singleton != nil {
		return d.path + sel
	}
	return d.property.Type + sel
}

func operationContext(d *Descriptor) string {
	rt := d.ReturnType()
	if rt == nil {
		return ""
	}
	_, coll := edm.ElementType(rt.Type)
	if d.entityType != nil && d.entitySet != nil {
		if coll {
			return metadataFragment + d.entitySet.Name
		}
		return metadataFragment + d.entitySet.Name + "/$entity"
	}
	return metadataFragment + rt.Type
}

func selectList(sel []string) string {
	if len(sel) == 0 {
		return ""
	}
	return "(" + strings.Join(sel, ",") + ")"
}

// qualifiedType returns the element type name of the addressed entities.
func qualifiedType(d *Descriptor) string {
	if d.navigation != nil {
		return d.navigation.TargetType()
	}
	if d.info != nil {
		if last := d.info.Last(); last != nil && last.TypeName != "" {
			name, _ := edm.ElementType(last.TypeName)
			return name
		}
	}
	if d.entityType != nil {
		return d.entityType.Name
	}
	return "Edm.EntityType"
}

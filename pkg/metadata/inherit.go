package metadata

import "github.com/rhuss/odin/pkg/edm"

// maxTypeDepth bounds base-type walks so a malformed cyclic hierarchy
// cannot loop forever.
const maxTypeDepth = 32

// entityHierarchy returns t followed by its base types, most derived first.
func (r *Registry) entityHierarchy(t *edm.EntityType) []*edm.EntityType {
	var chain []*edm.EntityType
	for t != nil && len(chain) < maxTypeDepth {
		chain = append(chain, t)
		if t.BaseType == "" {
			break
		}
		t = r.entityTypeNamed(t.BaseType)
	}
	return chain
}

func (r *Registry) complexHierarchy(t *edm.ComplexType) []*edm.ComplexType {
	var chain []*edm.ComplexType
	for t != nil && len(chain) < maxTypeDepth {
		chain = append(chain, t)
		if t.BaseType == "" {
			break
		}
		t = r.complexTypeNamed(t.BaseType)
	}
	return chain
}

// Property returns a declared or inherited structural property, or nil.
func (r *Registry) Property(t *edm.EntityType, name string) *edm.Property {
	for _, et := range r.entityHierarchy(t) {
		if p := et.Property(name); p != nil {
			return p
		}
	}
	return nil
}

// Properties returns all structural properties of t, base types first.
func (r *Registry) Properties(t *edm.EntityType) []*edm.Property {
	chain := r.entityHierarchy(t)
	var out []*edm.Property
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, chain[i].Properties...)
	}
	return out
}

// NavigationProperty returns a declared or inherited navigation property,
// or nil.
func (r *Registry) NavigationProperty(t *edm.EntityType, name string) *edm.NavigationProperty {
	for _, et := range r.entityHierarchy(t) {
		if n := et.NavigationProperty(name); n != nil {
			return n
		}
	}
	return nil
}

// NavigationProperties returns all navigation properties of t, base types
// first.
func (r *Registry) NavigationProperties(t *edm.EntityType) []*edm.NavigationProperty {
	chain := r.entityHierarchy(t)
	var out []*edm.NavigationProperty
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, chain[i].NavigationProperties...)
	}
	return out
}

// Key returns the key of t, taken from the nearest type declaring one.
func (r *Registry) Key(t *edm.EntityType) []edm.PropertyRef {
	for _, et := range r.entityHierarchy(t) {
		if len(et.Key) > 0 {
			return et.Key
		}
	}
	return nil
}

// KeyProperties returns the structural properties forming the key of t.
func (r *Registry) KeyProperties(t *edm.EntityType) []*edm.Property {
	refs := r.Key(t)
	out := make([]*edm.Property, 0, len(refs))
	for _, ref := range refs {
		if p := r.Property(t, ref.Name); p != nil {
			out = append(out, p)
		}
	}
	return out
}

// HasStream reports whether t or any base type is a media entity type.
func (r *Registry) HasStream(t *edm.EntityType) bool {
	for _, et := range r.entityHierarchy(t) {
		if et.HasStream {
			return true
		}
	}
	return false
}

// ComplexProperty returns a declared or inherited property of a complex
// type, or nil.
func (r *Registry) ComplexProperty(t *edm.ComplexType, name string) *edm.Property {
	for _, ct := range r.complexHierarchy(t) {
		if p := ct.Property(name); p != nil {
			return p
		}
	}
	return nil
}

// ComplexProperties returns all properties of a complex type, base types
// first.
func (r *Registry) ComplexProperties(t *edm.ComplexType) []*edm.Property {
	chain := r.complexHierarchy(t)
	var out []*edm.Property
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, chain[i].Properties...)
	}
	return out
}

// IsDerivedFrom reports whether t equals base or derives from it.
func (r *Registry) IsDerivedFrom(t, base *edm.EntityType) bool {
	for _, et := range r.entityHierarchy(t) {
		if et == base {
			return true
		}
	}
	return false
}

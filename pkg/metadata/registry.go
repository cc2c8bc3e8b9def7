package metadata

import (
	"github.com/rhuss/odin/pkg/edm"
)

// Registry resolves namespaces and qualified names to schema elements.
//
// Resolution order for a namespace: own schemas, then each referenced
// registry (recursively, each visited at most once per lookup), then the
// vocabulary annexes. A miss yields nil.
type Registry struct {
	schemas      []*edm.Schema
	references   []*reference
	vocabularies []*edm.Schema
}

type reference struct {
	uri      string
	includes []edm.AliasInfo
	registry *Registry
}

// New creates a registry owning the given schemas.
func New(schemas ...*edm.Schema) *Registry {
	r := &Registry{}
	for _, s := range schemas {
		if s != nil {
			r.schemas = append(r.schemas, s)
		}
	}
	return r
}

// AddReference attaches the registry of a referenced document. includes
// lists the namespaces (and their aliases) the reference contributes.
// Cycles between registries are allowed.
func (r *Registry) AddReference(uri string, ref *Registry, includes ...edm.AliasInfo) {
	r.references = append(r.references, &reference{uri: uri, includes: includes, registry: ref})
}

// AddVocabulary attaches a vocabulary annex schema. Annexes are consulted
// directly and never recursively.
func (r *Registry) AddVocabulary(s *edm.Schema) {
	if s != nil {
		r.vocabularies = append(r.vocabularies, s)
	}
}

// Reference describes one referenced document.
type Reference struct {
	URI      string
	Includes []edm.AliasInfo
}

// References lists the directly referenced documents in assembly order.
func (r *Registry) References() []Reference {
	out := make([]Reference, 0, len(r.references))
	for _, ref := range r.references {
		out = append(out, Reference{URI: ref.uri, Includes: ref.includes})
	}
	return out
}

// Schemas returns the registry's own schemas in assembly order.
func (r *Registry) Schemas() []*edm.Schema {
	return r.schemas
}

// Schema returns the schema for a namespace or alias, or nil.
func (r *Registry) Schema(namespace string) *edm.Schema {
	return r.resolve(r.Namespace(namespace), make(map[*Registry]bool))
}

func (r *Registry) resolve(ns string, visited map[*Registry]bool) *edm.Schema {
	visited[r] = true
	for _, s := range r.schemas {
		if s.Namespace == ns {
			return s
		}
	}
	for _, ref := range r.references {
		if ref.registry == nil || visited[ref.registry] {
			continue
		}
		if s := ref.registry.resolve(ns, visited); s != nil {
			return s
		}
	}
	for _, s := range r.vocabularies {
		if s.Namespace == ns {
			return s
		}
	}
	return nil
}

// Aliases lists the aliases of own schemas, of reference includes and of
// vocabulary annexes, in that order. Duplicates are kept.
func (r *Registry) Aliases() []edm.AliasInfo {
	var out []edm.AliasInfo
	for _, s := range r.schemas {
		if s.Alias != "" {
			out = append(out, edm.AliasInfo{Namespace: s.Namespace, Alias: s.Alias})
		}
	}
	for _, ref := range r.references {
		for _, inc := range ref.includes {
			if inc.Alias != "" {
				out = append(out, inc)
			}
		}
	}
	for _, s := range r.vocabularies {
		if s.Alias != "" {
			out = append(out, edm.AliasInfo{Namespace: s.Namespace, Alias: s.Alias})
		}
	}
	return out
}

// Namespace maps an alias to its namespace. Anything that is not a known
// alias is returned unchanged.
func (r *Registry) Namespace(nsOrAlias string) string {
	for _, a := range r.Aliases() {
		if a.Alias == nsOrAlias {
			return a.Namespace
		}
	}
	return nsOrAlias
}

// Qualify resolves the namespace part of a qualified name.
func (r *Registry) Qualify(fqn edm.FullQualifiedName) edm.FullQualifiedName {
	return edm.FullQualifiedName{Namespace: r.Namespace(fqn.Namespace), Name: fqn.Name}
}

func (r *Registry) schemaFor(fqn edm.FullQualifiedName) *edm.Schema {
	return r.Schema(fqn.Namespace)
}

// EntityType returns the named entity type, or nil.
func (r *Registry) EntityType(fqn edm.FullQualifiedName) *edm.EntityType {
	if s := r.schemaFor(fqn); s != nil {
		return s.EntityType(fqn.Name)
	}
	return nil
}

// ComplexType returns the named complex type, or nil.
func (r *Registry) ComplexType(fqn edm.FullQualifiedName) *edm.ComplexType {
	if s := r.schemaFor(fqn); s != nil {
		return s.ComplexType(fqn.Name)
	}
	return nil
}

// EnumType returns the named enum type, or nil.
func (r *Registry) EnumType(fqn edm.FullQualifiedName) *edm.EnumType {
	if s := r.schemaFor(fqn); s != nil {
		return s.EnumType(fqn.Name)
	}
	return nil
}

// TypeDefinition returns the named type definition, or nil.
func (r *Registry) TypeDefinition(fqn edm.FullQualifiedName) *edm.TypeDefinition {
	if s := r.schemaFor(fqn); s != nil {
		return s.TypeDefinition(fqn.Name)
	}
	return nil
}

// Term returns the named term, or nil.
func (r *Registry) Term(fqn edm.FullQualifiedName) *edm.Term {
	if s := r.schemaFor(fqn); s != nil {
		return s.Term(fqn.Name)
	}
	return nil
}

// Actions returns every overload of the named action.
func (r *Registry) Actions(fqn edm.FullQualifiedName) []*edm.Action {
	if s := r.schemaFor(fqn); s != nil {
		return s.ActionsNamed(fqn.Name)
	}
	return nil
}

// Functions returns every overload of the named function.
func (r *Registry) Functions(fqn edm.FullQualifiedName) []*edm.Function {
	if s := r.schemaFor(fqn); s != nil {
		return s.FunctionsNamed(fqn.Name)
	}
	return nil
}

// UnboundAction returns the unbound overload of the named action, or nil.
func (r *Registry) UnboundAction(fqn edm.FullQualifiedName) *edm.Action {
	for _, a := range r.Actions(fqn) {
		if !a.IsBound {
			return a
		}
	}
	return nil
}

// BoundAction returns the overload of the named action bound to
// bindingType (Collection(...) for collection binding), or nil.
func (r *Registry) BoundAction(fqn edm.FullQualifiedName, bindingType string) *edm.Action {
	for _, a := range r.Actions(fqn) {
		if p := a.BindingParameter(); p != nil && r.sameType(p.Type, bindingType) {
			return a
		}
	}
	return nil
}

// UnboundFunction returns the unbound overload of the named function whose
// parameter names match params exactly (any order), or nil. A nil params
// matches the first unbound overload.
func (r *Registry) UnboundFunction(fqn edm.FullQualifiedName, params []string) *edm.Function {
	for _, f := range r.Functions(fqn) {
		if !f.IsBound && (params == nil || sameParameters(f.Parameters, params)) {
			return f
		}
	}
	return nil
}

// BoundFunction returns the overload of the named function bound to
// bindingType whose non-binding parameter names match params, or nil.
func (r *Registry) BoundFunction(fqn edm.FullQualifiedName, bindingType string, params []string) *edm.Function {
	for _, f := range r.Functions(fqn) {
		p := f.BindingParameter()
		if p == nil || !r.sameType(p.Type, bindingType) {
			continue
		}
		if params == nil || sameParameters(f.Parameters[1:], params) {
			return f
		}
	}
	return nil
}

func (r *Registry) sameType(a, b string) bool {
	ae, acoll := edm.ElementType(a)
	be, bcoll := edm.ElementType(b)
	if acoll != bcoll {
		return false
	}
	af, err1 := edm.ParseFQN(ae)
	bf, err2 := edm.ParseFQN(be)
	if err1 != nil || err2 != nil {
		return ae == be
	}
	return r.Qualify(af) == r.Qualify(bf)
}

func sameParameters(declared []*edm.Parameter, names []string) bool {
	if len(declared) != len(names) {
		return false
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	for _, p := range declared {
		if !seen[p.Name] {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Container
// ---------------------------------------------------------------------------

// EntityContainer returns the service's entity container: the first one
// declared by the registry's own schemas, or nil.
func (r *Registry) EntityContainer() *edm.EntityContainer {
	for _, s := range r.schemas {
		if s.EntityContainer != nil {
			return s.EntityContainer
		}
	}
	return nil
}

// ContainerName returns the qualified name of the entity container.
func (r *Registry) ContainerName() edm.FullQualifiedName {
	for _, s := range r.schemas {
		if s.EntityContainer != nil {
			return edm.NewFQN(s.Namespace, s.EntityContainer.Name)
		}
	}
	return edm.FullQualifiedName{}
}

// EntitySet returns the named entity set of the container, or nil.
func (r *Registry) EntitySet(name string) *edm.EntitySet {
	if c := r.EntityContainer(); c != nil {
		return c.EntitySet(name)
	}
	return nil
}

// Singleton returns the named singleton of the container, or nil.
func (r *Registry) Singleton(name string) *edm.Singleton {
	if c := r.EntityContainer(); c != nil {
		return c.Singleton(name)
	}
	return nil
}

// ActionImport returns the named action import of the container, or nil.
func (r *Registry) ActionImport(name string) *edm.ActionImport {
	if c := r.EntityContainer(); c != nil {
		return c.ActionImport(name)
	}
	return nil
}

// FunctionImport returns the named function import of the container, or nil.
func (r *Registry) FunctionImport(name string) *edm.FunctionImport {
	if c := r.EntityContainer(); c != nil {
		return c.FunctionImport(name)
	}
	return nil
}

// EntitySetType returns the entity type of an entity set, or nil.
func (r *Registry) EntitySetType(set *edm.EntitySet) *edm.EntityType {
	if set == nil {
		return nil
	}
	return r.entityTypeNamed(set.EntityType)
}

// SingletonType returns the entity type of a singleton, or nil.
func (r *Registry) SingletonType(s *edm.Singleton) *edm.EntityType {
	if s == nil {
		return nil
	}
	return r.entityTypeNamed(s.Type)
}

// NavigationTarget returns the entity set a navigation from set along path
// is bound to, or nil when unbound or bound outside the container.
func (r *Registry) NavigationTarget(set *edm.EntitySet, path string) *edm.EntitySet {
	if set == nil {
		return nil
	}
	target := set.BindingTarget(path)
	if target == "" {
		return nil
	}
	t := edm.ParseTarget(target, r.ContainerName())
	if t.Container != r.ContainerName() {
		return nil
	}
	return r.EntitySet(t.Name)
}

func (r *Registry) entityTypeNamed(name string) *edm.EntityType {
	fqn, err := edm.ParseFQN(name)
	if err != nil {
		return nil
	}
	return r.EntityType(fqn)
}

func (r *Registry) complexTypeNamed(name string) *edm.ComplexType {
	fqn, err := edm.ParseFQN(name)
	if err != nil {
		return nil
	}
	return r.ComplexType(fqn)
}

// StructuredType resolves a qualified type name to an entity or complex
// type. At most one of the results is non-nil.
func (r *Registry) StructuredType(name string) (*edm.EntityType, *edm.ComplexType) {
	if et := r.entityTypeNamed(name); et != nil {
		return et, nil
	}
	return nil, r.complexTypeNamed(name)
}

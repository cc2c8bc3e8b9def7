package edm

// ---------------------------------------------------------------------------
// Structural types
// ---------------------------------------------------------------------------

// Property is a structural property of an entity or complex type.
type Property struct {
	Name         string `yaml:"name"`
	Type         string `yaml:"type"`
	Nullable     *bool  `yaml:"nullable,omitempty"`
	MaxLength    int    `yaml:"max_length,omitempty"`
	Precision    int    `yaml:"precision,omitempty"`
	Scale        int    `yaml:"scale,omitempty"`
	DefaultValue string `yaml:"default_value,omitempty"`
}

// IsCollection reports whether the property is collection-valued.
func (p *Property) IsCollection() bool {
	_, coll := ElementType(p.Type)
	return coll
}

// ElementType returns the property type without any Collection wrapper.
func (p *Property) ElementType() string {
	t, _ := ElementType(p.Type)
	return t
}

// IsPrimitive reports whether the element type is primitive.
func (p *Property) IsPrimitive() bool {
	return IsPrimitive(p.ElementType())
}

// IsStream reports whether the property is an Edm.Stream.
func (p *Property) IsStream() bool {
	return p.Type == TypeStream
}

// IsNullable defaults to true when unset.
func (p *Property) IsNullable() bool {
	return p.Nullable == nil || *p.Nullable
}

// NavigationProperty relates an entity type to another entity type.
type NavigationProperty struct {
	Name           string `yaml:"name"`
	Type           string `yaml:"type"`
	Nullable       *bool  `yaml:"nullable,omitempty"`
	Partner        string `yaml:"partner,omitempty"`
	ContainsTarget bool   `yaml:"contains_target,omitempty"`
}

// IsCollection reports whether the navigation targets many entities.
func (n *NavigationProperty) IsCollection() bool {
	_, coll := ElementType(n.Type)
	return coll
}

// TargetType returns the qualified name of the related entity type.
func (n *NavigationProperty) TargetType() string {
	t, _ := ElementType(n.Type)
	return t
}

// PropertyRef names a key property.
type PropertyRef struct {
	Name  string `yaml:"name"`
	Alias string `yaml:"alias,omitempty"`
}

// EntityType is a keyed structured type.
type EntityType struct {
	Name                 string                `yaml:"name"`
	BaseType             string                `yaml:"base_type,omitempty"`
	Abstract             bool                  `yaml:"abstract,omitempty"`
	OpenType             bool                  `yaml:"open_type,omitempty"`
	HasStream            bool                  `yaml:"has_stream,omitempty"`
	Key                  []PropertyRef         `yaml:"key,omitempty"`
	Properties           []*Property           `yaml:"properties,omitempty"`
	NavigationProperties []*NavigationProperty `yaml:"navigation_properties,omitempty"`
}

// Property returns the declared (not inherited) property, or nil.
func (t *EntityType) Property(name string) *Property {
	return findProperty(t.Properties, name)
}

// NavigationProperty returns the declared navigation property, or nil.
func (t *EntityType) NavigationProperty(name string) *NavigationProperty {
	return findNavigation(t.NavigationProperties, name)
}

// ComplexType is a keyless structured type.
type ComplexType struct {
	Name                 string                `yaml:"name"`
	BaseType             string                `yaml:"base_type,omitempty"`
	Abstract             bool                  `yaml:"abstract,omitempty"`
	OpenType             bool                  `yaml:"open_type,omitempty"`
	Properties           []*Property           `yaml:"properties,omitempty"`
	NavigationProperties []*NavigationProperty `yaml:"navigation_properties,omitempty"`
}

// Property returns the declared property, or nil.
func (t *ComplexType) Property(name string) *Property {
	return findProperty(t.Properties, name)
}

// NavigationProperty returns the declared navigation property, or nil.
func (t *ComplexType) NavigationProperty(name string) *NavigationProperty {
	return findNavigation(t.NavigationProperties, name)
}

// EnumMember is one named value of an enum type.
type EnumMember struct {
	Name  string `yaml:"name"`
	Value int64  `yaml:"value"`
}

// EnumType is a named set of integral values.
type EnumType struct {
	Name           string       `yaml:"name"`
	UnderlyingType string       `yaml:"underlying_type,omitempty"`
	IsFlags        bool         `yaml:"is_flags,omitempty"`
	Members        []EnumMember `yaml:"members"`
}

// Member returns the named member.
func (t *EnumType) Member(name string) (EnumMember, bool) {
	for _, m := range t.Members {
		if m.Name == name {
			return m, true
		}
	}
	return EnumMember{}, false
}

// TypeDefinition is a named restriction of a primitive type.
type TypeDefinition struct {
	Name           string `yaml:"name"`
	UnderlyingType string `yaml:"underlying_type"`
}

// Term is a vocabulary term annotations may apply.
type Term struct {
	Name         string   `yaml:"name"`
	Type         string   `yaml:"type"`
	BaseTerm     string   `yaml:"base_term,omitempty"`
	AppliesTo    []string `yaml:"applies_to,omitempty"`
	DefaultValue string   `yaml:"default_value,omitempty"`
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// Parameter is an operation parameter.
type Parameter struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable *bool  `yaml:"nullable,omitempty"`
}

// IsCollection reports whether the parameter is collection-valued.
func (p *Parameter) IsCollection() bool {
	_, coll := ElementType(p.Type)
	return coll
}

// ReturnType describes an operation result.
type ReturnType struct {
	Type     string `yaml:"type"`
	Nullable *bool  `yaml:"nullable,omitempty"`
}

// IsCollection reports whether the result is collection-valued.
func (r *ReturnType) IsCollection() bool {
	_, coll := ElementType(r.Type)
	return coll
}

// Action is a side-effecting operation invoked with POST.
type Action struct {
	Name          string       `yaml:"name"`
	IsBound       bool         `yaml:"is_bound,omitempty"`
	EntitySetPath string       `yaml:"entity_set_path,omitempty"`
	Parameters    []*Parameter `yaml:"parameters,omitempty"`
	ReturnType    *ReturnType  `yaml:"return_type,omitempty"`
}

// BindingParameter returns the first parameter of a bound action.
func (a *Action) BindingParameter() *Parameter {
	if !a.IsBound || len(a.Parameters) == 0 {
		return nil
	}
	return a.Parameters[0]
}

// Function is a side-effect-free operation invoked with GET.
type Function struct {
	Name          string       `yaml:"name"`
	IsBound       bool         `yaml:"is_bound,omitempty"`
	IsComposable  bool         `yaml:"is_composable,omitempty"`
	EntitySetPath string       `yaml:"entity_set_path,omitempty"`
	Parameters    []*Parameter `yaml:"parameters,omitempty"`
	ReturnType    *ReturnType  `yaml:"return_type"`
}

// BindingParameter returns the first parameter of a bound function.
func (f *Function) BindingParameter() *Parameter {
	if !f.IsBound || len(f.Parameters) == 0 {
		return nil
	}
	return f.Parameters[0]
}

// ---------------------------------------------------------------------------
// Container
// ---------------------------------------------------------------------------

// NavigationPropertyBinding maps a navigation path to the entity set (or
// singleton) holding its targets.
type NavigationPropertyBinding struct {
	Path   string `yaml:"path"`
	Target string `yaml:"target"`
}

// EntitySet is an addressable collection of entities.
type EntitySet struct {
	Name                     string                      `yaml:"name"`
	EntityType               string                      `yaml:"entity_type"`
	IncludeInServiceDocument *bool                       `yaml:"include_in_service_document,omitempty"`
	NavigationBindings       []NavigationPropertyBinding `yaml:"navigation_bindings,omitempty"`
}

// BindingTarget returns the binding target for a navigation path, or "".
func (s *EntitySet) BindingTarget(path string) string {
	return bindingTarget(s.NavigationBindings, path)
}

// InServiceDocument defaults to true when unset.
func (s *EntitySet) InServiceDocument() bool {
	return s.IncludeInServiceDocument == nil || *s.IncludeInServiceDocument
}

// Singleton is a single addressable entity.
type Singleton struct {
	Name               string                      `yaml:"name"`
	Type               string                      `yaml:"type"`
	NavigationBindings []NavigationPropertyBinding `yaml:"navigation_bindings,omitempty"`
}

// BindingTarget returns the binding target for a navigation path, or "".
func (s *Singleton) BindingTarget(path string) string {
	return bindingTarget(s.NavigationBindings, path)
}

// ActionImport exposes an unbound action at the service root.
type ActionImport struct {
	Name      string `yaml:"name"`
	Action    string `yaml:"action"`
	EntitySet string `yaml:"entity_set,omitempty"`
}

// FunctionImport exposes an unbound function at the service root.
type FunctionImport struct {
	Name                     string `yaml:"name"`
	Function                 string `yaml:"function"`
	EntitySet                string `yaml:"entity_set,omitempty"`
	IncludeInServiceDocument bool   `yaml:"include_in_service_document,omitempty"`
}

// EntityContainer groups the addressable members of a service.
type EntityContainer struct {
	Name            string            `yaml:"name"`
	Extends         string            `yaml:"extends,omitempty"`
	EntitySets      []*EntitySet      `yaml:"entity_sets,omitempty"`
	Singletons      []*Singleton      `yaml:"singletons,omitempty"`
	ActionImports   []*ActionImport   `yaml:"action_imports,omitempty"`
	FunctionImports []*FunctionImport `yaml:"function_imports,omitempty"`
}

// EntitySet returns the named entity set, or nil.
func (c *EntityContainer) EntitySet(name string) *EntitySet {
	for _, s := range c.EntitySets {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Singleton returns the named singleton, or nil.
func (c *EntityContainer) Singleton(name string) *Singleton {
	for _, s := range c.Singletons {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// ActionImport returns the named action import, or nil.
func (c *EntityContainer) ActionImport(name string) *ActionImport {
	for _, a := range c.ActionImports {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// FunctionImport returns the named function import, or nil.
func (c *EntityContainer) FunctionImport(name string) *FunctionImport {
	for _, f := range c.FunctionImports {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

// Schema is a namespace of model elements.
type Schema struct {
	Namespace       string            `yaml:"namespace"`
	Alias           string            `yaml:"alias,omitempty"`
	EntityTypes     []*EntityType     `yaml:"entity_types,omitempty"`
	ComplexTypes    []*ComplexType    `yaml:"complex_types,omitempty"`
	EnumTypes       []*EnumType       `yaml:"enum_types,omitempty"`
	TypeDefinitions []*TypeDefinition `yaml:"type_definitions,omitempty"`
	Actions         []*Action         `yaml:"actions,omitempty"`
	Functions       []*Function       `yaml:"functions,omitempty"`
	Terms           []*Term           `yaml:"terms,omitempty"`
	EntityContainer *EntityContainer  `yaml:"entity_container,omitempty"`
}

// EntityType returns the named entity type, or nil.
func (s *Schema) EntityType(name string) *EntityType {
	for _, t := range s.EntityTypes {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// ComplexType returns the named complex type, or nil.
func (s *Schema) ComplexType(name string) *ComplexType {
	for _, t := range s.ComplexTypes {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// EnumType returns the named enum type, or nil.
func (s *Schema) EnumType(name string) *EnumType {
	for _, t := range s.EnumTypes {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// TypeDefinition returns the named type definition, or nil.
func (s *Schema) TypeDefinition(name string) *TypeDefinition {
	for _, t := range s.TypeDefinitions {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Term returns the named term, or nil.
func (s *Schema) Term(name string) *Term {
	for _, t := range s.Terms {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// ActionsNamed returns every overload of the named action.
func (s *Schema) ActionsNamed(name string) []*Action {
	var out []*Action
	for _, a := range s.Actions {
		if a.Name == name {
			out = append(out, a)
		}
	}
	return out
}

// FunctionsNamed returns every overload of the named function.
func (s *Schema) FunctionsNamed(name string) []*Function {
	var out []*Function
	for _, f := range s.Functions {
		if f.Name == name {
			out = append(out, f)
		}
	}
	return out
}

// AliasInfo pairs a namespace with the alias it may be referred to by.
type AliasInfo struct {
	Namespace string
	Alias     string
}

func findProperty(props []*Property, name string) *Property {
	for _, p := range props {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func findNavigation(navs []*NavigationProperty, name string) *NavigationProperty {
	for _, n := range navs {
		if n.Name == name {
			return n
		}
	}
	return nil
}

func bindingTarget(bindings []NavigationPropertyBinding, path string) string {
	for _, b := range bindings {
		if b.Path == path {
			return b.Target
		}
	}
	return ""
}

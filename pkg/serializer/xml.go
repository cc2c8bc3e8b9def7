package serializer

import (
	"encoding/xml"
	"strconv"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/edm"
	"github.com/rhuss/odin/pkg/metadata"
)

const (
	namespaceEDMX = "http://docs.oasis-open.org/odata/ns/edmx"
	namespaceEDM  = "http://docs.oasis-open.org/odata/ns/edm"
	namespaceMeta = "http://docs.oasis-open.org/odata/ns/metadata"
)

// XML writes the CSDL metadata document and XML error bodies.
type XML struct{}

// NewXML returns an XML serializer.
func NewXML() *XML { return &XML{} }

// Entity implements Serializer.
func (s *XML) Entity(*api.Entity, Options) ([]byte, error) {
	return nil, unsupported("XML", "entities")
}

// EntityCollection implements Serializer.
func (s *XML) EntityCollection(*api.EntityCollection, Options) ([]byte, error) {
	return nil, unsupported("XML", "entity collections")
}

// Property implements Serializer.
func (s *XML) Property(*api.Property, Options) ([]byte, error) {
	return nil, unsupported("XML", "properties")
}

// ServiceDocument implements Serializer.
func (s *XML) ServiceDocument(*metadata.Registry, Options) ([]byte, error) {
	return nil, unsupported("XML", "the service document")
}

// ---------------------------------------------------------------------------
// CSDL document
// ---------------------------------------------------------------------------

type edmxDocument struct {
	XMLName      xml.Name         `xml:"edmx:Edmx"`
	Version      string           `xml:"Version,attr"`
	XMLNS        string           `xml:"xmlns:edmx,attr"`
	References   []edmxReference  `xml:"edmx:Reference"`
	DataServices edmxDataServices `xml:"edmx:DataServices"`
}

type edmxReference struct {
	URI      string        `xml:"Uri,attr"`
	Includes []edmxInclude `xml:"edmx:Include"`
}

type edmxInclude struct {
	Namespace string `xml:"Namespace,attr"`
	Alias     string `xml:"Alias,attr,omitempty"`
}

type edmxDataServices struct {
	Schemas []csdlSchema `xml:"Schema"`
}

type csdlSchema struct {
	XMLNS           string               `xml:"xmlns,attr"`
	Namespace       string               `xml:"Namespace,attr"`
	Alias           string               `xml:"Alias,attr,omitempty"`
	EnumTypes       []csdlEnumType       `xml:"EnumType"`
	TypeDefinitions []csdlTypeDef        `xml:"TypeDefinition"`
	ComplexTypes    []csdlStructured     `xml:"ComplexType"`
	EntityTypes     []csdlStructured     `xml:"EntityType"`
	Actions         []csdlOperation      `xml:"Action"`
	Functions       []csdlOperation      `xml:"Function"`
	Terms           []csdlTerm           `xml:"Term"`
	Container       *csdlEntityContainer `xml:"EntityContainer"`
}

type csdlEnumType struct {
	Name           string           `xml:"Name,attr"`
	UnderlyingType string           `xml:"UnderlyingType,attr,omitempty"`
	IsFlags        bool             `xml:"IsFlags,attr,omitempty"`
	Members        []csdlEnumMember `xml:"Member"`
}

type csdlEnumMember struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:"Value,attr"`
}

type csdlTypeDef struct {
	Name           string `xml:"Name,attr"`
	UnderlyingType string `xml:"UnderlyingType,attr"`
}

type csdlStructured struct {
	Name                 string           `xml:"Name,attr"`
	BaseType             string           `xml:"BaseType,attr,omitempty"`
	Abstract             bool             `xml:"Abstract,attr,omitempty"`
	OpenType             bool             `xml:"OpenType,attr,omitempty"`
	HasStream            bool             `xml:"HasStream,attr,omitempty"`
	Key                  *csdlKey         `xml:"Key"`
	Properties           []csdlProperty   `xml:"Property"`
	NavigationProperties []csdlNavigation `xml:"NavigationProperty"`
}

type csdlKey struct {
	Refs []csdlPropertyRef `xml:"PropertyRef"`
}

type csdlPropertyRef struct {
	Name  string `xml:"Name,attr"`
	Alias string `xml:"Alias,attr,omitempty"`
}

type csdlProperty struct {
	Name         string `xml:"Name,attr"`
	Type         string `xml:"Type,attr"`
	Nullable     string `xml:"Nullable,attr,omitempty"`
	MaxLength    string `xml:"MaxLength,attr,omitempty"`
	Precision    string `xml:"Precision,attr,omitempty"`
	Scale        string `xml:"Scale,attr,omitempty"`
	DefaultValue string `xml:"DefaultValue,attr,omitempty"`
}

type csdlNavigation struct {
	Name           string `xml:"Name,attr"`
	Type           string `xml:"Type,attr"`
	Nullable       string `xml:"Nullable,attr,omitempty"`
	Partner        string `xml:"Partner,attr,omitempty"`
	ContainsTarget bool   `xml:"ContainsTarget,attr,omitempty"`
}

type csdlOperation struct {
	Name          string          `xml:"Name,attr"`
	IsBound       bool            `xml:"IsBound,attr,omitempty"`
	IsComposable  bool            `xml:"IsComposable,attr,omitempty"`
	EntitySetPath string          `xml:"EntitySetPath,attr,omitempty"`
	Parameters    []csdlParameter `xml:"Parameter"`
	ReturnType    *csdlReturnType `xml:"ReturnType"`
}

type csdlParameter struct {
	Name     string `xml:"Name,attr"`
	Type     string `xml:"Type,attr"`
	Nullable string `xml:"Nullable,attr,omitempty"`
}

type csdlReturnType struct {
	Type     string `xml:"Type,attr"`
	Nullable string `xml:"Nullable,attr,omitempty"`
}

type csdlTerm struct {
	Name         string `xml:"Name,attr"`
	Type         string `xml:"Type,attr"`
	BaseTerm     string `xml:"BaseTerm,attr,omitempty"`
	DefaultValue string `xml:"DefaultValue,attr,omitempty"`
}

type csdlEntityContainer struct {
	Name            string               `xml:"Name,attr"`
	Extends         string               `xml:"Extends,attr,omitempty"`
	EntitySets      []csdlEntitySet      `xml:"EntitySet"`
	Singletons      []csdlSingleton      `xml:"Singleton"`
	ActionImports   []csdlActionImport   `xml:"ActionImport"`
	FunctionImports []csdlFunctionImport `xml:"FunctionImport"`
}

type csdlBinding struct {
	Path   string `xml:"Path,attr"`
	Target string `xml:"Target,attr"`
}

type csdlEntitySet struct {
	Name                     string        `xml:"Name,attr"`
	EntityType               string        `xml:"EntityType,attr"`
	IncludeInServiceDocument string        `xml:"IncludeInServiceDocument,attr,omitempty"`
	Bindings                 []csdlBinding `xml:"NavigationPropertyBinding"`
}

type csdlSingleton struct {
	Name     string        `xml:"Name,attr"`
	Type     string        `xml:"Type,attr"`
	Bindings []csdlBinding `xml:"NavigationPropertyBinding"`
}

type csdlActionImport struct {
	Name      string `xml:"Name,attr"`
	Action    string `xml:"Action,attr"`
	EntitySet string `xml:"EntitySet,attr,omitempty"`
}

type csdlFunctionImport struct {
	Name                     string `xml:"Name,attr"`
	Function                 string `xml:"Function,attr"`
	EntitySet                string `xml:"EntitySet,attr,omitempty"`
	IncludeInServiceDocument bool   `xml:"IncludeInServiceDocument,attr,omitempty"`
}

// Metadata implements Serializer. Referenced registries are listed as
// edmx:Reference entries; only the registry's own schemas are inlined.
func (s *XML) Metadata(reg *metadata.Registry) ([]byte, error) {
	doc := edmxDocument{Version: "4.0", XMLNS: namespaceEDMX}
	for _, ref := range reg.References() {
		r := edmxReference{URI: ref.URI}
		for _, inc := range ref.Includes {
			r.Includes = append(r.Includes, edmxInclude{Namespace: inc.Namespace, Alias: inc.Alias})
		}
		doc.References = append(doc.References, r)
	}
	for _, schema := range reg.Schemas() {
		doc.DataServices.Schemas = append(doc.DataServices.Schemas, csdlSchemaOf(schema))
	}
	out, err := xml.Marshal(doc)
	if err != nil {
		return nil, api.NewSerializationError(api.KeyIOError, "writing metadata document", err)
	}
	return append([]byte(xml.Header), out...), nil
}

func csdlSchemaOf(s *edm.Schema) csdlSchema {
	cs := csdlSchema{XMLNS: namespaceEDM, Namespace: s.Namespace, Alias: s.Alias}
	for _, et := range s.EnumTypes {
		e := csdlEnumType{Name: et.Name, UnderlyingType: et.UnderlyingType, IsFlags: et.IsFlags}
		for _, m := range et.Members {
			e.Members = append(e.Members, csdlEnumMember{Name: m.Name, Value: strconv.FormatInt(m.Value, 10)})
		}
		cs.EnumTypes = append(cs.EnumTypes, e)
	}
	for _, td := range s.TypeDefinitions {
		cs.TypeDefinitions = append(cs.TypeDefinitions, csdlTypeDef{Name: td.Name, UnderlyingType: td.UnderlyingType})
	}
	for _, ct := range s.ComplexTypes {
		cs.ComplexTypes = append(cs.ComplexTypes, csdlStructured{
			Name: ct.Name, BaseType: ct.BaseType, Abstract: ct.Abstract, OpenType: ct.OpenType,
			Properties:           csdlProperties(ct.Properties),
			NavigationProperties: csdlNavigations(ct.NavigationProperties),
		})
	}
	for _, et := range s.EntityTypes {
		st := csdlStructured{
			Name: et.Name, BaseType: et.BaseType, Abstract: et.Abstract, OpenType: et.OpenType, HasStream: et.HasStream,
			Properties:           csdlProperties(et.Properties),
			NavigationProperties: csdlNavigations(et.NavigationProperties),
		}
		if len(et.Key) > 0 {
			st.Key = &csdlKey{}
			for _, k := range et.Key {
				st.Key.Refs = append(st.Key.Refs, csdlPropertyRef{Name: k.Name, Alias: k.Alias})
			}
		}
		cs.EntityTypes = append(cs.EntityTypes, st)
	}
	for _, a := range s.Actions {
		cs.Actions = append(cs.Actions, csdlOperation{
			Name: a.Name, IsBound: a.IsBound, EntitySetPath: a.EntitySetPath,
			Parameters: csdlParameters(a.Parameters), ReturnType: csdlReturn(a.ReturnType),
		})
	}
	for _, f := range s.Functions {
		cs.Functions = append(cs.Functions, csdlOperation{
			Name: f.Name, IsBound: f.IsBound, IsComposable: f.IsComposable, EntitySetPath: f.EntitySetPath,
			Parameters: csdlParameters(f.Parameters), ReturnType: csdlReturn(f.ReturnType),
		})
	}
	for _, t := range s.Terms {
		cs.Terms = append(cs.Terms, csdlTerm{Name: t.Name, Type: t.Type, BaseTerm: t.BaseTerm, DefaultValue: t.DefaultValue})
	}
	if c := s.EntityContainer; c != nil {
		cc := &csdlEntityContainer{Name: c.Name, Extends: c.Extends}
		for _, es := range c.EntitySets {
			set := csdlEntitySet{Name: es.Name, EntityType: es.EntityType, Bindings: csdlBindings(es.NavigationBindings)}
			if !es.InServiceDocument() {
				set.IncludeInServiceDocument = "false"
			}
			cc.EntitySets = append(cc.EntitySets, set)
		}
		for _, sg := range c.Singletons {
			cc.Singletons = append(cc.Singletons, csdlSingleton{Name: sg.Name, Type: sg.Type, Bindings: csdlBindings(sg.NavigationBindings)})
		}
		for _, ai := range c.ActionImports {
			cc.ActionImports = append(cc.ActionImports, csdlActionImport{Name: ai.Name, Action: ai.Action, EntitySet: ai.EntitySet})
		}
		for _, fi := range c.FunctionImports {
			cc.FunctionImports = append(cc.FunctionImports, csdlFunctionImport{
				Name: fi.Name, Function: fi.Function, EntitySet: fi.EntitySet, IncludeInServiceDocument: fi.IncludeInServiceDocument,
			})
		}
		cs.Container = cc
	}
	return cs
}

func csdlProperties(props []*edm.Property) []csdlProperty {
	out := make([]csdlProperty, 0, len(props))
	for _, p := range props {
		out = append(out, csdlProperty{
			Name: p.Name, Type: p.Type, Nullable: nullableAttr(p.Nullable),
			MaxLength: intAttr(p.MaxLength), Precision: intAttr(p.Precision), Scale: intAttr(p.Scale),
			DefaultValue: p.DefaultValue,
		})
	}
	return out
}

func csdlNavigations(navs []*edm.NavigationProperty) []csdlNavigation {
	out := make([]csdlNavigation, 0, len(navs))
	for _, n := range navs {
		out = append(out, csdlNavigation{
			Name: n.Name, Type: n.Type, Nullable: nullableAttr(n.Nullable), Partner: n.Partner, ContainsTarget: n.ContainsTarget,
		})
	}
	return out
}

func csdlParameters(params []*edm.Parameter) []csdlParameter {
	out := make([]csdlParameter, 0, len(params))
	for _, p := range params {
		out = append(out, csdlParameter{Name: p.Name, Type: p.Type, Nullable: nullableAttr(p.Nullable)})
	}
	return out
}

func csdlReturn(rt *edm.ReturnType) *csdlReturnType {
	if rt == nil {
		return nil
	}
	return &csdlReturnType{Type: rt.Type, Nullable: nullableAttr(rt.Nullable)}
}

func csdlBindings(bindings []edm.NavigationPropertyBinding) []csdlBinding {
	out := make([]csdlBinding, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, csdlBinding{Path: b.Path, Target: b.Target})
	}
	return out
}

func intAttr(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func nullableAttr(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

type xmlError struct {
	XMLName xml.Name         `xml:"error"`
	XMLNS   string           `xml:"xmlns,attr"`
	Code    string           `xml:"code"`
	Message string           `xml:"message"`
	Target  string           `xml:"target,omitempty"`
	Details []xmlErrorDetail `xml:"details>detail,omitempty"`
}

type xmlErrorDetail struct {
	Code    string `xml:"code"`
	Message string `xml:"message"`
	Target  string `xml:"target,omitempty"`
}

// Error implements Serializer.
func (s *XML) Error(e *api.ServerError) ([]byte, error) {
	doc := xmlError{XMLNS: namespaceMeta, Code: e.Code, Message: e.Message, Target: e.Target}
	for _, d := range e.Details {
		doc.Details = append(doc.Details, xmlErrorDetail{Code: d.Code, Message: d.Message, Target: d.Target})
	}
	out, err := xml.Marshal(doc)
	if err != nil {
		return nil, api.NewSerializationError(api.KeyIOError, "writing error document", err)
	}
	return append([]byte(xml.Header), out...), nil
}

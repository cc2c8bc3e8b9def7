package serializer

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/edm"
	"github.com/rhuss/odin/pkg/metadata"
	"github.com/rhuss/odin/pkg/metadata/metadatatest"
)

func TestXMLMetadata(t *testing.T) {
	out, err := NewXML().Metadata(metadatatest.Registry())
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	doc := string(out)
	for _, want := range []string{
		xml.Header,
		`<edmx:Edmx Version="4.0" xmlns:edmx="` + namespaceEDMX + `">`,
		`<Schema xmlns="` + namespaceEDM + `" Namespace="Demo" Alias="D">`,
		`<EntityType Name="Product">`,
		`<PropertyRef Name="ID">`,
		`<Property Name="ID" Type="Edm.Int32" Nullable="false">`,
		`<NavigationProperty Name="Category" Type="Demo.Category" Partner="Products">`,
		`<EnumType Name="Color">`,
		`<EntityType Name="Photo" HasStream="true">`,
		`<Action Name="Discount" IsBound="true">`,
		`<EntityContainer Name="Container">`,
		`<NavigationPropertyBinding Path="Category" Target="Categories">`,
		`<FunctionImport Name="TopProducts" Function="Demo.TopProducts" EntitySet="Products" IncludeInServiceDocument="true">`,
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("metadata document lacks %s", want)
		}
	}
}

func TestXMLMetadataReferences(t *testing.T) {
	reg := metadata.New(&edm.Schema{Namespace: "Main"})
	reg.AddReference("http://example.com/vocab/$metadata", metadatatest.Registry(),
		edm.AliasInfo{Namespace: "Demo", Alias: "D"})

	out, err := NewXML().Metadata(reg)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	doc := string(out)
	if !strings.Contains(doc, `<edmx:Reference Uri="http://example.com/vocab/$metadata"><edmx:Include Namespace="Demo" Alias="D"></edmx:Include></edmx:Reference>`) {
		t.Errorf("reference missing: %s", doc)
	}
	if strings.Contains(doc, `Namespace="Demo" Alias="D">`+"<EnumType") {
		t.Error("referenced schemas must not be inlined")
	}
}

func TestXMLError(t *testing.T) {
	out, err := NewXML().Error(&api.ServerError{Code: "404", Message: "not found", Target: "Products"})
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	var doc struct {
		Code    string `xml:"code"`
		Message string `xml:"message"`
		Target  string `xml:"target"`
	}
	if err := xml.Unmarshal(out, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Code != "404" || doc.Message != "not found" || doc.Target != "Products" {
		t.Errorf("error document = %+v", doc)
	}
}

func TestXMLUnsupportedShapes(t *testing.T) {
	s := NewXML()
	if _, err := s.Entity(&api.Entity{}, Options{}); err == nil {
		t.Error("Entity: expected error")
	}
	if _, err := s.EntityCollection(&api.EntityCollection{}, Options{}); err == nil {
		t.Error("EntityCollection: expected error")
	}
	if _, err := s.Property(&api.Property{}, Options{}); err == nil {
		t.Error("Property: expected error")
	}
}

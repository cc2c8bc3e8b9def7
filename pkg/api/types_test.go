package api

import (
	"net/http"
	"testing"
)

func TestNewResponseCarriesVersion(t *testing.T) {
	r := NewResponse()
	if got := r.Header.Get(HeaderODataVersion); got != ODataVersion {
		t.Errorf("OData-Version = %q, want %q", got, ODataVersion)
	}

	r.StatusCode = http.StatusCreated
	r.Header.Set(HeaderLocation, "x")
	r.Body = []byte("{}")
	r.Reset()

	if r.StatusCode != 0 || r.Body != nil || r.Header.Get(HeaderLocation) != "" {
		t.Errorf("Reset left state behind: %+v", r)
	}
	if got := r.Header.Get(HeaderODataVersion); got != ODataVersion {
		t.Errorf("OData-Version after Reset = %q, want %q", got, ODataVersion)
	}
}

func TestRequestWithTarget(t *testing.T) {
	orig := &Request{Method: http.MethodGet, RawPath: "/$entity", RawQuery: "$id=Products(1)&$select=Name"}
	rewritten := orig.WithTarget("/Products(1)", "$select=Name")

	if orig.RawPath != "/$entity" {
		t.Errorf("original mutated: %q", orig.RawPath)
	}
	if rewritten.RawPath != "/Products(1)" || rewritten.RawQuery != "$select=Name" {
		t.Errorf("rewritten = %q?%q", rewritten.RawPath, rewritten.RawQuery)
	}
	if rewritten.Method != http.MethodGet {
		t.Errorf("Method = %q, want GET", rewritten.Method)
	}
}

func TestEntityProperties(t *testing.T) {
	e := &Entity{Type: "NS.Product", ID: "Products(1)"}
	e.SetProperty(&Property{Name: "Name", Type: "Edm.String", Value: "Bread"})
	e.SetProperty(&Property{Name: "Price", Type: "Edm.Decimal", Value: 2.5})
	e.SetProperty(&Property{Name: "Name", Type: "Edm.String", Value: "Milk"})

	if len(e.Properties) != 2 {
		t.Fatalf("len(Properties) = %d, want 2", len(e.Properties))
	}
	if got := e.Property("Name").Value; got != "Milk" {
		t.Errorf("Name = %v, want Milk", got)
	}
	if e.Property("Missing") != nil {
		t.Error("Property(Missing) should be nil")
	}
	if !e.Property("Missing").IsNull() {
		t.Error("nil property should report IsNull")
	}
}

func TestEntityIDKey(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"Products(1)", "1"},
		{"Products('a(b)')", "'a(b)'"},
		{"Orders(ID=1,Line=2)", "ID=1,Line=2"},
		{"Products", ""},
		{"Products(1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := EntityIDKey(tt.id); got != tt.want {
				t.Errorf("EntityIDKey(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestValueTypeIsCollection(t *testing.T) {
	if ValuePrimitive.IsCollection() || ValueComplex.IsCollection() {
		t.Error("single values reported as collections")
	}
	if !ValueCollectionComplex.IsCollection() || !ValueCollectionPrimitive.IsCollection() {
		t.Error("collections not reported as collections")
	}
}

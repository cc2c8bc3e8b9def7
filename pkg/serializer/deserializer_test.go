package serializer

import (
	"errors"
	"testing"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/edm"
	"github.com/rhuss/odin/pkg/metadata"
	"github.com/rhuss/odin/pkg/metadata/metadatatest"
)

func demo(t *testing.T) (*metadata.Registry, *Deserializer) {
	t.Helper()
	reg := metadatatest.Registry()
	return reg, NewDeserializer(reg)
}

func wantKey(t *testing.T, err error, key string) {
	t.Helper()
	var e *api.Error
	if !errors.As(err, &e) {
		t.Fatalf("err = %v, want *api.Error with key %s", err, key)
	}
	if e.Key != key {
		t.Fatalf("key = %s, want %s (%v)", e.Key, key, err)
	}
}

func TestDeserializeEntity(t *testing.T) {
	reg, d := demo(t)
	et := reg.EntityType(edm.NewFQN("Demo", "Product"))

	body := `{
		"@odata.type": "#Demo.Product",
		"ID": 1,
		"Name": "Chai",
		"Price": 9.5,
		"Tags": ["tea"],
		"Address": {"City": "Springfield"},
		"Color": "Red",
		"Category@odata.bind": "Categories(1)",
		"Related": [{"ID": 2, "Name": "Chang"}]
	}`
	e, err := d.Entity([]byte(body), et)
	if err != nil {
		t.Fatalf("Entity: %v", err)
	}
	if e.Type != "Demo.Product" {
		t.Errorf("Type = %q", e.Type)
	}
	if got := e.Property("ID").Value; got != int64(1) {
		t.Errorf("ID = %#v", got)
	}
	if got := e.Property("Price").Value; got != 9.5 {
		t.Errorf("Price = %#v", got)
	}
	if p := e.Property("Tags"); p.ValueType != api.ValueCollectionPrimitive || len(p.Value.([]any)) != 1 {
		t.Errorf("Tags = %+v", p)
	}
	addr := e.Property("Address")
	if addr.ValueType != api.ValueComplex {
		t.Fatalf("Address value type = %v", addr.ValueType)
	}
	if city := addr.Value.(*api.ComplexValue).Property("City"); city == nil || city.Value != "Springfield" {
		t.Errorf("Address.City = %+v", city)
	}
	if p := e.Property("Color"); p.ValueType != api.ValueEnum || p.Value != "Red" {
		t.Errorf("Color = %+v", p)
	}
	if len(e.Bindings) != 1 || e.Bindings[0].Name != "Category" || e.Bindings[0].BindingIDs[0] != "Categories(1)" {
		t.Errorf("Bindings = %+v", e.Bindings)
	}
	related := e.NavigationLink("Related")
	if related == nil || related.Entities == nil || len(related.Entities.Entities) != 1 {
		t.Fatalf("Related deep insert = %+v", related)
	}
	if got := related.Entities.Entities[0].Property("Name").Value; got != "Chang" {
		t.Errorf("Related[0].Name = %#v", got)
	}
}

func TestDeserializeEntityErrors(t *testing.T) {
	reg, d := demo(t)
	et := reg.EntityType(edm.NewFQN("Demo", "Product"))

	tests := []struct {
		name string
		body string
		key  string
	}{
		{"empty", "  ", api.KeyNullInput},
		{"syntax", `{"ID":`, api.KeyJSONSyntax},
		{"array", `[1]`, api.KeyUnknownContent},
		{"unknown property", `{"Weight": 1}`, api.KeyUnknownContent},
		{"null key", `{"ID": null}`, api.KeyInvalidNullProperty},
		{"wrong type", `{"Name": 1}`, api.KeyInvalidValueForProperty},
		{"bad enum", `{"Color": "Blue"}`, api.KeyInvalidValueForProperty},
		{"bad bind", `{"Nope@odata.bind": "Categories(1)"}`, api.KeyNavigationPropertyNotFound},
		{"collection not array", `{"Tags": "a"}`, api.KeyInvalidValueForProperty},
		{"unknown complex member", `{"Address": {"Zip": "1"}}`, api.KeyUnknownContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Entity([]byte(tt.body), et)
			wantKey(t, err, tt.key)
		})
	}
}

func TestDeserializeProperty(t *testing.T) {
	reg, d := demo(t)
	et := reg.EntityType(edm.NewFQN("Demo", "Product"))

	p, err := d.Property([]byte(`{"value":"Chai"}`), reg.Property(et, "Name"))
	if err != nil {
		t.Fatalf("Property: %v", err)
	}
	if p.Value != "Chai" {
		t.Errorf("Name = %#v", p.Value)
	}

	p, err = d.Property([]byte(`{"Street":"Elm"}`), reg.Property(et, "Address"))
	if err != nil {
		t.Fatalf("Property: %v", err)
	}
	if p.ValueType != api.ValueComplex {
		t.Errorf("Address value type = %v", p.ValueType)
	}

	_, err = d.Property([]byte(`{"other":1}`), reg.Property(et, "Name"))
	wantKey(t, err, api.KeyMissingValue)

	p, err = d.PrimitiveValue([]byte("42"), reg.Property(et, "ID"))
	if err != nil {
		t.Fatalf("PrimitiveValue: %v", err)
	}
	if p.Value != int64(42) {
		t.Errorf("ID = %#v", p.Value)
	}
	_, err = d.PrimitiveValue([]byte("abc"), reg.Property(et, "ID"))
	wantKey(t, err, api.KeyInvalidValueForProperty)
}

func TestDeserializeReferences(t *testing.T) {
	_, d := demo(t)
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"single", `{"@odata.id":"Categories(1)"}`, []string{"Categories(1)"}},
		{"collection", `{"value":[{"@odata.id":"Products(1)"},{"@odata.id":"Products(2)"}]}`, []string{"Products(1)", "Products(2)"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := d.References([]byte(tt.body))
			if err != nil {
				t.Fatalf("References: %v", err)
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Errorf("ids[%d] = %q, want %q", i, ids[i], tt.want[i])
				}
			}
		})
	}
	_, err := d.References([]byte(`{}`))
	wantKey(t, err, api.KeyMissingValue)
}

func TestDeserializeParameters(t *testing.T) {
	reg, d := demo(t)
	discount := reg.BoundAction(edm.NewFQN("Demo", "Discount"), "Demo.Product")
	if discount == nil {
		t.Fatal("Discount action not found")
	}
	params, err := d.Parameters([]byte(`{"percentage": 10}`), discount.Parameters[1:])
	if err != nil {
		t.Fatalf("Parameters: %v", err)
	}
	if len(params) != 1 || params[0].Name != "percentage" || params[0].Property.Value != int64(10) {
		t.Errorf("params = %+v", params)
	}

	notNull := false
	declared := []*edm.Parameter{{Name: "count", Type: edm.TypeInt32, Nullable: &notNull}}
	_, err = d.Parameters([]byte(`{}`), declared)
	wantKey(t, err, api.KeyMissingValue)

	params, err = d.Parameters(nil, nil)
	if err != nil || params != nil {
		t.Errorf("no declared parameters: params = %v, err = %v", params, err)
	}
}

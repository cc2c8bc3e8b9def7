package metadata_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rhuss/odin/pkg/edm"
	"github.com/rhuss/odin/pkg/metadata"
	"github.com/rhuss/odin/pkg/metadata/metadatatest"
)

func TestSchemaResolutionOrder(t *testing.T) {
	own := &edm.Schema{Namespace: "Own"}
	refShared := &edm.Schema{Namespace: "Shared", EntityTypes: []*edm.EntityType{{Name: "FromRef"}}}
	vocShared := &edm.Schema{Namespace: "Shared", EntityTypes: []*edm.EntityType{{Name: "FromVocab"}}}
	vocOnly := &edm.Schema{Namespace: "Core"}

	ref := metadata.New(refShared)
	r := metadata.New(own)
	r.AddReference("shared.yaml", ref, edm.AliasInfo{Namespace: "Shared"})
	r.AddVocabulary(vocShared)
	r.AddVocabulary(vocOnly)

	tests := []struct {
		ns   string
		want *edm.Schema
	}{
		{"Own", own},
		{"Shared", refShared},
		{"Core", vocOnly},
		{"Missing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.ns, func(t *testing.T) {
			if got := r.Schema(tt.ns); got != tt.want {
				t.Errorf("Schema(%q) = %v, want %v", tt.ns, got, tt.want)
			}
		})
	}
}

func TestSchemaReferenceCycle(t *testing.T) {
	x := &edm.Schema{Namespace: "X"}
	y := &edm.Schema{Namespace: "Y"}
	a := metadata.New(x)
	b := metadata.New(y)
	a.AddReference("b", b)
	b.AddReference("a", a)

	if got := a.Schema("Y"); got != y {
		t.Errorf("a.Schema(Y) = %v, want %v", got, y)
	}
	if got := b.Schema("X"); got != x {
		t.Errorf("b.Schema(X) = %v, want %v", got, x)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if got := a.Schema("Z"); got != nil {
			t.Errorf("a.Schema(Z) = %v, want nil", got)
		}
	}()
	<-done
}

func TestSchemaSelfReference(t *testing.T) {
	r := metadata.New(&edm.Schema{Namespace: "X"})
	r.AddReference("self", r)
	if r.Schema("Nope") != nil {
		t.Error("expected nil for unknown namespace")
	}
}

func TestReferencedAnnexResolves(t *testing.T) {
	inner := metadata.New()
	inner.AddVocabulary(&edm.Schema{Namespace: "Deep"})
	outer := metadata.New()
	outer.AddReference("inner", inner)

	// A referenced registry's annexes are still consulted when resolving
	// through that registry.
	if outer.Schema("Deep") == nil {
		t.Error("annex of referenced registry should resolve through the reference")
	}
	r := metadata.New()
	r.AddVocabulary(&edm.Schema{Namespace: "Top"})
	if r.Schema("Top") == nil {
		t.Error("direct annex not found")
	}
}

func TestAliasesConcatenated(t *testing.T) {
	r := metadata.New(&edm.Schema{Namespace: "Own", Alias: "O"})
	r.AddReference("ref", metadata.New(), edm.AliasInfo{Namespace: "Ref", Alias: "R"}, edm.AliasInfo{Namespace: "NoAlias"})
	r.AddVocabulary(&edm.Schema{Namespace: "Org.OData.Core.V1", Alias: "Core"})
	r.AddVocabulary(&edm.Schema{Namespace: "Own", Alias: "O"})

	got := r.Aliases()
	want := []edm.AliasInfo{
		{Namespace: "Own", Alias: "O"},
		{Namespace: "Ref", Alias: "R"},
		{Namespace: "Org.OData.Core.V1", Alias: "Core"},
		{Namespace: "Own", Alias: "O"},
	}
	if len(got) != len(want) {
		t.Fatalf("Aliases() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Aliases()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestTypedLookups(t *testing.T) {
	r := metadatatest.Registry()

	if et := r.EntityType(edm.NewFQN("Demo", "Product")); et == nil {
		t.Error("EntityType(Demo.Product) = nil")
	}
	if et := r.EntityType(edm.NewFQN("D", "Product")); et == nil {
		t.Error("EntityType via alias D = nil")
	}
	if et := r.EntityType(edm.NewFQN("Demo", "Nope")); et != nil {
		t.Error("EntityType(Demo.Nope) should be nil")
	}
	if ct := r.ComplexType(edm.NewFQN("Demo", "Address")); ct == nil {
		t.Error("ComplexType(Demo.Address) = nil")
	}
	if en := r.EnumType(edm.NewFQN("Demo", "Color")); en == nil {
		t.Error("EnumType(Demo.Color) = nil")
	}
	if set := r.EntitySet("Products"); set == nil || set.EntityType != "Demo.Product" {
		t.Errorf("EntitySet(Products) = %+v", set)
	}
	if r.Singleton("Company") == nil {
		t.Error("Singleton(Company) = nil")
	}
	if r.ActionImport("ResetData") == nil || r.FunctionImport("TopProducts") == nil {
		t.Error("imports not found")
	}
	if got := r.ContainerName(); got != edm.NewFQN("Demo", "Container") {
		t.Errorf("ContainerName() = %v", got)
	}
}

func TestOperationOverloads(t *testing.T) {
	r := metadatatest.Registry()

	if a := r.UnboundAction(edm.NewFQN("Demo", "ResetData")); a == nil {
		t.Error("UnboundAction(ResetData) = nil")
	}
	if a := r.BoundAction(edm.NewFQN("Demo", "Discount"), "D.Product"); a == nil {
		t.Error("BoundAction(Discount, D.Product) = nil")
	}
	if a := r.BoundAction(edm.NewFQN("Demo", "Discount"), "Collection(Demo.Product)"); a != nil {
		t.Error("Discount is not bound to a collection")
	}
	if f := r.UnboundFunction(edm.NewFQN("Demo", "TopProducts"), []string{"count"}); f == nil {
		t.Error("UnboundFunction(TopProducts, count) = nil")
	}
	if f := r.UnboundFunction(edm.NewFQN("Demo", "TopProducts"), []string{}); f != nil {
		t.Error("TopProducts without parameters should not match")
	}
	if f := r.BoundFunction(edm.NewFQN("Demo", "MostExpensive"), "Collection(Demo.Product)", []string{}); f == nil {
		t.Error("BoundFunction(MostExpensive) = nil")
	}
}

func TestInheritance(t *testing.T) {
	base := &edm.EntityType{
		Name:       "Base",
		HasStream:  true,
		Key:        []edm.PropertyRef{{Name: "ID"}},
		Properties: []*edm.Property{{Name: "ID", Type: edm.TypeInt32}},
	}
	derived := &edm.EntityType{
		Name:       "Derived",
		BaseType:   "NS.Base",
		Properties: []*edm.Property{{Name: "Extra", Type: edm.TypeString}},
	}
	r := metadata.New(&edm.Schema{Namespace: "NS", EntityTypes: []*edm.EntityType{base, derived}})

	if r.Property(derived, "ID") == nil {
		t.Error("inherited property not found")
	}
	if got := len(r.Properties(derived)); got != 2 {
		t.Errorf("len(Properties) = %d, want 2", got)
	}
	if r.Properties(derived)[0].Name != "ID" {
		t.Error("base properties should come first")
	}
	if keys := r.KeyProperties(derived); len(keys) != 1 || keys[0].Name != "ID" {
		t.Errorf("KeyProperties = %v", keys)
	}
	if !r.HasStream(derived) {
		t.Error("HasStream should be inherited")
	}
	if !r.IsDerivedFrom(derived, base) || r.IsDerivedFrom(base, derived) {
		t.Error("IsDerivedFrom wrong")
	}
}

func TestInheritanceCycleTerminates(t *testing.T) {
	a := &edm.EntityType{Name: "A", BaseType: "NS.B"}
	b := &edm.EntityType{Name: "B", BaseType: "NS.A"}
	r := metadata.New(&edm.Schema{Namespace: "NS", EntityTypes: []*edm.EntityType{a, b}})
	if r.Property(a, "X") != nil {
		t.Error("expected nil")
	}
}

func TestNavigationTarget(t *testing.T) {
	r := metadatatest.Registry()
	products := r.EntitySet("Products")
	if got := r.NavigationTarget(products, "Category"); got == nil || got.Name != "Categories" {
		t.Errorf("NavigationTarget(Category) = %+v", got)
	}
	if got := r.NavigationTarget(products, "Nope"); got != nil {
		t.Errorf("NavigationTarget(Nope) = %+v, want nil", got)
	}
}

func TestValidate(t *testing.T) {
	if err := metadatatest.Registry().Validate(); err != nil {
		t.Fatalf("demo registry invalid: %v", err)
	}

	bad := metadata.New(&edm.Schema{
		Namespace: "NS",
		EntityTypes: []*edm.EntityType{
			{Name: "NoKey"},
			{Name: "BadKey", Key: []edm.PropertyRef{{Name: "Missing"}}},
		},
		EntityContainer: &edm.EntityContainer{
			Name:       "C",
			EntitySets: []*edm.EntitySet{{Name: "Things", EntityType: "NS.Unknown"}},
		},
	})
	err := bad.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"NoKey: no key", "key property \"Missing\"", "unknown entity type"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestLoadWithReferenceCycle(t *testing.T) {
	dir := t.TempDir()
	main := `
schemas:
  - namespace: Main
    entity_types:
      - name: Item
        key: [{name: ID}]
        properties:
          - {name: ID, type: Edm.Int32}
          - {name: Shared, type: Common.Info}
    entity_container:
      name: Container
      entity_sets:
        - {name: Items, entity_type: Main.Item}
references:
  - uri: common.yaml
    includes:
      - {namespace: Common, alias: C}
vocabularies:
  - namespace: Org.OData.Core.V1
    alias: Core
    terms:
      - {name: Description, type: Edm.String}
`
	common := `
schemas:
  - namespace: Common
    complex_types:
      - name: Info
        properties:
          - {name: Text, type: Edm.String}
references:
  - uri: main.yaml
`
	writeFile(t, filepath.Join(dir, "main.yaml"), main)
	writeFile(t, filepath.Join(dir, "common.yaml"), common)

	r, err := metadata.Load(filepath.Join(dir, "main.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.ComplexType(edm.NewFQN("C", "Info")) == nil {
		t.Error("referenced complex type not found via alias")
	}
	if r.Term(edm.NewFQN("Core", "Description")) == nil {
		t.Error("vocabulary term not found")
	}
	if r.EntitySet("Items") == nil {
		t.Error("entity set not found")
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := metadata.Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(dir, "broken.yaml")
	writeFile(t, path, "schemas: [")
	if _, err := metadata.Load(path); err == nil {
		t.Error("expected parse error")
	}
	if _, err := metadata.Parse([]byte("references: [{uri: x.yaml}]")); err == nil {
		t.Error("Parse should reject references")
	}
}

func TestSnapshot(t *testing.T) {
	first := metadatatest.Registry()
	s := metadata.NewSnapshot(first)
	if s.Load() != first || s.Version() != 1 {
		t.Fatalf("Load() = %p version %d", s.Load(), s.Version())
	}

	second := metadatatest.Registry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r := s.Load(); r != first && r != second {
				t.Error("observed unpublished registry")
			}
		}()
	}
	s.Store(second)
	wg.Wait()

	if s.Load() != second || s.Version() != 2 {
		t.Errorf("after Store: version %d", s.Version())
	}

	err := s.Reload(func() (*metadata.Registry, error) {
		return nil, os.ErrNotExist
	})
	if err == nil || s.Load() != second {
		t.Error("failed reload should keep previous registry")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

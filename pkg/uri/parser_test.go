package uri

import (
	"errors"
	"testing"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/metadata/metadatatest"
)

func TestParseResourcePaths(t *testing.T) {
	reg := metadatatest.Registry()
	p := NewParser()

	tests := []struct {
		name       string
		path       string
		query      string
		kind       InfoKind
		segments   []SegmentKind
		collection bool
	}{
		{name: "service document", path: "/", kind: InfoService},
		{name: "empty path", path: "", kind: InfoService},
		{name: "metadata", path: "/$metadata", kind: InfoMetadata},
		{name: "batch", path: "/$batch", kind: InfoBatch},
		{name: "entity id", path: "/$entity", query: "$id=Products(1)", kind: InfoEntityID},
		{name: "all", path: "/$all", kind: InfoAll, segments: []SegmentKind{SegmentAll}, collection: true},
		{name: "crossjoin", path: "/$crossjoin(Products,Categories)", kind: InfoCrossJoin,
			segments: []SegmentKind{SegmentCrossJoin}, collection: true},
		{name: "entity set", path: "/Products", segments: []SegmentKind{SegmentEntitySet}, collection: true},
		{name: "entity by key", path: "/Products(1)", segments: []SegmentKind{SegmentEntitySet}},
		{name: "named key", path: "/Products(ID=1)", segments: []SegmentKind{SegmentEntitySet}},
		{name: "key alias", path: "/Products(@k)", query: "@k=3", segments: []SegmentKind{SegmentEntitySet}},
		{name: "count", path: "/Products/$count", segments: []SegmentKind{SegmentEntitySet, SegmentCount}},
		{name: "single navigation", path: "/Products(1)/Category",
			segments: []SegmentKind{SegmentEntitySet, SegmentNavigation}},
		{name: "collection navigation", path: "/Categories(1)/Products",
			segments: []SegmentKind{SegmentEntitySet, SegmentNavigation}, collection: true},
		{name: "navigation with key", path: "/Categories(1)/Products(2)",
			segments: []SegmentKind{SegmentEntitySet, SegmentNavigation}},
		{name: "primitive property", path: "/Products(1)/Name",
			segments: []SegmentKind{SegmentEntitySet, SegmentPrimitiveProperty}},
		{name: "primitive value", path: "/Products(1)/Name/$value",
			segments: []SegmentKind{SegmentEntitySet, SegmentPrimitiveProperty, SegmentValue}},
		{name: "enum property", path: "/Products(1)/Color",
			segments: []SegmentKind{SegmentEntitySet, SegmentPrimitiveProperty}},
		{name: "primitive collection", path: "/Products(1)/Tags",
			segments: []SegmentKind{SegmentEntitySet, SegmentPrimitiveProperty}, collection: true},
		{name: "complex property", path: "/Products(1)/Address",
			segments: []SegmentKind{SegmentEntitySet, SegmentComplexProperty}},
		{name: "complex member", path: "/Products(1)/Address/City",
			segments: []SegmentKind{SegmentEntitySet, SegmentComplexProperty, SegmentPrimitiveProperty}},
		{name: "media value", path: "/Photos(1)/$value",
			segments: []SegmentKind{SegmentEntitySet, SegmentValue}},
		{name: "stream property", path: "/Products(1)/Manual",
			segments: []SegmentKind{SegmentEntitySet, SegmentPrimitiveProperty}},
		{name: "reference", path: "/Products(1)/Category/$ref",
			segments: []SegmentKind{SegmentEntitySet, SegmentNavigation, SegmentRef}},
		{name: "reference collection", path: "/Categories(1)/Products/$ref",
			segments: []SegmentKind{SegmentEntitySet, SegmentNavigation, SegmentRef}},
		{name: "singleton", path: "/Company", segments: []SegmentKind{SegmentSingleton}},
		{name: "singleton property", path: "/Company/Name",
			segments: []SegmentKind{SegmentSingleton, SegmentPrimitiveProperty}},
		{name: "action import", path: "/ResetData", segments: []SegmentKind{SegmentAction}},
		{name: "function import", path: "/TopProducts(count=3)",
			segments: []SegmentKind{SegmentFunction}, collection: true},
		{name: "function import with key", path: "/TopProducts(count=3)(1)",
			segments: []SegmentKind{SegmentFunction}},
		{name: "bound action", path: "/Products(1)/Demo.Discount",
			segments: []SegmentKind{SegmentEntitySet, SegmentAction}},
		{name: "bound action via alias", path: "/Products(1)/D.Discount",
			segments: []SegmentKind{SegmentEntitySet, SegmentAction}},
		{name: "bound function", path: "/Products/Demo.MostExpensive()",
			segments: []SegmentKind{SegmentEntitySet, SegmentFunction}},
		{name: "type cast", path: "/Products/Demo.Product",
			segments: []SegmentKind{SegmentEntitySet, SegmentTypeCast}, collection: true},
		{name: "escaped segment", path: "/Products%281%29", segments: []SegmentKind{SegmentEntitySet}},
		{name: "filter with quoted comma", path: "/Products(1)/Name", query: "$filter=Name%20eq%20'a,b'",
			segments: []SegmentKind{SegmentEntitySet, SegmentPrimitiveProperty}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := p.Parse(tt.path, tt.query, reg)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.path, err)
			}
			if info.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", info.Kind, tt.kind)
			}
			if len(info.Segments) != len(tt.segments) {
				t.Fatalf("got %d segments, want %d", len(info.Segments), len(tt.segments))
			}
			for i, seg := range info.Segments {
				if seg.Kind != tt.segments[i] {
					t.Errorf("segment %d kind = %v, want %v", i, seg.Kind, tt.segments[i])
				}
			}
			if last := info.Last(); last != nil && last.Kind != SegmentCount && last.Kind != SegmentValue &&
				last.Kind != SegmentRef && last.Collection != tt.collection {
				t.Errorf("last segment collection = %v, want %v", last.Collection, tt.collection)
			}
			if info.Registry != reg {
				t.Error("Registry not recorded")
			}
		})
	}
}

func TestParseKeysAndParameters(t *testing.T) {
	reg := metadatatest.Registry()
	p := NewParser()

	info, err := p.Parse("/Products(ID=42)", "", reg)
	if err != nil {
		t.Fatal(err)
	}
	keys := info.First().Keys
	if len(keys) != 1 || keys[0].Name != "ID" || keys[0].Value != int64(42) {
		t.Errorf("keys = %+v", keys)
	}

	info, err = p.Parse("/Products(@id)", "@id=7", reg)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.First().Keys[0]; got.Raw != "7" || got.Value != int64(7) {
		t.Errorf("alias key = %+v", got)
	}

	info, err = p.Parse("/TopProducts(count=5)", "", reg)
	if err != nil {
		t.Fatal(err)
	}
	seg := info.First()
	if len(seg.Parameters) != 1 || seg.Parameters[0].Value != int64(5) {
		t.Errorf("parameters = %+v", seg.Parameters)
	}
	if seg.TargetSet == nil || seg.TargetSet.Name != "Products" {
		t.Errorf("function import target set = %v", seg.TargetSet)
	}
	if seg.EntityType == nil || seg.EntityType.Name != "Product" {
		t.Errorf("function result type = %v", seg.EntityType)
	}
}

func TestParseNavigationTarget(t *testing.T) {
	reg := metadatatest.Registry()
	info, err := NewParser().Parse("/Products(1)/Category", "", reg)
	if err != nil {
		t.Fatal(err)
	}
	last := info.Last()
	if last.TargetSet == nil || last.TargetSet.Name != "Categories" {
		t.Errorf("target set = %v, want Categories", last.TargetSet)
	}
	if last.EntityType == nil || last.EntityType.Name != "Category" {
		t.Errorf("entity type = %v", last.EntityType)
	}
}

func TestParseErrors(t *testing.T) {
	reg := metadatatest.Registry()
	p := NewParser()

	tests := []struct {
		name   string
		path   string
		query  string
		kind   api.ErrorKind
		key    string
		status int
	}{
		{"unknown set", "/Nope", "", api.ErrorKindURISemantic, api.KeyResourceNotFound, 404},
		{"unknown property", "/Products(1)/Nope", "", api.ErrorKindURISemantic, api.KeyResourceNotFound, 404},
		{"unknown dollar segment", "/$nope", "", api.ErrorKindURISemantic, api.KeyResourceNotFound, 404},
		{"metadata not last", "/$metadata/x", "", api.ErrorKindURISyntax, api.KeyMustBeLastSegment, 400},
		{"batch not last", "/$batch/x", "", api.ErrorKindURISyntax, api.KeyMustBeLastSegment, 400},
		{"count not last", "/Products/$count/x", "", api.ErrorKindURISyntax, api.KeyMustBeLastSegment, 400},
		{"entity without id", "/$entity", "", api.ErrorKindURISyntax, api.KeyMissingIDOption, 400},
		{"count on single", "/Products(1)/$count", "", api.ErrorKindURISemantic, api.KeyOnlyForCollections, 400},
		{"property after collection", "/Products/Name", "", api.ErrorKindURISemantic, api.KeyPreviousPartNotSingle, 400},
		{"too many keys", "/Products(1,2)", "", api.ErrorKindURISemantic, api.KeyWrongNumberOfKeys, 400},
		{"wrong key name", "/Products(Name=1)", "", api.ErrorKindURISemantic, api.KeyWrongNumberOfKeys, 400},
		{"invalid key value", "/Products('abc')", "", api.ErrorKindURISemantic, api.KeyInvalidKeyValue, 400},
		{"null key", "/Products(null)", "", api.ErrorKindURISemantic, api.KeyInvalidKeyValue, 400},
		{"key on singleton", "/Company(1)", "", api.ErrorKindURISemantic, api.KeyKeyNotAllowed, 400},
		{"key on single navigation", "/Products(1)/Category(1)", "", api.ErrorKindURISemantic, api.KeyKeyNotAllowed, 400},
		{"value on complex", "/Products(1)/Address/$value", "", api.ErrorKindURISemantic, api.KeyOnlyForTypedParts, 400},
		{"value on collection", "/Products/$value", "", api.ErrorKindURISemantic, api.KeyOnlyForTypedParts, 400},
		{"ref on property", "/Products(1)/Name/$ref", "", api.ErrorKindURISemantic, api.KeyOnlyForTypedParts, 400},
		{"unbalanced key", "/Products(1", "", api.ErrorKindURISyntax, api.KeySyntax, 400},
		{"action import with parens", "/ResetData()", "", api.ErrorKindURISyntax, api.KeySyntax, 400},
		{"function import without parens", "/TopProducts", "", api.ErrorKindURISyntax, api.KeySyntax, 400},
		{"function overload mismatch", "/TopProducts(top=3)", "", api.ErrorKindURISemantic, api.KeyResourceNotFound, 404},
		{"unbound operation on entity", "/Products(1)/Demo.Nope", "", api.ErrorKindURISemantic, api.KeyResourceNotFound, 404},
		{"crossjoin unknown set", "/$crossjoin(Products,Nope)", "", api.ErrorKindURISemantic, api.KeyResourceNotFound, 404},
		{"action not last", "/ResetData/x", "", api.ErrorKindURISyntax, api.KeyMustBeLastSegment, 400},
		{"select unknown", "/Products", "$select=Nope", api.ErrorKindURISemantic, api.KeyPropertyNotFound, 400},
		{"expand non navigation", "/Products", "$expand=Name", api.ErrorKindURISemantic, api.KeyPropertyNotFound, 400},
		{"bad top", "/Products", "$top=-1", api.ErrorKindURISyntax, api.KeyWrongValueForQueryOption, 400},
		{"bad filter", "/Products", "$filter=Name%20eq", api.ErrorKindURISyntax, api.KeySyntax, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(tt.path, tt.query, reg)
			if err == nil {
				t.Fatalf("Parse(%q, %q) succeeded, want error", tt.path, tt.query)
			}
			var apiErr *api.Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("error %T is not *api.Error: %v", err, err)
			}
			if apiErr.Kind != tt.kind || apiErr.Key != tt.key {
				t.Errorf("got %v/%s, want %v/%s (%v)", apiErr.Kind, apiErr.Key, tt.kind, tt.key, err)
			}
			if got := apiErr.StatusCode(); got != tt.status {
				t.Errorf("status = %d, want %d", got, tt.status)
			}
		})
	}
}

func TestParseSelectExpand(t *testing.T) {
	reg := metadatatest.Registry()
	info, err := NewParser().Parse("/Products", "$select=Name,Address/City,*&$expand=Category($select=Name),Related", reg)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Query.Select; len(got) != 3 {
		t.Errorf("Select = %v", got)
	}
	if got := info.Query.Expand; len(got) != 2 || got[0].Path != "Category" || got[0].Options != "$select=Name" {
		t.Errorf("Expand = %+v", got)
	}
}

func TestSplitSegment(t *testing.T) {
	tests := []struct {
		in     string
		name   string
		groups []string
	}{
		{"Products", "Products", nil},
		{"Products(1)", "Products", []string{"1"}},
		{"F(a=1)(2)", "F", []string{"a=1", "2"}},
		{"P('a(b')", "P", []string{"'a(b'"}},
		{"F(x=g(1))", "F", []string{"x=g(1)"}},
	}
	for _, tt := range tests {
		name, groups, err := splitSegment(tt.in)
		if err != nil {
			t.Errorf("splitSegment(%q): %v", tt.in, err)
			continue
		}
		if name != tt.name || len(groups) != len(tt.groups) {
			t.Errorf("splitSegment(%q) = %q %v", tt.in, name, groups)
			continue
		}
		for i := range groups {
			if groups[i] != tt.groups[i] {
				t.Errorf("splitSegment(%q) group %d = %q, want %q", tt.in, i, groups[i], tt.groups[i])
			}
		}
	}

	for _, bad := range []string{"(1)", "P(1", "P(1)x"} {
		if _, _, err := splitSegment(bad); err == nil {
			t.Errorf("splitSegment(%q) succeeded", bad)
		}
	}
}

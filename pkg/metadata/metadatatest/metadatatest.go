// Package metadatatest provides a small demo schema for tests.
package metadatatest

import (
	"github.com/rhuss/odin/pkg/metadata"
)

// DemoYAML is a schema document exercising entity sets, navigation,
// complex, enum and collection properties, a media entity, a singleton and
// bound and unbound operations.
const DemoYAML = `
schemas:
  - namespace: Demo
    alias: D
    complex_types:
      - name: Address
        properties:
          - {name: Street, type: Edm.String}
          - {name: City, type: Edm.String}
    enum_types:
      - name: Color
        members:
          - {name: Red, value: 1}
          - {name: Green, value: 2}
    entity_types:
      - name: Category
        key: [{name: ID}]
        properties:
          - {name: ID, type: Edm.Int32, nullable: false}
          - {name: Name, type: Edm.String}
        navigation_properties:
          - {name: Products, type: Collection(Demo.Product), partner: Category}
      - name: Product
        key: [{name: ID}]
        properties:
          - {name: ID, type: Edm.Int32, nullable: false}
          - {name: Name, type: Edm.String}
          - {name: Price, type: Edm.Decimal}
          - {name: Tags, type: Collection(Edm.String)}
          - {name: Address, type: Demo.Address}
          - {name: Color, type: Demo.Color}
          - {name: Manual, type: Edm.Stream}
        navigation_properties:
          - {name: Category, type: Demo.Category, partner: Products}
          - {name: Related, type: Collection(Demo.Product)}
      - name: Photo
        has_stream: true
        key: [{name: ID}]
        properties:
          - {name: ID, type: Edm.Int32, nullable: false}
          - {name: Title, type: Edm.String}
      - name: Company
        key: [{name: ID}]
        properties:
          - {name: ID, type: Edm.Int32, nullable: false}
          - {name: Name, type: Edm.String}
    actions:
      - name: ResetData
      - name: Discount
        is_bound: true
        parameters:
          - {name: product, type: Demo.Product}
          - {name: percentage, type: Edm.Int32}
        return_type: {type: Demo.Product}
    functions:
      - name: TopProducts
        parameters:
          - {name: count, type: Edm.Int32}
        return_type: {type: Collection(Demo.Product)}
      - name: MostExpensive
        is_bound: true
        parameters:
          - {name: products, type: Collection(Demo.Product)}
        return_type: {type: Demo.Product}
    entity_container:
      name: Container
      entity_sets:
        - name: Products
          entity_type: Demo.Product
          navigation_bindings:
            - {path: Category, target: Categories}
            - {path: Related, target: Products}
        - name: Categories
          entity_type: Demo.Category
          navigation_bindings:
            - {path: Products, target: Products}
        - name: Photos
          entity_type: Demo.Photo
      singletons:
        - name: Company
          type: Demo.Company
      action_imports:
        - {name: ResetData, action: Demo.ResetData}
      function_imports:
        - {name: TopProducts, function: Demo.TopProducts, entity_set: Products, include_in_service_document: true}
`

// Registry returns a freshly parsed demo registry. It panics if the demo
// document is invalid.
func Registry() *metadata.Registry {
	r, err := metadata.Parse([]byte(DemoYAML))
	if err != nil {
		panic(err)
	}
	if err := r.Validate(); err != nil {
		panic(err)
	}
	return r
}

// Snapshot returns a snapshot publishing the demo registry.
func Snapshot() *metadata.Snapshot {
	return metadata.NewSnapshot(Registry())
}

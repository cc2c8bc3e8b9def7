package metadata

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rhuss/odin/pkg/debug"
	"github.com/rhuss/odin/pkg/edm"
)

// Document is the YAML form of a schema document.
//
//	schemas:
//	  - namespace: Demo
//	    alias: D
//	    entity_types: [...]
//	    entity_container: {...}
//	references:
//	  - uri: common.yaml
//	    includes:
//	      - namespace: Common
//	        alias: C
//	vocabularies:
//	  - namespace: Org.OData.Core.V1
//	    alias: Core
//	    terms: [...]
type Document struct {
	Schemas      []*edm.Schema  `yaml:"schemas"`
	References   []ReferenceDoc `yaml:"references,omitempty"`
	Vocabularies []*edm.Schema  `yaml:"vocabularies,omitempty"`
}

// ReferenceDoc points at another schema document. A relative URI is
// resolved against the directory of the referencing document.
type ReferenceDoc struct {
	URI      string       `yaml:"uri"`
	Includes []IncludeDoc `yaml:"includes,omitempty"`
}

// IncludeDoc names a namespace a reference contributes.
type IncludeDoc struct {
	Namespace string `yaml:"namespace"`
	Alias     string `yaml:"alias,omitempty"`
}

// Load reads the schema document at path together with every document it
// references and validates the result. Reference cycles resolve to the
// registry already being assembled.
func Load(path string) (*Registry, error) {
	l := &loader{loaded: make(map[string]*Registry)}
	r, err := l.load(path)
	if err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}
	return r, nil
}

// Parse assembles a registry from a single document without references.
func Parse(data []byte) (*Registry, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing schema document: %w", err)
	}
	if len(doc.References) > 0 {
		return nil, fmt.Errorf("schema document has references; use Load")
	}
	r := New(doc.Schemas...)
	for _, v := range doc.Vocabularies {
		r.AddVocabulary(v)
	}
	return r, nil
}

type loader struct {
	loaded map[string]*Registry
}

func (l *loader) load(path string) (*Registry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	if r, ok := l.loaded[abs]; ok {
		debug.Log(debug.Metadata, "schema document already loaded", "path", abs)
		return r, nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("reading schema document: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", abs, err)
	}

	r := New(doc.Schemas...)
	// Registered before references are followed so cycles find it.
	l.loaded[abs] = r

	for _, v := range doc.Vocabularies {
		r.AddVocabulary(v)
	}
	for _, ref := range doc.References {
		if ref.URI == "" {
			return nil, fmt.Errorf("%s: reference without uri", abs)
		}
		target := ref.URI
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(abs), target)
		}
		refReg, err := l.load(target)
		if err != nil {
			return nil, fmt.Errorf("%s: reference %s: %w", abs, ref.URI, err)
		}
		includes := make([]edm.AliasInfo, 0, len(ref.Includes))
		for _, inc := range ref.Includes {
			includes = append(includes, edm.AliasInfo{Namespace: inc.Namespace, Alias: inc.Alias})
		}
		r.AddReference(ref.URI, refReg, includes...)
	}

	debug.Log(debug.Metadata, "schema document loaded",
		"path", abs, "schemas", len(doc.Schemas), "references", len(doc.References), "vocabularies", len(doc.Vocabularies))
	return r, nil
}

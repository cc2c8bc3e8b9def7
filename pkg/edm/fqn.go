package edm

import (
	"fmt"
	"strings"
)

// FullQualifiedName is a namespace-qualified schema element name. The
// namespace may be an alias until it has been resolved by a registry.
type FullQualifiedName struct {
	Namespace string
	Name      string
}

// NewFQN returns the qualified name namespace.name.
func NewFQN(namespace, name string) FullQualifiedName {
	return FullQualifiedName{Namespace: namespace, Name: name}
}

// ParseFQN splits s at its last dot. Namespaces may contain dots, names
// may not.
func ParseFQN(s string) (FullQualifiedName, error) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return FullQualifiedName{}, fmt.Errorf("invalid qualified name %q", s)
	}
	return FullQualifiedName{Namespace: s[:i], Name: s[i+1:]}, nil
}

// MustParseFQN is like ParseFQN but panics on malformed input.
func MustParseFQN(s string) FullQualifiedName {
	fqn, err := ParseFQN(s)
	if err != nil {
		panic(err)
	}
	return fqn
}

func (f FullQualifiedName) String() string {
	if f.Namespace == "" {
		return f.Name
	}
	return f.Namespace + "." + f.Name
}

// IsZero reports whether f is the zero name.
func (f FullQualifiedName) IsZero() bool {
	return f.Namespace == "" && f.Name == ""
}

// CollectionOf wraps a type name in Collection(...).
func CollectionOf(typeName string) string {
	return "Collection(" + typeName + ")"
}

// ElementType strips a Collection(...) wrapper and reports whether one was
// present.
func ElementType(typeName string) (string, bool) {
	if strings.HasPrefix(typeName, "Collection(") && strings.HasSuffix(typeName, ")") {
		return typeName[len("Collection(") : len(typeName)-1], true
	}
	return typeName, false
}

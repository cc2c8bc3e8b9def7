package edm

import "strings"

// Target identifies a container member, typically a navigation binding
// target. A target written "NS.Container/Name" names its container
// explicitly; a bare "Name" belongs to the default container.
type Target struct {
	Container FullQualifiedName
	Name      string
}

// ParseTarget parses a binding target.
func ParseTarget(s string, defaultContainer FullQualifiedName) Target {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		if fqn, err := ParseFQN(s[:i]); err == nil {
			return Target{Container: fqn, Name: s[i+1:]}
		}
		return Target{Container: defaultContainer, Name: s[i+1:]}
	}
	return Target{Container: defaultContainer, Name: s}
}

func (t Target) String() string {
	if t.Container.IsZero() {
		return t.Name
	}
	return t.Container.String() + "/" + t.Name
}

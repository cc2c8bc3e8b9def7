package metadata

import (
	"errors"
	"fmt"

	"github.com/rhuss/odin/pkg/edm"
)

// Validate checks that the registry's own schemas are internally
// consistent: every entity set, singleton and import resolves, every
// entity type has a key made of declared properties, and navigation
// bindings point at existing container members.
func (r *Registry) Validate() error {
	var errs []error

	seen := make(map[string]bool)
	for _, s := range r.schemas {
		if s.Namespace == "" {
			errs = append(errs, errors.New("schema without namespace"))
			continue
		}
		if seen[s.Namespace] {
			errs = append(errs, fmt.Errorf("duplicate schema namespace %q", s.Namespace))
		}
		seen[s.Namespace] = true

		for _, et := range s.EntityTypes {
			errs = append(errs, r.validateEntityType(s.Namespace, et)...)
		}
	}

	c := r.EntityContainer()
	if c == nil {
		errs = append(errs, errors.New("no entity container declared"))
		return errors.Join(errs...)
	}
	for _, set := range c.EntitySets {
		if r.EntitySetType(set) == nil {
			errs = append(errs, fmt.Errorf("entity set %s: unknown entity type %q", set.Name, set.EntityType))
		}
		for _, b := range set.NavigationBindings {
			if !r.containerMember(b.Target) {
				errs = append(errs, fmt.Errorf("entity set %s: binding %s targets unknown %q", set.Name, b.Path, b.Target))
			}
		}
	}
	for _, sg := range c.Singletons {
		if r.SingletonType(sg) == nil {
			errs = append(errs, fmt.Errorf("singleton %s: unknown entity type %q", sg.Name, sg.Type))
		}
	}
	for _, ai := range c.ActionImports {
		fqn, err := edm.ParseFQN(ai.Action)
		if err != nil || r.UnboundAction(fqn) == nil {
			errs = append(errs, fmt.Errorf("action import %s: unknown unbound action %q", ai.Name, ai.Action))
		}
	}
	for _, fi := range c.FunctionImports {
		fqn, err := edm.ParseFQN(fi.Function)
		if err != nil || r.UnboundFunction(fqn, nil) == nil {
			errs = append(errs, fmt.Errorf("function import %s: unknown unbound function %q", fi.Name, fi.Function))
		}
	}

	return errors.Join(errs...)
}

func (r *Registry) validateEntityType(ns string, et *edm.EntityType) []error {
	var errs []error
	name := ns + "." + et.Name
	if et.BaseType != "" && r.entityTypeNamed(et.BaseType) == nil {
		errs = append(errs, fmt.Errorf("entity type %s: unknown base type %q", name, et.BaseType))
	}
	key := r.Key(et)
	if len(key) == 0 && !et.Abstract {
		errs = append(errs, fmt.Errorf("entity type %s: no key", name))
	}
	for _, ref := range key {
		p := r.Property(et, ref.Name)
		if p == nil {
			errs = append(errs, fmt.Errorf("entity type %s: key property %q not declared", name, ref.Name))
			continue
		}
		if !edm.IsPrimitive(p.Type) {
			errs = append(errs, fmt.Errorf("entity type %s: key property %q must be primitive", name, ref.Name))
		}
	}
	for _, n := range et.NavigationProperties {
		if r.entityTypeNamed(n.TargetType()) == nil {
			errs = append(errs, fmt.Errorf("entity type %s: navigation %s targets unknown type %q", name, n.Name, n.TargetType()))
		}
	}
	return errs
}

func (r *Registry) containerMember(target string) bool {
	t := edm.ParseTarget(target, r.ContainerName())
	if t.Container != r.ContainerName() {
		// Members of other containers are not checked.
		return true
	}
	return r.EntitySet(t.Name) != nil || r.Singleton(t.Name) != nil
}

package uri

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/edm"
	"github.com/rhuss/odin/pkg/metadata"
)

// DefaultParser resolves resource paths against the registry.
type DefaultParser struct{}

// NewParser returns the default URI parser.
func NewParser() *DefaultParser {
	return &DefaultParser{}
}

// state is what the segments parsed so far address.
type state struct {
	entityType  *edm.EntityType
	complexType *edm.ComplexType
	typeName    string
	collection  bool
	primitive   bool
	set         *edm.EntitySet
	terminal    bool
}

func (s state) bindingType() string {
	if s.collection {
		return edm.CollectionOf(s.typeName)
	}
	return s.typeName
}

// Parse implements Parser. rawPath is the escaped path relative to the
// service root.
func (p *DefaultParser) Parse(rawPath, rawQuery string, reg *metadata.Registry) (*Info, error) {
	query, err := ParseQuery(rawQuery)
	if err != nil {
		return nil, err
	}
	info := &Info{Query: query, Registry: reg}

	parts, err := splitPath(rawPath)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		info.Kind = InfoService
		return info, nil
	}

	first := parts[0]
	switch {
	case first == "$metadata":
		info.Kind = InfoMetadata
		return info, onlySegment(parts)
	case first == "$batch":
		info.Kind = InfoBatch
		return info, onlySegment(parts)
	case first == "$entity":
		info.Kind = InfoEntityID
		if query.ID == "" {
			return nil, api.NewURISyntaxError(api.KeyMissingIDOption, "$entity requires the $id query option")
		}
		return info, onlySegment(parts)
	case first == "$all":
		info.Kind = InfoAll
		info.Segments = []*Segment{{Kind: SegmentAll, Name: first, Collection: true}}
		return info, onlySegment(parts)
	case strings.HasPrefix(first, "$crossjoin"):
		return p.crossJoin(info, first, parts, reg)
	case first == "$root":
		info.Kind = InfoResource
		info.Segments = []*Segment{{Kind: SegmentRoot, Name: first}}
		return info, nil
	case first == "$it":
		info.Kind = InfoResource
		info.Segments = []*Segment{{Kind: SegmentIt, Name: first}}
		return info, nil
	case strings.HasPrefix(first, "$") && first != "$count":
		return nil, api.NewURISemanticError(api.KeyResourceNotFound, "unknown resource "+first)
	}

	info.Kind = InfoResource
	seg, st, err := p.firstSegment(first, reg, &info.Query)
	if err != nil {
		return nil, err
	}
	info.Segments = append(info.Segments, seg)

	for _, part := range parts[1:] {
		if st.terminal {
			return nil, api.NewURISyntaxError(api.KeyMustBeLastSegment, "segment "+info.Last().Name+" must be the last one")
		}
		seg, st, err = p.nextSegment(part, st, reg, &info.Query)
		if err != nil {
			return nil, err
		}
		info.Segments = append(info.Segments, seg)
	}

	if err := checkSelectExpand(&info.Query, st, info.Last(), reg); err != nil {
		return nil, err
	}
	return info, nil
}

func onlySegment(parts []string) error {
	if len(parts) > 1 {
		return api.NewURISyntaxError(api.KeyMustBeLastSegment, parts[0]+" must be the only segment")
	}
	return nil
}

func (p *DefaultParser) crossJoin(info *Info, first string, parts []string, reg *metadata.Registry) (*Info, error) {
	name, args, err := splitSegment(first)
	if err != nil {
		return nil, err
	}
	if name != "$crossjoin" || len(args) != 1 || args[0] == "" {
		return nil, api.NewURISyntaxError(api.KeySyntax, "$crossjoin requires a list of entity sets")
	}
	items, err := splitTopLevel(args[0])
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		set := reg.EntitySet(it)
		if set == nil {
			return nil, api.NewURISemanticError(api.KeyResourceNotFound, "unknown entity set "+it+" in $crossjoin")
		}
		info.CrossJoinSets = append(info.CrossJoinSets, set)
	}
	info.Kind = InfoCrossJoin
	info.Segments = []*Segment{{Kind: SegmentCrossJoin, Name: first, Collection: true}}
	return info, onlySegment(parts)
}

func (p *DefaultParser) firstSegment(text string, reg *metadata.Registry, q *QueryOptions) (*Segment, state, error) {
	name, args, err := splitSegment(text)
	if err != nil {
		return nil, state{}, err
	}

	if set := reg.EntitySet(name); set != nil {
		et := reg.EntitySetType(set)
		seg := &Segment{Kind: SegmentEntitySet, Name: name, EntitySet: set, EntityType: et,
			TypeName: set.EntityType, Collection: true, TargetSet: set}
		st := state{entityType: et, typeName: set.EntityType, collection: true, set: set}
		return applyKeys(seg, st, args, reg, q)
	}

	if sg := reg.Singleton(name); sg != nil {
		if len(args) > 0 {
			return nil, state{}, api.NewURISemanticError(api.KeyKeyNotAllowed, "singleton "+name+" does not take keys")
		}
		et := reg.SingletonType(sg)
		seg := &Segment{Kind: SegmentSingleton, Name: name, Singleton: sg, EntityType: et, TypeName: sg.Type}
		return seg, state{entityType: et, typeName: sg.Type}, nil
	}

	if ai := reg.ActionImport(name); ai != nil {
		if len(args) > 0 {
			return nil, state{}, api.NewURISyntaxError(api.KeySyntax, "action import "+name+" does not take parentheses")
		}
		fqn, err := edm.ParseFQN(ai.Action)
		if err != nil {
			return nil, state{}, api.NewURISemanticError(api.KeyResourceNotFound, "action import "+name+" has no action")
		}
		action := reg.UnboundAction(fqn)
		if action == nil {
			return nil, state{}, api.NewURISemanticError(api.KeyResourceNotFound, "unbound action "+ai.Action+" not found")
		}
		seg := &Segment{Kind: SegmentAction, Name: name, Action: action, ActionImport: ai}
		if action.ReturnType != nil {
			setResult(seg, action.ReturnType.Type, reg)
		}
		seg.TargetSet = reg.EntitySet(ai.EntitySet)
		return seg, state{terminal: true}, nil
	}

	if fi := reg.FunctionImport(name); fi != nil {
		if len(args) == 0 {
			return nil, state{}, api.NewURISyntaxError(api.KeySyntax, "function import "+name+" requires parentheses")
		}
		params, err := parseParameters(args[0])
		if err != nil {
			return nil, state{}, err
		}
		fqn, err := edm.ParseFQN(fi.Function)
		if err != nil {
			return nil, state{}, api.NewURISemanticError(api.KeyResourceNotFound, "function import "+name+" has no function")
		}
		fn := reg.UnboundFunction(fqn, parameterNames(params))
		if fn == nil {
			return nil, state{}, api.NewURISemanticError(api.KeyResourceNotFound, "no overload of "+fi.Function+" matches the given parameters")
		}
		if fn.ReturnType == nil {
			return nil, state{}, api.NewURISemanticError(api.KeyResourceNotFound, "function "+fi.Function+" has no return type")
		}
		if err := resolveParameters(params, fn.Parameters, q); err != nil {
			return nil, state{}, err
		}
		seg := &Segment{Kind: SegmentFunction, Name: name, Function: fn, FunctionImport: fi, Parameters: params}
		st := setResult(seg, fn.ReturnType.Type, reg)
		seg.TargetSet = reg.EntitySet(fi.EntitySet)
		st.set = seg.TargetSet
		return applyKeys(seg, st, args[1:], reg, q)
	}

	return nil, state{}, api.NewURISemanticError(api.KeyResourceNotFound,
		"no entity set, singleton or operation import named "+name)
}

func (p *DefaultParser) nextSegment(text string, st state, reg *metadata.Registry, q *QueryOptions) (*Segment, state, error) {
	switch text {
	case "$count":
		if !st.collection {
			return nil, state{}, api.NewURISemanticError(api.KeyOnlyForCollections, "$count is only allowed on collections")
		}
		return &Segment{Kind: SegmentCount, Name: text}, state{terminal: true}, nil
	case "$ref":
		if st.entityType == nil {
			return nil, state{}, api.NewURISemanticError(api.KeyOnlyForTypedParts, "$ref is only allowed on entities")
		}
		seg := &Segment{Kind: SegmentRef, Name: text, EntityType: st.entityType, TypeName: st.typeName,
			Collection: st.collection, TargetSet: st.set}
		return seg, state{terminal: true}, nil
	case "$value":
		if st.collection || (st.entityType == nil && !st.primitive) {
			return nil, state{}, api.NewURISemanticError(api.KeyOnlyForTypedParts,
				"$value is only allowed on single primitive properties and media entities")
		}
		seg := &Segment{Kind: SegmentValue, Name: text, EntityType: st.entityType, TypeName: st.typeName, TargetSet: st.set}
		return seg, state{terminal: true}, nil
	}
	if strings.HasPrefix(text, "$") {
		return nil, state{}, api.NewURISemanticError(api.KeyResourceNotFound, "unsupported segment "+text)
	}

	name, args, err := splitSegment(text)
	if err != nil {
		return nil, state{}, err
	}
	if strings.Contains(name, ".") {
		return p.qualifiedSegment(name, args, st, reg, q)
	}

	if st.entityType == nil && st.complexType == nil {
		return nil, state{}, api.NewURISemanticError(api.KeyResourceNotFound, "segment "+name+" does not address a structured value")
	}
	if st.collection {
		return nil, state{}, api.NewURISemanticError(api.KeyPreviousPartNotSingle,
			"segment "+name+" requires a single entity; add a key predicate")
	}

	if st.entityType != nil {
		if nav := reg.NavigationProperty(st.entityType, name); nav != nil {
			target := reg.EntityType(mustFQN(nav.TargetType()))
			seg := &Segment{Kind: SegmentNavigation, Name: name, Navigation: nav, EntityType: target,
				TypeName: nav.TargetType(), Collection: nav.IsCollection(), TargetSet: reg.NavigationTarget(st.set, name)}
			next := state{entityType: target, typeName: nav.TargetType(), collection: nav.IsCollection(), set: seg.TargetSet}
			return applyKeys(seg, next, args, reg, q)
		}
	}

	var prop *edm.Property
	if st.entityType != nil {
		prop = reg.Property(st.entityType, name)
	} else {
		prop = reg.ComplexProperty(st.complexType, name)
	}
	if prop == nil {
		return nil, state{}, api.NewURISemanticError(api.KeyResourceNotFound, "property "+name+" not found on "+st.typeName)
	}
	if len(args) > 0 {
		return nil, state{}, api.NewURISemanticError(api.KeyKeyNotAllowed, "property "+name+" does not take keys")
	}

	seg := &Segment{Name: name, Property: prop, TypeName: prop.Type, Collection: prop.IsCollection(), TargetSet: st.set}
	next := state{typeName: prop.ElementType(), collection: prop.IsCollection(), set: st.set}
	if ct := reg.ComplexType(mustFQN(prop.ElementType())); ct != nil && !prop.IsPrimitive() {
		seg.Kind = SegmentComplexProperty
		seg.ComplexType = ct
		next.complexType = ct
	} else {
		seg.Kind = SegmentPrimitiveProperty
		next.primitive = true
	}
	return seg, next, nil
}

func (p *DefaultParser) qualifiedSegment(name string, args []string, st state, reg *metadata.Registry, q *QueryOptions) (*Segment, state, error) {
	fqn, err := edm.ParseFQN(name)
	if err != nil {
		return nil, state{}, api.NewURISyntaxError(api.KeySyntax, err.Error())
	}

	// Type cast to a derived entity type.
	if st.entityType != nil {
		if cast := reg.EntityType(fqn); cast != nil {
			if !reg.IsDerivedFrom(cast, st.entityType) {
				return nil, state{}, api.NewURISemanticError(api.KeyResourceNotFound,
					name+" is not derived from "+st.typeName)
			}
			seg := &Segment{Kind: SegmentTypeCast, Name: name, EntityType: cast, TypeName: name,
				Collection: st.collection, TargetSet: st.set}
			next := st
			next.entityType, next.typeName = cast, name
			if st.collection {
				return applyKeys(seg, next, args, reg, q)
			}
			return seg, next, nil
		}
	}

	if action := reg.BoundAction(fqn, st.bindingType()); action != nil {
		if len(args) > 0 {
			return nil, state{}, api.NewURISyntaxError(api.KeySyntax, "bound action "+name+" does not take parentheses")
		}
		seg := &Segment{Kind: SegmentAction, Name: name, Action: action, TargetSet: st.set}
		if action.ReturnType != nil {
			setResult(seg, action.ReturnType.Type, reg)
		}
		return seg, state{terminal: true}, nil
	}

	var params []Parameter
	if len(args) > 0 {
		if params, err = parseParameters(args[0]); err != nil {
			return nil, state{}, err
		}
	}
	if fn := reg.BoundFunction(fqn, st.bindingType(), parameterNames(params)); fn != nil && fn.ReturnType != nil {
		if err := resolveParameters(params, fn.Parameters[1:], q); err != nil {
			return nil, state{}, err
		}
		seg := &Segment{Kind: SegmentFunction, Name: name, Function: fn, Parameters: params}
		next := setResult(seg, fn.ReturnType.Type, reg)
		if next.entityType != nil {
			seg.TargetSet = st.set
			next.set = st.set
		}
		var keys []string
		if len(args) > 1 {
			keys = args[1:]
		}
		return applyKeys(seg, next, keys, reg, q)
	}

	return nil, state{}, api.NewURISemanticError(api.KeyResourceNotFound,
		"no type, action or function "+name+" applies to "+st.bindingType())
}

// setResult records an operation's return type on seg and returns the
// state it leads to.
func setResult(seg *Segment, typeName string, reg *metadata.Registry) state {
	elem, coll := edm.ElementType(typeName)
	seg.TypeName = typeName
	seg.Collection = coll
	st := state{typeName: elem, collection: coll}
	et, ct := reg.StructuredType(elem)
	switch {
	case et != nil:
		seg.EntityType, st.entityType = et, et
	case ct != nil:
		seg.ComplexType, st.complexType = ct, ct
	default:
		st.primitive = true
	}
	return st
}

func applyKeys(seg *Segment, st state, args []string, reg *metadata.Registry, q *QueryOptions) (*Segment, state, error) {
	if len(args) == 0 {
		return seg, st, nil
	}
	if len(args) > 1 {
		return nil, state{}, api.NewURISyntaxError(api.KeySyntax, "unexpected parentheses after "+seg.Name)
	}
	if !st.collection || st.entityType == nil {
		return nil, state{}, api.NewURISemanticError(api.KeyKeyNotAllowed, "key predicate not allowed on "+seg.Name)
	}
	keys, err := parseKeys(args[0], st.entityType, reg, q)
	if err != nil {
		return nil, state{}, err
	}
	seg.Keys = keys
	seg.Collection = false
	st.collection = false
	return seg, st, nil
}

func parseKeys(raw string, et *edm.EntityType, reg *metadata.Registry, q *QueryOptions) ([]KeyPredicate, error) {
	keyProps := reg.KeyProperties(et)
	items, err := splitTopLevel(raw)
	if err != nil {
		return nil, err
	}
	if len(items) != len(keyProps) {
		return nil, api.NewURISemanticError(api.KeyWrongNumberOfKeys,
			fmt.Sprintf("%s has %d key properties, got %d", et.Name, len(keyProps), len(items)))
	}

	values := make(map[string]string, len(items))
	if len(items) == 1 && !strings.Contains(items[0], "=") {
		values[keyProps[0].Name] = items[0]
	} else {
		for _, it := range items {
			name, value, ok := strings.Cut(it, "=")
			if !ok {
				return nil, api.NewURISyntaxError(api.KeySyntax, "compound key requires name=value pairs")
			}
			values[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}

	keys := make([]KeyPredicate, 0, len(keyProps))
	for _, p := range keyProps {
		rawValue, ok := values[p.Name]
		if !ok {
			return nil, api.NewURISemanticError(api.KeyWrongNumberOfKeys, "missing key property "+p.Name)
		}
		rawValue = resolveAlias(rawValue, q)
		v, err := edm.ParseLiteral(p.Type, rawValue)
		if err != nil || v == nil {
			return nil, api.NewURISemanticError(api.KeyInvalidKeyValue, fmt.Sprintf("invalid value %s for key %s", rawValue, p.Name))
		}
		keys = append(keys, KeyPredicate{Name: p.Name, Raw: rawValue, Value: v})
	}
	return keys, nil
}

func parseParameters(raw string) ([]Parameter, error) {
	if strings.TrimSpace(raw) == "" {
		return []Parameter{}, nil
	}
	items, err := splitTopLevel(raw)
	if err != nil {
		return nil, err
	}
	params := make([]Parameter, 0, len(items))
	for _, it := range items {
		name, value, ok := strings.Cut(it, "=")
		if !ok {
			return nil, api.NewURISyntaxError(api.KeySyntax, "function parameters require name=value pairs")
		}
		params = append(params, Parameter{Name: strings.TrimSpace(name), Raw: strings.TrimSpace(value)})
	}
	return params, nil
}

func parameterNames(params []Parameter) []string {
	names := make([]string, 0, len(params))
	for _, p := range params {
		names = append(names, p.Name)
	}
	return names
}

func resolveParameters(params []Parameter, declared []*edm.Parameter, q *QueryOptions) error {
	for i := range params {
		params[i].Raw = resolveAlias(params[i].Raw, q)
		for _, d := range declared {
			if d.Name != params[i].Name || !edm.IsPrimitive(d.Type) {
				continue
			}
			v, err := edm.ParseLiteral(d.Type, params[i].Raw)
			if err != nil {
				return api.NewURISemanticError(api.KeyInvalidKeyValue,
					fmt.Sprintf("invalid value %s for parameter %s: %v", params[i].Raw, d.Name, err))
			}
			params[i].Value = v
		}
	}
	return nil
}

func resolveAlias(raw string, q *QueryOptions) string {
	if strings.HasPrefix(raw, "@") && q.Aliases != nil {
		if v, ok := q.Aliases[raw]; ok {
			return v
		}
	}
	return raw
}

func mustFQN(name string) edm.FullQualifiedName {
	fqn, _ := edm.ParseFQN(name)
	return fqn
}

// splitPath splits an escaped path into unescaped segments. Empty
// segments from leading or trailing slashes are dropped.
func splitPath(rawPath string) ([]string, error) {
	trimmed := strings.Trim(rawPath, "/")
	if trimmed == "" {
		return nil, nil
	}
	raw := strings.Split(trimmed, "/")
	parts := make([]string, 0, len(raw))
	for _, r := range raw {
		if r == "" {
			return nil, api.NewURISyntaxError(api.KeySyntax, "empty path segment in "+rawPath)
		}
		s, err := url.PathUnescape(r)
		if err != nil {
			return nil, api.NewURISyntaxError(api.KeySyntax, "malformed path segment "+r)
		}
		parts = append(parts, s)
	}
	return parts, nil
}

// splitSegment separates an identifier from its parenthesized groups:
// "Products(1)" yields "Products" and ["1"].
func splitSegment(s string) (string, []string, error) {
	i := strings.IndexByte(s, '(')
	if i < 0 {
		return s, nil, nil
	}
	name := s[:i]
	var groups []string
	for i < len(s) {
		if s[i] != '(' {
			return "", nil, api.NewURISyntaxError(api.KeySyntax, "unexpected characters after parentheses in "+s)
		}
		depth, inString := 0, false
		end := -1
		for j := i; j < len(s); j++ {
			c := s[j]
			switch {
			case c == '\'':
				inString = !inString
			case inString:
			case c == '(':
				depth++
			case c == ')':
				depth--
				if depth == 0 {
					end = j
				}
			}
			if end >= 0 {
				break
			}
		}
		if end < 0 {
			return "", nil, api.NewURISyntaxError(api.KeySyntax, "unbalanced parentheses in "+s)
		}
		groups = append(groups, s[i+1:end])
		i = end + 1
	}
	if name == "" {
		return "", nil, api.NewURISyntaxError(api.KeySyntax, "missing identifier before parentheses in "+s)
	}
	return name, groups, nil
}

func checkSelectExpand(q *QueryOptions, st state, last *Segment, reg *metadata.Registry) error {
	if last == nil || last.Kind == SegmentRef || last.Kind == SegmentCount || last.Kind == SegmentValue {
		return nil
	}
	for _, item := range q.Select {
		if item == "*" || strings.Contains(item, ".") {
			continue
		}
		head, _, _ := strings.Cut(item, "/")
		switch {
		case st.entityType != nil:
			if reg.Property(st.entityType, head) == nil && reg.NavigationProperty(st.entityType, head) == nil {
				return api.NewURISemanticError(api.KeyPropertyNotFound, "$select: "+head+" not found on "+st.typeName)
			}
		case st.complexType != nil:
			if reg.ComplexProperty(st.complexType, head) == nil {
				return api.NewURISemanticError(api.KeyPropertyNotFound, "$select: "+head+" not found on "+st.typeName)
			}
		}
	}
	if st.entityType == nil {
		return nil
	}
	for _, e := range q.Expand {
		head, _, _ := strings.Cut(e.Path, "/")
		if head == "*" || strings.Contains(head, ".") {
			continue
		}
		if reg.NavigationProperty(st.entityType, head) == nil {
			return api.NewURISemanticError(api.KeyPropertyNotFound, "$expand: "+head+" is not a navigation property of "+st.typeName)
		}
	}
	return nil
}

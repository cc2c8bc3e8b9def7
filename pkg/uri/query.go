package uri

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/rhuss/odin/pkg/api"
)

// System query option names.
const (
	OptionFilter     = "$filter"
	OptionSelect     = "$select"
	OptionExpand     = "$expand"
	OptionOrderBy    = "$orderby"
	OptionTop        = "$top"
	OptionSkip       = "$skip"
	OptionCount      = "$count"
	OptionSearch     = "$search"
	OptionFormat     = "$format"
	OptionID         = "$id"
	OptionSkipToken  = "$skiptoken"
	OptionDeltaToken = "$deltatoken"
	OptionApply      = "$apply"
	OptionCompute    = "$compute"
	OptionLevels     = "$levels"
	OptionIndex      = "$index"
	OptionSchemaVer  = "$schemaversion"
)

var systemOptions = map[string]bool{
	OptionFilter: true, OptionSelect: true, OptionExpand: true, OptionOrderBy: true,
	OptionTop: true, OptionSkip: true, OptionCount: true, OptionSearch: true,
	OptionFormat: true, OptionID: true, OptionSkipToken: true, OptionDeltaToken: true,
	OptionApply: true, OptionCompute: true, OptionLevels: true, OptionIndex: true,
	OptionSchemaVer: true,
}

// QueryOptions holds the system and custom query options of a request.
type QueryOptions struct {
	Filter     string
	OrderBy    string
	Search     string
	Format     string
	ID         string
	SkipToken  string
	DeltaToken string
	Apply      string
	Compute    string

	Select []string
	Expand []ExpandItem

	Top   *int
	Skip  *int
	Count *bool

	// Aliases holds parameter aliases (@name=value).
	Aliases map[string]string

	// Custom holds non-system options in request order.
	Custom []CustomOption

	system map[string]string
	order  []string
}

// ExpandItem is one top-level $expand entry.
type ExpandItem struct {
	// Path is the navigation path ("Category", "*", "Orders/$ref").
	Path string

	// Options is the raw nested option list inside parentheses, if any.
	Options string
}

// CustomOption is a non-system query option.
type CustomOption struct {
	Name  string
	Value string
}

// Has reports whether the named system option was present.
func (q *QueryOptions) Has(name string) bool {
	_, ok := q.system[name]
	return ok
}

// Raw returns the raw value of a system option.
func (q *QueryOptions) Raw(name string) string {
	return q.system[name]
}

// Names returns the present system options in request order.
func (q *QueryOptions) Names() []string {
	return q.order
}

// Encode renders the query options back into a query string, system
// options first, omitting names listed in skip.
func (q *QueryOptions) Encode(skip ...string) string {
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}
	var parts []string
	for _, name := range q.order {
		if skipped[name] {
			continue
		}
		parts = append(parts, name+"="+escapeQueryValue(q.system[name]))
	}
	aliases := make([]string, 0, len(q.Aliases))
	for alias := range q.Aliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		if !skipped[alias] {
			parts = append(parts, alias+"="+escapeQueryValue(q.Aliases[alias]))
		}
	}
	for _, c := range q.Custom {
		if !skipped[c.Name] {
			parts = append(parts, url.QueryEscape(c.Name)+"="+escapeQueryValue(c.Value))
		}
	}
	return strings.Join(parts, "&")
}

func escapeQueryValue(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}

// ParseQuery parses a raw query string.
func ParseQuery(rawQuery string) (QueryOptions, error) {
	q := QueryOptions{system: make(map[string]string)}
	if rawQuery == "" {
		return q, nil
	}
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		rawName, rawValue, _ := strings.Cut(part, "=")
		name, err := url.QueryUnescape(rawName)
		if err != nil {
			return q, api.NewURISyntaxError(api.KeySyntax, "malformed query option name "+rawName)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return q, api.NewURISyntaxError(api.KeySyntax, "malformed value for query option "+name)
		}

		switch {
		case strings.HasPrefix(name, "$"):
			if !systemOptions[name] {
				return q, api.NewURISyntaxError(api.KeyUnknownSystemQueryOption, "unknown system query option "+name)
			}
			if _, dup := q.system[name]; dup {
				return q, api.NewURISyntaxError(api.KeyDoubleSystemQueryOption, "system query option "+name+" given twice")
			}
			q.system[name] = value
			q.order = append(q.order, name)
			if err := q.apply(name, value); err != nil {
				return q, err
			}
		case strings.HasPrefix(name, "@"):
			if q.Aliases == nil {
				q.Aliases = make(map[string]string)
			}
			q.Aliases[name] = value
		default:
			q.Custom = append(q.Custom, CustomOption{Name: name, Value: value})
		}
	}
	return q, nil
}

func (q *QueryOptions) apply(name, value string) error {
	switch name {
	case OptionFilter:
		if err := CheckExpression(value); err != nil {
			return err
		}
		q.Filter = value
	case OptionOrderBy:
		if err := CheckOrderBy(value); err != nil {
			return err
		}
		q.OrderBy = value
	case OptionTop, OptionSkip:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return api.NewURISyntaxError(api.KeyWrongValueForQueryOption, name+" must be a non-negative integer")
		}
		if name == OptionTop {
			q.Top = &n
		} else {
			q.Skip = &n
		}
	case OptionCount:
		var b bool
		switch value {
		case "true":
			b = true
		case "false":
		default:
			return api.NewURISyntaxError(api.KeyWrongValueForQueryOption, "$count must be true or false")
		}
		q.Count = &b
	case OptionSelect:
		items, err := splitTopLevel(value)
		if err != nil {
			return err
		}
		q.Select = items
	case OptionExpand:
		items, err := splitTopLevel(value)
		if err != nil {
			return err
		}
		for _, it := range items {
			e, err := parseExpandItem(it)
			if err != nil {
				return err
			}
			q.Expand = append(q.Expand, e)
		}
	case OptionSearch:
		if strings.TrimSpace(value) == "" {
			return api.NewURISyntaxError(api.KeyWrongValueForQueryOption, "$search must not be empty")
		}
		q.Search = value
	case OptionFormat:
		if value == "" {
			return api.NewURISyntaxError(api.KeyWrongValueForQueryOption, "$format must not be empty")
		}
		q.Format = value
	case OptionID:
		q.ID = value
	case OptionSkipToken:
		q.SkipToken = value
	case OptionDeltaToken:
		q.DeltaToken = value
	case OptionApply:
		q.Apply = value
	case OptionCompute:
		q.Compute = value
	}
	return nil
}

// parseExpandItem splits "Path(options)". The parenthesis opened after
// the path must close at the end of the item.
func parseExpandItem(it string) (ExpandItem, error) {
	open := strings.IndexByte(it, '(')
	if open < 0 {
		return ExpandItem{Path: it}, nil
	}
	depth := 0
	inString := false
	end := -1
	for i := open; i < len(it) && end < 0; i++ {
		switch c := it[i]; {
		case c == '\'':
			inString = !inString
		case inString:
		case c == '(':
			depth++
		case c == ')':
			if depth--; depth == 0 {
				end = i
			}
		}
	}
	if open == 0 || end != len(it)-1 || strings.TrimSpace(it[open+1:end]) == "" {
		return ExpandItem{}, api.NewURISyntaxError(api.KeySyntax, "malformed $expand item "+it)
	}
	return ExpandItem{Path: strings.TrimSpace(it[:open]), Options: it[open+1 : end]}, nil
}

// splitTopLevel splits a comma list, ignoring commas inside parentheses
// or quotes. Items must be non-empty and parentheses balanced.
func splitTopLevel(s string) ([]string, error) {
	var items []string
	depth, start := 0, 0
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'':
			inString = !inString
		case inString:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return nil, api.NewURISyntaxError(api.KeySyntax, "unbalanced parentheses in "+s)
			}
		case c == ',' && depth == 0:
			items = append(items, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	if depth != 0 || inString {
		return nil, api.NewURISyntaxError(api.KeySyntax, "unbalanced parentheses or quotes in "+s)
	}
	items = append(items, strings.TrimSpace(s[start:]))
	for _, it := range items {
		if it == "" {
			return nil, api.NewURISyntaxError(api.KeySyntax, "empty item in "+s)
		}
	}
	return items, nil
}

package request

import (
	"strconv"
	"strings"
)

// Return is the return preference of a modifying request.
type Return int

const (
	ReturnDefault Return = iota
	ReturnMinimal
	ReturnRepresentation
)

// Preferences is the parsed Prefer header. Unknown preferences are
// ignored.
type Preferences struct {
	Return Return

	// MaxPageSize is odata.maxpagesize, nil when absent or invalid.
	MaxPageSize *int

	AllowEntityReferences bool
	ContinueOnError       bool
	TrackChanges          bool
	RespondAsync          bool
}

// ParsePrefer parses the values of all Prefer headers. The first
// occurrence of a preference wins.
func ParsePrefer(values []string) Preferences {
	var p Preferences
	seen := make(map[string]bool)
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			token, _, _ := strings.Cut(item, ";")
			name, value, _ := strings.Cut(strings.TrimSpace(token), "=")
			name = strings.ToLower(strings.TrimSpace(name))
			value = strings.Trim(strings.TrimSpace(value), `"`)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			switch name {
			case "return":
				switch strings.ToLower(value) {
				case "minimal":
					p.Return = ReturnMinimal
				case "representation":
					p.Return = ReturnRepresentation
				}
			case "odata.maxpagesize", "maxpagesize":
				if n, err := strconv.Atoi(value); err == nil && n > 0 {
					p.MaxPageSize = &n
				}
			case "odata.allow-entityreferences":
				p.AllowEntityReferences = true
			case "odata.continue-on-error", "continue-on-error":
				p.ContinueOnError = value == "" || strings.EqualFold(value, "true")
			case "odata.track-changes", "track-changes":
				p.TrackChanges = true
			case "respond-async":
				p.RespondAsync = true
			}
		}
	}
	return p
}

// String renders the return preference as a Preference-Applied value.
func (r Return) String() string {
	switch r {
	case ReturnMinimal:
		return "return=minimal"
	case ReturnRepresentation:
		return "return=representation"
	default:
		return ""
	}
}

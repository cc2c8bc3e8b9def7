package dispatch

import (
	"fmt"
	"net/http"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/request"
	"github.com/rhuss/odin/pkg/uri"
)

// Options that only make sense on a collection result.
var collectionOptions = map[string]bool{
	uri.OptionFilter:    true,
	uri.OptionOrderBy:   true,
	uri.OptionTop:       true,
	uri.OptionSkip:      true,
	uri.OptionSearch:    true,
	uri.OptionCount:     true,
	uri.OptionSkipToken: true,
	uri.OptionApply:     true,
}

// Options a $count request may carry.
var countOptions = map[string]bool{
	uri.OptionFilter: true,
	uri.OptionSearch: true,
}

// Validate checks d against the rules the URI grammar cannot express:
// which system query options a resource shape accepts, which the request
// method accepts, and the verbs that are legal per shape but not per
// cardinality. The first violation is returned.
func Validate(d *request.Descriptor) error {
	if d.Kind() == request.KindUnsupported {
		return nil
	}
	q := d.Query()
	for _, name := range q.Names() {
		if err := checkOption(d, name); err != nil {
			return err
		}
	}
	return checkShape(d)
}

func checkOption(d *request.Descriptor, name string) error {
	kind := d.Kind()
	notAllowed := func() error {
		return api.NewValidationError(api.KeySystemQueryOptionNotAllowed,
			fmt.Sprintf("system query option %s is not allowed on %s", name, kind))
	}

	switch kind {
	case request.KindBatch:
		return notAllowed()
	case request.KindMetadata, request.KindServiceDocument:
		if name != uri.OptionFormat && name != uri.OptionSchemaVer {
			return notAllowed()
		}
		return nil
	case request.KindCount:
		if !countOptions[name] {
			return notAllowed()
		}
		return nil
	case request.KindValue, request.KindMedia:
		if name != uri.OptionFormat {
			return notAllowed()
		}
		return nil
	}

	switch {
	case collectionOptions[name]:
		if !d.IsCollection() {
			return notAllowed()
		}
	case name == uri.OptionSelect || name == uri.OptionExpand:
		if kind == request.KindReference {
			return notAllowed()
		}
	case name == uri.OptionID:
		if kind != request.KindReference || d.Method() != http.MethodDelete {
			return notAllowed()
		}
	}

	return checkOptionForMethod(d, name)
}

func checkOptionForMethod(d *request.Descriptor, name string) error {
	method := d.Method()
	if method == http.MethodGet || d.Kind() == request.KindAction {
		return nil
	}
	forbidden := collectionOptions[name]
	if method == http.MethodDelete && (name == uri.OptionSelect || name == uri.OptionExpand) {
		forbidden = true
	}
	if forbidden {
		return api.NewValidationError(api.KeySystemQueryOptionForMethod,
			fmt.Sprintf("system query option %s is not allowed for %s", name, method))
	}
	return nil
}

func checkShape(d *request.Descriptor) error {
	method := d.Method()
	switch d.Kind() {
	case request.KindEntitySet:
		switch method {
		case http.MethodPut, http.MethodPatch, http.MethodDelete:
			return api.NewValidationError(api.KeyUnsupportedOperation,
				method+" is not allowed on a collection of entities")
		}
	case request.KindEntity:
		if method == http.MethodPost {
			return api.NewValidationError(api.KeyUnsupportedOperation,
				"POST on a single entity is not allowed; post to its entity set instead")
		}
	case request.KindReference:
		if method == http.MethodDelete && d.IsCollection() && d.Query().ID == "" {
			return api.NewValidationError(api.KeyMissingIDOption,
				"deleting a reference from a collection requires the $id query option")
		}
	case request.KindMedia:
		if d.Property() == nil && !d.HasStream() {
			return api.NewValidationError(api.KeyUnsupportedOperation,
				"$value is only allowed on primitive properties and media entities")
		}
	}
	return nil
}

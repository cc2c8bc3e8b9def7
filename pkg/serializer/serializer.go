package serializer

import (
	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/format"
	"github.com/rhuss/odin/pkg/metadata"
)

// Options carries the per-response settings a writer needs.
type Options struct {
	// ContextURL is the full @odata.context value; empty omits it.
	ContextURL string

	// ServiceRoot is the absolute service root with a trailing slash.
	ServiceRoot string

	// Metadata is the odata.metadata level (minimal, full, none).
	Metadata string

	// IEEE754 renders Int64 and Decimal values as strings.
	IEEE754 bool

	// Select restricts the emitted structural properties. Empty selects all.
	Select []string
}

// Serializer writes protocol values in one wire format. Implementations
// return a serialization error with key UNSUPPORTED_FORMAT for shapes the
// format cannot express.
type Serializer interface {
	Entity(e *api.Entity, o Options) ([]byte, error)
	EntityCollection(c *api.EntityCollection, o Options) ([]byte, error)
	Property(p *api.Property, o Options) ([]byte, error)
	ServiceDocument(reg *metadata.Registry, o Options) ([]byte, error)
	Metadata(reg *metadata.Registry) ([]byte, error)
	Error(e *api.ServerError) ([]byte, error)
}

// For returns the serializer for a negotiated content type.
func For(ct format.ContentType) (Serializer, error) {
	switch {
	case ct.Is(format.MediaJSON):
		return NewJSON(), nil
	case ct.Is(format.MediaXML):
		return NewXML(), nil
	default:
		return nil, api.NewSerializationError(api.KeyUnsupportedFormat,
			"no serializer for content type "+ct.MediaType(), nil)
	}
}

func unsupported(format, shape string) error {
	return api.NewSerializationError(api.KeyUnsupportedFormat, format+" cannot represent "+shape, nil)
}

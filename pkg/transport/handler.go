package transport

import (
	"context"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/request"
	"github.com/rhuss/odin/pkg/response"
)

// Handler is the business logic the dispatcher drives. There is one
// method per resource kind and verb. Each method either writes its
// outcome to the sink it receives or returns an error; errors are
// reported by the dispatcher's error handler. A method must not write to
// the sink after returning an error.
//
// Implementations embed BaseHandler and override what they support.
type Handler interface {
	// ReadMetadata writes the metadata document.
	ReadMetadata(ctx context.Context, d *request.Descriptor, s *response.MetadataSink) error

	// ReadServiceDocument writes the service document.
	ReadServiceDocument(ctx context.Context, d *request.Descriptor, s *response.ServiceDocumentSink) error

	// Read serves GET on entities, entity sets, singletons, properties,
	// $value, $count and $ref. The concrete sink type matches the
	// descriptor kind.
	Read(ctx context.Context, d *request.Descriptor, s response.Sink) error

	// ReadMediaStream serves GET on a media entity's $value or a stream
	// property.
	ReadMediaStream(ctx context.Context, d *request.Descriptor, s *response.StreamSink) error

	// CreateEntity serves POST on an entity set and PUT/PATCH upserts.
	CreateEntity(ctx context.Context, d *request.Descriptor, e *api.Entity, s *response.EntitySink) error

	// CreateMediaEntity serves POST on an entity set of a media type. The
	// request body is the media payload.
	CreateMediaEntity(ctx context.Context, d *request.Descriptor, m *api.Media, s *response.EntitySink) error

	// UpdateEntity serves PUT (merge false) and PATCH (merge true).
	UpdateEntity(ctx context.Context, d *request.Descriptor, e *api.Entity, merge bool, s *response.EntitySink) error

	// DeleteEntity serves DELETE on an entity.
	DeleteEntity(ctx context.Context, d *request.Descriptor, s *response.EntitySink) error

	// UpdateProperty serves PUT/PATCH on a property or its $value. A nil
	// property deletes the value.
	UpdateProperty(ctx context.Context, d *request.Descriptor, p *api.Property, merge bool, s *response.PropertySink) error

	// UpdateMediaStream serves PUT on a media entity's $value or a stream
	// property. A nil media deletes the stream.
	UpdateMediaStream(ctx context.Context, d *request.Descriptor, m *api.Media, s *response.NoContentSink) error

	// Invoke runs an action (POST) or function (GET). The sink type
	// follows the declared return type; operations without one get a
	// NoContentSink.
	Invoke(ctx context.Context, d *request.Descriptor, params []api.Parameter, s response.Sink) error

	// AddReference adds links to a collection-valued navigation property.
	AddReference(ctx context.Context, d *request.Descriptor, ids []string, s *response.NoContentSink) error

	// UpdateReference sets a single-valued navigation property.
	UpdateReference(ctx context.Context, d *request.Descriptor, id string, s *response.NoContentSink) error

	// DeleteReference removes a link. id is the $id query option for
	// collection-valued navigation properties and empty otherwise.
	DeleteReference(ctx context.Context, d *request.Descriptor, id string, s *response.NoContentSink) error

	// StartTransaction begins a changeset and returns its id.
	StartTransaction(ctx context.Context) (string, error)
	Commit(ctx context.Context, txID string) error
	Rollback(ctx context.Context, txID string) error

	// CrossJoin serves GET $crossjoin(...).
	CrossJoin(ctx context.Context, d *request.Descriptor, s *response.EntitySetSink) error

	// AnyUnsupported receives every request shape the dispatcher
	// classifies as unsupported.
	AnyUnsupported(ctx context.Context, d *request.Descriptor, s *response.NoContentSink) error

	// SupportsDataIsolation reports whether OData-Isolation: snapshot can
	// be honored.
	SupportsDataIsolation() bool
}

// BaseHandler implements Handler. It serves the metadata and service
// documents from the registry the request was resolved against and
// answers everything else with a NOT_IMPLEMENTED handler error.
type BaseHandler struct{}

var _ Handler = BaseHandler{}

func notImplemented(op string) error {
	return api.NewNotImplementedError(op + " is not implemented")
}

// ReadMetadata implements Handler.
func (BaseHandler) ReadMetadata(_ context.Context, d *request.Descriptor, s *response.MetadataSink) error {
	if d.Info() == nil || d.Info().Registry == nil {
		return notImplemented("metadata")
	}
	s.WriteMetadata(d.Info().Registry)
	return nil
}

// ReadServiceDocument implements Handler.
func (BaseHandler) ReadServiceDocument(_ context.Context, d *request.Descriptor, s *response.ServiceDocumentSink) error {
	if d.Info() == nil || d.Info().Registry == nil {
		return notImplemented("service document")
	}
	s.WriteServiceDocument(d.Info().Registry)
	return nil
}

func (BaseHandler) Read(context.Context, *request.Descriptor, response.Sink) error {
	return notImplemented("read")
}

func (BaseHandler) ReadMediaStream(context.Context, *request.Descriptor, *response.StreamSink) error {
	return notImplemented("read media stream")
}

func (BaseHandler) CreateEntity(context.Context, *request.Descriptor, *api.Entity, *response.EntitySink) error {
	return notImplemented("create entity")
}

func (BaseHandler) CreateMediaEntity(context.Context, *request.Descriptor, *api.Media, *response.EntitySink) error {
	return notImplemented("create media entity")
}

func (BaseHandler) UpdateEntity(context.Context, *request.Descriptor, *api.Entity, bool, *response.EntitySink) error {
	return notImplemented("update entity")
}

func (BaseHandler) DeleteEntity(context.Context, *request.Descriptor, *response.EntitySink) error {
	return notImplemented("delete entity")
}

func (BaseHandler) UpdateProperty(context.Context, *request.Descriptor, *api.Property, bool, *response.PropertySink) error {
	return notImplemented("update property")
}

func (BaseHandler) UpdateMediaStream(context.Context, *request.Descriptor, *api.Media, *response.NoContentSink) error {
	return notImplemented("update media stream")
}

func (BaseHandler) Invoke(context.Context, *request.Descriptor, []api.Parameter, response.Sink) error {
	return notImplemented("operation invocation")
}

func (BaseHandler) AddReference(context.Context, *request.Descriptor, []string, *response.NoContentSink) error {
	return notImplemented("add reference")
}

func (BaseHandler) UpdateReference(context.Context, *request.Descriptor, string, *response.NoContentSink) error {
	return notImplemented("update reference")
}

func (BaseHandler) DeleteReference(context.Context, *request.Descriptor, string, *response.NoContentSink) error {
	return notImplemented("delete reference")
}

func (BaseHandler) StartTransaction(context.Context) (string, error) {
	return "", notImplemented("transactions")
}

func (BaseHandler) Commit(context.Context, string) error {
	return notImplemented("transactions")
}

func (BaseHandler) Rollback(context.Context, string) error {
	return notImplemented("transactions")
}

func (BaseHandler) CrossJoin(context.Context, *request.Descriptor, *response.EntitySetSink) error {
	return notImplemented("$crossjoin")
}

// AnyUnsupported implements Handler.
func (BaseHandler) AnyUnsupported(_ context.Context, d *request.Descriptor, _ *response.NoContentSink) error {
	return notImplemented("request " + d.Method() + " " + d.ResourcePath())
}

func (BaseHandler) SupportsDataIsolation() bool { return false }

// ---------------------------------------------------------------------------
// Processor
// ---------------------------------------------------------------------------

// Processor turns one protocol request into a response. The dispatcher is
// the primary implementation; middleware wraps it.
type Processor interface {
	Process(ctx context.Context, req *api.Request) *api.Response
}

// ProcessorFunc is an adapter that allows using an ordinary function as a
// Processor.
type ProcessorFunc func(ctx context.Context, req *api.Request) *api.Response

// Process calls f(ctx, req).
func (f ProcessorFunc) Process(ctx context.Context, req *api.Request) *api.Response {
	return f(ctx, req)
}

package dispatch

import (
	"context"
	"net/http"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/edm"
	"github.com/rhuss/odin/pkg/request"
	"github.com/rhuss/odin/pkg/response"
	"github.com/rhuss/odin/pkg/serializer"
)

// ---------------------------------------------------------------------------
// Sinks
// ---------------------------------------------------------------------------

func (x *exchange) entitySink() *response.EntitySink {
	s := response.NewEntitySink(x.resp, x.cfg)
	x.sink = s
	return s
}

func (x *exchange) entitySetSink() *response.EntitySetSink {
	s := response.NewEntitySetSink(x.resp, x.cfg)
	x.sink = s
	return s
}

func (x *exchange) propertySink() *response.PropertySink {
	s := response.NewPropertySink(x.resp, x.cfg)
	x.sink = s
	return s
}

func (x *exchange) valueSink() *response.PrimitiveValueSink {
	s := response.NewPrimitiveValueSink(x.resp, x.cfg)
	x.sink = s
	return s
}

func (x *exchange) countSink() *response.CountSink {
	s := response.NewCountSink(x.resp, x.cfg)
	x.sink = s
	return s
}

func (x *exchange) noContentSink() *response.NoContentSink {
	s := response.NewNoContentSink(x.resp, x.cfg)
	x.sink = s
	return s
}

func (x *exchange) streamSink() *response.StreamSink {
	s := response.NewStreamSink(x.resp, x.cfg)
	x.sink = s
	return s
}

// operationSink picks the sink matching an operation's return type.
func (x *exchange) operationSink() response.Sink {
	rt := x.d.ReturnType()
	if rt == nil {
		return x.noContentSink()
	}
	elem, coll := edm.ElementType(rt.Type)
	switch {
	case x.d.EntityType() != nil && coll:
		return x.entitySetSink()
	case x.d.EntityType() != nil:
		return x.entitySink()
	case !coll && elem == edm.TypeStream:
		return x.streamSink()
	default:
		return x.propertySink()
	}
}

func (x *exchange) deserializer() *serializer.Deserializer {
	return serializer.NewDeserializer(x.reg)
}

// media wraps the raw request body.
func (x *exchange) media() *api.Media {
	ct := x.d.Header().Get(api.HeaderContentType)
	if !x.bodyType.IsZero() {
		ct = x.bodyType.String()
	}
	return &api.Media{ContentType: ct, Data: x.d.Body()}
}

func methodNotAllowed(d *request.Descriptor) error {
	return api.NewHandlerError(api.KeyMethodNotAllowed, d.Method()+" is not allowed on "+d.Kind().String())
}

// ---------------------------------------------------------------------------
// Executors
// ---------------------------------------------------------------------------

func (p *Dispatcher) executeUnsupported(ctx context.Context, x *exchange) error {
	return p.handler.AnyUnsupported(ctx, x.d, x.noContentSink())
}

func (p *Dispatcher) executeMetadata(ctx context.Context, x *exchange) error {
	s := response.NewMetadataSink(x.resp, x.cfg)
	x.sink = s
	return p.handler.ReadMetadata(ctx, x.d, s)
}

func (p *Dispatcher) executeServiceDocument(ctx context.Context, x *exchange) error {
	s := response.NewServiceDocumentSink(x.resp, x.cfg)
	x.sink = s
	return p.handler.ReadServiceDocument(ctx, x.d, s)
}

func (p *Dispatcher) executeEntitySet(ctx context.Context, x *exchange) error {
	d := x.d
	switch d.Method() {
	case http.MethodGet:
		return p.handler.Read(ctx, d, x.entitySetSink())
	case http.MethodPost:
		if d.HasStream() {
			return p.handler.CreateMediaEntity(ctx, d, x.media(), x.entitySink())
		}
		e, err := x.deserializer().Entity(d.Body(), d.EntityType())
		if err != nil {
			return err
		}
		return p.handler.CreateEntity(ctx, d, e, x.entitySink())
	}
	return methodNotAllowed(d)
}

// executeEntity serves single entities and singletons. PUT and PATCH
// carrying only If-None-Match: * create the entity; any If-Match turns
// them into updates.
func (p *Dispatcher) executeEntity(ctx context.Context, x *exchange) error {
	d := x.d
	switch d.Method() {
	case http.MethodGet:
		return p.handler.Read(ctx, d, x.entitySink())
	case http.MethodPut, http.MethodPatch:
		e, err := x.deserializer().Entity(d.Body(), d.EntityType())
		if err != nil {
			return err
		}
		if d.Conditions().Upsert() {
			return p.handler.CreateEntity(ctx, d, e, x.entitySink())
		}
		return p.handler.UpdateEntity(ctx, d, e, d.Method() == http.MethodPatch, x.entitySink())
	case http.MethodDelete:
		return p.handler.DeleteEntity(ctx, d, x.entitySink())
	}
	return methodNotAllowed(d)
}

func (p *Dispatcher) executeCount(ctx context.Context, x *exchange) error {
	return p.handler.Read(ctx, x.d, x.countSink())
}

func (p *Dispatcher) executeReference(ctx context.Context, x *exchange) error {
	d := x.d
	switch d.Method() {
	case http.MethodGet:
		if d.IsCollection() {
			return p.handler.Read(ctx, d, x.entitySetSink())
		}
		return p.handler.Read(ctx, d, x.entitySink())
	case http.MethodPost, http.MethodPut:
		ids, err := x.deserializer().References(d.Body())
		if err != nil {
			return err
		}
		for i, id := range ids {
			if ids[i], err = relativeID(id, d.ServiceRoot()); err != nil {
				return err
			}
		}
		if d.Method() == http.MethodPost {
			return p.handler.AddReference(ctx, d, ids, x.noContentSink())
		}
		if len(ids) != 1 {
			return api.NewDeserializationError(api.KeyInvalidValueForProperty, "PUT $ref requires exactly one @odata.id")
		}
		return p.handler.UpdateReference(ctx, d, ids[0], x.noContentSink())
	case http.MethodDelete:
		id := d.Query().ID
		if id != "" {
			var err error
			if id, err = relativeID(id, d.ServiceRoot()); err != nil {
				return err
			}
		}
		return p.handler.DeleteReference(ctx, d, id, x.noContentSink())
	}
	return methodNotAllowed(d)
}

// executeProperty serves structural properties. Stream properties are
// read and written as media.
func (p *Dispatcher) executeProperty(ctx context.Context, x *exchange) error {
	d := x.d
	stream := d.Property().IsStream()
	switch d.Method() {
	case http.MethodGet:
		if stream {
			return p.handler.ReadMediaStream(ctx, d, x.streamSink())
		}
		return p.handler.Read(ctx, d, x.propertySink())
	case http.MethodPut, http.MethodPatch:
		if stream {
			return p.handler.UpdateMediaStream(ctx, d, x.media(), x.noContentSink())
		}
		prop, err := x.deserializer().Property(d.Body(), d.Property())
		if err != nil {
			return err
		}
		return p.handler.UpdateProperty(ctx, d, prop, d.Method() == http.MethodPatch, x.propertySink())
	case http.MethodDelete:
		if stream {
			return p.handler.UpdateMediaStream(ctx, d, nil, x.noContentSink())
		}
		return p.handler.UpdateProperty(ctx, d, nil, false, x.propertySink())
	}
	return methodNotAllowed(d)
}

func (p *Dispatcher) executeValue(ctx context.Context, x *exchange) error {
	d := x.d
	switch d.Method() {
	case http.MethodGet:
		return p.handler.Read(ctx, d, x.valueSink())
	case http.MethodPut:
		prop, err := x.deserializer().PrimitiveValue(d.Body(), d.Property())
		if err != nil {
			return err
		}
		return p.handler.UpdateProperty(ctx, d, prop, false, x.propertySink())
	case http.MethodDelete:
		return p.handler.UpdateProperty(ctx, d, nil, false, x.propertySink())
	}
	return methodNotAllowed(d)
}

func (p *Dispatcher) executeMedia(ctx context.Context, x *exchange) error {
	d := x.d
	switch d.Method() {
	case http.MethodGet:
		return p.handler.ReadMediaStream(ctx, d, x.streamSink())
	case http.MethodPut:
		return p.handler.UpdateMediaStream(ctx, d, x.media(), x.noContentSink())
	case http.MethodDelete:
		return p.handler.UpdateMediaStream(ctx, d, nil, x.noContentSink())
	}
	return methodNotAllowed(d)
}

func (p *Dispatcher) executeAction(ctx context.Context, x *exchange) error {
	params, err := x.deserializer().Parameters(x.d.Body(), x.d.ActionParameters())
	if err != nil {
		return err
	}
	return p.handler.Invoke(ctx, x.d, params, x.operationSink())
}

// executeFunction passes the path parameters of the function segment as
// primitive parameters.
func (p *Dispatcher) executeFunction(ctx context.Context, x *exchange) error {
	var params []api.Parameter
	if op := x.d.Operation(); op != nil {
		for _, up := range op.Parameters {
			params = append(params, api.Parameter{
				Name:     up.Name,
				Property: &api.Property{Name: up.Name, Value: up.Value},
			})
		}
	}
	return p.handler.Invoke(ctx, x.d, params, x.operationSink())
}

func (p *Dispatcher) executeCrossJoin(ctx context.Context, x *exchange) error {
	return p.handler.CrossJoin(ctx, x.d, x.entitySetSink())
}

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/debug"
	"github.com/rhuss/odin/pkg/format"
	"github.com/rhuss/odin/pkg/metadata"
	"github.com/rhuss/odin/pkg/observability"
	"github.com/rhuss/odin/pkg/request"
	"github.com/rhuss/odin/pkg/response"
	"github.com/rhuss/odin/pkg/serializer"
	"github.com/rhuss/odin/pkg/transport"
	"github.com/rhuss/odin/pkg/uri"
)

// ErrNoMetadata is returned while no registry has been published.
var ErrNoMetadata = errors.New("dispatch: no service metadata loaded")

// executor runs one descriptor kind against the handler.
type executor func(ctx context.Context, x *exchange) error

// Dispatcher is the transport.Processor that classifies requests and
// routes them to a Handler. All per-request state lives on the stack; the
// dispatcher itself only holds the registry snapshot and collaborators.
type Dispatcher struct {
	snapshot   *metadata.Snapshot
	handler    transport.Handler
	parser     uri.Parser
	negotiator format.Negotiator
	errors     *ErrorHandler
	logger     *slog.Logger
	executors  map[request.Kind]executor
}

var _ transport.Processor = (*Dispatcher)(nil)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithParser replaces the URI parser.
func WithParser(p uri.Parser) Option {
	return func(d *Dispatcher) { d.parser = p }
}

// WithNegotiator replaces the content negotiator.
func WithNegotiator(n format.Negotiator) Option {
	return func(d *Dispatcher) { d.negotiator = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a Dispatcher serving the registry currently held by
// snapshot with handler h.
func New(snapshot *metadata.Snapshot, h transport.Handler, opts ...Option) *Dispatcher {
	p := &Dispatcher{
		snapshot:   snapshot,
		handler:    h,
		parser:     uri.NewParser(),
		negotiator: format.NewNegotiator(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.errors = NewErrorHandler(p.negotiator, p.logger)
	p.executors = map[request.Kind]executor{
		request.KindUnsupported:     p.executeUnsupported,
		request.KindEntitySet:       p.executeEntitySet,
		request.KindEntity:          p.executeEntity,
		request.KindSingleton:       p.executeEntity,
		request.KindCount:           p.executeCount,
		request.KindReference:       p.executeReference,
		request.KindProperty:        p.executeProperty,
		request.KindValue:           p.executeValue,
		request.KindMedia:           p.executeMedia,
		request.KindMetadata:        p.executeMetadata,
		request.KindServiceDocument: p.executeServiceDocument,
		request.KindBatch:           p.executeBatch,
		request.KindAction:          p.executeAction,
		request.KindFunction:        p.executeFunction,
		request.KindCrossJoin:       p.executeCrossJoin,
	}
	return p
}

// Process implements transport.Processor.
func (p *Dispatcher) Process(ctx context.Context, req *api.Request) *api.Response {
	start := time.Now()
	debug.Payload(debug.Dispatch, "request body", req.Body)
	resp, d := p.dispatch(ctx, req, p.snapshot.Load())
	debug.Payload(debug.Dispatch, "response body", resp.Body)

	kind := "unknown"
	if d != nil {
		kind = d.Kind().String()
	}
	if info := transport.RequestInfoFromContext(ctx); info != nil {
		info.Kind = kind
	}
	observability.DispatchTotal.WithLabelValues(kind, strconv.Itoa(resp.StatusCode)).Inc()
	observability.DispatchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	return resp
}

// dispatch runs one request against reg and always returns a response.
// The descriptor is nil when the request failed before it was built.
func (p *Dispatcher) dispatch(ctx context.Context, req *api.Request, reg *metadata.Registry) (*api.Response, *request.Descriptor) {
	d, resp, err := p.process(ctx, req, reg)
	if err != nil {
		return p.errors.Response(req, err), d
	}
	return resp, d
}

func (p *Dispatcher) process(ctx context.Context, req *api.Request, reg *metadata.Registry) (*request.Descriptor, *api.Response, error) {
	if reg == nil {
		return nil, nil, ErrNoMetadata
	}
	if err := checkMaxVersion(req.HeaderValue(api.HeaderODataMaxVersion)); err != nil {
		return nil, nil, err
	}

	d, err := p.resolve(req, reg)
	if err != nil {
		return nil, nil, err
	}
	debug.Log(debug.Dispatch, "descriptor built",
		"kind", d.Kind().String(), "method", d.Method(), "path", d.ResourcePath(), "entity_id", d.EntityID())

	if d.Kind() == request.KindBatch && inBatch(ctx) {
		return d, nil, api.NewBatchDeserializationError(api.KeyInvalidBatchPart, "a batch operation cannot address $batch")
	}
	if err := Validate(d); err != nil {
		return d, nil, err
	}
	if strings.EqualFold(req.HeaderValue(api.HeaderODataIsolation), "snapshot") && !p.handler.SupportsDataIsolation() {
		return d, nil, api.NewHandlerError(api.KeyPreconditionFailed, "OData-Isolation: snapshot is not supported by this service")
	}
	if !d.Allowed() {
		return d, nil, api.NewHandlerError(api.KeyMethodNotAllowed,
			fmt.Sprintf("%s is not allowed on %s", d.Method(), d.Kind()))
	}

	x, err := p.prepare(d, reg)
	if err != nil {
		return d, nil, err
	}
	if err := p.execute(ctx, x); err != nil {
		return d, nil, err
	}
	return d, x.resp, nil
}

// resolve parses the request URI and visits it. An $entity request is
// rewritten to the path its $id names and resolved again, so the result
// equals the descriptor of requesting that path directly.
func (p *Dispatcher) resolve(req *api.Request, reg *metadata.Registry) (*request.Descriptor, error) {
	info, err := p.parser.Parse(req.RawPath, req.RawQuery, reg)
	if err != nil {
		return nil, err
	}
	if info.Kind != uri.InfoEntityID {
		return Describe(req, info)
	}

	target, err := entityIDPath(info.Query.ID, req.ServiceRoot)
	if err != nil {
		return nil, err
	}
	rewritten := req.WithTarget(target, info.Query.Encode(uri.OptionID))
	debug.Log(debug.Dispatch, "rewriting $entity", "id", info.Query.ID, "path", rewritten.RawPath, "query", rewritten.RawQuery)

	info, err = p.parser.Parse(rewritten.RawPath, rewritten.RawQuery, reg)
	if err != nil {
		return nil, err
	}
	d, err := Describe(rewritten, info)
	if err != nil {
		return nil, err
	}
	if d.Kind() != request.KindEntity && d.Kind() != request.KindSingleton {
		return nil, api.NewURIError(api.KeyResourceNotFound, "$id "+info.Query.ID+" does not address a single entity")
	}
	return d, nil
}

// exchange is the per-request state handed to an executor.
type exchange struct {
	d    *request.Descriptor
	reg  *metadata.Registry
	resp *api.Response
	cfg  response.Config

	// bodyType is the checked request content type, zero without a body.
	bodyType format.ContentType

	sink response.Sink
}

// prepare checks the request content type and negotiates the response.
func (p *Dispatcher) prepare(d *request.Descriptor, reg *metadata.Registry) (*exchange, error) {
	x := &exchange{d: d, reg: reg, resp: api.NewResponse()}
	if d.Kind() == request.KindUnsupported {
		return x, nil
	}

	if bk, ok := d.BodyKind(); ok && len(d.Body()) > 0 {
		ct, err := p.negotiator.CheckRequestContentType(d.Header().Get(api.HeaderContentType), bk)
		if err != nil {
			return nil, err
		}
		x.bodyType = ct
	}

	ct, err := p.negotiator.Negotiate(d.Query().Format, d.Header().Get(api.HeaderAccept), d.ResponseKind())
	if err != nil {
		return nil, err
	}

	x.cfg = response.Config{
		ContentType:    ct,
		Preferences:    d.Preferences(),
		ServiceRoot:    d.ServiceRoot(),
		ReferencesOnly: d.Kind() == request.KindReference,
		Options: serializer.Options{
			ServiceRoot: d.ServiceRoot(),
			Metadata:    ct.MetadataLevel(),
			IEEE754:     strings.EqualFold(ct.Param(format.ParamIEEE754), "true"),
			Select:      d.Query().Select,
		},
	}
	if d.EntitySet() != nil && d.EntityType() != nil {
		x.cfg.EntitySet = d.EntitySet().Name
		x.cfg.Keys = reg.KeyProperties(d.EntityType())
	}
	if s, err := serializer.For(ct); err == nil {
		x.cfg.Serializer = s
	}
	if cu := request.ContextURL(d); cu != "" {
		x.cfg.Options.ContextURL = d.ServiceRoot() + cu
	}
	return x, nil
}

// execute runs the executor of the descriptor kind. A handler panic is
// recovered and reported as an unknown error; a handler that returns
// without completing its sink is an incomplete response.
func (p *Dispatcher) execute(ctx context.Context, x *exchange) (err error) {
	ex, ok := p.executors[x.d.Kind()]
	if !ok {
		return api.NewNotImplementedError("no executor for " + x.d.Kind().String())
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("handler panic",
				slog.String("request_id", transport.RequestIDFromContext(ctx)),
				slog.String("kind", x.d.Kind().String()),
				slog.Any("panic", r),
			)
			err = fmt.Errorf("dispatch: handler panic: %v", r)
		}
	}()

	if err := ex(ctx, x); err != nil {
		return err
	}
	if x.sink != nil && !x.sink.Closed() {
		return api.NewHandlerError(api.KeyIncompleteResponse, "handler returned without completing the response for "+x.d.Kind().String())
	}
	return nil
}

// checkMaxVersion rejects clients whose OData-MaxVersion is below the
// served protocol version.
func checkMaxVersion(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	majorText, minorText, _ := strings.Cut(v, ".")
	major, err := strconv.Atoi(majorText)
	if err == nil && minorText != "" {
		_, err = strconv.Atoi(minorText)
	}
	if err != nil || major < 4 {
		return api.NewHandlerError(api.KeyVersionNotSupported,
			"OData-MaxVersion "+v+" is not supported; this service implements "+api.ODataVersion)
	}
	return nil
}

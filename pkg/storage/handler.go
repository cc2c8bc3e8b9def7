package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/debug"
	"github.com/rhuss/odin/pkg/edm"
	"github.com/rhuss/odin/pkg/metadata"
	"github.com/rhuss/odin/pkg/observability"
	"github.com/rhuss/odin/pkg/request"
	"github.com/rhuss/odin/pkg/response"
	"github.com/rhuss/odin/pkg/transport"
	"github.com/rhuss/odin/pkg/uri"
)

// OperationFunc implements a bound or unbound action or function.
type OperationFunc func(ctx context.Context, d *request.Descriptor, params []api.Parameter, s response.Sink) error

// Handler serves entity data from a Store. Requests it cannot answer
// (query options without a storage rendition, $crossjoin, unregistered
// operations) fall through to transport.BaseHandler.
type Handler struct {
	transport.BaseHandler

	store       Store
	logger      *slog.Logger
	maxPageSize int
	operations  map[string]OperationFunc
}

var _ transport.Handler = (*Handler)(nil)

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = l }
}

// WithMaxPageSize limits the entities returned per collection response.
// Longer collections carry an @odata.nextLink. Zero disables paging.
func WithMaxPageSize(n int) HandlerOption {
	return func(h *Handler) { h.maxPageSize = n }
}

// WithOperation registers the implementation of the action or function
// with the given unqualified name.
func WithOperation(name string, fn OperationFunc) HandlerOption {
	return func(h *Handler) { h.operations[name] = fn }
}

// NewHandler creates a Handler on top of store.
func NewHandler(store Store, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:      store,
		logger:     slog.Default(),
		operations: make(map[string]OperationFunc),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Store returns the underlying record store.
func (h *Handler) Store() Store { return h.store }

// SupportsDataIsolation implements transport.Handler. Every request reads
// one consistent view of the store.
func (h *Handler) SupportsDataIsolation() bool { return true }

// ---------------------------------------------------------------------------
// Store access
// ---------------------------------------------------------------------------

func (h *Handler) observe(op string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrConflict):
		outcome = "conflict"
	case errors.Is(err, ErrPreconditionFailed):
		outcome = "precondition_failed"
	default:
		outcome = "error"
	}
	observability.StorageOperationsTotal.WithLabelValues(h.store.Name(), op, outcome).Inc()
}

func (h *Handler) get(ctx context.Context, id string) (*Record, error) {
	rec, err := h.store.Get(ctx, id)
	h.observe("get", err)
	return rec, err
}

func (h *Handler) list(ctx context.Context, set string) ([]*Record, error) {
	recs, err := h.store.List(ctx, set)
	h.observe("list", err)
	return recs, err
}

func (h *Handler) insert(ctx context.Context, rec *Record) error {
	err := h.store.Insert(ctx, rec)
	h.observe("insert", err)
	debug.Log(debug.Storage, "record inserted", "id", rec.ID, "tenant", TenantFromContext(ctx), "error", err)
	return err
}

func (h *Handler) update(ctx context.Context, rec *Record, etag string) error {
	err := h.store.Update(ctx, rec, etag)
	h.observe("update", err)
	debug.Log(debug.Storage, "record updated", "id", rec.ID, "etag", rec.ETag, "error", err)
	return err
}

func (h *Handler) delete(ctx context.Context, id, etag string) error {
	err := h.store.Delete(ctx, id, etag)
	h.observe("delete", err)
	debug.Log(debug.Storage, "record deleted", "id", id, "error", err)
	return err
}

// atomic runs fn inside the changeset transaction of ctx, or inside a
// transaction of its own when there is none.
func (h *Handler) atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if transport.TransactionFromContext(ctx) != "" {
		return fn(ctx)
	}
	txID, err := h.StartTransaction(ctx)
	if err != nil {
		return err
	}
	err = fn(transport.ContextWithTransaction(ctx, txID))
	if err == nil {
		err = h.Commit(ctx, txID)
		if err == nil {
			return nil
		}
	}
	if rerr := h.Rollback(ctx, txID); rerr != nil {
		h.logger.Error("rollback failed", slog.String("tx", txID), slog.String("error", rerr.Error()))
	}
	return err
}

// StartTransaction implements transport.Handler.
func (h *Handler) StartTransaction(ctx context.Context) (string, error) {
	txID, err := h.store.Begin(ctx)
	h.observe("begin", err)
	if err != nil {
		return "", fmt.Errorf("storage: begin: %w", err)
	}
	debug.Log(debug.Storage, "transaction started", "tx", txID, "tenant", TenantFromContext(ctx))
	return txID, nil
}

// Commit implements transport.Handler.
func (h *Handler) Commit(ctx context.Context, txID string) error {
	err := h.store.Commit(ctx, txID)
	h.observe("commit", err)
	debug.Log(debug.Storage, "transaction committed", "tx", txID, "error", err)
	if err != nil {
		return protocolError(err, "transaction "+txID)
	}
	return nil
}

// Rollback implements transport.Handler.
func (h *Handler) Rollback(ctx context.Context, txID string) error {
	err := h.store.Rollback(ctx, txID)
	h.observe("rollback", err)
	debug.Log(debug.Storage, "transaction rolled back", "tx", txID, "error", err)
	if err != nil {
		return protocolError(err, "transaction "+txID)
	}
	return nil
}

// protocolError maps a store error to the error reported to the client.
func protocolError(err error, what string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return &api.ApplicationError{Code: "NOT_FOUND", Message: what + " not found", StatusCode: http.StatusNotFound, Err: err}
	case errors.Is(err, ErrConflict):
		return &api.ApplicationError{Code: "CONFLICT", Message: what + " conflicts with the stored state", StatusCode: http.StatusConflict, Err: err}
	case errors.Is(err, ErrPreconditionFailed):
		return api.NewHandlerError(api.KeyPreconditionFailed, "the ETag of "+what+" does not match")
	}
	return fmt.Errorf("storage: %s: %w", what, err)
}

func newETag() string {
	return `W/"` + uuid.NewString() + `"`
}

// ---------------------------------------------------------------------------
// Schema helpers
// ---------------------------------------------------------------------------

func registry(d *request.Descriptor) (*metadata.Registry, error) {
	if d.Info() == nil || d.Info().Registry == nil {
		return nil, errors.New("storage: request carries no metadata")
	}
	return d.Info().Registry, nil
}

// typeOf returns the entity type of an entity set or singleton.
func typeOf(reg *metadata.Registry, set string) *edm.EntityType {
	if es := reg.EntitySet(set); es != nil {
		return reg.EntitySetType(es)
	}
	if s := reg.Singleton(set); s != nil {
		return reg.SingletonType(s)
	}
	return nil
}

// targetSet returns the entity set a navigation from set is bound to.
func targetSet(reg *metadata.Registry, set, nav string) string {
	if es := reg.EntitySet(set); es != nil {
		if t := reg.NavigationTarget(es, nav); t != nil {
			return t.Name
		}
		return ""
	}
	if s := reg.Singleton(set); s != nil {
		if t := s.BindingTarget(nav); t != "" {
			return edm.ParseTarget(t, reg.ContainerName()).Name
		}
	}
	return ""
}

// unsupportedQuery rejects query options the store cannot evaluate.
func unsupportedQuery(q *uri.QueryOptions) error {
	for name, v := range map[string]string{
		"$filter":     q.Filter,
		"$orderby":    q.OrderBy,
		"$search":     q.Search,
		"$apply":      q.Apply,
		"$compute":    q.Compute,
		"$skiptoken":  q.SkipToken,
		"$deltatoken": q.DeltaToken,
	} {
		if v != "" {
			return api.NewNotImplementedError(name + " is not supported by the storage handler")
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

// resolve follows a canonical resource path ("Products(1)/Category") to
// the record it addresses.
func (h *Handler) resolve(ctx context.Context, reg *metadata.Registry, path string) (*Record, error) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return h.get(ctx, path)
	}
	parent, err := h.resolve(ctx, reg, path[:i])
	if err != nil {
		return nil, err
	}
	name, key, hasKey := strings.Cut(path[i+1:], "(")
	id := ""
	if hasKey {
		id = targetSet(reg, parent.Set, name) + "(" + key
	}
	return h.follow(ctx, parent, name, id)
}

// follow returns the record parent links to along nav: the one with the
// given id, or the only one of a single-valued navigation when id is empty.
func (h *Handler) follow(ctx context.Context, parent *Record, nav, id string) (*Record, error) {
	ids := parent.Links[nav]
	if id == "" {
		if len(ids) == 0 {
			return nil, ErrNotFound
		}
		id = ids[0]
	} else if !contains(ids, id) {
		return nil, ErrNotFound
	}
	return h.get(ctx, id)
}

// record returns the record addressed by an entity, singleton, property,
// $value or media descriptor.
func (h *Handler) record(ctx context.Context, d *request.Descriptor, reg *metadata.Registry) (*Record, error) {
	switch {
	case d.Navigation() != nil:
		parent, err := h.resolve(ctx, reg, d.ParentID())
		if err != nil {
			return nil, err
		}
		return h.follow(ctx, parent, d.Navigation().Name, d.EntityID())
	case d.Singleton() != nil:
		return h.get(ctx, d.Singleton().Name)
	case d.EntityID() != "":
		return h.get(ctx, d.EntityID())
	}
	return nil, ErrNotFound
}

// records returns the records of the addressed collection. A navigation
// whose parent does not exist yields ErrNotFound; links to deleted
// records are skipped.
func (h *Handler) records(ctx context.Context, d *request.Descriptor, reg *metadata.Registry) ([]*Record, error) {
	if nav := d.Navigation(); nav != nil {
		parent, err := h.resolve(ctx, reg, d.ParentID())
		if err != nil {
			return nil, err
		}
		return h.linked(ctx, parent.Links[nav.Name])
	}
	if d.EntitySet() == nil {
		return nil, api.NewNotImplementedError("collection " + d.ResourcePath() + " has no entity set")
	}
	return h.list(ctx, d.EntitySet().Name)
}

func (h *Handler) linked(ctx context.Context, ids []string) ([]*Record, error) {
	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec, err := h.get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// propertyPath returns the names of the trailing property segments of d.
func propertyPath(d *request.Descriptor) []string {
	var path []string
	for _, seg := range d.Segments() {
		switch seg.Kind {
		case uri.SegmentPrimitiveProperty, uri.SegmentComplexProperty:
			path = append(path, seg.Name)
		case uri.SegmentValue, uri.SegmentCount:
		default:
			path = path[:0]
		}
	}
	return path
}

// walk follows path through the properties of e. A member missing from
// the stored data reads as null.
func walk(e *api.Entity, path []string, prop *edm.Property) *api.Property {
	null := &api.Property{Name: prop.Name, Type: prop.Type}
	if len(path) == 0 {
		return null
	}
	p := e.Property(path[0])
	for _, name := range path[1:] {
		if p.IsNull() {
			return null
		}
		cv, ok := p.Value.(*api.ComplexValue)
		if !ok {
			return null
		}
		p = cv.Property(name)
	}
	if p == nil {
		return null
	}
	return p
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Read
// ---------------------------------------------------------------------------

// Read implements transport.Handler.
func (h *Handler) Read(ctx context.Context, d *request.Descriptor, s response.Sink) error {
	if d.Kind() == request.KindReference {
		return api.NewNotImplementedError("reading entity references is not supported")
	}
	if err := unsupportedQuery(d.Query()); err != nil {
		return err
	}
	reg, err := registry(d)
	if err != nil {
		return err
	}

	switch s := s.(type) {
	case *response.EntitySetSink:
		c, err := h.readCollection(ctx, d, reg)
		if err != nil {
			return err
		}
		s.WriteReadEntitySet(c)
	case *response.EntitySink:
		e, err := h.readEntity(ctx, d, reg)
		if err != nil {
			return err
		}
		s.WriteReadEntity(e)
	case *response.PropertySink:
		p, err := h.readProperty(ctx, d, reg)
		if err != nil {
			return err
		}
		s.WriteProperty(p)
	case *response.PrimitiveValueSink:
		p, err := h.readProperty(ctx, d, reg)
		if err != nil {
			return err
		}
		s.WriteValue(p)
	case *response.CountSink:
		n, err := h.count(ctx, d, reg)
		if errors.Is(err, ErrNotFound) {
			s.WriteNotFound()
			s.Close()
			return nil
		}
		if err != nil {
			return err
		}
		s.WriteCount(n)
	default:
		return api.NewNotImplementedError(fmt.Sprintf("reading %s into %T", d.Kind(), s))
	}
	return nil
}

func (h *Handler) readEntity(ctx context.Context, d *request.Descriptor, reg *metadata.Registry) (*api.Entity, error) {
	rec, err := h.record(ctx, d, reg)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return h.entity(ctx, reg, rec, d.Query().Expand)
}

// entity decodes rec and attaches the expanded navigation properties.
func (h *Handler) entity(ctx context.Context, reg *metadata.Registry, rec *Record, expand []uri.ExpandItem) (*api.Entity, error) {
	et := typeOf(reg, rec.Set)
	if et == nil {
		return nil, fmt.Errorf("storage: record %s belongs to unknown set %s", rec.ID, rec.Set)
	}
	e, err := decode(reg, et, rec)
	if err != nil {
		return nil, err
	}
	if len(expand) > 0 {
		if err := h.expand(ctx, reg, et, rec, e, expand); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (h *Handler) readCollection(ctx context.Context, d *request.Descriptor, reg *metadata.Registry) (*api.EntityCollection, error) {
	recs, err := h.records(ctx, d, reg)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	q := d.Query()
	total := len(recs)
	skip := 0
	if q.Skip != nil {
		skip = min(*q.Skip, total)
	}
	page := recs[skip:]
	if q.Top != nil && *q.Top < len(page) {
		page = page[:*q.Top]
	}

	c := &api.EntityCollection{Entities: make([]*api.Entity, 0, len(page))}
	if h.maxPageSize > 0 && len(page) > h.maxPageSize {
		c.NextLink = nextLink(d, skip+h.maxPageSize, q.Top, h.maxPageSize)
		page = page[:h.maxPageSize]
	}
	if q.Count != nil && *q.Count {
		c.Count = &total
	}
	for _, rec := range page {
		e, err := h.entity(ctx, reg, rec, q.Expand)
		if err != nil {
			return nil, err
		}
		c.Entities = append(c.Entities, e)
	}
	return c, nil
}

// nextLink addresses the page after a server-truncated one.
func nextLink(d *request.Descriptor, skip int, top *int, served int) string {
	params := []string{"$skip=" + strconv.Itoa(skip)}
	if top != nil {
		params = append(params, "$top="+strconv.Itoa(*top-served))
	}
	if q := d.Query(); q.Count != nil && *q.Count {
		params = append(params, "$count=true")
	}
	return d.ServiceRoot() + d.ResourcePath() + "?" + strings.Join(params, "&")
}

func (h *Handler) readProperty(ctx context.Context, d *request.Descriptor, reg *metadata.Registry) (*api.Property, error) {
	rec, err := h.record(ctx, d, reg)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e, err := h.entity(ctx, reg, rec, nil)
	if err != nil {
		return nil, err
	}
	return walk(e, propertyPath(d), d.Property()), nil
}

// count serves $count on a collection of entities or on a collection
// property.
func (h *Handler) count(ctx context.Context, d *request.Descriptor, reg *metadata.Registry) (int, error) {
	if d.Property() != nil {
		p, err := h.readProperty(ctx, d, reg)
		if err != nil {
			return 0, err
		}
		if p == nil {
			return 0, ErrNotFound
		}
		items, _ := p.Value.([]any)
		return len(items), nil
	}
	recs, err := h.records(ctx, d, reg)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// ReadMediaStream implements transport.Handler.
func (h *Handler) ReadMediaStream(ctx context.Context, d *request.Descriptor, s *response.StreamSink) error {
	reg, err := registry(d)
	if err != nil {
		return err
	}
	rec, err := h.record(ctx, d, reg)
	if errors.Is(err, ErrNotFound) {
		s.WriteStream(nil, "")
		return nil
	}
	if err != nil {
		return err
	}
	if d.Kind() == request.KindMedia {
		s.WriteStream(rec.Media, rec.MediaETag)
		return nil
	}
	s.WriteStream(rec.Streams[d.Property().Name], rec.ETag)
	return nil
}

// Invoke implements transport.Handler. Operations are looked up by their
// unqualified name among the registered implementations.
func (h *Handler) Invoke(ctx context.Context, d *request.Descriptor, params []api.Parameter, s response.Sink) error {
	name := ""
	switch {
	case d.Action() != nil:
		name = d.Action().Name
	case d.Function() != nil:
		name = d.Function().Name
	}
	fn, ok := h.operations[name]
	if !ok {
		return h.BaseHandler.Invoke(ctx, d, params, s)
	}
	debug.Log(debug.Storage, "invoking operation", "name", name, "parameters", len(params))
	return fn(ctx, d, params, s)
}

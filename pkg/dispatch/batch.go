package dispatch

import (
	"context"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"strings"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/debug"
	"github.com/rhuss/odin/pkg/format"
	"github.com/rhuss/odin/pkg/observability"
	"github.com/rhuss/odin/pkg/serializer"
	"github.com/rhuss/odin/pkg/transport"
)

type batchKeyType struct{}

var batchKey = batchKeyType{}

func inBatch(ctx context.Context) bool {
	v, _ := ctx.Value(batchKey).(bool)
	return v
}

// executeBatch runs the operations of a $batch request in order against
// the registry the batch was resolved with. Each changeset runs inside one
// handler transaction; the first failing operation rolls it back and the
// changeset is answered with that failure alone. Without
// Prefer: odata.continue-on-error processing stops after the first failed
// top-level operation.
func (p *Dispatcher) executeBatch(ctx context.Context, x *exchange) error {
	parts, err := serializer.ParseBatch(x.d.Body(), x.bodyType.Param(format.ParamBoundary))
	if err != nil {
		return err
	}
	debug.Log(debug.Batch, "batch parsed", "parts", len(parts))

	ctx = context.WithValue(ctx, batchKey, true)
	b := &batch{p: p, x: x, ids: make(map[string]string)}
	var out []*serializer.BatchResponsePart
	for _, part := range parts {
		var res *serializer.BatchResponsePart
		if part.IsChangeSet() {
			res = b.changeSet(ctx, part.ChangeSet)
		} else {
			res = &serializer.BatchResponsePart{Response: b.operation(ctx, part.Request)}
		}
		out = append(out, res)
		if res.Response != nil && failed(res.Response.Response) && !x.d.Preferences().ContinueOnError {
			debug.Log(debug.Batch, "stopping batch after failed operation", "status", res.Response.Response.StatusCode)
			break
		}
	}

	body, boundary, err := serializer.WriteBatch(out)
	if err != nil {
		return err
	}
	x.resp.StatusCode = http.StatusOK
	x.resp.Header.Set(api.HeaderContentType, format.MediaMultipart+";"+format.ParamBoundary+"="+boundary)
	if x.d.Preferences().ContinueOnError {
		x.resp.Header.Set(api.HeaderPreferenceApplied, "odata.continue-on-error")
	}
	x.resp.Body = body
	return nil
}

func failed(resp *api.Response) bool {
	return resp == nil || resp.StatusCode >= http.StatusBadRequest
}

// batch is the state of one $batch execution.
type batch struct {
	p *Dispatcher
	x *exchange

	// ids maps a Content-ID to the resource path the operation created
	// or addressed, for "$id" references in later targets.
	ids map[string]string

	// pending holds the Content-IDs of the running changeset. They join
	// ids only once the changeset commits.
	pending map[string]string
}

// lookup resolves a Content-ID reference.
func (b *batch) lookup(ref string) (string, bool) {
	if id, ok := b.pending[ref]; ok {
		return id, true
	}
	id, ok := b.ids[ref]
	return id, ok
}

// remember records the resource path of a Content-ID.
func (b *batch) remember(ref, id string) {
	if b.pending != nil {
		b.pending[ref] = id
		return
	}
	b.ids[ref] = id
}

// changeSet runs reqs atomically.
func (b *batch) changeSet(ctx context.Context, reqs []*serializer.BatchRequest) *serializer.BatchResponsePart {
	h := b.p.handler
	txID, err := h.StartTransaction(ctx)
	if err != nil {
		return &serializer.BatchResponsePart{Response: b.failure(err)}
	}
	debug.Log(debug.Batch, "changeset started", "tx", txID, "operations", len(reqs))
	txCtx := transport.ContextWithTransaction(ctx, txID)
	b.pending = make(map[string]string)
	defer func() { b.pending = nil }()

	results := make([]*serializer.BatchResponse, 0, len(reqs))
	for _, r := range reqs {
		res := b.operation(txCtx, r)
		if failed(res.Response) {
			if rerr := h.Rollback(ctx, txID); rerr != nil {
				b.p.logger.Error("changeset rollback failed", slog.String("tx", txID), slog.String("error", rerr.Error()))
			}
			observability.ChangesetsTotal.WithLabelValues("rolled_back").Inc()
			debug.Log(debug.Batch, "changeset rolled back", "tx", txID, "status", res.Response.StatusCode)
			return &serializer.BatchResponsePart{Response: res}
		}
		results = append(results, res)
	}

	if err := h.Commit(ctx, txID); err != nil {
		if rerr := h.Rollback(ctx, txID); rerr != nil {
			b.p.logger.Error("changeset rollback failed", slog.String("tx", txID), slog.String("error", rerr.Error()))
		}
		observability.ChangesetsTotal.WithLabelValues("failed").Inc()
		return &serializer.BatchResponsePart{Response: b.failure(err)}
	}
	maps.Copy(b.ids, b.pending)
	observability.ChangesetsTotal.WithLabelValues("committed").Inc()
	debug.Log(debug.Batch, "changeset committed", "tx", txID)
	return &serializer.BatchResponsePart{ChangeSet: results}
}

// operation dispatches one embedded request.
func (b *batch) operation(ctx context.Context, r *serializer.BatchRequest) *serializer.BatchResponse {
	root := b.x.d.ServiceRoot()
	path, query, err := b.target(r.Target, root)
	if err != nil {
		res := b.failure(err)
		res.ContentID = r.ContentID
		return res
	}
	header := r.Header
	if header == nil {
		header = http.Header{}
	}
	sub := &api.Request{
		Method:      r.Method,
		Header:      header,
		RawPath:     path,
		RawQuery:    query,
		Body:        r.Body,
		ServiceRoot: root,
	}
	debug.Log(debug.Batch, "batch operation", "method", sub.Method, "path", sub.RawPath, "content_id", r.ContentID)
	debug.Payload(debug.Batch, "batch operation body", r.Body)

	resp, d := b.p.dispatch(ctx, sub, b.x.reg)
	if r.ContentID != "" && !failed(resp) {
		switch {
		case resp.Header.Get(api.HeaderLocation) != "":
			if id, err := relativeID(resp.Header.Get(api.HeaderLocation), root); err == nil {
				b.remember(r.ContentID, id)
			}
		case d != nil && d.EntityID() != "":
			b.remember(r.ContentID, d.EntityID())
		}
	}
	return &serializer.BatchResponse{ContentID: r.ContentID, Response: resp}
}

// target splits a batch request target into an escaped path below the
// service root and a raw query. Targets may be relative to the service
// root, absolute paths, absolute URLs or start with a $Content-ID
// reference.
func (b *batch) target(target, serviceRoot string) (string, string, error) {
	path, query, _ := strings.Cut(target, "?")

	if strings.HasPrefix(path, "$") {
		ref, rest, _ := strings.Cut(path[1:], "/")
		if id, ok := b.lookup(ref); ok {
			path = id
			if rest != "" {
				path += "/" + rest
			}
			return "/" + strings.TrimPrefix(path, "/"), query, nil
		}
		// Not a Content-ID: $metadata, $batch, $crossjoin and friends.
		return "/" + path, query, nil
	}

	if strings.Contains(path, "://") || strings.HasPrefix(path, "/") {
		u, err := url.Parse(path)
		if err != nil {
			return "", "", api.NewBatchDeserializationError(api.KeyInvalidBatchPart, "malformed batch target "+target)
		}
		root, err := url.Parse(serviceRoot)
		if err != nil || (u.IsAbs() && u.Host != root.Host) || !strings.HasPrefix(u.EscapedPath(), root.EscapedPath()) {
			return "", "", api.NewBatchDeserializationError(api.KeyInvalidBatchPart, "batch target "+target+" is outside the service")
		}
		path = strings.TrimPrefix(u.EscapedPath(), root.EscapedPath())
	}
	return "/" + strings.TrimPrefix(path, "/"), query, nil
}

// failure renders err as the response of a batch operation.
func (b *batch) failure(err error) *serializer.BatchResponse {
	req := &api.Request{Method: b.x.d.Method(), Header: http.Header{}, ServiceRoot: b.x.d.ServiceRoot()}
	return &serializer.BatchResponse{Response: b.p.errors.Response(req, err)}
}

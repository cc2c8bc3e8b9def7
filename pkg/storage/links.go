package storage

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/edm"
	"github.com/rhuss/odin/pkg/metadata"
	"github.com/rhuss/odin/pkg/request"
	"github.com/rhuss/odin/pkg/response"
	"github.com/rhuss/odin/pkg/uri"
)

func appendUnique(ids []string, id string) []string {
	if contains(ids, id) {
		return ids
	}
	return append(ids, id)
}

func remove(ids []string, id string) []string {
	return slices.DeleteFunc(slices.Clone(ids), func(v string) bool { return v == id })
}

// partner keeps the partner navigation of nav in step when rec gains
// (add) or loses a link to targetID. Links are not part of the entity
// representation and leave ETags unchanged.
func (h *Handler) partner(ctx context.Context, reg *metadata.Registry, rec *Record, nav, targetID string, add bool) error {
	np := reg.NavigationProperty(typeOf(reg, rec.Set), nav)
	if np == nil || np.Partner == "" {
		return nil
	}
	target, err := h.get(ctx, targetID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	pp := reg.NavigationProperty(typeOf(reg, target.Set), np.Partner)
	if pp == nil {
		return nil
	}

	ids := target.Links[np.Partner]
	var next []string
	switch {
	case add && pp.IsCollection():
		if contains(ids, rec.ID) {
			return nil
		}
		next = append(slices.Clone(ids), rec.ID)
	case add:
		if len(ids) == 1 && ids[0] == rec.ID {
			return nil
		}
		// A single-valued partner moves: its previous owner loses the link.
		for _, old := range ids {
			if old != rec.ID {
				if err := h.partner(ctx, reg, target, np.Partner, old, false); err != nil {
					return err
				}
			}
		}
		next = []string{rec.ID}
	default:
		if !contains(ids, rec.ID) {
			return nil
		}
		next = remove(ids, rec.ID)
	}

	updated := target.Clone()
	if updated.Links == nil {
		updated.Links = make(map[string][]string)
	}
	updated.Links[np.Partner] = next
	if err := h.update(ctx, updated, target.ETag); err != nil {
		return protocolError(err, target.ID)
	}
	return nil
}

// relink updates the partners of nav after its links changed from old to
// the current links of rec.
func (h *Handler) relink(ctx context.Context, reg *metadata.Registry, rec *Record, nav string, old []string) error {
	current := rec.Links[nav]
	for _, id := range old {
		if !contains(current, id) {
			if err := h.partner(ctx, reg, rec, nav, id, false); err != nil {
				return err
			}
		}
	}
	for _, id := range current {
		if !contains(old, id) {
			if err := h.partner(ctx, reg, rec, nav, id, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// changeLinks applies fn to the links of the navigation d addresses and
// stores the result.
func (h *Handler) changeLinks(ctx context.Context, d *request.Descriptor, fn func(reg *metadata.Registry, parent *Record, links []string) ([]string, error)) error {
	reg, err := registry(d)
	if err != nil {
		return err
	}
	nav := d.Navigation()
	if nav == nil {
		return api.NewNotImplementedError("references outside a navigation property")
	}
	return h.atomic(ctx, func(ctx context.Context) error {
		parent, err := h.resolve(ctx, reg, d.ParentID())
		if err != nil {
			return protocolError(err, d.ParentID())
		}
		old := slices.Clone(parent.Links[nav.Name])
		links, err := fn(reg, parent, old)
		if err != nil {
			return err
		}
		next := parent.Clone()
		if next.Links == nil {
			next.Links = make(map[string][]string)
		}
		next.Links[nav.Name] = links
		if err := h.save(ctx, next, parent); err != nil {
			return err
		}
		return h.relink(ctx, reg, next, nav.Name, old)
	})
}

// checkTarget verifies that id names an existing entity of the set the
// navigation is bound to.
func (h *Handler) checkTarget(ctx context.Context, reg *metadata.Registry, parent *Record, nav, id string) error {
	if set := targetSet(reg, parent.Set, nav); set != "" && setOf(id) != set {
		return &api.ApplicationError{Code: "INVALID_REFERENCE", Message: id + " is not an entity of " + set,
			Target: nav, StatusCode: http.StatusBadRequest}
	}
	if _, err := h.get(ctx, id); err != nil {
		return protocolError(err, id)
	}
	return nil
}

// AddReference implements transport.Handler.
func (h *Handler) AddReference(ctx context.Context, d *request.Descriptor, ids []string, s *response.NoContentSink) error {
	err := h.changeLinks(ctx, d, func(reg *metadata.Registry, parent *Record, links []string) ([]string, error) {
		for _, id := range ids {
			if err := h.checkTarget(ctx, reg, parent, d.Navigation().Name, id); err != nil {
				return nil, err
			}
			links = appendUnique(links, id)
		}
		return links, nil
	})
	if err != nil {
		return err
	}
	s.WriteDone()
	return nil
}

// UpdateReference implements transport.Handler.
func (h *Handler) UpdateReference(ctx context.Context, d *request.Descriptor, id string, s *response.NoContentSink) error {
	err := h.changeLinks(ctx, d, func(reg *metadata.Registry, parent *Record, _ []string) ([]string, error) {
		if err := h.checkTarget(ctx, reg, parent, d.Navigation().Name, id); err != nil {
			return nil, err
		}
		return []string{id}, nil
	})
	if err != nil {
		return err
	}
	s.WriteDone()
	return nil
}

// DeleteReference implements transport.Handler. Without an explicit id
// the entity addressed by the key of the navigation segment is unlinked.
func (h *Handler) DeleteReference(ctx context.Context, d *request.Descriptor, id string, s *response.NoContentSink) error {
	if id == "" {
		id = d.EntityID()
	}
	err := h.changeLinks(ctx, d, func(_ *metadata.Registry, parent *Record, links []string) ([]string, error) {
		notLinked := &api.ApplicationError{Code: "NOT_FOUND", Message: parent.ID + " has no such " + d.Navigation().Name + " link",
			StatusCode: http.StatusNotFound, Err: ErrNotFound}
		if d.Navigation().IsCollection() {
			if !contains(links, id) {
				return nil, notLinked
			}
			return remove(links, id), nil
		}
		if len(links) == 0 || (id != "" && links[0] != id) {
			return nil, notLinked
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	s.WriteDone()
	return nil
}

// expand attaches the related entities of the requested navigation
// properties. Nested options and paths are not supported.
func (h *Handler) expand(ctx context.Context, reg *metadata.Registry, et *edm.EntityType, rec *Record, e *api.Entity, items []uri.ExpandItem) error {
	for _, it := range items {
		if it.Options != "" || strings.Contains(it.Path, "/") {
			return api.NewNotImplementedError("$expand=" + it.Path + " is not supported by the storage handler")
		}
		var navs []*edm.NavigationProperty
		if it.Path == "*" {
			navs = reg.NavigationProperties(et)
		} else {
			np := reg.NavigationProperty(et, it.Path)
			if np == nil {
				return api.NewURISemanticError(api.KeyPropertyNotFound, "navigation property "+it.Path+" not found")
			}
			navs = []*edm.NavigationProperty{np}
		}

		for _, np := range navs {
			related, err := h.linked(ctx, rec.Links[np.Name])
			if err != nil {
				return err
			}
			link := &api.Link{Name: np.Name}
			if np.IsCollection() {
				link.Entities = &api.EntityCollection{Entities: make([]*api.Entity, 0, len(related))}
			}
			for _, r := range related {
				child, err := h.entity(ctx, reg, r, nil)
				if err != nil {
					return err
				}
				if link.Entities != nil {
					link.Entities.Entities = append(link.Entities.Entities, child)
				} else {
					link.Entity = child
				}
			}
			if link.Entity != nil || link.Entities != nil {
				e.NavigationLinks = append(e.NavigationLinks, link)
			}
		}
	}
	return nil
}

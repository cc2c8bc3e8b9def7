package dispatch

import (
	"net/url"
	"strings"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/edm"
	"github.com/rhuss/odin/pkg/metadata"
	"github.com/rhuss/odin/pkg/request"
	"github.com/rhuss/odin/pkg/uri"
)

// Describe visits the parsed URI of req left to right and returns the
// request descriptor.
func Describe(req *api.Request, info *uri.Info) (*request.Descriptor, error) {
	b := request.NewBuilder(req.Method, info).SetRequest(req)
	switch info.Kind {
	case uri.InfoService:
		b.SetKind(request.KindServiceDocument)
	case uri.InfoMetadata:
		b.SetKind(request.KindMetadata)
	case uri.InfoBatch:
		b.SetKind(request.KindBatch)
	case uri.InfoCrossJoin:
		b.SetKind(request.KindCrossJoin).SetCollection(true)
	case uri.InfoResource:
		v := &visitor{b: b, reg: info.Registry}
		for _, seg := range info.Segments {
			v.visit(seg)
			if v.unsupported {
				break
			}
		}
	default:
		b.SetKind(request.KindUnsupported)
	}
	return b.Build()
}

type visitor struct {
	b           *request.Builder
	reg         *metadata.Registry
	property    *edm.Property
	unsupported bool
}

func (v *visitor) hasStream(et *edm.EntityType) bool {
	return et != nil && v.reg != nil && v.reg.HasStream(et)
}

func (v *visitor) visit(seg *uri.Segment) {
	b := v.b
	switch seg.Kind {
	case uri.SegmentEntitySet:
		b.SetEntitySet(seg.EntitySet).
			SetEntityType(seg.EntityType, v.hasStream(seg.EntityType)).
			SetKeys(seg.Keys).
			SetCollection(seg.Collection).
			AppendPath(seg.Name + request.KeyPredicate(seg.Keys))
		v.entityOrSet(seg, seg.Name)

	case uri.SegmentSingleton:
		b.SetKind(request.KindSingleton).
			SetSingleton(seg.Singleton).
			SetEntityType(seg.EntityType, v.hasStream(seg.EntityType)).
			SetCollection(false).
			AppendPath(seg.Name).
			SetEntityID(seg.Name)

	case uri.SegmentNavigation:
		b.SetNavigation(seg.Navigation).
			SetEntitySet(seg.TargetSet).
			SetEntityType(seg.EntityType, v.hasStream(seg.EntityType)).
			SetKeys(seg.Keys).
			SetCollection(seg.Collection).
			AppendPath(seg.Name + request.KeyPredicate(seg.Keys))
		setName := ""
		if seg.TargetSet != nil {
			setName = seg.TargetSet.Name
		}
		v.entityOrSet(seg, setName)

	case uri.SegmentTypeCast:
		b.SetEntityType(seg.EntityType, v.hasStream(seg.EntityType)).
			AppendPath(seg.Name + request.KeyPredicate(seg.Keys))
		if len(seg.Keys) > 0 {
			b.SetKeys(seg.Keys).SetCollection(false)
			name := ""
			if seg.TargetSet != nil {
				name = seg.TargetSet.Name
			}
			v.entityOrSet(seg, name)
		}

	case uri.SegmentPrimitiveProperty, uri.SegmentComplexProperty:
		v.property = seg.Property
		b.SetKind(request.KindProperty).
			SetProperty(seg.Property, seg.ComplexType).
			SetCollection(seg.Collection).
			AppendPath(seg.Name)

	case uri.SegmentCount:
		b.SetKind(request.KindCount).AppendPath(seg.Name)

	case uri.SegmentRef:
		b.SetKind(request.KindReference).SetCollection(seg.Collection).AppendPath(seg.Name)

	case uri.SegmentValue:
		if b.Kind() == request.KindProperty && !v.property.IsStream() {
			b.SetKind(request.KindValue)
		} else {
			b.SetKind(request.KindMedia)
		}
		b.AppendPath(seg.Name)

	case uri.SegmentAction, uri.SegmentFunction:
		kind := request.KindAction
		if seg.Kind == uri.SegmentFunction {
			kind = request.KindFunction
		}
		b.SetKind(kind).
			SetOperation(seg).
			SetComplexType(seg.ComplexType).
			SetKeys(seg.Keys).
			SetCollection(seg.Collection).
			AppendPath(seg.Name + request.KeyPredicate(seg.Keys))
		if seg.EntityType != nil {
			b.SetEntityType(seg.EntityType, v.hasStream(seg.EntityType))
			if seg.TargetSet != nil {
				b.SetEntitySet(seg.TargetSet)
			}
		}

	default:
		// $root, $it, lambda segments and $all have no executor.
		v.unsupported = true
		b.SetKind(request.KindUnsupported)
	}
}

// entityOrSet sets the data kind after an entity set, navigation or keyed
// type cast. setName qualifies the canonical entity id.
func (v *visitor) entityOrSet(seg *uri.Segment, setName string) {
	if seg.Collection {
		v.b.SetKind(request.KindEntitySet)
		return
	}
	v.b.SetKind(request.KindEntity)
	if len(seg.Keys) > 0 && setName != "" {
		v.b.SetEntityID(setName + request.KeyPredicate(seg.Keys))
	}
}

// entityIDPath turns the $id of an $entity request into an escaped
// resource path below the service root.
func entityIDPath(id, serviceRoot string) (string, error) {
	rel, err := relativeID(id, serviceRoot)
	if err != nil {
		return "", err
	}
	return "/" + (&url.URL{Path: rel}).EscapedPath(), nil
}

// relativeID returns an entity id in canonical form relative to the
// service root ("Products(1)"). Absolute URLs and absolute paths must lie
// below the service root.
func relativeID(id, serviceRoot string) (string, error) {
	rel := id
	switch {
	case serviceRoot != "" && strings.HasPrefix(id, serviceRoot):
		rel = id[len(serviceRoot):]
	case strings.Contains(id, "://") || strings.HasPrefix(id, "/"):
		u, err := url.Parse(id)
		if err != nil {
			return "", api.NewURISyntaxError(api.KeySyntax, "malformed entity id "+id)
		}
		root, err := url.Parse(serviceRoot)
		if err != nil || (u.IsAbs() && u.Host != root.Host) || !strings.HasPrefix(u.Path, root.Path) {
			return "", api.NewURIError(api.KeyResourceNotFound, "entity id "+id+" is not below the service root")
		}
		rel = strings.TrimPrefix(u.Path, root.Path)
	}
	rel = strings.Trim(rel, "/")
	if rel == "" {
		return "", api.NewURIError(api.KeyResourceNotFound, "entity id "+id+" does not address an entity")
	}
	return rel, nil
}

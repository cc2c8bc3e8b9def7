package storage

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/rhuss/odin/pkg/api"
)

// Record is one persisted entity. Data holds the structural property
// values as an OData JSON object without control information.
type Record struct {
	// ID is the canonical entity id relative to the service root,
	// "Products(1)" or the name of a singleton.
	ID string

	// Set is the entity set or singleton the record belongs to.
	Set string

	ETag string
	Data []byte

	// Links maps a navigation property to the ids of the related records.
	Links map[string][]string

	// Media is the content of a media entity.
	Media     *api.Media
	MediaETag string

	// Streams holds the content of stream properties by name.
	Streams map[string]*api.Media

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Data = slices.Clone(r.Data)
	if r.Links != nil {
		c.Links = make(map[string][]string, len(r.Links))
		for k, v := range r.Links {
			c.Links[k] = slices.Clone(v)
		}
	}
	c.Media = cloneMedia(r.Media)
	if r.Streams != nil {
		c.Streams = maps.Clone(r.Streams)
		for k, v := range c.Streams {
			c.Streams[k] = cloneMedia(v)
		}
	}
	return &c
}

func cloneMedia(m *api.Media) *api.Media {
	if m == nil {
		return nil
	}
	return &api.Media{ContentType: m.ContentType, Data: slices.Clone(m.Data)}
}

// Store persists records. Every method is scoped by the tenant in ctx
// (TenantFromContext) and runs inside the transaction named by
// transport.TransactionFromContext when one is present.
type Store interface {
	// Get returns the record with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns the records of an entity set in insertion order.
	List(ctx context.Context, set string) ([]*Record, error)

	// Insert adds a record. It returns ErrConflict if the id is taken.
	Insert(ctx context.Context, rec *Record) error

	// Update replaces a record. A non-empty etag must equal the stored
	// ETag, otherwise ErrPreconditionFailed is returned.
	Update(ctx context.Context, rec *Record, etag string) error

	// Delete removes a record, with the same etag check as Update.
	Delete(ctx context.Context, id, etag string) error

	// Begin starts a transaction and returns its id.
	Begin(ctx context.Context) (string, error)

	// Commit makes the writes of a transaction visible. A transaction
	// that conflicts with a concurrent commit fails with ErrConflict.
	Commit(ctx context.Context, txID string) error

	// Rollback discards a transaction.
	Rollback(ctx context.Context, txID string) error

	// Name is the backend name used in metrics and logs.
	Name() string

	// Close releases the resources held by the store.
	Close() error
}

// Package memory provides an in-memory storage.Store for tests and
// lightweight deployments. Records are lost when the process restarts.
//
// Transactions work on a private copy of the tenant's records taken at
// Begin. Commit publishes the records the transaction wrote unless one of
// them changed since Begin, in which case it fails with
// storage.ErrConflict.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/rhuss/odin/pkg/storage"
	"github.com/rhuss/odin/pkg/transport"
)

// entry holds a stored record and its insertion order.
type entry struct {
	rec *storage.Record
	seq uint64
}

// table is the record set of one tenant. Entries are never modified in
// place; a write replaces the entry.
type table struct {
	entries map[string]*entry
}

func newTable() *table {
	return &table{entries: make(map[string]*entry)}
}

func (t *table) clone() *table {
	c := &table{entries: make(map[string]*entry, len(t.entries))}
	for id, e := range t.entries {
		c.entries[id] = e
	}
	return c
}

// tx is an open transaction.
type tx struct {
	tenant  string
	base    *table
	work    *table
	written map[string]bool
}

// Store is an in-memory storage.Store.
type Store struct {
	mu      sync.RWMutex
	tenants map[string]*table
	txs     map[string]*tx
	seq     uint64
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		tenants: make(map[string]*table),
		txs:     make(map[string]*tx),
	}
}

// Name implements storage.Store.
func (s *Store) Name() string { return "memory" }

// Close implements storage.Store.
func (s *Store) Close() error { return nil }

// view returns the table an operation in ctx works on, and the
// transaction it belongs to. The caller holds s.mu; write reports whether
// it is held exclusively.
func (s *Store) view(ctx context.Context, write bool) (*table, *tx, error) {
	tenant := storage.TenantFromContext(ctx)
	if id := transport.TransactionFromContext(ctx); id != "" {
		t, ok := s.txs[id]
		if !ok || t.tenant != tenant {
			return nil, nil, storage.ErrTxNotFound
		}
		return t.work, t, nil
	}
	tbl, ok := s.tenants[tenant]
	if !ok {
		if !write {
			return newTable(), nil, nil
		}
		tbl = newTable()
		s.tenants[tenant] = tbl
	}
	return tbl, nil, nil
}

func (t *tx) wrote(id string) {
	if t != nil {
		t.written[id] = true
	}
}

// Get implements storage.Store.
func (s *Store) Get(ctx context.Context, id string) (*storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tbl, _, err := s.view(ctx, false)
	if err != nil {
		return nil, err
	}
	e, ok := tbl.entries[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return e.rec.Clone(), nil
}

// List implements storage.Store.
func (s *Store) List(ctx context.Context, set string) ([]*storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tbl, _, err := s.view(ctx, false)
	if err != nil {
		return nil, err
	}
	var matched []*entry
	for _, e := range tbl.entries {
		if e.rec.Set == set {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })

	out := make([]*storage.Record, len(matched))
	for i, e := range matched {
		out[i] = e.rec.Clone()
	}
	return out, nil
}

// Insert implements storage.Store.
func (s *Store) Insert(ctx context.Context, rec *storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tbl, t, err := s.view(ctx, true)
	if err != nil {
		return err
	}
	if _, exists := tbl.entries[rec.ID]; exists {
		return storage.ErrConflict
	}
	s.seq++
	tbl.entries[rec.ID] = &entry{rec: rec.Clone(), seq: s.seq}
	t.wrote(rec.ID)
	return nil
}

// Update implements storage.Store.
func (s *Store) Update(ctx context.Context, rec *storage.Record, etag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tbl, t, err := s.view(ctx, true)
	if err != nil {
		return err
	}
	e, ok := tbl.entries[rec.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if etag != "" && e.rec.ETag != etag {
		return storage.ErrPreconditionFailed
	}
	c := rec.Clone()
	c.CreatedAt = e.rec.CreatedAt
	tbl.entries[rec.ID] = &entry{rec: c, seq: e.seq}
	t.wrote(rec.ID)
	return nil
}

// Delete implements storage.Store.
func (s *Store) Delete(ctx context.Context, id, etag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tbl, t, err := s.view(ctx, true)
	if err != nil {
		return err
	}
	e, ok := tbl.entries[id]
	if !ok {
		return storage.ErrNotFound
	}
	if etag != "" && e.rec.ETag != etag {
		return storage.ErrPreconditionFailed
	}
	delete(tbl.entries, id)
	t.wrote(id)
	return nil
}

// Begin implements storage.Store.
func (s *Store) Begin(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant := storage.TenantFromContext(ctx)
	tbl, ok := s.tenants[tenant]
	if !ok {
		tbl = newTable()
		s.tenants[tenant] = tbl
	}
	id := uuid.NewString()
	s.txs[id] = &tx{tenant: tenant, base: tbl.clone(), work: tbl.clone(), written: make(map[string]bool)}
	return id, nil
}

// Commit implements storage.Store. A conflicting transaction stays open
// until it is rolled back.
func (s *Store) Commit(_ context.Context, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.txs[txID]
	if !ok {
		return storage.ErrTxNotFound
	}
	cur := s.tenants[t.tenant]
	for id := range t.written {
		if cur.entries[id] != t.base.entries[id] {
			return storage.ErrConflict
		}
	}
	for id := range t.written {
		if e, ok := t.work.entries[id]; ok {
			cur.entries[id] = e
		} else {
			delete(cur.entries, id)
		}
	}
	delete(s.txs, txID)
	return nil
}

// Rollback implements storage.Store.
func (s *Store) Rollback(_ context.Context, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.txs[txID]; !ok {
		return storage.ErrTxNotFound
	}
	delete(s.txs, txID)
	return nil
}

// Len returns the number of records of the tenant in ctx.
func (s *Store) Len(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if tbl, ok := s.tenants[storage.TenantFromContext(ctx)]; ok {
		return len(tbl.entries)
	}
	return 0
}

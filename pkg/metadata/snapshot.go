package metadata

import (
	"sync"
	"sync/atomic"
)

// Snapshot holds the registry currently in service.
//
// Readers take the published registry with Load and keep using it for the
// whole request. Writers build a complete new registry and publish it with
// Store; a published registry is never mutated.
type Snapshot struct {
	mu      sync.Mutex
	current atomic.Pointer[Registry]
	version atomic.Uint64
}

// NewSnapshot returns a snapshot publishing r.
func NewSnapshot(r *Registry) *Snapshot {
	s := &Snapshot{}
	s.Store(r)
	return s
}

// Load returns the published registry.
func (s *Snapshot) Load() *Registry {
	return s.current.Load()
}

// Store publishes r.
func (s *Snapshot) Store(r *Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Store(r)
	s.version.Add(1)
}

// Reload builds a registry with build and publishes it only if build
// succeeds. The previous registry stays in service on error.
func (s *Snapshot) Reload(build func() (*Registry, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := build()
	if err != nil {
		return err
	}
	s.current.Store(r)
	s.version.Add(1)
	return nil
}

// Version counts publications; it starts at 1 after NewSnapshot.
func (s *Snapshot) Version() uint64 {
	return s.version.Load()
}

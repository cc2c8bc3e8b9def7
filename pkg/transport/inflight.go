package transport

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InFlightRegistry tracks requests still being processed so shutdown can
// cancel and report whatever outlives the grace period. It is safe for
// concurrent use.
type InFlightRegistry struct {
	mu      sync.Mutex
	entries map[string]inflight
	now     func() time.Time
}

type inflight struct {
	target  string
	started time.Time
	cancel  context.CancelFunc
}

// Straggler describes a request cancelled by CancelAll.
type Straggler struct {
	RequestID string
	Target    string
	Age       time.Duration
}

// NewInFlightRegistry returns an empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{entries: map[string]inflight{}, now: time.Now}
}

// Register records a request. target is a short description such as
// "GET /Products(1)".
func (r *InFlightRegistry) Register(id, target string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = inflight{target: target, started: r.now(), cancel: cancel}
}

// Remove forgets a completed request without cancelling it.
func (r *InFlightRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// CancelAll cancels every registered request and returns them, oldest
// first.
func (r *InFlightRegistry) CancelAll() []Straggler {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	out := make([]Straggler, 0, len(r.entries))
	for id, e := range r.entries {
		e.cancel()
		out = append(out, Straggler{RequestID: id, Target: e.target, Age: now.Sub(e.started)})
		delete(r.entries, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Age > out[j].Age })
	return out
}

// Len returns the number of requests in flight.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

package websocket

import (
	"context"
	"sync"

	"github.com/samber/lo"
)

// Handle is one live connection as seen by the hub.
type Handle interface {
	ID() string
	// Send queues frame for the remote peer. It returns once the frame is
	// accepted or ctx is done, whichever happens first.
	Send(ctx context.Context, frame []byte) error
	// Close marks the handle dead. It is safe to call more than once.
	Close() error
}

// Registry is the set of live handles keyed by handle id.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]Handle
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]Handle)}
}

// Register adds h to the live set.
func (r *Registry) Register(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handles[h.ID()] = h
}

// Deregister removes h and reports whether it was present. Removing an absent
// handle, or one already replaced under the same id, is a no-op.
func (r *Registry) Deregister(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.handles[h.ID()]
	if !ok || current != h {
		return false
	}
	delete(r.handles, h.ID())
	return true
}

// Snapshot returns a point-in-time copy of the live set.
func (r *Registry) Snapshot() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Values(r.handles)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.handles)
}

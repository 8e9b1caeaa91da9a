package chatclient

import (
	"carchat/backend/internal/models"
	"sync"
)

// Listener receives every decoded inbound envelope.
type Listener func(models.Envelope)

type listenerEntry struct {
	fn     Listener
	active bool
}

// Registry fans decoded envelopes out to registered listeners in registration order.
type Registry struct {
	mu      sync.RWMutex
	entries []*listenerEntry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers fn and returns a function that removes exactly this registration.
// The returned function is safe to call more than once.
func (r *Registry) Add(fn Listener) (unsubscribe func()) {
	entry := &listenerEntry{fn: fn, active: true}

	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if !entry.active {
			return
		}
		entry.active = false
		for i, e := range r.entries {
			if e == entry {
				r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
				break
			}
		}
	}
}

// Notify delivers env to a snapshot of the current listeners. Listeners added
// during the pass are skipped; listeners removed during the pass are not called
// once their removal has been observed.
func (r *Registry) Notify(env models.Envelope) {
	r.mu.RLock()
	snapshot := make([]*listenerEntry, len(r.entries))
	copy(snapshot, r.entries)
	r.mu.RUnlock()

	for _, entry := range snapshot {
		r.mu.RLock()
		active := entry.active
		r.mu.RUnlock()
		if active {
			entry.fn(env)
		}
	}
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

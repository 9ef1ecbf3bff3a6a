// Package registry is the process-wide index of active voice sessions,
// keyed by the carrier's call-control id. The webhook router uses it to
// deliver out-of-band call events (hangup, machine detection) to the
// session that owns the call.
package registry

import (
	"fmt"
	"sync"
)

// Registry maps carrier call-control ids to live sessions. All methods are
// safe for concurrent use. The zero value is not usable; call [New].
type Registry[T any] struct {
	mu sync.RWMutex
	m  map[string]T
}

// New creates an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{m: make(map[string]T)}
}

// Add registers v under callID. Registering a call id that is already
// present is a programming error upstream (one media WebSocket per call) and
// is rejected.
func (r *Registry[T]) Add(callID string, v T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.m[callID]; exists {
		return fmt.Errorf("registry: call %s already registered", callID)
	}
	r.m[callID] = v
	return nil
}

// Get returns the session for callID, if registered.
func (r *Registry[T]) Get(callID string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.m[callID]
	return v, ok
}

// Remove drops callID from the index. Removing an absent id is a no-op.
func (r *Registry[T]) Remove(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, callID)
}

// Len returns the number of registered sessions.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

// Range calls f for each registered session until f returns false. The
// snapshot is taken under the read lock; f runs without it, so f may call
// back into the registry.
func (r *Registry[T]) Range(f func(callID string, v T) bool) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.m))
	vals := make([]T, 0, len(r.m))
	for id, v := range r.m {
		ids = append(ids, id)
		vals = append(vals, v)
	}
	r.mu.RUnlock()

	for i := range ids {
		if !f(ids[i], vals[i]) {
			return
		}
	}
}

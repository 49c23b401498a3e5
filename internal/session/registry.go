package session

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
)

var (
	// ErrNotFound is returned when a session id is not registered.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidTransition is returned when a lifecycle event arrives out of order.
	ErrInvalidTransition = errors.New("invalid session transition")
)

// Registry is a concurrency-safe mapping from session id to session metadata.
// Entries handed out are copies; callers mutate the registry only through its methods.
type Registry struct {
	mu    sync.RWMutex
	store Store
}

// NewRegistry constructs a registry with a default in-memory store.
func NewRegistry() *Registry {
	return NewRegistryWithStore(NewInMemoryStore())
}

// NewRegistryWithStore constructs a registry that uses the given Store.
func NewRegistryWithStore(store Store) *Registry {
	return &Registry{store: store}
}

// Add registers s. A session with the same id is overwritten.
func (r *Registry) Add(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.State == "" {
		s.State = StateIdle
	}
	s.Args = maps.Clone(s.Args)
	r.store.Set(&s)
}

// Remove deletes the session and returns the entry that was registered.
func (r *Registry) Remove(id ID) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.store.Get(id)
	if !ok {
		return Session{}, false
	}
	r.store.Delete(id)
	return *st, true
}

// Get returns a copy of the session registered under id.
func (r *Registry) Get(id ID) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.store.Get(id)
	if !ok {
		return Session{}, false
	}
	return *st, true
}

// Transition moves the session to next, validating the lifecycle order.
func (r *Registry) Transition(id ID, next State) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.store.Get(id)
	if !ok {
		return Session{}, ErrNotFound
	}
	if !st.State.CanTransition(next) {
		return *st, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, st.State, next)
	}
	st.State = next
	return *st, nil
}

// List returns copies of all sessions ordered by start time, then id.
func (r *Registry) List() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.listLocked()
}

// InState returns the sessions currently in state s, ordered like List.
func (r *Registry) InState(s State) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.listLocked()
	out := all[:0]
	for _, st := range all {
		if st.State == s {
			out = append(out, st)
		}
	}
	return out
}

// IsEmpty reports whether no session is registered.
func (r *Registry) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.store.List()) == 0
}

// Clear removes every session and returns what was registered.
func (r *Registry) Clear() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.listLocked()
	for _, st := range all {
		r.store.Delete(st.ID)
	}
	return all
}

// listLocked builds a sorted copy of the store contents.
// Caller must hold r.mu.
func (r *Registry) listLocked() []Session {
	entries := r.store.List()
	out := make([]Session, 0, len(entries))
	for _, st := range entries {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

package relay

import (
	"errors"
	"sync"
)

// ErrCodeInUse indicates a session create collided with a live code.
// The caller mints a fresh code and retries.
var ErrCodeInUse = errors.New("session code already registered")

// Registry is the process-global mapping from session code to session.
// Create and Delete are atomic; lookups are case-sensitive on the
// canonical uppercase code — the dispatcher normalizes inbound codes
// before querying.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Create admits a session under its code. Returns ErrCodeInUse when a
// live session already owns the code.
func (r *Registry) Create(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.Code]; exists {
		return ErrCodeInUse
	}
	r.sessions[s.Code] = s
	return nil
}

// Get looks up a session by canonical code.
func (r *Registry) Get(code string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[code]
	return s, ok
}

// Delete removes a session by code. Reports whether it was present.
func (r *Registry) Delete(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[code]; !ok {
		return false
	}
	delete(r.sessions, code)
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the current session set. The slice is fresh; the
// pointed-to sessions are shared and remain guarded by the hub lock.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

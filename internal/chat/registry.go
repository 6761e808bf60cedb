package chat

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// SessionFactory builds a session for a freshly allocated id.
type SessionFactory func(id string) *Session

// Registry holds the live sessions of a server process.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	newID    func() (string, error)
	factory  SessionFactory
}

func NewRegistry(newID func() (string, error), factory SessionFactory) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		newID:    newID,
		factory:  factory,
	}
}

func (r *Registry) Create() (*Session, error) {
	if r.newID == nil || r.factory == nil {
		return nil, errors.New("chat: registry is not initialised")
	}
	id, err := r.newID()
	if err != nil {
		return nil, err
	}
	s := r.factory(id)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = s
	return s, nil
}

func (r *Registry) Get(id string) (*Session, bool) {
	id = strings.TrimSpace(id)
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	return s, ok
}

// Remove closes and drops an idle session. A session with a turn in flight
// is kept. Callers still holding the session get ErrClosed from Submit.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || !s.close() {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Prune drops idle sessions whose last message is older than cutoff and
// returns how many were removed.
func (r *Registry) Prune(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if !s.LastActivity().Before(cutoff) || !s.close() {
			continue
		}
		delete(r.sessions, id)
		n++
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

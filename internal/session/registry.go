package session

import (
	"context"
	"sort"
	"sync"
)

// Info is the listing projection of a session.
type Info struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// Registry is the session lifecycle contract.
//
// Sessions are single-writer; Save has last-write-wins semantics. Concurrent
// sessions are fully independent.
type Registry interface {
	// GetOrCreate returns the session for id, creating it if absent. An empty
	// id always creates a fresh session.
	GetOrCreate(ctx context.Context, id string) (*Session, error)

	// Save persists the session.
	Save(ctx context.Context, s *Session) error

	// Load returns the stored session or ErrNotFound.
	Load(ctx context.Context, id string) (*Session, error)

	// List returns known sessions, most recently updated first.
	List(ctx context.Context) ([]Info, error)

	// Delete removes the session or returns ErrNotFound.
	Delete(ctx context.Context, id string) error
}

// MemoryRegistry is an in-process Registry for tests and single-process use.
type MemoryRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryRegistry creates an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{sessions: make(map[string]*Session)}
}

// GetOrCreate implements Registry.
func (r *MemoryRegistry) GetOrCreate(_ context.Context, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id != "" {
		if s, ok := r.sessions[id]; ok {
			return s, nil
		}
	}
	s := New(id)
	r.sessions[s.ID] = s
	return s, nil
}

// Save implements Registry.
func (r *MemoryRegistry) Save(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return nil
}

// Load implements Registry.
func (r *MemoryRegistry) Load(_ context.Context, id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// List implements Registry.
func (r *MemoryRegistry) List(_ context.Context) ([]Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, Info{ID: s.ID, Title: s.Title})
	}
	return infos, nil
}

// Delete implements Registry.
func (r *MemoryRegistry) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

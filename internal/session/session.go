// Package session manages conversation sessions and their registry.
//
// A Session owns the conversation history and the set of sources already
// ingested for it. Sessions are owned exclusively by a Registry: components
// obtain them through GetOrCreate/Load and persist them through Save, never
// holding mutable references across turns.
//
// The vector-store namespace is a pure function of the session ID, so two
// sessions can never observe each other's ingested documents.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the requested session does not exist.
// Checked with errors.Is().
var ErrNotFound = errors.New("session not found")

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn entry.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is one logical conversation. The zero value is not useful; use
// New or a Registry.
//
// Session methods are safe for concurrent use.
type Session struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time

	mu       sync.RWMutex
	messages []Message
	sources  map[string]struct{}
	srcOrder []string
}

// New creates a session. An empty id generates a fresh one.
func New(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		sources:   make(map[string]struct{}),
	}
}

// Namespace derives the vector-store partition key for a session ID. Pure
// function: no registry round-trip is ever needed to resolve it.
func Namespace(sessionID string) string {
	return "session-" + sessionID
}

// Namespace returns the session's vector-store partition key.
func (s *Session) Namespace() string {
	return Namespace(s.ID)
}

// Append adds a message to the history. History is append-only within a
// turn and never reordered.
func (s *Session) Append(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, Message{
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	s.UpdatedAt = time.Now().UTC()
}

// Messages returns a copy of the history.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// setMessages replaces the history. Used by stores when loading.
func (s *Session) setMessages(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make([]Message, len(msgs))
	copy(s.messages, msgs)
}

// AddSource registers a source identifier as ingested. Returns false if the
// identifier was already registered, making ingestion idempotent.
func (s *Session) AddSource(origin string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[origin]; ok {
		return false
	}
	s.sources[origin] = struct{}{}
	s.srcOrder = append(s.srcOrder, origin)
	s.UpdatedAt = time.Now().UTC()
	return true
}

// HasSource reports whether origin was already ingested for this session.
func (s *Session) HasSource(origin string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sources[origin]
	return ok
}

// Sources returns the ingested source identifiers in registration order.
func (s *Session) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.srcOrder))
	copy(out, s.srcOrder)
	return out
}

// HasDocuments reports whether any source has been ingested. The retrieval
// orchestrator uses this to decide if a document lookup is worth running.
func (s *Session) HasDocuments() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.srcOrder) > 0
}

// setSources replaces the source set. Used by stores when loading.
func (s *Session) setSources(origins []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = make(map[string]struct{}, len(origins))
	s.srcOrder = make([]string, 0, len(origins))
	for _, o := range origins {
		if _, ok := s.sources[o]; ok {
			continue
		}
		s.sources[o] = struct{}{}
		s.srcOrder = append(s.srcOrder, o)
	}
}

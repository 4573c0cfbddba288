package session

import (
	"errors"
	"sync"
)

// ErrDuplicateSession is returned by Insert when a session with the same
// id already exists. At most one session per id may exist at any time.
var ErrDuplicateSession = errors.New("session: duplicate session id")

// Store is the registry of active sessions. Implementations must support
// safe concurrent insertion, removal, and lookup by id; it is the only
// process-wide mutable structure in the pipeline.
type Store interface {
	// Insert registers a new session, atomically rejecting duplicates.
	Insert(s *Session) error
	// Get looks up a session by id.
	Get(id string) (*Session, bool)
	// Remove deletes the session. Removing an absent id is a no-op.
	Remove(id string)
	// Len returns the number of active sessions.
	Len() int
}

// MemoryStore is the in-process Store implementation.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore returns an empty in-memory registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Insert(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; exists {
		return ErrDuplicateSession
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *MemoryStore) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

package session

import "sync"

// Store holds sessions by key. MemoryStore is the only implementation; a
// shared store is needed before running more than one instance.
type Store interface {
	Get(key string) (*Session, bool)
	// PutIfAbsent stores s unless key is taken, returning the stored session.
	PutIfAbsent(s *Session) *Session
	Delete(key string) bool
	Len() int
	Range(fn func(*Session) bool)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Get(key string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	return s, ok
}

func (m *MemoryStore) PutIfAbsent(s *Session) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[s.ID]; ok {
		return existing
	}
	m.sessions[s.ID] = s
	return s
}

func (m *MemoryStore) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[key]; !ok {
		return false
	}
	delete(m.sessions, key)
	return true
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Range calls fn for each session until fn returns false. The set is
// copied first so fn may call back into the store.
func (m *MemoryStore) Range(fn func(*Session) bool) {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	for _, s := range all {
		if !fn(s) {
			return
		}
	}
}

package session

// Store is the persistence abstraction for session entries.
// The Registry uses Store for all reads and writes and serializes access to it.
type Store interface {
	Get(id ID) (*Session, bool)
	Set(s *Session)
	Delete(id ID)
	List() []*Session
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	sessions map[ID]*Session
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[ID]*Session),
	}
}

// Get implements Store.Get.
func (s *InMemoryStore) Get(id ID) (*Session, bool) {
	st, ok := s.sessions[id]
	return st, ok
}

// Set implements Store.Set. An existing entry with the same ID is replaced.
func (s *InMemoryStore) Set(st *Session) {
	s.sessions[st.ID] = st
}

// Delete implements Store.Delete.
func (s *InMemoryStore) Delete(id ID) {
	delete(s.sessions, id)
}

// List implements Store.List.
func (s *InMemoryStore) List() []*Session {
	out := make([]*Session, 0, len(s.sessions))
	for _, st := range s.sessions {
		out = append(out, st)
	}
	return out
}

package playback

// Store is the persistence abstraction for sessions. The Repository
// serializes access; implementations need not be concurrency-safe.
type Store interface {
	GetSession(id SessionID) (*Session, bool)
	SetSession(s *Session)
	DeleteSession(id SessionID)
	ListSessionIDs() []SessionID
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	sessions map[SessionID]*Session
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[SessionID]*Session)}
}

func (s *InMemoryStore) GetSession(id SessionID) (*Session, bool) {
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *InMemoryStore) SetSession(sess *Session) {
	s.sessions[sess.ID] = sess
}

func (s *InMemoryStore) DeleteSession(id SessionID) {
	delete(s.sessions, id)
}

func (s *InMemoryStore) ListSessionIDs() []SessionID {
	ids := make([]SessionID, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

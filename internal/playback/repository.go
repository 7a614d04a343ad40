package playback

import (
	"errors"
	"sort"
	"sync"
)

// Repository is the concurrency-safe registry of live sessions.
type Repository interface {
	// Add registers sess. It fails with ErrSessionExists for a duplicate ID.
	Add(sess *Session) error

	// Get returns the session with the given ID.
	Get(id SessionID) (*Session, bool)

	// Remove unregisters and returns the session. Removing an unknown ID
	// returns ok false.
	Remove(id SessionID) (*Session, bool)

	// List returns every session ordered by creation time.
	List() []*Session

	// Count returns the number of registered sessions. Used for metrics.
	Count() int
}

var (
	// ErrSessionNotFound is returned for operations on an unknown session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when adding a session twice.
	ErrSessionExists = errors.New("session already exists")
)

// InMemoryRepository implements Repository on top of a Store.
type InMemoryRepository struct {
	mu    sync.RWMutex
	store Store
}

// NewInMemoryRepository constructs a repository with a default in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore constructs a repository over store.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	return &InMemoryRepository{store: store}
}

func (r *InMemoryRepository) Add(sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.store.GetSession(sess.ID); exists {
		return ErrSessionExists
	}
	r.store.SetSession(sess)
	return nil
}

func (r *InMemoryRepository) Get(id SessionID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.GetSession(id)
}

func (r *InMemoryRepository) Remove(id SessionID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.store.GetSession(id)
	if !ok {
		return nil, false
	}
	r.store.DeleteSession(id)
	return sess, true
}

func (r *InMemoryRepository) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.store.ListSessionIDs()
	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		if sess, ok := r.store.GetSession(id); ok {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *InMemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.store.ListSessionIDs())
}

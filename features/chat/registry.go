package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Session struct {
	ID           string    `json:"id"`
	CollectionID string    `json:"collection_id"`
	Model        string    `json:"model,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActive   time.Time `json:"last_active"`
	Messages     []Message `json:"messages"`
}

func (s *Session) snapshot() *Session {
	cp := *s
	cp.Messages = append([]Message{}, s.Messages...)
	return &cp
}

// Registry is an in-memory session store owned by the chat service. Sessions
// expire after ttl of inactivity; when full, the registry evicts the least
// recently active session before admitting a new one.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

func NewRegistry(capacity int, ttl time.Duration) *Registry {
	if capacity < 1 {
		capacity = 1000
	}
	return &Registry{
		sessions: make(map[string]*Session),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (r *Registry) Create(collectionID, model string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictExpiredLocked()
	if len(r.sessions) >= r.capacity {
		r.evictOldestLocked()
	}

	now := r.now()
	s := &Session{
		ID:           uuid.New().String(),
		CollectionID: collectionID,
		Model:        model,
		CreatedAt:    now,
		LastActive:   now,
		Messages:     []Message{},
	}
	r.sessions[s.ID] = s
	return s.snapshot()
}

// Get returns a snapshot of the session; only Append mutates the live record,
// so callers can read the returned history without holding the lock.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if r.ttl > 0 && r.now().Sub(s.LastActive) > r.ttl {
		delete(r.sessions, id)
		return nil, ErrSessionNotFound
	}
	s.LastActive = r.now()
	return s.snapshot(), nil
}

func (r *Registry) Append(id string, msgs ...Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.Messages = append(s.Messages, msgs...)
	s.LastActive = r.now()
	return nil
}

func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictExpiredLocked()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.snapshot())
	}
	return out
}

func (r *Registry) evictExpiredLocked() {
	if r.ttl <= 0 {
		return
	}
	cutoff := r.now().Add(-r.ttl)
	for id, s := range r.sessions {
		if s.LastActive.Before(cutoff) {
			delete(r.sessions, id)
		}
	}
}

func (r *Registry) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, s := range r.sessions {
		if oldestID == "" || s.LastActive.Before(oldest) {
			oldestID = id
			oldest = s.LastActive
		}
	}
	if oldestID != "" {
		delete(r.sessions, oldestID)
	}
}

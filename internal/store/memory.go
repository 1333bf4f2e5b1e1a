package store

import (
	"context"
	"sync"
	"time"

	"github.com/ManuelEspejo/DreamDX-AI/internal/model/dream"
)

// memoryStore implements Store using an in-memory map with optimistic
// locking. Sessions are deep-copied on the way in and out so the CAS on
// Version cannot be bypassed through shared pointers.
type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*dream.Session
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		sessions: make(map[string]*dream.Session),
	}
}

// Create implements Store.
func (s *memoryStore) Create(ctx context.Context, sess *dream.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; exists {
		return ErrAlreadyExists
	}

	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	sess.Version = 1

	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// Get implements Store.
func (s *memoryStore) Get(ctx context.Context, id string) (*dream.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[id]
	if !exists {
		return nil, nil
	}
	return sess.Clone(), nil
}

// Update implements Store.
func (s *memoryStore) Update(ctx context.Context, sess *dream.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.sessions[sess.ID]
	if !exists {
		return ErrNotFound
	}

	if stored.Version != sess.Version {
		return ErrVersionConflict
	}

	sess.Version++
	sess.UpdatedAt = time.Now().UTC()

	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// ListByOwner implements Store.
func (s *memoryStore) ListByOwner(ctx context.Context, ownerID string) ([]*dream.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []*dream.Session
	for _, sess := range s.sessions {
		if sess.OwnerID == ownerID {
			sessions = append(sessions, sess.Clone())
		}
	}
	return sessions, nil
}

// Delete implements Store.
func (s *memoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// Close implements Store.
func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = nil
	return nil
}

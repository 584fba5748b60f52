package auth

import (
	"context"
	"sync"
	"time"
)

// InMemorySessionStore keeps sessions in process memory. Used by tests and when running
// without a database.
type InMemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]Session)}
}

func (s *InMemorySessionStore) Save(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.TokenHash] = session
	return nil
}

func (s *InMemorySessionStore) Find(_ context.Context, tokenHash string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[tokenHash]; ok {
		return session, nil
	}
	return Session{}, ErrSessionNotFound
}

// Delete reports ErrSessionNotFound when the session was already gone, matching the
// PostgreSQL store so that rotation races behave the same in both.
func (s *InMemorySessionStore) Delete(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[tokenHash]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, tokenHash)
	return nil
}

func (s *InMemorySessionStore) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for hash, session := range s.sessions {
		if session.ExpiresAt.Before(cutoff) {
			delete(s.sessions, hash)
			removed++
		}
	}
	return removed, nil
}

// Has reports whether the raw refresh token maps to a stored session.
func (s *InMemorySessionStore) Has(refreshToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[HashRefreshToken(refreshToken)]
	return ok
}

package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps sessions in memory. Intended for tests and
// single-process development setups.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[sessionKey]*Session
}

type sessionKey struct {
	jti string
	app string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[sessionKey]*Session)}
}

// Track creates the session on first sight and advances last_seen_at on
// every later call.
func (s *MemoryStore) Track(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey{jti: sess.JTI, app: sess.AppName}
	if existing, ok := s.sessions[key]; ok {
		existing.LastSeenAt = sess.LastSeenAt
		return nil
	}

	copied := *sess
	copied.EndedAt = nil
	s.sessions[key] = &copied
	return nil
}

// ListActiveForPrincipal returns the principal's open sessions, most
// recently active first.
func (s *MemoryStore) ListActiveForPrincipal(ctx context.Context, principalID int64) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*Session, 0)
	for _, sess := range s.sessions {
		if sess.PrincipalID == principalID && sess.Active() {
			copied := *sess
			sessions = append(sessions, &copied)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastSeenAt.After(sessions[j].LastSeenAt)
	})
	return sessions, nil
}

// EndAllForJTI closes the token's open sessions
func (s *MemoryStore) EndAllForJTI(ctx context.Context, jti string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ended int64
	for key, sess := range s.sessions {
		if key.jti == jti && sess.Active() {
			t := at
			sess.EndedAt = &t
			ended++
		}
	}
	return ended, nil
}

// EndAllForPrincipal closes the principal's open sessions
func (s *MemoryStore) EndAllForPrincipal(ctx context.Context, principalID int64, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ended int64
	for _, sess := range s.sessions {
		if sess.PrincipalID == principalID && sess.Active() {
			t := at
			sess.EndedAt = &t
			ended++
		}
	}
	return ended, nil
}

// DeleteEndedBefore removes sessions closed before the cutoff
func (s *MemoryStore) DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key, sess := range s.sessions {
		if sess.EndedAt != nil && sess.EndedAt.Before(cutoff) {
			delete(s.sessions, key)
			deleted++
		}
	}
	return deleted, nil
}

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

package token

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps token records in memory. Intended for tests and
// single-process development setups.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Create inserts a new token record
func (s *MemoryStore) Create(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *rec
	s.records[rec.JTI] = &copied
	return nil
}

// Get returns the record for the given jti
func (s *MemoryStore) Get(ctx context.Context, jti string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[jti]
	if !ok {
		return nil, ErrRecordNotFound
	}
	copied := *rec
	return &copied, nil
}

// Touch updates the record's last-used timestamp
func (s *MemoryStore) Touch(ctx context.Context, jti string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[jti]; ok {
		t := at
		rec.LastUsedAt = &t
	}
	return nil
}

// Revoke marks the record revoked
func (s *MemoryStore) Revoke(ctx context.Context, jti, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jti]
	if !ok || rec.IsRevoked {
		return false, nil
	}
	s.revokeLocked(rec, reason, at)
	return true, nil
}

// RevokeAllForPrincipal revokes every unrevoked record for the principal
func (s *MemoryStore) RevokeAllForPrincipal(ctx context.Context, principalID int64, reason string, at time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jtis := make([]string, 0)
	for _, rec := range s.records {
		if rec.PrincipalID == principalID && !rec.IsRevoked {
			s.revokeLocked(rec, reason, at)
			jtis = append(jtis, rec.JTI)
		}
	}
	sort.Strings(jtis)
	return jtis, nil
}

func (s *MemoryStore) revokeLocked(rec *Record, reason string, at time.Time) {
	rec.IsActive = false
	rec.IsRevoked = true
	t := at
	rec.RevokedAt = &t
	rec.RevocationReason = reason
}

// ListActiveForPrincipal returns the principal's live records, newest first
func (s *MemoryStore) ListActiveForPrincipal(ctx context.Context, principalID int64, now time.Time) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]*Record, 0)
	for _, rec := range s.records {
		if rec.PrincipalID == principalID && rec.Valid(now) {
			copied := *rec
			records = append(records, &copied)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].IssuedAt.After(records[j].IssuedAt)
	})
	return records, nil
}

// DeleteExpiredBefore removes records whose expiry precedes the cutoff
func (s *MemoryStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for jti, rec := range s.records {
		if rec.ExpiresAt.Before(cutoff) {
			delete(s.records, jti)
			deleted++
		}
	}
	return deleted, nil
}

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

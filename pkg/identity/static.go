package identity

import (
	"context"
	"crypto/subtle"
	"sync"
)

// StaticProvider is an in-memory Provider for tests and development mode.
type StaticProvider struct {
	mu         sync.RWMutex
	principals map[int64]*Principal
	passwords  map[string]string // username -> password
	byUsername map[string]int64
	perms      map[int64]map[string]bool
}

// NewStaticProvider creates an empty in-memory provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		principals: make(map[int64]*Principal),
		passwords:  make(map[string]string),
		byUsername: make(map[string]int64),
		perms:      make(map[int64]map[string]bool),
	}
}

// Add registers a principal with its password and permission flags.
func (p *StaticProvider) Add(principal Principal, password string, perms map[string]bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	copied := principal
	p.principals[principal.ID] = &copied
	p.passwords[principal.Username] = password
	p.byUsername[principal.Username] = principal.ID
	permsCopy := make(map[string]bool, len(perms))
	for k, v := range perms {
		permsCopy[k] = v
	}
	p.perms[principal.ID] = permsCopy
}

// SetPermissions replaces a principal's permission flags. Used by tests to
// verify that issued tokens keep their snapshot.
func (p *StaticProvider) SetPermissions(id int64, perms map[string]bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	permsCopy := make(map[string]bool, len(perms))
	for k, v := range perms {
		permsCopy[k] = v
	}
	p.perms[id] = permsCopy
}

// Remove deletes a principal, simulating account deletion.
func (p *StaticProvider) Remove(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if principal, ok := p.principals[id]; ok {
		delete(p.byUsername, principal.Username)
		delete(p.passwords, principal.Username)
	}
	delete(p.principals, id)
	delete(p.perms, id)
}

// Authenticate verifies the username/password pair.
func (p *StaticProvider) Authenticate(ctx context.Context, creds Credentials) (*Principal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	password, ok := p.passwords[creds.Username]
	if !ok || subtle.ConstantTimeCompare([]byte(password), []byte(creds.Password)) != 1 {
		return nil, ErrInvalidCredentials
	}
	principal := p.principals[p.byUsername[creds.Username]]
	if !principal.IsActive {
		return nil, ErrPrincipalInactive
	}
	copied := *principal
	return &copied, nil
}

// Lookup resolves a principal by ID.
func (p *StaticProvider) Lookup(ctx context.Context, id int64) (*Principal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	principal, ok := p.principals[id]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	copied := *principal
	return &copied, nil
}

// Permissions returns a copy of the principal's flags.
func (p *StaticProvider) Permissions(ctx context.Context, id int64) (map[string]bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, ok := p.principals[id]; !ok {
		return nil, ErrPrincipalNotFound
	}
	perms := make(map[string]bool, len(p.perms[id]))
	for k, v := range p.perms[id] {
		perms[k] = v
	}
	return perms, nil
}

// Package session holds the terminal's auth token and last-known user
// profile. The store is explicitly constructed and injected — there is no
// package-level session state — so tests run against isolated instances.
package session

import (
	"context"
	"sync"
)

// Profile is the cached user profile returned by the login endpoint.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// Store persists the auth token and user profile between requests.
// Token returns "" when no session exists.
type Store interface {
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	Profile(ctx context.Context) (*Profile, error)
	SetProfile(ctx context.Context, p *Profile) error
	// Clear wipes token and profile. Called on logout and on any 401/403.
	Clear(ctx context.Context) error
}

// MemoryStore is an in-process Store for tests and ephemeral terminals.
type MemoryStore struct {
	mu      sync.RWMutex
	token   string
	profile *Profile
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Token(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

func (s *MemoryStore) SetToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryStore) Profile(_ context.Context) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return nil, nil
	}
	p := *s.profile
	return &p, nil
}

func (s *MemoryStore) SetProfile(_ context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil {
		s.profile = nil
		return nil
	}
	cp := *p
	s.profile = &cp
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.profile = nil
	return nil
}

var _ Store = (*MemoryStore)(nil)

package auth

import (
	"context"
	"strings"
	"sync"

	"conselho.org/internal/ids"
)

// InMemoryUsers implements UserStore with in-process concurrency safety.
// Used by tests and by dev mode when no database is configured.
type InMemoryUsers struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string // email -> id
}

// NewInMemoryUsers creates an empty user store.
func NewInMemoryUsers() *InMemoryUsers {
	return &InMemoryUsers{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

func (s *InMemoryUsers) CreateUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.TrimSpace(strings.ToLower(u.Email))
	if _, ok := s.byEmail[email]; ok {
		return ErrAlreadyExists
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	cp := *u
	s.byID[u.ID] = &cp
	s.byEmail[email] = u.ID
	return nil
}

func (s *InMemoryUsers) FindUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemoryUsers) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.TrimSpace(strings.ToLower(email))]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User represents a volunteer agent account able to operate on infraction
// records. Role is one of the enforcement roles understood by the policy.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserStore persists agent accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	FindUser(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
}

// Service validates credentials against a UserStore.
type Service struct {
	store UserStore
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a credential service over the given store.
func NewService(store UserStore, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: user store is required", ErrInvalidInput)
	}
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates an agent account with a hashed password.
func (s *Service) Register(ctx context.Context, email, password, role string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	role = NormalizeRole(role)
	if role == "" {
		return nil, fmt.Errorf("%w: role is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u := &User{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate verifies credentials and returns the matching active account.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if u.Status != UserStatusActive {
		return nil, ErrInvalidCredentials
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

package users

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	store *Store
	cost  int
	now   func() time.Time
}

type ServiceOption func(*Service)

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) ServiceOption { return func(s *Service) { s.cost = cost } }

func NewService(store *Store, opts ...ServiceOption) *Service {
	s := &Service{store: store, cost: bcrypt.DefaultCost, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Register(r Registration) (User, error) {
	r.Normalize()
	if err := r.Validate(); err != nil {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	u := User{
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.Insert(&u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Authenticate returns ErrInvalidCredential for both an unknown username and
// a wrong password.
func (s *Service) Authenticate(username, password string) (User, error) {
	u, err := s.store.GetByUsername(username)
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidCredential
	}
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return User{}, ErrInvalidCredential
	}
	return u, nil
}

func (s *Service) Get(id int64) (User, error) {
	return s.store.Get(id)
}

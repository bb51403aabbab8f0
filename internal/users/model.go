// Package users keeps user accounts in an embedded BoltDB file and checks
// their passwords.
package users

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("user not found")
	ErrUsernameTaken     = errors.New("username already registered")
	ErrEmailTaken        = errors.New("email already registered")
	ErrInvalidCredential = errors.New("incorrect username or password")
)

// User is the stored account. PasswordHash never leaves the service.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Public is the representation returned over HTTP.
type Public struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (u User) Public() Public {
	return Public{ID: u.ID, Username: u.Username, Email: u.Email}
}

type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s %s", e.Field, e.Reason) }

func (r *Registration) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (r Registration) Validate() error {
	if r.Username == "" {
		return &ValidationError{Field: "username", Reason: "is required"}
	}
	if _, err := mail.ParseAddress(r.Email); err != nil || !strings.Contains(r.Email, "@") {
		return &ValidationError{Field: "email", Reason: "must be a valid address"}
	}
	if r.Password == "" {
		return &ValidationError{Field: "password", Reason: "is required"}
	}
	// bcrypt ignores everything past 72 bytes
	if len(r.Password) > 72 {
		return &ValidationError{Field: "password", Reason: "must be at most 72 bytes"}
	}
	return nil
}

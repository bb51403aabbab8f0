package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier checks credentials against an immutable shared secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret []byte, opts ...Option) *Verifier {
	o := buildOptions(opts)
	return &Verifier{
		secret: append([]byte(nil), secret...),
		now:    o.now,
	}
}

// Verify returns the identity encoded in credential.
//
// Expiry is checked before the signature so an expired credential always
// reports ErrExpired.
func (v *Verifier) Verify(credential string) (Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Identity{}, ErrMalformed
	}
	now := v.now()

	var unverified jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(credential, &unverified); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if unverified.ExpiresAt == nil {
		return Identity{}, fmt.Errorf("%w: missing exp claim", ErrMalformed)
	}
	if !now.Before(unverified.ExpiresAt.Time) {
		return Identity{}, ErrExpired
	}

	var claims jwt.RegisteredClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{Algorithm}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	_, err := parser.ParseWithClaims(credential, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, classify(err)
	}

	if claims.Subject == "" {
		return Identity{}, ErrMissingSubject
	}
	subjectID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: subject %q is not numeric", ErrMissingSubject, claims.Subject)
	}

	return Identity{SubjectID: subjectID, Credential: credential}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrSignatureInvalid
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

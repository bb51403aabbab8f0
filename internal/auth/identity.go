// Package auth verifies and issues bearer credentials.
//
// A credential is an HS256-signed JWT whose subject is the caller's numeric
// id. Verification is a pure function of the credential, the shared secret
// and the clock, so the edge can authenticate every call without I/O.
package auth

import (
	"errors"
	"strings"
	"time"
)

// Algorithm is the only signing algorithm accepted or produced.
const Algorithm = "HS256"

var (
	ErrMalformed        = errors.New("malformed credential")
	ErrSignatureInvalid = errors.New("credential signature invalid")
	ErrExpired          = errors.New("credential expired")
	ErrMissingSubject   = errors.New("credential has no numeric subject")
)

// Identity is the verified caller: the subject id plus the raw credential it
// was derived from. It is derived once at the edge and passed down unchanged.
type Identity struct {
	SubjectID  int64
	Credential string
}

// BearerHeader returns the Authorization header value carrying the credential.
func (id Identity) BearerHeader() string {
	return "Bearer " + id.Credential
}

// ExtractBearer returns the token from an "Authorization: Bearer <token>" value.
func ExtractBearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

type options struct {
	now func() time.Time
}

// Option configures a Verifier or an Issuer.
type Option func(*options)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

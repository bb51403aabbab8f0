package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Mrprince0421/microsservi-os/internal/auth"
)

const (
	HeaderUserID        = "X-User-Id"
	HeaderAuthorization = "Authorization"
)

// IdentityVerifier is satisfied by *auth.Verifier.
type IdentityVerifier interface {
	Verify(credential string) (auth.Identity, error)
}

var ErrMissingCredential = errors.New("missing bearer credential")

// Authenticate verifies the bearer credential of every request it wraps and
// stores the resulting identity in the context. Rejected requests get a 401
// and never reach next. onReject may be nil.
func Authenticate(v IdentityVerifier, onReject func(r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.ExtractBearer(r.Header.Get(HeaderAuthorization))
			if !ok {
				reject(w, r, ErrMissingCredential, "Not authenticated", onReject)
				return
			}

			id, err := v.Verify(token)
			if err != nil {
				reject(w, r, err, "Could not validate credentials - Invalid Token", onReject)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, err error, detail string, onReject func(*http.Request, error)) {
	if onReject != nil {
		onReject(r, err)
	}
	w.Header().Set("WWW-Authenticate", "Bearer")
	WriteError(w, r, http.StatusUnauthorized, detail)
}

// GatewayIdentity reads the identity injected by the gateway. With a nil
// verifier the X-User-Id header is trusted as-is, which is only sound while
// the service is reachable exclusively through the gateway. With a verifier
// the bearer credential is checked locally and must match X-User-Id.
func GatewayIdentity(v IdentityVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
			if raw == "" {
				WriteError(w, r, http.StatusUnauthorized, "X-User-Id header missing. Must be called through API Gateway.")
				return
			}
			userID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				WriteError(w, r, http.StatusUnauthorized, "X-User-Id header must be a numeric id")
				return
			}

			token, _ := auth.ExtractBearer(r.Header.Get(HeaderAuthorization))
			id := auth.Identity{SubjectID: userID, Credential: token}

			if v != nil {
				verified, err := v.Verify(token)
				if err != nil || verified.SubjectID != userID {
					w.Header().Set("WWW-Authenticate", "Bearer")
					WriteError(w, r, http.StatusUnauthorized, "Could not validate credentials")
					return
				}
				id = verified
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, ctxIdentity, id)
}

// IdentityFrom returns the identity stored by Authenticate or GatewayIdentity.
func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(ctxIdentity).(auth.Identity)
	return id, ok
}

package gateway

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Mrprince0421/microsservi-os/internal/clients"
	"github.com/Mrprince0421/microsservi-os/internal/logging"
	"github.com/Mrprince0421/microsservi-os/internal/middleware"
)

// TokenHandler passes the login form to the user service without
// authenticating the caller.
type TokenHandler struct {
	users   *clients.UsersClient
	target  string
	timeout time.Duration
}

func NewTokenHandler(users *clients.UsersClient, target string, timeout time.Duration) *TokenHandler {
	return &TokenHandler{users: users, target: target, timeout: timeout}
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		middleware.WriteError(w, r, http.StatusBadRequest, "invalid form body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp, err := h.users.IssueToken(ctx, r.PostForm)
	if err != nil {
		logging.FromContext(r.Context()).Warn("user service unavailable", zap.Error(err))
		middleware.WriteError(w, r, http.StatusServiceUnavailable, "Service unavailable: "+h.target)
		return
	}
	defer resp.Body.Close()

	CopyUpstreamResponse(w, resp)
}

// Package httpapi exposes registration, profile and credential issuance.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Mrprince0421/microsservi-os/internal/auth"
	"github.com/Mrprince0421/microsservi-os/internal/logging"
	"github.com/Mrprince0421/microsservi-os/internal/metrics"
	"github.com/Mrprince0421/microsservi-os/internal/middleware"
	"github.com/Mrprince0421/microsservi-os/internal/telemetry"
	"github.com/Mrprince0421/microsservi-os/internal/users"
)

type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// TrustGateway makes /users/me accept X-User-Id without re-verifying
	// the bearer credential.
	TrustGateway bool
}

type Handler struct {
	svc      *users.Service
	issuer   *auth.Issuer
	verifier *auth.Verifier
}

func NewHandler(svc *users.Service, issuer *auth.Issuer, verifier *auth.Verifier) *Handler {
	return &Handler{svc: svc, issuer: issuer, verifier: verifier}
}

func NewRouter(h *Handler, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.CorrelationID)
	r.Use(telemetry.Middleware("user-service"))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recover(logger))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware(routePattern))
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "user-service"})
	})

	var trusted middleware.IdentityVerifier = h.verifier
	if opts.TrustGateway {
		trusted = nil
	}

	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.Register)
		r.With(middleware.GatewayIdentity(trusted)).Get("/me", h.Me)
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/token", h.Token)
		r.With(middleware.Authenticate(h.verifier, nil)).Post("/refresh_token", h.Refresh)
	})

	return r
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in users.Registration
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		middleware.WriteError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}

	u, err := h.svc.Register(in)
	var ve *users.ValidationError
	switch {
	case errors.Is(err, users.ErrUsernameTaken):
		middleware.WriteError(w, r, http.StatusBadRequest, "Username already registered")
		return
	case errors.Is(err, users.ErrEmailTaken):
		middleware.WriteError(w, r, http.StatusBadRequest, "Email already registered")
		return
	case errors.As(err, &ve):
		middleware.WriteError(w, r, http.StatusBadRequest, ve.Error())
		return
	case err != nil:
		h.internal(w, r, "register user", err)
		return
	}
	writeJSON(w, http.StatusCreated, u.Public())
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	u, err := h.svc.Get(id.SubjectID)
	if errors.Is(err, users.ErrNotFound) {
		middleware.WriteError(w, r, http.StatusUnauthorized, "User not found.")
		return
	}
	if err != nil {
		h.internal(w, r, "load user", err)
		return
	}
	writeJSON(w, http.StatusOK, u.Public())
}

// Token implements the OAuth2 password grant form.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		middleware.WriteError(w, r, http.StatusBadRequest, "invalid form body")
		return
	}
	username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	if username == "" || password == "" {
		middleware.WriteError(w, r, http.StatusUnprocessableEntity, "username and password are required")
		return
	}

	u, err := h.svc.Authenticate(username, password)
	if errors.Is(err, users.ErrInvalidCredential) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		middleware.WriteError(w, r, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	if err != nil {
		h.internal(w, r, "authenticate", err)
		return
	}
	h.issue(w, r, u.ID)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	if _, err := h.svc.Get(id.SubjectID); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			middleware.WriteError(w, r, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		h.internal(w, r, "load user", err)
		return
	}
	h.issue(w, r, id.SubjectID)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request, subjectID int64) {
	tok, err := h.issuer.Issue(subjectID)
	if err != nil {
		h.internal(w, r, "issue token", err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (h *Handler) internal(w http.ResponseWriter, r *http.Request, op string, err error) {
	logging.FromContext(r.Context()).Error(op+" failed", zap.Error(err))
	middleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

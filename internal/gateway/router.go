// Package gateway is the single ingress. It authenticates every protected
// request once and forwards it to the owning backend with the caller's
// identity attached.
package gateway

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Mrprince0421/microsservi-os/internal/auth"
	"github.com/Mrprince0421/microsservi-os/internal/clients"
	"github.com/Mrprince0421/microsservi-os/internal/config"
	"github.com/Mrprince0421/microsservi-os/internal/metrics"
	"github.com/Mrprince0421/microsservi-os/internal/middleware"
	"github.com/Mrprince0421/microsservi-os/internal/telemetry"
)

type Deps struct {
	Logger   *zap.Logger
	Cfg      config.Gateway
	Verifier middleware.IdentityVerifier
	Metrics  *metrics.Metrics

	Users   *clients.Client
	Catalog *clients.Client
	Sales   *clients.Client

	HealthProbes []clients.HealthProbe
}

// clientHeaders are the request headers the gateway reads from callers:
// content negotiation, the credential, correlation and W3C trace context.
var clientHeaders = []string{
	"Accept",
	"Content-Type",
	middleware.HeaderAuthorization,
	middleware.HeaderCorrelationID,
	"traceparent",
	"tracestate",
}

func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()

	// Health
	health := &HealthHandler{Probes: d.HealthProbes}
	mux.HandleFunc("GET /health", health.Gateway)
	mux.HandleFunc("GET /health/upstreams", health.Upstreams)
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}

	// Credential issuance is the only unauthenticated route.
	mux.Handle("POST /auth/token", NewTokenHandler(clients.NewUsersClient(d.Users), d.Users.BaseURL.String(), d.Cfg.UpstreamTimeout))

	authn := middleware.Authenticate(d.Verifier, rejectionCounter(d.Metrics, logger))
	protect := func(p *Proxy) http.Handler { return authn(p) }

	users := NewProxy(d.Users, d.Cfg.APIPrefix, d.Cfg.UpstreamTimeout)
	mux.Handle("POST /auth/refresh_token", protect(users))
	mux.Handle("GET /api/users/me", protect(users))

	catalog := NewProxy(d.Catalog, d.Cfg.APIPrefix, d.Cfg.UpstreamTimeout)
	mux.Handle("POST /api/products/{$}", protect(catalog))
	mux.Handle("GET /api/products/{$}", protect(catalog))
	mux.Handle("GET /api/products/{id}", protect(catalog))
	mux.Handle("PUT /api/products/{id}", protect(catalog))
	mux.Handle("DELETE /api/products/{id}", protect(catalog))

	sales := NewProxy(d.Sales, d.Cfg.APIPrefix, d.Cfg.UpstreamTimeout)
	mux.Handle("POST /api/sales/{$}", protect(sales))
	mux.Handle("GET /api/sales/{$}", protect(sales))
	mux.Handle("GET /api/sales/{id}", protect(sales))
	mux.Handle("GET /api/sales/reports/{report}", protect(sales))

	// Middlewares (outer -> inner)
	var h http.Handler = mux
	if d.Metrics != nil {
		h = d.Metrics.Middleware(metrics.PatternRoute)(h)
	}
	h = middleware.CORS(middleware.CORSOptions{
		AllowOrigins:  d.Cfg.CORSAllowOrigins,
		AllowHeaders:  clientHeaders,
		ExposeHeaders: []string{middleware.HeaderCorrelationID},
		MaxAge:        10 * time.Minute,
	})(h)
	h = middleware.Recover(logger)(h)
	h = middleware.Logging(logger)(h)
	h = telemetry.Middleware("api-gateway")(h)
	h = middleware.CorrelationID(h)

	return h
}

func rejectionCounter(m *metrics.Metrics, logger *zap.Logger) func(*http.Request, error) {
	return func(r *http.Request, err error) {
		reason := rejectionReason(err)
		if m != nil {
			m.AuthRejections.WithLabelValues(reason).Inc()
		}
		logger.Debug("request rejected",
			zap.String("path", r.URL.Path),
			zap.String("reason", reason),
			zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
		)
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, middleware.ErrMissingCredential):
		return "missing"
	case errors.Is(err, auth.ErrExpired):
		return "expired"
	case errors.Is(err, auth.ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, auth.ErrMissingSubject):
		return "missing_subject"
	default:
		return "malformed"
	}
}

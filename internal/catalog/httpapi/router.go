package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Mrprince0421/microsservi-os/internal/metrics"
	"github.com/Mrprince0421/microsservi-os/internal/middleware"
	"github.com/Mrprince0421/microsservi-os/internal/telemetry"
)

type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Verifier, when set, re-checks the forwarded credential instead of
	// trusting X-User-Id on its own.
	Verifier middleware.IdentityVerifier
}

func NewRouter(h *Handler, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.CorrelationID)
	r.Use(telemetry.Middleware("catalog-service"))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recover(logger))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware(RoutePattern))
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Get("/health", h.Health)

	r.Route("/products", func(r chi.Router) {
		r.Use(middleware.GatewayIdentity(opts.Verifier))

		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
		r.Post("/{id}/reserve", h.Reserve)
	})

	return r
}

// RoutePattern reports the chi route template once routing has completed.
func RoutePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

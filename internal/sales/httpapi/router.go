// Package httpapi exposes the sales service over HTTP.
package httpapi

import (
	"encoding/json"
	"net/http"

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

func NewRouter(h *SaleHandler, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/health", healthHandler)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics.Handler())
	}

	identity := middleware.GatewayIdentity(opts.Verifier)
	mux.Handle("POST /sales/{$}", identity(http.HandlerFunc(h.CreateSale)))
	mux.Handle("GET /sales/{$}", identity(http.HandlerFunc(h.ListSales)))
	mux.Handle("GET /sales/{id}", identity(http.HandlerFunc(h.GetSale)))
	mux.Handle("GET /sales/reports/daily", identity(http.HandlerFunc(h.DailyReport)))
	mux.Handle("GET /sales/reports/best-selling", identity(http.HandlerFunc(h.BestSelling)))

	var handler http.Handler = mux
	if opts.Metrics != nil {
		handler = opts.Metrics.Middleware(metrics.PatternRoute)(handler)
	}
	handler = middleware.Recover(logger)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = telemetry.Middleware("sales-service")(handler)
	handler = middleware.CorrelationID(handler)
	return handler
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "sales-service",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

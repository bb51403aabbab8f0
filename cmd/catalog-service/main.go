package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Mrprince0421/microsservi-os/internal/auth"
	"github.com/Mrprince0421/microsservi-os/internal/catalog"
	"github.com/Mrprince0421/microsservi-os/internal/catalog/httpapi"
	"github.com/Mrprince0421/microsservi-os/internal/config"
	"github.com/Mrprince0421/microsservi-os/internal/db"
	"github.com/Mrprince0421/microsservi-os/internal/logging"
	"github.com/Mrprince0421/microsservi-os/internal/metrics"
	"github.com/Mrprince0421/microsservi-os/internal/middleware"
	"github.com/Mrprince0421/microsservi-os/internal/telemetry"
)

const serviceName = "catalog-service"

func main() {
	cfg := config.LoadCatalog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: serviceName,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    true,
	})
	if err != nil {
		panic(err)
	}

	logger := logging.MustNewLogger(serviceName, cfg.Env, providers.Cores()...)
	defer func() { _ = logger.Sync() }()

	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.DatabaseDSN, db.CatalogSchema, logger); err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer pool.Close()

	var verifier middleware.IdentityVerifier
	if !cfg.TrustGatewayIdentity {
		verifier = auth.NewVerifier([]byte(cfg.JWTSecret))
	}

	handler := httpapi.NewHandler(catalog.NewPostgresRepository(pool))
	router := httpapi.NewRouter(handler, httpapi.Options{
		Logger:   logger,
		Metrics:  metrics.New("catalog"),
		Verifier: verifier,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = providers.Shutdown(shutdownCtx)
}

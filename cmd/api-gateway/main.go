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
	"github.com/Mrprince0421/microsservi-os/internal/clients"
	"github.com/Mrprince0421/microsservi-os/internal/config"
	"github.com/Mrprince0421/microsservi-os/internal/gateway"
	"github.com/Mrprince0421/microsservi-os/internal/logging"
	"github.com/Mrprince0421/microsservi-os/internal/metrics"
	"github.com/Mrprince0421/microsservi-os/internal/telemetry"
)

const serviceName = "api-gateway"

func main() {
	cfg := config.LoadGateway()

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

	m := metrics.New("gateway")

	// Base HTTP client (shared)
	sharedHTTP := &http.Client{Timeout: cfg.UpstreamTimeout}

	usersBase := clients.NewClient("user-service", cfg.UserServiceURL, sharedHTTP)
	catalogBase := clients.NewClient("catalog-service", cfg.CatalogServiceURL, sharedHTTP)
	salesBase := clients.NewClient("sales-service", cfg.SalesServiceURL, sharedHTTP)
	for _, c := range []*clients.Client{usersBase, catalogBase, salesBase} {
		c.Metrics = m
	}

	healthProbes := []clients.HealthProbe{
		{Name: "user-service", Client: usersBase, Path: "/health"},
		{Name: "catalog-service", Client: catalogBase, Path: "/health"},
		{Name: "sales-service", Client: salesBase, Path: "/health"},
	}

	router := gateway.NewRouter(gateway.Deps{
		Logger:       logger,
		Cfg:          cfg,
		Verifier:     auth.NewVerifier([]byte(cfg.JWTSecret)),
		Metrics:      m,
		Users:        usersBase,
		Catalog:      catalogBase,
		Sales:        salesBase,
		HealthProbes: healthProbes,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
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
	logger.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

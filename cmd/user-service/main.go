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
	"github.com/Mrprince0421/microsservi-os/internal/config"
	"github.com/Mrprince0421/microsservi-os/internal/logging"
	"github.com/Mrprince0421/microsservi-os/internal/metrics"
	"github.com/Mrprince0421/microsservi-os/internal/telemetry"
	"github.com/Mrprince0421/microsservi-os/internal/users"
	"github.com/Mrprince0421/microsservi-os/internal/users/httpapi"
)

const serviceName = "user-service"

func main() {
	cfg := config.LoadUsers()

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

	store, err := users.OpenStore(cfg.BoltPath)
	if err != nil {
		logger.Fatal("open user store", zap.Error(err))
	}
	defer store.Close()

	secret := []byte(cfg.JWTSecret)
	handler := httpapi.NewHandler(
		users.NewService(store),
		auth.NewIssuer(secret, cfg.AccessTokenTTL),
		auth.NewVerifier(secret),
	)
	router := httpapi.NewRouter(handler, httpapi.Options{
		Logger:       logger,
		Metrics:      metrics.New("users"),
		TrustGateway: cfg.TrustGatewayIdentity,
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

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Mrprince0421/microsservi-os/internal/auth"
	"github.com/Mrprince0421/microsservi-os/internal/clients"
	"github.com/Mrprince0421/microsservi-os/internal/config"
	"github.com/Mrprince0421/microsservi-os/internal/db"
	"github.com/Mrprince0421/microsservi-os/internal/events"
	"github.com/Mrprince0421/microsservi-os/internal/logging"
	"github.com/Mrprince0421/microsservi-os/internal/metrics"
	"github.com/Mrprince0421/microsservi-os/internal/middleware"
	"github.com/Mrprince0421/microsservi-os/internal/sales"
	"github.com/Mrprince0421/microsservi-os/internal/sales/httpapi"
	"github.com/Mrprince0421/microsservi-os/internal/telemetry"
)

const serviceName = "sales-service"

func main() {
	cfg := config.LoadSales()

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
		if err := db.RunMigrations(cfg.DatabaseDSN, db.SalesSchema, logger); err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}
	}

	database, err := db.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer database.Close()

	m := metrics.New("sales")

	publisher, err := newPublisher(cfg, database)
	if err != nil {
		logger.Fatal("events broker", zap.String("broker", cfg.EventsBroker), zap.Error(err))
	}
	defer publisher.Close()

	catalogBase := clients.NewClient("catalog-service", cfg.CatalogServiceURL, &http.Client{Timeout: cfg.CatalogTimeout})
	catalogBase.Metrics = m

	repo := sales.NewRepository(database)
	orchestrator := sales.NewOrchestrator(
		clients.NewCatalogClient(catalogBase),
		repo,
		sales.WithMode(sales.Mode(cfg.ReservationMode)),
		sales.WithTimeout(cfg.OrderTimeout),
		sales.WithPublisher(publisher),
		sales.WithMetrics(m),
	)

	var verifier middleware.IdentityVerifier
	if !cfg.TrustGatewayIdentity {
		verifier = auth.NewVerifier([]byte(cfg.JWTSecret))
	}

	router := httpapi.NewRouter(httpapi.NewSaleHandler(orchestrator, repo), httpapi.Options{
		Logger:   logger,
		Metrics:  m,
		Verifier: verifier,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("reservation_mode", cfg.ReservationMode),
			zap.String("events_broker", cfg.EventsBroker),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = providers.Shutdown(shutdownCtx)
}

type eventPublisher interface {
	sales.EventPublisher
	io.Closer
}

func newPublisher(cfg config.Sales, database *sql.DB) (eventPublisher, error) {
	seq := sales.NewSequenceRepository(database)

	switch cfg.EventsBroker {
	case config.BrokerAMQP:
		conn, err := amqp.DialConfig(cfg.RabbitMQURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
		if err != nil {
			return nil, fmt.Errorf("dial rabbitmq: %w", err)
		}
		t, err := events.NewAMQPTransport(conn)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		return &amqpPublisher{Publisher: events.NewPublisher(t, seq, events.PublisherOptions{Producer: serviceName}), conn: conn}, nil
	case config.BrokerKafka:
		t := events.NewKafkaTransport(cfg.KafkaBrokers, cfg.KafkaTopic)
		return events.NewPublisher(t, seq, events.PublisherOptions{Producer: serviceName}), nil
	default:
		return events.Nop{}, nil
	}
}

// amqpPublisher also owns the connection its channel was opened on.
type amqpPublisher struct {
	*events.Publisher
	conn *amqp.Connection
}

func (p *amqpPublisher) Close() error {
	return errors.Join(p.Publisher.Close(), p.conn.Close())
}

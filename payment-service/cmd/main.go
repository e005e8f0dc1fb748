package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/config"
	"github.com/AnujAga2005/ProductLab/payment-service/internal/gateway"
	h "github.com/AnujAga2005/ProductLab/payment-service/internal/http"
	"github.com/AnujAga2005/ProductLab/payment-service/internal/publisher"
	"github.com/AnujAga2005/ProductLab/payment-service/internal/repository"
	"github.com/AnujAga2005/ProductLab/payment-service/internal/service"
	"github.com/AnujAga2005/ProductLab/payment-service/internal/session"
	"github.com/AnujAga2005/ProductLab/payment-service/internal/signature"
	"github.com/AnujAga2005/ProductLab/payment-service/internal/webhook"
	"github.com/AnujAga2005/ProductLab/pkg/logger"
)

func main() {
	boot := logger.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	cfg, err := config.Load(boot)
	if err != nil {
		boot.Fatalf("Failed to load configuration: %v", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.Fatalf("payment-service stopped with error: %v", err)
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	log.Info("payment-service starting...")
	var wg sync.WaitGroup

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	store, err := openStore(startCtx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(startCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.WithField("addr", cfg.Redis.Addr).Info("Connected to redis")

	paymentVerifier, err := signature.NewVerifier(cfg.Gateway.KeySecret)
	if err != nil {
		return fmt.Errorf("payment signature verifier: %w", err)
	}
	webhookVerifier, err := signature.NewVerifier(cfg.Gateway.WebhookSecret)
	if err != nil {
		return fmt.Errorf("webhook signature verifier: %w", err)
	}

	gatewayClient := gateway.NewHTTPClient(gateway.HTTPClientConfig{
		BaseURL:   cfg.Gateway.BaseURL,
		KeyID:     cfg.Gateway.KeyID,
		KeySecret: cfg.Gateway.KeySecret,
		Timeout:   cfg.Gateway.Timeout,
	}, log)

	paymentService := service.NewPaymentService(store, gatewayClient, paymentVerifier, service.Config{
		Currency:     cfg.Gateway.Currency,
		MerchantUPI:  cfg.Merchant.UPIHandle,
		MerchantName: cfg.Merchant.Name,
	}, log)

	processor := webhook.NewProcessor(store, webhookVerifier,
		webhook.NewRedisDeduper(redisClient, cfg.Redis.WebhookTTL), log)

	// Outbox publishing and stale order recovery
	var writer publisher.MessageWriter
	if cfg.Kafka.Enabled {
		kafkaWriter := publisher.NewKafkaWriter(cfg.Kafka.Topic, cfg.Kafka.Brokers...)
		defer kafkaWriter.Close()
		writer = kafkaWriter
	} else {
		log.Warn("Kafka disabled, payment events stay in the outbox")
	}
	poller := publisher.NewOutboxPoller(store, writer, paymentService, publisher.Config{
		EventTick:    cfg.Recovery.EventTick,
		RecoveryTick: cfg.Recovery.Tick,
		RecoveryAge:  cfg.Recovery.Age,
		BatchSize:    cfg.Recovery.BatchSize,
		Timeout:      cfg.Gateway.Timeout,
	}, log)
	pollerCtx, pollerCancel := context.WithCancel(context.Background())
	defer pollerCancel()
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(pollerCtx)
	}()

	router := h.NewRouter(h.RouterConfig{
		Payments:          h.NewPaymentHandler(paymentService, cfg.RequestTimeout, log),
		Webhooks:          h.NewWebhookHandler(processor, log),
		Sessions:          session.NewRedisStore(redisClient, 0),
		SessionCookieName: cfg.SessionCookieName,
		RequestTimeout:    cfg.RequestTimeout,
		Log:               log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, "payment-service"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("Payment service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		pollerCancel()
		wg.Wait()
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("Shutting down payment service...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	pollerCancel()

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()
	select {
	case <-doneChan:
		log.Info("Outbox poller stopped cleanly")
	case <-shutdownCtx.Done():
		log.Warn("Outbox poller shutdown timed out")
	}

	log.Info("Payment service stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, log *logrus.Logger) (repository.OrderStore, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		creds := &repository.Credentials{
			Host:              cfg.DB.Host,
			Port:              cfg.DB.Port,
			User:              cfg.DB.User,
			Password:          cfg.DB.Password,
			DBName:            cfg.DB.Name,
			SSLMode:           cfg.DB.SSLMode,
			MigrationsDirPath: cfg.DB.MigrationsPath,
		}
		store, err := repository.NewPostgresStore(creds)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := store.RunMigrations(creds); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("Database migrations completed")
		return store, nil

	case config.StoreDriverMongo:
		db, err := repository.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		store := repository.NewMongoStore(db)
		if err := store.CreateIndexes(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to create indexes: %w", err)
		}
		log.WithField("database", cfg.Mongo.Database).Info("Connected to mongodb")
		return store, nil

	default:
		log.Warn("Using in-memory order store, data is lost on restart")
		return repository.NewMemoryStore(), nil
	}
}

package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"dispatch/internal/app"
	"dispatch/internal/config"
	"dispatch/internal/handler"
	"dispatch/internal/middleware"
	"dispatch/internal/mq"
	"dispatch/internal/realtime"
	internalRedis "dispatch/internal/redis"
	"dispatch/internal/repository/postgres"
	"dispatch/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// New Relic first so the database and Redis clients get instrumented.
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Printf("failed to initialize New Relic: %v", err)
		} else {
			log.Printf("New Relic enabled: app=%s", cfg.NewRelic.AppName)
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		log.Println("Connected to Redis")
	} else {
		log.Println("Redis not configured, running single-instance with in-memory location slots")
	}

	mqConn, err := app.NewRabbitMQ(cfg.RabbitMQ)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	if mqConn != nil {
		defer mqConn.Close()
		log.Println("Connected to RabbitMQ")
	}

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	server, cleanup := wireServer(runCtx, db, redisClient, mqConn, nrApp, cfg)
	defer cleanup()

	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	log.Println("Server exited")
}

// wireServer wires all dependencies and returns the HTTP server and a
// cleanup function for resources it opened.
func wireServer(
	ctx context.Context,
	db *sql.DB,
	redisClient *redis.Client,
	mqConn *amqp.Connection,
	nrApp *newrelic.Application,
	cfg *config.Config,
) (*http.Server, func()) {
	hub := realtime.NewHub()

	// Redis is optional; every Redis-backed collaborator has a local fallback.
	var (
		publisher     service.EventPublisher = hub
		locationStore internalRedis.LocationStoreInterface
		rideCache     internalRedis.RideCacheInterface
		lockStore     internalRedis.LockStoreInterface
	)
	if redisClient != nil {
		bus := internalRedis.NewRoomBus(redisClient, hub)
		go bus.Run(ctx)
		publisher = bus
		locationStore = internalRedis.NewLocationStore(redisClient)
		rideCache = internalRedis.NewCacheStore(redisClient, cfg.Dispatch.RideCacheTTL)
		lockStore = internalRedis.NewLockStore(redisClient)
	} else {
		locationStore = internalRedis.NewMemoryLocationStore()
	}

	cleanup := func() {}
	var broker service.EventBroker
	if mqConn != nil {
		p, err := mq.NewPublisher(mqConn, cfg.RabbitMQ.Exchange)
		if err != nil {
			log.Printf("RabbitMQ publisher disabled: %v", err)
		} else {
			broker = p
			cleanup = func() { p.Close() }
		}
	}

	// Repositories.
	rideRepo := postgres.NewRideRepository(db)
	paymentRepo := postgres.NewPaymentRepository(db)
	ledgerRepo := postgres.NewLedgerRepository(db)

	// Services.
	notificationService := service.NewNotificationService(publisher, service.LogPushNotifier{}, broker)
	paymentService := service.NewPaymentService(paymentRepo, service.NewMockGateway(cfg.Payments.GatewaySecret))
	ledgerService := service.NewLedgerService(ledgerRepo, service.NewMockPayoutProvider(), lockStore, service.LedgerConfig{
		CommissionRate:  cfg.Dispatch.CommissionRate,
		DefaultCODLimit: cfg.Dispatch.DefaultCODLimit,
		PayoutLockTTL:   cfg.Dispatch.PayoutLockTTL,
	})
	locationService := service.NewLocationService(locationStore, rideRepo, rideCache, publisher, service.LocationConfig{
		StalenessThreshold: cfg.Dispatch.StalenessThreshold,
		FutureSkew:         cfg.Dispatch.FutureSkew,
		TTL:                cfg.Dispatch.LocationTTL,
	})
	rideService := service.NewRideService(rideRepo, paymentService, ledgerService, locationService, notificationService, service.RideConfig{
		OTPMaxAttempts: cfg.Dispatch.OTPMaxAttempts,
	})
	statementService := service.NewStatementService(ledgerService)

	wsServer := realtime.NewServer(hub, locationService, realtime.Config{
		WriteWait:  cfg.Realtime.WriteWait,
		PongWait:   cfg.Realtime.PongWait,
		PingPeriod: cfg.Realtime.PingPeriod,
		SendBuffer: cfg.Realtime.SendBuffer,
	})

	health := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		health["redis"] = handler.PingerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	router := app.NewRouter(app.RouterDeps{
		RideHandler:     handler.NewRideHandler(rideService),
		PaymentHandler:  handler.NewPaymentHandler(rideService),
		LocationHandler: handler.NewLocationHandler(locationService),
		WalletHandler:   handler.NewWalletHandler(ledgerService, statementService),
		AdminHandler:    handler.NewAdminHandler(ledgerService),
		WebhookHandler:  handler.NewWebhookHandler(ledgerService, cfg.Payments.WebhookSecret),
		WSHandler:       handler.NewWSHandler(wsServer),
		HealthHandler:   handler.NewHealthHandler(health),
		Verifier:        middleware.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		RedisClient:     redisClient,
		NewRelicApp:     nrApp,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	})

	// WriteTimeout is left unset: it would cut long-lived WebSocket connections.
	return &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}, cleanup
}

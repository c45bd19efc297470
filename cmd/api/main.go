package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bloodbank-platform/allocation-service/pkg/cloudevents"
	"github.com/bloodbank-platform/allocation-service/pkg/kafka"
	"github.com/bloodbank-platform/allocation-service/pkg/logging"
	"github.com/bloodbank-platform/allocation-service/pkg/metrics"
	"github.com/bloodbank-platform/allocation-service/pkg/middleware"
	"github.com/bloodbank-platform/allocation-service/pkg/mongodb"

	"github.com/bloodbank-platform/allocation-service/internal/application"
	"github.com/bloodbank-platform/allocation-service/internal/domain"
	mongoRepo "github.com/bloodbank-platform/allocation-service/internal/infrastructure/mongodb"
)

const serviceName = "allocation-service"

// Config holds the API server configuration
type Config struct {
	ServerAddr         string
	ReservationTimeout time.Duration
	DonationCooldown   time.Duration
	MongoDB            *mongodb.Config
	Kafka              *kafka.Config
}

func main() {
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting allocation-service API")

	config := loadConfig()
	ctx := context.Background()

	// Prometheus metrics
	metricsConfig := metrics.DefaultConfig(serviceName)
	m := metrics.New(metricsConfig)
	logger.Info("Metrics initialized")

	// MongoDB
	mongoClient, err := mongodb.NewClient(ctx, config.MongoDB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(ctx)
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	// Kafka producer behind a circuit breaker
	producer := kafka.NewProductionProducer(config.Kafka, m, logger)
	defer producer.Close()
	logger.Info("Kafka producer initialized", "brokers", config.Kafka.Brokers)

	eventFactory := cloudevents.NewEventFactory(cloudevents.SourceAllocation)
	publisher := application.NewEventPublisher(producer, eventFactory, logger)

	// Repositories
	db := mongoClient.Database()
	stockLines := mongoRepo.NewStockLineRepository(db)
	reservations := mongoRepo.NewReservationRepository(db)
	requests := mongoRepo.NewRequestRepository(db)
	donors := mongoRepo.NewDonorRepository(db)
	alerts := mongoRepo.NewAlertRepository(db)

	// Application services sharing one keyed line lock
	locks := application.NewLineLocks()
	ids := domain.UUIDGenerator{}

	matcherConfig := application.DefaultMatcherConfig()
	matcherConfig.DonationCooldown = config.DonationCooldown

	ledgerService := application.NewLedgerService(stockLines, publisher, m, locks, logger)
	reservationService := application.NewReservationService(stockLines, reservations, requests, publisher, m, locks, ids, logger)
	matcherService := application.NewMatcherService(requests, donors, publisher, m, ids, matcherConfig, logger)
	broadcasterService := application.NewBroadcasterService(alerts, donors, publisher, m, ids, config.DonationCooldown, logger)

	// Gin router with standard middleware
	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig(serviceName, logger.Logger))
	router.Use(middleware.MetricsMiddleware(m))
	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, func() error {
		return mongoClient.HealthCheck(ctx)
	}))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	registerRoutes(router, &handlers{
		ledger:      ledgerService,
		reservation: reservationService,
		matcher:     matcherService,
		broadcaster: broadcasterService,
		defaults: handlerDefaults{
			reservationTimeout: config.ReservationTimeout,
		},
		logger: logger,
	})

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	logger.Info("Server stopped")
}

func loadConfig() *Config {
	return &Config{
		ServerAddr:         getEnv("SERVER_ADDR", ":8084"),
		ReservationTimeout: getEnvDuration("RESERVATION_TIMEOUT", 24*time.Hour),
		DonationCooldown:   getEnvDuration("DONATION_COOLDOWN", domain.DefaultDonationCooldown),
		MongoDB: &mongodb.Config{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "donation_db"),
			ConnectTimeout: 10 * time.Second,
			MaxPoolSize:    100,
			MinPoolSize:    10,
		},
		Kafka: &kafka.Config{
			Brokers:       []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			ConsumerGroup: serviceName,
			ClientID:      serviceName,
			BatchSize:     100,
			BatchTimeout:  10 * time.Millisecond,
			RequiredAcks:  -1,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if hours, err := strconv.Atoi(value); err == nil {
			return time.Duration(hours) * time.Hour
		}
	}
	return defaultValue
}

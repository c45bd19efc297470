package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bloodbank-platform/allocation-service/pkg/cloudevents"
	"github.com/bloodbank-platform/allocation-service/pkg/kafka"
	"github.com/bloodbank-platform/allocation-service/pkg/logging"
	"github.com/bloodbank-platform/allocation-service/pkg/metrics"
	"github.com/bloodbank-platform/allocation-service/pkg/mongodb"

	"github.com/bloodbank-platform/allocation-service/internal/application"
	"github.com/bloodbank-platform/allocation-service/internal/domain"
	mongoRepo "github.com/bloodbank-platform/allocation-service/internal/infrastructure/mongodb"
)

const serviceName = "allocation-sweeper"

// Config holds the sweeper configuration
type Config struct {
	BatchExpiryInterval        time.Duration
	ReservationTimeoutInterval time.Duration
	RequestExpiryInterval      time.Duration
	AlertExpiryInterval        time.Duration
	DonationCooldown           time.Duration
	MongoDB                    *mongodb.Config
	Kafka                      *kafka.Config
}

func main() {
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting allocation sweeper")

	config := loadConfig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsConfig := metrics.DefaultConfig(serviceName)
	m := metrics.New(metricsConfig)

	mongoClient, err := mongodb.NewClient(ctx, config.MongoDB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(context.Background())
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	producer := kafka.NewProductionProducer(config.Kafka, m, logger)
	defer producer.Close()

	eventFactory := cloudevents.NewEventFactory(cloudevents.SourceSweeper)
	publisher := application.NewEventPublisher(producer, eventFactory, logger)

	db := mongoClient.Database()
	stockLines := mongoRepo.NewStockLineRepository(db)
	reservations := mongoRepo.NewReservationRepository(db)
	requests := mongoRepo.NewRequestRepository(db)
	donors := mongoRepo.NewDonorRepository(db)
	alerts := mongoRepo.NewAlertRepository(db)

	locks := application.NewLineLocks()
	ids := domain.UUIDGenerator{}

	matcherConfig := application.DefaultMatcherConfig()
	matcherConfig.DonationCooldown = config.DonationCooldown

	ledgerService := application.NewLedgerService(stockLines, publisher, m, locks, logger)
	reservationService := application.NewReservationService(stockLines, reservations, requests, publisher, m, locks, ids, logger)
	matcherService := application.NewMatcherService(requests, donors, publisher, m, ids, matcherConfig, logger)
	broadcasterService := application.NewBroadcasterService(alerts, donors, publisher, m, ids, config.DonationCooldown, logger)

	var wg sync.WaitGroup
	runSweep(ctx, &wg, logger, "batch-expiry", config.BatchExpiryInterval, ledgerService.RunExpirySweep)
	runSweep(ctx, &wg, logger, "reservation-timeout", config.ReservationTimeoutInterval, reservationService.RunTimeoutSweep)
	runSweep(ctx, &wg, logger, "request-expiry", config.RequestExpiryInterval, matcherService.RunExpirySweep)
	runSweep(ctx, &wg, logger, "alert-expiry", config.AlertExpiryInterval, broadcasterService.RunExpirySweep)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down sweeper...")

	cancel()
	wg.Wait()
	logger.Info("Sweeper stopped")
}

// runSweep runs one sweep immediately and then on every tick until the
// context is cancelled. Sweep errors are logged and the loop continues.
func runSweep(ctx context.Context, wg *sync.WaitGroup, logger *logging.Logger, name string, interval time.Duration, sweep func(context.Context) (int, error)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logger.Info("Sweep loop started", "sweep", name, "interval", interval)
		for {
			start := time.Now()
			affected, err := sweep(ctx)
			logger.SweepResult(ctx, name, affected, time.Since(start), err)

			select {
			case <-ctx.Done():
				logger.Info("Sweep loop stopped", "sweep", name)
				return
			case <-ticker.C:
			}
		}
	}()
}

func loadConfig() *Config {
	return &Config{
		BatchExpiryInterval:        getEnvDuration("BATCH_EXPIRY_INTERVAL", 15*time.Minute),
		ReservationTimeoutInterval: getEnvDuration("RESERVATION_TIMEOUT_INTERVAL", time.Minute),
		RequestExpiryInterval:      getEnvDuration("REQUEST_EXPIRY_INTERVAL", 5*time.Minute),
		AlertExpiryInterval:        getEnvDuration("ALERT_EXPIRY_INTERVAL", 5*time.Minute),
		DonationCooldown:           getEnvDuration("DONATION_COOLDOWN", domain.DefaultDonationCooldown),
		MongoDB: &mongodb.Config{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "donation_db"),
			ConnectTimeout: 10 * time.Second,
			MaxPoolSize:    20,
			MinPoolSize:    2,
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
	}
	return defaultValue
}

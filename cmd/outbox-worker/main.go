package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prohmpiriya/event-registration/internal/metrics"
	"github.com/prohmpiriya/event-registration/internal/repository"
	"github.com/prohmpiriya/event-registration/internal/worker"
	"github.com/prohmpiriya/event-registration/pkg/config"
	"github.com/prohmpiriya/event-registration/pkg/database"
	"github.com/prohmpiriya/event-registration/pkg/kafka"
	"github.com/prohmpiriya/event-registration/pkg/logger"
	"github.com/prohmpiriya/event-registration/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: "outbox-worker",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Outbox Worker...")

	if cfg.Store.Driver != config.StoreDriverPostgres {
		appLog.Fatal(fmt.Sprintf("Outbox worker requires the postgres store, got %q", cfg.Store.Driver))
	}
	if err := cfg.ValidateDatabase(); err != nil {
		appLog.Fatal(err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:       cfg.OTel.Enabled,
		ServiceName:   "outbox-worker",
		Environment:   cfg.App.Environment,
		CollectorAddr: cfg.OTel.CollectorAddr,
		SampleRatio:   cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn(fmt.Sprintf("Telemetry disabled: %v", err))
	}

	// Initialize database connection
	dbCfg := database.PostgresConfigFrom(&cfg.Database, cfg.OTel.Enabled)
	dbCfg.MaxConns = 10
	dbCfg.MinConns = 2
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to connect to database: %v", err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	// Initialize Kafka producer
	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Kafka.Brokers,
		ClientID:      "outbox-worker",
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		LingerMs:      5,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to create Kafka producer: %v", err))
	}
	defer producer.Close()
	appLog.Info("Kafka producer connected")

	m := metrics.Init()

	outboxWorker := worker.NewOutboxWorker(
		repository.NewPostgresOutboxRepository(db.Pool()),
		producer,
		&worker.OutboxWorkerConfig{
			PollInterval:    cfg.Outbox.PollInterval,
			BatchSize:       cfg.Outbox.BatchSize,
			CleanupInterval: cfg.Outbox.CleanupInterval,
			Retention:       cfg.Outbox.Retention,
		},
		m,
	)
	if err := outboxWorker.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start outbox worker: %v", err))
	}

	// Metrics endpoint for monitoring
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port+1000)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 2 * time.Second}
	go func() {
		appLog.Info(fmt.Sprintf("Metrics listening on %s", metricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error(fmt.Sprintf("Metrics server error: %v", err))
		}
	}()

	appLog.Info("Outbox Worker started successfully")

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down worker...")
	outboxWorker.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	_ = telemetry.Shutdown(shutdownCtx)

	appLog.Info("Worker exited gracefully")
}

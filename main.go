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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/prohmpiriya/event-registration/internal/di"
	"github.com/prohmpiriya/event-registration/internal/metrics"
	"github.com/prohmpiriya/event-registration/internal/service"
	"github.com/prohmpiriya/event-registration/pkg/config"
	"github.com/prohmpiriya/event-registration/pkg/kafka"
	"github.com/prohmpiriya/event-registration/pkg/logger"
	"github.com/prohmpiriya/event-registration/pkg/middleware"
	pkgredis "github.com/prohmpiriya/event-registration/pkg/redis"
	"github.com/prohmpiriya/event-registration/pkg/telemetry"
)

const serviceName = "event-registration"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: serviceName,
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info(fmt.Sprintf("Starting Event Registration Service (store: %s)...", cfg.Store.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn(fmt.Sprintf("Telemetry disabled: %v", err))
	}

	m := metrics.Init()

	// Open the configured store
	infra, err := di.OpenStore(ctx, cfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Store initialization failed: %v", err))
	}
	defer infra.Close(context.Background())

	repos, err := infra.Repositories(cfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to build repositories: %v", err))
	}

	// Redis backs the event cache and idempotency keys. Without it the
	// service falls back to an in-process cache.
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, pkgredis.ConfigFrom(&cfg.Redis))
		if err != nil {
			appLog.Warn(fmt.Sprintf("Redis connection failed, using local cache: %v", err))
			redisClient = nil
		} else {
			defer redisClient.Close()
			appLog.Info(fmt.Sprintf("Redis connected (%s)", cfg.Redis.Addr()))
		}
	}

	// Registration events go through the outbox for postgres, directly to
	// Kafka for the other stores
	var (
		producer       *kafka.Producer
		eventPublisher service.EventPublisher
	)
	if cfg.Kafka.Enabled && repos.Outbox == nil {
		producer, err = kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:       cfg.Kafka.Brokers,
			ClientID:      cfg.Kafka.ClientID,
			MaxRetries:    3,
			RetryInterval: 2 * time.Second,
			LingerMs:      10,
		})
		if err != nil {
			appLog.Warn(fmt.Sprintf("Kafka connection failed, using no-op publisher: %v", err))
			producer = nil
		} else {
			eventPublisher = service.NewKafkaEventPublisherWithProducer(producer, cfg.Kafka.Topic, serviceName)
			appLog.Info("Kafka event publisher connected")
		}
	}

	// Build dependency injection container
	container := di.NewContainer(&di.ContainerConfig{
		DB:             infra.DB,
		Mongo:          infra.Mongo,
		Redis:          redisClient,
		Producer:       producer,
		Repositories:   repos,
		EventPublisher: eventPublisher,
		Metrics:        m,
		TokenValidator: middleware.NewTokenValidator(middleware.JWTConfig{
			Secret: cfg.JWT.Secret,
			Issuer: cfg.JWT.Issuer,
			TTL:    cfg.JWT.AccessTokenTTL,
		}),
		EventCacheTTL: cfg.Cache.EventTTL,
	})
	defer container.Close()

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(telemetry.TracingMiddleware(cfg.OTel.ServiceName))
	router.Use(middleware.AccessLog(appLog, "/health", "/ready", "/metrics"))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins)))

	// Health check endpoints
	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	container.Routes.Register(router)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLog.Info(fmt.Sprintf("Event Registration Service listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLog.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			appLog.Warn(fmt.Sprintf("Telemetry shutdown failed: %v", err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		appLog.Error(err.Error())
		os.Exit(1)
	}

	appLog.Info("Server exited gracefully")
}

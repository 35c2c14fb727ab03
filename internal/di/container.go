package di

import (
	"fmt"
	"time"

	"github.com/prohmpiriya/event-registration/internal/handler"
	"github.com/prohmpiriya/event-registration/internal/metrics"
	"github.com/prohmpiriya/event-registration/internal/repository"
	"github.com/prohmpiriya/event-registration/internal/service"
	"github.com/prohmpiriya/event-registration/pkg/config"
	"github.com/prohmpiriya/event-registration/pkg/database"
	"github.com/prohmpiriya/event-registration/pkg/kafka"
	"github.com/prohmpiriya/event-registration/pkg/middleware"
	"github.com/prohmpiriya/event-registration/pkg/mongodb"
	pkgredis "github.com/prohmpiriya/event-registration/pkg/redis"
)

const defaultEventCacheTTL = 5 * time.Minute

// Repositories groups the stores backing the services
type Repositories struct {
	Events        repository.EventRepository
	Registrations repository.RegistrationRepository
	// Outbox is set only for the postgres driver, where registration events
	// are written in the admission transaction
	Outbox repository.OutboxRepository
}

// RepositoriesConfig selects and configures the store driver
type RepositoriesConfig struct {
	Driver           string
	DB               *database.PostgresDB
	Mongo            *mongodb.Client
	Topic            string
	OutboxMaxRetries int
}

// NewRepositories builds the stores for cfg.Driver
func NewRepositories(cfg *RepositoriesConfig) (*Repositories, error) {
	switch cfg.Driver {
	case config.StoreDriverPostgres:
		if cfg.DB == nil {
			return nil, fmt.Errorf("postgres store requires a database connection")
		}
		pool := cfg.DB.Pool()
		outbox := repository.NewPostgresOutboxRepository(pool)
		return &Repositories{
			Events:        repository.NewPostgresEventRepository(pool),
			Registrations: repository.NewPostgresRegistrationRepository(pool, outbox, cfg.Topic).WithOutboxMaxRetries(cfg.OutboxMaxRetries),
			Outbox:        outbox,
		}, nil
	case config.StoreDriverMongo:
		if cfg.Mongo == nil {
			return nil, fmt.Errorf("mongo store requires a mongodb client")
		}
		store := repository.NewMongoStore(cfg.Mongo.Database())
		return &Repositories{
			Events:        store.Events(),
			Registrations: store.Registrations(),
		}, nil
	case config.StoreDriverMemory:
		store := repository.NewMemoryStore()
		return &Repositories{
			Events:        store.Events(),
			Registrations: store.Registrations(),
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %q", cfg.Driver)
	}
}

// Container holds all dependencies for the registration service
type Container struct {
	// Infrastructure
	DB       *database.PostgresDB
	Mongo    *mongodb.Client
	Redis    *pkgredis.Client
	Producer *kafka.Producer
	Metrics  *metrics.Metrics

	// Repositories
	EventRepo        repository.EventRepository
	RegistrationRepo repository.RegistrationRepository
	OutboxRepo       repository.OutboxRepository

	// Publishers
	EventPublisher service.EventPublisher

	// Services
	EventService        service.EventService
	RegistrationService service.RegistrationService

	// Handlers
	HealthHandler       *handler.HealthHandler
	EventHandler        *handler.EventHandler
	RegistrationHandler *handler.RegistrationHandler
	Routes              *handler.Routes
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	DB             *database.PostgresDB
	Mongo          *mongodb.Client
	Redis          *pkgredis.Client
	Producer       *kafka.Producer
	Repositories   *Repositories
	EventPublisher service.EventPublisher
	Metrics        *metrics.Metrics
	TokenValidator *middleware.TokenValidator
	EventCacheTTL  time.Duration
	ServiceConfig  *service.RegistrationServiceConfig
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		DB:               cfg.DB,
		Mongo:            cfg.Mongo,
		Redis:            cfg.Redis,
		Producer:         cfg.Producer,
		Metrics:          cfg.Metrics,
		RegistrationRepo: cfg.Repositories.Registrations,
		OutboxRepo:       cfg.Repositories.Outbox,
		EventPublisher:   cfg.EventPublisher,
	}

	// The outbox relay publishes for the postgres store
	if c.EventPublisher == nil || c.OutboxRepo != nil {
		c.EventPublisher = service.NewNoOpEventPublisher()
	}

	ttl := cfg.EventCacheTTL
	if ttl <= 0 {
		ttl = defaultEventCacheTTL
	}
	var cache repository.EventCache
	if c.Redis != nil {
		cache = repository.NewRedisEventCache(c.Redis, ttl)
	} else {
		cache = repository.NewLocalEventCache(ttl)
	}
	c.EventRepo = repository.NewCachedEventRepository(cfg.Repositories.Events, cache, c.Metrics)

	// Initialize services
	c.EventService = service.NewEventService(c.EventRepo, c.RegistrationRepo)
	c.RegistrationService = service.NewRegistrationService(
		c.EventRepo,
		c.RegistrationRepo,
		c.EventPublisher,
		c.Metrics,
		cfg.ServiceConfig,
	)

	// Initialize handlers
	c.HealthHandler = handler.NewHealthHandler(c.healthComponents())
	c.EventHandler = handler.NewEventHandler(c.EventService)
	c.RegistrationHandler = handler.NewRegistrationHandler(c.RegistrationService)

	c.Routes = &handler.Routes{
		Events:        c.EventHandler,
		Registrations: c.RegistrationHandler,
		Auth:          middleware.Auth(cfg.TokenValidator),
	}
	if c.Redis != nil {
		c.Routes.Idempotency = middleware.Idempotency(middleware.DefaultIdempotencyConfig(c.Redis))
	}

	return c
}

// healthComponents lists the dependencies checked by /ready
func (c *Container) healthComponents() map[string]handler.HealthChecker {
	components := make(map[string]handler.HealthChecker)
	if c.DB != nil {
		components["postgres"] = c.DB
	}
	if c.Mongo != nil {
		components["mongodb"] = c.Mongo
	}
	if c.Redis != nil {
		components["redis"] = c.Redis
	}
	if c.Producer != nil {
		components["kafka"] = handler.HealthCheckFunc(c.Producer.Ping)
	}
	return components
}

// Close releases the publisher
func (c *Container) Close() error {
	return c.EventPublisher.Close()
}

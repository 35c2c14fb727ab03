package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prohmpiriya/event-registration/internal/repository"
	"github.com/prohmpiriya/event-registration/pkg/config"
	"github.com/prohmpiriya/event-registration/pkg/database"
	"github.com/prohmpiriya/event-registration/pkg/logger"
	"github.com/prohmpiriya/event-registration/pkg/mongodb"
)

// Infrastructure holds the connections opened for the configured store
type Infrastructure struct {
	DB    *database.PostgresDB
	Mongo *mongodb.Client
}

// OpenStore connects to the backend selected by cfg.Store.Driver and
// prepares its schema. The memory driver opens nothing.
func OpenStore(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	log := logger.Get()
	infra := &Infrastructure{}

	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		if err := cfg.ValidateDatabase(); err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := database.MigrateUp(cfg.Database.URL()); err != nil {
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("Database migrations applied")
		}
		db, err := database.NewPostgres(ctx, database.PostgresConfigFrom(&cfg.Database, cfg.OTel.Enabled))
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		infra.DB = db
		log.Info(fmt.Sprintf("Database connected (pool: max=%d)", cfg.Database.MaxOpenConns))

	case config.StoreDriverMongo:
		client, err := mongodb.NewClient(ctx, &mongodb.Config{
			URI:            cfg.MongoDB.URI,
			Database:       cfg.MongoDB.Database,
			ConnectTimeout: cfg.MongoDB.ConnectTimeout,
			MaxRetries:     5,
			RetryInterval:  time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("mongodb connection failed: %w", err)
		}
		if err := repository.NewMongoStore(client.Database()).EnsureIndexes(ctx); err != nil {
			_ = client.Close(context.Background())
			return nil, fmt.Errorf("failed to create mongodb indexes: %w", err)
		}
		infra.Mongo = client
		log.Info(fmt.Sprintf("MongoDB connected (database: %s)", cfg.MongoDB.Database))

	case config.StoreDriverMemory:
		log.Warn("Using in-memory store, data is lost on restart")
	}

	return infra, nil
}

// Repositories builds the stores over the open connections
func (i *Infrastructure) Repositories(cfg *config.Config) (*Repositories, error) {
	return NewRepositories(&RepositoriesConfig{
		Driver:           cfg.Store.Driver,
		DB:               i.DB,
		Mongo:            i.Mongo,
		Topic:            cfg.Kafka.Topic,
		OutboxMaxRetries: cfg.Outbox.MaxRetries,
	})
}

// Close closes every open connection
func (i *Infrastructure) Close(ctx context.Context) {
	if i.DB != nil {
		i.DB.Close()
	}
	if i.Mongo != nil {
		if err := i.Mongo.Close(ctx); err != nil {
			logger.Get().Warn(fmt.Sprintf("Failed to close mongodb client: %v", err))
		}
	}
}

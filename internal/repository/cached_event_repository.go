package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/prohmpiriya/event-registration/internal/domain"
	"github.com/prohmpiriya/event-registration/internal/metrics"
	"github.com/prohmpiriya/event-registration/pkg/logger"
	pkgredis "github.com/prohmpiriya/event-registration/pkg/redis"
)

const eventCacheKeyPrefix = "event:"

// EventCache stores events by id
type EventCache interface {
	// Get returns the cached event and whether it was found
	Get(ctx context.Context, id string) (*domain.Event, bool, error)
	Set(ctx context.Context, event *domain.Event) error
	// Clear drops every cached event
	Clear(ctx context.Context) error
}

// RedisEventCache keeps events in Redis as JSON
type RedisEventCache struct {
	client *pkgredis.Client
	ttl    time.Duration
}

// NewRedisEventCache creates a Redis backed event cache
func NewRedisEventCache(client *pkgredis.Client, ttl time.Duration) *RedisEventCache {
	return &RedisEventCache{client: client, ttl: ttl}
}

func (c *RedisEventCache) Get(ctx context.Context, id string) (*domain.Event, bool, error) {
	var event domain.Event
	if err := c.client.GetJSON(ctx, eventCacheKeyPrefix+id, &event); err != nil {
		if errors.Is(err, pkgredis.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &event, true, nil
}

func (c *RedisEventCache) Set(ctx context.Context, event *domain.Event) error {
	return c.client.SetJSON(ctx, eventCacheKeyPrefix+event.ID, event, c.ttl)
}

func (c *RedisEventCache) Clear(ctx context.Context) error {
	_, err := c.client.DeleteByPrefix(ctx, eventCacheKeyPrefix)
	return err
}

// LocalEventCache keeps events in process memory
type LocalEventCache struct {
	cache *gocache.Cache
}

// NewLocalEventCache creates an in-process event cache
func NewLocalEventCache(ttl time.Duration) *LocalEventCache {
	return &LocalEventCache{cache: gocache.New(ttl, 2*ttl)}
}

func (c *LocalEventCache) Get(_ context.Context, id string) (*domain.Event, bool, error) {
	v, ok := c.cache.Get(eventCacheKeyPrefix + id)
	if !ok {
		return nil, false, nil
	}
	event := *v.(*domain.Event)
	return &event, true, nil
}

func (c *LocalEventCache) Set(_ context.Context, event *domain.Event) error {
	stored := *event
	c.cache.SetDefault(eventCacheKeyPrefix+event.ID, &stored)
	return nil
}

func (c *LocalEventCache) Clear(context.Context) error {
	c.cache.Flush()
	return nil
}

// CachedEventRepository serves GetByID from a cache in front of another
// EventRepository. Events never change after creation; entries expire by
// TTL or are dropped together when the catalog is cleared.
type CachedEventRepository struct {
	EventRepository
	cache   EventCache
	metrics *metrics.Metrics
}

// NewCachedEventRepository wraps next with cache
func NewCachedEventRepository(next EventRepository, cache EventCache, m *metrics.Metrics) *CachedEventRepository {
	return &CachedEventRepository{EventRepository: next, cache: cache, metrics: m}
}

// GetByID reads through the cache. Cache failures fall back to the store.
func (r *CachedEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	event, ok, err := r.cache.Get(ctx, id)
	if err != nil {
		logger.Get().Warn("event cache read failed", zap.String("event_id", id), zap.Error(err))
	}
	if ok {
		r.metrics.RecordCacheHit()
		return event, nil
	}
	r.metrics.RecordCacheMiss()

	event, err = r.EventRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, event); err != nil {
		logger.Get().Warn(fmt.Sprintf("failed to cache event %s", id), zap.Error(err))
	}
	return event, nil
}

// DeleteAll clears the store, then the cache. A failed cache clear is logged
// and left to TTL expiry.
func (r *CachedEventRepository) DeleteAll(ctx context.Context) (int64, error) {
	n, err := r.EventRepository.DeleteAll(ctx)
	if err != nil {
		return n, err
	}
	if err := r.cache.Clear(ctx); err != nil {
		logger.Get().Warn("failed to clear event cache", zap.Error(err))
	}
	return n, nil
}

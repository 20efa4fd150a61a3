// internal/store/cache.go
package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/common/metrics"
	"notification-dispatch/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SubscriberSource is the uncached read side the cache falls back to.
type SubscriberSource interface {
	FindCategory(ctx context.Context, id uuid.UUID) (models.Category, error)
	FindUsersSubscribedTo(ctx context.Context, categoryID uuid.UUID) ([]models.User, error)
}

// CachedFinder keeps FindUsersSubscribedTo results in Redis for ttl.
// Redis failures are logged and the source is used instead.
type CachedFinder struct {
	source SubscriberSource
	redis  redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedFinder(source SubscriberSource, rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *CachedFinder {
	return &CachedFinder{
		source: source,
		redis:  rdb,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "subscriber-cache"}),
	}
}

const subscribersKeyPrefix = "subs:"

func subscribersKey(categoryID uuid.UUID) string {
	return subscribersKeyPrefix + categoryID.String()
}

func (c *CachedFinder) FindCategory(ctx context.Context, id uuid.UUID) (models.Category, error) {
	return c.source.FindCategory(ctx, id)
}

func (c *CachedFinder) FindUsersSubscribedTo(ctx context.Context, categoryID uuid.UUID) ([]models.User, error) {
	key := subscribersKey(categoryID)

	cached, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var users []models.User
		if jsonErr := json.Unmarshal(cached, &users); jsonErr == nil {
			metrics.SubscriberCacheLookups.WithLabelValues("hit").Inc()
			return users, nil
		}
		c.logger.Warn("discarding undecodable cache entry", map[string]interface{}{"key": key})
		metrics.SubscriberCacheLookups.WithLabelValues("error").Inc()
	case stderrors.Is(err, redis.Nil):
		metrics.SubscriberCacheLookups.WithLabelValues("miss").Inc()
	default:
		c.logger.Warn("subscriber cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
		metrics.SubscriberCacheLookups.WithLabelValues("error").Inc()
	}

	users, err := c.source.FindUsersSubscribedTo(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(users)
	if err != nil {
		return users, nil
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("subscriber cache write failed", map[string]interface{}{"key": key, "error": err.Error()})
	}
	return users, nil
}

// Invalidate drops the cached subscribers of the given categories.
func (c *CachedFinder) Invalidate(ctx context.Context, categoryIDs ...uuid.UUID) error {
	if len(categoryIDs) == 0 {
		return nil
	}
	keys := make([]string, len(categoryIDs))
	for i, id := range categoryIDs {
		keys[i] = subscribersKey(id)
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate subscriber cache: %w", err)
	}
	return nil
}

// InvalidateAll drops every cached subscriber set. It is used after bulk
// writes whose affected categories are not tracked, such as seeding.
func (c *CachedFinder) InvalidateAll(ctx context.Context) error {
	var keys []string
	iter := c.redis.Scan(ctx, 0, subscribersKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan subscriber cache: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate subscriber cache: %w", err)
	}
	return nil
}

// CacheInvalidatingStore wraps the Store writes made by this service that
// change subscriber sets. Writes made elsewhere are only picked up once the
// cached entry expires.
type CacheInvalidatingStore struct {
	*Store
	cache *CachedFinder
}

func NewCacheInvalidatingStore(s *Store, cache *CachedFinder) *CacheInvalidatingStore {
	return &CacheInvalidatingStore{Store: s, cache: cache}
}

func (s *CacheInvalidatingStore) Subscribe(ctx context.Context, userID, categoryID uuid.UUID) error {
	if err := s.Store.Subscribe(ctx, userID, categoryID); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, categoryID)
}

// Seed runs Store.Seed and then drops every cached subscriber set.
func (s *CacheInvalidatingStore) Seed(ctx context.Context) (SeedResult, error) {
	result, err := s.Store.Seed(ctx)
	if err != nil {
		return result, err
	}
	return result, s.cache.InvalidateAll(ctx)
}

func (s *CacheInvalidatingStore) AttachChannel(ctx context.Context, userID, channelID uuid.UUID) error {
	if err := s.Store.AttachChannel(ctx, userID, channelID); err != nil {
		return err
	}
	categories, err := s.Store.UserCategories(ctx, userID)
	if err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, categories...)
}

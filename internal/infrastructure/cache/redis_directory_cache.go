package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	appsettlement "github.com/erp/reconciler/internal/application/settlement"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultDirectoryKeyPrefix = "settlement:directory"
	defaultDirectoryTTL       = 5 * time.Minute
)

// RedisDirectoryCache caches the party directory of an inner provider in
// Redis so that every instance shares one snapshot per TTL window
type RedisDirectoryCache struct {
	client     *redis.Client
	ownsClient bool // true if we created the client and should close it
	inner      appsettlement.DirectoryProvider
	keyPrefix  string
	ttl        time.Duration
	logger     *zap.Logger
}

// DirectoryCacheOption is a functional option for configuring directory caches
type DirectoryCacheOption func(*directoryCacheOptions)

type directoryCacheOptions struct {
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

func defaultDirectoryCacheOptions() directoryCacheOptions {
	return directoryCacheOptions{
		keyPrefix: defaultDirectoryKeyPrefix,
		ttl:       defaultDirectoryTTL,
		logger:    zap.NewNop(),
	}
}

// WithKeyPrefix sets the Redis key prefix
func WithKeyPrefix(prefix string) DirectoryCacheOption {
	return func(o *directoryCacheOptions) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}

// WithTTL sets how long a directory snapshot is served
func WithTTL(ttl time.Duration) DirectoryCacheOption {
	return func(o *directoryCacheOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithCacheLogger sets the logger for the cache
func WithCacheLogger(logger *zap.Logger) DirectoryCacheOption {
	return func(o *directoryCacheOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewRedisDirectoryCache connects to Redis and wraps inner
func NewRedisDirectoryCache(cfg RedisConfig, inner appsettlement.DirectoryProvider, opts ...DirectoryCacheOption) (*RedisDirectoryCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c := NewRedisDirectoryCacheWithClient(client, inner, opts...)
	c.ownsClient = true
	return c, nil
}

// NewRedisDirectoryCacheWithClient creates a cache with an existing Redis client.
// The caller retains ownership of the client.
func NewRedisDirectoryCacheWithClient(client *redis.Client, inner appsettlement.DirectoryProvider, opts ...DirectoryCacheOption) *RedisDirectoryCache {
	o := defaultDirectoryCacheOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &RedisDirectoryCache{
		client:    client,
		inner:     inner,
		keyPrefix: o.keyPrefix,
		ttl:       o.ttl,
		logger:    o.logger,
	}
}

func (c *RedisDirectoryCache) namesKey() string {
	return c.keyPrefix + ":names"
}

// PartyNames implements application settlement.DirectoryProvider. A Redis
// failure degrades to reading the inner provider directly.
func (c *RedisDirectoryCache) PartyNames(ctx context.Context) (map[string]string, error) {
	raw, err := c.client.Get(ctx, c.namesKey()).Bytes()
	switch {
	case err == nil:
		var names map[string]string
		if jsonErr := json.Unmarshal(raw, &names); jsonErr == nil {
			return names, nil
		}
		c.logger.Warn("Discarding unreadable cached party directory", zap.String("key", c.namesKey()))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("Party directory cache read failed", zap.Error(err))
		return c.inner.PartyNames(ctx)
	}

	names, err := c.inner.PartyNames(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(names)
	if err != nil {
		return names, nil
	}
	if err := c.client.Set(ctx, c.namesKey(), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Party directory cache write failed", zap.Error(err))
	}
	return names, nil
}

// Invalidate drops the cached snapshot
func (c *RedisDirectoryCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.namesKey()).Err(); err != nil {
		return fmt.Errorf("failed to invalidate party directory: %w", err)
	}
	return nil
}

// Close closes the Redis client if the cache created it
func (c *RedisDirectoryCache) Close() error {
	if !c.ownsClient {
		return nil
	}
	return c.client.Close()
}

var _ appsettlement.DirectoryProvider = (*RedisDirectoryCache)(nil)

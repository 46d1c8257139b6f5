package cache

import (
	"context"
	"fmt"

	appsettlement "github.com/erp/reconciler/internal/application/settlement"
	"github.com/erp/reconciler/internal/infrastructure/config"
	"go.uber.org/zap"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// DirectoryCache is a cached party directory
type DirectoryCache interface {
	appsettlement.DirectoryProvider
	Invalidate(ctx context.Context) error
	Close() error
}

// DirectoryCacheFactory creates directory caches based on configuration
type DirectoryCacheFactory struct {
	redisConfig           config.RedisConfig
	directoryConfig       config.DirectoryConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// DirectoryCacheFactoryOption is a functional option for configuring the factory
type DirectoryCacheFactoryOption func(*DirectoryCacheFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) DirectoryCacheFactoryOption {
	return func(f *DirectoryCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to an in-memory cache when
// Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) DirectoryCacheFactoryOption {
	return func(f *DirectoryCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewDirectoryCacheFactory creates a new factory
func NewDirectoryCacheFactory(redisCfg config.RedisConfig, dirCfg config.DirectoryConfig, opts ...DirectoryCacheFactoryOption) *DirectoryCacheFactory {
	f := &DirectoryCacheFactory{
		redisConfig:           redisCfg,
		directoryConfig:       dirCfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *DirectoryCacheFactory) cacheOptions() []DirectoryCacheOption {
	return []DirectoryCacheOption{
		WithKeyPrefix(f.directoryConfig.KeyPrefix),
		WithTTL(f.directoryConfig.CacheTTL),
		WithCacheLogger(f.logger),
	}
}

// Create wraps inner in a Redis cache, falling back to an in-memory cache
// when Redis cannot be reached and fallback is allowed
func (f *DirectoryCacheFactory) Create(inner appsettlement.DirectoryProvider) (DirectoryCache, error) {
	c, err := NewRedisDirectoryCache(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}, inner, f.cacheOptions()...)
	if err == nil {
		f.logger.Info("Using Redis party directory cache", zap.String("addr", f.redisConfig.Addr()))
		return c, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for party directory cache but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory party directory cache", zap.Error(err))
	return NewInMemoryDirectoryCache(inner, f.cacheOptions()...), nil
}

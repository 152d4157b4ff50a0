package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aidimport/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cache is the byte-oriented cache the datastore client stores API
// responses in. Values carry their own TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

// ErrCacheMiss is returned when a key is not found in the cache.
var ErrCacheMiss = fmt.Errorf("cache miss")

// RedisCache implements Cache on a Redis instance. All keys share a
// configurable prefix so several services can coexist on one server.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to Redis and verifies the connection before
// returning.
func NewRedisCache(config config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Msg("Failed to connect to Redis")
		return nil, err
	}

	log.Info().
		Str("address", config.Address).
		Str("prefix", config.Prefix).
		Int("db", config.DB).
		Msg("Redis cache initialized successfully")

	return &RedisCache{
		client: client,
		prefix: config.Prefix,
	}, nil
}

func (c *RedisCache) formatKey(key string) string {
	return c.prefix + ":" + key
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	formattedKey := c.formatKey(key)

	result, err := c.client.Get(ctx, formattedKey).Bytes()
	if errors.Is(err, redis.Nil) {
		log.Debug().Str("key", formattedKey).Msg("Cache miss")
		return nil, ErrCacheMiss
	}
	if err != nil {
		log.Error().Err(err).Str("key", formattedKey).Msg("Error getting value from Redis")
		return nil, err
	}

	log.Debug().Str("key", formattedKey).Int("size", len(result)).Msg("Cache hit")

	return result, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	formattedKey := c.formatKey(key)

	if err := c.client.Set(ctx, formattedKey, value, ttl).Err(); err != nil {
		log.Error().
			Err(err).
			Str("key", formattedKey).
			Int("size", len(value)).
			Dur("ttl", ttl).
			Msg("Error setting value in Redis")
		return err
	}

	log.Debug().Str("key", formattedKey).Int("size", len(value)).Dur("ttl", ttl).Msg("Cached value")

	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Msg("Error pinging Redis")
		return err
	}
	return nil
}

func (c *RedisCache) Close() error {
	log.Info().Msg("Closing Redis cache connection")
	return c.client.Close()
}

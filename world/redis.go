package world

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of go-redis client methods used by
// RedisBackend. Keeping it as an interface enables substitution in tests.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// RedisConfig holds connection settings for RedisBackend.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// RedisBackend keeps each namespace in one Redis hash named Prefix+namespace.
type RedisBackend struct {
	client RedisClient
	prefix string
}

// NewRedisBackend connects to Redis and verifies the connection with PING.
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	opts := &redis.Options{
		Addr: cfg.Address,
		DB:   cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("world: redis %s: ping failed: %w", cfg.Address, err)
	}
	return NewRedisBackendWithClient(client, cfg.Prefix), nil
}

// NewRedisBackendWithClient creates a RedisBackend backed by a pre-built
// client.
func NewRedisBackendWithClient(client RedisClient, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

// Store returns the hash of namespace as a Store.
func (b *RedisBackend) Store(namespace string) Store {
	return &redisStore{client: b.client, key: b.prefix + namespace}
}

// Drop deletes the hash holding namespace.
func (b *RedisBackend) Drop(ctx context.Context, namespace string) error {
	if err := b.client.Del(ctx, b.prefix+namespace).Err(); err != nil {
		return fmt.Errorf("world: redis drop %s: %w", namespace, err)
	}
	return nil
}

// Close closes the client.
func (b *RedisBackend) Close() error { return b.client.Close() }

type redisStore struct {
	client RedisClient
	key    string
}

func (s *redisStore) Get(ctx context.Context, field string) (string, bool, error) {
	v, err := s.client.HGet(ctx, s.key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("world: redis get %s: %w", field, err)
	}
	return v, true, nil
}

func (s *redisStore) Set(ctx context.Context, field, value string) error {
	return s.client.HSet(ctx, s.key, field, value).Err()
}

func (s *redisStore) Delete(ctx context.Context, field string) error {
	return s.client.HDel(ctx, s.key, field).Err()
}

func (s *redisStore) Snapshot(ctx context.Context) (map[string]string, error) {
	return s.client.HGetAll(ctx, s.key).Result()
}

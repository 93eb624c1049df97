package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps snapshots in Redis under "<prefix><namespace>/<key>".
type RedisStore[T any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*redisConfig)

type redisConfig struct {
	prefix string
	ttl    time.Duration
}

// WithRedisPrefix sets the key prefix, "editorstate:" by default.
func WithRedisPrefix(prefix string) RedisOption {
	return func(cfg *redisConfig) {
		cfg.prefix = prefix
	}
}

// WithRedisTTL expires snapshots after ttl. Zero keeps them forever.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(cfg *redisConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore[T any](ctx context.Context, redisURL string, opts ...RedisOption) (*RedisStore[T], error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("state: parse redis url: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("state: connect to redis: %w", err)
	}

	return NewRedisStoreWithClient[T](client, opts...), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient[T any](client *redis.Client, opts ...RedisOption) *RedisStore[T] {
	cfg := redisConfig{prefix: "editorstate:"}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &RedisStore[T]{
		client: client,
		prefix: cfg.prefix,
		ttl:    cfg.ttl,
	}
}

func (s *RedisStore[T]) key(ref Ref) (string, error) {
	id, err := ref.Identifier()
	if err != nil {
		return "", err
	}
	return s.prefix + id, nil
}

func (s *RedisStore[T]) Load(ctx context.Context, ref Ref) (T, Meta, bool, error) {
	var zero T
	key, err := s.key(ref)
	if err != nil {
		return zero, Meta{}, false, err
	}

	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, Meta{}, false, nil
	}
	if err != nil {
		return zero, Meta{}, false, fmt.Errorf("state: redis load %s: %w", key, err)
	}

	snapshot, meta, err := decodeEnvelope[T](data)
	if err != nil {
		return zero, Meta{}, false, fmt.Errorf("state: redis decode %s: %w", key, err)
	}
	return snapshot, meta, true, nil
}

func (s *RedisStore[T]) Save(ctx context.Context, ref Ref, snapshot T, meta Meta) (Meta, error) {
	key, err := s.key(ref)
	if err != nil {
		return Meta{}, err
	}
	stamped, err := stamp(snapshot, meta)
	if err != nil {
		return Meta{}, err
	}
	data, err := encodeEnvelope(snapshot, stamped)
	if err != nil {
		return Meta{}, fmt.Errorf("state: redis encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return Meta{}, fmt.Errorf("state: redis save %s: %w", key, err)
	}
	return stamped, nil
}

func (s *RedisStore[T]) Delete(ctx context.Context, ref Ref) error {
	key, err := s.key(ref)
	if err != nil {
		return err
	}
	removed, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("state: redis delete %s: %w", key, err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks if Redis is reachable.
func (s *RedisStore[T]) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore[T]) Close() error {
	return s.client.Close()
}

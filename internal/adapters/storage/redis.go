package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "certifica:"
	redisDialTimeout   = 5 * time.Second
)

// Redis stores values as plain redis strings under a key prefix.
type Redis struct {
	rdb    *goredis.Client
	prefix string
}

// RedisOption configures the Redis store.
type RedisOption func(*Redis)

// WithPrefix sets the prefix prepended to every key.
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// NewRedis connects to addr and pings it before returning.
func NewRedis(ctx context.Context, addr string, opts ...RedisOption) (*Redis, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: redisDialTimeout,
	})
	r, err := NewRedisFromClient(ctx, rdb, opts...)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return r, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(ctx context.Context, rdb *goredis.Client, opts ...RedisOption) (*Redis, error) {
	r := &Redis{rdb: rdb, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(r)
	}

	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return r, nil
}

func (r *Redis) key(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	return r.prefix + key, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := r.key(key)
	if err != nil {
		return nil, err
	}
	b, err := r.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	k, err := r.key(key)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, k, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	k, err := r.key(key)
	if err != nil {
		return err
	}
	if err := r.rdb.Del(ctx, k).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

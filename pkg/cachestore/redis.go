package cachestore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string `yaml:"address"`

	// Password for Redis authentication (optional)
	Password string `yaml:"password"`

	// Database number to use (default: 0)
	Database int `yaml:"database"`

	// Prefix is prepended to every key.
	Prefix string `yaml:"prefix"`

	// TTL expires cached tables; 0 keeps them until purged.
	TTL time.Duration `yaml:"ttl"`

	// Timeout for Redis operations
	Timeout time.Duration `yaml:"timeout"`

	// PoolSize is the maximum number of connections
	PoolSize int `yaml:"pool_size"`

	// TLS enables TLS connection
	TLS bool `yaml:"tls"`
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:  address,
		Prefix:   "actorflow:cache:",
		Timeout:  5 * time.Second,
		PoolSize: 10,
	}
}

// Redis stores objects as Redis string values.
type Redis struct {
	cfg    RedisConfig
	client redis.UniversalClient
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisWithClient(client, cfg), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, cfg RedisConfig) *Redis {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Redis{cfg: cfg, client: client}
}

func (b *Redis) redisKey(key string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return b.cfg.Prefix + key, nil
}

// Get fetches the value under key.
func (b *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := b.redisKey(key)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	data, err := b.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s from Redis: %w", k, err)
	}
	return data, nil
}

// Put sets the value under key with the configured TTL.
func (b *Redis) Put(ctx context.Context, key string, data []byte) error {
	k, err := b.redisKey(key)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	if err := b.client.Set(ctx, k, data, b.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("failed to set %s in Redis: %w", k, err)
	}
	return nil
}

// Exists checks key existence.
func (b *Redis) Exists(ctx context.Context, key string) (bool, error) {
	k, err := b.redisKey(key)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	n, err := b.client.Exists(ctx, k).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes key.
func (b *Redis) Delete(ctx context.Context, key string) error {
	k, err := b.redisKey(key)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	return b.client.Del(ctx, k).Err()
}

// List scans for keys under prefix.
func (b *Redis) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	pattern := escapeGlob(b.cfg.Prefix+prefix) + "*"

	var keys []string
	iter := b.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), b.cfg.Prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan Redis keys: %w", err)
	}

	sort.Strings(keys)
	return keys, nil
}

// Name returns "redis".
func (b *Redis) Name() string { return "redis" }

// Close closes the client.
func (b *Redis) Close() error { return b.client.Close() }

// escapeGlob escapes the SCAN MATCH metacharacters.
func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}

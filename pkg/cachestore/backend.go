// Package cachestore provides the storage backends persisted edge instance
// tables live on: a local directory, S3, Redis, or process memory.
//
// Keys are slash-separated paths relative to the backend root, e.g.
// "bpic2017/decomposed_actor_behavior/actor_behavior_A_B_1a2b3c4d.parquet".
package cachestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ferrors "github.com/logflow/actorflow/pkg/errors"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("cachestore: object not found")

// Backend stores opaque objects by key.
type Backend interface {
	// Get returns the object stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores data under key, replacing any previous object. Readers
	// never observe a partially written object.
	Put(ctx context.Context, key string, data []byte) error

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns every key with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Name returns the backend name for logging.
	Name() string

	// Close releases backend resources.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	// Backend is one of local, s3, redis or memory.
	Backend string `yaml:"backend"`

	// Dir is the local backend root.
	Dir string `yaml:"dir"`

	S3    S3Config    `yaml:"s3"`
	Redis RedisConfig `yaml:"redis"`
}

// DefaultConfig returns a local backend rooted at dir.
func DefaultConfig(dir string) Config {
	return Config{
		Backend: "local",
		Dir:     dir,
		S3:      DefaultS3Config(""),
		Redis:   DefaultRedisConfig("localhost:6379"),
	}
}

// Open creates the backend cfg selects.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "local":
		return NewLocal(cfg.Dir)
	case "s3":
		return NewS3(ctx, cfg.S3)
	case "redis":
		return NewRedis(ctx, cfg.Redis)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, ferrors.InvalidConfig("cache.backend", cfg.Backend, "unknown cache backend")
	}
}

// cleanKey rejects keys that could escape the backend root.
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", fmt.Errorf("cachestore: empty key")
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." || part == "" {
			return "", fmt.Errorf("cachestore: invalid key %q", key)
		}
	}
	return key, nil
}

package instances

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/logflow/actorflow/pkg/cachestore"
	"github.com/logflow/actorflow/pkg/edge"
	"github.com/logflow/actorflow/pkg/errors"
	"github.com/logflow/actorflow/pkg/graph"
	"github.com/logflow/actorflow/pkg/telemetry"
)

const (
	cacheDir    = "decomposed_actor_behavior"
	cachePrefix = "actor_behavior_"
	cacheExt    = ".parquet"
)

// CacheConfig identifies what a cache serves.
type CacheConfig struct {
	// Dataset scopes cache keys.
	Dataset string

	// Schema is the dataset's edge key schema.
	Schema edge.Schema

	// Case names the case-level DF relationship instances are read from.
	Case graph.Entity

	// TimeUnit is the unit durations are converted to on a miss.
	TimeUnit TimeUnit
}

// Cache returns edge instance tables, querying the graph only when no
// persisted table exists. Persisted tables are trusted until purged.
type Cache struct {
	exec    graph.Executor
	backend cachestore.Backend
	cfg     CacheConfig

	logger  *slog.Logger
	metrics *telemetry.Metrics

	group singleflight.Group

	hits          atomic.Int64
	misses        atomic.Int64
	queries       atomic.Int64
	writeFailures atomic.Int64
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheLogger sets the logger. Defaults to slog.Default().
func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = l
	}
}

// WithCacheMetrics records lookups and write failures on m.
func WithCacheMetrics(m *telemetry.Metrics) CacheOption {
	return func(c *Cache) {
		c.metrics = m
	}
}

// NewCache creates a cache reading from exec and persisting to backend.
func NewCache(exec graph.Executor, backend cachestore.Backend, cfg CacheConfig, opts ...CacheOption) *Cache {
	if cfg.TimeUnit == "" {
		cfg.TimeUnit = Hours
	}
	c := &Cache{exec: exec, backend: backend, cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Key returns the backend key the table for k is stored under:
// <dataset>/decomposed_actor_behavior/actor_behavior_<slug>.parquet.
func (c *Cache) Key(k edge.Key) string {
	return path.Join(c.cfg.Dataset, cacheDir, cachePrefix+k.Slug()+cacheExt)
}

// InstancesFor returns the instance table of k.
//
// On a miss the table is queried, every row is duplicated under the All
// label, and the result is persisted. A persistence failure is logged and
// counted, and the freshly computed table is still returned.
func (c *Cache) InstancesFor(ctx context.Context, k edge.Key) (*Table, error) {
	if err := c.cfg.Schema.Validate(k); err != nil {
		return nil, err
	}

	key := c.Key(k)
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.load(ctx, k, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Table), nil
}

func (c *Cache) load(ctx context.Context, k edge.Key, key string) (*Table, error) {
	ctx, span := telemetry.StartSpan(ctx, "instances.InstancesFor",
		attribute.String("edge", k.String()),
		attribute.String("cache_key", key),
	)
	logger := telemetry.LoggerWithTrace(ctx, c.logger).With("edge", k.String())

	data, err := c.backend.Get(ctx, key)
	switch {
	case err == nil:
		t, derr := DecodeParquet(ctx, data)
		if derr != nil {
			rerr := errors.CacheReadFailed(key, derr)
			telemetry.EndSpan(span, rerr)
			return nil, rerr
		}
		c.hits.Add(1)
		c.metrics.CacheHit()
		span.SetAttributes(attribute.Bool("cache_hit", true))
		telemetry.EndSpan(span, nil)
		logger.Debug("instance cache hit", "rows", t.Len(), "stored_unit", t.TimeUnit)
		// Tables written under another time unit share the key.
		return t.In(c.cfg.TimeUnit), nil

	case !stderrors.Is(err, cachestore.ErrNotFound):
		rerr := errors.CacheReadFailed(key, err)
		telemetry.EndSpan(span, rerr)
		return nil, rerr
	}

	c.misses.Add(1)
	c.metrics.CacheMiss()
	span.SetAttributes(attribute.Bool("cache_hit", false))

	q := instanceQuery(c.cfg.Schema, c.cfg.Case, k)
	c.queries.Add(1)
	rows, err := fetch(ctx, c.exec, q, c.cfg.TimeUnit)
	c.metrics.ObserveQuery(q.Name, err)
	if err != nil {
		telemetry.EndSpan(span, err)
		return nil, err
	}

	t := &Table{TimeUnit: c.cfg.TimeUnit, Instances: withAll(rows)}

	if err := c.persist(ctx, key, t); err != nil {
		c.writeFailures.Add(1)
		c.metrics.CacheWriteFailed()
		logger.Warn("failed to persist instance table; continuing with in-memory result",
			"key", key, "error", err)
	} else {
		logger.Debug("instance cache miss", "rows", t.Len(), "key", key)
	}

	telemetry.EndSpan(span, nil)
	return t, nil
}

func (c *Cache) persist(ctx context.Context, key string, t *Table) error {
	data, err := EncodeParquet(t)
	if err != nil {
		return errors.CacheWriteFailed(key, err)
	}
	if err := c.backend.Put(ctx, key, data); err != nil {
		return errors.CacheWriteFailed(key, err)
	}
	return nil
}

// Purge deletes every cached table of the dataset and returns how many were
// removed.
func (c *Cache) Purge(ctx context.Context) (int, error) {
	prefix := path.Join(c.cfg.Dataset, cacheDir) + "/"
	keys, err := c.backend.List(ctx, prefix)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeCacheReadFailed, "failed to list cached tables").
			WithContext("prefix", prefix)
	}

	removed := 0
	var failed errors.MultiError
	for _, key := range keys {
		name := path.Base(key)
		if !strings.HasPrefix(name, cachePrefix) || !strings.HasSuffix(name, cacheExt) {
			continue
		}
		if err := c.backend.Delete(ctx, key); err != nil {
			failed.Add(fmt.Errorf("%s: %w", key, err))
			continue
		}
		removed++
	}

	c.logger.Info("instance cache purged", "dataset", c.cfg.Dataset, "backend", c.backend.Name(),
		"removed", removed, "failed", len(failed.Errors))
	if failed.HasErrors() {
		return removed, errors.Wrap(failed.Combined(), errors.CodeCacheWriteFailed, "failed to delete cached tables").
			WithContext("failed", len(failed.Errors))
	}
	return removed, nil
}

// Stats counts cache activity since creation.
type Stats struct {
	Hits          int64
	Misses        int64
	Queries       int64
	WriteFailures int64
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Queries:       c.queries.Load(),
		WriteFailures: c.writeFailures.Load(),
	}
}

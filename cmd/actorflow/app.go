package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/logflow/actorflow/pkg/cachestore"
	"github.com/logflow/actorflow/pkg/config"
	"github.com/logflow/actorflow/pkg/edge"
	"github.com/logflow/actorflow/pkg/graph"
	"github.com/logflow/actorflow/pkg/instances"
	"github.com/logflow/actorflow/pkg/telemetry"
)

// app holds what every command needs for one run.
type app struct {
	manager *config.Manager
	cfg     *config.Config
	schema  edge.Schema
	unit    instances.TimeUnit

	runID   string
	logger  *slog.Logger
	metrics *telemetry.Metrics

	store    *graph.Store
	shutdown func(context.Context) error
}

// loadConfig loads and validates the configuration with flag overrides
// applied last.
func loadConfig(cmd *cobra.Command) (*config.Manager, *config.Config, error) {
	m := config.NewManager()
	if err := m.Load(configFile); err != nil {
		return nil, nil, err
	}
	cfg := m.Get()

	flags := cmd.Flags()
	if flags.Changed("dataset") {
		cfg.DatasetName = datasetName
	}
	if flags.Changed("db") {
		cfg.Database.Path = dbPath
	}
	if flags.Changed("log-level") {
		cfg.Telemetry.LogLevel = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Telemetry.LogFormat = logFormat
	}
	if flags.Changed("metrics-file") {
		cfg.Telemetry.MetricsFile = metricsFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return m, cfg, nil
}

// setup loads configuration, builds the logger, tracer and metrics, and
// opens the graph store.
func setup(cmd *cobra.Command) (*app, error) {
	m, cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	schema, err := cfg.Schema()
	if err != nil {
		return nil, err
	}
	unit, err := cfg.Unit()
	if err != nil {
		return nil, err
	}

	a := &app{
		manager: m,
		cfg:     cfg,
		schema:  schema,
		unit:    unit,
		runID:   uuid.NewString(),
		metrics: telemetry.NewMetrics(),
	}

	logger, err := telemetry.NewLogger(os.Stderr, cfg.Telemetry.LogLevel, cfg.Telemetry.LogFormat)
	if err != nil {
		return nil, err
	}
	a.logger = logger.With("run_id", a.runID, "dataset", cfg.DatasetName)
	slog.SetDefault(a.logger)

	if cfg.Telemetry.Enabled {
		otlp := cfg.Telemetry.OTLP
		otlp.ServiceVersion = version
		shutdown, err := telemetry.InitOTLP(cmd.Context(), otlp)
		if err != nil {
			return nil, err
		}
		a.shutdown = shutdown
	}

	a.store, err = graph.OpenStoreWithConfig(graph.StoreConfig{
		Path:     cfg.Database.Path,
		ReadOnly: cfg.Database.ReadOnly,
		Threads:  cfg.Database.Threads,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	a.logger.Debug("configuration loaded", "paths", m.GetPaths(), "database", cfg.Database.Path)
	return a, nil
}

// openCache opens the configured backend and wraps it in an instance cache.
func (a *app) openCache(ctx context.Context) (*instances.Cache, cachestore.Backend, error) {
	backend, err := cachestore.Open(ctx, a.cfg.Cache)
	if err != nil {
		return nil, nil, err
	}
	cache := instances.NewCache(a.store, backend, instances.CacheConfig{
		Dataset:  a.cfg.DatasetName,
		Schema:   a.schema,
		Case:     a.cfg.Entities.Case,
		TimeUnit: a.unit,
	}, instances.WithCacheLogger(a.logger), instances.WithCacheMetrics(a.metrics))
	return cache, backend, nil
}

// close releases the store, writes the metrics file and flushes traces.
func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close graph store", "error", err)
		}
	}
	if path := a.cfg.Telemetry.MetricsFile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			a.logger.Warn("failed to write metrics file", "path", path, "error", err)
		}
	}
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdown(ctx); err != nil {
			a.logger.Warn("failed to flush traces", "error", err)
		}
	}
}

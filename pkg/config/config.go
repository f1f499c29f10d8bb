// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < explicit file < env < flags
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/logflow/actorflow/pkg/aggregate"
	"github.com/logflow/actorflow/pkg/cachestore"
	"github.com/logflow/actorflow/pkg/edge"
	"github.com/logflow/actorflow/pkg/errors"
	"github.com/logflow/actorflow/pkg/graph"
	"github.com/logflow/actorflow/pkg/instances"
	"github.com/logflow/actorflow/pkg/report"
	"github.com/logflow/actorflow/pkg/telemetry"
)

// Config holds one analysis configuration.
type Config struct {
	Version int `yaml:"version"`

	DatasetName string         `yaml:"dataset_name"`
	Database    DatabaseConfig `yaml:"database"`

	IntermediateOutputDirectory string `yaml:"intermediate_output_directory"`
	FinalOutputDirectory        string `yaml:"final_output_directory"`

	EdgeKeySchema       string    `yaml:"edge_key_schema"` // activity | activity_lifecycle
	CaseEdges           CaseEdges `yaml:"case_edges"`      // "all" or a list of edges
	EdgeMinFreq         int64     `yaml:"edge_min_freq"`
	TimeUnit            string    `yaml:"time_unit"`
	AggFuncs            []string  `yaml:"agg_funcs"`
	ExcludeZeroDuration bool      `yaml:"exclude_zero_duration"`

	Entities  EntitiesConfig    `yaml:"entities"`
	Cache     cachestore.Config `yaml:"cache"`
	Report    ReportConfig      `yaml:"report"`
	Telemetry TelemetryConfig   `yaml:"telemetry"`
}

// DatabaseConfig locates the graph database.
type DatabaseConfig struct {
	Path     string `yaml:"path"`
	ReadOnly bool   `yaml:"read_only"`
	Threads  int    `yaml:"threads"` // 0 = auto
}

// EntitiesConfig names the case notion and the resource entity.
type EntitiesConfig struct {
	Case     graph.Entity `yaml:"case"`
	Resource graph.Entity `yaml:"resource"`
}

// ReportConfig controls report assembly.
type ReportConfig struct {
	Workers       int    `yaml:"workers"`
	FailurePolicy string `yaml:"failure_policy"` // abort | skip
	XLSX          bool   `yaml:"xlsx"`
}

// TelemetryConfig controls logging, tracing and metrics.
type TelemetryConfig struct {
	Enabled     bool                 `yaml:"enabled"`
	LogLevel    string               `yaml:"log_level"`
	LogFormat   string               `yaml:"log_format"`
	MetricsFile string               `yaml:"metrics_file"`
	OTLP        telemetry.OTLPConfig `yaml:"otlp"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	base := filepath.Join(homeDir, ".actorflow")

	return &Config{
		Version:     1,
		DatasetName: "default",
		Database: DatabaseConfig{
			Path: filepath.Join(base, "graph.duckdb"),
		},
		IntermediateOutputDirectory: filepath.Join(base, "intermediate"),
		FinalOutputDirectory:        filepath.Join(base, "final"),
		EdgeKeySchema:               edge.SchemaActivity.String(),
		CaseEdges:                   CaseEdges{All: true},
		EdgeMinFreq:                 1000,
		TimeUnit:                    string(instances.Hours),
		AggFuncs:                    []string{string(aggregate.Mean)},
		// Relationship names are derived from the types in normalize, so
		// overriding only a type renames its relationships too.
		Entities: EntitiesConfig{
			Case:     graph.Entity{Name: "case", Type: "Case"},
			Resource: graph.Entity{Name: "resource", Type: "Resource"},
		},
		Cache: cachestore.DefaultConfig(""),
		Report: ReportConfig{
			Workers:       1,
			FailurePolicy: report.FailAbort.String(),
		},
		Telemetry: TelemetryConfig{
			LogLevel:  "info",
			LogFormat: "text",
			OTLP:      telemetry.DefaultOTLPConfig("actorflow"),
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
	}
}

// Load loads configuration from all sources in priority order. The
// well-known locations are optional; an explicit path must exist.
func (m *Manager) Load(explicit string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.getConfigPaths() {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	if explicit != "" {
		if err := m.loadFile(explicit); err != nil {
			if os.IsNotExist(err) {
				return errors.Wrap(err, errors.CodeFileNotFound, "config file not found").
					WithContext("path", explicit)
			}
			return err
		}
		m.paths = append(m.paths, explicit)
	}

	if err := m.loadEnv(); err != nil {
		return err
	}
	m.normalize()
	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/actorflow/config.yaml")
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".actorflow", "config.yaml"))
	}

	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".actorflow.yaml"))
	}

	return paths
}

// loadFile decodes a single config file over the current configuration, so
// keys present in the file override earlier layers and absent keys keep
// their values.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, m.config); err != nil {
		return errors.Wrap(err, errors.CodeInvalidConfig, "failed to parse config file").
			WithContext("path", path)
	}
	return nil
}

// loadEnv applies ACTORFLOW_* environment variables.
func (m *Manager) loadEnv() error {
	strs := map[string]*string{
		"ACTORFLOW_DATASET":          &m.config.DatasetName,
		"ACTORFLOW_DATABASE":         &m.config.Database.Path,
		"ACTORFLOW_INTERMEDIATE_DIR": &m.config.IntermediateOutputDirectory,
		"ACTORFLOW_FINAL_DIR":        &m.config.FinalOutputDirectory,
		"ACTORFLOW_EDGE_KEY_SCHEMA":  &m.config.EdgeKeySchema,
		"ACTORFLOW_TIME_UNIT":        &m.config.TimeUnit,
		"ACTORFLOW_CACHE_BACKEND":    &m.config.Cache.Backend,
		"ACTORFLOW_S3_BUCKET":        &m.config.Cache.S3.Bucket,
		"ACTORFLOW_REDIS_ADDR":       &m.config.Cache.Redis.Address,
		"ACTORFLOW_LOG_LEVEL":        &m.config.Telemetry.LogLevel,
		"ACTORFLOW_LOG_FORMAT":       &m.config.Telemetry.LogFormat,
		"ACTORFLOW_OTLP_ENDPOINT":    &m.config.Telemetry.OTLP.Endpoint,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("ACTORFLOW_EDGE_MIN_FREQ"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errors.InvalidConfig("ACTORFLOW_EDGE_MIN_FREQ", v, "not an integer")
		}
		m.config.EdgeMinFreq = n
	}
	if v := os.Getenv("ACTORFLOW_AGG_FUNCS"); v != "" {
		m.config.AggFuncs = splitList(v)
	}
	if v := os.Getenv("ACTORFLOW_REPORT_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.InvalidConfig("ACTORFLOW_REPORT_WORKERS", v, "not an integer")
		}
		m.config.Report.Workers = n
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// normalize fills values derived from other settings.
func (m *Manager) normalize() {
	m.config.Entities.Case = m.config.Entities.Case.WithDefaults()
	m.config.Entities.Resource = m.config.Entities.Resource.WithDefaults()
	if m.config.Cache.Dir == "" {
		m.config.Cache.Dir = m.config.IntermediateOutputDirectory
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.paths...)
}

// Marshal renders the current configuration as YAML.
func (m *Manager) Marshal() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return yaml.Marshal(m.config)
}

// Validate checks every setting and returns the first problem as an
// InvalidConfig error.
func (c *Config) Validate() error {
	if c.DatasetName == "" {
		return errors.InvalidConfig("dataset_name", c.DatasetName, "dataset name is required")
	}
	if strings.ContainsAny(c.DatasetName, `/\`) || c.DatasetName == "." || c.DatasetName == ".." {
		return errors.InvalidConfig("dataset_name", c.DatasetName, "dataset name must be a single path segment")
	}
	if c.Database.Path == "" {
		return errors.InvalidConfig("database.path", c.Database.Path, "database path is required")
	}
	if c.FinalOutputDirectory == "" {
		return errors.InvalidConfig("final_output_directory", "", "final output directory is required")
	}
	schema, err := c.Schema()
	if err != nil {
		return err
	}
	if _, err := c.CaseEdges.Selector(schema); err != nil {
		return err
	}
	if c.EdgeMinFreq < 0 {
		return errors.InvalidConfig("edge_min_freq", c.EdgeMinFreq, "must not be negative")
	}
	if _, err := instances.ParseTimeUnit(c.TimeUnit); err != nil {
		return err
	}
	if _, err := aggregate.ParseStats(c.AggFuncs); err != nil {
		return err
	}
	for name, e := range map[string]graph.Entity{"entities.case": c.Entities.Case, "entities.resource": c.Entities.Resource} {
		if e.Type == "" {
			return errors.InvalidConfig(name+".type", e.Type, "entity node type is required")
		}
	}
	switch strings.ToLower(c.Cache.Backend) {
	case "", "local":
		if c.Cache.Dir == "" && c.IntermediateOutputDirectory == "" {
			return errors.InvalidConfig("cache.dir", "", "local cache needs a directory")
		}
	case "s3":
		if c.Cache.S3.Bucket == "" {
			return errors.InvalidConfig("cache.s3.bucket", "", "bucket is required")
		}
	case "redis":
		if c.Cache.Redis.Address == "" {
			return errors.InvalidConfig("cache.redis.address", "", "address is required")
		}
	case "memory":
	default:
		return errors.InvalidConfig("cache.backend", c.Cache.Backend, "unknown cache backend")
	}
	if c.Report.Workers < 0 {
		return errors.InvalidConfig("report.workers", c.Report.Workers, "must not be negative")
	}
	if _, err := report.ParseFailurePolicy(c.Report.FailurePolicy); err != nil {
		return err
	}
	if _, err := telemetry.NewLogger(io.Discard, c.Telemetry.LogLevel, c.Telemetry.LogFormat); err != nil {
		return errors.Wrap(err, errors.CodeInvalidConfig, "invalid logging settings")
	}
	return nil
}

// Schema returns the parsed edge key schema.
func (c *Config) Schema() (edge.Schema, error) {
	return edge.ParseSchema(c.EdgeKeySchema)
}

// Unit returns the parsed time unit.
func (c *Config) Unit() (instances.TimeUnit, error) {
	return instances.ParseTimeUnit(c.TimeUnit)
}

// Stats returns the parsed aggregation statistics.
func (c *Config) Stats() ([]aggregate.Stat, error) {
	return aggregate.ParseStats(c.AggFuncs)
}

// ReportPath returns the CSV report location of the dataset.
func (c *Config) ReportPath() string {
	return report.Path(c.FinalOutputDirectory, c.DatasetName)
}

func (c *Config) String() string {
	return fmt.Sprintf("dataset=%s schema=%s edges=%s", c.DatasetName, c.EdgeKeySchema, c.CaseEdges)
}

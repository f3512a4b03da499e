// Package config handles configuration loading for rankratio.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/atlasmap-sc/rankratio/internal/logging"
)

// EnvPrefix prefixes environment overrides, e.g. RANKRATIO_SERVER_PORT.
const EnvPrefix = "RANKRATIO"

// Config represents the application configuration.
type Config struct {
	Server ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Data   DataConfig     `yaml:"data" envconfig:"DATA"`
	Cache  CacheConfig    `yaml:"cache" envconfig:"CACHE"`
	Runs   RunsConfig     `yaml:"runs" envconfig:"RUNS"`
	Output OutputConfig   `yaml:"output" envconfig:"OUTPUT"`
	Log    logging.Config `yaml:"log" envconfig:"LOG"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	CORSOrigins []string `yaml:"cors_origins" envconfig:"CORS_ORIGINS"`
	Title       string   `yaml:"title" envconfig:"TITLE"`
}

// DataConfig lists the datasets served. Datasets keep their YAML order; the
// first one is the default.
type DataConfig struct {
	Datasets       map[string]DatasetConfig `yaml:"datasets" ignored:"true" validate:"dive"`
	DefaultDataset string                   `yaml:"-" ignored:"true"`

	order []string
}

// DatasetConfig names the input files of one dataset.
type DatasetConfig struct {
	Name                string `yaml:"name"`
	Ranks               string `yaml:"ranks" validate:"required"`
	RanksFormat         string `yaml:"ranks_format" validate:"omitempty,oneof=auto tsv ordination"`
	DropIntercept       *bool  `yaml:"drop_intercept"`
	Table               string `yaml:"table" validate:"required"`
	SampleMetadata      string `yaml:"sample_metadata" validate:"required"`
	FeatureMetadata     string `yaml:"feature_metadata"`
	ExtremeFeatureCount *int   `yaml:"extreme_feature_count" validate:"omitempty,min=1"`
	StrictFeatures      bool   `yaml:"strict_features"`
}

// DropsIntercept reports whether an "Intercept" ranking column is dropped.
func (d DatasetConfig) DropsIntercept() bool {
	return d.DropIntercept == nil || *d.DropIntercept
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	PayloadSizeMB     int `yaml:"payload_size_mb" envconfig:"PAYLOAD_SIZE_MB" validate:"min=1"`
	PayloadTTLMinutes int `yaml:"payload_ttl_minutes" envconfig:"PAYLOAD_TTL_MINUTES" validate:"min=1"`
	QueryCacheSize    int `yaml:"query_cache_size" envconfig:"QUERY_CACHE_SIZE" validate:"min=1"`
}

// RunsConfig contains asynchronous run settings.
type RunsConfig struct {
	MaxConcurrent int    `yaml:"max_concurrent" envconfig:"MAX_CONCURRENT" validate:"min=1"`
	SQLitePath    string `yaml:"sqlite_path" envconfig:"SQLITE_PATH" validate:"required"`
	RetentionDays int    `yaml:"retention_days" envconfig:"RETENTION_DAYS" validate:"min=1"`
	OutputDir     string `yaml:"output_dir" envconfig:"OUTPUT_DIR" validate:"required"`
}

// OutputConfig contains payload file settings.
type OutputConfig struct {
	Compression string `yaml:"compression" envconfig:"COMPRESSION" validate:"omitempty,oneof=none gzip zstd"`
}

// UnmarshalYAML decodes the data section and records dataset order.
func (d *DataConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Datasets yaml.Node `yaml:"datasets"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Datasets.Kind == 0 {
		return nil
	}
	if raw.Datasets.Kind != yaml.MappingNode {
		return fmt.Errorf("data.datasets must be a mapping (line %d)", raw.Datasets.Line)
	}

	d.Datasets = make(map[string]DatasetConfig, len(raw.Datasets.Content)/2)
	d.order = d.order[:0]
	for i := 0; i+1 < len(raw.Datasets.Content); i += 2 {
		id := raw.Datasets.Content[i].Value
		var ds DatasetConfig
		if err := raw.Datasets.Content[i+1].Decode(&ds); err != nil {
			return fmt.Errorf("dataset %q: %w", id, err)
		}
		if _, dup := d.Datasets[id]; dup {
			return fmt.Errorf("dataset %q defined twice", id)
		}
		d.Datasets[id] = ds
		d.order = append(d.order, id)
	}
	return nil
}

// DatasetIDs returns dataset IDs in configuration order.
func (d *DataConfig) DatasetIDs() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// AddDataset appends a dataset, replacing any with the same ID.
func (d *DataConfig) AddDataset(id string, ds DatasetConfig) {
	if d.Datasets == nil {
		d.Datasets = make(map[string]DatasetConfig)
	}
	if _, ok := d.Datasets[id]; !ok {
		d.order = append(d.order, id)
	}
	d.Datasets[id] = ds
	if d.DefaultDataset == "" {
		d.DefaultDataset = id
	}
}

// Load reads configuration from a YAML file, applies defaults and
// environment overrides, and validates the result. A missing file yields
// the default configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) || path == "":
		cfg = DefaultConfig()
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			Title:       "rankratio",
		},
		Cache: CacheConfig{
			PayloadSizeMB:     256,
			PayloadTTLMinutes: 30,
			QueryCacheSize:    4096,
		},
		Runs: RunsConfig{
			MaxConcurrent: 2,
			SQLitePath:    "./data/runs.sqlite",
			RetentionDays: 7,
			OutputDir:     "./data/runs",
		},
		Output: OutputConfig{
			Compression: "none",
		},
		Log: logging.DefaultConfig(),
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Server.Title == "" {
		cfg.Server.Title = defaults.Server.Title
	}
	if cfg.Cache.PayloadSizeMB == 0 {
		cfg.Cache.PayloadSizeMB = defaults.Cache.PayloadSizeMB
	}
	if cfg.Cache.PayloadTTLMinutes == 0 {
		cfg.Cache.PayloadTTLMinutes = defaults.Cache.PayloadTTLMinutes
	}
	if cfg.Cache.QueryCacheSize == 0 {
		cfg.Cache.QueryCacheSize = defaults.Cache.QueryCacheSize
	}
	if cfg.Runs.MaxConcurrent == 0 {
		cfg.Runs.MaxConcurrent = defaults.Runs.MaxConcurrent
	}
	if cfg.Runs.SQLitePath == "" {
		cfg.Runs.SQLitePath = defaults.Runs.SQLitePath
	}
	if cfg.Runs.RetentionDays == 0 {
		cfg.Runs.RetentionDays = defaults.Runs.RetentionDays
	}
	if cfg.Runs.OutputDir == "" {
		cfg.Runs.OutputDir = defaults.Runs.OutputDir
	}
	if cfg.Output.Compression == "" {
		cfg.Output.Compression = defaults.Output.Compression
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Log.Format
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = defaults.Log.Output
	}
	if cfg.Log.TimeFormat == "" {
		cfg.Log.TimeFormat = defaults.Log.TimeFormat
	}

	if len(cfg.Data.order) > 0 && cfg.Data.DefaultDataset == "" {
		cfg.Data.DefaultDataset = cfg.Data.order[0]
	}
	for id, ds := range cfg.Data.Datasets {
		if ds.Name == "" {
			ds.Name = id
		}
		if ds.RanksFormat == "" {
			ds.RanksFormat = "auto"
		}
		cfg.Data.Datasets[id] = ds
	}
}

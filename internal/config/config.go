package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"stockd/internal/logging"
	"stockd/internal/types"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "stockd.yaml"

// Config holds all stockd configuration.
type Config struct {
	// Dataset source
	Dataset DatasetConfig `yaml:"dataset"`

	// Names of the fields the query engine inspects
	Fields FieldsConfig `yaml:"fields"`

	// Stdio server
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Metrics listener
	Metrics MetricsConfig `yaml:"metrics"`
}

// DatasetConfig locates the record collection.
type DatasetConfig struct {
	Path       string `yaml:"path"`
	Format     string `yaml:"format"`      // auto, json, sqlite
	Table      string `yaml:"table"`       // SQLite table holding records
	RecordsKey string `yaml:"records_key"` // key of the record array in a JSON analysis document

	// Optional command that produces the dataset when the file is missing.
	// Empty means the server starts with an empty store instead.
	PrepareCommand []string `yaml:"prepare_command"`
	PrepareTimeout string   `yaml:"prepare_timeout"`
}

// FieldsConfig selects a field-name preset, optionally overriding single names.
type FieldsConfig struct {
	Preset     string `yaml:"preset"` // default, jpx
	Identifier string `yaml:"identifier,omitempty"`
	Name       string `yaml:"name,omitempty"`
	Sector     string `yaml:"sector,omitempty"`
	SizeClass  string `yaml:"size_class,omitempty"`
}

// ServerConfig configures the stdio server.
type ServerConfig struct {
	MaxRequestBytes int `yaml:"max_request_bytes"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file"`   // empty means stderr
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the listener
}

// ValidFormats lists the accepted dataset formats.
var ValidFormats = []string{"auto", "json", "sqlite"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Path:           "excel_data_analysis.json",
			Format:         "auto",
			Table:          "stocks",
			RecordsKey:     "stocks_data",
			PrepareTimeout: "5m",
		},
		Fields: FieldsConfig{
			Preset: "default",
		},
		Server: ServerConfig{
			MaxRequestBytes: 1 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Defaults when the file doesn't exist
		logging.BootWarn("Config file %s not found, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("STOCKD_DATASET"); path != "" {
		c.Dataset.Path = path
	}
	if format := os.Getenv("STOCKD_DATASET_FORMAT"); format != "" {
		c.Dataset.Format = format
	}
	if preset := os.Getenv("STOCKD_FIELDS_PRESET"); preset != "" {
		c.Fields.Preset = preset
	}
	if level := os.Getenv("STOCKD_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if addr := os.Getenv("STOCKD_METRICS_ADDR"); addr != "" {
		c.Metrics.Addr = addr
	}
}

// GetPrepareTimeout returns the data-preparation timeout as a duration.
func (c *Config) GetPrepareTimeout() time.Duration {
	d, err := time.ParseDuration(c.Dataset.PrepareTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// Schema resolves the field preset and applies per-field overrides.
func (c *Config) Schema() (types.Schema, error) {
	s, err := types.LookupSchema(c.Fields.Preset)
	if err != nil {
		return types.Schema{}, err
	}
	if c.Fields.Identifier != "" {
		s.Identifier = c.Fields.Identifier
	}
	if c.Fields.Name != "" {
		s.Name = c.Fields.Name
	}
	if c.Fields.Sector != "" {
		s.Sector = c.Fields.Sector
	}
	if c.Fields.SizeClass != "" {
		s.SizeClass = c.Fields.SizeClass
	}
	return s, nil
}

// LoggingOptions converts the logging section for the logging package.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		File:   c.Logging.File,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validFormat := false
	for _, f := range ValidFormats {
		if strings.EqualFold(c.Dataset.Format, f) {
			validFormat = true
			break
		}
	}
	if !validFormat {
		return fmt.Errorf("invalid dataset format: %s (valid: %v)", c.Dataset.Format, ValidFormats)
	}

	s, err := c.Schema()
	if err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}

	if c.Server.MaxRequestBytes <= 0 {
		return fmt.Errorf("server.max_request_bytes must be positive, got %d", c.Server.MaxRequestBytes)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}

	if c.Dataset.PrepareTimeout != "" {
		if _, err := time.ParseDuration(c.Dataset.PrepareTimeout); err != nil {
			return fmt.Errorf("invalid dataset.prepare_timeout: %w", err)
		}
	}

	return nil
}

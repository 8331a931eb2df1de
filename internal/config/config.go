// Package config loads and validates the server's yaml configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host                 string        `yaml:"host"`
	Port                 int           `yaml:"port"`
	ReadTimeout          time.Duration `yaml:"read_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	ShutdownTimeout      time.Duration `yaml:"shutdown_timeout"`
	MaxConcurrentQueries int           `yaml:"max_concurrent_queries"`
	QueryQueueSize       int           `yaml:"query_queue_size"`
}

// EngineConfig holds query engine configuration
type EngineConfig struct {
	BatchSize int           `yaml:"batch_size"`
	Tables    []TableConfig `yaml:"tables"`
}

// TableConfig describes one in-memory table seeded from configuration
type TableConfig struct {
	Name    string         `yaml:"name"`
	Columns []ColumnConfig `yaml:"columns"`
}

// ColumnConfig describes one column of a seeded table
type ColumnConfig struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Values []any  `yaml:"values"`
}

// CacheConfig holds query result cache configuration
type CacheConfig struct {
	Enabled         bool          `yaml:"enabled"`
	MaxTotalBytes   int64         `yaml:"max_total_bytes"`
	MaxEntryBytes   int64         `yaml:"max_entry_bytes"`
	EntryPutTimeout time.Duration `yaml:"entry_put_timeout"`
	MinQueryRuns    uint64        `yaml:"min_query_runs"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config represents the complete server configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	Cache   CacheConfig   `yaml:"cache"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoadConfig loads configuration from a file
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8123
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.MaxConcurrentQueries == 0 {
		cfg.Server.MaxConcurrentQueries = 16
	}
	if cfg.Server.QueryQueueSize == 0 {
		cfg.Server.QueryQueueSize = 128
	}

	if cfg.Engine.BatchSize == 0 {
		cfg.Engine.BatchSize = 8192
	}

	if cfg.Cache.MaxTotalBytes == 0 {
		cfg.Cache.MaxTotalBytes = 1 << 30 // 1GiB
	}
	if cfg.Cache.MaxEntryBytes == 0 {
		cfg.Cache.MaxEntryBytes = 64 << 20 // 64MiB
	}
	if cfg.Cache.EntryPutTimeout == 0 {
		cfg.Cache.EntryPutTimeout = 60 * time.Second
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Engine.BatchSize < 1 {
		return fmt.Errorf("engine.batch_size must be positive")
	}
	if c.Cache.MaxTotalBytes < 1 {
		return fmt.Errorf("cache.max_total_bytes must be positive")
	}
	if c.Cache.MaxEntryBytes < 1 {
		return fmt.Errorf("cache.max_entry_bytes must be positive")
	}
	if c.Cache.MaxEntryBytes > c.Cache.MaxTotalBytes {
		return fmt.Errorf("cache.max_entry_bytes must not exceed cache.max_total_bytes")
	}
	if c.Cache.EntryPutTimeout <= 0 {
		return fmt.Errorf("cache.entry_put_timeout must be positive")
	}
	for _, t := range c.Engine.Tables {
		if t.Name == "" {
			return fmt.Errorf("engine.tables entries must have a name")
		}
		if len(t.Columns) == 0 {
			return fmt.Errorf("table %q must have at least one column", t.Name)
		}
	}
	return nil
}

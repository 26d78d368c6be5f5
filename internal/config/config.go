package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for one feeder run.
type Config struct {
	Endpoint  EndpointConfig  `yaml:"endpoint"`
	Batch     BatchConfig     `yaml:"batch"`
	Retry     RetryConfig     `yaml:"retry"`
	Cursor    CursorConfig    `yaml:"cursor"`
	Parser    ParserConfig    `yaml:"parser"`
	DeadLetter DeadLetterConfig `yaml:"dead_letter"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`

	// RateLimit caps write requests per second (0 disables the limiter).
	RateLimit float64 `yaml:"rate_limit,omitempty"`
}

// EndpointConfig describes the InfluxDB v1 write endpoint.
type EndpointConfig struct {
	URL      string        `yaml:"url"` // e.g. http://localhost:8086
	Database string        `yaml:"database"`
	Username string        `yaml:"username,omitempty"`
	Password string        `yaml:"password,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// BatchConfig controls point batching.
type BatchConfig struct {
	Size       int           `yaml:"size"`        // flush when this many points are buffered
	MaxLatency time.Duration `yaml:"max_latency"` // flush when the oldest buffered point is this old
}

// RetryConfig controls retry of transient write failures.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff,omitempty"`
	MaxBackoff     time.Duration `yaml:"max_backoff,omitempty"`
	Multiplier     float64       `yaml:"multiplier,omitempty"`
	Jitter         bool          `yaml:"jitter,omitempty"`
}

// CursorConfig locates the durable cursor store.
type CursorConfig struct {
	Path string `yaml:"path"`
}

// ParserConfig selects and configures the line parsing strategy.
type ParserConfig struct {
	Type        string `yaml:"type"`        // "delimited" or "regex"
	Measurement string `yaml:"measurement"` // target measurement name
	Pattern     string `yaml:"pattern,omitempty"`     // regex parser: pattern with named groups
	TimeFormat  string `yaml:"time_format,omitempty"` // timestamp layout, default ISO-8601 Z
}

// DeadLetterConfig locates the dead letter directory for refused batches.
type DeadLetterConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// LoggingConfig defines logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// MetricsConfig defines the optional Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address,omitempty"`
}

// TracingConfig defines the optional OTLP trace exporter.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint,omitempty"`
	SampleRate float64 `yaml:"sample_rate,omitempty"`
}

// Default values
const (
	DefaultEndpointURL    = "http://localhost:8086"
	DefaultDatabase       = "logs"
	DefaultTimeout        = 10 * time.Second
	DefaultBatchSize      = 100
	DefaultBatchLatency   = 2 * time.Second
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
	DefaultMultiplier     = 2.0
	DefaultCursorPath     = "influxfeed-cursors.db"
	DefaultParserType     = "delimited"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	DefaultMetricsAddress = ":9273"
)

// Load loads configuration from a YAML file with environment variable
// expansion, applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Endpoint.URL == "" {
		c.Endpoint.URL = DefaultEndpointURL
	}
	if c.Endpoint.Database == "" {
		c.Endpoint.Database = DefaultDatabase
	}
	if c.Endpoint.Timeout == 0 {
		c.Endpoint.Timeout = DefaultTimeout
	}
	if c.Batch.Size == 0 {
		c.Batch.Size = DefaultBatchSize
	}
	if c.Batch.MaxLatency == 0 {
		c.Batch.MaxLatency = DefaultBatchLatency
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if c.Retry.InitialBackoff == 0 {
		c.Retry.InitialBackoff = DefaultInitialBackoff
	}
	if c.Retry.MaxBackoff == 0 {
		c.Retry.MaxBackoff = DefaultMaxBackoff
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = DefaultMultiplier
	}
	if c.Cursor.Path == "" {
		c.Cursor.Path = DefaultCursorPath
	}
	if c.Parser.Type == "" {
		c.Parser.Type = DefaultParserType
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		c.Metrics.Address = DefaultMetricsAddress
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Endpoint.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("endpoint.url %q is not a valid URL", c.Endpoint.URL)
	}
	if c.Endpoint.Database == "" {
		return fmt.Errorf("endpoint.database is required")
	}
	if c.Batch.Size < 1 {
		return fmt.Errorf("batch.size must be at least 1")
	}
	if c.Batch.MaxLatency <= 0 {
		return fmt.Errorf("batch.max_latency must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Parser.Measurement == "" {
		return fmt.Errorf("parser.measurement is required")
	}
	switch c.Parser.Type {
	case "delimited":
	case "regex":
		if c.Parser.Pattern == "" {
			return fmt.Errorf("parser.pattern is required for the regex parser")
		}
	default:
		return fmt.Errorf("unknown parser type: %s", c.Parser.Type)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	validLogFormats := map[string]bool{
		"json": true, "console": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

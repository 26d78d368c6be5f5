package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
endpoint:
  url: http://influx.example.com:8086
  database: sensors
  username: feeder
  password: secret
  timeout: 30s
batch:
  size: 500
  max_latency: 5s
retry:
  max_attempts: 5
  initial_backoff: 200ms
  max_backoff: 10s
  multiplier: 1.5
  jitter: true
cursor:
  path: /var/lib/influxfeed/cursors.db
parser:
  type: regex
  measurement: env
  pattern: '^(?P<time>\S+) v=(?P<field_v>\S+)$'
  time_format: "2006-01-02T15:04:05Z"
dead_letter:
  dir: /var/lib/influxfeed/deadletter
logging:
  level: debug
  format: console
metrics:
  enabled: true
rate_limit: 10
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Endpoint.URL != "http://influx.example.com:8086" {
		t.Errorf("Endpoint.URL = %s", cfg.Endpoint.URL)
	}
	if cfg.Endpoint.Timeout != 30*time.Second {
		t.Errorf("Endpoint.Timeout = %v, want 30s", cfg.Endpoint.Timeout)
	}
	if cfg.Batch.Size != 500 || cfg.Batch.MaxLatency != 5*time.Second {
		t.Errorf("Batch = %+v", cfg.Batch)
	}
	if cfg.Retry.MaxAttempts != 5 || !cfg.Retry.Jitter {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if cfg.Parser.Type != "regex" || cfg.Parser.Measurement != "env" {
		t.Errorf("Parser = %+v", cfg.Parser)
	}
	if cfg.DeadLetter.Dir != "/var/lib/influxfeed/deadletter" {
		t.Errorf("DeadLetter.Dir = %s", cfg.DeadLetter.Dir)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Address != DefaultMetricsAddress {
		t.Errorf("Metrics = %+v, want enabled with default address", cfg.Metrics)
	}
	if cfg.RateLimit != 10 {
		t.Errorf("RateLimit = %v, want 10", cfg.RateLimit)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
parser:
  measurement: sensors
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Endpoint.URL != DefaultEndpointURL {
		t.Errorf("Endpoint.URL = %s, want %s", cfg.Endpoint.URL, DefaultEndpointURL)
	}
	if cfg.Endpoint.Database != DefaultDatabase {
		t.Errorf("Endpoint.Database = %s, want %s", cfg.Endpoint.Database, DefaultDatabase)
	}
	if cfg.Batch.Size != DefaultBatchSize || cfg.Batch.MaxLatency != DefaultBatchLatency {
		t.Errorf("Batch = %+v, want defaults", cfg.Batch)
	}
	if cfg.Retry.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("Retry.MaxAttempts = %d, want %d", cfg.Retry.MaxAttempts, DefaultMaxAttempts)
	}
	if cfg.Parser.Type != DefaultParserType {
		t.Errorf("Parser.Type = %s, want %s", cfg.Parser.Type, DefaultParserType)
	}
	if cfg.Logging.Level != DefaultLogLevel || cfg.Logging.Format != DefaultLogFormat {
		t.Errorf("Logging = %+v, want defaults", cfg.Logging)
	}
	if cfg.Cursor.Path != DefaultCursorPath {
		t.Errorf("Cursor.Path = %s, want %s", cfg.Cursor.Path, DefaultCursorPath)
	}
}

func TestLoad_ExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("INFLUX_PASSWORD", "hunter2")
	path := writeConfig(t, `
endpoint:
  password: ${INFLUX_PASSWORD}
parser:
  measurement: sensors
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Endpoint.Password != "hunter2" {
		t.Errorf("Endpoint.Password = %q, want expanded value", cfg.Endpoint.Password)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() succeeded for missing file, want error")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"invalid url", func(c *Config) { c.Endpoint.URL = "not a url" }},
		{"negative batch size", func(c *Config) { c.Batch.Size = -1 }},
		{"missing measurement", func(c *Config) { c.Parser.Measurement = "" }},
		{"unknown parser type", func(c *Config) { c.Parser.Type = "grok" }},
		{"regex without pattern", func(c *Config) { c.Parser.Type = "regex"; c.Parser.Pattern = "" }},
		{"negative rate limit", func(c *Config) { c.RateLimit = -1 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Parser.Measurement = "sensors"
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() succeeded, want error")
			}
		})
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	cfg := Default()
	cfg.Parser.Measurement = "sensors"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults failed: %v", err)
	}
}

package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RecoveryConfig holds the recovery store configuration.
type RecoveryConfig struct {
	Dir string `yaml:"dir"`
	// AutosaveInterval is how often the editor should hand dirty buffers to
	// the store. The store itself never schedules saves.
	AutosaveInterval      string `yaml:"autosave_interval"`
	HeartbeatInterval     string `yaml:"heartbeat_interval"`
	CleanupOrphansOnStart bool   `yaml:"cleanup_orphans_on_start"`
	ReadConcurrency       int    `yaml:"read_concurrency"`
	BundleCompression     string `yaml:"bundle_compression"` // "none", "snappy", "lz4" or "zstd"
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output"` // e.g., "stdout", "stderr", "file", "none"
	File   string `yaml:"file"`   // Path to the log file, used if output is "file"
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // e.g., "localhost:4317" for gRPC OTLP collector
	Protocol string `yaml:"protocol"` // "grpc" or "http"
}

// DebugConfig holds debugging-related configurations.
type DebugConfig struct {
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// Config is the top-level configuration struct.
type Config struct {
	Recovery RecoveryConfig `yaml:"recovery"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Debug    DebugConfig    `yaml:"debug"`
}

// ParseDuration parses a duration string. Returns the default duration if the string is empty, invalid or not positive.
// Logs a warning if the string is rejected but not empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil || d <= 0 {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Recovery: RecoveryConfig{
			Dir:                   "./recovery",
			AutosaveInterval:      "30s",
			HeartbeatInterval:     "10s",
			CleanupOrphansOnStart: true,
			ReadConcurrency:       4,
			BundleCompression:     "zstd",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			File:   "recovery.log",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
			Protocol: "grpc",
		},
		Debug: DebugConfig{
			MetricsEnabled: false,
		},
	}
}

// Load reads configuration from an io.Reader on top of the defaults.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()

	// A nil reader behaves like an empty file.
	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	if c.Recovery.Dir == "" {
		return fmt.Errorf("recovery.dir must not be empty")
	}
	if c.Recovery.ReadConcurrency < 0 {
		return fmt.Errorf("recovery.read_concurrency must not be negative, got %d", c.Recovery.ReadConcurrency)
	}
	switch c.Tracing.Protocol {
	case "grpc", "http":
	default:
		if c.Tracing.Enabled {
			return fmt.Errorf("tracing.protocol must be grpc or http, got %q", c.Tracing.Protocol)
		}
	}
	return nil
}

// LoadConfig reads configuration from a YAML file by path. A missing file
// yields the defaults.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}

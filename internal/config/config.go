// Package config loads and validates the sheetsync client configuration from
// YAML files and SHEETSYNC_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"

	"github.com/sheetsync/sheetsync/pkg/errors"
)

// Configuration represents the complete client configuration
type Configuration struct {
	Global   GlobalConfig   `yaml:"global"`
	Provider ProviderConfig `yaml:"provider"`
	Cache    CacheConfig    `yaml:"cache"`
	Queue    QueueConfig    `yaml:"queue"`
	Sync     SyncConfig     `yaml:"sync"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" env:"SHEETSYNC_LOG_LEVEL"`
	LogFile  string `yaml:"log_file" env:"SHEETSYNC_LOG_FILE"`
}

// ProviderConfig represents remote data provider settings
type ProviderConfig struct {
	// Endpoint is the base URL of the collection store pseudo-API.
	// Empty means no remote provider; the client serves mock data.
	Endpoint string `yaml:"endpoint" env:"SHEETSYNC_ENDPOINT"`

	// RequestTimeout is the hard deadline for a single remote call
	RequestTimeout time.Duration `yaml:"request_timeout" env:"SHEETSYNC_REQUEST_TIMEOUT"`

	// MaxRetries is the number of attempts per remote call
	MaxRetries int `yaml:"max_retries" env:"SHEETSYNC_MAX_RETRIES"`

	// RetryBaseDelay is the first backoff delay; doubles each attempt
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" env:"SHEETSYNC_RETRY_BASE_DELAY"`

	// BatchSize is the maximum records per remote write call
	BatchSize int `yaml:"batch_size" env:"SHEETSYNC_BATCH_SIZE"`
}

// CacheConfig represents cache store settings
type CacheConfig struct {
	// DefaultTTL applies to collections without an explicit TTL override
	DefaultTTL time.Duration `yaml:"default_ttl" env:"SHEETSYNC_CACHE_TTL"`

	// TTLOverrides holds per-collection TTLs keyed by collection name
	TTLOverrides map[string]time.Duration `yaml:"ttl_overrides"`

	// MaxEntries bounds the number of cached entries
	MaxEntries int `yaml:"max_entries" env:"SHEETSYNC_CACHE_MAX_ENTRIES"`

	// SweepInterval is how often entries older than twice their TTL are purged
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SHEETSYNC_CACHE_SWEEP_INTERVAL"`

	// SnapshotPath is the file the cache snapshot persists to; empty disables
	// persistence
	SnapshotPath string `yaml:"snapshot_path" env:"SHEETSYNC_SNAPSHOT_PATH"`

	// S3Snapshot optionally replaces the file snapshot with an S3 object
	S3Snapshot S3SnapshotConfig `yaml:"s3_snapshot"`
}

// S3SnapshotConfig represents the optional S3-backed snapshot store
type S3SnapshotConfig struct {
	Enabled bool   `yaml:"enabled" env:"SHEETSYNC_S3_SNAPSHOT_ENABLED"`
	Bucket  string `yaml:"bucket" env:"SHEETSYNC_S3_BUCKET"`
	Key     string `yaml:"key" env:"SHEETSYNC_S3_KEY"`
	Region  string `yaml:"region" env:"SHEETSYNC_S3_REGION"`
}

// QueueConfig represents request queue settings
type QueueConfig struct {
	// MaxConcurrent caps simultaneously outstanding remote calls
	MaxConcurrent int `yaml:"max_concurrent" env:"SHEETSYNC_MAX_CONCURRENT"`
}

// SyncConfig represents background sync settings
type SyncConfig struct {
	// Interval between background sync passes
	Interval time.Duration `yaml:"interval" env:"SHEETSYNC_SYNC_INTERVAL"`

	// Collections lists the tracked collection names
	Collections []string `yaml:"collections" env:"SHEETSYNC_COLLECTIONS" envSeparator:","`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"SHEETSYNC_METRICS_ENABLED"`
	Address string `yaml:"address" env:"SHEETSYNC_METRICS_ADDRESS"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel: "INFO",
		},
		Provider: ProviderConfig{
			RequestTimeout: 15 * time.Second,
			MaxRetries:     3,
			RetryBaseDelay: time.Second,
			BatchSize:      50,
		},
		Cache: CacheConfig{
			DefaultTTL:    5 * time.Minute,
			TTLOverrides:  map[string]time.Duration{},
			MaxEntries:    100,
			SweepInterval: time.Hour,
		},
		Queue: QueueConfig{
			MaxConcurrent: 3,
		},
		Sync: SyncConfig{
			Interval:    5 * time.Minute,
			Collections: []string{"products", "orders", "categories", "customers", "order_items", "promotions"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: "localhost:9090",
		},
	}
}

// Load builds a configuration from defaults, an optional YAML file, and
// environment overrides, then validates it.
func Load(filename string) (*Configuration, error) {
	cfg := NewDefault()

	if filename != "" {
		if err := cfg.LoadFromFile(filename); err != nil {
			return nil, err
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to read config file").WithCause(err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to parse config file").WithCause(err)
	}

	return nil
}

// LoadFromEnv applies SHEETSYNC_* environment variable overrides
func (c *Configuration) LoadFromEnv() error {
	if err := env.Parse(c); err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to parse environment overrides").WithCause(err)
	}
	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// TTLFor returns the TTL for a collection, falling back to the default
func (c *CacheConfig) TTLFor(collection string) time.Duration {
	if ttl, ok := c.TTLOverrides[collection]; ok {
		return ttl
	}
	return c.DefaultTTL
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if c.Queue.MaxConcurrent <= 0 {
		return errors.NewError(errors.ErrCodeInvalidConfig, "queue.max_concurrent must be greater than 0")
	}

	if c.Provider.RequestTimeout <= 0 {
		return errors.NewError(errors.ErrCodeInvalidConfig, "provider.request_timeout must be greater than 0")
	}

	if c.Provider.MaxRetries <= 0 {
		return errors.NewError(errors.ErrCodeInvalidConfig, "provider.max_retries must be greater than 0")
	}

	if c.Provider.BatchSize <= 0 {
		return errors.NewError(errors.ErrCodeInvalidConfig, "provider.batch_size must be greater than 0")
	}

	if c.Cache.MaxEntries <= 0 {
		return errors.NewError(errors.ErrCodeInvalidConfig, "cache.max_entries must be greater than 0")
	}

	if c.Cache.DefaultTTL <= 0 {
		return errors.NewError(errors.ErrCodeInvalidConfig, "cache.default_ttl must be greater than 0")
	}

	if c.Sync.Interval <= 0 {
		return errors.NewError(errors.ErrCodeInvalidConfig, "sync.interval must be greater than 0")
	}

	if len(c.Sync.Collections) == 0 {
		return errors.NewError(errors.ErrCodeInvalidConfig, "sync.collections must not be empty")
	}

	if c.Cache.S3Snapshot.Enabled {
		if c.Cache.S3Snapshot.Bucket == "" || c.Cache.S3Snapshot.Key == "" {
			return errors.NewError(errors.ErrCodeInvalidConfig, "s3_snapshot requires bucket and key")
		}
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if strings.ToUpper(c.Global.LogLevel) == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return errors.NewError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("invalid log_level: %s (must be one of: %s)",
				c.Global.LogLevel, strings.Join(validLogLevels, ", ")))
	}

	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Defaults applied by New before the config file and environment are read.
const (
	DefaultBatchSize             = 50
	DefaultRequestTimeoutSeconds = 30
	DefaultReaderMaxAttempts     = 5
	DefaultReaderBackoffMillis   = 100
	DefaultReaderMaxBackoffMilli = 2000
	DefaultSessionTTLSeconds     = 86400
	DefaultSinkAddr              = "127.0.0.1:8089"

	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"

	maxBatchSize   = 1000
	outputTypeFile = "file"
)

// Environment variables consulted by New.
const (
	EnvHome        = "HEALTHBRIDGE_HOME"
	EnvConfigFile  = "HEALTHBRIDGE_CONFIG"
	EnvLogLevel    = "HEALTHBRIDGE_LOG_LEVEL"
	EnvLogFormat   = "HEALTHBRIDGE_LOG_FORMAT"
	EnvLogFile     = "HEALTHBRIDGE_LOG_FILE"
	EnvDBDriver    = "HEALTHBRIDGE_DB_DRIVER"
	EnvDBPath      = "HEALTHBRIDGE_DB_PATH"
	EnvDBDSN       = "HEALTHBRIDGE_DB_DSN"
	EnvBatchSize   = "HEALTHBRIDGE_BATCH_SIZE"
	EnvProgressURL = "HEALTHBRIDGE_PROGRESS_URL"
	EnvSinkAddr    = "HEALTHBRIDGE_SINK_ADDR"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root of config.yaml.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Store     StoreConfig     `yaml:"store"`
	Export    ExporterConfig  `yaml:"export"`
	Reader    ReaderConfig    `yaml:"reader"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Sink      SinkConfig      `yaml:"sink"`

	// HomeDir is the resolved ~/.healthbridge directory; not serialized.
	HomeDir string `yaml:"-"`
}

// LoggingConfig controls log level, format and destination.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// StoreConfig locates the local health record database.
type StoreConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver            string `yaml:"driver"`
	Path              string `yaml:"path"`
	DSN               string `yaml:"dsn"`
	EnforcePermission bool   `yaml:"enforce_permissions"`
}

// ExporterConfig tunes the batch exporter.
type ExporterConfig struct {
	BatchSize             int    `yaml:"batch_size"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	ProgressURL           string `yaml:"progress_url"`
}

// ReaderConfig tunes the week-by-week reader retry policy.
type ReaderConfig struct {
	MaxAttempts      int `yaml:"max_attempts"`
	BackoffMillis    int `yaml:"backoff_millis"`
	MaxBackoffMillis int `yaml:"max_backoff_millis"`
}

// DiscoveryConfig controls how long a resolved export session stays usable.
type DiscoveryConfig struct {
	SessionTTLSeconds int    `yaml:"session_ttl_seconds"`
	CacheDir          string `yaml:"cache_dir"`
}

// SinkConfig configures the local receiving server.
type SinkConfig struct {
	Addr string `yaml:"addr"`
	// TokenLifetimeChunks expires the access token after this many accepted chunks (0 = never).
	TokenLifetimeChunks int `yaml:"token_lifetime_chunks"`
}

// New returns defaults overlaid with the config file (if any) and environment variables.
// A missing or unreadable config file is not an error; defaults are used.
func New() *Config {
	cfg := defaults()
	if path := ConfigFilePath(); path != "" {
		_ = cfg.Load(path)
	}
	cfg.applyEnv()
	return cfg
}

// Defaults returns the built-in configuration without reading files or the environment.
func Defaults() *Config {
	return defaults()
}

func defaults() *Config {
	home := HomeDir()
	return &Config{
		HomeDir: home,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Driver:            StoreDriverSQLite,
			Path:              filepath.Join(home, "health.db"),
			EnforcePermission: true,
		},
		Export: ExporterConfig{
			BatchSize:             DefaultBatchSize,
			RequestTimeoutSeconds: DefaultRequestTimeoutSeconds,
		},
		Reader: ReaderConfig{
			MaxAttempts:      DefaultReaderMaxAttempts,
			BackoffMillis:    DefaultReaderBackoffMillis,
			MaxBackoffMillis: DefaultReaderMaxBackoffMilli,
		},
		Discovery: DiscoveryConfig{
			SessionTTLSeconds: DefaultSessionTTLSeconds,
			CacheDir:          filepath.Join(home, "cache"),
		},
		Sink: SinkConfig{
			Addr: DefaultSinkAddr,
		},
	}
}

// HomeDir returns $HEALTHBRIDGE_HOME or ~/.healthbridge.
func HomeDir() string {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".healthbridge"
	}
	return filepath.Join(home, ".healthbridge")
}

// ConfigFilePath returns $HEALTHBRIDGE_CONFIG or <home>/config.yaml.
func ConfigFilePath() string {
	if path := os.Getenv(EnvConfigFile); path != "" {
		return path
	}
	return filepath.Join(HomeDir(), "config.yaml")
}

// Load reads a YAML file into c. Fields absent from the file keep their current values.
func (c *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err = yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Save writes c as YAML to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err = os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks value ranges that would otherwise fail deep inside a command.
func (c *Config) Validate() error {
	if c.Export.BatchSize < 1 || c.Export.BatchSize > maxBatchSize {
		return fmt.Errorf("%w: export.batch_size must be between 1 and %d, got %d",
			ErrInvalidConfig, maxBatchSize, c.Export.BatchSize)
	}
	if c.Export.RequestTimeoutSeconds < 1 {
		return fmt.Errorf("%w: export.request_timeout_seconds must be positive", ErrInvalidConfig)
	}
	if c.Reader.MaxAttempts < 1 {
		return fmt.Errorf("%w: reader.max_attempts must be at least 1", ErrInvalidConfig)
	}
	if c.Reader.BackoffMillis < 0 || c.Reader.MaxBackoffMillis < c.Reader.BackoffMillis {
		return fmt.Errorf("%w: reader backoff must satisfy 0 <= backoff_millis <= max_backoff_millis",
			ErrInvalidConfig)
	}
	if c.Discovery.SessionTTLSeconds < 1 {
		return fmt.Errorf("%w: discovery.session_ttl_seconds must be positive", ErrInvalidConfig)
	}
	switch c.Store.Driver {
	case "", StoreDriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("%w: store.path is required", ErrInvalidConfig)
		}
	case StoreDriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: store.dsn is required for the postgres driver", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store.driver %q", ErrInvalidConfig, c.Store.Driver)
	}
	return nil
}

// EnsureLogDir creates the directory holding the configured log file.
func (c *Config) EnsureLogDir() error {
	return c.Logging.EnsureDir()
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(EnvLogFile); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv(EnvDBDriver); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv(EnvDBDSN); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv(EnvBatchSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Export.BatchSize = n
		}
	}
	if v := os.Getenv(EnvProgressURL); v != "" {
		c.Export.ProgressURL = v
	}
	if v := os.Getenv(EnvSinkAddr); v != "" {
		c.Sink.Addr = v
	}
}

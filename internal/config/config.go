// Package config provides configuration types and defaults for turbo.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/turbo/internal/flags"
	"github.com/zjrosen/turbo/internal/log"
	"github.com/zjrosen/turbo/internal/tracing"
)

// Config holds all configuration options for turbo.
type Config struct {
	Storage     StorageConfig     `mapstructure:"storage"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Definitions DefinitionsConfig `mapstructure:"definitions"`
	Server      ServerConfig      `mapstructure:"server"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	Log         LogConfig         `mapstructure:"log"`
	Flags       map[string]bool   `mapstructure:"flags"`
}

// StorageConfig holds instance persistence settings.
type StorageConfig struct {
	// Path is the sqlite database file.
	// Default: ~/.turbo/turbo.db
	Path string `mapstructure:"path"`

	// Disabled keeps instances in memory only.
	Disabled bool `mapstructure:"disabled"`
}

// CacheConfig holds the extra API cache settings of the central API.
type CacheConfig struct {
	// APITTL is how long a resolved extra API stays cached. Zero keeps
	// entries until the API is replaced or removed.
	APITTL time.Duration `mapstructure:"api_ttl"`

	// CleanupInterval is how often expired entries are purged.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`

	// ObjectStore keeps registry values in an in-process object store and
	// puts references to them in the tree.
	ObjectStore bool `mapstructure:"object_store"`
}

// DefinitionsConfig holds the job definitions file settings.
type DefinitionsConfig struct {
	// Path is the YAML file listing job definitions. Empty loads none.
	Path string `mapstructure:"path"`

	// Watch reloads the file when it changes while serving.
	Watch bool `mapstructure:"watch"`

	// Debounce is the quiet period before a change is reloaded.
	Debounce time.Duration `mapstructure:"debounce"`
}

// ServerConfig holds HTTP API and command queue settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"` // listen address, e.g. "127.0.0.1:8420"

	// QueueCapacity bounds the number of pending commands.
	QueueCapacity int `mapstructure:"queue_capacity"`

	// DedupTTL rejects identical commands submitted within this window.
	// Zero disables deduplication.
	DedupTTL time.Duration `mapstructure:"dedup_ttl"`

	// SlowCommandThreshold logs commands that run longer than this.
	SlowCommandThreshold time.Duration `mapstructure:"slow_command_threshold"`
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/turbo/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`
}

// Provider converts the settings into tracing.Config.
func (t TracingConfig) Provider() tracing.Config {
	cfg := tracing.DefaultConfig()
	cfg.Enabled = t.Enabled
	if t.Exporter != "" {
		cfg.Exporter = t.Exporter
	}
	cfg.FilePath = t.FilePath
	if cfg.FilePath == "" {
		cfg.FilePath = DefaultTracesFilePath()
	}
	if t.OTLPEndpoint != "" {
		cfg.OTLPEndpoint = t.OTLPEndpoint
	}
	cfg.SampleRate = t.SampleRate
	return cfg
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Path is the log file. Empty disables logging.
	Path string `mapstructure:"path"`

	// Level is the minimum level written: debug, info, warn or error.
	Level string `mapstructure:"level"`
}

// DefaultTracesFilePath returns the default path for trace file export.
// Returns ~/.config/turbo/traces/traces.jsonl or empty string if home dir unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "turbo", "traces", "traces.jsonl")
}

// DefaultStoragePath returns the default sqlite database path.
// Returns ~/.turbo/turbo.db or empty string if home dir unavailable.
func DefaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".turbo", "turbo.db")
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := ValidateStorage(c.Storage); err != nil {
		return err
	}
	if err := ValidateCache(c.Cache); err != nil {
		return err
	}
	if err := ValidateDefinitions(c.Definitions); err != nil {
		return err
	}
	if err := ValidateServer(c.Server); err != nil {
		return err
	}
	if err := ValidateTracing(c.Tracing); err != nil {
		return err
	}
	return ValidateLog(c.Log)
}

// ValidateStorage checks storage configuration for errors.
func ValidateStorage(storage StorageConfig) error {
	if !storage.Disabled && storage.Path == "" {
		return fmt.Errorf("storage.path is required unless storage.disabled is true")
	}
	return nil
}

// ValidateCache checks cache configuration for errors.
func ValidateCache(cache CacheConfig) error {
	if cache.APITTL < 0 {
		return fmt.Errorf("cache.api_ttl must not be negative, got %v", cache.APITTL)
	}
	if cache.CleanupInterval < 0 {
		return fmt.Errorf("cache.cleanup_interval must not be negative, got %v", cache.CleanupInterval)
	}
	return nil
}

// ValidateDefinitions checks definitions configuration for errors.
func ValidateDefinitions(defs DefinitionsConfig) error {
	if defs.Watch && defs.Path == "" {
		return fmt.Errorf("definitions.path is required when definitions.watch is true")
	}
	if defs.Debounce < 0 {
		return fmt.Errorf("definitions.debounce must not be negative, got %v", defs.Debounce)
	}
	return nil
}

// ValidateServer checks server configuration for errors.
func ValidateServer(server ServerConfig) error {
	if server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if server.QueueCapacity < 0 {
		return fmt.Errorf("server.queue_capacity must not be negative, got %d", server.QueueCapacity)
	}
	if server.DedupTTL < 0 {
		return fmt.Errorf("server.dedup_ttl must not be negative, got %v", server.DedupTTL)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	// Validate SampleRate is in range [0.0, 1.0]
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
			// Valid
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Only validate endpoint requirements when tracing is enabled
	if tracing.Enabled && tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
		return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
	}

	return nil
}

// ValidateLog checks logging configuration for errors.
func ValidateLog(cfg LogConfig) error {
	if _, err := log.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Storage: StorageConfig{
			Path: DefaultStoragePath(),
		},
		Cache: CacheConfig{
			APITTL:          0, // Keep until replaced
			CleanupInterval: 10 * time.Minute,
		},
		Definitions: DefinitionsConfig{
			Watch:    false,
			Debounce: 500 * time.Millisecond,
		},
		Server: ServerConfig{
			Addr:                 "127.0.0.1:8420",
			QueueCapacity:        1000,
			DedupTTL:             0,
			SlowCommandThreshold: 5 * time.Second,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     "", // Derived from home dir at runtime
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		Log: LogConfig{
			Level: "info",
		},
		Flags: flags.Defaults(),
	}
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Turbo Configuration

# Instance persistence
storage:
  # path: ~/.turbo/turbo.db   # sqlite database file (default: ~/.turbo/turbo.db)
  disabled: false             # Keep instances in memory only

# Central API cache for resolved extra APIs
cache:
  api_ttl: 0s                 # 0 keeps entries until the API is replaced
  cleanup_interval: 10m
  object_store: false         # Store values behind references

# Job definitions file
# definitions:
#   path: ./definitions.yaml
#   watch: true               # Reload on change while serving
#   debounce: 500ms
#
# Definitions file format:
#   definitions:
#     - id: etl
#       name: Nightly ETL
#       description: Loads the warehouse
#       parameters: etl       # Registered parameters type (optional)
#       labels:
#         team: data

# HTTP API and command queue
server:
  addr: 127.0.0.1:8420
  queue_capacity: 1000
  dedup_ttl: 0s               # Reject identical commands within this window (0 disables)
  slow_command_threshold: 5s  # Log commands slower than this

# Logging
log:
  # path: ~/.turbo/turbo.log  # Empty disables logging
  level: info                 # debug, info, warn or error

# Feature flags
flags:
  event-stream: true          # Stream processed commands on GET /events

# Distributed tracing configuration
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/turbo/traces/traces.jsonl  # Output file for file exporter
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)
#
# Example: Send traces to Jaeger via OTLP
# tracing:
#   enabled: true
#   exporter: otlp
#   otlp_endpoint: jaeger.internal:4317
#   sample_rate: 0.1  # Sample 10% of traces
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	// Create parent directory if needed
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write the template
	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/turbo/internal/tracing"
)

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	if cfg.Storage.Path == "" {
		// No home directory in this environment.
		cfg.Storage.Disabled = true
	}
	require.NoError(t, cfg.Validate())
}

func TestDefaults_Values(t *testing.T) {
	cfg := Defaults()
	require.Equal(t, "127.0.0.1:8420", cfg.Server.Addr)
	require.Equal(t, 1000, cfg.Server.QueueCapacity)
	require.Zero(t, cfg.Server.DedupTTL)
	require.Equal(t, 5*time.Second, cfg.Server.SlowCommandThreshold)
	require.Equal(t, 500*time.Millisecond, cfg.Definitions.Debounce)
	require.False(t, cfg.Tracing.Enabled)
	require.Equal(t, "file", cfg.Tracing.Exporter)
	require.Equal(t, 1.0, cfg.Tracing.SampleRate)
	require.Equal(t, "info", cfg.Log.Level)
	require.True(t, cfg.Flags["event-stream"])
}

func TestValidateStorage(t *testing.T) {
	require.NoError(t, ValidateStorage(StorageConfig{Path: "/tmp/turbo.db"}))
	require.NoError(t, ValidateStorage(StorageConfig{Disabled: true}))

	err := ValidateStorage(StorageConfig{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "storage.path is required")
}

func TestValidateCache(t *testing.T) {
	require.NoError(t, ValidateCache(CacheConfig{}))
	require.NoError(t, ValidateCache(CacheConfig{APITTL: time.Minute, CleanupInterval: time.Minute}))

	err := ValidateCache(CacheConfig{APITTL: -time.Second})
	require.Error(t, err)
	require.Contains(t, err.Error(), "cache.api_ttl")

	err = ValidateCache(CacheConfig{CleanupInterval: -time.Second})
	require.Error(t, err)
	require.Contains(t, err.Error(), "cache.cleanup_interval")
}

func TestValidateDefinitions(t *testing.T) {
	require.NoError(t, ValidateDefinitions(DefinitionsConfig{}))
	require.NoError(t, ValidateDefinitions(DefinitionsConfig{Path: "defs.yaml", Watch: true}))

	err := ValidateDefinitions(DefinitionsConfig{Watch: true})
	require.Error(t, err)
	require.Contains(t, err.Error(), "definitions.path is required")

	err = ValidateDefinitions(DefinitionsConfig{Path: "defs.yaml", Debounce: -time.Millisecond})
	require.Error(t, err)
	require.Contains(t, err.Error(), "definitions.debounce")
}

func TestValidateServer(t *testing.T) {
	require.NoError(t, ValidateServer(ServerConfig{Addr: ":0"}))

	tests := []struct {
		name    string
		server  ServerConfig
		wantErr string
	}{
		{"missing addr", ServerConfig{}, "server.addr is required"},
		{"negative capacity", ServerConfig{Addr: ":0", QueueCapacity: -1}, "server.queue_capacity"},
		{"negative dedup ttl", ServerConfig{Addr: ":0", DedupTTL: -time.Second}, "server.dedup_ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServer(tt.server)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateTracing(t *testing.T) {
	tests := []struct {
		name    string
		tracing TracingConfig
		wantErr string
	}{
		{"empty is valid", TracingConfig{}, ""},
		{"defaults are valid", Defaults().Tracing, ""},
		{"sample rate below zero", TracingConfig{SampleRate: -0.1}, "sample_rate must be between"},
		{"sample rate above one", TracingConfig{SampleRate: 1.5}, "sample_rate must be between"},
		{"unknown exporter", TracingConfig{Exporter: "jaeger"}, "tracing.exporter must be"},
		{"otlp without endpoint", TracingConfig{Enabled: true, Exporter: "otlp"}, "otlp_endpoint is required"},
		{"otlp disabled without endpoint", TracingConfig{Exporter: "otlp"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTracing(tt.tracing)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateLog(t *testing.T) {
	for _, level := range []string{"", "debug", "info", "warn", "error", "WARNING"} {
		require.NoError(t, ValidateLog(LogConfig{Level: level}), level)
	}

	err := ValidateLog(LogConfig{Level: "loud"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "log.level")
}

func TestConfig_ValidateReportsFirstSection(t *testing.T) {
	cfg := Defaults()
	cfg.Storage = StorageConfig{Disabled: true}
	cfg.Server.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "server.addr")
}

func TestTracingConfig_Provider(t *testing.T) {
	cfg := TracingConfig{
		Enabled:    true,
		Exporter:   "stdout",
		SampleRate: 0.5,
	}.Provider()

	require.True(t, cfg.Enabled)
	require.Equal(t, tracing.ExporterStdout, cfg.Exporter)
	require.Equal(t, 0.5, cfg.SampleRate)
	require.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	require.Equal(t, DefaultTracesFilePath(), cfg.FilePath)
	require.Equal(t, "turbo", cfg.ServiceName)
}

func TestTracingConfig_ProviderKeepsExplicitValues(t *testing.T) {
	cfg := TracingConfig{
		Exporter:     "otlp",
		FilePath:     "/tmp/traces.jsonl",
		OTLPEndpoint: "collector:4317",
	}.Provider()

	require.Equal(t, tracing.ExporterOTLP, cfg.Exporter)
	require.Equal(t, "/tmp/traces.jsonl", cfg.FilePath)
	require.Equal(t, "collector:4317", cfg.OTLPEndpoint)
}

func TestDefaultTracesFilePath(t *testing.T) {
	path := DefaultTracesFilePath()
	if path == "" {
		t.Skip("no home directory")
	}
	require.True(t, strings.HasSuffix(path, filepath.Join(".config", "turbo", "traces", "traces.jsonl")))
}

func TestDefaultStoragePath(t *testing.T) {
	path := DefaultStoragePath()
	if path == "" {
		t.Skip("no home directory")
	}
	require.True(t, strings.HasSuffix(path, filepath.Join(".turbo", "turbo.db")))
}

func TestWriteDefaultConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, WriteDefaultConfig(configPath))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	require.Equal(t, DefaultConfigTemplate(), string(data))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestDefaultConfigTemplate_ParsesToDefaults(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(DefaultConfigTemplate())))

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	defaults := Defaults()
	require.False(t, cfg.Storage.Disabled)
	require.Equal(t, defaults.Cache, cfg.Cache)
	require.Equal(t, defaults.Server, cfg.Server)
	require.Equal(t, defaults.Log.Level, cfg.Log.Level)
	require.Empty(t, cfg.Definitions.Path)
	require.Equal(t, defaults.Flags, cfg.Flags)
}
